package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"markethub/internal/api/models"
	"markethub/internal/api/repository"
	"markethub/internal/notify"

	"github.com/redis/go-redis/v9"
)

// storeTimeout bounds every store call made from the async workers, which
// have no request context of their own
const storeTimeout = 5 * time.Second

// cachedPage is the list-cache entry: one page of notifications together
// with the page coordinates it was read for. A lookup with different
// coordinates is a miss.
type cachedPage struct {
	Page  int                   `json:"page"`
	Size  int                   `json:"size"`
	Items []models.Notification `json:"items"`
}

// NotificationService is the delivery façade composing the store, the two
// read caches, the connection registry and the event dispatcher.
type NotificationService interface {
	// Publish validates the event synchronously, enqueues it and returns.
	// Persisting, cache invalidation and live push happen asynchronously;
	// their failures never reach the caller.
	Publish(event notify.Event) error

	List(ctx context.Context, userID string, page, size int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)

	// MarkRead and MarkAllRead are idempotent; marking an already-read or
	// foreign notification is a no-op, not an error.
	MarkRead(ctx context.Context, userID string, notificationID int64) error
	MarkAllRead(ctx context.Context, userID string) error

	OpenStream(userID string) (*notify.Connection, error)
	CloseStream(conn *notify.Connection)

	// Close drains the dispatcher and closes all live streams.
	Close()
}

type notificationService struct {
	repo       repository.NotificationRepository
	registry   *notify.Registry
	dispatcher *notify.Dispatcher
	listCache  notify.Cache[cachedPage]
	countCache notify.Cache[int64]
	logger     *slog.Logger
}

func NewNotificationService(
	repo repository.NotificationRepository,
	registry *notify.Registry,
	listCache notify.Cache[cachedPage],
	countCache notify.Cache[int64],
	workers, queueCapacity int,
	logger *slog.Logger,
) NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &notificationService{
		repo:       repo,
		registry:   registry,
		listCache:  listCache,
		countCache: countCache,
		logger:     logger,
	}
	s.dispatcher = notify.NewDispatcher(workers, queueCapacity, s.process, logger)
	s.dispatcher.Start()
	registry.Start()
	return s
}

// NewListCache and NewCountCache build in-process caches with the engine
// defaults: the list cache is smaller with a longer window, the count cache
// larger with a shorter one since counts change more often and are cheap to
// recompute.
func NewListCache(capacity int, ttl time.Duration) notify.Cache[cachedPage] {
	return notify.NewMemoryCache[cachedPage](capacity, ttl)
}

func NewCountCache(capacity int, ttl time.Duration) notify.Cache[int64] {
	return notify.NewMemoryCache[int64](capacity, ttl)
}

// Redis-backed variants for multi-replica deployments.
func NewRedisListCache(client *redis.Client, ttl time.Duration) notify.Cache[cachedPage] {
	return notify.NewRedisCache[cachedPage](client, "notifications:list", ttl)
}

func NewRedisCountCache(client *redis.Client, ttl time.Duration) notify.Cache[int64] {
	return notify.NewRedisCache[int64](client, "notifications:unread", ttl)
}

func (s *notificationService) Publish(event notify.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return s.dispatcher.Submit(event)
}

// process is the async half of Publish, run on a dispatcher worker:
// persist, invalidate the recipient's caches, push to live connections.
// A store failure aborts the remaining steps and surfaces through the
// dispatcher's error sink; a failed push only means the notification waits
// for the next poll.
func (s *notificationService) process(ctx context.Context, event notify.Event) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	notification := &models.Notification{
		UserID:  event.UserID,
		Kind:    string(event.Kind),
		Title:   event.Title,
		Message: event.Message,
	}
	if event.RefType != "" {
		refType, refID := event.RefType, event.RefID
		notification.RefType = &refType
		notification.RefID = &refID
	}

	if err := s.repo.Save(ctx, notification); err != nil {
		return fmt.Errorf("save notification for user %s: %w", event.UserID, err)
	}

	s.invalidate(ctx, event.UserID)

	payload, err := json.Marshal(notification)
	if err != nil {
		s.logger.Error("notification_marshal_failed",
			"user_id", event.UserID,
			"error", err.Error(),
		)
		return nil // persisted; the read path still sees it
	}
	s.registry.Deliver(event.UserID, payload)
	return nil
}

func (s *notificationService) List(ctx context.Context, userID string, page, size int) ([]models.Notification, error) {
	if entry, ok := s.listCache.Get(ctx, userID); ok && entry.Page == page && entry.Size == size {
		return entry.Items, nil
	}

	items, err := s.repo.FindPage(ctx, userID, page, size)
	if err != nil {
		return nil, err
	}

	if err := s.listCache.Set(ctx, userID, cachedPage{Page: page, Size: size, Items: items}); err != nil {
		s.logger.Warn("list_cache_set_failed", "user_id", userID, "error", err.Error())
	}
	return items, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if count, ok := s.countCache.Get(ctx, userID); ok {
		return count, nil
	}

	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.countCache.Set(ctx, userID, count); err != nil {
		s.logger.Warn("count_cache_set_failed", "user_id", userID, "error", err.Error())
	}
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID string, notificationID int64) error {
	rows, err := s.repo.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if rows > 0 {
		s.invalidate(ctx, userID)
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) error {
	rows, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return err
	}
	if rows > 0 {
		s.invalidate(ctx, userID)
	}
	return nil
}

func (s *notificationService) OpenStream(userID string) (*notify.Connection, error) {
	return s.registry.Register(userID)
}

func (s *notificationService) CloseStream(conn *notify.Connection) {
	s.registry.Unregister(conn)
}

func (s *notificationService) Close() {
	s.dispatcher.Shutdown()
	s.registry.Close()
}

// invalidate clears both per-user cache entries. This is the sole
// consistency mechanism: entries are never patched in place. A read that
// started before the invalidation can write a stale entry back; the TTL
// bounds how long that survives.
func (s *notificationService) invalidate(ctx context.Context, userID string) {
	if err := s.listCache.Delete(ctx, userID); err != nil {
		s.logger.Warn("list_cache_invalidate_failed", "user_id", userID, "error", err.Error())
	}
	if err := s.countCache.Delete(ctx, userID); err != nil {
		s.logger.Warn("count_cache_invalidate_failed", "user_id", userID, "error", err.Error())
	}
}
