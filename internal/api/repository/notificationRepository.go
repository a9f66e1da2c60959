package repository

import (
	"context"
	"time"

	"markethub/internal/api/models"

	"gorm.io/gorm"
)

// NotificationRepository is the durable store for notification records and
// the source of truth for read state.
type NotificationRepository interface {
	Save(ctx context.Context, notification *models.Notification) error
	FindPage(ctx context.Context, userID string, page, size int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	// MarkRead flips one notification to read, conditional on ownership and
	// it being currently unread; returns rows affected (0 or 1)
	MarkRead(ctx context.Context, notificationID int64, userID string) (int64, error)
	// MarkAllRead flips every unread notification owned by the user;
	// returns rows affected
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Save(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) FindPage(ctx context.Context, userID string, page, size int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(page * size).
		Limit(size).
		Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = false", userID).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, notificationID int64, userID string) (int64, error) {
	// read and read_at always move together
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read = false", notificationID, userID).
		Updates(map[string]interface{}{"read": true, "read_at": time.Now()})
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = false", userID).
		Updates(map[string]interface{}{"read": true, "read_at": time.Now()})
	return result.RowsAffected, result.Error
}
