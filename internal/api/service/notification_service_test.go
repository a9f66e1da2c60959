package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"markethub/internal/api/models"
	"markethub/internal/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotificationRepo is an in-memory stand-in for the gorm store.
type fakeNotificationRepo struct {
	mu     sync.Mutex
	rows   []models.Notification
	nextID int64

	findPageCalls int
	countCalls    int
}

func (f *fakeNotificationRepo) Save(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	n.CreatedAt = time.Now()
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeNotificationRepo) FindPage(ctx context.Context, userID string, page, size int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findPageCalls++

	var owned []models.Notification
	for i := len(f.rows) - 1; i >= 0; i-- { // newest first
		if f.rows[i].UserID == userID {
			owned = append(owned, f.rows[i])
		}
	}
	start := page * size
	if start >= len(owned) {
		return nil, nil
	}
	end := start + size
	if end > len(owned) {
		end = len(owned)
	}
	return owned[start:end], nil
}

func (f *fakeNotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++

	var count int64
	for _, row := range f.rows {
		if row.UserID == userID && !row.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, notificationID int64, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.rows {
		if f.rows[i].ID == notificationID && f.rows[i].UserID == userID && !f.rows[i].Read {
			now := time.Now()
			f.rows[i].Read = true
			f.rows[i].ReadAt = &now
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows int64
	now := time.Now()
	for i := range f.rows {
		if f.rows[i].UserID == userID && !f.rows[i].Read {
			f.rows[i].Read = true
			f.rows[i].ReadAt = &now
			rows++
		}
	}
	return rows, nil
}

// waitForRows polls the store until the user's rows reach want, then gives
// the worker a beat to finish its cache invalidation step.
func waitForRows(t *testing.T, repo *fakeNotificationRepo, userID string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		n := 0
		for _, row := range repo.rows {
			if row.UserID == userID {
				n++
			}
		}
		return n == want
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
}

func newTestService(t *testing.T) (NotificationService, *fakeNotificationRepo) {
	t.Helper()
	repo := &fakeNotificationRepo{}
	registry := notify.NewRegistry(time.Hour, time.Hour, nil)
	svc := NewNotificationService(
		repo, registry,
		NewListCache(100, time.Minute),
		NewCountCache(100, time.Minute),
		2, 20, nil,
	)
	t.Cleanup(svc.Close)
	return svc, repo
}

func TestPublish_RejectsInvalidEventSynchronously(t *testing.T) {
	svc, repo := newTestService(t)

	err := svc.Publish(notify.Event{UserID: "bogus", Kind: notify.KindChatMessage})
	assert.ErrorIs(t, err, notify.ErrInvalidEvent)

	err = svc.Publish(notify.Event{UserID: uuid.NewString(), Kind: notify.Kind("NOPE")})
	assert.ErrorIs(t, err, notify.ErrInvalidEvent)

	assert.Empty(t, repo.rows)
}

func TestPublish_EventuallyPersistsAndCounts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	for i := 0; i < 3; i++ {
		err := svc.Publish(notify.Event{
			UserID:  userID,
			Kind:    notify.KindFavoriteUpdate,
			Title:   "Listing updated",
			Message: "A listing you favorited changed price",
		})
		require.NoError(t, err)
	}

	waitForRows(t, repo, userID, 3)

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	items, err := svc.List(ctx, userID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	for _, item := range items {
		assert.False(t, item.Read)
		assert.Nil(t, item.ReadAt)
	}
}

func TestPublish_DeliversToOpenStream(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.NewString()

	conn, err := svc.OpenStream(userID)
	require.NoError(t, err)
	defer svc.CloseStream(conn)

	err = svc.Publish(notify.Event{
		UserID:  userID,
		Kind:    notify.KindCommentReply,
		Title:   "New reply",
		Message: "Someone replied",
		RefType: "comment",
		RefID:   12,
	})
	require.NoError(t, err)

	select {
	case msg := <-conn.Messages():
		assert.Equal(t, "notification", msg.Event)
		assert.Contains(t, string(msg.Data), "COMMENT_REPLY")
	case <-time.After(time.Second):
		t.Fatal("expected a live push on the open stream")
	}
}

func TestUnreadCount_UsesCacheUntilInvalidated(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	require.NoError(t, svc.Publish(notify.Event{
		UserID: userID, Kind: notify.KindChatMessage, Title: "hi", Message: "hello",
	}))
	waitForRows(t, repo, userID, 1)

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	repo.mu.Lock()
	calls := repo.countCalls
	repo.mu.Unlock()

	// warm cache: no extra store reads
	for i := 0; i < 5; i++ {
		count, err := svc.UnreadCount(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	}
	repo.mu.Lock()
	assert.Equal(t, calls, repo.countCalls, "expected cached reads to skip the store")
	repo.mu.Unlock()

	// mutation invalidates; the next read reflects it
	require.NoError(t, svc.MarkAllRead(ctx, userID))
	count, err = svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMarkRead_IsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	require.NoError(t, svc.Publish(notify.Event{
		UserID: userID, Kind: notify.KindPostDeleted, Title: "Post removed", Message: "Your post was removed",
	}))
	waitForRows(t, repo, userID, 1)

	id := repo.rows[0].ID
	require.NoError(t, svc.MarkRead(ctx, userID, id))

	repo.mu.Lock()
	firstReadAt := *repo.rows[0].ReadAt
	repo.mu.Unlock()

	// second call is a no-op, same end state, same timestamp
	require.NoError(t, svc.MarkRead(ctx, userID, id))
	repo.mu.Lock()
	assert.True(t, repo.rows[0].Read)
	assert.Equal(t, firstReadAt, *repo.rows[0].ReadAt)
	repo.mu.Unlock()

	// foreign notification id is also a silent no-op
	require.NoError(t, svc.MarkRead(ctx, uuid.NewString(), id))
}

func TestMarkAllRead_Scenario(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	// 3 events with no open connection
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Publish(notify.Event{
			UserID: userID, Kind: notify.KindChatMessage, Title: "msg", Message: "body",
		}))
	}
	waitForRows(t, repo, userID, 3)

	conn, err := svc.OpenStream(userID)
	require.NoError(t, err)
	defer svc.CloseStream(conn)

	require.NoError(t, svc.MarkAllRead(ctx, userID))

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	repo.mu.Lock()
	for _, row := range repo.rows {
		assert.True(t, row.Read)
		assert.NotNil(t, row.ReadAt)
	}
	repo.mu.Unlock()

	// calling again leaves the same end state
	require.NoError(t, svc.MarkAllRead(ctx, userID))
	count, err = svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestList_ReflectsMutationAfterInvalidation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	require.NoError(t, svc.Publish(notify.Event{
		UserID: userID, Kind: notify.KindChatMessage, Title: "msg", Message: "body",
	}))
	waitForRows(t, repo, userID, 1)

	id := repo.rows[0].ID
	require.NoError(t, svc.MarkRead(ctx, userID, id))

	items, err := svc.List(ctx, userID, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Read, "list after mark-read must reflect the mutation")
}

func TestOpenStream_FailsAfterClose(t *testing.T) {
	repo := &fakeNotificationRepo{}
	registry := notify.NewRegistry(time.Hour, time.Hour, nil)
	svc := NewNotificationService(
		repo, registry, NewListCache(10, time.Minute), NewCountCache(10, time.Minute), 1, 10, nil,
	)
	svc.Close()

	_, err := svc.OpenStream(uuid.NewString())
	assert.ErrorIs(t, err, notify.ErrRegistryClosed)
}
