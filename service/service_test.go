package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/store"
	"github.com/kart-io/alerthub/store/memory"
)

func newTestService(t *testing.T, config *Config) *Service {
	t.Helper()
	s := New(Options{
		Store:  memory.New(100),
		Logger: logger.Discard,
	})
	require.NoError(t, s.Initialize(context.Background(), config))
	return s
}

func TestOperationsBeforeInitializeFailFast(t *testing.T) {
	s := New(Options{Store: memory.New(10), Logger: logger.Discard})
	ctx := context.Background()

	_, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	assert.ErrorIs(t, err, errors.ErrNotInitialized)

	assert.ErrorIs(t, s.MarkAsRead(ctx, "x"), errors.ErrNotInitialized)
	assert.ErrorIs(t, s.DeleteNotification(ctx, "x"), errors.ErrNotInitialized)

	_, err = s.GetNotifications(ctx, nil)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)

	_, err = s.Subscribe(ctx, func([]*core.Notification) {})
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := New(Options{Store: memory.New(10), Logger: logger.Discard})
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, &Config{MaxNotifications: 5}))
	require.NoError(t, s.Initialize(ctx, &Config{MaxNotifications: 50}))

	// first configuration wins
	assert.Equal(t, 5, s.config.MaxNotifications)
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
		require.NoError(t, err)
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id issued: %s", id)
		seen[id] = true
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	n := core.NewNotification(core.TypeInfo, "T", "M")
	n.Priority = ""

	id, err := s.CreateNotification(ctx, n)
	require.NoError(t, err)

	list, err := s.GetNotifications(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, core.PriorityMedium, got.Priority)
	assert.False(t, got.Read)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, got.CreatedAt.Add(7*24*time.Hour), *got.ExpiresAt, time.Second)
}

func TestDefaultScenario(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	id, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "T", "M"))
	require.NoError(t, err)

	count, err := s.GetNotificationCount(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unread, err := s.GetNotifications(ctx, &store.Filter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, id, unread[0].ID)

	require.NoError(t, s.MarkAsRead(ctx, id))

	unreadCount, err := s.GetNotificationCount(ctx, &store.Filter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 0, unreadCount)
}

func TestUpdateMergesPartialFields(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	id, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "T", "M"))
	require.NoError(t, err)

	title := "updated"
	priority := core.PriorityUrgent
	require.NoError(t, s.UpdateNotification(ctx, id, Update{Title: &title, Priority: &priority}))

	list, err := s.GetNotifications(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "updated", list[0].Title)
	assert.Equal(t, core.PriorityUrgent, list[0].Priority)
	assert.Equal(t, "M", list[0].Message)
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestService(t, nil)

	title := "x"
	err := s.UpdateNotification(context.Background(), "missing", Update{Title: &title})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestDeleteRemovesFromListAndStorage(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	id, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "T", "M"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteNotification(ctx, id))

	count, err := s.GetNotificationCount(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSubscribeReplaysCurrentList(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	_, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "T", "M"))
	require.NoError(t, err)

	var replayed [][]*core.Notification
	_, err = s.Subscribe(ctx, func(list []*core.Notification) {
		replayed = append(replayed, list)
	})
	require.NoError(t, err)

	// exactly one immediate replay with the list as it exists now
	require.Len(t, replayed, 1)
	assert.Len(t, replayed[0], 1)
}

func TestMutationsBroadcastFullList(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	var deliveries [][]*core.Notification
	_, err := s.Subscribe(ctx, func(list []*core.Notification) {
		deliveries = append(deliveries, list)
	})
	require.NoError(t, err)
	require.Len(t, deliveries, 1) // replay

	id1, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "a", "m"))
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "b", "m"))
	require.NoError(t, err)

	require.Len(t, deliveries, 3)
	assert.Len(t, deliveries[1], 1)
	assert.Len(t, deliveries[2], 2) // full list, not a diff

	require.NoError(t, s.MarkAsRead(ctx, id1))
	require.Len(t, deliveries, 4)
	for _, n := range deliveries[3] {
		if n.ID == id1 {
			assert.True(t, n.Read)
		}
	}
}

func TestUnsubscribeStopsDeliveries(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	count := 0
	id, err := s.Subscribe(ctx, func([]*core.Notification) { count++ })
	require.NoError(t, err)
	require.Equal(t, 1, count)

	s.Unsubscribe(id)

	_, err = s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "T", "M"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDedupSuppressesIdenticalNotifications(t *testing.T) {
	s := newTestService(t, &Config{DedupWindow: time.Minute})
	ctx := context.Background()

	_, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "same", "m").WithSource("sys"))
	require.NoError(t, err)

	_, err = s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "same", "m").WithSource("sys"))
	assert.ErrorIs(t, err, errors.ErrDuplicate)

	// different title passes
	_, err = s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "other", "m").WithSource("sys"))
	assert.NoError(t, err)
}

func TestRateLimitBoundsCreation(t *testing.T) {
	s := newTestService(t, &Config{
		RateLimitWindow:    time.Minute,
		RateLimitMaxEvents: 2,
	})
	ctx := context.Background()

	_, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "a", "m"))
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "b", "m"))
	require.NoError(t, err)

	_, err = s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "c", "m"))
	assert.ErrorIs(t, err, errors.ErrRateLimited)
}

func TestAutoMarkAsRead(t *testing.T) {
	s := newTestService(t, &Config{AutoMarkAsRead: true})
	ctx := context.Background()

	_, err := s.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "T", "M"))
	require.NoError(t, err)

	unread, err := s.GetNotificationCount(ctx, &store.Filter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}
