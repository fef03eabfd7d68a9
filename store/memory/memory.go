// Package memory provides a thread-safe in-memory notification store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/store"
)

const defaultMaxSize = 1000

// Store is an in-memory implementation of store.Store
type Store struct {
	mu            sync.RWMutex
	notifications map[string]*core.Notification
	maxSize       int
	unreadCount   int
}

// New creates an in-memory store holding at most maxSize notifications
func New(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Store{
		notifications: make(map[string]*core.Notification),
		maxSize:       maxSize,
	}
}

// Load returns filtered notifications, newest first, pruning expired entries
func (s *Store) Load(ctx context.Context, filter *store.Filter) ([]*core.Notification, error) {
	s.mu.Lock()
	s.sweepExpiredLocked()

	results := make([]*core.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if filter.Matches(n) {
			results = append(results, n.Clone())
		}
	}
	s.mu.Unlock()

	store.SortNewestFirst(results)

	if filter != nil && filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Save upserts a notification, evicting the oldest entry when full
func (s *Store) Save(ctx context.Context, notification *core.Notification) error {
	if notification.ID == "" {
		return errors.ErrInvalidNotification
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.notifications[notification.ID]; exists {
		if !old.Read && notification.Read {
			s.unreadCount--
		} else if old.Read && !notification.Read {
			s.unreadCount++
		}
		s.notifications[notification.ID] = notification.Clone()
		return nil
	}

	if len(s.notifications) >= s.maxSize {
		s.removeOldestLocked()
	}

	s.notifications[notification.ID] = notification.Clone()
	if !notification.Read {
		s.unreadCount++
	}
	return nil
}

// Delete removes a notification. Deleting an unknown ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, exists := s.notifications[id]; exists {
		if !n.Read {
			s.unreadCount--
		}
		delete(s.notifications, id)
	}
	return nil
}

// MarkAsRead flips the read flag for one notification
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.notifications[id]
	if !exists {
		return errors.ErrNotFound
	}
	if !n.Read {
		n.Read = true
		s.unreadCount--
	}
	return nil
}

// MarkAllAsRead flips the read flag for every matching notification
func (s *Store) MarkAllAsRead(ctx context.Context, filter *store.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications {
		if !n.Read && filter.Matches(n) {
			n.Read = true
			s.unreadCount--
		}
	}
	return nil
}

// Count returns the number of matching notifications
func (s *Store) Count(ctx context.Context, filter *store.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpiredLocked()

	if filter == nil {
		return len(s.notifications), nil
	}
	if filter.UnreadOnly && len(filter.Types) == 0 && len(filter.Priorities) == 0 &&
		len(filter.Sources) == 0 && filter.Since == nil {
		return s.unreadCount, nil
	}

	count := 0
	for _, n := range s.notifications {
		if filter.Matches(n) {
			count++
		}
	}
	return count, nil
}

// Clear removes all notifications
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = make(map[string]*core.Notification)
	s.unreadCount = 0
	return nil
}

// Close is a no-op for the in-memory store
func (s *Store) Close() error {
	return nil
}

// sweepExpiredLocked removes expired entries. Callers hold the write lock.
func (s *Store) sweepExpiredLocked() {
	now := time.Now()
	for id, n := range s.notifications {
		if n.ExpiresAt != nil && now.After(*n.ExpiresAt) {
			if !n.Read {
				s.unreadCount--
			}
			delete(s.notifications, id)
		}
	}
}

// removeOldestLocked evicts the oldest notification to make room
func (s *Store) removeOldestLocked() {
	var oldestID string
	var oldestTime time.Time

	for id, n := range s.notifications {
		if oldestID == "" || n.CreatedAt.Before(oldestTime) {
			oldestID = id
			oldestTime = n.CreatedAt
		}
	}

	if oldestID != "" {
		if n := s.notifications[oldestID]; !n.Read {
			s.unreadCount--
		}
		delete(s.notifications, oldestID)
	}
}
