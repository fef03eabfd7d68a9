// Package store defines the persistence contract for notifications.
// Implementations are best-effort durability layers: environmental failures
// are handled inside the backend (logged, converted to empty results or
// no-ops) and never abort the caller's fan-out.
package store

import (
	"context"
	"slices"
	"time"

	"github.com/kart-io/alerthub/core"
)

// Store is the persistence interface for notifications.
// Defined at the consumer side; backends live in subpackages.
type Store interface {
	// Load returns notifications matching the filter, newest first.
	// Expired entries are pruned from the result and from the backing
	// store before returning.
	Load(ctx context.Context, filter *Filter) ([]*core.Notification, error)

	// Save upserts a notification by ID. Backends enforce their bounded
	// capacity here by evicting the oldest entries.
	Save(ctx context.Context, notification *core.Notification) error

	// Delete removes a notification
	Delete(ctx context.Context, id string) error

	// MarkAsRead flips the read flag for one notification
	MarkAsRead(ctx context.Context, id string) error

	// MarkAllAsRead flips the read flag for every notification matching
	// the filter
	MarkAllAsRead(ctx context.Context, filter *Filter) error

	// Count returns the number of notifications matching the filter
	Count(ctx context.Context, filter *Filter) (int, error)

	// Clear removes all notifications
	Clear(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Filter narrows Load/Count/MarkAllAsRead results. All set fields are
// combined with logical AND.
type Filter struct {
	// Types filters by notification type membership
	Types []core.Type
	// Priorities filters by priority membership
	Priorities []core.Priority
	// Sources filters by producing subsystem
	Sources []string
	// UnreadOnly keeps only unread notifications
	UnreadOnly bool
	// Since keeps notifications created at or after this time
	Since *time.Time
	// Limit restricts the number of results (0 = unlimited)
	Limit int
}

// Matches reports whether the notification passes the filter. A nil filter
// matches everything.
func (f *Filter) Matches(n *core.Notification) bool {
	if f == nil {
		return true
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, n.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, n.Priority) {
		return false
	}
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, n.Source) {
		return false
	}
	if f.UnreadOnly && n.Read {
		return false
	}
	if f.Since != nil && n.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// SortNewestFirst orders notifications by creation time, newest first.
// Shared by backends that filter in process.
func SortNewestFirst(notifications []*core.Notification) {
	slices.SortFunc(notifications, func(a, b *core.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
