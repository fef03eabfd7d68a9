// Package service implements the notification service: the owner of the
// canonical notification list. It validates and persists notifications,
// applies configured defaults, and re-broadcasts the complete current list
// to every subscriber after each successful mutation.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/pkg/utils/idgen"
	"github.com/kart-io/alerthub/store"
)

// Config holds notification service configuration
type Config struct {
	// MaxNotifications bounds the canonical list
	MaxNotifications int
	// DefaultExpiry is applied to notifications created without one (0 = never expire)
	DefaultExpiry time.Duration
	// DefaultPriority is applied when the caller omits one
	DefaultPriority core.Priority
	// AutoMarkAsRead stores new notifications already read
	AutoMarkAsRead bool
	// DedupWindow suppresses identical (type, source, title) notifications
	// created inside the window (0 = disabled)
	DedupWindow time.Duration
	// RateLimitWindow and RateLimitMaxEvents bound creation rate (0 = disabled)
	RateLimitWindow    time.Duration
	RateLimitMaxEvents int
}

// DefaultConfig returns the default service configuration
func DefaultConfig() *Config {
	return &Config{
		MaxNotifications: 1000,
		DefaultExpiry:    7 * 24 * time.Hour,
		DefaultPriority:  core.PriorityMedium,
	}
}

// merge fills zero-valued fields from defaults
func (c *Config) merge(defaults *Config) {
	if c.MaxNotifications <= 0 {
		c.MaxNotifications = defaults.MaxNotifications
	}
	if c.DefaultExpiry == 0 {
		c.DefaultExpiry = defaults.DefaultExpiry
	}
	if c.DefaultPriority == "" {
		c.DefaultPriority = defaults.DefaultPriority
	}
}

// Callback receives the complete notification list after each mutation
type Callback func(notifications []*core.Notification)

// Update carries partial fields merged onto a stored notification.
// Nil fields are left unchanged. There is no way to unset the read flag:
// read state is monotonic.
type Update struct {
	Title       *string
	Message     *string
	Priority    *core.Priority
	Dismissible *bool
	Actions     []core.Action
	Payload     *core.Payload
	ExpiresAt   *time.Time
}

// Service owns the canonical notification list
type Service struct {
	mu          sync.RWMutex
	initialized bool
	config      *Config

	store       store.Store
	idGenerator idgen.Generator
	logger      logger.Interface

	subscribersMu sync.RWMutex
	subscribers   map[string]Callback

	dedup       *gocache.Cache
	rateLimiter *rateLimiter
}

// Options for service construction
type Options struct {
	Store       store.Store
	IDGenerator idgen.Generator
	Logger      logger.Interface
}

// New creates a notification service. Initialize must be called before any
// other operation.
func New(opts Options) *Service {
	s := &Service{
		store:       opts.Store,
		idGenerator: opts.IDGenerator,
		logger:      opts.Logger,
		subscribers: make(map[string]Callback),
	}
	if s.idGenerator == nil {
		s.idGenerator = idgen.NewUUIDGenerator()
	}
	if s.logger == nil {
		s.logger = logger.Default
	}
	return s
}

// Initialize merges the supplied configuration with defaults and readies the
// service. Repeated calls are idempotent and keep the first configuration.
func (s *Service) Initialize(ctx context.Context, config *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		s.logger.Debug(ctx, "service already initialized")
		return nil
	}
	if s.store == nil {
		return errors.ErrMissingConfig
	}

	if config == nil {
		config = DefaultConfig()
	} else {
		cfg := *config
		cfg.merge(DefaultConfig())
		config = &cfg
	}
	s.config = config

	if config.DedupWindow > 0 {
		s.dedup = gocache.New(config.DedupWindow, 2*config.DedupWindow)
	}
	if config.RateLimitWindow > 0 && config.RateLimitMaxEvents > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitWindow, config.RateLimitMaxEvents)
	}

	s.initialized = true
	s.logger.Info(ctx, "notification service initialized",
		"max_notifications", config.MaxNotifications,
		"default_expiry", config.DefaultExpiry,
		"default_priority", config.DefaultPriority)
	return nil
}

// requireInitialized fails fast on use before Initialize. This is a
// programming error, not an environmental one.
func (s *Service) requireInitialized() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return errors.ErrNotInitialized
	}
	return nil
}

// CreateNotification assigns an ID, creation time and defaults, persists the
// notification and broadcasts the refreshed list. Returns the new ID.
func (s *Service) CreateNotification(ctx context.Context, n *core.Notification) (string, error) {
	if err := s.requireInitialized(); err != nil {
		return "", err
	}
	if n == nil {
		return "", errors.ErrInvalidNotification
	}

	if s.rateLimiter != nil && !s.rateLimiter.Allow() {
		return "", errors.ErrRateLimited
	}
	if s.dedup != nil {
		key := dedupKey(n)
		if _, found := s.dedup.Get(key); found {
			s.logger.Debug(ctx, "duplicate notification suppressed",
				"type", n.Type, "source", n.Source, "title", n.Title)
			return "", errors.ErrDuplicate
		}
		s.dedup.SetDefault(key, struct{}{})
	}

	n.ID = s.idGenerator.Generate()
	n.CreatedAt = time.Now()
	n.Read = s.config.AutoMarkAsRead

	if n.Priority == "" {
		n.Priority = s.config.DefaultPriority
	}
	if n.ExpiresAt == nil && s.config.DefaultExpiry > 0 {
		expiresAt := n.CreatedAt.Add(s.config.DefaultExpiry)
		n.ExpiresAt = &expiresAt
	}

	if err := n.Validate(); err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidNotification, errors.CategoryValidation, "invalid notification")
	}

	if err := s.store.Save(ctx, n); err != nil {
		return "", errors.Wrap(err, errors.CodeStorageError, errors.CategoryStorage, "persisting notification failed")
	}

	s.logger.Debug(ctx, "notification created", "id", n.ID, "type", n.Type, "priority", n.Priority)
	s.broadcast(ctx)
	return n.ID, nil
}

// UpdateNotification merges partial fields onto the stored record
func (s *Service) UpdateNotification(ctx context.Context, id string, update Update) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}

	existing, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}

	if update.Title != nil {
		existing.Title = *update.Title
	}
	if update.Message != nil {
		existing.Message = *update.Message
	}
	if update.Priority != nil {
		existing.Priority = *update.Priority
	}
	if update.Dismissible != nil {
		existing.Dismissible = *update.Dismissible
	}
	if update.Actions != nil {
		existing.Actions = update.Actions
	}
	if update.Payload != nil {
		existing.Payload = update.Payload
	}
	if update.ExpiresAt != nil {
		existing.ExpiresAt = update.ExpiresAt
	}

	if err := existing.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidNotification, errors.CategoryValidation, "invalid notification update")
	}
	if err := s.store.Save(ctx, existing); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, errors.CategoryStorage, "persisting notification failed")
	}

	s.broadcast(ctx)
	return nil
}

// DeleteNotification removes a notification from the canonical list and storage
func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, errors.CategoryStorage, "deleting notification failed")
	}
	s.broadcast(ctx)
	return nil
}

// MarkAsRead flips the read flag for one notification
func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.store.MarkAsRead(ctx, id); err != nil {
		return err
	}
	s.broadcast(ctx)
	return nil
}

// MarkAllAsRead flips the read flag for every matching notification
func (s *Service) MarkAllAsRead(ctx context.Context, filter *store.Filter) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.store.MarkAllAsRead(ctx, filter); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, errors.CategoryStorage, "marking notifications read failed")
	}
	s.broadcast(ctx)
	return nil
}

// ClearAllNotifications empties the canonical list and storage
func (s *Service) ClearAllNotifications(ctx context.Context) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.store.Clear(ctx); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, errors.CategoryStorage, "clearing notifications failed")
	}
	s.broadcast(ctx)
	return nil
}

// GetNotifications returns the filtered notification list, newest first.
// Storage failures are logged and surface as an empty list: delivery is
// best-effort and readers must keep functioning.
func (s *Service) GetNotifications(ctx context.Context, filter *store.Filter) ([]*core.Notification, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}

	list, err := s.store.Load(ctx, filter)
	if err != nil {
		s.logger.Error(ctx, "loading notifications failed", "error", err)
		return []*core.Notification{}, nil
	}
	return list, nil
}

// GetNotificationCount returns the number of matching notifications
func (s *Service) GetNotificationCount(ctx context.Context, filter *store.Filter) (int, error) {
	if err := s.requireInitialized(); err != nil {
		return 0, err
	}

	count, err := s.store.Count(ctx, filter)
	if err != nil {
		s.logger.Error(ctx, "counting notifications failed", "error", err)
		return 0, nil
	}
	return count, nil
}

// Subscribe registers a callback and immediately replays the current list
// to it, so new subscribers never start from a blank state. Returns a
// subscription ID usable with Unsubscribe.
func (s *Service) Subscribe(ctx context.Context, cb Callback) (string, error) {
	if err := s.requireInitialized(); err != nil {
		return "", err
	}
	if cb == nil {
		return "", fmt.Errorf("subscription callback cannot be nil")
	}

	id := s.idGenerator.GenerateWithPrefix("sub")

	s.subscribersMu.Lock()
	s.subscribers[id] = cb
	s.subscribersMu.Unlock()

	list, err := s.store.Load(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "replay-on-subscribe load failed", "error", err)
		list = []*core.Notification{}
	}
	cb(list)

	s.logger.Debug(ctx, "subscriber registered", "subscription_id", id)
	return id, nil
}

// Unsubscribe removes a subscription
func (s *Service) Unsubscribe(id string) {
	s.subscribersMu.Lock()
	delete(s.subscribers, id)
	s.subscribersMu.Unlock()
}

// broadcast delivers the complete current list to every subscriber. Always
// the full list, never a diff: subscribers see consistent state at the cost
// of re-delivery volume.
func (s *Service) broadcast(ctx context.Context) {
	s.subscribersMu.RLock()
	if len(s.subscribers) == 0 {
		s.subscribersMu.RUnlock()
		return
	}
	callbacks := make([]Callback, 0, len(s.subscribers))
	for _, cb := range s.subscribers {
		callbacks = append(callbacks, cb)
	}
	s.subscribersMu.RUnlock()

	list, err := s.store.Load(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "broadcast load failed", "error", err)
		return
	}

	for _, cb := range callbacks {
		cb(cloneList(list))
	}
}

// getByID loads one notification through the filterless list; stores keep
// this cheap via their ID indexes
func (s *Service) getByID(ctx context.Context, id string) (*core.Notification, error) {
	list, err := s.store.Load(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, errors.CategoryStorage, "loading notification failed")
	}
	for _, n := range list {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, errors.ErrNotFound
}

func dedupKey(n *core.Notification) string {
	return string(n.Type) + "|" + n.Source + "|" + n.Title
}

func cloneList(list []*core.Notification) []*core.Notification {
	cloned := make([]*core.Notification, len(list))
	for i, n := range list {
		cloned[i] = n.Clone()
	}
	return cloned
}
