// Package redis provides a notification store persisting the bounded
// notification list as a single JSON document under a fixed key.
//
// Writes are best-effort: a connection or serialization failure is logged
// and surfaces as an empty result or a no-op, never as an error to the
// fan-out path. The serialized envelope carries an explicit schema version;
// documents written before versioning was introduced are migrated once at
// load time.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/store"
)

// schemaVersion is the current envelope format version
const schemaVersion = 1

const (
	defaultKey     = "alerthub:notifications"
	defaultMaxSize = 1000
)

// envelope is the serialized document stored under the key
type envelope struct {
	SchemaVersion int                  `json:"schema_version"`
	Notifications []*core.Notification `json:"notifications"`
}

// Options contains Redis connection and store configuration
type Options struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`

	// Key is the fixed storage key holding the notification list
	Key string `json:"key" yaml:"key"`
	// MaxSize bounds the stored list (0 = default)
	MaxSize int `json:"max_size" yaml:"max_size"`

	Logger logger.Interface `json:"-" yaml:"-"`
}

// DefaultOptions returns default Redis store options
func DefaultOptions() *Options {
	return &Options{
		Addr:    "localhost:6379",
		Key:     defaultKey,
		MaxSize: defaultMaxSize,
	}
}

// Store is a Redis-backed implementation of store.Store
type Store struct {
	client         *redis.Client
	key            string
	maxSize        int
	logger         logger.Interface
	externalClient bool

	// mu serializes read-modify-write cycles; this process owns the key
	mu sync.Mutex
}

// New creates a Redis store with internal connection management
func New(opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return newStore(client, opts, false), nil
}

// NewWithClient creates a Redis store using an existing client.
// The caller is responsible for the client lifecycle.
func NewWithClient(client *redis.Client, opts *Options) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return newStore(client, opts, true), nil
}

func newStore(client *redis.Client, opts *Options, external bool) *Store {
	key := opts.Key
	if key == "" {
		key = defaultKey
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard
	}
	return &Store{
		client:         client,
		key:            key,
		maxSize:        maxSize,
		logger:         log,
		externalClient: external,
	}
}

// Load returns filtered notifications, newest first, pruning expired entries
func (s *Store) Load(ctx context.Context, filter *store.Filter) ([]*core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.loadLocked(ctx)
	list = s.sweepExpiredLocked(ctx, list)

	results := make([]*core.Notification, 0, len(list))
	for _, n := range list {
		if filter.Matches(n) {
			results = append(results, n.Clone())
		}
	}
	store.SortNewestFirst(results)

	if filter != nil && filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Save upserts a notification and re-serializes the full bounded list
func (s *Store) Save(ctx context.Context, notification *core.Notification) error {
	if notification.ID == "" {
		return errors.ErrInvalidNotification
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.loadLocked(ctx)

	replaced := false
	for i, n := range list {
		if n.ID == notification.ID {
			list[i] = notification.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, notification.Clone())
	}

	store.SortNewestFirst(list)
	if len(list) > s.maxSize {
		list = list[:s.maxSize]
	}

	s.storeLocked(ctx, list)
	return nil
}

// Delete removes a notification
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.loadLocked(ctx)
	kept := list[:0]
	for _, n := range list {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.storeLocked(ctx, kept)
	return nil
}

// MarkAsRead flips the read flag for one notification
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.loadLocked(ctx)
	for _, n := range list {
		if n.ID == id {
			n.Read = true
			s.storeLocked(ctx, list)
			return nil
		}
	}
	return errors.ErrNotFound
}

// MarkAllAsRead flips the read flag for every matching notification
func (s *Store) MarkAllAsRead(ctx context.Context, filter *store.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.loadLocked(ctx)
	for _, n := range list {
		if filter.Matches(n) {
			n.Read = true
		}
	}
	s.storeLocked(ctx, list)
	return nil
}

// Count returns the number of matching notifications
func (s *Store) Count(ctx context.Context, filter *store.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.loadLocked(ctx)
	list = s.sweepExpiredLocked(ctx, list)

	count := 0
	for _, n := range list {
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

	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		s.logger.Error(ctx, "clearing notification key failed", "error", err)
	}
	return nil
}

// Close releases the client when internally managed
func (s *Store) Close() error {
	if s.externalClient {
		return nil
	}
	return s.client.Close()
}

// loadLocked reads and decodes the envelope, migrating unversioned
// documents. Failures are logged and yield an empty list.
func (s *Store) loadLocked(ctx context.Context) []*core.Notification {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Error(ctx, "loading notifications failed", "key", s.key, "error", err)
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.SchemaVersion >= 1 {
		return env.Notifications
	}

	// Unversioned legacy document: a bare JSON array
	var legacy []*core.Notification
	if err := json.Unmarshal(data, &legacy); err != nil {
		s.logger.Error(ctx, "decoding notifications failed, dropping document", "key", s.key, "error", err)
		return nil
	}
	s.logger.Warn(ctx, "migrating unversioned notification document", "key", s.key, "count", len(legacy))
	return legacy
}

// storeLocked re-serializes the full list. Failures are logged, not raised.
func (s *Store) storeLocked(ctx context.Context, list []*core.Notification) {
	env := envelope{SchemaVersion: schemaVersion, Notifications: list}
	data, err := json.Marshal(&env)
	if err != nil {
		s.logger.Error(ctx, "encoding notifications failed", "error", err)
		return
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		s.logger.Error(ctx, "storing notifications failed", "key", s.key, "error", err)
	}
}

func (s *Store) sweepExpiredLocked(ctx context.Context, list []*core.Notification) []*core.Notification {
	kept := make([]*core.Notification, 0, len(list))
	swept := 0
	for _, n := range list {
		if n.IsExpired() {
			swept++
			continue
		}
		kept = append(kept, n)
	}
	if swept > 0 {
		s.storeLocked(ctx, kept)
		s.logger.Debug(ctx, "swept expired notifications", "count", swept)
	}
	return kept
}
