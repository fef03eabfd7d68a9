// Package redis provides a Redis Streams queue backend. Messages are added
// with XADD and consumed through a consumer group, so acknowledgement and
// redelivery survive process restarts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/queue"
)

const (
	defaultStream   = "alerthub:queue"
	defaultGroup    = "alerthub-workers"
	defaultMaxLen   = 10000
	defaultBlockFor = 5 * time.Second

	notificationField = "notification"
	attemptsField     = "attempts"
)

// Options configures the Redis Streams queue
type Options struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`

	// Stream is the stream key (default alerthub:queue)
	Stream string `json:"stream" yaml:"stream"`
	// Group is the consumer group name
	Group string `json:"group" yaml:"group"`
	// Consumer names this consumer inside the group
	Consumer string `json:"consumer" yaml:"consumer"`
	// MaxLen caps the stream length (approximate trimming)
	MaxLen int64 `json:"max_len" yaml:"max_len"`

	Logger logger.Interface `json:"-" yaml:"-"`
}

// DefaultOptions returns default queue options
func DefaultOptions() *Options {
	return &Options{
		Addr:     "localhost:6379",
		Stream:   defaultStream,
		Group:    defaultGroup,
		Consumer: "worker-1",
		MaxLen:   defaultMaxLen,
	}
}

// Queue is a Redis Streams implementation of queue.Queue
type Queue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	maxLen   int64
	logger   logger.Interface
}

// New connects to Redis and ensures the consumer group exists
func New(ctx context.Context, opts *Options) (*Queue, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Stream == "" {
		opts.Stream = defaultStream
	}
	if opts.Group == "" {
		opts.Group = defaultGroup
	}
	if opts.Consumer == "" {
		opts.Consumer = "worker-1"
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = defaultMaxLen
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	q := &Queue{
		client:   client,
		stream:   opts.Stream,
		group:    opts.Group,
		consumer: opts.Consumer,
		maxLen:   opts.MaxLen,
		logger:   opts.Logger,
	}
	if err := q.ensureGroup(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// Enqueue adds the notification to the stream
func (q *Queue) Enqueue(ctx context.Context, notification *core.Notification) (string, error) {
	if notification == nil {
		return "", errors.ErrInvalidNotification
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return "", fmt.Errorf("marshaling notification: %w", err)
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			notificationField: string(data),
			attemptsField:     1,
		},
	}).Result()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeQueueFull, errors.CategoryQueue, "enqueue failed")
	}
	return id, nil
}

// Dequeue reads the next message for this consumer, blocking up to the
// context deadline
func (q *Queue) Dequeue(ctx context.Context) (*queue.Message, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    defaultBlockFor,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, context.DeadlineExceeded
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, errors.CodeNetworkError, errors.CategoryQueue, "dequeue failed")
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, context.DeadlineExceeded
	}

	return q.decodeMessage(streams[0].Messages[0])
}

func (q *Queue) decodeMessage(m redis.XMessage) (*queue.Message, error) {
	raw, ok := m.Values[notificationField].(string)
	if !ok {
		// Unreadable entries are acked away so they never wedge the group
		_ = q.client.XAck(context.Background(), q.stream, q.group, m.ID).Err()
		return nil, fmt.Errorf("malformed queue entry %s", m.ID)
	}

	var notification core.Notification
	if err := json.Unmarshal([]byte(raw), &notification); err != nil {
		_ = q.client.XAck(context.Background(), q.stream, q.group, m.ID).Err()
		return nil, fmt.Errorf("decoding queue entry %s: %w", m.ID, err)
	}

	attempts := 1
	if v, ok := m.Values[attemptsField].(string); ok {
		fmt.Sscanf(v, "%d", &attempts)
	}

	return &queue.Message{
		ID:           m.ID,
		Notification: &notification,
		Attempts:     attempts,
		EnqueuedAt:   time.Now(),
	}, nil
}

// Ack acknowledges the message in the consumer group
func (q *Queue) Ack(ctx context.Context, msg *queue.Message) error {
	if err := q.client.XAck(ctx, q.stream, q.group, msg.ID).Err(); err != nil {
		return errors.Wrap(err, errors.CodeNetworkError, errors.CategoryQueue, "ack failed")
	}
	return nil
}

// Nack re-adds the message with a bumped attempt count and acknowledges
// the original entry
func (q *Queue) Nack(ctx context.Context, msg *queue.Message) error {
	data, err := json.Marshal(msg.Notification)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			notificationField: string(data),
			attemptsField:     msg.Attempts + 1,
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CodeNetworkError, errors.CategoryQueue, "nack failed")
	}
	return nil
}

// Size returns the stream length
func (q *Queue) Size(ctx context.Context) (int, error) {
	n, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeNetworkError, errors.CategoryQueue, "reading queue size failed")
	}
	return int(n), nil
}

// Health pings the backend
func (q *Queue) Health(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.CodeNetworkError, errors.CategoryQueue, "queue backend unreachable")
	}
	return nil
}

// Close closes the Redis client
func (q *Queue) Close() error {
	return q.client.Close()
}
