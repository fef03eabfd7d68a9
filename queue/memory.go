package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/pkg/utils/idgen"
)

const defaultBufferSize = 1024

// MemoryQueue is a process-local channel-backed queue. Messages do not
// survive a restart; acknowledgement is a no-op since channel receive
// already removes the message.
type MemoryQueue struct {
	messages    chan *Message
	closed      atomic.Bool
	idGenerator idgen.Generator
}

// NewMemoryQueue creates an in-memory queue with the given buffer size
// (0 = default)
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &MemoryQueue{
		messages:    make(chan *Message, bufferSize),
		idGenerator: idgen.NewUUIDGenerator(),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, notification *core.Notification) (string, error) {
	if notification == nil {
		return "", errors.ErrInvalidNotification
	}
	if q.closed.Load() {
		return "", errors.ErrQueueClosed
	}

	msg := &Message{
		ID:           q.idGenerator.GenerateWithPrefix("msg"),
		Notification: notification,
		Attempts:     1,
		EnqueuedAt:   time.Now(),
	}

	select {
	case q.messages <- msg:
		return msg.ID, nil
	default:
		return "", errors.ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-q.messages:
		if !ok {
			return nil, errors.ErrQueueClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(_ context.Context, _ *Message) error {
	return nil
}

// Nack re-enqueues the message with its attempt count bumped
func (q *MemoryQueue) Nack(_ context.Context, msg *Message) error {
	if msg == nil {
		return nil
	}
	if q.closed.Load() {
		return errors.ErrQueueClosed
	}
	msg.Attempts++
	select {
	case q.messages <- msg:
		return nil
	default:
		return errors.ErrQueueFull
	}
}

func (q *MemoryQueue) Size(_ context.Context) (int, error) {
	return len(q.messages), nil
}

func (q *MemoryQueue) Health(_ context.Context) error {
	if q.closed.Load() {
		return errors.ErrQueueClosed
	}
	return nil
}

func (q *MemoryQueue) Close() error {
	if q.closed.CompareAndSwap(false, true) {
		close(q.messages)
	}
	return nil
}
