// Package queue decouples notification ingestion from processing. Producers
// enqueue notifications; workers drain them into the processing pipeline
// with acknowledgement and retry.
package queue

import (
	"context"
	"time"

	"github.com/kart-io/alerthub/core"
)

// Message is a queued notification with delivery bookkeeping
type Message struct {
	// ID identifies the message inside its queue
	ID string
	// Notification is the queued payload
	Notification *core.Notification
	// Attempts counts deliveries of this message, starting at 1
	Attempts int
	// EnqueuedAt is when the message entered the queue
	EnqueuedAt time.Time
}

// Queue is a notification transport with at-least-once delivery
type Queue interface {
	// Enqueue adds a notification and returns its message ID
	Enqueue(ctx context.Context, notification *core.Notification) (string, error)
	// Dequeue blocks until a message is available or the context ends
	Dequeue(ctx context.Context) (*Message, error)
	// Ack marks a message as successfully processed
	Ack(ctx context.Context, msg *Message) error
	// Nack returns a message to the queue for redelivery
	Nack(ctx context.Context, msg *Message) error
	// Size returns the number of waiting messages
	Size(ctx context.Context) (int, error)
	// Health reports whether the queue backend is reachable
	Health(ctx context.Context) error
	// Close shuts the queue down
	Close() error
}
