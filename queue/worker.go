package queue

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
)

// Processor consumes dequeued notifications; the hub satisfies this
type Processor interface {
	ProcessNotification(ctx context.Context, notification *core.Notification) (bool, error)
}

// WorkerConfig tunes the drain loop
type WorkerConfig struct {
	// Concurrency is the number of drain goroutines (default 1)
	Concurrency int
	// MaxAttempts drops a message after this many failed deliveries (default 3)
	MaxAttempts int
	// RetryBackoff pauses before nacking a failed message (default 1s)
	RetryBackoff time.Duration
}

// Worker drains a queue into the processing pipeline
type Worker struct {
	queue     Queue
	processor Processor
	config    WorkerConfig
	logger    logger.Interface

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWorker creates a worker. Start must be called to begin draining.
func NewWorker(q Queue, processor Processor, config WorkerConfig, log logger.Interface) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	if log == nil {
		log = logger.Default
	}
	return &Worker{
		queue:     q,
		processor: processor,
		config:    config,
		logger:    log,
	}
}

// Start launches the drain goroutines
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return errors.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.drain(ctx)
	}

	w.logger.Info(ctx, "queue worker started", "concurrency", w.config.Concurrency)
	return nil
}

// Stop halts draining and waits for in-flight messages to finish
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
}

func (w *Worker) drain(ctx context.Context) {
	defer w.wg.Done()

	for {
		msg, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, errors.ErrQueueClosed) {
				return
			}
			// Transient dequeue failures (including poll timeouts) just retry
			continue
		}
		w.handle(ctx, msg)
	}
}

func (w *Worker) handle(ctx context.Context, msg *Message) {
	_, err := w.processor.ProcessNotification(ctx, msg.Notification)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, msg); ackErr != nil {
			w.logger.Warn(ctx, "ack failed", "message_id", msg.ID, "error", ackErr)
		}
		return
	}

	if msg.Attempts >= w.config.MaxAttempts {
		w.logger.Error(ctx, "dropping message after repeated failures",
			"message_id", msg.ID, "attempts", msg.Attempts, "error", err)
		if ackErr := w.queue.Ack(ctx, msg); ackErr != nil {
			w.logger.Warn(ctx, "ack of dropped message failed", "message_id", msg.ID, "error", ackErr)
		}
		return
	}

	w.logger.Warn(ctx, "processing failed, requeueing",
		"message_id", msg.ID, "attempts", msg.Attempts, "error", err)

	select {
	case <-time.After(w.config.RetryBackoff):
	case <-ctx.Done():
		// Requeue without the pause so the message is not lost on shutdown
	}
	if nackErr := w.queue.Nack(ctx, msg); nackErr != nil {
		w.logger.Error(ctx, "requeue failed, message lost", "message_id", msg.ID, "error", nackErr)
	}
}
