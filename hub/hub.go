// Package hub orchestrates the notification pipeline: notifications flow
// through the registered processors in order, are persisted through the
// notification service, then fan out concurrently to every matching handler.
package hub

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/observability"
	"github.com/kart-io/alerthub/registry"
	"github.com/kart-io/alerthub/service"
)

// State is the hub lifecycle state
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	default:
		return "uninitialized"
	}
}

// Hub coordinates the service and the registry into one processing pipeline
type Hub struct {
	mu    sync.RWMutex
	state State

	service  *service.Service
	registry *registry.Registry

	logger    logger.Interface
	telemetry *observability.Telemetry

	// handlerTimeout bounds each handler delivery (0 = unbounded)
	handlerTimeout time.Duration
}

// Options for hub construction
type Options struct {
	Logger         logger.Interface
	Telemetry      *observability.Telemetry
	HandlerTimeout time.Duration
}

// New creates an unwired hub. SetService and SetRegistry must be called
// before Initialize.
func New(opts Options) *Hub {
	h := &Hub{
		logger:         opts.Logger,
		telemetry:      opts.Telemetry,
		handlerTimeout: opts.HandlerTimeout,
	}
	if h.logger == nil {
		h.logger = logger.Default
	}
	if h.telemetry == nil {
		h.telemetry = observability.NewNoop()
	}
	return h
}

// SetService wires the notification service
func (h *Hub) SetService(svc *service.Service) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.service = svc
}

// SetRegistry wires the plug-in registry
func (h *Hub) SetRegistry(reg *registry.Registry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registry = reg
}

// State returns the current lifecycle state
func (h *Hub) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Initialize verifies wiring and initializes every registered provider.
// Repeated calls while initialized or running are idempotent.
func (h *Hub) Initialize(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateUninitialized {
		h.mu.Unlock()
		h.logger.Debug(ctx, "hub already initialized")
		return nil
	}
	if h.service == nil || h.registry == nil {
		h.mu.Unlock()
		return errors.ErrMissingWiring
	}
	reg := h.registry
	h.mu.Unlock()

	reg.BindEmit(h.emit)
	if err := reg.InitializeAll(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.state = StateInitialized
	h.mu.Unlock()

	h.logger.Info(ctx, "hub initialized")
	return nil
}

// Start transitions the hub to running and starts every provider
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case StateUninitialized:
		h.mu.Unlock()
		return errors.ErrNotInitialized
	case StateRunning:
		h.mu.Unlock()
		return errors.ErrAlreadyRunning
	}
	reg := h.registry
	h.mu.Unlock()

	if err := reg.StartAll(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.state = StateRunning
	h.mu.Unlock()

	h.logger.Info(ctx, "hub started")
	return nil
}

// Stop halts every provider and resets the hub to its unwired starting
// state: processors are cleared and the service and registry are detached.
// A stopped hub must be rewired before reuse.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateUninitialized {
		h.mu.Unlock()
		return nil
	}
	reg := h.registry
	h.mu.Unlock()

	var stopErr error
	if reg != nil {
		stopErr = reg.StopAllProviders(ctx)
		reg.ClearProcessors()
	}

	h.mu.Lock()
	h.state = StateUninitialized
	h.service = nil
	h.registry = nil
	h.mu.Unlock()

	h.logger.Info(ctx, "hub stopped")
	return stopErr
}

// ProcessNotification runs a notification through the full pipeline:
// processors in registration order, persistence, then concurrent handler
// fan-out. Returns true only when the notification was persisted; handler
// failures are isolated and never affect the result.
func (h *Hub) ProcessNotification(ctx context.Context, notification *core.Notification) (bool, error) {
	h.mu.RLock()
	if h.state != StateRunning {
		h.mu.RUnlock()
		return false, errors.ErrNotRunning
	}
	svc := h.service
	reg := h.registry
	h.mu.RUnlock()

	if notification == nil {
		return false, errors.ErrInvalidNotification
	}

	ctx, span := h.telemetry.StartSpan(ctx, "hub.process_notification")
	defer span.End()
	span.SetAttributes(attribute.String("notification.type", string(notification.Type)))
	start := time.Now()
	defer func() { h.telemetry.RecordDuration(ctx, time.Since(start)) }()

	original := notification

	// Matching processors run sequentially; a failing processor is skipped
	// and the notification continues unchanged.
	for _, p := range reg.ProcessorsFor(notification) {
		transformed, err := p.Process(ctx, notification)
		if err != nil {
			h.logger.Warn(ctx, "processor failed, skipping",
				"processor_id", p.ID(), "error", err)
			continue
		}
		if transformed != nil {
			notification = transformed
		}
	}

	id, err := svc.CreateNotification(ctx, notification)
	if err != nil {
		h.telemetry.RecordPersistFailure(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return false, err
	}
	h.telemetry.RecordProcessed(ctx, string(notification.Type))

	// Callers hold the original pointer; make the assigned ID visible on it
	// even when a processor swapped the instance.
	original.ID = id

	h.dispatchHandlers(ctx, reg, notification)

	h.logger.Debug(ctx, "notification processed", "id", id, "type", notification.Type)
	return true, nil
}

// ProcessNotificationBatch processes notifications concurrently and returns
// a per-notification success flag in input order
func (h *Hub) ProcessNotificationBatch(ctx context.Context, notifications []*core.Notification) ([]bool, error) {
	if h.State() != StateRunning {
		return nil, errors.ErrNotRunning
	}

	results := make([]bool, len(notifications))
	var wg sync.WaitGroup
	for i, n := range notifications {
		wg.Add(1)
		go func(i int, n *core.Notification) {
			defer wg.Done()
			ok, err := h.ProcessNotification(ctx, n)
			if err != nil {
				h.logger.Warn(ctx, "batch notification failed", "index", i, "error", err)
			}
			results[i] = ok
		}(i, n)
	}
	wg.Wait()
	return results, nil
}

// dispatchHandlers fans the notification out to every matching handler
// concurrently. Each handler runs isolated: an error or panic in one never
// reaches the others or the caller.
func (h *Hub) dispatchHandlers(ctx context.Context, reg *registry.Registry, notification *core.Notification) {
	handlers := reg.HandlersFor(notification)
	if len(handlers) == 0 {
		return
	}

	begin := time.Now()
	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(hd registry.Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					h.telemetry.RecordHandlerFailure(ctx, hd.ID())
					h.logger.Error(ctx, "handler panicked",
						"handler_id", hd.ID(), "panic", r)
				}
			}()

			// Re-checked at invocation: handler state may have changed
			// since the selection scan.
			if !hd.CanHandle(notification) {
				return
			}

			hctx := ctx
			if h.handlerTimeout > 0 {
				var cancel context.CancelFunc
				hctx, cancel = context.WithTimeout(ctx, h.handlerTimeout)
				defer cancel()
			}

			if err := hd.Handle(hctx, notification.Clone()); err != nil {
				h.telemetry.RecordHandlerFailure(ctx, hd.ID())
				h.logger.Error(ctx, "handler delivery failed",
					"handler_id", hd.ID(), "error", err)
			}
		}(handler)
	}
	wg.Wait()

	h.logger.Trace(ctx, begin, func() (string, int64) {
		return "handler fan-out", int64(len(handlers))
	}, nil)
}

// emit receives notifications from subscribed providers and feeds them into
// the pipeline. Failures are logged; a provider cannot observe them.
func (h *Hub) emit(notification *core.Notification) {
	ctx := context.Background()
	if _, err := h.ProcessNotification(ctx, notification); err != nil {
		h.logger.Warn(ctx, "provider emission dropped", "error", err)
	}
}
