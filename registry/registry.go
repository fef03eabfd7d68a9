// Package registry keeps the pluggable pieces of the notification pipeline:
// providers that originate notifications, handlers that deliver them to
// external sinks, and processors that transform them in flight.
package registry

import (
	"context"
	"sync"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
)

// Provider originates notifications and has a managed lifecycle. Emitted
// notifications flow through the callback given to Subscribe; providers never
// talk to the pipeline directly.
type Provider interface {
	// ID returns the unique provider identifier
	ID() string
	// Types returns the notification types this provider may emit
	Types() []core.Type
	// Subscribe registers the callback that receives emitted notifications
	Subscribe(emit func(*core.Notification))
	// Initialize prepares the provider for operation
	Initialize(ctx context.Context) error
	// Start begins notification production
	Start(ctx context.Context) error
	// Stop halts notification production and releases resources
	Stop(ctx context.Context) error
}

// Handler delivers notifications to an external sink
type Handler interface {
	// ID returns the unique handler identifier
	ID() string
	// CanHandle reports whether this handler wants the notification
	CanHandle(notification *core.Notification) bool
	// Handle delivers the notification
	Handle(ctx context.Context, notification *core.Notification) error
}

// Processor transforms notifications before persistence. Returning an error
// from Process leaves the notification unchanged for the rest of the pipeline.
type Processor interface {
	// ID returns the unique processor identifier
	ID() string
	// ShouldProcess reports whether this processor wants the notification
	ShouldProcess(notification *core.Notification) bool
	// Process returns the transformed notification
	Process(ctx context.Context, notification *core.Notification) (*core.Notification, error)
}

// Registry is a thread-safe catalogue of providers, handlers and processors.
// Handlers and processors are consulted in registration order.
type Registry struct {
	mu sync.RWMutex

	providers      map[string]Provider
	handlers       map[string]Handler
	processors     map[string]Processor
	handlerOrder   []string
	processorOrder []string

	// emit is handed to every provider via Subscribe once bound
	emit func(*core.Notification)

	logger logger.Interface
}

// New creates an empty registry
func New(log logger.Interface) *Registry {
	if log == nil {
		log = logger.Default
	}
	return &Registry{
		providers:  make(map[string]Provider),
		handlers:   make(map[string]Handler),
		processors: make(map[string]Processor),
		logger:     log,
	}
}

// RegisterProvider adds a provider. Registering an ID twice replaces the
// previous provider with a warning.
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil || provider.ID() == "" {
		return errors.ErrInvalidConfig
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[provider.ID()]; exists {
		r.logger.Warn(context.Background(), "provider replaced", "provider_id", provider.ID())
	}
	r.providers[provider.ID()] = provider
	if r.emit != nil {
		provider.Subscribe(r.emit)
	}
	return nil
}

// BindEmit sets the emission callback and subscribes every registered
// provider to it. Providers registered later are subscribed on registration.
func (r *Registry) BindEmit(emit func(*core.Notification)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.emit = emit
	for _, provider := range r.providers {
		provider.Subscribe(emit)
	}
}

// DeregisterProvider stops and removes a provider. A stop failure is logged
// but the provider is removed regardless.
func (r *Registry) DeregisterProvider(ctx context.Context, id string) error {
	r.mu.Lock()
	provider, exists := r.providers[id]
	if exists {
		delete(r.providers, id)
	}
	r.mu.Unlock()

	if !exists {
		return errors.ErrNotFound
	}
	if err := provider.Stop(ctx); err != nil {
		r.logger.Error(ctx, "stopping deregistered provider failed", "provider_id", id, "error", err)
	}
	return nil
}

// GetProvider returns a provider by ID
func (r *Registry) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[id]
	return provider, ok
}

// Providers returns a snapshot of all registered providers
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		list = append(list, p)
	}
	return list
}

// RegisterHandler adds a handler. Registering an ID twice replaces the
// previous handler in place, keeping its position in the order.
func (r *Registry) RegisterHandler(handler Handler) error {
	if handler == nil || handler.ID() == "" {
		return errors.ErrInvalidConfig
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[handler.ID()]; exists {
		r.logger.Warn(context.Background(), "handler replaced", "handler_id", handler.ID())
	} else {
		r.handlerOrder = append(r.handlerOrder, handler.ID())
	}
	r.handlers[handler.ID()] = handler
	return nil
}

// DeregisterHandler removes a handler
func (r *Registry) DeregisterHandler(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; !exists {
		return errors.ErrNotFound
	}
	delete(r.handlers, id)
	r.handlerOrder = removeID(r.handlerOrder, id)
	return nil
}

// HandlersFor returns the handlers accepting the notification, in
// registration order
func (r *Registry) HandlersFor(notification *core.Notification) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Handler, 0, len(r.handlerOrder))
	for _, id := range r.handlerOrder {
		h := r.handlers[id]
		if h.CanHandle(notification) {
			matched = append(matched, h)
		}
	}
	return matched
}

// RegisterProcessor adds a processor. Registering an ID twice replaces the
// previous processor in place, keeping its position in the order.
func (r *Registry) RegisterProcessor(processor Processor) error {
	if processor == nil || processor.ID() == "" {
		return errors.ErrInvalidConfig
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.processors[processor.ID()]; exists {
		r.logger.Warn(context.Background(), "processor replaced", "processor_id", processor.ID())
	} else {
		r.processorOrder = append(r.processorOrder, processor.ID())
	}
	r.processors[processor.ID()] = processor
	return nil
}

// DeregisterProcessor removes a processor
func (r *Registry) DeregisterProcessor(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.processors[id]; !exists {
		return errors.ErrNotFound
	}
	delete(r.processors, id)
	r.processorOrder = removeID(r.processorOrder, id)
	return nil
}

// ProcessorsFor returns the processors accepting the notification, in
// registration order
func (r *Registry) ProcessorsFor(notification *core.Notification) []Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Processor, 0, len(r.processorOrder))
	for _, id := range r.processorOrder {
		p := r.processors[id]
		if p.ShouldProcess(notification) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Processors returns all processors in registration order
func (r *Registry) Processors() []Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Processor, 0, len(r.processorOrder))
	for _, id := range r.processorOrder {
		list = append(list, r.processors[id])
	}
	return list
}

// ClearProcessors drops every registered processor
func (r *Registry) ClearProcessors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors = make(map[string]Processor)
	r.processorOrder = nil
}

// InitializeAll initializes every provider concurrently. The result succeeds
// only if every provider succeeds; failures are joined.
func (r *Registry) InitializeAll(ctx context.Context) error {
	return r.eachProvider(ctx, "initialize", func(ctx context.Context, p Provider) error {
		return p.Initialize(ctx)
	})
}

// StartAll starts every provider concurrently
func (r *Registry) StartAll(ctx context.Context) error {
	return r.eachProvider(ctx, "start", func(ctx context.Context, p Provider) error {
		return p.Start(ctx)
	})
}

// StopAllProviders stops every provider concurrently
func (r *Registry) StopAllProviders(ctx context.Context) error {
	return r.eachProvider(ctx, "stop", func(ctx context.Context, p Provider) error {
		return p.Stop(ctx)
	})
}

// eachProvider fans the operation out over all providers and aggregates
// failures. Every provider is attempted even when some fail.
func (r *Registry) eachProvider(ctx context.Context, op string, fn func(context.Context, Provider) error) error {
	providers := r.Providers()
	if len(providers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(providers))
	for i, provider := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			if err := fn(ctx, p); err != nil {
				errs[i] = errors.Wrapf(err, errors.CodeProviderError, errors.CategoryLifecycle,
					"provider %s %s failed", p.ID(), op)
				r.logger.Error(ctx, "provider operation failed",
					"provider_id", p.ID(), "operation", op, "error", err)
			}
		}(i, provider)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	return nil
}

func removeID(order []string, id string) []string {
	kept := order[:0]
	for _, v := range order {
		if v != id {
			kept = append(kept, v)
		}
	}
	return kept
}
