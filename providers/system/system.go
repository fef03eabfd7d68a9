// Package system provides the built-in system event provider. It watches
// process health on a ticker and emits system_event notifications through
// the subscribed pipeline callback, and exposes Emit for components that
// want to raise system events directly.
package system

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
)

const providerID = "system"

// Config tunes the system provider
type Config struct {
	// CheckInterval is how often health is sampled (default 1m)
	CheckInterval time.Duration
	// GoroutineThreshold raises a warning when exceeded (0 = disabled)
	GoroutineThreshold int
	// HeapThresholdBytes raises a warning when exceeded (0 = disabled)
	HeapThresholdBytes uint64
}

// Provider emits system health notifications
type Provider struct {
	config Config
	logger logger.Interface

	mu      sync.Mutex
	emit    func(*core.Notification)
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates the system provider
func New(config Config, log logger.Interface) *Provider {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if log == nil {
		log = logger.Default
	}
	return &Provider{
		config: config,
		logger: log,
	}
}

// ID returns the provider identifier
func (p *Provider) ID() string { return providerID }

// Types returns the notification types this provider emits
func (p *Provider) Types() []core.Type {
	return []core.Type{core.TypeSystemEvent}
}

// Subscribe registers the callback receiving emitted notifications
func (p *Provider) Subscribe(emit func(*core.Notification)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit = emit
}

// Initialize verifies a subscriber is attached
func (p *Provider) Initialize(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.emit == nil {
		return errors.ErrMissingWiring
	}
	return nil
}

// Start launches the health check loop
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(loopCtx)

	p.logger.Info(ctx, "system provider started", "check_interval", p.config.CheckInterval)
	return nil
}

// Stop halts the health check loop and waits for it to exit
func (p *Provider) Stop(_ context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Emit raises a system event notification through the subscribed callback
func (p *Provider) Emit(title, message string, priority core.Priority) error {
	p.mu.Lock()
	emit := p.emit
	p.mu.Unlock()

	if emit == nil {
		return errors.ErrMissingWiring
	}
	emit(core.NewNotification(core.TypeSystemEvent, title, message).
		WithSource(providerID).
		WithPriority(priority))
	return nil
}

func (p *Provider) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Provider) check(ctx context.Context) {
	if p.config.GoroutineThreshold > 0 {
		if n := runtime.NumGoroutine(); n > p.config.GoroutineThreshold {
			p.report(ctx, "Goroutine count elevated",
				fmt.Sprintf("process is running %d goroutines (threshold %d)", n, p.config.GoroutineThreshold))
		}
	}
	if p.config.HeapThresholdBytes > 0 {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		if stats.HeapAlloc > p.config.HeapThresholdBytes {
			p.report(ctx, "Heap usage elevated",
				fmt.Sprintf("heap allocation at %d bytes (threshold %d)", stats.HeapAlloc, p.config.HeapThresholdBytes))
		}
	}
}

func (p *Provider) report(ctx context.Context, title, message string) {
	if err := p.Emit(title, message, core.PriorityHigh); err != nil {
		p.logger.Warn(ctx, "system health notification failed", "error", err)
	}
}
