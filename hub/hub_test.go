package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/registry"
	"github.com/kart-io/alerthub/service"
	"github.com/kart-io/alerthub/store"
	"github.com/kart-io/alerthub/store/memory"
)

type recordingHandler struct {
	id      string
	accepts func(*core.Notification) bool

	mu      sync.Mutex
	handled []*core.Notification
	err     error
	panics  bool
}

func (h *recordingHandler) ID() string { return h.id }

func (h *recordingHandler) CanHandle(n *core.Notification) bool {
	if h.accepts == nil {
		return true
	}
	return h.accepts(n)
}

func (h *recordingHandler) Handle(_ context.Context, n *core.Notification) error {
	if h.panics {
		panic("handler blew up")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, n)
	return h.err
}

func (h *recordingHandler) handledCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

type taggingProcessor struct {
	id      string
	tag     string
	accepts func(*core.Notification) bool
	err     error
}

func (p *taggingProcessor) ID() string { return p.id }

func (p *taggingProcessor) ShouldProcess(n *core.Notification) bool {
	if p.accepts == nil {
		return true
	}
	return p.accepts(n)
}

func (p *taggingProcessor) Process(_ context.Context, n *core.Notification) (*core.Notification, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := n.Clone()
	out.Title = out.Title + p.tag
	return out, nil
}

type stubProvider struct {
	id   string
	emit func(*core.Notification)
}

func (p *stubProvider) ID() string { return p.id }

func (p *stubProvider) Types() []core.Type { return []core.Type{core.TypeSystemEvent} }

func (p *stubProvider) Subscribe(emit func(*core.Notification)) {
	p.emit = emit
}
func (p *stubProvider) Initialize(context.Context) error { return nil }

func (p *stubProvider) Start(context.Context) error { return nil }

func (p *stubProvider) Stop(context.Context) error { return nil }

func newRunningHub(t *testing.T) (*Hub, *registry.Registry, *service.Service) {
	t.Helper()
	ctx := context.Background()

	svc := service.New(service.Options{Store: memory.New(100), Logger: logger.Discard})
	require.NoError(t, svc.Initialize(ctx, nil))

	reg := registry.New(logger.Discard)

	h := New(Options{Logger: logger.Discard})
	h.SetService(svc)
	h.SetRegistry(reg)
	require.NoError(t, h.Initialize(ctx))
	require.NoError(t, h.Start(ctx))
	return h, reg, svc
}

func TestInitializeRequiresWiring(t *testing.T) {
	ctx := context.Background()

	h := New(Options{Logger: logger.Discard})
	assert.ErrorIs(t, h.Initialize(ctx), errors.ErrMissingWiring)

	svc := service.New(service.Options{Store: memory.New(10), Logger: logger.Discard})
	require.NoError(t, svc.Initialize(ctx, nil))
	h.SetService(svc)
	assert.ErrorIs(t, h.Initialize(ctx), errors.ErrMissingWiring)

	h.SetRegistry(registry.New(logger.Discard))
	assert.NoError(t, h.Initialize(ctx))
	assert.Equal(t, StateInitialized, h.State())
}

func TestStartRequiresInitialize(t *testing.T) {
	h := New(Options{Logger: logger.Discard})
	assert.ErrorIs(t, h.Start(context.Background()), errors.ErrNotInitialized)
}

func TestStartTwiceFails(t *testing.T) {
	h, _, _ := newRunningHub(t)
	assert.ErrorIs(t, h.Start(context.Background()), errors.ErrAlreadyRunning)
}

func TestProcessBeforeRunningFails(t *testing.T) {
	h := New(Options{Logger: logger.Discard})
	_, err := h.ProcessNotification(context.Background(), core.NewNotification(core.TypeInfo, "t", "m"))
	assert.ErrorIs(t, err, errors.ErrNotRunning)
}

func TestProcessPersistsAndReportsTrue(t *testing.T) {
	h, _, svc := newRunningHub(t)
	ctx := context.Background()

	ok, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := svc.GetNotificationCount(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessorsRunInRegistrationOrder(t *testing.T) {
	h, reg, svc := newRunningHub(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterProcessor(&taggingProcessor{id: "p1", tag: "-one"}))
	require.NoError(t, reg.RegisterProcessor(&taggingProcessor{id: "p2", tag: "-two"}))

	ok, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "base", "m"))
	require.NoError(t, err)
	require.True(t, ok)

	list, err := svc.GetNotifications(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "base-one-two", list[0].Title)
}

func TestProcessorPredicateGatesExecution(t *testing.T) {
	h, reg, svc := newRunningHub(t)
	ctx := context.Background()

	redactor := &taggingProcessor{id: "redactor", tag: "-redacted", accepts: func(n *core.Notification) bool {
		return n.Type == core.TypeGovernanceViolation
	}}
	require.NoError(t, reg.RegisterProcessor(redactor))

	ok, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "public message", "m"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.ProcessNotification(ctx, core.NewNotification(core.TypeGovernanceViolation, "violation", "m"))
	require.NoError(t, err)
	require.True(t, ok)

	// the declining processor must not touch the info notification
	list, err := svc.GetNotifications(ctx, &store.Filter{Types: []core.Type{core.TypeInfo}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "public message", list[0].Title)

	list, err = svc.GetNotifications(ctx, &store.Filter{Types: []core.Type{core.TypeGovernanceViolation}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "violation-redacted", list[0].Title)
}

func TestFailingProcessorIsSkipped(t *testing.T) {
	h, reg, svc := newRunningHub(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterProcessor(&taggingProcessor{id: "bad", err: fmt.Errorf("nope")}))
	require.NoError(t, reg.RegisterProcessor(&taggingProcessor{id: "good", tag: "-ok"}))

	ok, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "base", "m"))
	require.NoError(t, err)
	require.True(t, ok)

	list, err := svc.GetNotifications(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "base-ok", list[0].Title)
}

func TestHandlerFanOutRespectsPredicate(t *testing.T) {
	h, reg, _ := newRunningHub(t)
	ctx := context.Background()

	urgent := &recordingHandler{id: "urgent", accepts: func(n *core.Notification) bool {
		return n.Priority == core.PriorityUrgent
	}}
	all := &recordingHandler{id: "all"}
	require.NoError(t, reg.RegisterHandler(urgent))
	require.NoError(t, reg.RegisterHandler(all))

	_, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	require.NoError(t, err)

	assert.Equal(t, 0, urgent.handledCount())
	assert.Equal(t, 1, all.handledCount())
}

func TestHandlerPredicateRecheckedAtInvocation(t *testing.T) {
	h, reg, _ := newRunningHub(t)
	ctx := context.Background()

	// accepts during the selection scan, declines when invoked
	calls := 0
	var mu sync.Mutex
	flaky := &recordingHandler{id: "flaky", accepts: func(*core.Notification) bool {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return calls == 1
	}}
	require.NoError(t, reg.RegisterHandler(flaky))

	ok, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 0, flaky.handledCount())
}

func TestProviderEmissionFlowsThroughPipeline(t *testing.T) {
	ctx := context.Background()

	svc := service.New(service.Options{Store: memory.New(100), Logger: logger.Discard})
	require.NoError(t, svc.Initialize(ctx, nil))

	reg := registry.New(logger.Discard)
	provider := &stubProvider{id: "stub"}
	require.NoError(t, reg.RegisterProvider(provider))

	h := New(Options{Logger: logger.Discard})
	h.SetService(svc)
	h.SetRegistry(reg)
	require.NoError(t, h.Initialize(ctx))
	require.NoError(t, h.Start(ctx))

	// Initialize subscribed the provider; its emissions land in the store
	require.NotNil(t, provider.emit)
	provider.emit(core.NewNotification(core.TypeSystemEvent, "heap elevated", "m"))

	list, err := svc.GetNotifications(ctx, &store.Filter{Types: []core.Type{core.TypeSystemEvent}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "heap elevated", list[0].Title)
}

func TestHandlerFailuresAreIsolated(t *testing.T) {
	h, reg, _ := newRunningHub(t)
	ctx := context.Background()

	failing := &recordingHandler{id: "failing", err: fmt.Errorf("sink down")}
	panicking := &recordingHandler{id: "panicking", panics: true}
	healthy := &recordingHandler{id: "healthy"}
	require.NoError(t, reg.RegisterHandler(failing))
	require.NoError(t, reg.RegisterHandler(panicking))
	require.NoError(t, reg.RegisterHandler(healthy))

	ok, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, healthy.handledCount())
}

func TestProcessBatch(t *testing.T) {
	h, _, svc := newRunningHub(t)
	ctx := context.Background()

	batch := []*core.Notification{
		core.NewNotification(core.TypeInfo, "a", "m"),
		core.NewNotification(core.TypeInfo, "b", "m"),
		nil, // invalid entry fails without sinking the batch
		core.NewNotification(core.TypeInfo, "c", "m"),
	}

	results, err := h.ProcessNotificationBatch(ctx, batch)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, []bool{true, true, false, true}, results)

	count, err := svc.GetNotificationCount(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

type traceRecorder struct {
	logger.Interface

	mu         sync.Mutex
	operations []string
	counts     []int64
}

func (r *traceRecorder) LogMode(logger.LogLevel) logger.Interface { return r }

func (r *traceRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	operation, count := fc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, operation)
	r.counts = append(r.counts, count)
}

func TestHandlerFanOutIsTraced(t *testing.T) {
	ctx := context.Background()

	svc := service.New(service.Options{Store: memory.New(100), Logger: logger.Discard})
	require.NoError(t, svc.Initialize(ctx, nil))

	reg := registry.New(logger.Discard)
	require.NoError(t, reg.RegisterHandler(&recordingHandler{id: "sink"}))

	recorder := &traceRecorder{Interface: logger.Discard}
	h := New(Options{Logger: recorder})
	h.SetService(svc)
	h.SetRegistry(reg)
	require.NoError(t, h.Initialize(ctx))
	require.NoError(t, h.Start(ctx))

	_, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	require.NoError(t, err)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Len(t, recorder.operations, 1)
	assert.Equal(t, "handler fan-out", recorder.operations[0])
	assert.Equal(t, int64(1), recorder.counts[0])
}

func TestStopResetsToUnwired(t *testing.T) {
	h, reg, _ := newRunningHub(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterProcessor(&taggingProcessor{id: "p"}))

	require.NoError(t, h.Stop(ctx))
	assert.Equal(t, StateUninitialized, h.State())
	assert.Empty(t, reg.Processors())

	// a stopped hub must be rewired before reuse
	assert.ErrorIs(t, h.Initialize(ctx), errors.ErrMissingWiring)

	_, err := h.ProcessNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	assert.ErrorIs(t, err, errors.ErrNotRunning)
}
