package app

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/bus"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/config"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/orchestrator"
)

type fakeOrchestrator struct {
	mu        sync.Mutex
	created   []orchestrator.WorkflowSpec
	cancelled []string
	failNext  bool
	nextID    int
}

func (f *fakeOrchestrator) CreateWorkflow(_ context.Context, spec orchestrator.WorkflowSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return "", assertErr("create workflow failed")
	}
	f.nextID++
	f.created = append(f.created, spec)
	return spec.Name, nil
}

func (f *fakeOrchestrator) GetWorkflow(context.Context, string, string) (*orchestrator.WorkflowStatus, error) {
	return nil, nil
}

func (f *fakeOrchestrator) PatchWorkflow(context.Context, string, string, map[string]interface{}) error {
	return nil
}

func (f *fakeOrchestrator) CancelWorkflow(_ context.Context, _, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, name)
	return true, nil
}

func (f *fakeOrchestrator) GetAutoscaler(context.Context, string, string) (*orchestrator.AutoscalerSpec, error) {
	return nil, nil
}

func (f *fakeOrchestrator) PatchAutoscalerReplicas(context.Context, string, string, int32, int32) error {
	return nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// fakeBus is an in-process MessageBus: Publish appends to a log and
// immediately fans out to any handler Subscribe has registered for
// that topic, since tests run synchronously within one goroutine.
type fakeBus struct {
	mu       sync.Mutex
	handlers map[string][]bus.Handler
	log      []publishedMessage
}

type publishedMessage struct {
	topic   string
	payload interface{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string][]bus.Handler)}
}

func (f *fakeBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	f.mu.Lock()
	handlers := append([]bus.Handler(nil), f.handlers[topic]...)
	f.log = append(f.log, publishedMessage{topic: topic, payload: payload})
	f.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for _, h := range handlers {
		h(ctx, data)
	}
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, topic string, handler bus.Handler) error {
	f.mu.Lock()
	f.handlers[topic] = append(f.handlers[topic], handler)
	f.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func newTestApp(orch orchestrator.Orchestrator, msgBus MessageBus) *App {
	cfg := &config.Config{Namespace: "test-ns"}
	store := kvstore.NewMemoryStore()
	return New(cfg, store, orch, msgBus)
}
