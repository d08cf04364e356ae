package autoscaling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/orchestrator"
)

type fakeOrchestrator struct {
	mu          sync.Mutex
	autoscalers map[string]*orchestrator.AutoscalerSpec
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{autoscalers: make(map[string]*orchestrator.AutoscalerSpec)}
}

func (f *fakeOrchestrator) CreateWorkflow(context.Context, orchestrator.WorkflowSpec) (string, error) {
	return "", nil
}
func (f *fakeOrchestrator) GetWorkflow(context.Context, string, string) (*orchestrator.WorkflowStatus, error) {
	return nil, nil
}
func (f *fakeOrchestrator) PatchWorkflow(context.Context, string, string, map[string]interface{}) error {
	return nil
}
func (f *fakeOrchestrator) CancelWorkflow(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeOrchestrator) GetAutoscaler(_ context.Context, _, name string) (*orchestrator.AutoscalerSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.autoscalers[name]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeOrchestrator) PatchAutoscalerReplicas(_ context.Context, _, name string, minReplicas, maxReplicas int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.autoscalers[name]
	if !ok {
		return nil
	}
	a.MinReplicas = minReplicas
	a.MaxReplicas = maxReplicas
	a.Current = minReplicas
	return nil
}

func TestDependencyCascadeScalesDownstream(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orch := newFakeOrchestrator()
	orch.autoscalers["api"] = &orchestrator.AutoscalerSpec{Name: "api", Current: 10, MinReplicas: 1, MaxReplicas: 20}
	orch.autoscalers["worker"] = &orchestrator.AutoscalerSpec{Name: "worker", Current: 1, MinReplicas: 1, MaxReplicas: 50}

	require.NoError(t, SaveDependencies(ctx, store, []Dependency{{Service: "api", DependsOn: "worker", Ratio: 2}}))

	c := NewController(store, orch, DefaultConfig())
	c.ctx = ctx
	require.NoError(t, c.runDependencyCascade())

	worker, err := orch.GetAutoscaler(ctx, "", "worker")
	require.NoError(t, err)
	assert.Equal(t, int32(20), worker.Current)
}

func TestDependencyCascadeClampsToMax(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orch := newFakeOrchestrator()
	orch.autoscalers["api"] = &orchestrator.AutoscalerSpec{Name: "api", Current: 100, MinReplicas: 1, MaxReplicas: 200}
	orch.autoscalers["worker"] = &orchestrator.AutoscalerSpec{Name: "worker", Current: 1, MinReplicas: 1, MaxReplicas: 10}

	require.NoError(t, SaveDependencies(ctx, store, []Dependency{{Service: "api", DependsOn: "worker", Ratio: 1}}))

	c := NewController(store, orch, DefaultConfig())
	c.ctx = ctx
	require.NoError(t, c.runDependencyCascade())

	worker, err := orch.GetAutoscaler(ctx, "", "worker")
	require.NoError(t, err)
	assert.Equal(t, int32(10), worker.Current)
}

func TestPredictiveAnalysisProducesPrediction(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orch := newFakeOrchestrator()
	orch.autoscalers["api"] = &orchestrator.AutoscalerSpec{Name: "api", Current: 4, MinReplicas: 1, MaxReplicas: 10}
	require.NoError(t, TrackService(ctx, store, "api"))

	require.NoError(t, SaveLoadPatterns(ctx, store, "api", []LoadPattern{{Service: "api", ExpectedLoad: 0.4}}))

	c := NewController(store, orch, DefaultConfig())
	c.ctx = ctx
	require.NoError(t, c.runPredictiveAnalysis())

	pred, ok, err := LoadPrediction(ctx, store, "api")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(4), pred.PredictedReplicas, "ceil(maxReplicas=10 * expectedLoad=0.4) clamped to [1,10]")
	assert.Equal(t, 0.8, pred.Confidence, "no prior history defaults confidence to 0.8")
}

func TestPredictiveAnalysisIgnoresNonMatchingWindow(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orch := newFakeOrchestrator()
	orch.autoscalers["api"] = &orchestrator.AutoscalerSpec{Name: "api", Current: 4, MinReplicas: 1, MaxReplicas: 10}
	require.NoError(t, TrackService(ctx, store, "api"))

	wrongDay := (int(time.Now().UTC().Weekday()) + 1) % 7
	require.NoError(t, SaveLoadPatterns(ctx, store, "api", []LoadPattern{{Service: "api", DayOfWeek: &wrongDay, ExpectedLoad: 0.9}}))

	c := NewController(store, orch, DefaultConfig())
	c.ctx = ctx
	require.NoError(t, c.runPredictiveAnalysis())

	_, ok, err := LoadPrediction(ctx, store, "api")
	require.NoError(t, err)
	assert.False(t, ok, "a window that doesn't match the current day must not produce a prediction")
}

func TestApplyPredictionsPatchesOnlyAboveThresholdAndOnce(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orch := newFakeOrchestrator()
	orch.autoscalers["api"] = &orchestrator.AutoscalerSpec{Name: "api", Current: 4, MinReplicas: 1, MaxReplicas: 10}
	require.NoError(t, TrackService(ctx, store, "api"))
	require.NoError(t, SavePrediction(ctx, store, Prediction{
		Service: "api", GeneratedAt: time.Now(), CurrentReplicas: 4, PredictedReplicas: 8, Confidence: 0.9,
	}))

	c := NewController(store, orch, DefaultConfig())
	c.ctx = ctx
	require.NoError(t, c.applyPredictions())

	assert.Equal(t, int32(8), orch.autoscalers["api"].MinReplicas)
	pred, ok, err := LoadPrediction(ctx, store, "api")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pred.Applied)
	require.NotNil(t, pred.AppliedAt)

	orch.autoscalers["api"].MinReplicas = 1
	require.NoError(t, c.applyPredictions())
	assert.Equal(t, int32(1), orch.autoscalers["api"].MinReplicas, "an already-applied prediction must not be patched again")
}

func TestObserverRecordsScalingEvent(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orch := newFakeOrchestrator()
	orch.autoscalers["api"] = &orchestrator.AutoscalerSpec{Name: "api", Current: 3, MinReplicas: 1, MaxReplicas: 10}
	require.NoError(t, TrackService(ctx, store, "api"))

	c := NewController(store, orch, DefaultConfig())
	c.ctx = ctx

	require.NoError(t, c.observeScalingEvents())
	events, err := RecentEvents(ctx, store, 0)
	require.NoError(t, err)
	assert.Len(t, events, 0, "first observation establishes a baseline, not an event")

	orch.autoscalers["api"].Current = 6
	require.NoError(t, c.observeScalingEvents())
	events, err = RecentEvents(ctx, store, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "up", events[0].Direction)
}

func TestObserverClassifiesLimitedScale(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orch := newFakeOrchestrator()
	orch.autoscalers["api"] = &orchestrator.AutoscalerSpec{Name: "api", Current: 3, Desired: 10, Available: 5, MinReplicas: 1, MaxReplicas: 10}
	require.NoError(t, TrackService(ctx, store, "api"))

	c := NewController(store, orch, DefaultConfig())
	c.ctx = ctx

	require.NoError(t, c.observeScalingEvents()) // baseline
	orch.autoscalers["api"].Current = 5
	require.NoError(t, c.observeScalingEvents())

	events, err := RecentEvents(ctx, store, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "limited-scale", events[0].Direction, "desired > available must win over a plain up-classification")
}

func TestObserverDebouncesRepeatedEvents(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orch := newFakeOrchestrator()
	orch.autoscalers["api"] = &orchestrator.AutoscalerSpec{Name: "api", Current: 3, MinReplicas: 1, MaxReplicas: 10}
	require.NoError(t, TrackService(ctx, store, "api"))

	c := NewController(store, orch, DefaultConfig())
	c.ctx = ctx

	require.NoError(t, c.observeScalingEvents()) // baseline
	orch.autoscalers["api"].Current = 6
	require.NoError(t, c.observeScalingEvents()) // logs one "up" event

	orch.autoscalers["api"].Current = 9
	require.NoError(t, c.observeScalingEvents()) // within debounce window, must not log again

	events, err := RecentEvents(ctx, store, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "a second change inside the five-minute debounce window must not produce a second event")
}
