package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"
)

type fakeExecutor struct {
	taskType string
	calls    int32
	fail     bool
}

func (f *fakeExecutor) Type() string { return f.taskType }

func (f *fakeExecutor) Execute(_ context.Context, _ *Task) (*ExecutionResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail {
		return FailureResult("boom", nil), nil
	}
	return SuccessResult(nil), nil
}

func (f *fakeExecutor) Validate(_ *Task) error { return nil }

func testConfig() SchedulerConfig {
	cfg := DefaultSchedulerConfig()
	cfg.ScanInterval = 5 * time.Millisecond
	cfg.CleanupInterval = time.Hour
	for p, lane := range cfg.Lanes {
		lane.RateLimit = 0
		cfg.Lanes[p] = lane
	}
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestSchedulerDispatchesSuccessfulTask(t *testing.T) {
	store := kvstore.NewMemoryStore()
	sched := NewScheduler(store, testConfig())
	exec := &fakeExecutor{taskType: "render"}
	sched.RegisterExecutor(exec)

	tk := New("render", resources.PriorityMedium, value.Map{}, 3)
	require.NoError(t, Submit(context.Background(), store, tk))

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	defer func() {
		cancel()
		sched.Stop()
	}()

	waitFor(t, time.Second, func() bool {
		loaded, ok, err := LoadTask(context.Background(), store, tk.ID)
		return err == nil && ok && loaded.Status == StatusCompleted
	})
	assert.GreaterOrEqual(t, atomic.LoadInt32(&exec.calls), int32(1))
}

func TestSchedulerRetriesThenFails(t *testing.T) {
	store := kvstore.NewMemoryStore()
	cfg := testConfig()
	cfg.RetryBaseDelay = time.Millisecond
	sched := NewScheduler(store, cfg)
	exec := &fakeExecutor{taskType: "render", fail: true}
	sched.RegisterExecutor(exec)

	tk := New("render", resources.PriorityMedium, value.Map{}, 2)
	require.NoError(t, Submit(context.Background(), store, tk))

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	defer func() {
		cancel()
		sched.Stop()
	}()

	waitFor(t, 2*time.Second, func() bool {
		loaded, ok, err := LoadTask(context.Background(), store, tk.ID)
		return err == nil && ok && loaded.Status == StatusFailed
	})
	loaded, _, err := LoadTask(context.Background(), store, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.RetryCount)
}

func TestSchedulerRespectsLaneConcurrency(t *testing.T) {
	store := kvstore.NewMemoryStore()
	cfg := testConfig()
	lane := cfg.Lanes[resources.PriorityLow]
	lane.Concurrency = 1
	cfg.Lanes[resources.PriorityLow] = lane
	sched := NewScheduler(store, cfg)

	var mu sync.Mutex
	maxConcurrent := 0
	current := 0
	blockCh := make(chan struct{})

	exec := blockingExecutor{
		taskType: "slow",
		onStart: func() {
			mu.Lock()
			current++
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()
		},
		onEnd: func() {
			mu.Lock()
			current--
			mu.Unlock()
		},
		release: blockCh,
	}
	sched.RegisterExecutor(&exec)

	for i := 0; i < 3; i++ {
		tk := New("slow", resources.PriorityLow, value.Map{}, 0)
		require.NoError(t, Submit(context.Background(), store, tk))
	}

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	close(blockCh)

	time.Sleep(50 * time.Millisecond)
	cancel()
	sched.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxConcurrent, 1)
}

type blockingExecutor struct {
	taskType string
	onStart  func()
	onEnd    func()
	release  chan struct{}
}

func (b *blockingExecutor) Type() string { return b.taskType }

func (b *blockingExecutor) Execute(ctx context.Context, _ *Task) (*ExecutionResult, error) {
	b.onStart()
	defer b.onEnd()
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return SuccessResult(nil), nil
}

func (b *blockingExecutor) Validate(_ *Task) error { return nil }
