package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/task"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"
)

func TestSubmitTaskCacheHitShortCircuitsWithoutEnqueueing(t *testing.T) {
	ctx := context.Background()
	orch := &fakeOrchestrator{}
	a := newTestApp(orch, nil)

	params := value.Map{"width": value.NewNumber(100)}
	fp, err := fingerprintFor("render", params)
	require.NoError(t, err)
	require.NoError(t, a.Cache.Put(ctx, fp, "render", "wf-cached", json.RawMessage(`{}`), 0))

	tk, err := a.SubmitTask(ctx, SubmitRequest{Type: "render", Priority: resources.PriorityMedium, Parameters: params})
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, tk.Status)
	assert.Equal(t, "wf-cached", tk.WorkflowID)

	depth, err := queueDepthForTest(ctx, a, resources.PriorityMedium)
	require.NoError(t, err)
	assert.Zero(t, depth, "a cache hit must not enqueue the task")
}

func TestSubmitTaskMissEnqueuesAndPublishes(t *testing.T) {
	ctx := context.Background()
	orch := &fakeOrchestrator{}
	fb := newFakeBus()
	a := newTestApp(orch, fb)

	tk, err := a.SubmitTask(ctx, SubmitRequest{
		Type:       "render",
		Priority:   resources.PriorityMedium,
		Parameters: value.Map{"width": value.NewNumber(100)},
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, tk.Status)
	assert.NotEmpty(t, tk.Fingerprint)

	loaded, ok, err := task.LoadTask(ctx, a.Store, tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.StatusPending, loaded.Status)

	require.Len(t, fb.log, 1)
	assert.Equal(t, "task-submissions", fb.log[0].topic)
}

func TestSubmitTaskSecondSubmissionWhileFirstIsReservedReturnsExistingTask(t *testing.T) {
	ctx := context.Background()
	orch := &fakeOrchestrator{}
	a := newTestApp(orch, nil)

	params := value.Map{"width": value.NewNumber(42)}
	first, err := a.SubmitTask(ctx, SubmitRequest{Type: "render", Priority: resources.PriorityMedium, Parameters: params})
	require.NoError(t, err)

	second, err := a.SubmitTask(ctx, SubmitRequest{Type: "render", Priority: resources.PriorityMedium, Parameters: params})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "a second identical submission while the first holds the reservation must not dispatch a duplicate")
}

func TestCancelTaskRemovesFromQueueAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	orch := &fakeOrchestrator{}
	fb := newFakeBus()
	a := newTestApp(orch, fb)

	tk, err := a.SubmitTask(ctx, SubmitRequest{Type: "render", Priority: resources.PriorityHigh, Parameters: value.Map{}})
	require.NoError(t, err)

	ok, err := a.CancelTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, found, err := task.LoadTask(ctx, a.Store, tk.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, task.StatusCancelled, loaded.Status)

	depth, err := queueDepthForTest(ctx, a, resources.PriorityHigh)
	require.NoError(t, err)
	assert.Zero(t, depth, "cancelling a pending task must remove it from its lane")

	ok, err = a.CancelTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.False(t, ok, "cancelling an already-terminal task must be a no-op")

	require.Len(t, fb.log, 2) // submission + cancellation
	assert.Equal(t, "task-cancellations", fb.log[1].topic)
}

func TestCancelTaskCancelsDispatchedWorkflow(t *testing.T) {
	ctx := context.Background()
	orch := &fakeOrchestrator{}
	a := newTestApp(orch, nil)

	tk := task.New("render", resources.PriorityHigh, value.Map{}, 0)
	tk.Status = task.StatusRunning
	tk.WorkflowID = "task-abc"
	require.NoError(t, task.SaveTask(ctx, a.Store, tk))

	ok, err := a.CancelTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, orch.cancelled, "task-abc")
}

func TestGetTaskStatusUnknownID(t *testing.T) {
	a := newTestApp(&fakeOrchestrator{}, nil)
	_, ok, err := a.GetTaskStatus(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func queueDepthForTest(ctx context.Context, a *App, p resources.Priority) (int64, error) {
	return a.Store.ZCount(ctx, "task:queue:"+string(p), 0, 1e18)
}
