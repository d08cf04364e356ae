package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/task"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"
)

func TestApplyWorkflowEventResolvesRunningTaskToCompleted(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(&fakeOrchestrator{}, nil)

	tk := task.New("render", resources.PriorityMedium, value.Map{}, 0)
	tk.Status = task.StatusRunning
	tk.WorkflowID = "task-xyz"
	tk.Fingerprint = "fp-evt"
	require.NoError(t, task.SaveTask(ctx, a.Store, tk))
	won, _, err := a.Cache.Reserve(ctx, "fp-evt", tk.ID)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, a.applyWorkflowEvent(ctx, workflowEvent{
		WorkflowID: "task-xyz",
		TaskID:     tk.ID,
		Status:     "Succeeded",
	}))

	loaded, ok, err := task.LoadTask(ctx, a.Store, tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.StatusCompleted, loaded.Status)
	require.NotNil(t, loaded.CompletedAt)

	_, hit, err := a.Cache.Get(ctx, "fp-evt")
	require.NoError(t, err)
	assert.True(t, hit, "a succeeded workflow event should update the cache entry")

	wonAgain, _, err := a.Cache.Reserve(ctx, "fp-evt", "someone-else")
	require.NoError(t, err)
	assert.True(t, wonAgain, "the reservation must be released once the workflow resolves")
}

func TestApplyWorkflowEventNeverPromotesCancelledToCompleted(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(&fakeOrchestrator{}, nil)

	tk := task.New("render", resources.PriorityMedium, value.Map{}, 0)
	tk.Status = task.StatusCancelled
	tk.WorkflowID = "task-raced"
	require.NoError(t, task.SaveTask(ctx, a.Store, tk))

	require.NoError(t, a.applyWorkflowEvent(ctx, workflowEvent{
		WorkflowID: "task-raced",
		TaskID:     tk.ID,
		Status:     "Succeeded",
	}))

	loaded, ok, err := task.LoadTask(ctx, a.Store, tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.StatusCancelled, loaded.Status, "a cancelled task must never be promoted to completed by a late workflow event")
}

func TestApplyWorkflowEventFailure(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(&fakeOrchestrator{}, nil)

	tk := task.New("render", resources.PriorityMedium, value.Map{}, 0)
	tk.Status = task.StatusRunning
	tk.WorkflowID = "task-fail"
	require.NoError(t, task.SaveTask(ctx, a.Store, tk))

	require.NoError(t, a.applyWorkflowEvent(ctx, workflowEvent{
		WorkflowID: "task-fail",
		TaskID:     tk.ID,
		Status:     "Failed",
		Message:    "exit code 1",
	}))

	loaded, ok, err := task.LoadTask(ctx, a.Store, tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.StatusFailed, loaded.Status)
	assert.Equal(t, "exit code 1", loaded.Error)
}
