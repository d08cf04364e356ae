package app

import (
	"context"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/bus"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/cache"
	apperrors "github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/errors"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/metrics"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/task"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"
)

// workflowTaskType is excluded from result caching: a task that
// itself dispatches a bare workflow run has no stable, re-playable
// result to fingerprint.
const workflowTaskType = "workflow"

// SubmitRequest is the inbound shape for a new task, carrying the
// caller identity and subscription tier the quality assessor and
// resource allocator need downstream at dispatch time.
type SubmitRequest struct {
	Type       string
	Priority   resources.Priority
	Parameters value.Map
	User       string
	Tier       resources.SubscriptionTier
	MaxRetries int
}

// SubmitTask assembles the submission flow: cache lookup first (a hit
// returns the cached workflow id without touching the queue at all),
// then a reservation claim so concurrent identical submissions don't
// each dispatch their own workflow, then persistence + enqueue, then
// a task-submissions event.
func (a *App) SubmitTask(ctx context.Context, req SubmitRequest) (*task.Task, error) {
	t := task.New(req.Type, req.Priority, req.Parameters, req.MaxRetries)
	t.User = req.User
	t.Tier = req.Tier

	if req.Type != workflowTaskType {
		fp, err := fingerprintFor(req.Type, req.Parameters)
		if err != nil {
			return nil, apperrors.NewError().WithCode(apperrors.CodeCacheError).WithMessage("compute fingerprint").WithError(err)
		}
		t.Fingerprint = fp

		if entry, hit, err := a.Cache.Get(ctx, fp); err != nil {
			return nil, apperrors.NewError().WithCode(apperrors.CodeCacheError).WithMessage("cache lookup").WithError(err)
		} else if hit {
			now := time.Now()
			t.Status = task.StatusCompleted
			t.WorkflowID = entry.WorkflowID
			t.CompletedAt = &now
			if err := task.SaveTask(ctx, a.Store, t); err != nil {
				return nil, err
			}
			metrics.WorkflowCacheHitTotal.WithLabelValues(t.Type).Inc()
			return t, nil
		}

		won, owner, err := a.Cache.Reserve(ctx, fp, t.ID)
		if err != nil {
			return nil, apperrors.NewError().WithCode(apperrors.CodeCacheError).WithMessage("reserve fingerprint").WithError(err)
		}
		if !won {
			// Another task already owns this fingerprint's build; point
			// the caller at it instead of dispatching a duplicate.
			existing, ok, err := task.LoadTask(ctx, a.Store, owner)
			if err == nil && ok {
				return existing, nil
			}
		}
	}

	if err := task.Enqueue(ctx, a.Store, t); err != nil {
		return nil, apperrors.NewError().WithCode(apperrors.CodeStoreError).WithMessage("enqueue task").WithError(err)
	}

	a.publish(ctx, bus.TopicTaskSubmissions, submissionEvent{
		TaskID:   t.ID,
		Type:     t.Type,
		Priority: string(t.Priority),
	})

	return t, nil
}

// CancelTask marks a pending or running task CANCELLED, pulls it off
// its priority lane, asks the orchestrator to tear down any dispatched
// workflow, and publishes a cancellation event. Idempotent: cancelling
// an already-terminal task reports false without error.
func (a *App) CancelTask(ctx context.Context, id string) (bool, error) {
	t, ok, err := task.LoadTask(ctx, a.Store, id)
	if err != nil {
		return false, err
	}
	if !ok || t.Status.IsTerminal() {
		return false, nil
	}

	wasRunning := t.Status == task.StatusRunning
	now := time.Now()
	t.Status = task.StatusCancelled
	t.CompletedAt = &now

	if err := task.SaveTask(ctx, a.Store, t); err != nil {
		return false, err
	}
	if err := task.Dequeue(ctx, a.Store, t.Priority, t.ID); err != nil {
		return false, err
	}
	if err := task.MarkTerminal(ctx, a.Store, t); err != nil {
		return false, err
	}

	if t.Fingerprint != "" {
		_ = a.Cache.Release(ctx, t.Fingerprint)
	}

	if t.WorkflowID != "" && a.Orchestrator != nil {
		if _, err := a.Orchestrator.CancelWorkflow(ctx, a.Config.Namespace, t.WorkflowID); err != nil {
			logger.Warnf("coordinator: cancel workflow %s for task %s: %v", t.WorkflowID, t.ID, err)
		}
	}

	metrics.WorkflowCancelledTotal.WithLabelValues(t.Type).Inc()
	if wasRunning {
		metrics.ActiveWorkflows.WithLabelValues(t.Type, string(task.StatusRunning)).Dec()
	}
	metrics.ActiveWorkflows.WithLabelValues(t.Type, string(task.StatusCancelled)).Inc()

	a.publish(ctx, bus.TopicTaskCancellations, cancellationEvent{TaskID: t.ID})
	return true, nil
}

// GetTaskStatus returns a task's current record.
func (a *App) GetTaskStatus(ctx context.Context, id string) (*task.Task, bool, error) {
	return task.LoadTask(ctx, a.Store, id)
}

// volatileFingerprintFields are stripped before fingerprinting: they
// vary per request without changing what the request actually asks
// for, and would otherwise defeat cache reuse entirely.
var volatileFingerprintFields = []string{"user_id", "timestamp", "request_id", "quality_target", "user_preference"}

func fingerprintFor(taskType string, params value.Map) (string, error) {
	m, err := params.ToInterfaceMap()
	if err != nil {
		return "", err
	}
	for _, k := range volatileFingerprintFields {
		delete(m, k)
	}
	return cache.Fingerprint(taskType, m)
}
