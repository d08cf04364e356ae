package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/bus"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/metrics"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/task"
)

// MessageBus is the abstract message-bus contract the coordinator
// publishes task lifecycle events through and consumes workflow
// events from; bus.Bus satisfies it structurally, so callers that
// don't need a live bus (tests, a queue-only instance) can leave the
// field nil or supply a fake.
type MessageBus interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
	Subscribe(ctx context.Context, topic string, handler bus.Handler) error
}

type submissionEvent struct {
	TaskID   string `json:"taskId"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
}

type cancellationEvent struct {
	TaskID string `json:"taskId"`
}

// workflowEvent is the payload carried on the workflow-events topic:
// the orchestrator's terminal phase for a dispatched workflow, keyed
// back to the task that dispatched it.
type workflowEvent struct {
	WorkflowID string `json:"workflowId"`
	TaskID     string `json:"taskId"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

func (a *App) publish(ctx context.Context, topic string, payload interface{}) {
	if a.Bus == nil {
		return
	}
	if err := a.Bus.Publish(ctx, topic, payload); err != nil {
		logger.Warnf("coordinator: publish %s: %v", topic, err)
	}
}

// subscribeWorkflowEvents blocks consuming the workflow-events topic
// until ctx is done, applying each decoded event to its bound task.
func (a *App) subscribeWorkflowEvents(ctx context.Context) {
	if a.Bus == nil {
		return
	}
	err := a.Bus.Subscribe(ctx, bus.TopicWorkflowEvents, func(ctx context.Context, raw []byte) {
		var evt workflowEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			logger.Warnf("coordinator: decode workflow event: %v", err)
			return
		}
		if err := a.applyWorkflowEvent(ctx, evt); err != nil {
			logger.Warnf("coordinator: apply workflow event for task %s: %v", evt.TaskID, err)
		}
	})
	if err != nil && ctx.Err() == nil {
		logger.Errorf("coordinator: workflow-events subscription ended: %v", err)
	}
}

// applyWorkflowEvent resolves a task's terminal status from its bound
// workflow's reported phase. A task already in a terminal state (most
// notably CANCELLED, raced against a workflow that finished before the
// cancel patch took effect) is left alone rather than overwritten.
func (a *App) applyWorkflowEvent(ctx context.Context, evt workflowEvent) error {
	t, ok, err := task.LoadTask(ctx, a.Store, evt.TaskID)
	if err != nil || !ok {
		return err
	}
	if t.Status.IsTerminal() {
		return nil
	}

	switch evt.Status {
	case "Succeeded":
		t.Status = task.StatusCompleted
	case "Failed", "Error":
		t.Status = task.StatusFailed
		t.Error = evt.Message
	case "Cancelled":
		t.Status = task.StatusCancelled
	default:
		// Pending/Running: no terminal transition yet.
		return nil
	}

	now := time.Now()
	t.CompletedAt = &now

	metrics.ActiveWorkflows.WithLabelValues(t.Type, string(task.StatusRunning)).Dec()
	metrics.ActiveWorkflows.WithLabelValues(t.Type, string(t.Status)).Inc()
	if t.StartedAt != nil {
		metrics.WorkflowDuration.WithLabelValues(t.Type).Observe(now.Sub(*t.StartedAt).Seconds())
	}
	switch t.Status {
	case task.StatusCompleted:
		metrics.WorkflowCompletedTotal.WithLabelValues(t.Type).Inc()
	case task.StatusFailed:
		metrics.WorkflowErrorTotal.WithLabelValues(t.Type).Inc()
	}

	if t.Status == task.StatusCompleted && t.Fingerprint != "" {
		payload, err := json.Marshal(evt)
		if err == nil {
			if err := a.Cache.Put(ctx, t.Fingerprint, t.Type, t.WorkflowID, payload, 0); err != nil {
				logger.Warnf("coordinator: cache workflow result for task %s: %v", t.ID, err)
			}
		}
	}
	if t.Fingerprint != "" {
		_ = a.Cache.Release(ctx, t.Fingerprint)
	}

	if err := task.SaveTask(ctx, a.Store, t); err != nil {
		return err
	}
	return task.MarkTerminal(ctx, a.Store, t)
}
