// Package task implements the task queue manager: a
// priority-queue-backed scheduler with one independent scan/dispatch
// loop per priority lane, per-lane concurrency caps and rate limits,
// retry with exponential backoff, and per-task-type circuit breakers.
// Grounded on Lens/modules/core/pkg/task/scheduler.go's TaskScheduler
// (ctx/cancel/wg, executor registry, ticker-driven loops) generalized
// from one shared loop to four priority-scoped loops.
package task

import (
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/quality"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is the unit of work the queue manager schedules and tracks.
type Task struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Priority    resources.Priority `json:"priority"`
	Status      Status             `json:"status"`
	Parameters  value.Map          `json:"parameters"`
	Fingerprint string             `json:"fingerprint,omitempty"`

	User string                      `json:"user,omitempty"`
	Tier resources.SubscriptionTier  `json:"tier,omitempty"`

	// Quality is the tier the quality assessor assigned at dispatch;
	// it drives the quality-level label/annotation and the
	// resource allocator's tier lookup at dispatch.
	Quality quality.Tier `json:"quality,omitempty"`

	// WorkflowID is bound once the workflow-dispatch executor
	// successfully submits a workflow for this task.
	WorkflowID string `json:"workflow_id,omitempty"`

	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NextRetryDelay computes exponential backoff: baseDelay * 2^(attempts-1),
// where attempts is the 1-indexed count of attempts made so far.
func NextRetryDelay(baseDelay time.Duration, attempts int) time.Duration {
	if attempts <= 1 {
		return baseDelay
	}
	delay := baseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

// eligibilityScore converts a time into the ordered-set score the
// scheduling loop treats as this task's eligibility time: a task is
// only popped once the current tick's time reaches its score. Each
// priority lane is its own ordered set (task:queue:<priority>), so the
// score carries no per-priority offset — within one lane, earlier
// scores are served first, and equal scores are ordered by task id.
func eligibilityScore(at time.Time) float64 {
	return float64(at.UnixNano())
}
