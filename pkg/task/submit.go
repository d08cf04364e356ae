package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"
)

// New builds a pending task ready for submission.
func New(taskType string, priority resources.Priority, params value.Map, maxRetries int) *Task {
	now := time.Now()
	return &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Priority:   priority,
		Status:     StatusPending,
		Parameters: params,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Submit persists and enqueues a task. Cache-reservation checks happen
// one layer up, in the component that owns both the cache and the
// scheduler, since this package has no cache dependency.
func Submit(ctx context.Context, store kvstore.Store, t *Task) error {
	return Enqueue(ctx, store, t)
}
