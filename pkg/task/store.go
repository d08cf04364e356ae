package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
)

const (
	queueKeyPrefix   = "task:queue:"
	taskKeyPrefix    = "task:record:"
	terminalIndexKey = "task:terminal-index"
)

func queueKey(p resources.Priority) string {
	return queueKeyPrefix + string(p)
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

// Enqueue writes the task record and pushes it onto its priority lane.
func Enqueue(ctx context.Context, store kvstore.Store, t *Task) error {
	if err := SaveTask(ctx, store, t); err != nil {
		return err
	}
	return store.ZAdd(ctx, queueKey(t.Priority), t.ID, eligibilityScore(t.CreatedAt))
}

func SaveTask(ctx context.Context, store kvstore.Store, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return store.Set(ctx, taskKey(t.ID), string(data), 0)
}

// LoadTask reads a task record by id.
func LoadTask(ctx context.Context, store kvstore.Store, id string) (*Task, bool, error) {
	raw, ok, err := store.Get(ctx, taskKey(id))
	if err != nil || !ok {
		return nil, ok, err
	}
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

// popNext pops up to count task IDs from a priority lane whose
// eligibility score (the time they're allowed to run) is at or before
// now; anything scored later is a future-dated retry/breaker requeue
// and stays in the lane for a later tick to find eligible.
func popNext(ctx context.Context, store kvstore.Store, p resources.Priority, count int64, now time.Time) ([]string, error) {
	eligible, err := store.ZRange(ctx, queueKey(p), 0, float64(now.UnixNano()))
	if err != nil {
		return nil, err
	}
	if int64(len(eligible)) > count {
		eligible = eligible[:count]
	}

	ids := make([]string, 0, len(eligible))
	for _, m := range eligible {
		if err := store.ZRem(ctx, queueKey(p), m.Member); err != nil {
			return ids, err
		}
		ids = append(ids, m.Member)
	}
	return ids, nil
}

func queueDepth(ctx context.Context, store kvstore.Store, p resources.Priority) (int64, error) {
	return store.ZCount(ctx, queueKey(p), 0, 1e18)
}

// Dequeue removes id from its priority lane, used by cancellation to
// pull a still-pending task out before it's ever popped.
func Dequeue(ctx context.Context, store kvstore.Store, p resources.Priority, id string) error {
	return store.ZRem(ctx, queueKey(p), id)
}

// requeue pushes a task back onto its lane, used for retries and
// reschedules.
func requeue(ctx context.Context, store kvstore.Store, t *Task, delay time.Duration) error {
	if err := SaveTask(ctx, store, t); err != nil {
		return err
	}
	score := eligibilityScore(time.Now().Add(delay))
	return store.ZAdd(ctx, queueKey(t.Priority), t.ID, score)
}

// MarkTerminal records a terminal task in the cleanup index, scored by
// completion time, so the cleanup loop can sweep tasks older than the
// retention window without scanning every key.
func MarkTerminal(ctx context.Context, store kvstore.Store, t *Task) error {
	if t.CompletedAt == nil {
		return fmt.Errorf("task %s: MarkTerminal called without CompletedAt", t.ID)
	}
	return store.ZAdd(ctx, terminalIndexKey, t.ID, float64(t.CompletedAt.Unix()))
}

// CleanupOlderThan deletes terminal task records older than cutoff,
// mirroring Lens/modules/core/pkg/database/workload_task_facade.go's
// CleanupOldTasks(retentionDays) retention sweep.
func CleanupOlderThan(ctx context.Context, store kvstore.Store, cutoff time.Time) (int, error) {
	stale, err := store.ZRange(ctx, terminalIndexKey, 0, float64(cutoff.Unix()))
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(stale))
	for _, m := range stale {
		keys = append(keys, taskKey(m.Member))
		if err := store.ZRem(ctx, terminalIndexKey, m.Member); err != nil {
			return 0, err
		}
	}
	if err := store.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(stale), nil
}
