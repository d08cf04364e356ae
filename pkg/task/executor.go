package task

import "context"

// ExecutionResult is returned by a TaskExecutor after one dispatch
// attempt, mirroring Lens/modules/core/pkg/task/executor.go's
// ExecutionResult/SuccessResult/FailureResult/ProgressResult family.
type ExecutionResult struct {
	Success    bool
	Error      string
	NewStatus  Status
	ParamDelta map[string]interface{}
}

// TaskExecutor handles dispatch for one task type. Implementations
// register with the Scheduler by Type().
type TaskExecutor interface {
	Type() string
	Execute(ctx context.Context, t *Task) (*ExecutionResult, error)
	Validate(t *Task) error
}

func SuccessResult(delta map[string]interface{}) *ExecutionResult {
	return &ExecutionResult{Success: true, NewStatus: StatusCompleted, ParamDelta: delta}
}

func FailureResult(errMsg string, delta map[string]interface{}) *ExecutionResult {
	return &ExecutionResult{Success: false, Error: errMsg, NewStatus: StatusFailed, ParamDelta: delta}
}

// ProgressResult keeps a task Running so the scheduler doesn't re-pick
// it — for executors driving a long-lived workflow asynchronously.
func ProgressResult(delta map[string]interface{}) *ExecutionResult {
	return &ExecutionResult{Success: true, NewStatus: StatusRunning, ParamDelta: delta}
}
