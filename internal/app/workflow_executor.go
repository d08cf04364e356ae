package app

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	apperrors "github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/errors"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/metrics"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/orchestrator"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/quality"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/task"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/value"
)

const (
	ttlAfterSuccess = 3600 * time.Second
	ttlAfterFailure = 86400 * time.Second
)

// workflowExecutor is the TaskExecutor the scheduler dispatches every
// task type through: it scores the task's quality tier, allocates
// resources against live cluster pressure, and submits a workflow
// run via the orchestrator adapter. The task stays RUNNING after a
// successful submission — its terminal status arrives later, off the
// workflow-events topic.
type workflowExecutor struct {
	app *App
}

func newWorkflowExecutor(a *App) *workflowExecutor {
	return &workflowExecutor{app: a}
}

func (e *workflowExecutor) Type() string {
	return workflowTaskType
}

func (e *workflowExecutor) Validate(t *task.Task) error {
	if t.Type == "" {
		return apperrors.NewError().WithCode(apperrors.RequestParameterInvalid).WithMessage("task has no type")
	}
	return nil
}

func (e *workflowExecutor) Execute(ctx context.Context, t *task.Task) (*task.ExecutionResult, error) {
	pressure := resources.ReadClusterPressure(ctx, e.app.Store)
	metrics.ResourceUtilization.WithLabelValues("cpu").Set(pressure.CPUUtilization)
	metrics.ResourceUtilization.WithLabelValues("memory").Set(pressure.MemUtilization)
	metrics.ResourceUtilization.WithLabelValues("gpu").Set(pressure.GPUUtilization)

	assessment := e.assessQuality(t, pressure)
	t.Quality = assessment.Tier

	alloc := e.app.Resources.Allocate(t.Quality, t.Priority, t.Tier, pressure)
	priorityClass := resources.PriorityValueFor(t.Quality, t.Tier)

	params, err := t.Parameters.ToInterfaceMap()
	if err != nil {
		return task.FailureResult("marshal parameters: "+err.Error(), nil), nil
	}

	spec := orchestrator.WorkflowSpec{
		Name:       "task-" + t.ID,
		Namespace:  e.app.Config.Namespace,
		TaskType:   t.Type,
		Parameters: params,
		Arguments:  argumentsFromParameters(t.Parameters),

		Labels: map[string]string{
			"workflow-type":     t.Type,
			"user-id":           t.User,
			"subscription-tier": string(t.Tier),
			"quality-level":     string(t.Quality),
			"task-id":           t.ID,
			"priority":          string(t.Priority),
		},
		Annotations: map[string]string{
			"task-type": t.Type,
			"quality":   string(t.Quality),
			"tier":      string(t.Tier),
		},

		ServiceAccountName: e.app.Config.GetServiceAccountName(),
		NodeSelector:       alloc.NodeSelector,
		PriorityClassName:  priorityClass,

		CPUMillis: alloc.CPUMillis,
		MemoryMiB: alloc.MemoryMiB,
		GPUCount:  alloc.GPUCount,

		TTLAfterSuccess: ttlAfterSuccess,
		TTLAfterFailure: ttlAfterFailure,
	}

	workflowID, err := e.app.Orchestrator.CreateWorkflow(ctx, spec)
	if err != nil {
		if t.Fingerprint != "" {
			_ = e.app.Cache.Release(ctx, t.Fingerprint)
		}
		return task.FailureResult("create workflow: "+err.Error(), nil), nil
	}
	t.WorkflowID = workflowID
	metrics.ActiveWorkflows.WithLabelValues(t.Type, string(task.StatusRunning)).Inc()

	if t.Fingerprint != "" {
		payload, err := json.Marshal(map[string]string{"workflowId": workflowID})
		if err != nil {
			logger.Warnf("coordinator: marshal cache payload for task %s: %v", t.ID, err)
		} else if err := e.app.Cache.Put(ctx, t.Fingerprint, t.Type, workflowID, payload, 0); err != nil {
			logger.Warnf("coordinator: cache workflow binding for task %s: %v", t.ID, err)
		}
		_ = e.app.Cache.Release(ctx, t.Fingerprint)
	}

	return task.ProgressResult(nil), nil
}

// assessQuality builds the assessor's Input from the task's declared
// parameters plus live signals the caller can't set directly: the
// subscription-tier factor and the resource-pressure factor.
func (e *workflowExecutor) assessQuality(t *task.Task, pressure resources.ClusterPressure) quality.Assessment {
	in := quality.InputFromParameters(t.Parameters)
	in.SubscriptionTier = quality.SubscriptionFactor(quality.Subscription(t.Tier))
	in.ResourceHeadroom = quality.ResourceFactor(
		1-pressure.CPUUtilization,
		1-pressure.MemUtilization,
		1-pressure.GPUUtilization,
	)
	in.UserPreference = quality.PreferenceFactor(t.Parameters.GetString("user_preference"))
	in.AllowedTiers = resources.AllowedTiers(t.Tier)
	in.QualityTarget = qualityTargetFromParams(t.Parameters)

	return e.app.Quality.Assess(in)
}

func qualityTargetFromParams(params value.Map) *quality.Tier {
	s := params.GetString("quality_target")
	if s == "" {
		return nil
	}
	tier := quality.Tier(s)
	return &tier
}

// argumentsFromParameters flattens a task's parameter map into the
// {name, value} pairs a workflow template binds, JSON-serialising any
// value that isn't already a plain string. Sorted for deterministic
// workflow specs given the same parameters.
func argumentsFromParameters(params value.Map) []orchestrator.WorkflowArgument {
	args := make([]orchestrator.WorkflowArgument, 0, len(params))
	for name, v := range params {
		val, ok := v.AsString()
		if !ok {
			data, err := json.Marshal(v)
			if err != nil {
				continue
			}
			val = string(data)
		}
		args = append(args, orchestrator.WorkflowArgument{Name: name, Value: val})
	}
	sort.Slice(args, func(i, j int) bool { return args[i].Name < args[j].Name })
	return args
}
