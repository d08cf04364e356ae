// Package orchestrator implements the orchestrator adapter:
// create/read/patch/cancel of workflow objects and read/patch
// of autoscaler objects against a Kubernetes cluster, grounded on
// Lens/modules/core/pkg/clientsets/k8s.go's client construction and
// Lens/modules/core/pkg/workflow's reconcile-external-state idiom. No
// Argo Workflows (or comparable engine) client exists anywhere in the
// retrieval pack, so CRD objects are driven generically through the
// dynamic client rather than a named workflow-engine SDK.
package orchestrator

import (
	"context"
	"time"
)

// WorkflowArgument is one {name, value} argument pair passed to a
// workflow template; non-string parameter values are JSON-serialised
// by the caller before reaching here.
type WorkflowArgument struct {
	Name  string
	Value string
}

// WorkflowSpec is the shape the coordinator needs to submit a
// dispatched workflow run: a name, the task type driving it (doubling
// as the template name), its parameters/arguments, and the
// scheduling/lifecycle decoration the orchestrator contract requires
// (labels, annotations, node placement, TTL, resource requests).
type WorkflowSpec struct {
	Name       string
	Namespace  string
	TaskType   string
	Parameters map[string]interface{}
	Arguments  []WorkflowArgument

	Labels      map[string]string
	Annotations map[string]string

	ServiceAccountName string
	NodeSelector       map[string]string
	PriorityClassName  string

	CPUMillis int64
	MemoryMiB int64
	GPUCount  int

	// TTLAfterSuccess/TTLAfterFailure drive the workflow's ttlStrategy;
	// zero means "use the orchestrator's own default".
	TTLAfterSuccess time.Duration
	TTLAfterFailure time.Duration
}

// WorkflowStatus mirrors the subset of a workflow CRD's status block
// the coordinator cares about.
type WorkflowStatus struct {
	Name      string
	Phase     string // Pending, Running, Succeeded, Failed
	Message   string
	StartedAt string
	EndedAt   string
}

// AutoscalerSpec is the subset of an HPA-shaped autoscaler object the
// coordinator reads and patches.
type AutoscalerSpec struct {
	Name        string
	Namespace   string
	MinReplicas int32
	MaxReplicas int32
	Current     int32
	Desired     int32

	// Available is the underlying deployment's availableReplicas, used
	// to tell a capacity-limited scale-up apart from a healthy one.
	Available int32

	// MetricKind/MetricName/MetricValue/MetricThreshold describe the
	// first metric driving the autoscaler's decision (resource, pods,
	// object, or external); empty when the autoscaler reports none.
	MetricKind      string
	MetricName      string
	MetricValue     string
	MetricThreshold string
}

// Orchestrator is the orchestrator adapter contract.
type Orchestrator interface {
	// CreateWorkflow submits a workflow run and returns its workflow id.
	CreateWorkflow(ctx context.Context, spec WorkflowSpec) (string, error)
	GetWorkflow(ctx context.Context, namespace, name string) (*WorkflowStatus, error)
	PatchWorkflow(ctx context.Context, namespace, name string, patch map[string]interface{}) error
	// CancelWorkflow patches the completion label and shutdown
	// directive onto a workflow. It is idempotent: a missing workflow,
	// or one already carrying the completion label, returns (false, nil).
	CancelWorkflow(ctx context.Context, namespace, name string) (bool, error)

	GetAutoscaler(ctx context.Context, namespace, name string) (*AutoscalerSpec, error)
	PatchAutoscalerReplicas(ctx context.Context, namespace, name string, minReplicas, maxReplicas int32) error
}
