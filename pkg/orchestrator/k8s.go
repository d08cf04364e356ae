package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"

	apperrors "github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/errors"
)

var workflowGVR = schema.GroupVersionResource{
	Group:    "coordinator.example.com",
	Version:  "v1alpha1",
	Resource: "workflows",
}

// K8sOrchestrator implements Orchestrator against a Kubernetes
// cluster, following the client-set construction in
// Lens/modules/core/pkg/clientsets/k8s.go: a typed Clientset for
// built-in resources (HPA) and a dynamic client for the workflow CRD.
type K8sOrchestrator struct {
	dynamic   dynamic.Interface
	clientset *kubernetes.Clientset
}

// NewK8sOrchestrator builds clients from in-cluster or kubeconfig
// config via ctrl.GetConfigOrDie().
func NewK8sOrchestrator() (*K8sOrchestrator, error) {
	cfg := ctrl.GetConfigOrDie()
	return NewK8sOrchestratorFromConfig(cfg)
}

func NewK8sOrchestratorFromConfig(cfg *rest.Config) (*K8sOrchestrator, error) {
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessage("build dynamic client").
			WithError(err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessage("build typed clientset").
			WithError(err)
	}
	return &K8sOrchestrator{dynamic: dyn, clientset: cs}, nil
}

// completedLabel is patched to "true" by CancelWorkflow to mark a
// workflow terminal, namespaced under the CRD's own API group.
var completedLabel = fmt.Sprintf("workflows.%s/completed", workflowGVR.Group)

const (
	defaultTTLAfterSuccess = 3600 * time.Second
	defaultTTLAfterFailure = 86400 * time.Second
)

func (o *K8sOrchestrator) CreateWorkflow(ctx context.Context, spec WorkflowSpec) (string, error) {
	successTTL := spec.TTLAfterSuccess
	if successTTL <= 0 {
		successTTL = defaultTTLAfterSuccess
	}
	failureTTL := spec.TTLAfterFailure
	if failureTTL <= 0 {
		failureTTL = defaultTTLAfterFailure
	}

	requests := map[string]interface{}{}
	if spec.CPUMillis > 0 {
		requests["cpu"] = fmt.Sprintf("%dm", spec.CPUMillis)
	}
	if spec.MemoryMiB > 0 {
		requests["memory"] = fmt.Sprintf("%dMi", spec.MemoryMiB)
	}
	if spec.GPUCount > 0 {
		requests["nvidia.com/gpu"] = fmt.Sprintf("%d", spec.GPUCount)
	}

	obj := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": workflowGVR.GroupVersion().String(),
			"kind":       "Workflow",
			"metadata": map[string]interface{}{
				"name":        spec.Name,
				"namespace":   spec.Namespace,
				"labels":      toStringInterfaceMap(spec.Labels),
				"annotations": toStringInterfaceMap(spec.Annotations),
			},
			"spec": map[string]interface{}{
				"taskType":           spec.TaskType,
				"parameters":         spec.Parameters,
				"arguments":          argumentsToInterface(spec.Arguments),
				"serviceAccountName": spec.ServiceAccountName,
				"nodeSelector":       toStringInterfaceMap(spec.NodeSelector),
				"priorityClassName":  spec.PriorityClassName,
				"podGC": map[string]interface{}{
					"strategy": "OnPodCompletion",
				},
				"ttlStrategy": map[string]interface{}{
					"secondsAfterSuccess":   int64(successTTL.Seconds()),
					"secondsAfterCompleted": int64(successTTL.Seconds()),
					"secondsAfterFailure":   int64(failureTTL.Seconds()),
				},
				"resources": map[string]interface{}{
					"requests": requests,
				},
			},
		},
	}
	created, err := o.dynamic.Resource(workflowGVR).Namespace(spec.Namespace).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil {
		return "", apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessagef("create workflow %s/%s", spec.Namespace, spec.Name).
			WithError(err)
	}
	return created.GetName(), nil
}

func argumentsToInterface(args []WorkflowArgument) []interface{} {
	out := make([]interface{}, 0, len(args))
	for _, a := range args {
		out = append(out, map[string]interface{}{"name": a.Name, "value": a.Value})
	}
	return out
}

func (o *K8sOrchestrator) GetWorkflow(ctx context.Context, namespace, name string) (*WorkflowStatus, error) {
	obj, err := o.dynamic.Resource(workflowGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessagef("get workflow %s/%s", namespace, name).
			WithError(err)
	}

	status, _, _ := unstructured.NestedMap(obj.Object, "status")
	ws := &WorkflowStatus{Name: name}
	if status != nil {
		ws.Phase, _ = status["phase"].(string)
		ws.Message, _ = status["message"].(string)
		ws.StartedAt, _ = status["startedAt"].(string)
		ws.EndedAt, _ = status["endedAt"].(string)
	}
	return ws, nil
}

func (o *K8sOrchestrator) PatchWorkflow(ctx context.Context, namespace, name string, patch map[string]interface{}) error {
	body, err := mergePatchBytes(patch)
	if err != nil {
		return err
	}
	_, err = o.dynamic.Resource(workflowGVR).Namespace(namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessagef("patch workflow %s/%s", namespace, name).
			WithError(err)
	}
	return nil
}

// CancelWorkflow patches the completion label and a Terminate shutdown
// directive onto a workflow rather than deleting the object outright,
// so its terminal state and TTL-driven garbage collection still apply
// normally. Idempotent: a missing workflow or one already carrying the
// completed label reports (false, nil).
func (o *K8sOrchestrator) CancelWorkflow(ctx context.Context, namespace, name string) (bool, error) {
	obj, err := o.dynamic.Resource(workflowGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessagef("get workflow %s/%s before cancel", namespace, name).
			WithError(err)
	}
	if obj.GetLabels()[completedLabel] == "true" {
		return false, nil
	}

	patch := map[string]interface{}{
		"metadata": map[string]interface{}{
			"labels": map[string]interface{}{completedLabel: "true"},
		},
		"spec": map[string]interface{}{
			"shutdown": "Terminate",
		},
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return false, apperrors.NewError().
			WithCode(apperrors.InvalidDataError).
			WithMessage("marshal cancel patch body").
			WithError(err)
	}
	if _, err := o.dynamic.Resource(workflowGVR).Namespace(namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessagef("cancel workflow %s/%s", namespace, name).
			WithError(err)
	}
	return true, nil
}

func (o *K8sOrchestrator) GetAutoscaler(ctx context.Context, namespace, name string) (*AutoscalerSpec, error) {
	hpa, err := o.clientset.AutoscalingV2().HorizontalPodAutoscalers(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessagef("get autoscaler %s/%s", namespace, name).
			WithError(err)
	}

	spec := &AutoscalerSpec{
		Name:        name,
		Namespace:   namespace,
		MaxReplicas: hpa.Spec.MaxReplicas,
		Current:     hpa.Status.CurrentReplicas,
		Desired:     hpa.Status.DesiredReplicas,
	}
	if hpa.Spec.MinReplicas != nil {
		spec.MinReplicas = *hpa.Spec.MinReplicas
	}

	if dep, err := o.clientset.AppsV1().Deployments(namespace).Get(ctx, hpa.Spec.ScaleTargetRef.Name, metav1.GetOptions{}); err == nil {
		spec.Available = dep.Status.AvailableReplicas
	}

	if len(hpa.Status.CurrentMetrics) > 0 {
		populateMetric(spec, hpa.Status.CurrentMetrics[0], hpa.Spec.Metrics)
	}
	return spec, nil
}

// populateMetric extracts the driving metric's kind/name/value from
// whichever of the four metric source types (resource, pods, object,
// external) is set, plus its configured target threshold from the
// matching spec entry when present.
func populateMetric(spec *AutoscalerSpec, m autoscalingv2.MetricStatus, specMetrics []autoscalingv2.MetricSpec) {
	spec.MetricKind = string(m.Type)
	switch m.Type {
	case autoscalingv2.ResourceMetricSourceType:
		if m.Resource != nil {
			spec.MetricName = string(m.Resource.Name)
			if m.Resource.Current.AverageUtilization != nil {
				spec.MetricValue = fmt.Sprintf("%d%%", *m.Resource.Current.AverageUtilization)
			}
		}
	case autoscalingv2.PodsMetricSourceType:
		if m.Pods != nil {
			spec.MetricName = m.Pods.Metric.Name
			spec.MetricValue = m.Pods.Current.AverageValue.String()
		}
	case autoscalingv2.ObjectMetricSourceType:
		if m.Object != nil {
			spec.MetricName = m.Object.Metric.Name
			spec.MetricValue = m.Object.Current.Value.String()
		}
	case autoscalingv2.ExternalMetricSourceType:
		if m.External != nil {
			spec.MetricName = m.External.Metric.Name
			spec.MetricValue = m.External.Current.Value.String()
		}
	}

	for _, sm := range specMetrics {
		if sm.Type != m.Type {
			continue
		}
		switch sm.Type {
		case autoscalingv2.ResourceMetricSourceType:
			if sm.Resource != nil && sm.Resource.Target.AverageUtilization != nil {
				spec.MetricThreshold = fmt.Sprintf("%d%%", *sm.Resource.Target.AverageUtilization)
			}
		case autoscalingv2.PodsMetricSourceType:
			if sm.Pods != nil && sm.Pods.Target.AverageValue != nil {
				spec.MetricThreshold = sm.Pods.Target.AverageValue.String()
			}
		case autoscalingv2.ObjectMetricSourceType:
			if sm.Object != nil {
				spec.MetricThreshold = sm.Object.Target.Value.String()
			}
		case autoscalingv2.ExternalMetricSourceType:
			if sm.External != nil {
				spec.MetricThreshold = sm.External.Target.Value.String()
			}
		}
	}
}

func (o *K8sOrchestrator) PatchAutoscalerReplicas(ctx context.Context, namespace, name string, minReplicas, maxReplicas int32) error {
	hpa, err := o.clientset.AutoscalingV2().HorizontalPodAutoscalers(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessagef("get autoscaler %s/%s before patch", namespace, name).
			WithError(err)
	}
	updated := hpa.DeepCopy()
	updated.Spec.MinReplicas = &minReplicas
	updated.Spec.MaxReplicas = maxReplicas
	_, err = o.clientset.AutoscalingV2().HorizontalPodAutoscalers(namespace).Update(ctx, updated, metav1.UpdateOptions{})
	if err != nil {
		return apperrors.NewError().
			WithCode(apperrors.CodeOrchestratorError).
			WithMessagef("patch autoscaler %s/%s", namespace, name).
			WithError(err)
	}
	return nil
}

func toStringInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergePatchBytes(patch map[string]interface{}) ([]byte, error) {
	body := map[string]interface{}{"status": patch}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewError().
			WithCode(apperrors.InvalidDataError).
			WithMessage("marshal patch body").
			WithError(err)
	}
	return data, nil
}
