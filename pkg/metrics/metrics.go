// Package metrics defines the coordinator's Prometheus surface,
// structured the same way Lens/modules/core/pkg/task/metrics.go does:
// promauto-registered vectors under one namespace/subsystem pair per
// component.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coordinator"

var (
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "task_queue",
		Name:      "depth",
		Help:      "Number of pending tasks per priority lane.",
	}, []string{"priority"})

	QueueRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "task_queue",
		Name:      "running",
		Help:      "Number of tasks currently dispatched per priority lane.",
	}, []string{"priority"})

	TaskDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "task_queue",
		Name:      "dispatch_total",
		Help:      "Task dispatch attempts by task type and outcome.",
	}, []string{"task_type", "status"})

	TaskDispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "task_queue",
		Name:      "dispatch_duration_seconds",
		Help:      "Task execution latency by task type.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"task_type"})

	QueueWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "task_queue",
		Name:      "wait_duration_seconds",
		Help:      "Time a task spent queued before dispatch.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"priority"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "task_queue",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per task type (0=closed, 1=open, 2=half-open).",
	}, []string{"task_type"})

	CacheHitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookup_total",
		Help:      "Cache lookups by result (hit, miss, error, reserved).",
	}, []string{"result"})

	CacheInvalidationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "invalidation_total",
		Help:      "Cache entries removed by InvalidateByType, or by Clear under result_type \"__all__\".",
	}, []string{"result_type"})

	ScalingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "autoscaling",
		Name:      "events_total",
		Help:      "Scaling events observed by service and direction.",
	}, []string{"service", "direction"})

	ResourceAllocationDowngradeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resources",
		Name:      "downgrade_total",
		Help:      "Resource allocation downgrades by requested tier.",
	}, []string{"requested_tier"})

	// The vectors below carry the coordinator's public contract names,
	// unprefixed, alongside the coordinator_-namespaced ones above.

	WorkflowCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_completed_total",
		Help: "Workflows that reached a successful terminal state.",
	}, []string{"task_type"})

	WorkflowErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_error_total",
		Help: "Workflows that reached a failed terminal state.",
	}, []string{"task_type"})

	WorkflowCacheHitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_cache_hit_total",
		Help: "Task submissions short-circuited by a cached workflow result.",
	}, []string{"task_type"})

	WorkflowCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_cancelled_total",
		Help: "Tasks cancelled by user request.",
	}, []string{"task_type"})

	WorkflowDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workflow_duration_seconds",
		Help:    "Wall-clock time from workflow dispatch to terminal state.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"task_type"})

	QueueDepthByPriority = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Number of pending tasks per priority lane.",
	}, []string{"priority"})

	ActiveWorkflows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "active_workflows",
		Help: "Workflows currently dispatched, by task type and status.",
	}, []string{"type", "status"})

	ResourceUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resource_utilization",
		Help: "Fractional cluster resource utilization, by resource.",
	}, []string{"resource"})
)
