package autoscaling

import (
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
)

// runDependencyCascade walks the registered dependency graph: for each
// dependency whose upstream service's autoscaler reports a current
// replica count, it scales the downstream service proportionally by
// Ratio, rounding up so a downstream service is never under-provisioned
// relative to what it's asked to serve.
func (c *Controller) runDependencyCascade() error {
	deps, err := LoadDependencies(c.ctx, c.store)
	if err != nil {
		return err
	}

	for _, dep := range deps {
		upstream, err := c.orchestrator.GetAutoscaler(c.ctx, c.cfg.Namespace, dep.Service)
		if err != nil {
			logger.Warnf("autoscaling: dependency cascade: get autoscaler %s: %v", dep.Service, err)
			continue
		}
		if upstream == nil {
			continue
		}

		downstream, err := c.orchestrator.GetAutoscaler(c.ctx, c.cfg.Namespace, dep.DependsOn)
		if err != nil {
			logger.Warnf("autoscaling: dependency cascade: get autoscaler %s: %v", dep.DependsOn, err)
			continue
		}
		if downstream == nil {
			continue
		}

		desired := ceilMultiply(upstream.Current, dep.Ratio)
		if desired < downstream.MinReplicas {
			desired = downstream.MinReplicas
		}
		if desired > downstream.MaxReplicas {
			desired = downstream.MaxReplicas
		}
		if desired == downstream.Current {
			continue
		}

		if err := c.orchestrator.PatchAutoscalerReplicas(c.ctx, c.cfg.Namespace, dep.DependsOn, desired, downstream.MaxReplicas); err != nil {
			logger.Warnf("autoscaling: dependency cascade: patch %s: %v", dep.DependsOn, err)
			continue
		}

		direction := "up"
		if desired < downstream.Current {
			direction = "down"
		}
		_ = RecordEvent(c.ctx, c.store, Event{
			Service:      dep.DependsOn,
			Namespace:    c.cfg.Namespace,
			Direction:    direction,
			FromReplicas: downstream.Current,
			ToReplicas:   desired,
			ObservedAt:   time.Now(),
		})
	}
	return nil
}

func ceilMultiply(replicas int32, ratio float64) int32 {
	product := float64(replicas) * ratio
	whole := int32(product)
	if float64(whole) < product {
		whole++
	}
	return whole
}
