package autoscaling

import (
	"context"
	"math"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
)

const applyConfidenceThreshold = 0.7

// runPredictiveAnalysis rebuilds each tracked service's hourly
// prediction: from its configured recurring windows, select every
// window matching the current UTC day-of-week/hour/minute and take
// the maximum expectedLoad among matches. Predicted replicas scale
// the autoscaler's maxReplicas by that load, clamped to
// [minReplicas, maxReplicas]. Confidence is the hit rate of the
// service's last ≤100 predictions, each one's hit/miss having been
// recorded against the actual current replicas at the time it was
// made.
func (c *Controller) runPredictiveAnalysis() error {
	services, err := trackedServices(c.ctx, c.store)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	dayOfWeek, hourOfDay, minuteOfHour := int(now.Weekday()), now.Hour(), now.Minute()

	for _, service := range services {
		patterns, err := LoadPatterns(c.ctx, c.store, service)
		if err != nil {
			logger.Warnf("autoscaling: predictive analysis: load patterns for %s: %v", service, err)
			continue
		}

		maxExpectedLoad, matched := -1.0, false
		for _, p := range patterns {
			if !p.matches(dayOfWeek, hourOfDay, minuteOfHour) {
				continue
			}
			if !matched || p.ExpectedLoad > maxExpectedLoad {
				maxExpectedLoad = p.ExpectedLoad
				matched = true
			}
		}
		if !matched {
			continue
		}

		current, err := c.orchestrator.GetAutoscaler(c.ctx, c.cfg.Namespace, service)
		if err != nil || current == nil {
			logger.Warnf("autoscaling: predictive analysis: autoscaler for %s: %v", service, err)
			continue
		}

		predicted := int32(math.Ceil(float64(current.MaxReplicas) * maxExpectedLoad))
		if predicted < current.MinReplicas {
			predicted = current.MinReplicas
		}
		if predicted > current.MaxReplicas {
			predicted = current.MaxReplicas
		}

		confidence := predictionConfidence(c.ctx, c.store, service)
		hit := math.Abs(float64(predicted-current.Current)) <= 1
		if err := recordPredictionOutcome(c.ctx, c.store, service, now, hit); err != nil {
			logger.Warnf("autoscaling: predictive analysis: record outcome for %s: %v", service, err)
		}

		pred := Prediction{
			Service:           service,
			GeneratedAt:       now,
			CurrentReplicas:   current.Current,
			PredictedReplicas: predicted,
			Confidence:        confidence,
		}
		if err := SavePrediction(c.ctx, c.store, pred); err != nil {
			logger.Warnf("autoscaling: predictive analysis: save prediction for %s: %v", service, err)
		}
	}
	return nil
}

// applyPredictions patches each not-yet-applied prediction whose
// confidence clears the threshold onto its service's autoscaler
// minReplicas, then marks it applied so it's never patched twice.
func (c *Controller) applyPredictions() error {
	services, err := trackedServices(c.ctx, c.store)
	if err != nil {
		return err
	}

	for _, service := range services {
		pred, ok, err := LoadPrediction(c.ctx, c.store, service)
		if err != nil || !ok || pred.Applied || pred.Confidence < applyConfidenceThreshold {
			continue
		}

		current, err := c.orchestrator.GetAutoscaler(c.ctx, c.cfg.Namespace, service)
		if err != nil || current == nil {
			continue
		}

		desiredMin := pred.PredictedReplicas
		if desiredMin > current.MaxReplicas {
			desiredMin = current.MaxReplicas
		}

		if err := c.orchestrator.PatchAutoscalerReplicas(c.ctx, c.cfg.Namespace, service, desiredMin, current.MaxReplicas); err != nil {
			logger.Warnf("autoscaling: apply predictions: patch %s: %v", service, err)
			continue
		}
		if err := MarkPredictionApplied(c.ctx, c.store, *pred, time.Now()); err != nil {
			logger.Warnf("autoscaling: apply predictions: mark applied for %s: %v", service, err)
		}
	}
	return nil
}

const trackedServicesKey = "autoscale:tracked-services"

// TrackService registers a service for predictive scaling and the
// dependency cascade.
func TrackService(ctx context.Context, store kvstore.Store, service string) error {
	return store.HSet(ctx, trackedServicesKey, map[string]string{service: "1"})
}

// UntrackService removes a service from predictive scaling tracking.
func UntrackService(ctx context.Context, store kvstore.Store, service string) error {
	return store.HDelete(ctx, trackedServicesKey, service)
}

func trackedServices(ctx context.Context, store kvstore.Store) ([]string, error) {
	all, err := store.HGetAll(ctx, trackedServicesKey)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for k := range all {
		out = append(out, k)
	}
	return out, nil
}
