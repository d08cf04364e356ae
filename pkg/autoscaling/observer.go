package autoscaling

import (
	"strconv"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/metrics"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/orchestrator"
)

// observerCheckpointKeyPrefix keys the last replica count seen per service
// so the observer can tell up from down without re-reading every
// autoscaler's full history each tick.
const observerCheckpointKeyPrefix = "autoscale:observer-checkpoint:"

// observerLastLoggedKeyPrefix stores the last time an event was
// logged for a service, for the five-minute debounce.
const observerLastLoggedKeyPrefix = "autoscale:observer-last-logged:"

const observerDebounce = 5 * time.Minute

// observeScalingEvents polls each tracked service's autoscaler,
// classifies its scaling state (up, down, limited-scale when desired
// exceeds the deployment's available replicas, or no-scale), and —
// subject to a five-minute per-service debounce — persists the event.
// A 1/0 effectiveness sample (desired == available) is recorded on
// every tick, independent of the baseline and debounce checks.
func (c *Controller) observeScalingEvents() error {
	services, err := trackedServices(c.ctx, c.store)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, service := range services {
		as, err := c.orchestrator.GetAutoscaler(c.ctx, c.cfg.Namespace, service)
		if err != nil {
			logger.Warnf("autoscaling: observer: get autoscaler %s: %v", service, err)
			continue
		}
		if as == nil {
			continue
		}

		checkpointKey := observerCheckpointKeyPrefix + service
		raw, ok, err := c.store.Get(c.ctx, checkpointKey)
		if err != nil {
			continue
		}
		var last int32
		if ok {
			n, _ := strconv.ParseInt(raw, 10, 32)
			last = int32(n)
		}
		_ = c.store.Set(c.ctx, checkpointKey, strconv.FormatInt(int64(as.Current), 10), 0)

		if err := RecordEffectiveness(c.ctx, c.store, service, now, as.Desired == as.Available); err != nil {
			logger.Warnf("autoscaling: observer: record effectiveness for %s: %v", service, err)
		}

		if !ok {
			continue // first observation establishes the baseline, not an event
		}

		direction := classifyScalingEvent(as, last)
		if direction == ScaleDirectionNone {
			continue
		}

		if !c.debounceElapsed(service, now) {
			continue
		}

		if err := RecordEvent(c.ctx, c.store, Event{
			Service:         service,
			Namespace:       c.cfg.Namespace,
			Direction:       direction,
			FromReplicas:    last,
			ToReplicas:      as.Current,
			Available:       as.Available,
			MetricKind:      as.MetricKind,
			MetricName:      as.MetricName,
			MetricValue:     as.MetricValue,
			MetricThreshold: as.MetricThreshold,
			ObservedAt:      now,
		}); err != nil {
			logger.Warnf("autoscaling: observer: record event for %s: %v", service, err)
			continue
		}
		metrics.ScalingEventsTotal.WithLabelValues(service, direction).Inc()
		_ = c.store.Set(c.ctx, observerLastLoggedKeyPrefix+service, strconv.FormatInt(now.UnixNano(), 10), 0)
	}
	return nil
}

// classifyScalingEvent applies the documented precedence: a
// capacity-limited scale-up always wins, then whether replicas moved
// since the last tick, else no-scale.
func classifyScalingEvent(as *orchestrator.AutoscalerSpec, last int32) string {
	if as.Desired > as.Available {
		return ScaleDirectionLimited
	}
	if as.Current > last {
		return ScaleDirectionUp
	}
	if as.Current < last {
		return ScaleDirectionDown
	}
	return ScaleDirectionNone
}

func (c *Controller) debounceElapsed(service string, now time.Time) bool {
	raw, ok, err := c.store.Get(c.ctx, observerLastLoggedKeyPrefix+service)
	if err != nil || !ok {
		return true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return now.Sub(time.Unix(0, n)) >= observerDebounce
}
