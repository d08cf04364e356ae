package autoscaling

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
)

const (
	dependencyKey          = "autoscale:dependencies"
	loadPatternKeyPrefix   = "autoscale:loadpattern:"
	predictionKeyPrefix    = "autoscale:prediction:"
	predictionHistoryPfx   = "autoscale:prediction-history:"
	eventIndexKey          = "autoscale:events"
	serviceEventKeyPrefix  = "autoscale:events:"
	effectivenessKeyPrefix = "autoscale:effectiveness:"
	predictionHistoryLimit = 100
	serviceEventLimit      = 100
	globalEventLimit       = 1000
	effectivenessLimit     = 100
)

// trimZSetToLimit pops the oldest members off key until its size is
// at most limit.
func trimZSetToLimit(ctx context.Context, store kvstore.Store, key string, limit int64) error {
	count, err := store.ZCount(ctx, key, 0, math.MaxFloat64)
	if err != nil {
		return err
	}
	if count <= limit {
		return nil
	}
	_, err = store.ZPopMin(ctx, key, count-limit)
	return err
}

func SaveDependencies(ctx context.Context, store kvstore.Store, deps []Dependency) error {
	data, err := json.Marshal(deps)
	if err != nil {
		return err
	}
	return store.Set(ctx, dependencyKey, string(data), 0)
}

func LoadDependencies(ctx context.Context, store kvstore.Store) ([]Dependency, error) {
	raw, ok, err := store.Get(ctx, dependencyKey)
	if err != nil || !ok {
		return nil, err
	}
	var deps []Dependency
	if err := json.Unmarshal([]byte(raw), &deps); err != nil {
		return nil, err
	}
	return deps, nil
}

// SaveLoadPatterns replaces the full set of recurring windows
// configured for a service.
func SaveLoadPatterns(ctx context.Context, store kvstore.Store, service string, patterns []LoadPattern) error {
	data, err := json.Marshal(patterns)
	if err != nil {
		return err
	}
	return store.Set(ctx, loadPatternKeyPrefix+service, string(data), 0)
}

// LoadPatterns returns the recurring windows configured for a service.
func LoadPatterns(ctx context.Context, store kvstore.Store, service string) ([]LoadPattern, error) {
	raw, ok, err := store.Get(ctx, loadPatternKeyPrefix+service)
	if err != nil || !ok {
		return nil, err
	}
	var patterns []LoadPattern
	if err := json.Unmarshal([]byte(raw), &patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func SavePrediction(ctx context.Context, store kvstore.Store, p Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return store.Set(ctx, predictionKeyPrefix+p.Service, string(data), 2*time.Hour)
}

func LoadPrediction(ctx context.Context, store kvstore.Store, service string) (*Prediction, bool, error) {
	raw, ok, err := store.Get(ctx, predictionKeyPrefix+service)
	if err != nil || !ok {
		return nil, ok, err
	}
	var p Prediction
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// MarkPredictionApplied flips a service's current prediction to
// applied, so applyPredictions never patches it twice.
func MarkPredictionApplied(ctx context.Context, store kvstore.Store, p Prediction, appliedAt time.Time) error {
	p.Applied = true
	p.AppliedAt = &appliedAt
	return SavePrediction(ctx, store, p)
}

type predictionOutcome struct {
	Hit bool `json:"hit"`
}

// recordPredictionOutcome appends whether a just-generated prediction
// fell within ±1 of the actual current replicas at generation time,
// trimming the service's history to the most recent 100 outcomes.
func recordPredictionOutcome(ctx context.Context, store kvstore.Store, service string, at time.Time, hit bool) error {
	data, err := json.Marshal(predictionOutcome{Hit: hit})
	if err != nil {
		return err
	}
	key := predictionHistoryPfx + service
	if err := store.ZAdd(ctx, key, string(data), float64(at.UnixNano())); err != nil {
		return err
	}
	return trimZSetToLimit(ctx, store, key, predictionHistoryLimit)
}

// predictionConfidence is the fraction of the last ≤100 recorded
// prediction outcomes for service that were hits, defaulting to 0.8
// when there's no history yet and 0.5 if the history can't be read.
func predictionConfidence(ctx context.Context, store kvstore.Store, service string) float64 {
	members, err := store.ZRange(ctx, predictionHistoryPfx+service, 0, math.MaxFloat64)
	if err != nil {
		return 0.5
	}
	if len(members) == 0 {
		return 0.8
	}
	hits := 0
	for _, m := range members {
		var o predictionOutcome
		if err := json.Unmarshal([]byte(m.Member), &o); err != nil {
			continue
		}
		if o.Hit {
			hits++
		}
	}
	return float64(hits) / float64(len(members))
}

// RecordEvent appends e to both the global event list (trimmed to the
// most recent 1000) and its service's own list (trimmed to 100).
func RecordEvent(ctx context.Context, store kvstore.Store, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	score := float64(e.ObservedAt.UnixNano())
	if err := store.ZAdd(ctx, eventIndexKey, string(data), score); err != nil {
		return err
	}
	if err := trimZSetToLimit(ctx, store, eventIndexKey, globalEventLimit); err != nil {
		return err
	}
	serviceKey := serviceEventKeyPrefix + e.Service
	if err := store.ZAdd(ctx, serviceKey, string(data), score); err != nil {
		return err
	}
	return trimZSetToLimit(ctx, store, serviceKey, serviceEventLimit)
}

// RecentEvents returns the global event list with ObservedAt at or
// after since (a UnixNano timestamp; pass 0 for the whole list).
func RecentEvents(ctx context.Context, store kvstore.Store, since int64) ([]Event, error) {
	return rangeEvents(ctx, store, eventIndexKey, since)
}

// RecentServiceEvents returns one service's own trimmed event list,
// same since semantics as RecentEvents.
func RecentServiceEvents(ctx context.Context, store kvstore.Store, service string, since int64) ([]Event, error) {
	return rangeEvents(ctx, store, serviceEventKeyPrefix+service, since)
}

func rangeEvents(ctx context.Context, store kvstore.Store, key string, since int64) ([]Event, error) {
	members, err := store.ZRange(ctx, key, float64(since), math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(members))
	for _, m := range members {
		var e Event
		if err := json.Unmarshal([]byte(m.Member), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type effectivenessSample struct {
	Effective bool `json:"effective"`
}

// RecordEffectiveness appends a per-service effectiveness sample (1 if
// desired replicas equalled actual/available, else 0), trimmed to the
// most recent 100.
func RecordEffectiveness(ctx context.Context, store kvstore.Store, service string, at time.Time, effective bool) error {
	data, err := json.Marshal(effectivenessSample{Effective: effective})
	if err != nil {
		return err
	}
	key := effectivenessKeyPrefix + service
	if err := store.ZAdd(ctx, key, string(data), float64(at.UnixNano())); err != nil {
		return err
	}
	return trimZSetToLimit(ctx, store, key, effectivenessLimit)
}
