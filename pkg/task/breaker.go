package task

import (
	"sync"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/metrics"
)

// BreakerState mirrors sony/gobreaker's state vocabulary
// (StateClosed/StateOpen/StateHalfOpen), though the state machine
// itself is hand-rolled: gobreaker wraps a single call and returns its
// result, but this breaker re-queues the task with a delay instead of
// rejecting the call outright, which doesn't fit gobreaker's wrapping
// API.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig configures one task type's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
	HalfOpenProbes   int
}

type breakerRecord struct {
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenProbesUsed  int
}

// Breaker tracks one circuit-breaker state machine per task type.
type Breaker struct {
	mu      sync.Mutex
	cfg     BreakerConfig
	records map[string]*breakerRecord
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, records: make(map[string]*breakerRecord)}
}

// Allow reports whether a task of taskType may be dispatched right
// now. A half-open breaker allows up to HalfOpenProbes concurrent
// probe dispatches before closing the gate again until the probe
// result is recorded.
func (b *Breaker) Allow(taskType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.recordLocked(taskType)
	switch r.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(r.openedAt) >= b.cfg.OpenDuration {
			r.state = StateHalfOpen
			r.halfOpenProbesUsed = 0
			b.setMetric(taskType, r.state)
		} else {
			return false
		}
		fallthrough
	case StateHalfOpen:
		if r.halfOpenProbesUsed >= b.cfg.HalfOpenProbes {
			return false
		}
		r.halfOpenProbesUsed++
		return true
	}
	return false
}

// RecordSuccess closes the breaker (or keeps it closed).
func (b *Breaker) RecordSuccess(taskType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.recordLocked(taskType)
	r.consecutiveFailures = 0
	r.state = StateClosed
	r.halfOpenProbesUsed = 0
	b.setMetric(taskType, r.state)
}

// RecordFailure increments the failure count and opens the breaker
// once the threshold is reached, or immediately re-opens it if a
// half-open probe fails.
func (b *Breaker) RecordFailure(taskType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.recordLocked(taskType)

	if r.state == StateHalfOpen {
		r.state = StateOpen
		r.openedAt = time.Now()
		b.setMetric(taskType, r.state)
		return
	}

	r.consecutiveFailures++
	if r.consecutiveFailures >= b.cfg.FailureThreshold {
		r.state = StateOpen
		r.openedAt = time.Now()
		b.setMetric(taskType, r.state)
	}
}

func (b *Breaker) State(taskType string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recordLocked(taskType).state
}

func (b *Breaker) recordLocked(taskType string) *breakerRecord {
	r, ok := b.records[taskType]
	if !ok {
		r = &breakerRecord{state: StateClosed}
		b.records[taskType] = r
	}
	return r
}

func (b *Breaker) setMetric(taskType string, state BreakerState) {
	metrics.CircuitBreakerState.WithLabelValues(taskType).Set(float64(state))
}
