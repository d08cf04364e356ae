package task

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/metrics"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
)

// breakerOpenRequeueDelay is the fixed re-queue delay applied while a
// task type's circuit breaker is open, independent of the lane's own
// retry backoff.
const breakerOpenRequeueDelay = time.Second

// LaneConfig configures one priority lane's scan loop.
type LaneConfig struct {
	Concurrency int
	RateLimit   rate.Limit // dispatches per second, 0 = unlimited
}

// SchedulerConfig configures the scheduler as a whole, generalizing
// Lens/modules/core/pkg/task/scheduler.go's SchedulerConfig from one
// shared MaxConcurrentTasks/ScanInterval pair into one pair per
// priority lane.
type SchedulerConfig struct {
	ScanInterval       time.Duration
	Lanes              map[resources.Priority]LaneConfig
	CleanupInterval    time.Duration
	OldTaskRetention   time.Duration
	RetryBaseDelay     time.Duration
	MaxRetries         int
	Breaker            BreakerConfig
}

// DefaultSchedulerConfig sets the per-priority lane defaults: HIGH
// (50 concurrency, 100 rps), MEDIUM (30, 50), LOW (20, 25), BATCH
// (10, 10). Lanes carry only concurrency and rate limit; retries and
// backoff are not set per lane. MaxRetries (3) applies to every lane
// when a task doesn't carry its own max-retries override, and
// RetryBaseDelay (1s) is the backoff base for every lane. The circuit
// breaker defaults to a failure threshold of 5 and a 60s open/reset
// window.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ScanInterval: time.Second,
		Lanes: map[resources.Priority]LaneConfig{
			resources.PriorityHigh:   {Concurrency: 50, RateLimit: 100},
			resources.PriorityMedium: {Concurrency: 30, RateLimit: 50},
			resources.PriorityLow:    {Concurrency: 20, RateLimit: 25},
			resources.PriorityBatch:  {Concurrency: 10, RateLimit: 10},
		},
		CleanupInterval:  time.Hour,
		OldTaskRetention: 7 * 24 * time.Hour,
		RetryBaseDelay:   1 * time.Second,
		MaxRetries:       3,
		Breaker:          BreakerConfig{FailureThreshold: 5, OpenDuration: 60 * time.Second, HalfOpenProbes: 1},
	}
}

// Scheduler runs one scan/dispatch loop per priority lane against a
// shared kvstore-backed set of ordered-set queues, the same
// ctx/cancel/wg shape as TaskScheduler in
// Lens/modules/core/pkg/task/scheduler.go.
type Scheduler struct {
	store     kvstore.Store
	cfg       SchedulerConfig
	breaker   *Breaker
	executors map[string]TaskExecutor

	// defaultExecutor handles any task type with no exact entry in
	// executors — the coordinator's single workflow-dispatch path
	// serves every task type this way, since task types are
	// open-ended template names rather than a fixed enum.
	defaultExecutor TaskExecutor

	mu      sync.Mutex
	running map[resources.Priority]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(store kvstore.Store, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:     store,
		cfg:       cfg,
		breaker:   NewBreaker(cfg.Breaker),
		executors: make(map[string]TaskExecutor),
		running:   make(map[resources.Priority]int),
	}
}

func (s *Scheduler) RegisterExecutor(e TaskExecutor) {
	s.executors[e.Type()] = e
}

// RegisterDefaultExecutor sets the executor used for any task type with
// no exact match in the registry. Task types are open-ended template
// names supplied by callers, so a single generic dispatcher commonly
// serves all of them.
func (s *Scheduler) RegisterDefaultExecutor(e TaskExecutor) {
	s.defaultExecutor = e
}

// Start launches one scan loop per configured lane plus the cleanup
// loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for priority, lane := range s.cfg.Lanes {
		limiter := rate.NewLimiter(rate.Inf, 1)
		if lane.RateLimit > 0 {
			limiter = rate.NewLimiter(lane.RateLimit, maxInt(1, int(lane.RateLimit)))
		}
		s.wg.Add(1)
		go s.scanLoop(priority, lane, limiter)
	}

	s.wg.Add(1)
	go s.cleanupLoop()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) scanLoop(priority resources.Priority, lane LaneConfig, limiter *rate.Limiter) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.scanAndDispatch(priority, lane, limiter)
		}
	}
}

func (s *Scheduler) scanAndDispatch(priority resources.Priority, lane LaneConfig, limiter *rate.Limiter) {
	depth, err := queueDepth(s.ctx, s.store, priority)
	if err == nil {
		metrics.QueueDepth.WithLabelValues(string(priority)).Set(float64(depth))
		metrics.QueueDepthByPriority.WithLabelValues(string(priority)).Set(float64(depth))
	}

	s.mu.Lock()
	slots := lane.Concurrency - s.running[priority]
	s.mu.Unlock()
	if slots <= 0 {
		return
	}

	ids, err := popNext(s.ctx, s.store, priority, int64(slots), time.Now())
	if err != nil {
		logger.Errorf("task scheduler: pop lane %s: %v", priority, err)
		return
	}

	for _, id := range ids {
		t, ok, err := LoadTask(s.ctx, s.store, id)
		if err != nil || !ok {
			continue
		}
		if t.Status == StatusCancelled {
			// cancelled between enqueue and pop; already removed from the
			// lane by popNext, nothing further to do.
			continue
		}
		if !limiter.Allow() {
			// rate-limited: return the task to its lane for the next tick
			_ = requeue(s.ctx, s.store, t, 0)
			continue
		}
		if !s.breaker.Allow(t.Type) {
			metrics.TaskDispatchTotal.WithLabelValues(t.Type, "breaker_open").Inc()
			_ = requeue(s.ctx, s.store, t, breakerOpenRequeueDelay)
			continue
		}

		executor, ok := s.executors[t.Type]
		if !ok {
			executor = s.defaultExecutor
		}
		if executor == nil {
			logger.Warnf("task scheduler: no executor registered for type %q", t.Type)
			continue
		}
		if err := executor.Validate(t); err != nil {
			t.Status = StatusFailed
			t.Error = err.Error()
			now := time.Now()
			t.CompletedAt = &now
			_ = SaveTask(s.ctx, s.store, t)
			_ = MarkTerminal(s.ctx, s.store, t)
			continue
		}

		s.mu.Lock()
		s.running[priority]++
		s.mu.Unlock()
		metrics.QueueRunning.WithLabelValues(string(priority)).Inc()

		s.wg.Add(1)
		go s.dispatch(priority, executor, t)
	}
}

func (s *Scheduler) dispatch(priority resources.Priority, executor TaskExecutor, t *Task) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[priority]--
		s.mu.Unlock()
		metrics.QueueRunning.WithLabelValues(string(priority)).Dec()
	}()

	now := time.Now()
	t.Status = StatusRunning
	t.StartedAt = &now
	_ = SaveTask(s.ctx, s.store, t)

	start := time.Now()
	result, err := executor.Execute(s.ctx, t)
	metrics.TaskDispatchDuration.WithLabelValues(t.Type).Observe(time.Since(start).Seconds())

	if err != nil || (result != nil && !result.Success) {
		s.breaker.RecordFailure(t.Type)
		s.handleFailure(t, result, err)
		return
	}

	s.breaker.RecordSuccess(t.Type)
	s.applyResult(t, result)
}

func (s *Scheduler) handleFailure(t *Task, result *ExecutionResult, execErr error) {
	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	} else if result != nil {
		errMsg = result.Error
	}
	t.Error = errMsg

	maxRetries := t.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	if t.RetryCount < maxRetries {
		t.RetryCount++
		t.Status = StatusPending
		delay := NextRetryDelay(s.cfg.RetryBaseDelay, t.RetryCount)
		metrics.TaskDispatchTotal.WithLabelValues(t.Type, "retry").Inc()
		_ = requeue(s.ctx, s.store, t, delay)
		return
	}

	now := time.Now()
	t.Status = StatusFailed
	t.CompletedAt = &now
	metrics.TaskDispatchTotal.WithLabelValues(t.Type, "failed").Inc()
	_ = SaveTask(s.ctx, s.store, t)
	_ = MarkTerminal(s.ctx, s.store, t)
}

func (s *Scheduler) applyResult(t *Task, result *ExecutionResult) {
	if result != nil {
		t.Status = result.NewStatus
	} else {
		t.Status = StatusCompleted
	}

	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		now := time.Now()
		t.CompletedAt = &now
		metrics.TaskDispatchTotal.WithLabelValues(t.Type, "completed").Inc()
		_ = SaveTask(s.ctx, s.store, t)
		_ = MarkTerminal(s.ctx, s.store, t)
	case StatusPending:
		_ = requeue(s.ctx, s.store, t, 0)
	default: // Running: long-lived task, leave it be until next observation
		_ = SaveTask(s.ctx, s.store, t)
	}
}

func (s *Scheduler) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.OldTaskRetention)
			n, err := CleanupOlderThan(s.ctx, s.store, cutoff)
			if err != nil {
				logger.Errorf("task scheduler: cleanup: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("task scheduler: cleaned up %d terminal tasks older than %s", n, s.cfg.OldTaskRetention)
			}
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
