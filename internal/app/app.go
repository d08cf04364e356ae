// Package app wires together the coordinator's components: the
// key-value store, orchestrator, cache, quality assessor, resource
// allocator, task scheduler, message bus, and autoscaling controller.
// Grounded on the load-config-then-construct-then-start shape used by
// Lens/modules/core's service entrypoints.
package app

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/autoscaling"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/cache"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/config"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/orchestrator"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/quality"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/resources"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/task"
)

// App holds every wired component for the lifetime of the process.
type App struct {
	Config       *config.Config
	Store        kvstore.Store
	Orchestrator orchestrator.Orchestrator
	Cache        *cache.Cache
	Quality      *quality.Assessor
	Resources    *resources.Allocator
	Scheduler    *task.Scheduler
	Autoscaling  *autoscaling.Controller
	Bus          MessageBus
}

// New constructs every component from cfg. orch is injected so callers that don't have cluster credentials (tests, or
// a coordinator instance that only does queue management) can pass a
// stub implementation. msgBus may be nil, in which case event
// publication and workflow-event ingestion are both no-ops.
func New(cfg *config.Config, store kvstore.Store, orch orchestrator.Orchestrator, msgBus MessageBus) *App {
	resultCache := cache.New(
		store,
		time.Duration(cfg.Cache.GetDefaultTTLSeconds())*time.Second,
		time.Duration(cfg.Cache.GetReservationTTLSeconds())*time.Second,
	)

	schedulerCfg := task.DefaultSchedulerConfig()
	schedulerCfg.Breaker = task.BreakerConfig{
		FailureThreshold: cfg.Breaker.GetFailureThreshold(),
		OpenDuration:     time.Duration(cfg.Breaker.GetOpenDurationSeconds()) * time.Second,
		HalfOpenProbes:   cfg.Breaker.GetHalfOpenProbes(),
	}
	schedulerCfg.MaxRetries = cfg.Queue.GetMaxRetries()
	schedulerCfg.RetryBaseDelay = time.Duration(cfg.Queue.GetRetryBaseDelaySeconds()) * time.Second
	schedulerCfg.OldTaskRetention = time.Duration(cfg.Queue.GetOldTaskCleanupDays()) * 24 * time.Hour
	for priority, lane := range cfg.Queue.Lanes {
		schedulerCfg.Lanes[resources.Priority(priority)] = task.LaneConfig{
			Concurrency: lane.Concurrency,
			RateLimit:   rate.Limit(lane.RateLimitPerSec),
		}
	}

	scheduler := task.NewScheduler(store, schedulerCfg)

	autoscaleCfg := autoscaling.DefaultConfig()
	autoscaleCfg.Namespace = cfg.Namespace
	autoscaleCfg.DependencyCascadeInterval = time.Duration(cfg.Autoscale.GetDependencyCascadeIntervalSeconds()) * time.Second
	autoscaleCfg.PredictiveApplyInterval = time.Duration(cfg.Autoscale.GetPredictiveApplyIntervalSeconds()) * time.Second
	autoscaleCfg.ObserverInterval = time.Duration(cfg.Autoscale.GetObserverIntervalSeconds()) * time.Second

	autoscaleController := autoscaling.NewController(store, orch, autoscaleCfg)

	a := &App{
		Config:       cfg,
		Store:        store,
		Orchestrator: orch,
		Cache:        resultCache,
		Quality:      quality.NewDefault(),
		Resources:    resources.New(),
		Scheduler:    scheduler,
		Autoscaling:  autoscaleController,
		Bus:          msgBus,
	}

	// Task types are open-ended template names chosen by submitters, not
	// a fixed enum, so the single workflow-dispatch executor serves every
	// type rather than being registered under one literal type string.
	scheduler.RegisterDefaultExecutor(newWorkflowExecutor(a))

	return a
}

// Start launches the scheduler loop, the autoscaling loop, and the
// workflow-events subscription.
func (a *App) Start(ctx context.Context) {
	logger.Infof("coordinator: starting task scheduler and autoscaling loops")
	a.Scheduler.Start(ctx)
	a.Autoscaling.Start(ctx)
	go a.subscribeWorkflowEvents(ctx)
}

// Stop gracefully drains every loop.
func (a *App) Stop() {
	a.Scheduler.Stop()
	a.Autoscaling.Stop()
	if err := a.Store.Close(); err != nil {
		logger.Warnf("coordinator: close store: %v", err)
	}
}
