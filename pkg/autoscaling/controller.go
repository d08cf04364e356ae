package autoscaling

import (
	"context"
	"sync"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/orchestrator"
)

// Config controls the cadence of the three autoscaling loops.
type Config struct {
	DependencyCascadeInterval time.Duration
	PredictiveApplyInterval   time.Duration
	ObserverInterval          time.Duration
	Namespace                 string
}

func DefaultConfig() Config {
	return Config{
		DependencyCascadeInterval: 60 * time.Second,
		PredictiveApplyInterval:   5 * time.Minute,
		ObserverInterval:          30 * time.Second,
	}
}

// Controller runs the dependency cascade, predictive scaling, and
// scaling-event observer loops.
type Controller struct {
	store        kvstore.Store
	orchestrator orchestrator.Orchestrator
	cfg          Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(store kvstore.Store, o orchestrator.Orchestrator, cfg Config) *Controller {
	return &Controller{store: store, orchestrator: o, cfg: cfg}
}

func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(3)
	go c.dependencyCascadeLoop()
	go c.predictiveLoop()
	go c.observerLoop()
}

func (c *Controller) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) dependencyCascadeLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.DependencyCascadeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.runDependencyCascade(); err != nil {
				logger.Errorf("autoscaling: dependency cascade: %v", err)
			}
		}
	}
}

func (c *Controller) predictiveLoop() {
	defer c.wg.Done()
	analysisTicker := time.NewTicker(time.Hour)
	applyTicker := time.NewTicker(c.cfg.PredictiveApplyInterval)
	defer analysisTicker.Stop()
	defer applyTicker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-analysisTicker.C:
			if err := c.runPredictiveAnalysis(); err != nil {
				logger.Errorf("autoscaling: predictive analysis: %v", err)
			}
		case <-applyTicker.C:
			if err := c.applyPredictions(); err != nil {
				logger.Errorf("autoscaling: apply predictions: %v", err)
			}
		}
	}
}

func (c *Controller) observerLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.ObserverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.observeScalingEvents(); err != nil {
				logger.Errorf("autoscaling: observer: %v", err)
			}
		}
	}
}
