// Package config loads the coordinator's YAML configuration file and
// fills in defaults the way Lens/modules/core/pkg/config.Config does —
// a flat struct of nested sub-configs, each with GetXxx() accessors
// that return a sane default when the field is left zero-valued.
package config

import (
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"

	apperrors "github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/errors"
)

const (
	defaultConfigPath = "config.yaml"

	defaultScanInterval          = "1s"
	defaultCleanupInterval       = "1h"
	defaultOldTaskRetentionDays  = 7
	defaultReservationTTLSeconds = 30
	defaultMetricsBindAddress    = ":19191"
	defaultHealthzBindAddress    = ":19192"
)

// Config is the coordinator's root configuration.
type Config struct {
	StoreURL           string       `yaml:"store_url"`
	Namespace          string       `yaml:"namespace"`
	ServiceAccountName string       `yaml:"service_account_name"`
	LogLevel           string       `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Queue     QueueConfig     `yaml:"queue"`
	Cache     CacheConfig     `yaml:"cache"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Autoscale AutoscaleConfig `yaml:"autoscale"`
}

type ServerConfig struct {
	MetricsBindAddress string `yaml:"metrics_bind_address"`
	HealthzBindAddress string `yaml:"healthz_bind_address"`
}

// GetServiceAccountName returns the service account the orchestrator
// adapter runs dispatched workflows under, defaulting to "default".
func (c *Config) GetServiceAccountName() string {
	if c.ServiceAccountName == "" {
		return "default"
	}
	return c.ServiceAccountName
}

func (c ServerConfig) GetMetricsBindAddress() string {
	if c.MetricsBindAddress == "" {
		return defaultMetricsBindAddress
	}
	return c.MetricsBindAddress
}

func (c ServerConfig) GetHealthzBindAddress() string {
	if c.HealthzBindAddress == "" {
		return defaultHealthzBindAddress
	}
	return c.HealthzBindAddress
}

// PriorityLaneConfig configures one priority lane's scheduling loop.
type PriorityLaneConfig struct {
	Concurrency     int     `yaml:"concurrency"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

type QueueConfig struct {
	ScanInterval          string                        `yaml:"scan_interval"`
	Lanes                 map[string]PriorityLaneConfig `yaml:"lanes"`
	OldTaskCleanupDays    int                           `yaml:"old_task_cleanup_days"`
	OldTaskCleanupCron    string                        `yaml:"old_task_cleanup_cron"`
	MaxRetries            int                           `yaml:"max_retries"`
	RetryBaseDelaySeconds int                           `yaml:"retry_base_delay_seconds"`
}

func (c QueueConfig) GetScanInterval() string {
	if c.ScanInterval == "" {
		return defaultScanInterval
	}
	return c.ScanInterval
}

func (c QueueConfig) GetOldTaskCleanupDays() int {
	if c.OldTaskCleanupDays <= 0 {
		return defaultOldTaskRetentionDays
	}
	return c.OldTaskCleanupDays
}

func (c QueueConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

func (c QueueConfig) GetRetryBaseDelaySeconds() int {
	if c.RetryBaseDelaySeconds <= 0 {
		return 2
	}
	return c.RetryBaseDelaySeconds
}

type CacheConfig struct {
	DefaultTTLSeconds    int `yaml:"default_ttl_seconds"`
	ReservationTTLSeconds int `yaml:"reservation_ttl_seconds"`
}

func (c CacheConfig) GetDefaultTTLSeconds() int {
	if c.DefaultTTLSeconds <= 0 {
		return 86400
	}
	return c.DefaultTTLSeconds
}

func (c CacheConfig) GetReservationTTLSeconds() int {
	if c.ReservationTTLSeconds <= 0 {
		return defaultReservationTTLSeconds
	}
	return c.ReservationTTLSeconds
}

type BreakerConfig struct {
	FailureThreshold   int `yaml:"failure_threshold"`
	OpenDurationSeconds int `yaml:"open_duration_seconds"`
	HalfOpenProbes     int `yaml:"half_open_probes"`
}

func (c BreakerConfig) GetFailureThreshold() int {
	if c.FailureThreshold <= 0 {
		return 5
	}
	return c.FailureThreshold
}

func (c BreakerConfig) GetOpenDurationSeconds() int {
	if c.OpenDurationSeconds <= 0 {
		return 60
	}
	return c.OpenDurationSeconds
}

func (c BreakerConfig) GetHalfOpenProbes() int {
	if c.HalfOpenProbes <= 0 {
		return 1
	}
	return c.HalfOpenProbes
}

type AutoscaleConfig struct {
	DependencyCascadeIntervalSeconds int    `yaml:"dependency_cascade_interval_seconds"`
	PredictiveApplyIntervalSeconds   int    `yaml:"predictive_apply_interval_seconds"`
	PredictiveAnalysisCron           string `yaml:"predictive_analysis_cron"`
	ObserverIntervalSeconds          int    `yaml:"observer_interval_seconds"`
}

func (c AutoscaleConfig) GetDependencyCascadeIntervalSeconds() int {
	if c.DependencyCascadeIntervalSeconds <= 0 {
		return 60
	}
	return c.DependencyCascadeIntervalSeconds
}

func (c AutoscaleConfig) GetPredictiveApplyIntervalSeconds() int {
	if c.PredictiveApplyIntervalSeconds <= 0 {
		return 300
	}
	return c.PredictiveApplyIntervalSeconds
}

func (c AutoscaleConfig) GetObserverIntervalSeconds() int {
	if c.ObserverIntervalSeconds <= 0 {
		return 30
	}
	return c.ObserverIntervalSeconds
}

// LoadConfig reads CONFIG_PATH (default config.yaml), YAML-decodes it,
// and applies environment overrides for STORE_URL, NAMESPACE, and
// LOG_LEVEL.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewError().
			WithCode(apperrors.CodeInitializeError).
			WithMessagef("open config file %q", path).
			WithError(err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, apperrors.NewError().
			WithCode(apperrors.CodeInitializeError).
			WithMessagef("decode config file %q", path).
			WithError(err)
	}

	if v := os.Getenv("STORE_URL"); v != "" {
		cfg.StoreURL = v
	}
	if v := os.Getenv("NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.StoreURL == "" {
		return nil, apperrors.NewError().
			WithCode(apperrors.CodeLackOfConfig).
			WithMessage("store_url is required")
	}

	if err := validateCronOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateCronOverrides checks any cron-expression interval overrides
// parse as standard five-field cron, rejecting a malformed schedule at
// startup. The overrides are only validated here: the cleanup and
// predictive-analysis loops run on their fixed intervals and do not
// read them.
func validateCronOverrides(cfg *Config) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if cfg.Queue.OldTaskCleanupCron != "" {
		if _, err := parser.Parse(cfg.Queue.OldTaskCleanupCron); err != nil {
			return apperrors.NewError().
				WithCode(apperrors.CodeLackOfConfig).
				WithMessagef("queue.old_task_cleanup_cron %q", cfg.Queue.OldTaskCleanupCron).
				WithError(err)
		}
	}
	if cfg.Autoscale.PredictiveAnalysisCron != "" {
		if _, err := parser.Parse(cfg.Autoscale.PredictiveAnalysisCron); err != nil {
			return apperrors.NewError().
				WithCode(apperrors.CodeLackOfConfig).
				WithMessagef("autoscale.predictive_analysis_cron %q", cfg.Autoscale.PredictiveAnalysisCron).
				WithError(err)
		}
	}
	return nil
}
