// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sigil-dev/modelroute/internal/fallback"
	"github.com/sigil-dev/modelroute/internal/profiler"
	"github.com/sigil-dev/modelroute/internal/router"
	"github.com/sigil-dev/modelroute/internal/store"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MODELROUTE_STORAGE_BACKEND.
const EnvPrefix = "MODELROUTE"

// Config is the top-level modelroute configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Profiler ProfilerConfig `mapstructure:"profiler"`
	Router   RouterConfig   `mapstructure:"router"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ProfilerConfig controls metric retention and health scoring.
type ProfilerConfig struct {
	MaxMetricsPerModel int           `mapstructure:"max_metrics_per_model"`
	Retention          time.Duration `mapstructure:"retention"`
	FlushDelay         time.Duration `mapstructure:"flush_delay"`
	LatencyCeiling     time.Duration `mapstructure:"latency_ceiling"`
	NeutralFeedback    float64       `mapstructure:"neutral_feedback"`
	HealthyMinScore    float64       `mapstructure:"healthy_min_score"`
	Weights            WeightsConfig `mapstructure:"weights"`
}

// WeightsConfig sets the health score weights. They must sum to 100.
type WeightsConfig struct {
	Success       float64 `mapstructure:"success"`
	Latency       float64 `mapstructure:"latency"`
	Feedback      float64 `mapstructure:"feedback"`
	Hallucination float64 `mapstructure:"hallucination"`
}

// RouterConfig controls candidate scoring.
type RouterConfig struct {
	CapabilityWeight float64 `mapstructure:"capability_weight"`
	NeutralHealth    float64 `mapstructure:"neutral_health"`
	MinPrimaryScore  float64 `mapstructure:"min_primary_score"`
	DefaultMatch     float64 `mapstructure:"default_match"`
	// CapabilitiesFile is an optional YAML file of task → model → match.
	// Inline Capabilities entries override it.
	CapabilitiesFile string             `mapstructure:"capabilities_file"`
	Capabilities     []CapabilityConfig `mapstructure:"capabilities"`
}

// CapabilityConfig is one capability table entry. Task "*" applies to
// every task type. Entries are a list because model ids often contain
// dots, which viper treats as key separators.
type CapabilityConfig struct {
	Task  string  `mapstructure:"task"`
	Model string  `mapstructure:"model"`
	Match float64 `mapstructure:"match"`
}

// FallbackConfig bounds each fallback chain.
type FallbackConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	Budget         time.Duration `mapstructure:"budget"`
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	// Path defaults to a backend-specific file under data_dir.
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	validBackends = []string{"file", "memory", "sqlite"}
	validLevels   = []string{"debug", "info", "warn", "error"}
	validFormats  = []string{"text", "json"}

	// snapshotFileNames are the default file names under data_dir.
	snapshotFileNames = map[string]string{
		"file":   "model-health.json",
		"sqlite": "model-health.db",
	}
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	pd := profiler.DefaultConfig()
	v.SetDefault("data_dir", "")
	v.SetDefault("profiler.max_metrics_per_model", pd.MaxMetricsPerModel)
	v.SetDefault("profiler.retention", pd.Retention)
	v.SetDefault("profiler.flush_delay", pd.FlushDelay)
	v.SetDefault("profiler.latency_ceiling", pd.LatencyCeiling)
	v.SetDefault("profiler.neutral_feedback", pd.NeutralFeedback)
	v.SetDefault("profiler.healthy_min_score", pd.HealthyMinScore)
	v.SetDefault("profiler.weights.success", pd.Weights.Success)
	v.SetDefault("profiler.weights.latency", pd.Weights.Latency)
	v.SetDefault("profiler.weights.feedback", pd.Weights.Feedback)
	v.SetDefault("profiler.weights.hallucination", pd.Weights.Hallucination)

	rd := router.DefaultConfig()
	v.SetDefault("router.capability_weight", rd.CapabilityWeight)
	v.SetDefault("router.neutral_health", rd.NeutralHealth)
	v.SetDefault("router.min_primary_score", rd.MinPrimaryScore)
	v.SetDefault("router.default_match", rd.DefaultMatch)
	v.SetDefault("router.capabilities_file", "")

	fd := fallback.DefaultConfig()
	v.SetDefault("fallback.max_attempts", fd.MaxAttempts)
	v.SetDefault("fallback.attempt_timeout", fd.AttemptTimeout)
	v.SetDefault("fallback.budget", fd.Budget)

	v.SetDefault("storage.backend", store.DefaultBackend)
	v.SetDefault("storage.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv enables MODELROUTE_ environment overrides; dots in keys become
// underscores.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix MODELROUTE_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if err := c.ProfilerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.validateRouter()...)
	if err := c.FallbackConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateRouter() []error {
	var errs []error

	for i, entry := range c.Router.Capabilities {
		if entry.Task == "" || entry.Model == "" {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
				"config: router.capabilities[%d] needs both task and model", i))
		}
	}

	caps, err := c.capabilities()
	if err != nil {
		return append(errs, err)
	}
	rc := c.routerConfig(caps)
	if err := rc.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (c *Config) validateStorage() []error {
	if !slices.Contains(validBackends, c.Storage.Backend) {
		return []error{sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of %v, got %q", validBackends, c.Storage.Backend)}
	}
	return nil
}

func (c *Config) validateLogging() []error {
	var errs []error
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of %v, got %q", validLevels, c.Logging.Level))
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Logging.Format)) {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of %v, got %q", validFormats, c.Logging.Format))
	}
	return errs
}

// ProfilerConfig converts the profiler section.
func (c *Config) ProfilerConfig() profiler.Config {
	p := c.Profiler
	return profiler.Config{
		MaxMetricsPerModel: p.MaxMetricsPerModel,
		Retention:          p.Retention,
		FlushDelay:         p.FlushDelay,
		LatencyCeiling:     p.LatencyCeiling,
		NeutralFeedback:    p.NeutralFeedback,
		HealthyMinScore:    p.HealthyMinScore,
		Weights: profiler.Weights{
			Success:       p.Weights.Success,
			Latency:       p.Weights.Latency,
			Feedback:      p.Weights.Feedback,
			Hallucination: p.Weights.Hallucination,
		},
	}
}

// RouterConfig converts the router section, reading the capabilities
// file when one is configured.
func (c *Config) RouterConfig() (router.Config, error) {
	caps, err := c.capabilities()
	if err != nil {
		return router.Config{}, err
	}
	return c.routerConfig(caps), nil
}

func (c *Config) routerConfig(caps router.Capabilities) router.Config {
	return router.Config{
		CapabilityWeight: c.Router.CapabilityWeight,
		NeutralHealth:    c.Router.NeutralHealth,
		MinPrimaryScore:  c.Router.MinPrimaryScore,
		DefaultMatch:     c.Router.DefaultMatch,
		Capabilities:     caps,
	}
}

func (c *Config) capabilities() (router.Capabilities, error) {
	caps := router.Capabilities{}
	if c.Router.CapabilitiesFile != "" {
		fromFile, err := LoadCapabilitiesFile(c.Router.CapabilitiesFile)
		if err != nil {
			return nil, err
		}
		caps = fromFile
	}
	for _, entry := range c.Router.Capabilities {
		if entry.Task == "" || entry.Model == "" {
			continue
		}
		if caps[entry.Task] == nil {
			caps[entry.Task] = map[string]float64{}
		}
		caps[entry.Task][entry.Model] = entry.Match
	}
	return caps, nil
}

// FallbackConfig converts the fallback section.
func (c *Config) FallbackConfig() fallback.Config {
	return fallback.Config{
		MaxAttempts:    c.Fallback.MaxAttempts,
		AttemptTimeout: c.Fallback.AttemptTimeout,
		Budget:         c.Fallback.Budget,
	}
}

// StoreConfig converts the storage section. An empty path resolves to the
// backend's default file name under DataDir.
func (c *Config) StoreConfig() *store.StorageConfig {
	path := c.Storage.Path
	if path == "" && c.DataDir != "" {
		if name, ok := snapshotFileNames[c.Storage.Backend]; ok {
			path = filepath.Join(c.DataDir, name)
		}
	}
	return &store.StorageConfig{Backend: c.Storage.Backend, Path: path}
}
