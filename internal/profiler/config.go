// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package profiler

import (
	"errors"
	"math"
	"time"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxMetricsPerModel = 1000
	DefaultRetention          = 30 * 24 * time.Hour
	DefaultFlushDelay         = 5 * time.Second
	DefaultLatencyCeiling     = 5 * time.Second
	DefaultNeutralFeedback    = 3.0
	DefaultHealthyMinScore    = 50.0
)

// Weights are the health score contributions of each factor. Each factor
// is normalised to [0,1], so weights summing to 100 keep the score in
// [0,100].
type Weights struct {
	Success       float64
	Latency       float64
	Feedback      float64
	Hallucination float64
}

// DefaultWeights returns the 40/20/25/15 split.
func DefaultWeights() Weights {
	return Weights{Success: 40, Latency: 20, Feedback: 25, Hallucination: 15}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Success + w.Latency + w.Feedback + w.Hallucination
}

// Config controls retention, persistence and scoring.
type Config struct {
	// MaxMetricsPerModel caps each model's ring; the oldest metric is
	// evicted first.
	MaxMetricsPerModel int
	// Retention excludes older metrics from aggregation without deleting them.
	Retention time.Duration
	// FlushDelay is the quiet period after the last mutation before the
	// snapshot is written. Zero writes as soon as the flusher wakes.
	FlushDelay time.Duration
	// LatencyCeiling is the average latency at which the latency factor
	// reaches zero.
	LatencyCeiling time.Duration
	// NeutralFeedback stands in for the average feedback when none exists.
	NeutralFeedback float64
	// HealthyMinScore is the threshold used by IsModelHealthy.
	HealthyMinScore float64
	Weights         Weights
}

// DefaultConfig returns the stock profiler configuration.
func DefaultConfig() Config {
	return Config{
		MaxMetricsPerModel: DefaultMaxMetricsPerModel,
		Retention:          DefaultRetention,
		FlushDelay:         DefaultFlushDelay,
		LatencyCeiling:     DefaultLatencyCeiling,
		NeutralFeedback:    DefaultNeutralFeedback,
		HealthyMinScore:    DefaultHealthyMinScore,
		Weights:            DefaultWeights(),
	}
}

// Validate collects every configuration problem into one error.
func (c Config) Validate() error {
	var errs []error

	if c.MaxMetricsPerModel <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"profiler: max metrics per model must be greater than 0, got %d", c.MaxMetricsPerModel))
	}
	if c.Retention <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"profiler: retention must be positive, got %s", c.Retention))
	}
	if c.FlushDelay < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"profiler: flush delay must not be negative, got %s", c.FlushDelay))
	}
	if c.LatencyCeiling <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"profiler: latency ceiling must be positive, got %s", c.LatencyCeiling))
	}
	if c.NeutralFeedback < health.MinFeedbackScore || c.NeutralFeedback > health.MaxFeedbackScore {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"profiler: neutral feedback must be between %d and %d, got %g",
			health.MinFeedbackScore, health.MaxFeedbackScore, c.NeutralFeedback))
	}
	if c.HealthyMinScore < 0 || c.HealthyMinScore > 100 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"profiler: healthy min score must be between 0 and 100, got %g", c.HealthyMinScore))
	}

	w := c.Weights
	if w.Success < 0 || w.Latency < 0 || w.Feedback < 0 || w.Hallucination < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"profiler: weights must not be negative, got %+v", w))
	}
	if math.Abs(w.Sum()-100) > 1e-6 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"profiler: weights must sum to 100, got %g", w.Sum()))
	}

	if len(errs) > 0 {
		return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "invalid profiler config: %w", errors.Join(errs...))
	}
	return nil
}
