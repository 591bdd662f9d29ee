// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package fallback

import (
	"errors"
	"time"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 30 * time.Second
	DefaultBudget         = 90 * time.Second
)

// Config bounds a chain. Zero AttemptTimeout or Budget means unbounded.
type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Budget         time.Duration
}

// DefaultConfig returns the stock chain bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: DefaultAttemptTimeout,
		Budget:         DefaultBudget,
	}
}

// Validate collects every configuration problem into one error.
func (c Config) Validate() error {
	var errs []error
	if c.MaxAttempts <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"fallback: max attempts must be greater than 0, got %d", c.MaxAttempts))
	}
	if c.AttemptTimeout < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"fallback: attempt timeout must not be negative, got %s", c.AttemptTimeout))
	}
	if c.Budget < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"fallback: budget must not be negative, got %s", c.Budget))
	}
	if len(errs) > 0 {
		return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "invalid fallback config: %w", errors.Join(errs...))
	}
	return nil
}
