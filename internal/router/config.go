// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package router

import (
	"errors"
	"sort"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
)

// AnyTask is the capability table key whose entries apply to every task type.
const AnyTask = "*"

// Defaults applied by DefaultConfig.
const (
	DefaultCapabilityWeight = 50.0
	DefaultNeutralHealth    = 50.0
	DefaultMinPrimaryScore  = 10.0
	DefaultMatch            = 0.5
)

// Capabilities maps a task type to per-model match values in [0,1].
type Capabilities map[string]map[string]float64

// Match returns how well modelID fits taskType. An exact task entry wins
// over an AnyTask entry; fallback is used when neither names the model.
func (c Capabilities) Match(taskType, modelID string, fallback float64) float64 {
	if models, ok := c[taskType]; ok {
		if v, ok := models[modelID]; ok {
			return v
		}
	}
	if models, ok := c[AnyTask]; ok {
		if v, ok := models[modelID]; ok {
			return v
		}
	}
	return fallback
}

// TaskTypes returns the configured task types, sorted.
func (c Capabilities) TaskTypes() []string {
	out := make([]string, 0, len(c))
	for t := range c {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Config controls candidate scoring.
type Config struct {
	// CapabilityWeight scales the capability match before it is added to
	// the health score.
	CapabilityWeight float64
	// NeutralHealth stands in for the health score of models with no data.
	NeutralHealth float64
	// MinPrimaryScore is the hard floor: a model whose known health is
	// below it is only chosen as primary when nothing else qualifies.
	MinPrimaryScore float64
	// DefaultMatch is the capability match of models the table does not list.
	DefaultMatch float64
	Capabilities Capabilities
}

// DefaultConfig returns the stock router configuration with an empty
// capability table.
func DefaultConfig() Config {
	return Config{
		CapabilityWeight: DefaultCapabilityWeight,
		NeutralHealth:    DefaultNeutralHealth,
		MinPrimaryScore:  DefaultMinPrimaryScore,
		DefaultMatch:     DefaultMatch,
		Capabilities:     Capabilities{},
	}
}

// Validate collects every configuration problem into one error.
func (c Config) Validate() error {
	var errs []error

	if c.CapabilityWeight < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"router: capability weight must not be negative, got %g", c.CapabilityWeight))
	}
	if c.NeutralHealth < 0 || c.NeutralHealth > 100 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"router: neutral health must be between 0 and 100, got %g", c.NeutralHealth))
	}
	if c.MinPrimaryScore < 0 || c.MinPrimaryScore > 100 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"router: min primary score must be between 0 and 100, got %g", c.MinPrimaryScore))
	}
	if c.DefaultMatch < 0 || c.DefaultMatch > 1 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"router: default match must be between 0 and 1, got %g", c.DefaultMatch))
	}

	for _, task := range c.Capabilities.TaskTypes() {
		if task == "" {
			errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue,
				"router: capability task type must not be empty"))
			continue
		}
		models := c.Capabilities[task]
		ids := make([]string, 0, len(models))
		for id := range models {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if v := models[id]; v < 0 || v > 1 {
				errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
					"router: capability %s/%s must be between 0 and 1, got %g", task, id, v))
			}
		}
	}

	if len(errs) > 0 {
		return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "invalid router config: %w", errors.Join(errs...))
	}
	return nil
}
