// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"os"

	"github.com/sigil-dev/modelroute/internal/router"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadCapabilitiesFile reads a capability table of the form
//
//	code:
//	  gpt-4.1: 0.9
//	  claude-sonnet-4-5: 1.0
//	"*":
//	  gpt-4.1-mini: 0.4
func LoadCapabilitiesFile(path string) (router.Capabilities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading capabilities %s: %w", path, err)
	}

	var raw map[string]map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeConfigParseInvalidFormat, "parsing capabilities file",
			sigilerr.FieldPath(path))
	}

	caps := make(router.Capabilities, len(raw))
	for task, models := range raw {
		m := make(map[string]float64, len(models))
		for id, v := range models {
			m[id] = v
		}
		caps[task] = m
	}
	return caps, nil
}
