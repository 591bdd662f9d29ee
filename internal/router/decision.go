// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package router

import "time"

// CandidateScore is the score breakdown of one candidate.
type CandidateScore struct {
	ModelID         string  `json:"model_id" yaml:"model_id"`
	Rank            int     `json:"rank" yaml:"rank"`
	CapabilityMatch float64 `json:"capability_match" yaml:"capability_match"`
	CapabilityScore float64 `json:"capability_score" yaml:"capability_score"`
	// HealthScore is the neutral default when HealthKnown is false.
	HealthScore  float64 `json:"health_score" yaml:"health_score"`
	HealthKnown  bool    `json:"health_known" yaml:"health_known"`
	AvgLatencyMs float64 `json:"avg_latency_ms" yaml:"avg_latency_ms"`
	TotalCalls   int     `json:"total_calls" yaml:"total_calls"`
	Score        float64 `json:"score" yaml:"score"`
	BelowFloor   bool    `json:"below_floor" yaml:"below_floor"`
}

// Decision is the outcome of RouteTask. Ranked always holds every
// candidate in score order, including the primary.
type Decision struct {
	TaskType  string           `json:"task_type" yaml:"task_type"`
	Primary   string           `json:"primary" yaml:"primary"`
	Fallbacks []string         `json:"fallbacks" yaml:"fallbacks"`
	Ranked    []CandidateScore `json:"ranked" yaml:"ranked"`
	// LastResort is set when every candidate was below the health floor
	// and the primary was picked anyway.
	LastResort bool      `json:"last_resort" yaml:"last_resort"`
	DecidedAt  time.Time `json:"decided_at" yaml:"decided_at"`
}

// Candidates returns the primary followed by the fallbacks.
func (d *Decision) Candidates() []string {
	out := make([]string, 0, 1+len(d.Fallbacks))
	out = append(out, d.Primary)
	return append(out, d.Fallbacks...)
}

// Score returns the breakdown for modelID.
func (d *Decision) Score(modelID string) (CandidateScore, bool) {
	for _, c := range d.Ranked {
		if c.ModelID == modelID {
			return c, true
		}
	}
	return CandidateScore{}, false
}
