// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health

import "time"

// Feedback score bounds accepted by RecordFeedback.
const (
	MinFeedbackScore = 1
	MaxFeedbackScore = 5
)

// ModelMetric is the outcome of one completed model invocation. Only
// FeedbackScore and Hallucination are ever mutated after creation, and
// only on the most recent metric of a model.
type ModelMetric struct {
	Timestamp     time.Time `json:"timestamp"`
	LatencyMs     float64   `json:"latency_ms"`
	Success       bool      `json:"success"`
	Tokens        int       `json:"tokens"`
	Cost          float64   `json:"cost"`
	FeedbackScore *int      `json:"feedback_score,omitempty"`
	Hallucination *bool     `json:"hallucination,omitempty"`
}

// Clone returns a copy that shares no pointers with m.
func (m ModelMetric) Clone() ModelMetric {
	out := m
	if m.FeedbackScore != nil {
		v := *m.FeedbackScore
		out.FeedbackScore = &v
	}
	if m.Hallucination != nil {
		v := *m.Hallucination
		out.Hallucination = &v
	}
	return out
}

// ModelHealth is the aggregated view of a model's in-window metrics.
// It is derived on read and never persisted. Latency fields only cover
// successful calls and are zero when there were none.
type ModelHealth struct {
	ModelID           string    `json:"model_id" yaml:"model_id"`
	TotalCalls        int       `json:"total_calls" yaml:"total_calls"`
	SuccessRate       float64   `json:"success_rate" yaml:"success_rate"`
	AvgLatencyMs      float64   `json:"avg_latency_ms" yaml:"avg_latency_ms"`
	P50LatencyMs      float64   `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P95LatencyMs      float64   `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs      float64   `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	TotalCost         float64   `json:"total_cost" yaml:"total_cost"`
	AvgFeedback       float64   `json:"avg_feedback" yaml:"avg_feedback"`
	HallucinationRate float64   `json:"hallucination_rate" yaml:"hallucination_rate"`
	HealthScore       float64   `json:"health_score" yaml:"health_score"`
	LastUsed          time.Time `json:"last_used" yaml:"last_used"`
}

// Snapshot maps a model id to its metrics, oldest first. It is the unit
// of persistence: stores read and write it wholesale.
type Snapshot map[string][]ModelMetric

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, metrics := range s {
		cp := make([]ModelMetric, len(metrics))
		for i, m := range metrics {
			cp[i] = m.Clone()
		}
		out[id] = cp
	}
	return out
}
