// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package profiler

import (
	"math"
	"slices"
	"time"

	"github.com/sigil-dev/modelroute/pkg/health"
)

// ComputeHealth aggregates the metrics whose timestamp falls inside the
// retention window ending at now. It returns nil when no metric is in
// the window. It performs no I/O and is a pure function of its inputs.
func ComputeHealth(modelID string, metrics []health.ModelMetric, now time.Time, cfg Config) *health.ModelHealth {
	cutoff := now.Add(-cfg.Retention)

	var (
		total        int
		successes    int
		latencies    []float64
		latencySum   float64
		totalCost    float64
		feedbackSum  float64
		feedbackN    int
		hallucinated int
		lastUsed     time.Time
	)

	for _, m := range metrics {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		total++
		totalCost += m.Cost
		if m.Timestamp.After(lastUsed) {
			lastUsed = m.Timestamp
		}
		if m.Success {
			successes++
			latencies = append(latencies, m.LatencyMs)
			latencySum += m.LatencyMs
		}
		if m.FeedbackScore != nil {
			feedbackSum += float64(*m.FeedbackScore)
			feedbackN++
		}
		if m.Hallucination != nil && *m.Hallucination {
			hallucinated++
		}
	}

	if total == 0 {
		return nil
	}

	h := &health.ModelHealth{
		ModelID:           modelID,
		TotalCalls:        total,
		SuccessRate:       float64(successes) / float64(total),
		TotalCost:         totalCost,
		AvgFeedback:       cfg.NeutralFeedback,
		HallucinationRate: float64(hallucinated) / float64(total),
		LastUsed:          lastUsed,
	}
	if feedbackN > 0 {
		h.AvgFeedback = feedbackSum / float64(feedbackN)
	}

	// With no successful calls there is no latency evidence, so the
	// latency factor contributes nothing.
	latencyFactor := 0.0
	if n := len(latencies); n > 0 {
		slices.Sort(latencies)
		h.AvgLatencyMs = latencySum / float64(n)
		h.P50LatencyMs = percentile(latencies, 50)
		h.P95LatencyMs = percentile(latencies, 95)
		h.P99LatencyMs = percentile(latencies, 99)

		ceilingMs := float64(cfg.LatencyCeiling) / float64(time.Millisecond)
		latencyFactor = math.Max(0, 1-h.AvgLatencyMs/ceilingMs)
	}

	feedbackFactor := clamp01((h.AvgFeedback - health.MinFeedbackScore) / (health.MaxFeedbackScore - health.MinFeedbackScore))

	w := cfg.Weights
	score := w.Success*h.SuccessRate +
		w.Latency*latencyFactor +
		w.Feedback*feedbackFactor +
		w.Hallucination*(1-h.HallucinationRate)
	h.HealthScore = math.Min(100, math.Max(0, score))

	return h
}

// percentile returns the nearest-rank percentile of sorted, which must be
// non-empty and ascending.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	idx := int(math.Ceil(p/100*float64(n))) - 1
	idx = max(0, min(idx, n-1))
	return sorted[idx]
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
