// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package router ranks candidate models for a task by capability match
// and observed health.
package router

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
)

// HealthSource supplies the current health of a model, nil when unknown.
// *profiler.Profiler satisfies it.
type HealthSource interface {
	ModelHealth(modelID string) *health.ModelHealth
}

// Router selects a primary model and an ordered fallback list. It holds
// no per-request state and is safe for concurrent use.
type Router struct {
	cfg     Config
	health  HealthSource
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Option customises a Router.
type Option func(*Router)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithNowFunc overrides the clock used for Decision.DecidedAt.
func WithNowFunc(fn func() time.Time) Option {
	return func(r *Router) {
		if fn != nil {
			r.nowFunc = fn
		}
	}
}

// New creates a Router. A nil source treats every model as unknown.
func New(cfg Config, src HealthSource, opts ...Option) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = Capabilities{}
	}
	r := &Router{
		cfg:     cfg,
		health:  src,
		logger:  slog.Default(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the active configuration.
func (r *Router) Config() Config {
	return r.cfg
}

// RouteTask scores every candidate and returns the routing decision.
// Duplicate candidates are collapsed to their first occurrence.
func (r *Router) RouteTask(taskType string, candidates []string) (*Decision, error) {
	taskType = strings.TrimSpace(taskType)
	if taskType == "" {
		return nil, sigilerr.New(sigilerr.CodeRoutingTaskTypeInvalid, "task type must not be empty")
	}

	ids, err := uniqueCandidates(candidates)
	if err != nil {
		return nil, sigilerr.With(err, sigilerr.FieldTaskType(taskType))
	}

	ranked := make([]CandidateScore, 0, len(ids))
	for _, id := range ids {
		ranked = append(ranked, r.score(taskType, id))
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranksBefore(ranked[i], ranked[j]) })
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	d := &Decision{
		TaskType:  taskType,
		Ranked:    ranked,
		Fallbacks: make([]string, 0, len(ranked)-1),
		DecidedAt: r.nowFunc(),
	}

	primary := -1
	for i, c := range ranked {
		if !c.BelowFloor {
			primary = i
			break
		}
	}
	if primary < 0 {
		primary = 0
		d.LastResort = true
		r.logger.Warn("every candidate is below the health floor, routing to last resort",
			"task_type", taskType, "model", ranked[0].ModelID, "health_score", ranked[0].HealthScore)
	}

	d.Primary = ranked[primary].ModelID
	for i, c := range ranked {
		if i != primary {
			d.Fallbacks = append(d.Fallbacks, c.ModelID)
		}
	}

	r.logger.Debug("routed task",
		"task_type", taskType,
		"primary", d.Primary,
		"fallbacks", d.Fallbacks,
		"last_resort", d.LastResort,
	)
	return d, nil
}

func (r *Router) score(taskType, modelID string) CandidateScore {
	match := r.cfg.Capabilities.Match(taskType, modelID, r.cfg.DefaultMatch)
	c := CandidateScore{
		ModelID:         modelID,
		CapabilityMatch: match,
		CapabilityScore: match * r.cfg.CapabilityWeight,
		HealthScore:     r.cfg.NeutralHealth,
	}

	var h *health.ModelHealth
	if r.health != nil {
		h = r.health.ModelHealth(modelID)
	}
	if h != nil {
		c.HealthKnown = true
		c.HealthScore = h.HealthScore
		c.AvgLatencyMs = h.AvgLatencyMs
		c.TotalCalls = h.TotalCalls
		c.BelowFloor = h.HealthScore < r.cfg.MinPrimaryScore
	}
	c.Score = c.CapabilityScore + c.HealthScore
	return c
}

// ranksBefore orders by total score, then health score, then average
// latency, then model id.
func ranksBefore(a, b CandidateScore) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.HealthScore != b.HealthScore {
		return a.HealthScore > b.HealthScore
	}
	if la, lb := latencyKey(a), latencyKey(b); la != lb {
		return la < lb
	}
	return a.ModelID < b.ModelID
}

// latencyKey ranks models without a measured latency last.
func latencyKey(c CandidateScore) float64 {
	if !c.HealthKnown || c.AvgLatencyMs <= 0 {
		return math.Inf(1)
	}
	return c.AvgLatencyMs
}

func uniqueCandidates(candidates []string) ([]string, error) {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, sigilerr.New(sigilerr.CodeRoutingNoCandidates, "at least one candidate is required")
	}
	return out, nil
}
