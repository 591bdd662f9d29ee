// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package profiler records per-model call outcomes and derives health
// views from them on demand.
package profiler

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sigil-dev/modelroute/internal/store"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
)

// Profiler tracks a bounded metric history per model. Mutations are
// serialised by one lock; reads copy a consistent view under the read
// lock and aggregate outside it. Persistence happens on a background
// goroutine so recording never waits on disk.
type Profiler struct {
	cfg    Config
	store  store.Store
	logger *slog.Logger

	mu           sync.RWMutex
	rings        map[string]*ring
	nowFunc      func() time.Time
	version      uint64 // bumped on every mutation
	savedVersion uint64 // version of the last successful save
	closed       bool

	saveMu    sync.Mutex // serialises store writes
	flush     *flusher
	closeOnce sync.Once
	closeErr  error
}

// Option customises a Profiler.
type Option func(*Profiler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Profiler) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithNowFunc overrides the clock used for timestamps and the retention window.
func WithNowFunc(fn func() time.Time) Option {
	return func(p *Profiler) {
		if fn != nil {
			p.nowFunc = fn
		}
	}
}

// Open validates cfg, loads the snapshot from st synchronously and starts
// the background flusher. A missing or unreadable snapshot is logged and
// treated as empty state. A nil st disables persistence.
func Open(ctx context.Context, cfg Config, st store.Store, opts ...Option) (*Profiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Profiler{
		cfg:     cfg,
		store:   st,
		logger:  slog.Default(),
		rings:   make(map[string]*ring),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if st != nil {
		if err := p.load(ctx); err != nil {
			return nil, err
		}
		p.flush = newFlusher(cfg.FlushDelay, p.persist)
		p.flush.start()
	}
	return p, nil
}

func (p *Profiler) load(ctx context.Context) error {
	snap, err := p.store.Load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if sigilerr.IsNotFound(err) {
			p.logger.Warn("model health snapshot not found, starting empty", "error", err)
		} else {
			p.logger.Warn("model health snapshot unreadable, starting empty", "error", err)
		}
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	loaded, dropped := 0, 0
	for modelID, metrics := range snap {
		if modelID == "" {
			continue
		}
		r := newRing(p.cfg.MaxMetricsPerModel)
		for _, m := range metrics {
			if err := validateMetric(m); err != nil {
				dropped++
				continue
			}
			r.push(m.Clone())
		}
		if r.size() == 0 && len(metrics) > 0 {
			continue
		}
		p.rings[modelID] = r
		loaded += r.size()
	}
	if dropped > 0 {
		p.logger.Warn("dropped invalid metrics from snapshot", "count", dropped)
	}
	p.logger.Info("model health snapshot loaded", "models", len(p.rings), "metrics", loaded)
	return nil
}

// validateMetric rejects non-finite latency or cost and negative cost or
// tokens.
func validateMetric(m health.ModelMetric) error {
	switch {
	case math.IsNaN(m.LatencyMs) || math.IsInf(m.LatencyMs, 0):
		return sigilerr.Errorf(sigilerr.CodeProfilerInputInvalid, "latency must be finite, got %v", m.LatencyMs)
	case math.IsNaN(m.Cost) || math.IsInf(m.Cost, 0):
		return sigilerr.Errorf(sigilerr.CodeProfilerInputInvalid, "cost must be finite, got %v", m.Cost)
	case m.Cost < 0:
		return sigilerr.Errorf(sigilerr.CodeProfilerInputInvalid, "cost must not be negative, got %v", m.Cost)
	case m.Tokens < 0:
		return sigilerr.Errorf(sigilerr.CodeProfilerInputInvalid, "tokens must not be negative, got %d", m.Tokens)
	}
	return nil
}

// SetNowFunc overrides the time source (for testing).
func (p *Profiler) SetNowFunc(fn func() time.Time) {
	p.mu.Lock()
	p.nowFunc = fn
	p.mu.Unlock()
}

// Config returns the active configuration.
func (p *Profiler) Config() Config {
	return p.cfg
}

// RecordMetric appends a metric for modelID, assigning its timestamp from
// the profiler clock. A failed invocation is recorded, never returned as
// an error; errors only signal invalid input or a closed profiler.
func (p *Profiler) RecordMetric(modelID string, m health.ModelMetric) error {
	if modelID == "" {
		return sigilerr.New(sigilerr.CodeProfilerInputInvalid, "model id must not be empty")
	}

	if err := validateMetric(m); err != nil {
		return sigilerr.With(err, sigilerr.FieldModel(modelID))
	}

	m = m.Clone()
	m.LatencyMs = max(0, m.LatencyMs)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return sigilerr.New(sigilerr.CodeProfilerClosed, "profiler is closed", sigilerr.FieldModel(modelID))
	}
	m.Timestamp = p.nowFunc()
	r, ok := p.rings[modelID]
	if !ok {
		r = newRing(p.cfg.MaxMetricsPerModel)
		p.rings[modelID] = r
	}
	evicted := r.push(m)
	p.version++
	p.mu.Unlock()

	if evicted {
		p.logger.Debug("evicted oldest model metric", "model", modelID)
	}
	p.markDirty()
	return nil
}

// RecordFeedback attaches a feedback score, and optionally a
// hallucination flag, to the most recent metric of modelID. It is a
// no-op when the model has no metrics.
func (p *Profiler) RecordFeedback(modelID string, score int, hallucination *bool) error {
	if modelID == "" {
		return sigilerr.New(sigilerr.CodeProfilerInputInvalid, "model id must not be empty")
	}
	if score < health.MinFeedbackScore || score > health.MaxFeedbackScore {
		return sigilerr.Errorf(sigilerr.CodeProfilerInputInvalid,
			"feedback score must be between %d and %d, got %d",
			health.MinFeedbackScore, health.MaxFeedbackScore, score)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return sigilerr.New(sigilerr.CodeProfilerClosed, "profiler is closed", sigilerr.FieldModel(modelID))
	}
	r, ok := p.rings[modelID]
	if !ok || r.size() == 0 {
		p.mu.Unlock()
		p.logger.Debug("feedback ignored, model has no metrics", "model", modelID)
		return nil
	}
	last := r.last()
	s := score
	last.FeedbackScore = &s
	if hallucination != nil {
		h := *hallucination
		last.Hallucination = &h
	}
	p.version++
	p.mu.Unlock()

	p.markDirty()
	return nil
}

// ModelHealth returns the aggregated health of modelID over the retention
// window, or nil when the model has no in-window metrics.
func (p *Profiler) ModelHealth(modelID string) *health.ModelHealth {
	p.mu.RLock()
	r, ok := p.rings[modelID]
	if !ok {
		p.mu.RUnlock()
		return nil
	}
	metrics := r.items()
	now := p.nowFunc()
	p.mu.RUnlock()

	return ComputeHealth(modelID, metrics, now, p.cfg)
}

// AllModelHealth returns the health of every model with in-window data,
// highest score first. Equal scores are ordered by model id.
func (p *Profiler) AllModelHealth() []health.ModelHealth {
	p.mu.RLock()
	views := make(map[string][]health.ModelMetric, len(p.rings))
	for id, r := range p.rings {
		views[id] = r.items()
	}
	now := p.nowFunc()
	p.mu.RUnlock()

	out := make([]health.ModelHealth, 0, len(views))
	for id, metrics := range views {
		if h := ComputeHealth(id, metrics, now, p.cfg); h != nil {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HealthScore != out[j].HealthScore {
			return out[i].HealthScore > out[j].HealthScore
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}

// IsModelHealthy reports whether modelID meets the configured
// HealthyMinScore. Models without data are optimistically healthy.
func (p *Profiler) IsModelHealthy(modelID string) bool {
	return p.IsModelHealthyAt(modelID, p.cfg.HealthyMinScore)
}

// IsModelHealthyAt is IsModelHealthy with an explicit threshold.
func (p *Profiler) IsModelHealthyAt(modelID string, minScore float64) bool {
	h := p.ModelHealth(modelID)
	return h == nil || h.HealthScore >= minScore
}

// Models returns the ids of every tracked model, sorted.
func (p *Profiler) Models() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.rings))
	for id := range p.rings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Metrics returns a copy of the raw metrics of modelID, oldest first,
// including those outside the retention window.
func (p *Profiler) Metrics(modelID string) []health.ModelMetric {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.rings[modelID]
	if !ok {
		return nil
	}
	return r.items()
}

// Snapshot returns a deep copy of all raw metrics.
func (p *Profiler) Snapshot() health.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// snapshotLocked copies every ring. The caller MUST hold at least p.mu.RLock.
func (p *Profiler) snapshotLocked() health.Snapshot {
	snap := make(health.Snapshot, len(p.rings))
	for id, r := range p.rings {
		snap[id] = r.items()
	}
	return snap
}

// Dirty reports whether in-memory state has changes not yet written.
func (p *Profiler) Dirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version != p.savedVersion
}

func (p *Profiler) markDirty() {
	if p.flush != nil {
		p.flush.notify()
	}
}

// persist writes the snapshot when state changed since the last save.
// Failures are logged and leave the state dirty for the next attempt.
func (p *Profiler) persist(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.RLock()
	v := p.version
	if v == p.savedVersion {
		p.mu.RUnlock()
		return nil
	}
	snap := p.snapshotLocked()
	p.mu.RUnlock()

	if err := p.store.Save(ctx, snap); err != nil {
		p.logger.Warn("persisting model health snapshot failed", "error", err)
		return err
	}

	p.mu.Lock()
	if v > p.savedVersion {
		p.savedVersion = v
	}
	p.mu.Unlock()

	p.logger.Debug("model health snapshot persisted", "models", len(snap))
	return nil
}

// Flush writes any unsaved state now and returns the write error, if any.
func (p *Profiler) Flush(ctx context.Context) error {
	return p.persist(ctx)
}

// Close stops the background flusher and writes the last dirty state.
// Later mutations are rejected. The store is owned by the caller and is
// not closed. Close is idempotent.
func (p *Profiler) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		if p.flush != nil {
			p.flush.stop()
		}
		p.closeErr = p.persist(ctx)
	})
	return p.closeErr
}
