// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/sigil-dev/modelroute/internal/profiler"
	"github.com/sigil-dev/modelroute/internal/router"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticHealth is a fixed HealthSource.
type staticHealth map[string]*health.ModelHealth

func (s staticHealth) ModelHealth(id string) *health.ModelHealth {
	return s[id]
}

func known(id string, score, latency float64) *health.ModelHealth {
	return &health.ModelHealth{ModelID: id, TotalCalls: 10, SuccessRate: 1, HealthScore: score, AvgLatencyMs: latency}
}

func newRouter(t *testing.T, src router.HealthSource, mutate func(*router.Config)) *router.Router {
	t.Helper()
	cfg := router.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := router.New(cfg, src)
	require.NoError(t, err)
	return r
}

func TestRouteTask_UnknownModelsUseNeutralHealth(t *testing.T) {
	r := newRouter(t, nil, nil)

	d, err := r.RouteTask("chat", []string{"zeta", "alpha", "mid"})
	require.NoError(t, err)

	assert.Equal(t, "alpha", d.Primary, "identical scores fall back to id order")
	assert.Equal(t, []string{"mid", "zeta"}, d.Fallbacks)
	assert.False(t, d.LastResort)
	require.Len(t, d.Ranked, 3)
	for _, c := range d.Ranked {
		assert.False(t, c.HealthKnown)
		assert.Equal(t, router.DefaultNeutralHealth, c.HealthScore)
		assert.Equal(t, router.DefaultMatch*router.DefaultCapabilityWeight, c.CapabilityScore)
		assert.Equal(t, c.CapabilityScore+c.HealthScore, c.Score)
	}
}

func TestRouteTask_HealthDecides(t *testing.T) {
	src := staticHealth{
		"fast": known("fast", 95, 120),
		"slow": known("slow", 60, 3000),
	}
	r := newRouter(t, src, nil)

	d, err := r.RouteTask("summarise", []string{"slow", "new", "fast"})
	require.NoError(t, err)

	assert.Equal(t, "fast", d.Primary)
	assert.Equal(t, []string{"slow", "new"}, d.Fallbacks)
	assert.Equal(t, []string{"fast", "slow", "new"}, d.Candidates())

	fast, ok := d.Score("fast")
	require.True(t, ok)
	assert.True(t, fast.HealthKnown)
	assert.Equal(t, 1, fast.Rank)
	assert.Equal(t, 120.0, fast.AvgLatencyMs)
	assert.Equal(t, 10, fast.TotalCalls)
	assert.Equal(t, 25.0+95.0, fast.Score)

	_, ok = d.Score("absent")
	assert.False(t, ok)
}

func TestRouteTask_CapabilityMatch(t *testing.T) {
	caps := router.Capabilities{
		"code":         {"coder": 1.0, "generalist": 0.25},
		router.AnyTask: {"generalist": 0.75, "tiny": 0},
	}
	r := newRouter(t, nil, func(c *router.Config) { c.Capabilities = caps })

	tests := []struct {
		name      string
		task      string
		model     string
		wantMatch float64
	}{
		{"exact entry", "code", "coder", 1.0},
		{"exact wins over wildcard", "code", "generalist", 0.25},
		{"wildcard entry", "chat", "generalist", 0.75},
		{"wildcard zero", "code", "tiny", 0},
		{"unlisted model", "chat", "other", router.DefaultMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.RouteTask(tt.task, []string{tt.model})
			require.NoError(t, err)
			require.Len(t, d.Ranked, 1)
			assert.Equal(t, tt.wantMatch, d.Ranked[0].CapabilityMatch)
			assert.Equal(t, tt.wantMatch*router.DefaultCapabilityWeight, d.Ranked[0].CapabilityScore)
		})
	}
}

func TestRouteTask_CapabilityOutweighsSmallHealthGap(t *testing.T) {
	src := staticHealth{
		"coder":      known("coder", 80, 400),
		"generalist": known("generalist", 90, 400),
	}
	caps := router.Capabilities{"code": {"coder": 1.0, "generalist": 0.5}}
	r := newRouter(t, src, func(c *router.Config) { c.Capabilities = caps })

	d, err := r.RouteTask("code", []string{"generalist", "coder"})
	require.NoError(t, err)
	assert.Equal(t, "coder", d.Primary, "130 beats 115")
}

func TestRouteTask_HardFloorSkipsPrimary(t *testing.T) {
	src := staticHealth{
		"broken": known("broken", 5, 100),
		"ok":     known("ok", 40, 900),
	}
	caps := router.Capabilities{"code": {"broken": 1.0, "ok": 0}}
	r := newRouter(t, src, func(c *router.Config) { c.Capabilities = caps })

	d, err := r.RouteTask("code", []string{"broken", "ok"})
	require.NoError(t, err)

	assert.Equal(t, "ok", d.Primary)
	assert.Equal(t, []string{"broken"}, d.Fallbacks, "below-floor models stay available as fallbacks")
	assert.False(t, d.LastResort)

	require.Len(t, d.Ranked, 2)
	assert.Equal(t, "broken", d.Ranked[0].ModelID, "ranking is by score regardless of floor")
	assert.True(t, d.Ranked[0].BelowFloor)
	assert.False(t, d.Ranked[1].BelowFloor)
}

func TestRouteTask_UnknownHealthIsNeverBelowFloor(t *testing.T) {
	src := staticHealth{"broken": known("broken", 1, 100)}
	r := newRouter(t, src, func(c *router.Config) { c.NeutralHealth = 0 })

	d, err := r.RouteTask("chat", []string{"broken", "fresh"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", d.Primary)
}

func TestRouteTask_LastResort(t *testing.T) {
	src := staticHealth{
		"a": known("a", 2, 100),
		"b": known("b", 7, 100),
	}
	r := newRouter(t, src, nil)

	d, err := r.RouteTask("chat", []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, d.LastResort)
	assert.Equal(t, "b", d.Primary)
	assert.Equal(t, []string{"a"}, d.Fallbacks)

	single, err := r.RouteTask("chat", []string{"a"})
	require.NoError(t, err)
	assert.True(t, single.LastResort)
	assert.Equal(t, "a", single.Primary)
	assert.Empty(t, single.Fallbacks)
}

func TestRouteTask_TieBreaks(t *testing.T) {
	t.Run("higher health wins equal totals", func(t *testing.T) {
		src := staticHealth{
			"healthier": known("healthier", 57.5, 900),
			"capable":   known("capable", 45, 100),
		}
		caps := router.Capabilities{"chat": {"healthier": 0.25, "capable": 0.5}}
		r := newRouter(t, src, func(c *router.Config) { c.Capabilities = caps })

		d, err := r.RouteTask("chat", []string{"capable", "healthier"})
		require.NoError(t, err)
		require.Equal(t, d.Ranked[0].Score, d.Ranked[1].Score)
		assert.Equal(t, "healthier", d.Primary)
	})

	t.Run("lower latency wins equal health", func(t *testing.T) {
		src := staticHealth{
			"b-slow": known("b-slow", 80, 900),
			"c-fast": known("c-fast", 80, 100),
		}
		r := newRouter(t, src, nil)

		d, err := r.RouteTask("chat", []string{"b-slow", "c-fast"})
		require.NoError(t, err)
		assert.Equal(t, "c-fast", d.Primary)
	})

	t.Run("measured latency beats unknown latency", func(t *testing.T) {
		src := staticHealth{"b-measured": known("b-measured", router.DefaultNeutralHealth, 4000)}
		r := newRouter(t, src, nil)

		d, err := r.RouteTask("chat", []string{"a-unknown", "b-measured"})
		require.NoError(t, err)
		assert.Equal(t, "b-measured", d.Primary)
	})

	t.Run("id breaks full ties", func(t *testing.T) {
		src := staticHealth{
			"m2": known("m2", 70, 300),
			"m1": known("m1", 70, 300),
		}
		r := newRouter(t, src, nil)

		for i := 0; i < 5; i++ {
			d, err := r.RouteTask("chat", []string{"m2", "m1"})
			require.NoError(t, err)
			assert.Equal(t, "m1", d.Primary)
		}
	})
}

func TestRouteTask_DeduplicatesCandidates(t *testing.T) {
	r := newRouter(t, nil, nil)

	d, err := r.RouteTask("chat", []string{"a", " a ", "b", "a"})
	require.NoError(t, err)
	assert.Len(t, d.Ranked, 2)
	assert.Equal(t, []string{"a", "b"}, d.Candidates())
}

func TestRouteTask_InvalidInput(t *testing.T) {
	r := newRouter(t, nil, nil)

	tests := []struct {
		name       string
		task       string
		candidates []string
		wantCode   sigilerr.Code
	}{
		{"no candidates", "chat", nil, sigilerr.CodeRoutingNoCandidates},
		{"only blank candidates", "chat", []string{"", "  "}, sigilerr.CodeRoutingNoCandidates},
		{"blank task", "  ", []string{"a"}, sigilerr.CodeRoutingTaskTypeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RouteTask(tt.task, tt.candidates)
			require.Error(t, err)
			assert.True(t, sigilerr.HasCode(err, tt.wantCode), "got %s", sigilerr.CodeOf(err))
			assert.True(t, sigilerr.IsInvalidInput(err))
		})
	}
}

func TestRouteTask_DropsBlankCandidates(t *testing.T) {
	r := newRouter(t, nil, nil)

	d, err := r.RouteTask("chat", []string{"", "b", "  ", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, d.Candidates())
	require.Len(t, d.Ranked, 2)
	_, ok := d.Score("")
	assert.False(t, ok)
}

func TestRouteTask_DecidedAt(t *testing.T) {
	at := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	r, err := router.New(router.DefaultConfig(), nil, router.WithNowFunc(func() time.Time { return at }))
	require.NoError(t, err)

	d, err := r.RouteTask("chat", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, at, d.DecidedAt)
	assert.Equal(t, "chat", d.TaskType)
}

func TestRouteTask_WithProfiler(t *testing.T) {
	ctx := context.Background()
	p, err := profiler.Open(ctx, profiler.DefaultConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = p.Close(ctx) }()

	for i := 0; i < 10; i++ {
		require.NoError(t, p.RecordMetric("steady", health.ModelMetric{LatencyMs: 100, Success: true}))
		require.NoError(t, p.RecordMetric("flaky", health.ModelMetric{LatencyMs: 4500, Success: i%5 == 0}))
	}

	r := newRouter(t, p, nil)
	d, err := r.RouteTask("chat", []string{"flaky", "steady", "unseen"})
	require.NoError(t, err)

	assert.Equal(t, []string{"steady", "unseen", "flaky"}, d.Candidates())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*router.Config)
		wantErr bool
	}{
		{"defaults", func(*router.Config) {}, false},
		{"negative weight", func(c *router.Config) { c.CapabilityWeight = -1 }, true},
		{"neutral above 100", func(c *router.Config) { c.NeutralHealth = 101 }, true},
		{"floor below 0", func(c *router.Config) { c.MinPrimaryScore = -5 }, true},
		{"default match above 1", func(c *router.Config) { c.DefaultMatch = 1.5 }, true},
		{"capability out of range", func(c *router.Config) {
			c.Capabilities = router.Capabilities{"code": {"m": 2}}
		}, true},
		{"empty task key", func(c *router.Config) {
			c.Capabilities = router.Capabilities{"": {"m": 1}}
		}, true},
		{"valid capabilities", func(c *router.Config) {
			c.Capabilities = router.Capabilities{"code": {"m": 1}, router.AnyTask: {"m": 0}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := router.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sigilerr.IsInvalidInput(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}
