// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sigil-dev/modelroute/internal/dispatch"
	"github.com/sigil-dev/modelroute/internal/fallback"
	"github.com/sigil-dev/modelroute/internal/profiler"
	"github.com/sigil-dev/modelroute/internal/router"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient fails for the models in failing and answers otherwise.
type scriptedClient struct {
	mu      sync.Mutex
	failing map[string]error
	calls   []string
	onCall  func(ctx context.Context, model string)
}

func (c *scriptedClient) Invoke(ctx context.Context, model, prompt string) (dispatch.Completion, error) {
	c.mu.Lock()
	c.calls = append(c.calls, model)
	err := c.failing[model]
	hook := c.onCall
	c.mu.Unlock()

	if hook != nil {
		hook(ctx, model)
	}
	if err != nil {
		return dispatch.Completion{}, err
	}
	if ctx.Err() != nil {
		return dispatch.Completion{}, ctx.Err()
	}
	return dispatch.Completion{Text: model + ": " + prompt, LatencyMs: 120, Tokens: 42, Cost: 0.001}, nil
}

func (c *scriptedClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type harness struct {
	prof   *profiler.Profiler
	client *scriptedClient
	disp   *dispatch.Dispatcher
}

func newHarness(t *testing.T, client *scriptedClient, mutate func(*dispatch.Config)) *harness {
	t.Helper()
	ctx := context.Background()

	prof, err := profiler.Open(ctx, profiler.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = prof.Close(ctx) })

	rt, err := router.New(router.DefaultConfig(), prof)
	require.NoError(t, err)

	cfg := dispatch.Config{
		Router:   rt,
		Recorder: prof,
		Client:   client,
		Fallback: fallback.DefaultConfig(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := dispatch.New(cfg)
	require.NoError(t, err)
	return &harness{prof: prof, client: client, disp: d}
}

func TestDispatch_PrimarySucceeds(t *testing.T) {
	h := newHarness(t, &scriptedClient{}, nil)

	res, err := h.disp.Dispatch(context.Background(), dispatch.Task{
		ID: "task-1", Type: "chat", Prompt: "hello", Candidates: []string{"alpha", "beta"},
	})
	require.NoError(t, err)

	assert.Equal(t, "task-1", res.ChainID)
	assert.Equal(t, "alpha", res.Model)
	assert.Equal(t, "alpha: hello", res.Completion.Text)
	assert.Equal(t, "alpha", res.Decision.Primary)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, []string{"alpha"}, h.client.Calls())

	metrics := h.prof.Metrics("alpha")
	require.Len(t, metrics, 1)
	assert.True(t, metrics[0].Success)
	assert.Equal(t, 120.0, metrics[0].LatencyMs)
	assert.Equal(t, 42, metrics[0].Tokens)
	assert.Equal(t, 0.001, metrics[0].Cost)
}

func TestDispatch_FallsBackAndRecordsEveryAttempt(t *testing.T) {
	client := &scriptedClient{failing: map[string]error{"alpha": errors.New("503 service unavailable")}}
	h := newHarness(t, client, nil)

	res, err := h.disp.Dispatch(context.Background(), dispatch.Task{
		Type: "chat", Prompt: "hi", Candidates: []string{"alpha", "beta"},
	})
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Model)
	assert.NotEmpty(t, res.ChainID)
	require.Len(t, res.Attempts, 2)
	assert.True(t, sigilerr.IsUpstreamFailure(res.Attempts[0].Err))

	alpha := h.prof.Metrics("alpha")
	require.Len(t, alpha, 1)
	assert.False(t, alpha[0].Success)
	beta := h.prof.Metrics("beta")
	require.Len(t, beta, 1)
	assert.True(t, beta[0].Success)
}

func TestDispatch_HealthSteersLaterRouting(t *testing.T) {
	client := &scriptedClient{failing: map[string]error{"alpha": errors.New("boom")}}
	h := newHarness(t, client, nil)
	task := dispatch.Task{Type: "chat", Prompt: "hi", Candidates: []string{"alpha", "beta"}}

	_, err := h.disp.Dispatch(context.Background(), task)
	require.NoError(t, err)

	res, err := h.disp.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Decision.Primary, "the failing model is demoted")
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, []string{"alpha", "beta", "beta"}, client.Calls())
}

func TestDispatch_Exhausted(t *testing.T) {
	client := &scriptedClient{failing: map[string]error{
		"a": errors.New("a down"),
		"b": errors.New("b down"),
		"c": errors.New("c down"),
	}}
	h := newHarness(t, client, func(c *dispatch.Config) { c.Fallback.MaxAttempts = 2 })

	res, err := h.disp.Dispatch(context.Background(), dispatch.Task{
		Type: "chat", Prompt: "hi", Candidates: []string{"a", "b", "c"},
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeFallbackChainExhausted))

	ex, ok := fallback.AsExhausted(err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, ex.Models())
	assert.Len(t, client.Calls(), 2)
	assert.Len(t, h.prof.Metrics("a"), 1)
	assert.Len(t, h.prof.Metrics("b"), 1)
	assert.Nil(t, h.prof.Metrics("c"))
}

func TestDispatch_MeasuresLatencyWhenClientDoesNot(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	client := dispatch.ModelClientFunc(func(context.Context, string, string) (dispatch.Completion, error) {
		mu.Lock()
		now = now.Add(250 * time.Millisecond)
		mu.Unlock()
		return dispatch.Completion{Text: "ok"}, nil
	})

	ctx := context.Background()
	prof, err := profiler.Open(ctx, profiler.DefaultConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = prof.Close(ctx) }()
	rt, err := router.New(router.DefaultConfig(), prof)
	require.NoError(t, err)

	d, err := dispatch.New(dispatch.Config{
		Router: rt, Recorder: prof, Client: client, Fallback: fallback.DefaultConfig(), NowFunc: clock,
	})
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, dispatch.Task{Type: "chat", Prompt: "hi", Candidates: []string{"m"}})
	require.NoError(t, err)

	metrics := prof.Metrics("m")
	require.Len(t, metrics, 1)
	assert.Equal(t, 250.0, metrics[0].LatencyMs)
}

func TestDispatch_CancellationIsNotBlamedOnModel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &scriptedClient{onCall: func(actx context.Context, _ string) {
		cancel()
		<-actx.Done()
	}}
	h := newHarness(t, client, nil)

	_, err := h.disp.Dispatch(ctx, dispatch.Task{Type: "chat", Prompt: "hi", Candidates: []string{"a", "b"}})
	require.Error(t, err)
	assert.True(t, sigilerr.IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, client.Calls())
	assert.Nil(t, h.prof.Metrics("a"))
}

func TestDispatch_AttemptTimeoutIsRecordedAsFailure(t *testing.T) {
	client := &scriptedClient{onCall: func(actx context.Context, model string) {
		if model == "a-slow" {
			<-actx.Done()
		}
	}}
	h := newHarness(t, client, func(c *dispatch.Config) { c.Fallback.AttemptTimeout = 20 * time.Millisecond })

	res, err := h.disp.Dispatch(context.Background(), dispatch.Task{
		Type: "chat", Prompt: "hi", Candidates: []string{"a-slow", "b-quick"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b-quick", res.Model)
	assert.True(t, sigilerr.IsTimeout(res.Attempts[0].Err))

	slow := h.prof.Metrics("a-slow")
	require.Len(t, slow, 1)
	assert.False(t, slow[0].Success)
}

func TestDispatch_InvalidTask(t *testing.T) {
	h := newHarness(t, &scriptedClient{}, nil)

	_, err := h.disp.Dispatch(context.Background(), dispatch.Task{Type: "chat", Candidates: []string{"a"}})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeDispatchInvalidInput))

	_, err = h.disp.Dispatch(context.Background(), dispatch.Task{Type: "chat", Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeRoutingNoCandidates))
	assert.Empty(t, h.client.Calls())
}

func TestDispatch_Feedback(t *testing.T) {
	h := newHarness(t, &scriptedClient{}, nil)

	_, err := h.disp.Dispatch(context.Background(), dispatch.Task{Type: "chat", Prompt: "hi", Candidates: []string{"a"}})
	require.NoError(t, err)

	flag := true
	require.NoError(t, h.disp.Feedback("a", 5, &flag))
	m := h.prof.Metrics("a")
	require.Len(t, m, 1)
	require.NotNil(t, m[0].FeedbackScore)
	assert.Equal(t, 5, *m[0].FeedbackScore)
	assert.True(t, *m[0].Hallucination)

	assert.Error(t, h.disp.Feedback("a", 9, nil))
}

func TestDispatch_ObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var kinds []fallback.EventKind
	obs := fallback.ObserverFunc(func(e fallback.Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	})
	client := &scriptedClient{failing: map[string]error{"a": errors.New("nope")}}
	h := newHarness(t, client, func(c *dispatch.Config) { c.Observer = obs })

	_, err := h.disp.Dispatch(context.Background(), dispatch.Task{Type: "chat", Prompt: "hi", Candidates: []string{"a", "b"}})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []fallback.EventKind{
		fallback.EventAttemptStarted,
		fallback.EventAttemptFailed,
		fallback.EventAttemptStarted,
		fallback.EventSucceeded,
	}, kinds)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := dispatch.New(dispatch.Config{})
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err))
}
