// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package dispatch closes the routing feedback loop: it routes a task,
// walks the fallback chain through a ModelClient and records the outcome
// of every attempt with the profiler.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/modelroute/internal/fallback"
	"github.com/sigil-dev/modelroute/internal/router"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
)

// Completion is what a model returned. Zero LatencyMs means the client
// did not measure it.
type Completion struct {
	Text      string
	LatencyMs float64
	Tokens    int
	Cost      float64
}

// ModelClient invokes a model. It is implemented outside this module.
type ModelClient interface {
	Invoke(ctx context.Context, model, prompt string) (Completion, error)
}

// ModelClientFunc adapts a function to ModelClient.
type ModelClientFunc func(ctx context.Context, model, prompt string) (Completion, error)

func (f ModelClientFunc) Invoke(ctx context.Context, model, prompt string) (Completion, error) {
	return f(ctx, model, prompt)
}

// Router produces routing decisions. *router.Router satisfies it.
type Router interface {
	RouteTask(taskType string, candidates []string) (*router.Decision, error)
}

// Recorder receives call outcomes. *profiler.Profiler satisfies it.
type Recorder interface {
	RecordMetric(modelID string, m health.ModelMetric) error
	RecordFeedback(modelID string, score int, hallucination *bool) error
}

// Task is one unit of work. ID becomes the chain id; a UUID is
// generated when empty.
type Task struct {
	ID         string
	Type       string
	Prompt     string
	Candidates []string
}

// Result is the outcome of a successful dispatch.
type Result struct {
	ChainID    string
	Model      string
	Completion Completion
	Decision   *router.Decision
	Attempts   []fallback.Attempt
}

// Config holds the Dispatcher dependencies.
type Config struct {
	Router   Router
	Recorder Recorder
	Client   ModelClient
	Fallback fallback.Config
	Observer fallback.Observer
	Logger   *slog.Logger
	NowFunc  func() time.Time
}

// Dispatcher runs tasks. It is safe for concurrent use; every Dispatch
// gets its own chain.
type Dispatcher struct {
	router   Router
	recorder Recorder
	client   ModelClient
	chainCfg fallback.Config
	observer fallback.Observer
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// New validates cfg and creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	switch {
	case cfg.Router == nil:
		return nil, sigilerr.New(sigilerr.CodeDispatchInvalidInput, "dispatcher requires a router")
	case cfg.Recorder == nil:
		return nil, sigilerr.New(sigilerr.CodeDispatchInvalidInput, "dispatcher requires a recorder")
	case cfg.Client == nil:
		return nil, sigilerr.New(sigilerr.CodeDispatchInvalidInput, "dispatcher requires a model client")
	}
	if err := cfg.Fallback.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		router:   cfg.Router,
		recorder: cfg.Recorder,
		client:   cfg.Client,
		chainCfg: cfg.Fallback,
		logger:   cfg.Logger,
		nowFunc:  cfg.NowFunc,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.nowFunc == nil {
		d.nowFunc = time.Now
	}
	d.observer = fallback.Observers{fallback.NewLogObserver(d.logger), cfg.Observer}
	return d, nil
}

// Dispatch routes task and tries its candidates until one succeeds. The
// returned error is the chain's aggregate failure when every attempt
// failed or a bound was hit.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) (*Result, error) {
	if strings.TrimSpace(task.Prompt) == "" {
		return nil, sigilerr.New(sigilerr.CodeDispatchInvalidInput, "task prompt must not be empty",
			sigilerr.FieldTaskType(task.Type))
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	decision, err := d.router.RouteTask(task.Type, task.Candidates)
	if err != nil {
		return nil, err
	}

	chain, err := fallback.New(decision, d.chainCfg,
		fallback.WithID(task.ID),
		fallback.WithObserver(d.observer),
		fallback.WithNowFunc(d.nowFunc),
	)
	if err != nil {
		return nil, err
	}

	var completion Completion
	winner, err := chain.Run(ctx, func(actx context.Context, model string) error {
		c, callErr := d.invoke(ctx, actx, model, task.Prompt)
		if callErr == nil {
			completion = c
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		ChainID:    chain.ID(),
		Model:      winner.Model,
		Completion: completion,
		Decision:   decision,
		Attempts:   chain.Attempts(),
	}, nil
}

// invoke calls the client and records the outcome. Attempts aborted by
// the caller's own cancellation are not attributed to the model.
func (d *Dispatcher) invoke(ctx, actx context.Context, model, prompt string) (Completion, error) {
	start := d.nowFunc()
	c, err := d.client.Invoke(actx, model, prompt)
	elapsed := d.nowFunc().Sub(start)

	if err != nil && ctx.Err() != nil {
		return c, err
	}

	latency := c.LatencyMs
	if latency <= 0 {
		latency = float64(elapsed) / float64(time.Millisecond)
	}
	d.record(model, health.ModelMetric{
		LatencyMs: latency,
		Success:   err == nil,
		Tokens:    c.Tokens,
		Cost:      c.Cost,
	})

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c, err
		}
		if sigilerr.CodeOf(err) == "" {
			err = sigilerr.Wrap(err, sigilerr.CodeDispatchUpstreamFailure, "model invocation failed",
				sigilerr.FieldModel(model))
		}
		return c, err
	}
	return c, nil
}

func (d *Dispatcher) record(model string, m health.ModelMetric) {
	if err := d.recorder.RecordMetric(model, m); err != nil {
		d.logger.Warn("recording model metric failed", "model", model, "error", err)
	}
}

// Feedback attaches a feedback score to the most recent call of modelID.
func (d *Dispatcher) Feedback(modelID string, score int, hallucination *bool) error {
	return d.recorder.RecordFeedback(modelID, score, hallucination)
}
