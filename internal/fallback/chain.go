// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package fallback walks the candidates of a routing decision in order
// until one succeeds or a bound is reached.
package fallback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/modelroute/internal/router"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
)

// Status is the state of a chain.
type Status int

const (
	// StatusPending means no attempt is in flight and the chain is not
	// finished: before the first attempt and between attempts.
	StatusPending Status = iota
	StatusAttempting
	StatusSucceeded
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAttempting:
		return "attempting"
	case StatusSucceeded:
		return "succeeded"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusExhausted
}

// Reason explains why a chain was exhausted.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoCandidates   Reason = "candidates_exhausted"
	ReasonMaxAttempts    Reason = "max_attempts"
	ReasonBudgetExceeded Reason = "budget_exceeded"
	ReasonCancelled      Reason = "cancelled"
)

// Attempt is one invocation of one candidate. Number starts at 1.
type Attempt struct {
	Number    int
	Model     string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// AttemptFunc invokes model. The context carries the attempt deadline.
type AttemptFunc func(ctx context.Context, model string) error

// Chain is the per-request state machine. Attempts are strictly
// sequential; a Chain must not be shared between requests.
type Chain struct {
	id         string
	taskType   string
	candidates []string
	cfg        Config
	observer   Observer
	nowFunc    func() time.Time

	mu        sync.Mutex
	status    Status
	reason    Reason
	next      int
	startedAt time.Time
	attempts  []Attempt
	err       error
}

// Option customises a Chain.
type Option func(*Chain)

// WithObserver sets the transition observer.
func WithObserver(o Observer) Option {
	return func(c *Chain) { c.observer = o }
}

// WithNowFunc overrides the clock used for durations and the budget.
func WithNowFunc(fn func() time.Time) Option {
	return func(c *Chain) {
		if fn != nil {
			c.nowFunc = fn
		}
	}
}

// WithID sets the chain id. The default is a random UUID.
func WithID(id string) Option {
	return func(c *Chain) {
		if id != "" {
			c.id = id
		}
	}
}

// New builds a chain over the decision's primary and fallbacks.
func New(d *router.Decision, cfg Config, opts ...Option) (*Chain, error) {
	if d == nil || d.Primary == "" {
		return nil, sigilerr.New(sigilerr.CodeRoutingNoCandidates, "fallback chain needs a decision with a primary model")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Chain{
		id:         uuid.NewString(),
		taskType:   d.TaskType,
		candidates: d.Candidates(),
		cfg:        cfg,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ID returns the chain id.
func (c *Chain) ID() string { return c.id }

// Candidates returns the ordered candidate list.
func (c *Chain) Candidates() []string {
	return append([]string(nil), c.candidates...)
}

// Status returns the current state.
func (c *Chain) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Reason returns why the chain was exhausted, or ReasonNone.
func (c *Chain) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Err returns the aggregate failure once exhausted, nil otherwise.
func (c *Chain) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Attempts returns a copy of the attempts so far.
func (c *Chain) Attempts() []Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Attempt(nil), c.attempts...)
}

// Attempted returns the models tried so far, in order.
func (c *Chain) Attempted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.attempts))
	for i, a := range c.attempts {
		out[i] = a.Model
	}
	return out
}

// Next starts the next attempt and returns it. When a bound is reached or
// no candidate remains the chain becomes exhausted and Next returns the
// aggregate failure, which Next keeps returning afterwards. Calling Next
// while an attempt is in flight or after success is an invalid transition.
func (c *Chain) Next(ctx context.Context) (Attempt, error) {
	var events []Event
	defer func() { c.emit(events) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusAttempting:
		return Attempt{}, c.invalid("next called while an attempt is in flight")
	case StatusSucceeded:
		return Attempt{}, c.invalid("next called on a succeeded chain")
	case StatusExhausted:
		return Attempt{}, c.err
	}

	now := c.nowFunc()
	if c.startedAt.IsZero() {
		c.startedAt = now
	}

	if err := ctx.Err(); err != nil {
		events = append(events, c.exhaustLocked(ReasonCancelled, err, now))
		return Attempt{}, c.err
	}
	if reason, ok := c.boundLocked(now); ok {
		events = append(events, c.exhaustLocked(reason, nil, now))
		return Attempt{}, c.err
	}

	a := Attempt{
		Number:    len(c.attempts) + 1,
		Model:     c.candidates[c.next],
		StartedAt: now,
	}
	c.next++
	c.attempts = append(c.attempts, a)
	c.status = StatusAttempting

	events = append(events, c.eventLocked(EventAttemptStarted, &a, nil, now))
	return a, nil
}

// Fail records the failure of the in-flight attempt. If a bound is now
// reached or no candidate remains the chain is exhausted immediately.
func (c *Chain) Fail(err error) error {
	var events []Event
	defer func() { c.emit(events) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusAttempting {
		return c.invalid("fail called without an attempt in flight")
	}
	if err == nil {
		err = sigilerr.New(sigilerr.CodeDispatchUpstreamFailure, "attempt failed without an error")
	}

	now := c.nowFunc()
	a := c.finishLocked(err, now)
	c.status = StatusPending
	events = append(events, c.eventLocked(EventAttemptFailed, &a, err, now))

	if reason, ok := c.boundLocked(now); ok {
		events = append(events, c.exhaustLocked(reason, nil, now))
	}
	return nil
}

// Succeed marks the in-flight attempt as the winner.
func (c *Chain) Succeed() error {
	var events []Event
	defer func() { c.emit(events) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusAttempting {
		return c.invalid("succeed called without an attempt in flight")
	}

	now := c.nowFunc()
	a := c.finishLocked(nil, now)
	c.status = StatusSucceeded
	events = append(events, c.eventLocked(EventSucceeded, &a, nil, now))
	return nil
}

// Cancel exhausts the chain with ReasonCancelled. An in-flight attempt is
// recorded as failed with cause. Cancel on a finished chain is a no-op.
func (c *Chain) Cancel(cause error) {
	var events []Event
	defer func() { c.emit(events) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.Terminal() {
		return
	}
	if cause == nil {
		cause = context.Canceled
	}

	now := c.nowFunc()
	if c.status == StatusAttempting {
		a := c.finishLocked(cause, now)
		events = append(events, c.eventLocked(EventAttemptFailed, &a, cause, now))
	}
	events = append(events, c.exhaustLocked(ReasonCancelled, cause, now))
}

// terminalErr returns the aggregate failure when the chain was exhausted
// underneath a transition, for example by a concurrent Cancel.
func (c *Chain) terminalErr(err error) error {
	if exhausted := c.Err(); exhausted != nil {
		return exhausted
	}
	return err
}

// Run drives the chain to completion, calling fn for each candidate. Each
// call gets the per-attempt timeout capped by the remaining budget.
// Cancelling ctx cancels the in-flight call and ends the chain.
func (c *Chain) Run(ctx context.Context, fn AttemptFunc) (Attempt, error) {
	for {
		a, err := c.Next(ctx)
		if err != nil {
			return Attempt{}, err
		}

		actx, cancel := c.attemptContext(ctx)
		callErr := fn(actx, a.Model)
		deadlineHit := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()

		if callErr == nil {
			if err := c.Succeed(); err != nil {
				return Attempt{}, c.terminalErr(err)
			}
			return c.lastAttempt(), nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.Cancel(ctxErr)
			return Attempt{}, c.Err()
		}
		if deadlineHit {
			// %v keeps the timeout code outermost; a coded callErr would shadow it.
			callErr = sigilerr.Errorf(sigilerr.CodeFallbackAttemptTimeout, "model %s attempt %d timed out: %v",
				a.Model, a.Number, callErr)
		}
		if err := c.Fail(callErr); err != nil {
			return Attempt{}, c.terminalErr(err)
		}
	}
}

func (c *Chain) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.AttemptTimeout
	if c.cfg.Budget > 0 {
		c.mu.Lock()
		remaining := c.cfg.Budget - c.nowFunc().Sub(c.startedAt)
		c.mu.Unlock()
		if timeout == 0 || remaining < timeout {
			timeout = max(remaining, time.Millisecond)
		}
	}
	if timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Chain) lastAttempt() Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[len(c.attempts)-1]
}

// boundLocked reports the first limit that stops another attempt.
func (c *Chain) boundLocked(now time.Time) (Reason, bool) {
	switch {
	case c.cfg.Budget > 0 && now.Sub(c.startedAt) >= c.cfg.Budget:
		return ReasonBudgetExceeded, true
	case len(c.attempts) >= c.cfg.MaxAttempts:
		return ReasonMaxAttempts, true
	case c.next >= len(c.candidates):
		return ReasonNoCandidates, true
	}
	return ReasonNone, false
}

// finishLocked closes the in-flight attempt and returns a copy of it.
func (c *Chain) finishLocked(err error, now time.Time) Attempt {
	a := &c.attempts[len(c.attempts)-1]
	a.Duration = now.Sub(a.StartedAt)
	a.Err = err
	return *a
}

func (c *Chain) exhaustLocked(reason Reason, cause error, now time.Time) Event {
	c.status = StatusExhausted
	c.reason = reason

	ex := &ExhaustedError{
		ChainID:  c.id,
		TaskType: c.taskType,
		Reason:   reason,
		Attempts: append([]Attempt(nil), c.attempts...),
		Cause:    cause,
	}

	code := sigilerr.CodeFallbackChainExhausted
	switch reason {
	case ReasonCancelled:
		code = sigilerr.CodeFallbackChainCancelled
	case ReasonBudgetExceeded:
		code = sigilerr.CodeFallbackBudgetExceeded
	}
	c.err = sigilerr.Wrap(ex, code, "fallback chain exhausted",
		sigilerr.FieldChainID(c.id),
		sigilerr.FieldTaskType(c.taskType),
		sigilerr.Field("reason", string(reason)),
		sigilerr.Field("models", ex.Models()),
	)

	var last *Attempt
	if n := len(c.attempts); n > 0 {
		a := c.attempts[n-1]
		last = &a
	}
	return c.eventLocked(EventExhausted, last, c.err, now)
}

func (c *Chain) eventLocked(kind EventKind, a *Attempt, err error, now time.Time) Event {
	return Event{
		Kind:     kind,
		ChainID:  c.id,
		TaskType: c.taskType,
		Status:   c.status,
		Reason:   c.reason,
		Attempt:  a,
		Err:      err,
		At:       now,
	}
}

func (c *Chain) emit(events []Event) {
	if c.observer == nil {
		return
	}
	for _, e := range events {
		c.observer.Observe(e)
	}
}

func (c *Chain) invalid(msg string) error {
	return sigilerr.New(sigilerr.CodeFallbackTransitionInvalid, msg,
		sigilerr.FieldChainID(c.id), sigilerr.Field("status", c.status.String()))
}
