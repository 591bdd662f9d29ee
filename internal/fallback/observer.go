// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package fallback

import (
	"log/slog"
	"time"
)

// EventKind identifies a chain transition.
type EventKind string

const (
	EventAttemptStarted EventKind = "attempt_started"
	EventAttemptFailed  EventKind = "attempt_failed"
	EventSucceeded      EventKind = "succeeded"
	EventExhausted      EventKind = "exhausted"
)

// Event describes one transition. Attempt is set for attempt events and
// for the final outcome when an attempt concluded it.
type Event struct {
	Kind     EventKind
	ChainID  string
	TaskType string
	Status   Status
	Reason   Reason
	Attempt  *Attempt
	Err      error
	At       time.Time
}

// Observer receives every transition of a chain, in order, from the
// goroutine driving the chain. Implementations must not call back into
// the chain.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

// LogObserver logs transitions with structured attributes.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns a LogObserver. A nil logger uses slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (l *LogObserver) Observe(e Event) {
	attrs := []any{"chain_id", e.ChainID, "task_type", e.TaskType}
	if e.Attempt != nil {
		attrs = append(attrs, "model", e.Attempt.Model, "attempt", e.Attempt.Number)
		if e.Attempt.Duration > 0 {
			attrs = append(attrs, "duration", e.Attempt.Duration)
		}
	}

	switch e.Kind {
	case EventAttemptStarted:
		l.Logger.Debug("fallback attempt started", attrs...)
	case EventAttemptFailed:
		l.Logger.Warn("fallback attempt failed", append(attrs, "error", e.Err)...)
	case EventSucceeded:
		l.Logger.Info("fallback chain succeeded", attrs...)
	case EventExhausted:
		l.Logger.Error("fallback chain exhausted", append(attrs, "reason", e.Reason, "error", e.Err)...)
	}
}
