// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package fallback

import (
	"errors"
	"fmt"
	"strings"
)

// ExhaustedError is the aggregate failure of a chain that ended without
// success. It lists every attempt in order.
//
// Individual failures are reached through Attempts, not Unwrap.
type ExhaustedError struct {
	ChainID  string
	TaskType string
	Reason   Reason
	Attempts []Attempt
	// Cause is the caller's context error when Reason is ReasonCancelled.
	Cause error
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fallback chain %s exhausted (%s) after %d attempt(s)", e.ChainID, e.Reason, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; #%d %s: ", a.Number, a.Model)
		if a.Err != nil {
			b.WriteString(a.Err.Error())
		} else {
			b.WriteString("no error reported")
		}
	}
	return b.String()
}

// Is matches the cancellation cause so errors.Is(err, context.Canceled)
// works on a cancelled chain.
func (e *ExhaustedError) Is(target error) bool {
	return e.Cause != nil && errors.Is(e.Cause, target)
}

// Models returns the attempted model ids in order.
func (e *ExhaustedError) Models() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Model
	}
	return out
}

// AsExhausted extracts the aggregate failure from err.
func AsExhausted(err error) (*ExhaustedError, bool) {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}
