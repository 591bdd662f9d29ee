// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSnapshotNotFound          Code = "store.snapshot.load.not_found"
	CodeSnapshotCorrupt           Code = "store.snapshot.load.invalid_format"
	CodeSnapshotReadFailure       Code = "store.snapshot.read.failure"
	CodeSnapshotWriteFailure      Code = "store.snapshot.write.failure"
	CodeStoreDatabaseFailure      Code = "store.database.failure"
	CodeStoreBackendUnsupported   Code = "store.backend.unsupported"
	CodeStoreClosed               Code = "store.state.closed"
	CodeProfilerInputInvalid      Code = "profiler.input.invalid_input"
	CodeProfilerClosed            Code = "profiler.state.closed"
	CodeRoutingNoCandidates       Code = "routing.candidates.invalid_input"
	CodeRoutingTaskTypeInvalid    Code = "routing.task_type.invalid_input"
	CodeFallbackTransitionInvalid Code = "fallback.transition.invalid"
	CodeFallbackAttemptTimeout    Code = "fallback.attempt.timeout"
	CodeFallbackChainExhausted    Code = "fallback.chain.exhausted"
	CodeFallbackChainCancelled    Code = "fallback.chain.cancelled"
	CodeFallbackBudgetExceeded    Code = "fallback.budget.budget_exceeded"

	CodeDispatchInvalidInput    Code = "dispatch.task.invalid_input"
	CodeDispatchUpstreamFailure Code = "dispatch.upstream.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"

	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

func FieldTaskType(value string) Attr {
	return Field("task_type", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func FieldChainID(value string) Attr {
	return Field("chain_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsBudgetExceeded(err error) bool {
	r := reason(CodeOf(err))
	return r == "exceeded" || r == "budget_exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsCancelled(err error) bool {
	return reason(CodeOf(err)) == "cancelled"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
