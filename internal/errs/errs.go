// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrUnknownTool is returned when a tool name is not in the dispatch table.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrPermissionDenied is returned when the user refused a tool invocation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransportFailure covers network errors, non-2xx statuses and malformed bodies.
	ErrTransportFailure = errors.New("transport failure")

	// ErrSubprocessTimeout is returned when a subprocess produced no matching response in time.
	ErrSubprocessTimeout = errors.New("subprocess timeout")

	// ErrSubprocessExit is returned when a subprocess closed without a matching response.
	ErrSubprocessExit = errors.New("subprocess exited without response")

	// ErrBackendUnavailable is returned when a completion backend is missing or misconfigured.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRateLimited is returned when a model quota is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidRequest is returned when required fields are missing.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrApprovalPending is returned when an approval is already outstanding.
	ErrApprovalPending = errors.New("approval already pending")
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// HTTPStatus maps a classified error to the status code the HTTP API reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownTool):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrApprovalPending):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSubprocessTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTransportFailure), errors.Is(err, ErrSubprocessExit):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Exit codes used by the command line.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitAuthError    = 4
	ExitNetworkError = 5
	ExitTimeoutError = 8
)

// ExitCode maps a classified error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownTool):
		return ExitUsageError
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrBackendUnavailable):
		return ExitAuthError
	case errors.Is(err, ErrSubprocessTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, ErrTransportFailure), errors.Is(err, ErrSubprocessExit), errors.Is(err, ErrRateLimited):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

// =============================================================================
// FALLBACK FAILURES
// =============================================================================

// Failure is one strategy's reason for not producing a result.
type Failure struct {
	Strategy string
	Err      error
}

// Failures accumulates the reasons of every strategy a fallback chain tried, in order.
type Failures []Failure

// Add records a failed attempt.
func (f *Failures) Add(strategy string, err error) {
	*f = append(*f, Failure{Strategy: strategy, Err: err})
}

// Error joins all reasons in attempt order.
func (f Failures) Error() string {
	if len(f) == 0 {
		return "no strategies attempted"
	}
	parts := make([]string, 0, len(f))
	for _, fail := range f {
		parts = append(parts, fmt.Sprintf("%s: %v", fail.Strategy, fail.Err))
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes every underlying reason to errors.Is and errors.As.
func (f Failures) Unwrap() []error {
	out := make([]error, 0, len(f))
	for _, fail := range f {
		out = append(out, fail.Err)
	}
	return out
}

// Last returns the final strategy's error, or nil.
func (f Failures) Last() error {
	if len(f) == 0 {
		return nil
	}
	return f[len(f)-1].Err
}
