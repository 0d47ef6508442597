// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
)

// Completer produces one reply for one prompt.
type Completer interface {
	Complete(ctx context.Context, prompt, modelID string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt, modelID string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	return f(ctx, prompt, modelID)
}

// ErrNoResponse is returned when a provider answered with no content.
var ErrNoResponse = errors.New("No response generated")

// CodingSystemPrompt is sent ahead of every quota-family request.
const CodingSystemPrompt = `You are an expert coding assistant specialized in debugging, code analysis, and programming help.

Key guidelines:
- Focus on practical, actionable solutions
- Explain your reasoning clearly
- Provide code examples when helpful
- Identify potential bugs, performance issues, and improvements
- Suggest best practices and modern approaches
- Format code blocks with proper syntax highlighting
- Be concise but thorough in explanations

When analyzing code:
1. First identify what the code is trying to do
2. Point out any issues or bugs
3. Suggest improvements or fixes
4. Explain why your suggestions are better
5. Provide the corrected/improved code if applicable`

// =============================================================================
// PROVIDER ERRORS
// =============================================================================

// APIError is a provider failure carrying the HTTP status the provider
// returned and a message suitable for showing to the user.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	kind       error
	cause      error
}

// Error returns the user-facing message.
func (e *APIError) Error() string {
	return e.Message
}

// Unwrap exposes the classification sentinel and the provider error.
func (e *APIError) Unwrap() []error {
	out := []error{e.kind}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// RateLimited reports whether the provider refused for quota reasons.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// classifyStatus maps a provider HTTP status onto the error taxonomy.
func classifyStatus(provider string, status int, cause error) *APIError {
	e := &APIError{Provider: provider, StatusCode: status, cause: cause}
	switch status {
	case http.StatusTooManyRequests:
		e.kind = errs.ErrRateLimited
		e.Message = "Rate limit exceeded. Please try again later or switch to a Claude model for unlimited usage."
	case http.StatusUnauthorized:
		e.kind = errs.ErrBackendUnavailable
		e.Message = fmt.Sprintf("Invalid API key. Please check your %s API configuration.", provider)
	case http.StatusBadRequest:
		e.kind = errs.ErrInvalidRequest
		e.Message = "Invalid request. Please check your input and try again."
	default:
		e.kind = errs.ErrTransportFailure
		e.Message = "Failed to process request. Please try again."
	}
	return e
}

// notConfigured is returned when a family has no API key.
func notConfigured(provider string) error {
	return fmt.Errorf("%w: %s API key is not configured", errs.ErrBackendUnavailable, provider)
}

// wrapCallError keeps context errors intact and classifies everything else
// as a transport failure.
func wrapCallError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s completion: %w", provider, err)
	}
	return fmt.Errorf("%w: %s completion: %v", errs.ErrTransportFailure, provider, err)
}
