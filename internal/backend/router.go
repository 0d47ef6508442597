// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/ratelimit"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// MaxPromptLength is the largest prompt accepted, in bytes.
const MaxPromptLength = 100000

// QuotaError is returned when a quota-limited model has used its daily
// allowance. Alternatives lists models the caller can switch to.
type QuotaError struct {
	Model        string
	Record       ratelimit.Record
	Alternatives []model.ModelInfo
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	msg := fmt.Sprintf("Daily limit of %d requests reached for %s", e.Record.MaxRequests, e.Model)
	if len(e.Alternatives) > 0 {
		names := make([]string, len(e.Alternatives))
		for i, m := range e.Alternatives {
			names[i] = m.ID
		}
		msg += ". Try: " + strings.Join(names, ", ")
	}
	return msg
}

// Unwrap classifies the error as rate limited.
func (e *QuotaError) Unwrap() error {
	return errs.ErrRateLimited
}

// =============================================================================
// ROUTER
// =============================================================================

// Router selects a backend by model family and enforces daily quotas for
// catalog models of the quota-limited family.
type Router struct {
	unlimited Completer
	quota     Completer
	tracker   *ratelimit.Tracker
}

// NewRouter creates a router. tracker may be nil to disable quota checks.
func NewRouter(unlimited, quota Completer, tracker *ratelimit.Tracker) *Router {
	return &Router{unlimited: unlimited, quota: quota, tracker: tracker}
}

// NewRouterFromConfig wires the Anthropic and Groq backends.
func NewRouterFromConfig(cfg config.BackendsConfig, tracker *ratelimit.Tracker) *Router {
	return NewRouter(NewAnthropicBackend(cfg), NewGroqBackend(cfg), tracker)
}

// Tracker returns the quota tracker, or nil.
func (r *Router) Tracker() *ratelimit.Tracker {
	return r.tracker
}

// Complete implements Completer.
func (r *Router) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	if strings.TrimSpace(prompt) == "" || strings.TrimSpace(modelID) == "" {
		return "", fmt.Errorf("%w: Message and model are required", errs.ErrInvalidRequest)
	}
	if len(prompt) > MaxPromptLength {
		return "", fmt.Errorf("%w: prompt too long: %d bytes (max %d)", errs.ErrInvalidRequest, len(prompt), MaxPromptLength)
	}

	family := model.FamilyOf(modelID)
	if family == model.FamilyUnlimited {
		if r.unlimited == nil {
			return "", notConfigured(anthropicProvider)
		}
		return r.unlimited.Complete(ctx, prompt, modelID)
	}

	if r.quota == nil {
		return "", notConfigured(groqProvider)
	}
	_, catalogued := model.GetModel(modelID)
	checked := catalogued && r.tracker != nil
	if checked {
		if err := r.checkQuota(ctx, modelID); err != nil {
			return "", err
		}
	}

	slog.Debug("routing completion", "model", modelID, "family", string(family),
		"prompt", util.TruncateDisplay(prompt, 60))
	reply, err := r.quota.Complete(ctx, prompt, modelID)
	if err != nil {
		return "", err
	}

	if checked {
		if _, err := r.tracker.Increment(ctx, modelID, 1); err != nil {
			slog.Warn("failed to record request", "model", modelID, "error", err)
		}
	}
	return reply, nil
}

func (r *Router) checkQuota(ctx context.Context, modelID string) error {
	ok, err := r.tracker.CanUse(ctx, modelID)
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}
	if ok {
		return nil
	}
	rec, _, err := r.tracker.Get(ctx, modelID)
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}
	alts, err := r.tracker.Alternatives(ctx, modelID)
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}
	slog.Info("model quota exhausted", "model", modelID, "reset", rec.ResetTime)
	return &QuotaError{Model: modelID, Record: rec, Alternatives: alts}
}
