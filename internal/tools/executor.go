// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
)

// DefaultResultTTL is how long results stay inspectable when no TTL is given.
const DefaultResultTTL = time.Hour

// =============================================================================
// COLLABORATORS
// =============================================================================

// PermissionGate decides whether a tool may run.
type PermissionGate interface {
	RequestPermission(ctx context.Context, toolName string, params map[string]any) (bool, error)
}

// ToolCaller runs a tool once permission is granted.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, params map[string]any) (*model.Envelope, error)
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor runs tool calls behind the permission gate and keeps recent results.
type Executor struct {
	gate      PermissionGate
	transport ToolCaller
	results   *cache.Cache
	now       func() time.Time
}

// NewExecutor creates an executor. A non-positive ttl uses DefaultResultTTL.
func NewExecutor(gate PermissionGate, transport ToolCaller, ttl time.Duration) *Executor {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Executor{
		gate:      gate,
		transport: transport,
		results:   cache.New(ttl, 2*ttl),
		now:       time.Now,
	}
}

// Execute asks the gate, then calls the tool. A refusal fails with
// errs.ErrPermissionDenied; gate errors such as errs.ErrApprovalPending are
// returned unchanged.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any) (*model.Envelope, error) {
	if err := e.Authorize(ctx, name, params); err != nil {
		return nil, err
	}
	return e.Call(ctx, name, params)
}

// Authorize runs only the permission step of Execute.
func (e *Executor) Authorize(ctx context.Context, name string, params map[string]any) error {
	if e.gate == nil {
		return nil
	}
	allowed, err := e.gate.RequestPermission(ctx, name, params)
	if err != nil {
		return err
	}
	if !allowed {
		slog.Info("tool call refused", "tool", name)
		return fmt.Errorf("%w for tool: %s", errs.ErrPermissionDenied, name)
	}
	return nil
}

// Call runs the tool without consulting the gate and stores the result.
func (e *Executor) Call(ctx context.Context, name string, params map[string]any) (*model.Envelope, error) {
	start := e.now()
	env, err := e.transport.CallTool(ctx, name, params)
	if err != nil {
		slog.Warn("tool call failed", "tool", name, "duration", time.Since(start), "error", err)
		return nil, err
	}

	key := fmt.Sprintf("%s_%d", name, start.UnixMilli())
	e.results.Set(key, env, cache.DefaultExpiration)
	slog.Info("tool call completed", "tool", name, "source", env.Source, "method", env.Method, "result_id", key)
	return env, nil
}

// Results returns the unexpired results keyed by "<tool>_<unix millis>".
func (e *Executor) Results() map[string]*model.Envelope {
	items := e.results.Items()
	out := make(map[string]*model.Envelope, len(items))
	for k, item := range items {
		if env, ok := item.Object.(*model.Envelope); ok {
			out[k] = env
		}
	}
	return out
}

// ClearResults drops every stored result.
func (e *Executor) ClearResults() {
	e.results.Flush()
}
