// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/Jeff9497/200Model8Dev/internal/backend"
	"github.com/Jeff9497/200Model8Dev/internal/chat"
	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/mcpcall"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/permission"
	"github.com/Jeff9497/200Model8Dev/internal/ratelimit"
	"github.com/Jeff9497/200Model8Dev/internal/search"
	"github.com/Jeff9497/200Model8Dev/internal/tools"
)

// =============================================================================
// RUNTIME
// =============================================================================

// runtime is every component a command needs, wired from one Config.
type runtime struct {
	cfg          *config.Config
	caller       tools.ServerCaller
	transport    *tools.Transport
	gate         *permission.Gate
	executor     *tools.Executor
	tracker      *ratelimit.Tracker
	completer    backend.Completer
	orchestrator *chat.Orchestrator

	closers []io.Closer
}

// runtimeOptions carries per-command settings that are not in the config file.
type runtimeOptions struct {
	// remoteURL sends web_search and code_docs to a running serve instance's
	// /api/mcp-call instead of calling the backends in process.
	remoteURL string
}

// remoteToolTimeout covers the remote side's whole fallback chain.
const remoteToolTimeout = 90 * time.Second

// newRuntime builds the runtime. Tests replace it to inject fakes.
var newRuntime = buildRuntime

func buildRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	caller, err := newCaller(cfg, opts)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, caller: caller}

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Quotas.DBPath != "" {
		sqlite, err := ratelimit.OpenSQLite(cfg.Quotas.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open rate-limit store: %w", err)
		}
		store = sqlite
		rt.closers = append(rt.closers, sqlite)
	}
	rt.tracker = ratelimit.NewTracker(store, cfg.Quotas.Overrides)

	rt.transport = tools.NewTransport(rt.caller, tools.NewGitHubClient(cfg.GitHub))
	rt.gate = permission.NewGate().WithStickyDeny(cfg.Permissions.StickyDeny)
	rt.executor = tools.NewExecutor(rt.gate, rt.transport, cfg.Cache.ResultTTL())

	rt.completer = backend.NewRouterFromConfig(cfg.Backends, rt.tracker)
	rt.orchestrator = chat.NewOrchestrator(rt.completer).WithToolExecutor(rt.executor)

	slog.Debug("runtime ready",
		"default_model", cfg.DefaultModel,
		"rate_limit_store", storeKind(cfg),
		"remote", opts.remoteURL,
		"groq", cfg.Backends.GroqKey != "",
		"anthropic", cfg.Backends.AnthropicKey != "",
	)
	return rt, nil
}

// newCaller picks the tool-call transport: a remote API when remoteURL is
// set, the in-process backends otherwise.
func newCaller(cfg *config.Config, opts runtimeOptions) (tools.ServerCaller, error) {
	if opts.remoteURL == "" {
		return tools.NewLocalCaller(search.NewClient(cfg.Search), mcpcall.NewDefaultChain(cfg.MCP)), nil
	}
	u, err := url.Parse(opts.remoteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: --remote must be an http(s) URL, got %q", errs.ErrInvalidRequest, opts.remoteURL)
	}
	return tools.NewHTTPCaller(opts.remoteURL, remoteToolTimeout), nil
}

func storeKind(cfg *config.Config) string {
	if cfg.Quotas.DBPath != "" {
		return "sqlite"
	}
	return "memory"
}

// applyConfig pushes the settings that can change without a restart.
func (rt *runtime) applyConfig(cfg *config.Config) {
	rt.gate.SetStickyDeny(cfg.Permissions.StickyDeny)
	rt.tracker.SetOverrides(cfg.Quotas.Overrides)
	rt.cfg = cfg
	slog.Info("config reloaded",
		"sticky_deny", cfg.Permissions.StickyDeny,
		"quota_overrides", len(cfg.Quotas.Overrides),
	)
}

// Close releases the stores.
func (rt *runtime) Close() error {
	var errList []error
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// resolveModel accepts an exact catalog id or a fuzzy match. Ids outside
// the catalog are passed through unchanged.
func resolveModel(query, fallback string) string {
	if query == "" {
		return fallback
	}
	if info, ok := model.ResolveModel(query); ok {
		return info.ID
	}
	return query
}
