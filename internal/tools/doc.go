// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools dispatches tool requests to their transports.
//
// The dispatch table is fixed: web_search, code_docs and github_search, plus
// the legacy aliases exa_search and context7_search. Every branch returns the
// same model.Envelope so prompt construction needs no per-tool handling.
//
// Web search and documentation lookup cross the tool-call transport
// boundary, a {serverConfig, toolName, parameters} request served either in
// process (LocalCaller) or by a remote /api/mcp-call endpoint (HTTPCaller).
// Repository search calls the GitHub REST API directly.
//
// # Key Types
//
//   - Transport: the dispatch table
//   - ServerCaller: the tool-call transport boundary
//   - GitHubClient: repository search
//   - Executor: permission gate, then transport, then results cache
//
// # Usage
//
//	transport := tools.NewTransport(tools.NewLocalCaller(searchClient, chain), tools.NewGitHubClient(cfg.GitHub))
//	exec := tools.NewExecutor(gate, transport, cfg.Cache.ResultTTL())
//	env, err := exec.Execute(ctx, "web_search", map[string]any{"query": "Go 1.24"})
//
// # Errors
//
//   - errs.ErrUnknownTool for names outside the table
//   - errs.ErrInvalidRequest when the query is missing
//   - errs.ErrPermissionDenied when the user refuses
//   - errs.ErrTransportFailure and subprocess errors from the transports
package tools
