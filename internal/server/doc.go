// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the chat core over HTTP.
//
// The API serves a single conversation. Turns started through POST /api/chat
// run in the background; clients poll /api/state and /api/approval to show
// progress and answer permission prompts.
//
// # Endpoints
//
//   - POST   /api/mcp-call               - Tool-call transport
//   - GET    /api/mcp-call?test=...      - Transport smoke test
//   - POST   /api/complete               - One-shot completion
//   - POST   /api/chat                   - Start a turn (202)
//   - GET    /api/messages               - Conversation history
//   - PUT    /api/messages/{id}          - Edit a user message
//   - POST   /api/messages/{id}/resend   - Resend an edited message
//   - DELETE /api/messages               - Start a new chat
//   - GET    /api/code-preview           - Latest extracted code block
//   - GET    /api/state                  - Turn state and pending approval
//   - GET    /api/approval               - Pending approval, if any
//   - POST   /api/approval               - Resolve it (approve, deny, always)
//   - GET    /api/permissions            - Recorded tool permissions
//   - DELETE /api/permissions            - Forget them
//   - GET    /api/tool-results           - Cached tool results by id
//   - DELETE /api/tool-results           - Drop them
//   - GET    /api/models                 - Model catalog with daily usage
//   - GET    /api/tools                  - Tool catalog
//   - GET    /health                     - Health check
//
// # Middleware
//
// Requests pass through panic recovery, security headers, structured request
// logging, CORS and a per-client token-bucket limiter, in that order.
//
// # Usage
//
//	srv := server.New(server.Options{
//	    Config:       cfg.Server,
//	    Orchestrator: orch,
//	    Gate:         gate,
//	    Caller:       caller,
//	    Completer:    router,
//	    Tracker:      tracker,
//	})
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
