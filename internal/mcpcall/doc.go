// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mcpcall invokes tools on hosted MCP servers over JSON-RPC.
//
// A Chain tries an ordered list of strategies and returns the first
// envelope produced. Each failure is recorded; when every strategy fails
// the returned error lists all of them in attempt order and errors.Is sees
// through to each one.
//
// Two strategies are provided:
//
//   - URLStrategy posts JSON-RPC requests to the server's HTTP endpoint and
//     accepts either a JSON body or a server-sent-events stream.
//   - SubprocessStrategy launches the registry CLI, waits for a ready phrase
//     on its diagnostics stream, writes one request line and reads response
//     lines until the matching id arrives. The child process group is killed
//     on every exit path.
//
// # Key Types
//
//   - Call: server name, requested tool and parameters
//   - ServerSpec: how one named server is reached and which remote tool it runs
//   - Strategy: one transport
//   - Chain: ordered strategies with accumulated failures
//
// # Usage
//
//	chain := mcpcall.NewDefaultChain(cfg.MCP)
//	env, err := chain.Call(ctx, mcpcall.Call{
//	    Server: "context7-mcp",
//	    Tool:   "code_docs",
//	    Params: map[string]any{"query": "Next.js"},
//	})
package mcpcall
