// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs conversation turns with optional tool use.
//
// A turn asks the model once with a prompt advertising the tool catalog. If
// the reply carries a tool directive and an executor is registered, the tool
// runs behind the permission gate and the model is asked a second time with
// the tool result embedded. Any failure on the tool path degrades the turn to
// the first reply with the directive line removed.
//
// # Key Types
//
//   - Orchestrator: Owns the history, the turn state and the code preview
//   - TurnState: Where the current turn is waiting
//   - ToolExecutor: The tool capability the orchestrator calls
//
// # Usage
//
//	o := chat.NewOrchestrator(router).WithToolExecutor(executor)
//	o.OnUpdate(func() { render(o.Messages()) })
//	err := o.SendMessage(ctx, "What's trending in Kenya?", "llama-3.3-70b-versatile")
package chat
