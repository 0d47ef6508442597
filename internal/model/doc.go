// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat core.
//
// This package defines the conversation history, the static tool catalog,
// the model catalog with its backend families and daily quotas, and the code
// block extracted from assistant replies.
//
// # Key Types
//
//   - Conversation: Ordered, append-only message history with in-place user edits
//   - Message: Single message with role, content, model and timestamp
//   - ToolDescriptor: Immutable description of an invokable tool
//   - ModelInfo: Catalog entry with backend family and daily quota
//   - CodeBlock: First fenced code block of a reply, for side-panel display
//
// # Usage
//
//	conv := model.NewConversation()
//	msg := conv.AddMessage(model.NewUserMessage("What's trending in Kenya?"))
//
//	if desc, ok := model.LookupTool("exa_search"); ok {
//	    fmt.Println(desc.DisplayName) // "Web Search"
//	}
//
//	if block := model.ExtractCodeBlock(reply); block != nil {
//	    fmt.Println(block.Language, block.Filename)
//	}
package model
