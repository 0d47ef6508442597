// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides model completion for the chat orchestrator.
//
// Two backend families exist. Model ids containing "claude" use the
// unlimited family (Anthropic Messages API); every other id uses the
// quota-limited family (Groq's OpenAI-compatible chat completions API).
// The Router picks the family and enforces daily quotas.
//
// # Key Types
//
//   - Completer: Single-prompt completion capability
//   - GroqBackend: Quota-limited family over openai-go
//   - AnthropicBackend: Unlimited family over anthropic-sdk-go
//   - Router: Family selection plus quota enforcement
//   - APIError: Provider failure with a user-facing message
//
// # Usage
//
//	router := backend.NewRouterFromConfig(cfg.Backends, tracker)
//	reply, err := router.Complete(ctx, prompt, "llama-3.3-70b-versatile")
package backend
