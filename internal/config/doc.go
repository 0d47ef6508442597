// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the chat core.
//
// Configuration is a single TOML file with sensible defaults, environment
// variable overrides, validation, and an optional file watcher for hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendsConfig: Completion backends (unlimited and quota-limited families)
//   - SearchConfig: Direct search backend endpoints and limits
//   - MCPConfig: Protocol-call backend (URL and subprocess strategies)
//   - PermissionsConfig: Permission gate policy
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GROQ_API_KEY, ANTHROPIC_API_KEY, SMITHERY_*, CHAT_*)
//   - ~/.200model8/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.Search.Timeout()
package config
