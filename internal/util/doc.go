// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the chat core.
//
// # Key Functions
//
// Display:
//   - TruncateDisplay: width-aware truncation for log and terminal previews
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//
// Secrets:
//   - RedactSecret: masks API keys before they reach a log line
//   - RedactQuery: masks secret query parameters inside a URL
//
// Files:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	slog.Debug("tool output", "preview", util.TruncateDisplay(text, 120))
//	slog.Info("calling endpoint", "url", util.RedactQuery(endpoint, "api_key"))
package util
