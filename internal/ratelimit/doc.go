// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit tracks daily request counts for quota-limited models.
//
// Records are stored under the key "rateLimit_<model>" as JSON objects of the
// form {"requests", "maxRequests", "resetTime"}. A record resets at the first
// local midnight after it was started.
//
// # Key Types
//
//   - Record: One model's counter and reset time
//   - Store: Key-value persistence (MemoryStore, SQLiteStore)
//   - Tracker: Reads, increments and evaluates records
//
// # Usage
//
//	store, err := ratelimit.OpenSQLite(path)
//	tracker := ratelimit.NewTracker(store, cfg.Quotas.Overrides)
//
//	ok, err := tracker.CanUse(ctx, "llama-3.3-70b-versatile")
//	rec, err := tracker.Increment(ctx, "llama-3.3-70b-versatile", 1)
package ratelimit
