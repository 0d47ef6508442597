// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package permission implements the user-consent gate in front of every tool call.
//
// Each tool (keyed by its display name) moves through the states Unset,
// AllowedOnce, AlwaysAllowed and Denied. Only AlwaysAllowed skips the prompt;
// Denied suppresses it only when the sticky-deny policy is enabled.
//
// At most one approval is outstanding at a time. The gate owns that single
// slot: a second request while one is pending is rejected with
// errs.ErrApprovalPending instead of replacing the first.
//
// # Key Types
//
//   - Gate: permission cache plus the single pending-approval slot
//   - PendingApproval: what the UI shows while a request is suspended
//   - Decision: approve, deny, or always allow
//
// # Usage
//
//	gate := permission.NewGate().WithNotifier(func(p permission.PendingApproval) {
//	    ui.ShowApproval(p)
//	})
//	ok, err := gate.RequestPermission(ctx, "web_search", params)
//
//	// from the UI
//	gate.Resolve(permission.DecisionAlwaysAllow)
package permission
