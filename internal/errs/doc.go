// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errs defines the error taxonomy shared by the tool orchestration core.
//
// Every failure that crosses a package boundary wraps one of the sentinel
// errors declared here, so callers classify with errors.Is instead of
// matching message text.
//
// # Key Types
//
//   - Sentinels: ErrUnknownTool, ErrPermissionDenied, ErrTransportFailure,
//     ErrSubprocessTimeout, ErrSubprocessExit, ErrBackendUnavailable,
//     ErrRateLimited, ErrInvalidRequest, ErrApprovalPending
//   - Failures: ordered failure reasons collected by a fallback chain
//
// # Usage
//
//	if errors.Is(err, errs.ErrPermissionDenied) {
//	    // degrade the turn
//	}
//	status := errs.HTTPStatus(err)
package errs
