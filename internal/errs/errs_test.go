// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unknown tool", fmt.Errorf("%w: foo", ErrUnknownTool), http.StatusBadRequest},
		{"invalid", ErrInvalidRequest, http.StatusBadRequest},
		{"denied", fmt.Errorf("%w for tool: web_search", ErrPermissionDenied), http.StatusForbidden},
		{"pending", ErrApprovalPending, http.StatusConflict},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", ErrSubprocessTimeout, http.StatusGatewayTimeout},
		{"backend", ErrBackendUnavailable, http.StatusServiceUnavailable},
		{"transport", ErrTransportFailure, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitUsageError, ExitCode(ErrUnknownTool))
	assert.Equal(t, ExitTimeoutError, ExitCode(fmt.Errorf("wrap: %w", ErrSubprocessTimeout)))
	assert.Equal(t, ExitNetworkError, ExitCode(ErrTransportFailure))
	assert.Equal(t, ExitGeneralError, ExitCode(errors.New("x")))
}

func TestFailures(t *testing.T) {
	var f Failures
	assert.Nil(t, f.Last())
	assert.Equal(t, "no strategies attempted", f.Error())

	f.Add("url", fmt.Errorf("%w: HTTP 502", ErrTransportFailure))
	f.Add("subprocess", fmt.Errorf("%w after 30s", ErrSubprocessTimeout))

	var err error = f
	assert.True(t, errors.Is(err, ErrTransportFailure))
	assert.True(t, errors.Is(err, ErrSubprocessTimeout))
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "url: transport failure: HTTP 502")
	assert.Contains(t, err.Error(), "subprocess: subprocess timeout after 30s")
	assert.ErrorIs(t, f.Last(), ErrSubprocessTimeout)
}
