// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package mcpcall

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
)

// helperPID reads the pid the helper process recorded at startup.
func helperPID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "helper never recorded its pid")
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}

func TestSubprocessStrategy_TimeoutLeavesNoProcess(t *testing.T) {
	for _, mode := range []string{"hang", "silent"} {
		t.Run(mode, func(t *testing.T) {
			pidFile := filepath.Join(t.TempDir(), "helper.pid")
			// Long enough for the helper to record its pid before the kill.
			s := helperStrategy(mode, time.Second)
			s.Env = append(s.Env, "HELPER_PID_FILE="+pidFile)

			_, err := s.Attempt(context.Background(), docsCall())
			require.ErrorIs(t, err, errs.ErrSubprocessTimeout)

			pid := helperPID(t, pidFile)
			assert.ErrorIs(t, unix.Kill(pid, 0), unix.ESRCH, "helper %d outlived the attempt", pid)
		})
	}
}

func TestSubprocessStrategy_SuccessLeavesNoProcess(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "helper.pid")
	s := helperStrategy("ok", 10*time.Second)
	s.Env = append(s.Env, "HELPER_PID_FILE="+pidFile)

	_, err := s.Attempt(context.Background(), docsCall())
	require.NoError(t, err)

	pid := helperPID(t, pidFile)
	assert.ErrorIs(t, unix.Kill(pid, 0), unix.ESRCH, "helper %d outlived the attempt", pid)
}
