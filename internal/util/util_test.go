// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0o600))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 0, ""},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TruncateRunes(tt.in, tt.max), tt.in)
	}
}

func TestTruncateDisplay(t *testing.T) {
	assert.Equal(t, "line one line two", TruncateDisplay("line one\nline two", 40))
	assert.Equal(t, "", TruncateDisplay("anything", 0))

	got := TruncateDisplay(strings.Repeat("漢", 10), 9)
	assert.LessOrEqual(t, len([]rune(got)), 6)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "", RedactSecret(""))
	assert.Equal(t, "****", RedactSecret("short"))
	assert.Equal(t, "gsk_********", RedactSecret("gsk_abcdefghijklmnop"))
}

func TestRedactQuery(t *testing.T) {
	got := RedactQuery("https://server.example/mcp?api_key=0123456789abcdef&profile=p1", "api_key")
	assert.NotContains(t, got, "0123456789abcdef")
	assert.Contains(t, got, "profile=p1")
	assert.Contains(t, got, "api_key=0123")
}
