// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.1, cfg.Backends.Temperature)
	assert.Equal(t, 4000, cfg.Backends.MaxTokens)
	assert.Equal(t, 0.9, cfg.Backends.TopP)
	assert.Equal(t, 30*time.Second, cfg.MCP.SubprocessTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.MCP.ReadyDelay())
	assert.Equal(t, 15*time.Second, cfg.Search.Timeout())
	assert.False(t, cfg.Permissions.StickyDeny)
	assert.Len(t, cfg.MCP.ReadyPhrases, len(DefaultReadyPhrases))
	require.NoError(t, cfg.Validate())
}

func TestConfig_LoadFromPath(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("CHAT_STICKY_DENY", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_model = "gemma2-9b-it"

[permissions]
sticky_deny = true

[mcp]
subprocess_timeout_secs = 10

[quotas.overrides]
"gemma2-9b-it" = 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "gemma2-9b-it", cfg.DefaultModel)
	assert.True(t, cfg.Permissions.StickyDeny)
	assert.Equal(t, 10*time.Second, cfg.MCP.SubprocessTimeout())
	assert.Equal(t, 50, cfg.Quotas.Overrides["gemma2-9b-it"])
	// Unset sections fall back to defaults.
	assert.Equal(t, "https://html.duckduckgo.com/html/", cfg.Search.HTMLURL)
	assert.Equal(t, "npx", cfg.MCP.Command)
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("SMITHERY_API_KEY", "smithery-key")
	t.Setenv("SMITHERY_PROFILE", "profile-1")
	t.Setenv("CHAT_STICKY_DENY", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "gsk_test", cfg.Backends.GroqKey)
	assert.Equal(t, "smithery-key", cfg.MCP.APIKey)
	assert.Equal(t, "profile-1", cfg.MCP.Profile)
	assert.True(t, cfg.Permissions.StickyDeny)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad url", func(c *Config) { c.Search.HTMLURL = "ftp://x" }, "search.html_url"},
		{"bad temperature", func(c *Config) { c.Backends.Temperature = 3 }, "backends.temperature"},
		{"bad quota", func(c *Config) { c.Quotas.Overrides["m"] = 0 }, "quotas.overrides.m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Permissions.StickyDeny = true
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.True(t, loaded.Permissions.StickyDeny)
}

// TestConfig_ConcurrentAccess checks Global and SetGlobal under the race detector.
func TestConfig_ConcurrentAccess(t *testing.T) {
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			assert.NotNil(t, Global())
		}()
	}
	wg.Wait()
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[permissions]\nsticky_deny = false\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func(c *Config) {
			select {
			case changed <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[permissions]\nsticky_deny = true\n"), 0o600))

	select {
	case cfg := <-changed:
		assert.True(t, cfg.Permissions.StickyDeny)
		assert.True(t, Global().Permissions.StickyDeny)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}

	cancel()
	assert.NoError(t, <-done)
}
