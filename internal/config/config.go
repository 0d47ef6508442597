// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete application configuration.
type Config struct {
	// DefaultModel is the model used when a request names none.
	DefaultModel string `toml:"default_model"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `toml:"log_level"`

	Server      ServerConfig      `toml:"server"`
	Backends    BackendsConfig    `toml:"backends"`
	Search      SearchConfig      `toml:"search"`
	GitHub      GitHubConfig      `toml:"github"`
	MCP         MCPConfig         `toml:"mcp"`
	Permissions PermissionsConfig `toml:"permissions"`
	Quotas      QuotasConfig      `toml:"quotas"`
	Cache       CacheConfig       `toml:"cache"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8787".
	Addr string `toml:"addr"`
	// CORSOrigins lists origins allowed to call the API. Empty allows localhost only.
	CORSOrigins []string `toml:"cors_origins"`
	// RequestsPerMinute is the per-client request budget (0 disables limiting).
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// BackendsConfig contains model-completion backend settings.
type BackendsConfig struct {
	// AnthropicKey authenticates the unlimited (claude) family.
	AnthropicKey string `toml:"anthropic_key"`
	// AnthropicBaseURL overrides the Anthropic API endpoint.
	AnthropicBaseURL string `toml:"anthropic_base_url"`
	// AnthropicModels maps catalog ids to API model names.
	AnthropicModels map[string]string `toml:"anthropic_models"`

	// GroqKey authenticates the quota-limited family.
	GroqKey string `toml:"groq_key"`
	// GroqBaseURL is the OpenAI-compatible Groq endpoint.
	GroqBaseURL string  `toml:"groq_base_url"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	TopP        float64 `toml:"top_p"`

	// TimeoutSecs bounds one completion call.
	TimeoutSecs int `toml:"timeout_secs"`
}

// SearchConfig contains direct search backend settings.
type SearchConfig struct {
	HTMLURL    string `toml:"html_url"`
	InstantURL string `toml:"instant_url"`
	UserAgent  string `toml:"user_agent"`
	// TimeoutSecs bounds each individual fetch.
	TimeoutSecs int `toml:"timeout_secs"`
	// MinHTMLLength is the minimum scrape length accepted as meaningful.
	MinHTMLLength int `toml:"min_html_length"`
	// MinInstantLength is the minimum instant-answer length accepted.
	MinInstantLength int `toml:"min_instant_length"`
	// RequestsPerSecond paces outbound search requests (0 disables pacing).
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// GitHubConfig contains repository search settings.
type GitHubConfig struct {
	APIURL      string `toml:"api_url"`
	Token       string `toml:"token"`
	PerPage     int    `toml:"per_page"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// MCPConfig contains protocol-call backend settings.
type MCPConfig struct {
	// BaseURL is the hosted server registry, e.g. https://server.smithery.ai.
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Profile string `toml:"profile"`
	// URLTimeoutSecs bounds one URL-strategy attempt.
	URLTimeoutSecs int `toml:"url_timeout_secs"`

	// Command and Args launch the subprocess strategy; "{server}" and "{key}" are substituted.
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	// SubprocessTimeoutSecs is the fixed upper bound for one subprocess attempt.
	SubprocessTimeoutSecs int `toml:"subprocess_timeout_secs"`
	// ReadyPhrases are matched case-insensitively against the process diagnostics.
	ReadyPhrases []string `toml:"ready_phrases"`
	// ReadyDelayMillis is the pause between the ready signal and the request write.
	ReadyDelayMillis int `toml:"ready_delay_millis"`
	// InitDelayMillis is the pause after a session-initialization request.
	InitDelayMillis int `toml:"init_delay_millis"`
}

// PermissionsConfig contains permission gate policy.
type PermissionsConfig struct {
	// StickyDeny suppresses re-prompting for a tool the user denied.
	StickyDeny bool `toml:"sticky_deny"`
}

// QuotasConfig contains rate-limit record settings.
type QuotasConfig struct {
	// DBPath is the sqlite file holding rate-limit records. Empty keeps records in memory.
	DBPath string `toml:"db_path"`
	// Overrides replaces the catalog daily quota per model id.
	Overrides map[string]int `toml:"overrides"`
}

// CacheConfig contains tool results cache settings.
type CacheConfig struct {
	// ResultTTLMinutes is how long tool results stay inspectable.
	ResultTTLMinutes int `toml:"result_ttl_minutes"`
}

// =============================================================================
// DURATION HELPERS
// =============================================================================

// Timeout returns the completion timeout.
func (b BackendsConfig) Timeout() time.Duration { return time.Duration(b.TimeoutSecs) * time.Second }

// Timeout returns the per-fetch search timeout.
func (s SearchConfig) Timeout() time.Duration { return time.Duration(s.TimeoutSecs) * time.Second }

// Timeout returns the GitHub request timeout.
func (g GitHubConfig) Timeout() time.Duration { return time.Duration(g.TimeoutSecs) * time.Second }

// URLTimeout returns the URL strategy bound.
func (m MCPConfig) URLTimeout() time.Duration { return time.Duration(m.URLTimeoutSecs) * time.Second }

// SubprocessTimeout returns the subprocess strategy bound.
func (m MCPConfig) SubprocessTimeout() time.Duration {
	return time.Duration(m.SubprocessTimeoutSecs) * time.Second
}

// ReadyDelay returns the pause after the ready signal.
func (m MCPConfig) ReadyDelay() time.Duration {
	return time.Duration(m.ReadyDelayMillis) * time.Millisecond
}

// InitDelay returns the pause after session initialization.
func (m MCPConfig) InitDelay() time.Duration {
	return time.Duration(m.InitDelayMillis) * time.Millisecond
}

// ResultTTL returns the tool results cache TTL.
func (c CacheConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLMinutes) * time.Minute
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultReadyPhrases are the diagnostics that mean a CLI-launched server is accepting requests.
var DefaultReadyPhrases = []string{
	"connection established",
	"Connected to",
	"Server connected",
	"Ready to receive requests",
	"DuckDuckGo Search Server",
	"Streamable HTTP connection established",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultModel: "llama-3.3-70b-versatile",
		LogLevel:     "info",

		Server: ServerConfig{
			Addr:              "127.0.0.1:8787",
			RequestsPerMinute: 120,
		},

		Backends: BackendsConfig{
			AnthropicModels: map[string]string{
				"claude-3-5-sonnet": "claude-3-5-sonnet-latest",
				"claude-3-7-sonnet": "claude-3-7-sonnet-latest",
			},
			GroqBaseURL: "https://api.groq.com/openai/v1",
			Temperature: 0.1,
			MaxTokens:   4000,
			TopP:        0.9,
			TimeoutSecs: 60,
		},

		Search: SearchConfig{
			HTMLURL:           "https://html.duckduckgo.com/html/",
			InstantURL:        "https://api.duckduckgo.com/",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			TimeoutSecs:       15,
			MinHTMLLength:     100,
			MinInstantLength:  50,
			RequestsPerSecond: 2,
		},

		GitHub: GitHubConfig{
			APIURL:      "https://api.github.com",
			PerPage:     5,
			TimeoutSecs: 15,
		},

		MCP: MCPConfig{
			BaseURL:               "https://server.smithery.ai",
			URLTimeoutSecs:        20,
			Command:               "npx",
			Args:                  []string{"-y", "@smithery/cli@latest", "run", "{server}", "--key", "{key}"},
			SubprocessTimeoutSecs: 30,
			ReadyPhrases:          append([]string(nil), DefaultReadyPhrases...),
			ReadyDelayMillis:      500,
			InitDelayMillis:       2000,
		},

		Quotas: QuotasConfig{
			Overrides: map[string]int{},
		},

		Cache: CacheConfig{
			ResultTTLMinutes: 60,
		},
	}
}

// SetDefaults fills zero values with built-in defaults. Explicit values are kept.
func (c *Config) SetDefaults() {
	d := Default()

	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}

	if c.Backends.AnthropicModels == nil {
		c.Backends.AnthropicModels = d.Backends.AnthropicModels
	}
	if c.Backends.GroqBaseURL == "" {
		c.Backends.GroqBaseURL = d.Backends.GroqBaseURL
	}
	if c.Backends.MaxTokens == 0 {
		c.Backends.MaxTokens = d.Backends.MaxTokens
	}
	if c.Backends.TopP == 0 {
		c.Backends.TopP = d.Backends.TopP
	}
	if c.Backends.TimeoutSecs == 0 {
		c.Backends.TimeoutSecs = d.Backends.TimeoutSecs
	}

	if c.Search.HTMLURL == "" {
		c.Search.HTMLURL = d.Search.HTMLURL
	}
	if c.Search.InstantURL == "" {
		c.Search.InstantURL = d.Search.InstantURL
	}
	if c.Search.UserAgent == "" {
		c.Search.UserAgent = d.Search.UserAgent
	}
	if c.Search.TimeoutSecs == 0 {
		c.Search.TimeoutSecs = d.Search.TimeoutSecs
	}
	if c.Search.MinHTMLLength == 0 {
		c.Search.MinHTMLLength = d.Search.MinHTMLLength
	}
	if c.Search.MinInstantLength == 0 {
		c.Search.MinInstantLength = d.Search.MinInstantLength
	}

	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = d.GitHub.APIURL
	}
	if c.GitHub.PerPage == 0 {
		c.GitHub.PerPage = d.GitHub.PerPage
	}
	if c.GitHub.TimeoutSecs == 0 {
		c.GitHub.TimeoutSecs = d.GitHub.TimeoutSecs
	}

	if c.MCP.BaseURL == "" {
		c.MCP.BaseURL = d.MCP.BaseURL
	}
	if c.MCP.URLTimeoutSecs == 0 {
		c.MCP.URLTimeoutSecs = d.MCP.URLTimeoutSecs
	}
	if c.MCP.Command == "" {
		c.MCP.Command = d.MCP.Command
		c.MCP.Args = d.MCP.Args
	}
	if c.MCP.SubprocessTimeoutSecs == 0 {
		c.MCP.SubprocessTimeoutSecs = d.MCP.SubprocessTimeoutSecs
	}
	if len(c.MCP.ReadyPhrases) == 0 {
		c.MCP.ReadyPhrases = d.MCP.ReadyPhrases
	}
	if c.MCP.ReadyDelayMillis == 0 {
		c.MCP.ReadyDelayMillis = d.MCP.ReadyDelayMillis
	}

	if c.Quotas.Overrides == nil {
		c.Quotas.Overrides = map[string]int{}
	}
	if c.Cache.ResultTTLMinutes == 0 {
		c.Cache.ResultTTLMinutes = d.Cache.ResultTTLMinutes
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the configuration directory (~/.200model8).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".200model8"), nil
}

// ConfigPath returns the default TOML config path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads the default config file if present, otherwise the built-in
// defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveTOML writes the configuration to path atomically with 0600 permissions.
// SECURITY: the file holds API keys.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# 200Model8 configuration file\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.Backends.GroqKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Backends.AnthropicKey = key
	}
	if key := os.Getenv("SMITHERY_API_KEY"); key != "" {
		c.MCP.APIKey = key
	}
	if profile := os.Getenv("SMITHERY_PROFILE"); profile != "" {
		c.MCP.Profile = profile
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.GitHub.Token = token
	}
	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("CHAT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if sticky := os.Getenv("CHAT_STICKY_DENY"); sticky != "" {
		if v, err := strconv.ParseBool(sticky); err == nil {
			c.Permissions.StickyDeny = v
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.LogLevel != "" && !validLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, ValidationError{"log_level", fmt.Sprintf("invalid level '%s'", c.LogLevel)})
	}

	for field, raw := range map[string]string{
		"backends.groq_base_url": c.Backends.GroqBaseURL,
		"search.html_url":        c.Search.HTMLURL,
		"search.instant_url":     c.Search.InstantURL,
		"github.api_url":         c.GitHub.APIURL,
		"mcp.base_url":           c.MCP.BaseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{field, fmt.Sprintf("invalid URL '%s'", raw)})
		}
	}

	if c.Backends.Temperature < 0 || c.Backends.Temperature > 2 {
		errs = append(errs, ValidationError{"backends.temperature", "must be between 0 and 2"})
	}
	if c.Backends.TopP < 0 || c.Backends.TopP > 1 {
		errs = append(errs, ValidationError{"backends.top_p", "must be between 0 and 1"})
	}
	if c.Backends.MaxTokens < 0 {
		errs = append(errs, ValidationError{"backends.max_tokens", "must not be negative"})
	}
	if c.GitHub.PerPage < 0 || c.GitHub.PerPage > 100 {
		errs = append(errs, ValidationError{"github.per_page", "must be between 1 and 100"})
	}
	if c.MCP.SubprocessTimeoutSecs < 0 || c.MCP.URLTimeoutSecs < 0 || c.Search.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{"timeouts", "must not be negative"})
	}
	for model, limit := range c.Quotas.Overrides {
		if limit <= 0 {
			errs = append(errs, ValidationError{"quotas.overrides." + model, "must be positive"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GLOBAL CONFIG
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first access.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ReloadGlobal reloads the process-wide configuration from path.
func ReloadGlobal(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("no config path to reload")
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	SetGlobal(cfg)
	return cfg, nil
}

// ResetGlobalForTesting clears the process-wide configuration.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
