// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Jeff9497/200Model8Dev/internal/config"
)

const (
	anthropicProvider = "Claude"

	// fallbackClaudeModel is used when a model id has no configured mapping.
	fallbackClaudeModel = "claude-3-5-sonnet"
)

// AnthropicBackend completes prompts for the unlimited family.
type AnthropicBackend struct {
	client     anthropic.Client
	configured bool
	models     map[string]string
	maxTokens  int64
	timeout    time.Duration
}

// NewAnthropicBackend creates a backend from configuration. Extra options are
// appended after the configured base URL and key.
func NewAnthropicBackend(cfg config.BackendsConfig, opts ...option.RequestOption) *AnthropicBackend {
	var base []option.RequestOption
	if cfg.AnthropicBaseURL != "" {
		base = append(base, option.WithBaseURL(strings.TrimRight(cfg.AnthropicBaseURL, "/")+"/"))
	}
	base = append(base, option.WithAPIKey(cfg.AnthropicKey))

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicBackend{
		client:     anthropic.NewClient(append(base, opts...)...),
		configured: cfg.AnthropicKey != "",
		models:     cfg.AnthropicModels,
		maxTokens:  maxTokens,
		timeout:    cfg.Timeout(),
	}
}

// APIModel maps a catalog id to the provider's model name. Unmapped ids
// fall back to the default Claude model's mapping.
func (a *AnthropicBackend) APIModel(modelID string) string {
	if name, ok := a.models[modelID]; ok && name != "" {
		return name
	}
	if name, ok := a.models[fallbackClaudeModel]; ok && name != "" {
		return name
	}
	return modelID
}

// Complete implements Completer. The prompt is sent as a single user turn.
func (a *AnthropicBackend) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	if !a.configured {
		return "", notConfigured(anthropicProvider)
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	apiModel := a.APIModel(modelID)
	start := time.Now()
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(apiModel),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			slog.Warn("anthropic completion rejected", "model", apiModel, "status", apiErr.StatusCode)
			return "", classifyStatus(anthropicProvider, apiErr.StatusCode, err)
		}
		return "", wrapCallError(anthropicProvider, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrNoResponse
	}
	slog.Debug("anthropic completion", "model", apiModel, "duration", time.Since(start),
		"output_tokens", resp.Usage.OutputTokens)
	return text, nil
}
