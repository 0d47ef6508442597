// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Jeff9497/200Model8Dev/internal/config"
)

const groqProvider = "Groq"

// GroqBackend completes prompts for the quota-limited family through the
// OpenAI-compatible chat completions endpoint.
type GroqBackend struct {
	client      openai.Client
	configured  bool
	temperature float64
	maxTokens   int64
	topP        float64
	timeout     time.Duration
}

// NewGroqBackend creates a backend from configuration. Extra options are
// appended after the configured base URL and key.
func NewGroqBackend(cfg config.BackendsConfig, opts ...option.RequestOption) *GroqBackend {
	base := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.GroqBaseURL, "/") + "/"),
		option.WithAPIKey(cfg.GroqKey),
	}
	return &GroqBackend{
		client:      openai.NewClient(append(base, opts...)...),
		configured:  cfg.GroqKey != "",
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
		topP:        cfg.TopP,
		timeout:     cfg.Timeout(),
	}
}

// Complete implements Completer.
func (g *GroqBackend) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	if !g.configured {
		return "", notConfigured(groqProvider)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(CodingSystemPrompt),
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(modelID),
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(g.maxTokens)
	}
	if g.topP > 0 {
		params.TopP = openai.Float(g.topP)
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			slog.Warn("groq completion rejected", "model", modelID, "status", apiErr.StatusCode)
			return "", classifyStatus(groqProvider, apiErr.StatusCode, err)
		}
		return "", wrapCallError(groqProvider, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrNoResponse
	}
	slog.Debug("groq completion", "model", modelID, "duration", time.Since(start),
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}
