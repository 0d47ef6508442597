// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"time"
)

// Envelope is the uniform result of a tool invocation, whichever transport
// produced it. Prompt construction only ever sees this shape.
type Envelope struct {
	Query     string    `json:"query"`
	Result    any       `json:"result"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Method    string    `json:"method"`

	// Set by protocol-call transports only.
	Endpoint string          `json:"endpoint,omitempty"`
	ToolUsed string          `json:"toolUsed,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// TextContent is one text block of a tool result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextResult is the result body of transports that produce plain text.
type TextResult struct {
	Content []TextContent `json:"content"`
}

// NewTextResult wraps text as a single-block result.
func NewTextResult(text string) TextResult {
	return TextResult{Content: []TextContent{{Type: "text", Text: text}}}
}

// Indented renders the envelope as two-space indented JSON for prompts.
func (e *Envelope) Indented() (string, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
