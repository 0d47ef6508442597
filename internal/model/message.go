// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user message with a fresh ID.
func NewUserMessage(content string) Message {
	return Message{
		ID:        newMessageID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message attributed to modelID.
func NewAssistantMessage(content, modelID string) Message {
	return Message{
		ID:        newMessageID(),
		Role:      RoleAssistant,
		Content:   content,
		Model:     modelID,
		Timestamp: time.Now(),
	}
}

// Preview returns the first maxLen characters of the content.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen]) + "..."
}

func newMessageID() string {
	return "msg_" + uuid.NewString()
}
