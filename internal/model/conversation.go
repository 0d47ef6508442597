// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrMessageNotFound is returned when a message ID is not in the history.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotUserMessage is returned when editing a message the user did not write.
	ErrNotUserMessage = errors.New("only user messages can be edited")
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered message history of one chat.
// It is append-only except for in-place edits of user messages, which keep
// the message identity and timestamp. Safe for concurrent use.
type Conversation struct {
	mu        sync.RWMutex
	messages  []Message
	createdAt time.Time
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		messages:  make([]Message, 0),
		createdAt: time.Now(),
	}
}

// AddMessage appends msg and returns it.
func (c *Conversation) AddMessage(msg Message) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return msg
}

// Messages returns a copy of the history in order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// GetMessageByID returns the message with the given ID.
func (c *Conversation) GetMessageByID(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, msg := range c.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return Message{}, false
}

// LastMessage returns the most recent message.
func (c *Conversation) LastMessage() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// EditMessage replaces the content of a user message in place.
func (c *Conversation) EditMessage(id, content string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID != id {
			continue
		}
		if c.messages[i].Role != RoleUser {
			return Message{}, ErrNotUserMessage
		}
		c.messages[i].Content = content
		return c.messages[i], nil
	}
	return Message{}, ErrMessageNotFound
}

// Clear removes every message.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]Message, 0)
	c.createdAt = time.Now()
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// CreatedAt returns when the conversation was started or last cleared.
func (c *Conversation) CreatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.createdAt
}
