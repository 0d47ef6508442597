// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AddAndList(t *testing.T) {
	conv := NewConversation()
	first := conv.AddMessage(NewUserMessage("hello"))
	conv.AddMessage(NewAssistantMessage("hi there", "gemma2-9b-it"))

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "gemma2-9b-it", msgs[1].Model)
	assert.True(t, strings.HasPrefix(first.ID, "msg_"))

	// Returned slice is a copy.
	msgs[0].Content = "mutated"
	got, ok := conv.GetMessageByID(first.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)
}

func TestConversation_EditMessage(t *testing.T) {
	conv := NewConversation()
	user := conv.AddMessage(NewUserMessage("original"))
	reply := conv.AddMessage(NewAssistantMessage("answer", "m"))

	edited, err := conv.EditMessage(user.ID, "edited text")
	require.NoError(t, err)
	assert.Equal(t, user.ID, edited.ID)
	assert.Equal(t, user.Timestamp, edited.Timestamp)
	assert.Equal(t, "edited text", edited.Content)
	assert.Equal(t, 2, conv.Len(), "edit must not append")

	_, err = conv.EditMessage(reply.ID, "nope")
	assert.ErrorIs(t, err, ErrNotUserMessage)

	_, err = conv.EditMessage("msg_missing", "nope")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestConversation_Clear(t *testing.T) {
	conv := NewConversation()
	conv.AddMessage(NewUserMessage("a"))
	conv.Clear()
	assert.Equal(t, 0, conv.Len())
	_, ok := conv.LastMessage()
	assert.False(t, ok)
}

func TestConversation_Concurrent(t *testing.T) {
	conv := NewConversation()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			conv.AddMessage(NewUserMessage("x"))
		}()
		go func() {
			defer wg.Done()
			_ = conv.Messages()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, conv.Len())
}

// =============================================================================
// TOOL CATALOG TESTS
// =============================================================================

func TestLookupTool(t *testing.T) {
	tests := []struct {
		name        string
		wantName    string
		wantDisplay string
		wantOK      bool
	}{
		{"web_search", ToolWebSearch, "Web Search", true},
		{"exa_search", ToolWebSearch, "Web Search", true},
		{"code_docs", ToolCodeDocs, "Code Documentation", true},
		{"context7_search", ToolCodeDocs, "Code Documentation", true},
		{" github_search ", ToolGitHubSearch, "Repository Search", true},
		{"shell", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, ok := LookupTool(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, desc.Name)
			assert.Equal(t, tt.wantDisplay, desc.DisplayName)
		})
	}
}

func TestToolDescriptor_WithParametersCopies(t *testing.T) {
	desc, _ := LookupTool(ToolWebSearch)
	withParams := desc.WithParameters(map[string]any{"query": "go"})
	assert.Equal(t, "go", withParams.Parameters["query"])

	again, _ := LookupTool(ToolWebSearch)
	assert.Empty(t, again.Parameters, "catalog entry must stay immutable")
}

func TestToolNamesWithAliases(t *testing.T) {
	assert.Equal(t,
		[]string{"code_docs", "github_search", "web_search", "context7_search", "exa_search"},
		ToolNamesWithAliases())
}

// =============================================================================
// MODEL CATALOG TESTS
// =============================================================================

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyUnlimited, FamilyOf("claude-3-5-sonnet"))
	assert.Equal(t, FamilyUnlimited, FamilyOf("my-Claude-variant"))
	assert.Equal(t, FamilyQuota, FamilyOf("llama-3.3-70b-versatile"))
	assert.Equal(t, FamilyQuota, FamilyOf("unknown-model"))
}

func TestQuotaFor(t *testing.T) {
	assert.Equal(t, 0, QuotaFor("claude-3-7-sonnet"))
	assert.Equal(t, 14400, QuotaFor("llama3-70b-8192"))
	assert.Equal(t, 1000, QuotaFor("deepseek-r1-distill-llama-70b"))
	assert.Equal(t, DefaultDailyQuota, QuotaFor("some-new-groq-model"))
}

func TestListModels_UnlimitedFirst(t *testing.T) {
	models := ListModels()
	require.NotEmpty(t, models)
	assert.True(t, models[0].Unlimited())
	assert.True(t, models[1].Unlimited())
	assert.False(t, models[2].Unlimited())
}

func TestResolveModel(t *testing.T) {
	info, ok := ResolveModel("gemma2-9b-it")
	require.True(t, ok)
	assert.Equal(t, "gemma2-9b-it", info.ID)

	info, ok = ResolveModel("gemma")
	require.True(t, ok)
	assert.Equal(t, "gemma2-9b-it", info.ID)

	info, ok = ResolveModel("3.7 sonnet")
	require.True(t, ok)
	assert.Equal(t, "claude-3-7-sonnet", info.ID)

	_, ok = ResolveModel("")
	assert.False(t, ok)
	_, ok = ResolveModel("zzzzqqq")
	assert.False(t, ok)
}

// =============================================================================
// CODE BLOCK TESTS
// =============================================================================

func TestExtractCodeBlock(t *testing.T) {
	reply := "Save as: server.go\n\n```go\npackage main\n\nfunc main() {}\n```\n\n```python\nprint(1)\n```"

	block := ExtractCodeBlock(reply)
	require.NotNil(t, block)
	assert.Equal(t, "go", block.Language)
	assert.Equal(t, "package main\n\nfunc main() {}", block.Code)
	assert.Equal(t, "server.go", block.Filename)
	assert.Equal(t, "Generated go code", block.Description)
}

func TestExtractCodeBlock_Untagged(t *testing.T) {
	block := ExtractCodeBlock("```\nhello\n```")
	require.NotNil(t, block)
	assert.Equal(t, "hello", block.Code)
	assert.NotEmpty(t, block.Language)
	assert.Empty(t, block.Filename)

	empty := ExtractCodeBlock("```\n```")
	require.NotNil(t, empty)
	assert.Equal(t, "text", empty.Language)
}

func TestExtractCodeBlock_None(t *testing.T) {
	assert.Nil(t, ExtractCodeBlock("no code here"))
	assert.Nil(t, ExtractCodeBlock("```go unterminated"))
}
