// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/permission"
	"github.com/Jeff9497/200Model8Dev/internal/tools"
)

const quotaModel = "llama-3.3-70b-versatile"

// =============================================================================
// FAKES
// =============================================================================

type completion struct {
	prompt  string
	modelID string
}

// scriptedCompleter returns replies in order and records every call.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   []completion
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.calls)
	s.calls = append(s.calls, completion{prompt: prompt, modelID: modelID})
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("unexpected completion call")
}

func (s *scriptedCompleter) Calls() []completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]completion(nil), s.calls...)
}

type fakeServer struct {
	requests []tools.ServerRequest
	err      error
}

func (f *fakeServer) CallServer(ctx context.Context, req tools.ServerRequest) (*model.Envelope, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Envelope{
		Query:   req.Parameters["query"].(string),
		Result:  model.NewTextResult("1. **Kenya trends**"),
		Source:  "duckduckgo-html",
		Success: true,
		Method:  tools.MethodDirectSearch,
	}, nil
}

// newToolStack builds a real gate and executor over a fake server. decide
// answers each approval request.
func newToolStack(decide func(g *permission.Gate)) (*permission.Gate, *tools.Executor, *fakeServer) {
	server := &fakeServer{}
	gate := permission.NewGate()
	gate.WithNotifier(func(permission.PendingApproval) { decide(gate) })
	exec := tools.NewExecutor(gate, tools.NewTransport(server, nil), time.Minute)
	return gate, exec, server
}

func lastMessage(t *testing.T, o *Orchestrator) model.Message {
	t.Helper()
	msgs := o.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

// =============================================================================
// TURNS
// =============================================================================

func TestSendMessage_ToolApproved(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{
		"TOOL_REQUEST: web_search | trending topics Kenya",
		"## Trending in Kenya\n- Kenya trends",
	}}
	gate, exec, server := newToolStack(func(g *permission.Gate) { require.NoError(t, g.Approve()) })
	o := NewOrchestrator(completer).WithToolExecutor(exec)

	var states []TurnState
	o.OnUpdate(func() { states = append(states, o.State()) })

	require.NoError(t, o.SendMessage(context.Background(), "What's trending in Kenya?", quotaModel))

	calls := completer.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, BuildSystemPrompt("What's trending in Kenya?"), calls[0].prompt)
	assert.Equal(t, quotaModel, calls[0].modelID)
	assert.Equal(t, quotaModel, calls[1].modelID)
	assert.True(t, strings.HasPrefix(calls[1].prompt, "What's trending in Kenya?\n\nSEARCH RESULTS FOUND:\n{"))
	assert.Contains(t, calls[1].prompt, `"success": true`)
	assert.Contains(t, calls[1].prompt, `"query": "trending topics Kenya"`)
	assert.True(t, strings.HasSuffix(calls[1].prompt, "Please provide your answer now using the search results above:"))

	require.Len(t, server.requests, 1)
	assert.Equal(t, "duckduckgo", server.requests[0].ServerConfig.Name)

	msgs := o.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "## Trending in Kenya\n- Kenya trends", msgs[1].Content)
	assert.Equal(t, quotaModel, msgs[1].Model)

	assert.Equal(t, permission.StateAllowedOnce, gate.StateOf("web_search"))
	assert.Len(t, exec.Results(), 1)

	assert.Contains(t, states, StateAwaitingFirstReply)
	assert.Contains(t, states, StateAwaitingPermission)
	assert.Contains(t, states, StateAwaitingToolResult)
	assert.Contains(t, states, StateAwaitingSecondReply)
	assert.Equal(t, StateIdle, o.State())
	assert.False(t, o.Busy())

	ev, ok := o.LastToolEvent()
	require.True(t, ok)
	assert.True(t, ev.Success)
	assert.Equal(t, "duckduckgo-html", ev.Source)
}

func TestSendMessage_ToolDenied(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{
		"TOOL_REQUEST: web_search | trending topics Kenya\nI can tell you about Kenya in general.",
	}}
	_, exec, server := newToolStack(func(g *permission.Gate) { require.NoError(t, g.Deny()) })
	o := NewOrchestrator(completer).WithToolExecutor(exec)

	require.NoError(t, o.SendMessage(context.Background(), "What's trending in Kenya?", quotaModel))

	assert.Len(t, completer.Calls(), 1)
	assert.Empty(t, server.requests)

	final := lastMessage(t, o)
	assert.Equal(t, "I can tell you about Kenya in general.", final.Content)
	assert.Equal(t, quotaModel, final.Model)

	ev, ok := o.LastToolEvent()
	require.True(t, ok)
	assert.False(t, ev.Success)
	assert.Equal(t, "permission denied for tool: web_search", ev.Error)
}

func TestSendMessage_FullWidthDirectiveDeniedIsStripped(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{
		"Let me look.\nｗｅｂ_ｓｅａｒｃｈ | trending Kenya\nKenya has a lively tech scene.",
	}}
	_, exec, server := newToolStack(func(g *permission.Gate) { require.NoError(t, g.Deny()) })
	o := NewOrchestrator(completer).WithToolExecutor(exec)

	require.NoError(t, o.SendMessage(context.Background(), "What's trending in Kenya?", quotaModel))

	assert.Empty(t, server.requests)
	assert.Equal(t, "Let me look.\nKenya has a lively tech scene.", lastMessage(t, o).Content)

	ev, ok := o.LastToolEvent()
	require.True(t, ok)
	assert.Equal(t, "web_search", ev.Tool)
	assert.Equal(t, "trending Kenya", ev.Query)
}

func TestSendMessage_TransportFailureDegrades(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"code_docs | Next.js\nNext.js is a React framework."}}
	_, exec, server := newToolStack(func(g *permission.Gate) { require.NoError(t, g.AlwaysAllow()) })
	server.err = errs.ErrTransportFailure
	o := NewOrchestrator(completer).WithToolExecutor(exec)

	require.NoError(t, o.SendMessage(context.Background(), "Get Next.js docs", "claude-3-5-sonnet"))

	assert.Len(t, completer.Calls(), 1)
	assert.Equal(t, "Next.js is a React framework.", lastMessage(t, o).Content)
}

func TestSendMessage_SecondCompletionFailureDegrades(t *testing.T) {
	completer := &scriptedCompleter{
		replies: []string{"TOOL_REQUEST: web_search | go news\nGo is great."},
		errs:    []error{nil, errors.New("upstream timeout")},
	}
	_, exec, _ := newToolStack(func(g *permission.Gate) { require.NoError(t, g.Approve()) })
	o := NewOrchestrator(completer).WithToolExecutor(exec)

	require.NoError(t, o.SendMessage(context.Background(), "go news", quotaModel))
	assert.Len(t, completer.Calls(), 2)
	assert.Equal(t, "Go is great.", lastMessage(t, o).Content)
}

func TestSendMessage_NoDirectiveKeepsReply(t *testing.T) {
	reply := "  Plain answer with | a pipe.\n"
	completer := &scriptedCompleter{replies: []string{reply}}
	_, exec, _ := newToolStack(func(g *permission.Gate) { t.Fatal("no approval expected") })
	o := NewOrchestrator(completer).WithToolExecutor(exec)

	require.NoError(t, o.SendMessage(context.Background(), "hello", quotaModel))
	assert.Equal(t, reply, lastMessage(t, o).Content)
	_, ok := o.LastToolEvent()
	assert.False(t, ok)
}

func TestSendMessage_NoExecutorStripsDirective(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"TOOL_REQUEST: github_search | TypeScript\nSome repos I know."}}
	o := NewOrchestrator(completer)

	require.NoError(t, o.SendMessage(context.Background(), "Search for TypeScript repositories", quotaModel))
	assert.Len(t, completer.Calls(), 1)
	assert.Equal(t, "Some repos I know.", lastMessage(t, o).Content)
}

func TestSendMessage_BackendError(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("Groq API key is not configured")}}
	o := NewOrchestrator(completer)

	require.NoError(t, o.SendMessage(context.Background(), "hi", quotaModel))

	final := lastMessage(t, o)
	assert.Equal(t, model.RoleAssistant, final.Role)
	assert.Equal(t, "Sorry, I encountered an error: Groq API key is not configured. Please try again.", final.Content)
	assert.Equal(t, quotaModel, final.Model)
}

func TestSendMessage_Validation(t *testing.T) {
	o := NewOrchestrator(&scriptedCompleter{})

	assert.ErrorIs(t, o.SendMessage(context.Background(), "   ", quotaModel), errs.ErrInvalidRequest)
	assert.ErrorIs(t, o.SendMessage(context.Background(), "hi", ""), errs.ErrInvalidRequest)
	assert.Empty(t, o.Messages())
}

type blockingCompleter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingCompleter) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	close(b.started)
	<-b.release
	return "done", nil
}

func TestSendMessage_OneTurnAtATime(t *testing.T) {
	bc := &blockingCompleter{started: make(chan struct{}), release: make(chan struct{})}
	o := NewOrchestrator(bc)

	done := make(chan error, 1)
	go func() { done <- o.SendMessage(context.Background(), "first", quotaModel) }()
	<-bc.started

	assert.True(t, o.Busy())
	assert.Equal(t, StateAwaitingFirstReply, o.State())
	assert.ErrorIs(t, o.SendMessage(context.Background(), "second", quotaModel), ErrTurnInProgress)

	close(bc.release)
	require.NoError(t, <-done)
	assert.Len(t, o.Messages(), 2)
}

func TestNewChat_DiscardsInFlightReply(t *testing.T) {
	bc := &blockingCompleter{started: make(chan struct{}), release: make(chan struct{})}
	o := NewOrchestrator(bc)

	done := make(chan error, 1)
	go func() { done <- o.SendMessage(context.Background(), "first", quotaModel) }()
	<-bc.started

	o.NewChat()
	close(bc.release)
	require.NoError(t, <-done)
	assert.Empty(t, o.Messages())
}

type fixedCompleter string

func (f fixedCompleter) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	return string(f), nil
}

func TestNewChat_RacingSendKeepsPairs(t *testing.T) {
	for i := 0; i < 200; i++ {
		o := NewOrchestrator(fixedCompleter("Hello."))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.SendMessage(context.Background(), "hi", quotaModel))
		}()
		go func() {
			defer wg.Done()
			o.NewChat()
		}()
		wg.Wait()

		// Either the reset came first and the turn survives whole, or it
		// came during the turn and took both messages with it.
		msgs := o.Messages()
		switch len(msgs) {
		case 0:
		case 2:
			assert.Equal(t, model.RoleUser, msgs[0].Role, "iteration %d", i)
			assert.Equal(t, model.RoleAssistant, msgs[1].Role, "iteration %d", i)
		default:
			t.Fatalf("iteration %d: orphaned message in %+v", i, msgs)
		}
	}
}

// =============================================================================
// EDIT, RESEND, CODE PREVIEW
// =============================================================================

func TestEditAndResend(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"first answer", "second answer"}}
	o := NewOrchestrator(completer)

	require.NoError(t, o.SendMessage(context.Background(), "Fix my loop", quotaModel))
	original := o.Messages()[0]

	edited, err := o.EditMessage(original.ID, "Fix my for loop in Go")
	require.NoError(t, err)
	assert.Equal(t, original.ID, edited.ID)
	assert.Equal(t, original.Timestamp, edited.Timestamp)
	assert.Len(t, completer.Calls(), 1, "editing must not resend")

	require.NoError(t, o.Resend(context.Background(), original.ID, "claude-3-7-sonnet"))

	msgs := o.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Fix my for loop in Go", msgs[0].Content)
	assert.Equal(t, "Fix my for loop in Go", msgs[2].Content)
	assert.NotEqual(t, msgs[0].ID, msgs[2].ID)
	assert.Equal(t, "second answer", msgs[3].Content)
	assert.Equal(t, "claude-3-7-sonnet", msgs[3].Model)
	assert.Equal(t, BuildSystemPrompt("Fix my for loop in Go"), completer.Calls()[1].prompt)
}

func TestEditAndResend_Errors(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"answer"}}
	o := NewOrchestrator(completer)
	require.NoError(t, o.SendMessage(context.Background(), "q", quotaModel))
	assistant := o.Messages()[1]

	_, err := o.EditMessage(assistant.ID, "x")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
	_, err = o.EditMessage("missing", "x")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	assert.ErrorIs(t, o.Resend(context.Background(), assistant.ID, quotaModel), errs.ErrInvalidRequest)
	assert.ErrorIs(t, o.Resend(context.Background(), "missing", quotaModel), errs.ErrInvalidRequest)
}

func TestCodeBlockPreview(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{
		"Save as: main.go\n```go\npackage main\n```",
		"No code here.",
	}}
	o := NewOrchestrator(completer)
	assert.Nil(t, o.CodeBlock())

	require.NoError(t, o.SendMessage(context.Background(), "write main", quotaModel))
	cb := o.CodeBlock()
	require.NotNil(t, cb)
	assert.Equal(t, "go", cb.Language)
	assert.Equal(t, "package main", cb.Code)
	assert.Equal(t, "main.go", cb.Filename)

	// A reply without code keeps the last preview.
	require.NoError(t, o.SendMessage(context.Background(), "thanks", quotaModel))
	require.NotNil(t, o.CodeBlock())

	o.NewChat()
	assert.Nil(t, o.CodeBlock())
	assert.Empty(t, o.Messages())
}

// =============================================================================
// PROMPTS
// =============================================================================

func TestBuildSystemPrompt(t *testing.T) {
	p := BuildSystemPrompt("What are trending topics in Kenya?")
	assert.True(t, strings.HasPrefix(p, "You are an advanced AI assistant with access to external tools for enhanced capabilities.\n\nAVAILABLE TOOLS:\n1. web_search"))
	assert.Contains(t, p, "TOOL_REQUEST: [tool_name] | [search_query]")
	assert.Contains(t, p, `- "Get Next.js documentation" → "TOOL_REQUEST: code_docs | Next.js"`)
	assert.Contains(t, p, "\n\nUser request: What are trending topics in Kenya?\n\n")
	assert.True(t, strings.HasSuffix(p, "start your response with the TOOL_REQUEST format above."))
}

func TestBuildToolResultPrompt(t *testing.T) {
	env := &model.Envelope{Query: "go", Result: model.NewTextResult("x"), Source: "s", Success: true, Method: "m"}
	p, err := BuildToolResultPrompt("tell me about go", env)
	require.NoError(t, err)

	indented, err := env.Indented()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "tell me about go\n\nSEARCH RESULTS FOUND:\n"+indented+"\n\nINSTRUCTIONS:\n- Use the search results above"))
	assert.Equal(t, 6, strings.Count(p, "\n- "))

	_, err = BuildToolResultPrompt("x", nil)
	assert.Error(t, err)
}

func TestErrorReply(t *testing.T) {
	assert.Equal(t, "Sorry, I encountered an error: boom. Please try again.", ErrorReply(errors.New("boom")))
	assert.Equal(t, "Sorry, I encountered an error: Unknown error. Please try again.", ErrorReply(nil))
}

func TestTurnState_String(t *testing.T) {
	assert.Equal(t, "AwaitingPermission", StateAwaitingPermission.String())
	b, err := StateAwaitingSecondReply.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "AwaitingSecondReply", string(b))
}
