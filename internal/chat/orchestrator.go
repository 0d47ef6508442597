// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Jeff9497/200Model8Dev/internal/backend"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/protocol"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// ErrTurnInProgress is returned when a message is sent while a turn is running.
var ErrTurnInProgress = errors.New("a turn is already in progress")

// =============================================================================
// TURN STATE
// =============================================================================

// TurnState is the point a turn is waiting at.
type TurnState int

const (
	StateIdle TurnState = iota
	StateAwaitingFirstReply
	StateAwaitingPermission
	StateAwaitingToolResult
	StateAwaitingSecondReply
)

// String returns the string representation of a turn state.
func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingFirstReply:
		return "AwaitingFirstReply"
	case StateAwaitingPermission:
		return "AwaitingPermission"
	case StateAwaitingToolResult:
		return "AwaitingToolResult"
	case StateAwaitingSecondReply:
		return "AwaitingSecondReply"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the state by name.
func (s TurnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// =============================================================================
// TOOL EXECUTION
// =============================================================================

// ToolExecutor runs one tool call, including any permission check.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, params map[string]any) (*model.Envelope, error)
}

// StagedExecutor is a ToolExecutor that exposes its permission step
// separately, letting the orchestrator report AwaitingPermission and
// AwaitingToolResult as distinct states.
type StagedExecutor interface {
	ToolExecutor
	Authorize(ctx context.Context, name string, params map[string]any) error
	Call(ctx context.Context, name string, params map[string]any) (*model.Envelope, error)
}

// ToolEvent records the outcome of the most recent tool attempt.
type ToolEvent struct {
	Tool     string    `json:"tool"`
	Query    string    `json:"query"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Source   string    `json:"source,omitempty"`
	Method   string    `json:"method,omitempty"`
	Finished time.Time `json:"finished"`
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns one conversation and runs its turns one at a time.
type Orchestrator struct {
	completer backend.Completer

	mu         sync.Mutex
	executor   ToolExecutor
	conv       *model.Conversation
	code       *model.CodeBlock
	state      TurnState
	busy       bool
	generation uint64
	lastTool   *ToolEvent
	listeners  []func()
}

// NewOrchestrator creates an orchestrator over completer.
func NewOrchestrator(completer backend.Completer) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		conv:      model.NewConversation(),
	}
}

// WithToolExecutor registers the tool executor.
func (o *Orchestrator) WithToolExecutor(exec ToolExecutor) *Orchestrator {
	o.SetToolExecutor(exec)
	return o
}

// SetToolExecutor replaces the tool executor. nil disables tool use.
func (o *Orchestrator) SetToolExecutor(exec ToolExecutor) {
	o.mu.Lock()
	o.executor = exec
	o.mu.Unlock()
	slog.Debug("tool executor registered", "enabled", exec != nil)
}

// OnUpdate registers fn to run after every message or state change.
// Listeners run on the turn's goroutine and must not block.
func (o *Orchestrator) OnUpdate(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Messages returns the history in order.
func (o *Orchestrator) Messages() []model.Message {
	return o.conv.Messages()
}

// CodeBlock returns the code preview from the latest reply that had one.
func (o *Orchestrator) CodeBlock() *model.CodeBlock {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.code == nil {
		return nil
	}
	cb := *o.code
	return &cb
}

// State returns the current turn state.
func (o *Orchestrator) State() TurnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Busy reports whether a turn is running.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// LastToolEvent returns the outcome of the most recent tool attempt, if any.
func (o *Orchestrator) LastToolEvent() (ToolEvent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastTool == nil {
		return ToolEvent{}, false
	}
	return *o.lastTool, true
}

// NewChat clears the history and the code preview. A turn still running
// finishes without adding its reply.
func (o *Orchestrator) NewChat() {
	o.mu.Lock()
	o.generation++
	o.code = nil
	o.lastTool = nil
	o.conv.Clear()
	o.mu.Unlock()
	o.notify()
}

// EditMessage replaces a user message's content in place. It does not resend.
func (o *Orchestrator) EditMessage(id, content string) (model.Message, error) {
	msg, err := o.conv.EditMessage(id, content)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %w", errs.ErrInvalidRequest, err)
	}
	o.notify()
	return msg, nil
}

// Resend starts a new turn with the current content of user message id.
func (o *Orchestrator) Resend(ctx context.Context, id, modelID string) error {
	msg, ok := o.conv.GetMessageByID(id)
	if !ok {
		return fmt.Errorf("%w: %w: %s", errs.ErrInvalidRequest, model.ErrMessageNotFound, id)
	}
	if msg.Role != model.RoleUser {
		return fmt.Errorf("%w: %w", errs.ErrInvalidRequest, model.ErrNotUserMessage)
	}
	return o.SendMessage(ctx, msg.Content, modelID)
}

// SendMessage runs one turn to completion. It fails only when the turn
// cannot start; completion and tool failures end up in the history.
func (o *Orchestrator) SendMessage(ctx context.Context, content, modelID string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content is empty", errs.ErrInvalidRequest)
	}
	if strings.TrimSpace(modelID) == "" {
		return fmt.Errorf("%w: model is required", errs.ErrInvalidRequest)
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrTurnInProgress
	}
	o.busy = true
	// The user message joins the chat whose generation the reply is checked
	// against, so a NewChat cannot split them.
	gen := o.generation
	executor := o.executor
	o.conv.AddMessage(model.NewUserMessage(content))
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.busy = false
		o.state = StateIdle
		o.mu.Unlock()
		o.notify()
	}()

	o.setState(StateAwaitingFirstReply)

	start := time.Now()
	reply, err := o.runTurn(ctx, content, modelID, executor)
	if err != nil {
		slog.Warn("turn failed", "model", modelID, "error", err)
		reply = ErrorReply(err)
	}

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		slog.Debug("discarding reply for cleared chat", "model", modelID)
		return nil
	}
	o.conv.AddMessage(model.NewAssistantMessage(reply, modelID))
	if err == nil {
		if cb := model.ExtractCodeBlock(reply); cb != nil {
			o.code = cb
		}
	}
	o.mu.Unlock()

	slog.Info("turn completed", "model", modelID, "duration", time.Since(start), "failed", err != nil)
	return nil
}

// runTurn returns the final reply text. Only completion failures of the
// first phase are returned as errors.
func (o *Orchestrator) runTurn(ctx context.Context, content, modelID string, executor ToolExecutor) (string, error) {
	first, err := o.completer.Complete(ctx, BuildSystemPrompt(content), modelID)
	if err != nil {
		return "", err
	}

	directive, found := protocol.Parse(first)
	if !found {
		return first, nil
	}
	if executor == nil {
		slog.Debug("tool directive ignored, no executor", "tool", directive.Tool)
		return protocol.StripDirective(first), nil
	}

	slog.Info("model requested tool", "tool", directive.Tool, "query", util.TruncateDisplay(directive.Query, 80))
	second, env, err := o.runTool(ctx, content, modelID, directive, executor)
	o.recordTool(directive, env, err)
	if err != nil {
		slog.Info("tool path abandoned, using first reply", "tool", directive.Tool, "error", err)
		return protocol.StripDirective(first), nil
	}
	return second, nil
}

func (o *Orchestrator) runTool(ctx context.Context, content, modelID string, d protocol.Directive, executor ToolExecutor) (string, *model.Envelope, error) {
	params := map[string]any{"query": d.Query}

	o.setState(StateAwaitingPermission)
	var env *model.Envelope
	var err error
	if staged, ok := executor.(StagedExecutor); ok {
		if err = staged.Authorize(ctx, d.Tool, params); err != nil {
			return "", nil, err
		}
		o.setState(StateAwaitingToolResult)
		env, err = staged.Call(ctx, d.Tool, params)
	} else {
		env, err = executor.Execute(ctx, d.Tool, params)
	}
	if err != nil {
		return "", nil, err
	}

	prompt, err := BuildToolResultPrompt(content, env)
	if err != nil {
		return "", env, err
	}
	o.setState(StateAwaitingSecondReply)
	reply, err := o.completer.Complete(ctx, prompt, modelID)
	return reply, env, err
}

func (o *Orchestrator) recordTool(d protocol.Directive, env *model.Envelope, err error) {
	ev := ToolEvent{Tool: d.Tool, Query: d.Query, Success: err == nil, Finished: time.Now()}
	if env != nil {
		ev.Source = env.Source
		ev.Method = env.Method
	}
	if err != nil {
		ev.Error = err.Error()
	}
	o.mu.Lock()
	o.lastTool = &ev
	o.mu.Unlock()
}

func (o *Orchestrator) setState(s TurnState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	listeners := make([]func(), len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
