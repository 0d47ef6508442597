// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
)

// ErrNoPendingApproval is returned when a decision arrives with nothing pending.
var ErrNoPendingApproval = errors.New("no pending approval")

// =============================================================================
// STATES AND DECISIONS
// =============================================================================

// State is the per-tool permission state.
type State int

const (
	StateUnset State = iota
	StateAllowedOnce
	StateAlwaysAllowed
	StateDenied
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateUnset:
		return "Unset"
	case StateAllowedOnce:
		return "AllowedOnce"
	case StateAlwaysAllowed:
		return "AlwaysAllowed"
	case StateDenied:
		return "Denied"
	default:
		return "Unknown"
	}
}

// Decision is the user's answer to a pending approval.
type Decision string

const (
	DecisionApprove     Decision = "approve"
	DecisionDeny        Decision = "deny"
	DecisionAlwaysAllow Decision = "always"
)

// ParseDecision accepts the wire names plus a few common spellings.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "allow", "yes", "y":
		return DecisionApprove, nil
	case "deny", "reject", "no", "n":
		return DecisionDeny, nil
	case "always", "always_allow", "alwaysallow", "a":
		return DecisionAlwaysAllow, nil
	default:
		return "", fmt.Errorf("%w: unknown decision %q", errs.ErrInvalidRequest, s)
	}
}

// Granted reports whether the decision lets the tool run.
func (d Decision) Granted() bool {
	return d == DecisionApprove || d == DecisionAlwaysAllow
}

// Permission is the recorded decision for one tool.
type Permission struct {
	Allowed     bool      `json:"allowed"`
	AlwaysAllow bool      `json:"alwaysAllow"`
	Timestamp   time.Time `json:"timestamp"`
}

// State derives the permission state from the record.
func (p Permission) State() State {
	switch {
	case p.Timestamp.IsZero():
		return StateUnset
	case p.AlwaysAllow:
		return StateAlwaysAllowed
	case p.Allowed:
		return StateAllowedOnce
	default:
		return StateDenied
	}
}

// PendingApproval is the request shown to the user while a tool call is suspended.
type PendingApproval struct {
	ID          string               `json:"id"`
	Tool        model.ToolDescriptor `json:"tool"`
	RequestedAt time.Time            `json:"requestedAt"`
}

// Notifier receives each newly published PendingApproval.
type Notifier func(PendingApproval)

// =============================================================================
// GATE
// =============================================================================

type pendingSlot struct {
	approval PendingApproval
	reply    chan Decision
}

// Gate mediates user consent before any tool executes.
// Permissions live for the lifetime of the Gate and are never persisted.
type Gate struct {
	mu          sync.Mutex
	permissions map[string]Permission
	pending     *pendingSlot
	stickyDeny  bool
	notify      Notifier
	now         func() time.Time
}

// NewGate creates a gate with no recorded permissions.
func NewGate() *Gate {
	return &Gate{
		permissions: make(map[string]Permission),
		now:         time.Now,
	}
}

// WithNotifier sets the callback that publishes pending approvals to the UI.
func (g *Gate) WithNotifier(n Notifier) *Gate {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notify = n
	return g
}

// WithStickyDeny sets whether a plain deny suppresses future prompts.
func (g *Gate) WithStickyDeny(sticky bool) *Gate {
	g.SetStickyDeny(sticky)
	return g
}

// SetStickyDeny changes the deny policy at runtime.
func (g *Gate) SetStickyDeny(sticky bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stickyDeny = sticky
}

// RequestPermission resolves true when toolName may run with params.
//
// Unknown tools resolve false. AlwaysAllowed tools resolve true without a
// prompt. Otherwise a PendingApproval is published and the call blocks until
// the UI resolves it or ctx ends. If another approval is already pending the
// call fails immediately with errs.ErrApprovalPending.
func (g *Gate) RequestPermission(ctx context.Context, toolName string, params map[string]any) (bool, error) {
	desc, ok := model.LookupTool(toolName)
	if !ok {
		slog.Warn("permission requested for unknown tool", "tool", toolName)
		return false, nil
	}

	g.mu.Lock()
	perm := g.permissions[desc.DisplayName]
	switch perm.State() {
	case StateAlwaysAllowed:
		g.mu.Unlock()
		return true, nil
	case StateDenied:
		if g.stickyDeny {
			g.mu.Unlock()
			slog.Debug("tool denied by sticky policy", "tool", desc.Name)
			return false, nil
		}
	}

	if g.pending != nil {
		outstanding := g.pending.approval.Tool.Name
		g.mu.Unlock()
		return false, fmt.Errorf("%w: %s is awaiting a decision", errs.ErrApprovalPending, outstanding)
	}

	slot := &pendingSlot{
		approval: PendingApproval{
			ID:          uuid.NewString(),
			Tool:        desc.WithParameters(params),
			RequestedAt: g.now(),
		},
		reply: make(chan Decision, 1),
	}
	g.pending = slot
	notify := g.notify
	g.mu.Unlock()

	slog.Info("tool approval requested", "tool", desc.Name, "approval_id", slot.approval.ID)
	if notify != nil {
		notify(slot.approval)
	}

	select {
	case decision := <-slot.reply:
		return decision.Granted(), nil
	case <-ctx.Done():
		g.mu.Lock()
		if g.pending == slot {
			g.pending = nil
			g.mu.Unlock()
			return false, ctx.Err()
		}
		g.mu.Unlock()
		// Resolve took the slot first, so its decision is recorded and the
		// reply is on its way.
		decision := <-slot.reply
		return decision.Granted(), nil
	}
}

// Resolve answers the pending approval. The suspended request is resumed
// exactly once; later calls return ErrNoPendingApproval.
func (g *Gate) Resolve(decision Decision) error {
	g.mu.Lock()
	slot := g.pending
	if slot == nil {
		g.mu.Unlock()
		return ErrNoPendingApproval
	}
	g.pending = nil
	g.permissions[slot.approval.Tool.DisplayName] = Permission{
		Allowed:     decision.Granted(),
		AlwaysAllow: decision == DecisionAlwaysAllow,
		Timestamp:   g.now(),
	}
	g.mu.Unlock()

	slog.Info("tool approval resolved", "tool", slot.approval.Tool.Name, "decision", string(decision))
	slot.reply <- decision
	return nil
}

// Approve grants the pending request once.
func (g *Gate) Approve() error { return g.Resolve(DecisionApprove) }

// Deny refuses the pending request.
func (g *Gate) Deny() error { return g.Resolve(DecisionDeny) }

// AlwaysAllow grants the pending request and every later one for the same tool.
func (g *Gate) AlwaysAllow() error { return g.Resolve(DecisionAlwaysAllow) }

// Pending returns the outstanding approval, if any.
func (g *Gate) Pending() (PendingApproval, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return PendingApproval{}, false
	}
	return g.pending.approval, true
}

// Permissions returns a snapshot of recorded decisions keyed by display name.
func (g *Gate) Permissions() map[string]Permission {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]Permission, len(g.permissions))
	for k, v := range g.permissions {
		out[k] = v
	}
	return out
}

// StateOf returns the permission state for a tool name or alias.
func (g *Gate) StateOf(toolName string) State {
	desc, ok := model.LookupTool(toolName)
	if !ok {
		return StateUnset
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.permissions[desc.DisplayName].State()
}

// Clear forgets every recorded decision. A pending approval is left alone.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.permissions = make(map[string]Permission)
}
