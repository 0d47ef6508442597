// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
)

type requestResult struct {
	ok  bool
	err error
}

// startRequest runs RequestPermission in the background and waits for the
// approval to be published.
func startRequest(t *testing.T, g *Gate, published <-chan PendingApproval, tool string) (<-chan requestResult, PendingApproval) {
	t.Helper()
	done := make(chan requestResult, 1)
	go func() {
		ok, err := g.RequestPermission(context.Background(), tool, map[string]any{"query": "kenya"})
		done <- requestResult{ok, err}
	}()
	select {
	case p := <-published:
		return done, p
	case <-time.After(2 * time.Second):
		t.Fatal("approval was not published")
		return nil, PendingApproval{}
	}
}

func newTestGate() (*Gate, chan PendingApproval) {
	published := make(chan PendingApproval, 4)
	g := NewGate().WithNotifier(func(p PendingApproval) { published <- p })
	return g, published
}

func await(t *testing.T, done <-chan requestResult) requestResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("request did not resume")
		return requestResult{}
	}
}

func TestGate_ApproveOnce(t *testing.T) {
	g, published := newTestGate()

	done, p := startRequest(t, g, published, "web_search")
	assert.Equal(t, "Web Search", p.Tool.DisplayName)
	assert.Equal(t, "kenya", p.Tool.Parameters["query"])
	assert.NotEmpty(t, p.ID)

	pending, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, p.ID, pending.ID)

	require.NoError(t, g.Approve())
	r := await(t, done)
	assert.True(t, r.ok)
	assert.NoError(t, r.err)

	_, ok = g.Pending()
	assert.False(t, ok)
	assert.Equal(t, StateAllowedOnce, g.StateOf("web_search"))

	// AllowedOnce does not persist: the next call prompts again.
	done, _ = startRequest(t, g, published, "web_search")
	require.NoError(t, g.Deny())
	r = await(t, done)
	assert.False(t, r.ok)
	assert.NoError(t, r.err)
}

func TestGate_AlwaysAllowFastPath(t *testing.T) {
	g, published := newTestGate()

	done, _ := startRequest(t, g, published, "exa_search")
	require.NoError(t, g.AlwaysAllow())
	assert.True(t, await(t, done).ok)

	// Alias and canonical name share the display-name key.
	for _, name := range []string{"web_search", "exa_search"} {
		ok, err := g.RequestPermission(context.Background(), name, nil)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Len(t, published, 0, "fast path must not publish a new approval")
	assert.Equal(t, StateAlwaysAllowed, g.StateOf("web_search"))
}

func TestGate_UnknownToolResolvesFalse(t *testing.T) {
	g, published := newTestGate()
	ok, err := g.RequestPermission(context.Background(), "shell", nil)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Len(t, published, 0)
}

func TestGate_DenyNotStickyByDefault(t *testing.T) {
	g, published := newTestGate()

	done, _ := startRequest(t, g, published, "code_docs")
	require.NoError(t, g.Deny())
	assert.False(t, await(t, done).ok)
	assert.Equal(t, StateDenied, g.StateOf("code_docs"))

	// Plain deny re-prompts.
	done, _ = startRequest(t, g, published, "code_docs")
	require.NoError(t, g.Approve())
	assert.True(t, await(t, done).ok)
}

func TestGate_StickyDeny(t *testing.T) {
	g, published := newTestGate()
	g.SetStickyDeny(true)

	done, _ := startRequest(t, g, published, "github_search")
	require.NoError(t, g.Deny())
	assert.False(t, await(t, done).ok)

	ok, err := g.RequestPermission(context.Background(), "github_search", nil)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Len(t, published, 0)

	g.Clear()
	assert.Equal(t, StateUnset, g.StateOf("github_search"))
}

func TestGate_SecondRequestRejected(t *testing.T) {
	g, published := newTestGate()

	done, first := startRequest(t, g, published, "web_search")

	ok, err := g.RequestPermission(context.Background(), "code_docs", nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errs.ErrApprovalPending)

	// The first approval is still the one pending.
	pending, stillPending := g.Pending()
	require.True(t, stillPending)
	assert.Equal(t, first.ID, pending.ID)

	require.NoError(t, g.Approve())
	assert.True(t, await(t, done).ok)
}

func TestGate_ResolveExactlyOnce(t *testing.T) {
	g, published := newTestGate()
	assert.ErrorIs(t, g.Approve(), ErrNoPendingApproval)

	done, _ := startRequest(t, g, published, "web_search")
	require.NoError(t, g.Approve())
	assert.ErrorIs(t, g.Deny(), ErrNoPendingApproval)
	assert.True(t, await(t, done).ok)
}

func TestGate_ContextCancelClearsSlot(t *testing.T) {
	var calls atomic.Int32
	g := NewGate().WithNotifier(func(PendingApproval) { calls.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ok, err := g.RequestPermission(ctx, "web_search", nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())

	_, pending := g.Pending()
	assert.False(t, pending)
}

func TestGate_ResolveRacingCancelKeepsDecision(t *testing.T) {
	// The notifier cancels and approves before the requester selects, so both
	// cases are ready. Either way the recorded approval must be what it sees.
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		var g *Gate
		g = NewGate().WithNotifier(func(PendingApproval) {
			cancel()
			require.NoError(t, g.Approve())
		})

		ok, err := g.RequestPermission(ctx, "web_search", nil)
		require.NoError(t, err, "iteration %d", i)
		assert.True(t, ok, "iteration %d", i)
		assert.Equal(t, StateAllowedOnce, g.StateOf("web_search"))
		cancel()
	}
}

func TestGate_PermissionsSnapshot(t *testing.T) {
	g, published := newTestGate()
	done, _ := startRequest(t, g, published, "web_search")
	require.NoError(t, g.AlwaysAllow())
	await(t, done)

	perms := g.Permissions()
	require.Contains(t, perms, "Web Search")
	assert.True(t, perms["Web Search"].Allowed)
	assert.True(t, perms["Web Search"].AlwaysAllow)
	assert.False(t, perms["Web Search"].Timestamp.IsZero())

	perms["Web Search"] = Permission{}
	assert.Equal(t, StateAlwaysAllowed, g.StateOf("web_search"), "snapshot must be a copy")
}

func TestParseDecision(t *testing.T) {
	tests := map[string]Decision{
		"approve": DecisionApprove,
		"Y":       DecisionApprove,
		"deny":    DecisionDeny,
		"no":      DecisionDeny,
		"always":  DecisionAlwaysAllow,
		"a":       DecisionAlwaysAllow,
	}
	for in, want := range tests {
		got, err := ParseDecision(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDecision("maybe")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}
