// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcpcall

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
)

type fakeStrategy struct {
	name  string
	env   *model.Envelope
	err   error
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Attempt(ctx context.Context, call Call) (*model.Envelope, error) {
	f.calls++
	return f.env, f.err
}

func docsCall() Call {
	return Call{Server: ServerContext7, Tool: "code_docs", Params: map[string]any{"query": "Next.js"}}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	first := &fakeStrategy{name: "url", env: &model.Envelope{Source: ServerContext7, Success: true}}
	second := &fakeStrategy{name: "subprocess"}

	env, err := NewChain(first, second).Call(context.Background(), docsCall())
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestChain_FallsBackInOrder(t *testing.T) {
	first := &fakeStrategy{name: "url", err: fmt.Errorf("%w: HTTP 502", errs.ErrTransportFailure)}
	second := &fakeStrategy{name: "subprocess", env: &model.Envelope{Method: MethodSubprocess}}

	env, err := NewChain(first, second).Call(context.Background(), docsCall())
	require.NoError(t, err)
	assert.Equal(t, MethodSubprocess, env.Method)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestChain_AccumulatesFailures(t *testing.T) {
	first := &fakeStrategy{name: "url", err: fmt.Errorf("%w: HTTP 502", errs.ErrTransportFailure)}
	second := &fakeStrategy{name: "subprocess", err: fmt.Errorf("%w: no response within 30s", errs.ErrSubprocessTimeout)}

	_, err := NewChain(first, second).Call(context.Background(), docsCall())
	require.Error(t, err)

	var failures errs.Failures
	require.True(t, errors.As(err, &failures))
	require.Len(t, failures, 2)
	assert.Equal(t, "url", failures[0].Strategy)
	assert.Equal(t, "subprocess", failures[1].Strategy)

	assert.ErrorIs(t, err, errs.ErrTransportFailure)
	assert.ErrorIs(t, err, errs.ErrSubprocessTimeout)
	assert.Contains(t, err.Error(), "url: transport failure: HTTP 502")
	assert.Contains(t, err.Error(), "subprocess: subprocess timeout")
}

func TestChain_UnknownServer(t *testing.T) {
	s := &fakeStrategy{name: "url"}
	_, err := NewChain(s).Call(context.Background(), Call{Server: "exa"})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
	assert.Equal(t, 0, s.calls)
}

func TestChain_Empty(t *testing.T) {
	_, err := NewChain().Call(context.Background(), docsCall())
	assert.ErrorIs(t, err, errs.ErrTransportFailure)
}

func TestChain_StopsWhenContextEnds(t *testing.T) {
	s := &fakeStrategy{name: "url"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain(s).Call(ctx, docsCall())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.calls)
}

func TestServerArguments(t *testing.T) {
	ddg, err := LookupServer(ServerDuckDuckGo)
	require.NoError(t, err)
	args, err := ddg.Arguments(map[string]any{"q": "kenya"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "kenya", "max_results": 5}, args)

	args, err = ddg.Arguments(map[string]any{"query": "kenya", "max_results": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, args["max_results"])

	_, err = ddg.Arguments(map[string]any{})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	docs, err := LookupServer(ServerContext7)
	require.NoError(t, err)
	args, err = docs.Arguments(map[string]any{"query": "Next.js"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"libraryName": "Next.js"}, args)

	args, err = docs.Arguments(map[string]any{"libraryName": "react"})
	require.NoError(t, err)
	assert.Equal(t, "react", args["libraryName"])
}

func TestServerNames(t *testing.T) {
	assert.Equal(t, []string{ServerContext7, ServerDuckDuckGo}, ServerNames())
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"json", `{"jsonrpc":"2.0","id":1,"result":{}}`, `{"jsonrpc":"2.0","id":1,"result":{}}`, false},
		{"sse", "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1}\n\n", `{"jsonrpc":"2.0","id":1}`, false},
		{"sse crlf", "event: message\r\ndata: {\"id\":1}\r\n\r\n", `{"id":1}`, false},
		{"bad data", "data: not json\n", "", true},
		{"garbage", "<html>oops</html>", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBody([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrTransportFailure)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
