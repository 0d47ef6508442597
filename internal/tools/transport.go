// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/mcpcall"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// Remote tool names used on the transport boundary.
const (
	remoteSearchTool = "search"
	remoteDocsTool   = "resolve-library-id"
)

// RepositorySearcher runs a repository search.
type RepositorySearcher interface {
	Search(ctx context.Context, query string) (*model.Envelope, error)
}

// Transport is the fixed tool dispatch table.
type Transport struct {
	caller ServerCaller
	repos  RepositorySearcher
}

// NewTransport creates a transport. Either collaborator may be nil, in which
// case its tools fail with a transport error.
func NewTransport(caller ServerCaller, repos RepositorySearcher) *Transport {
	return &Transport{caller: caller, repos: repos}
}

// Names lists the canonical tool names in sorted order.
func Names() []string {
	return model.ToolNames()
}

// Lookup returns the descriptor for a tool name or alias.
func Lookup(name string) (model.ToolDescriptor, bool) {
	return model.LookupTool(name)
}

// Canonical resolves aliases to canonical names.
func Canonical(name string) (string, bool) {
	return model.CanonicalToolName(name)
}

// CallTool dispatches one tool request.
func (t *Transport) CallTool(ctx context.Context, name string, params map[string]any) (*model.Envelope, error) {
	canonical, ok := Canonical(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownTool, name)
	}
	if canonical != name {
		slog.Info("redirecting legacy tool name", "from", name, "to", canonical)
	}

	query := mcpcall.QueryOf(params)
	if query == "" {
		return nil, fmt.Errorf("%w: %s requires a query", errs.ErrInvalidRequest, canonical)
	}
	slog.Info("calling tool", "tool", canonical, "query", util.TruncateDisplay(query, 80))

	switch canonical {
	case model.ToolWebSearch:
		return t.callServer(ctx, ServerRequest{
			ServerConfig: &ServerConfig{Name: mcpcall.ServerDuckDuckGo},
			ToolName:     remoteSearchTool,
			Parameters:   map[string]any{"query": query},
		})

	case model.ToolCodeDocs:
		return t.callServer(ctx, ServerRequest{
			ServerConfig: &ServerConfig{Name: mcpcall.ServerContext7},
			ToolName:     remoteDocsTool,
			Parameters:   params,
		})

	case model.ToolGitHubSearch:
		if t.repos == nil {
			return nil, fmt.Errorf("%w: repository search is not configured", errs.ErrTransportFailure)
		}
		return t.repos.Search(ctx, query)

	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownTool, name)
	}
}

func (t *Transport) callServer(ctx context.Context, req ServerRequest) (*model.Envelope, error) {
	if t.caller == nil {
		return nil, fmt.Errorf("%w: no tool-call transport configured", errs.ErrTransportFailure)
	}
	return t.caller.CallServer(ctx, req)
}
