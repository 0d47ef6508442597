// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcpcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
)

// Server names understood by the registry.
const (
	ServerDuckDuckGo = "duckduckgo"
	ServerContext7   = "context7-mcp"
)

// Client identity sent during session initialization.
const (
	clientName      = "200Model8-Dev"
	clientVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
	userAgent       = "200Model8-Dev/1.0"
)

// JSON-RPC ids used by every exchange. Only id 1 carries the tool result.
const (
	setupID = 0
	callID  = 1
)

var timeNow = time.Now

// =============================================================================
// SERVER REGISTRY
// =============================================================================

// Call is a single tool invocation against a named server.
type Call struct {
	Server string
	Tool   string
	Params map[string]any
}

// ServerSpec describes how a named server is reached.
type ServerSpec struct {
	Name string
	// Package is the registry package, used both in the hosted URL path and
	// as the CLI argument.
	Package string
	// RemoteTool is the tool name invoked on the server.
	RemoteTool string
	// NeedsInit requests a session-initialization exchange before the call.
	NeedsInit bool
	// Arguments maps caller parameters to the remote tool's arguments.
	Arguments func(params map[string]any) (map[string]any, error)
}

var servers = map[string]ServerSpec{
	ServerDuckDuckGo: {
		Name:       ServerDuckDuckGo,
		Package:    "@nickclyde/duckduckgo-mcp-server",
		RemoteTool: "search",
		NeedsInit:  true,
		Arguments: func(params map[string]any) (map[string]any, error) {
			q := QueryOf(params)
			if q == "" {
				return nil, fmt.Errorf("%w: query is required", errs.ErrInvalidRequest)
			}
			maxResults := 5
			if v, ok := params["max_results"].(float64); ok && v > 0 {
				maxResults = int(v)
			} else if v, ok := params["max_results"].(int); ok && v > 0 {
				maxResults = v
			}
			return map[string]any{"query": q, "max_results": maxResults}, nil
		},
	},
	ServerContext7: {
		Name:       ServerContext7,
		Package:    "@upstash/context7-mcp",
		RemoteTool: "resolve-library-id",
		Arguments: func(params map[string]any) (map[string]any, error) {
			name := QueryOf(params)
			if name == "" {
				name = stringParam(params, "libraryName")
			}
			if name == "" {
				return nil, fmt.Errorf("%w: query is required", errs.ErrInvalidRequest)
			}
			return map[string]any{"libraryName": name}, nil
		},
	},
}

// LookupServer returns the spec for a server name.
func LookupServer(name string) (ServerSpec, error) {
	spec, ok := servers[name]
	if !ok {
		return ServerSpec{}, fmt.Errorf("%w: unknown MCP server %q", errs.ErrInvalidRequest, name)
	}
	return spec, nil
}

// ServerNames lists registered servers in sorted order.
func ServerNames() []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// QueryOf extracts the search text from "query" or "q".
func QueryOf(params map[string]any) string {
	if q := stringParam(params, "query"); q != "" {
		return q
	}
	return stringParam(params, "q")
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}

// =============================================================================
// STRATEGY CHAIN
// =============================================================================

// Strategy is one way of reaching a server.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, call Call) (*model.Envelope, error)
}

// Chain tries strategies in order and stops at the first success.
type Chain struct {
	strategies []Strategy
}

// NewChain builds a chain over strategies, tried in the given order.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// NewDefaultChain builds the URL → subprocess chain from configuration.
func NewDefaultChain(cfg config.MCPConfig) *Chain {
	return NewChain(NewURLStrategy(cfg), NewSubprocessStrategy(cfg))
}

// Strategies returns the strategy names in attempt order.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Call runs the chain. When every strategy fails the error is an
// errs.Failures holding each reason.
func (c *Chain) Call(ctx context.Context, call Call) (*model.Envelope, error) {
	if _, err := LookupServer(call.Server); err != nil {
		return nil, err
	}
	if len(c.strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategies configured", errs.ErrTransportFailure)
	}

	var failures errs.Failures
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			failures.Add(s.Name(), err)
			break
		}
		env, err := s.Attempt(ctx, call)
		if err == nil {
			slog.Info("mcp call succeeded", "server", call.Server, "strategy", s.Name())
			return env, nil
		}
		slog.Warn("mcp strategy failed", "server", call.Server, "strategy", s.Name(), "error", err)
		failures.Add(s.Name(), err)
	}
	return nil, failures
}

// =============================================================================
// JSON-RPC WIRE TYPES
// =============================================================================

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func (r *rpcResponse) hasID(id int) bool {
	return string(bytes.TrimSpace(r.ID)) == fmt.Sprint(id)
}

func initializeRequest() rpcRequest {
	return rpcRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      setupID,
		Method:  string(mcp.MethodInitialize),
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
}

func listToolsRequest() rpcRequest {
	return rpcRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      setupID,
		Method:  string(mcp.MethodToolsList),
	}
}

func callToolRequest(tool string, args map[string]any) rpcRequest {
	return rpcRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      callID,
		Method:  string(mcp.MethodToolsCall),
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	}
}

// envelopeFrom builds the uniform result from a tool-call response.
func envelopeFrom(spec ServerSpec, call Call, args map[string]any, resp *rpcResponse, raw json.RawMessage, method string) *model.Envelope {
	query := QueryOf(call.Params)
	if query == "" {
		query, _ = args["libraryName"].(string)
	}

	result := resp.Result
	if len(result) == 0 {
		result = raw
	}

	return &model.Envelope{
		Query:     query,
		Result:    result,
		Source:    spec.Name,
		Timestamp: timeNow(),
		Success:   true,
		Method:    method,
		ToolUsed:  spec.RemoteTool,
		Raw:       raw,
	}
}
