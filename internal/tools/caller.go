// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/mcpcall"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/search"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// MethodDirectSearch is the envelope method of the in-process search backend.
const MethodDirectSearch = "Real DuckDuckGo Search API"

// =============================================================================
// TRANSPORT BOUNDARY
// =============================================================================

// ServerConfig names the server a request targets.
type ServerConfig struct {
	Name string `json:"name"`
}

// ServerRequest is the body of a tool-call transport request.
type ServerRequest struct {
	ServerConfig *ServerConfig  `json:"serverConfig"`
	ToolName     string         `json:"toolName"`
	Parameters   map[string]any `json:"parameters"`
}

// Validate reports errs.ErrInvalidRequest when a required field is missing.
func (r ServerRequest) Validate() error {
	if r.ServerConfig == nil || r.ServerConfig.Name == "" || r.ToolName == "" || r.Parameters == nil {
		return fmt.Errorf("%w: Missing required parameters", errs.ErrInvalidRequest)
	}
	return nil
}

// ErrorBody is the error shape returned across the boundary.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ServerCaller executes one tool-call transport request.
type ServerCaller interface {
	CallServer(ctx context.Context, req ServerRequest) (*model.Envelope, error)
}

// =============================================================================
// LOCAL CALLER
// =============================================================================

// Searcher runs a direct web search.
type Searcher interface {
	Search(ctx context.Context, query string) (search.Result, error)
}

// ProtocolCaller runs a protocol call against a hosted server.
type ProtocolCaller interface {
	Call(ctx context.Context, call mcpcall.Call) (*model.Envelope, error)
}

// LocalCaller serves transport requests in process. The duckduckgo server
// is answered by the direct search backend; every other server goes through
// the protocol-call strategies.
type LocalCaller struct {
	search   Searcher
	protocol ProtocolCaller
	now      func() time.Time
}

// NewLocalCaller creates an in-process caller.
func NewLocalCaller(s Searcher, p ProtocolCaller) *LocalCaller {
	return &LocalCaller{search: s, protocol: p, now: time.Now}
}

// CallServer implements ServerCaller.
func (c *LocalCaller) CallServer(ctx context.Context, req ServerRequest) (*model.Envelope, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("tool-call request", "server", req.ServerConfig.Name, "tool", req.ToolName)

	if req.ServerConfig.Name == mcpcall.ServerDuckDuckGo {
		return c.directSearch(ctx, req.Parameters)
	}
	if c.protocol == nil {
		return nil, fmt.Errorf("%w: no protocol transport configured", errs.ErrTransportFailure)
	}
	return c.protocol.Call(ctx, mcpcall.Call{
		Server: req.ServerConfig.Name,
		Tool:   req.ToolName,
		Params: req.Parameters,
	})
}

func (c *LocalCaller) directSearch(ctx context.Context, params map[string]any) (*model.Envelope, error) {
	if c.search == nil {
		return nil, fmt.Errorf("%w: no search backend configured", errs.ErrTransportFailure)
	}
	query := mcpcall.QueryOf(params)
	res, err := c.search.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("DuckDuckGo search failed: %w", err)
	}
	return &model.Envelope{
		Query:     query,
		Result:    model.NewTextResult(res.Text),
		Source:    res.Source,
		Timestamp: c.now(),
		Success:   true,
		Method:    MethodDirectSearch,
	}, nil
}

// =============================================================================
// HTTP CALLER
// =============================================================================

// HTTPCaller sends transport requests to a remote /api/mcp-call endpoint.
type HTTPCaller struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPCaller creates a caller for the API served at baseURL.
func NewHTTPCaller(baseURL string, timeout time.Duration) *HTTPCaller {
	return &HTTPCaller{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CallServer implements ServerCaller.
func (c *HTTPCaller) CallServer(ctx context.Context, req ServerRequest) (*model.Envelope, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/mcp-call", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransportFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", errs.ErrTransportFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		var eb ErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			if eb.Details != "" {
				return nil, fmt.Errorf("%w: %s: %s", errs.ErrTransportFailure, eb.Error, eb.Details)
			}
			return nil, fmt.Errorf("%w: %s", errs.ErrTransportFailure, eb.Error)
		}
		return nil, fmt.Errorf("%w: HTTP %d: %s", errs.ErrTransportFailure, resp.StatusCode,
			util.TruncateRunes(strings.TrimSpace(string(data)), 200))
	}

	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", errs.ErrTransportFailure, err)
	}
	return &env, nil
}
