// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcpcall

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// MethodURL is the envelope method reported by URLStrategy.
const MethodURL = "Smithery URL + Profile"

// sessionHeader carries the streamable-HTTP session id between requests.
const sessionHeader = "Mcp-Session-Id"

const maxResponseBytes = 5 * 1024 * 1024

// URLStrategy calls a hosted server over HTTP JSON-RPC.
type URLStrategy struct {
	BaseURL   string
	APIKey    string
	Profile   string
	Timeout   time.Duration
	InitDelay time.Duration
	HTTP      *http.Client
}

// NewURLStrategy builds a URL strategy from configuration.
func NewURLStrategy(cfg config.MCPConfig) *URLStrategy {
	return &URLStrategy{
		BaseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:    cfg.APIKey,
		Profile:   cfg.Profile,
		Timeout:   cfg.URLTimeout(),
		InitDelay: cfg.InitDelay(),
		HTTP:      &http.Client{},
	}
}

// Name implements Strategy.
func (s *URLStrategy) Name() string { return "url" }

// Endpoint returns the full request URL for a server, including credentials.
func (s *URLStrategy) Endpoint(spec ServerSpec) string {
	q := url.Values{}
	q.Set("api_key", s.APIKey)
	if s.Profile != "" {
		q.Set("profile", s.Profile)
	}
	return s.BaseURL + "/" + spec.Package + "/mcp?" + q.Encode()
}

// Attempt implements Strategy.
func (s *URLStrategy) Attempt(ctx context.Context, call Call) (*model.Envelope, error) {
	spec, err := LookupServer(call.Server)
	if err != nil {
		return nil, err
	}
	args, err := spec.Arguments(call.Params)
	if err != nil {
		return nil, err
	}
	if s.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured for hosted servers", errs.ErrTransportFailure)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	endpoint := s.Endpoint(spec)
	redacted := util.RedactQuery(endpoint, "api_key")
	session := ""

	if spec.NeedsInit {
		resp, _, sid, err := s.post(ctx, endpoint, session, initializeRequest())
		switch {
		case err != nil:
			slog.Warn("mcp session initialization failed", "server", spec.Name, "error", err)
		case resp.Error != nil:
			slog.Warn("mcp session initialization rejected", "server", spec.Name, "error", resp.Error)
		default:
			session = sid
			slog.Debug("mcp session initialized", "server", spec.Name, "session", session != "")
		}
		if err := sleepCtx(ctx, s.InitDelay); err != nil {
			return nil, err
		}
	}

	s.checkTools(ctx, endpoint, session, spec)

	resp, raw, _, err := s.post(ctx, endpoint, session, callToolRequest(spec.RemoteTool, args))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s returned %v", errs.ErrTransportFailure, spec.Name, resp.Error)
	}

	env := envelopeFrom(spec, call, args, resp, raw, MethodURL)
	env.Endpoint = redacted
	return env, nil
}

// checkTools logs whether the remote tool is advertised. Failures are not fatal.
func (s *URLStrategy) checkTools(ctx context.Context, endpoint, session string, spec ServerSpec) {
	resp, _, _, err := s.post(ctx, endpoint, session, listToolsRequest())
	if err != nil {
		slog.Debug("mcp tools/list failed", "server", spec.Name, "error", err)
		return
	}
	if resp.Error != nil || len(resp.Result) == 0 {
		return
	}

	var list mcp.ListToolsResult
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		slog.Debug("mcp tools/list unreadable", "server", spec.Name, "error", err)
		return
	}
	names := make([]string, 0, len(list.Tools))
	for _, t := range list.Tools {
		if t.Name == spec.RemoteTool {
			slog.Debug("mcp remote tool available", "server", spec.Name, "tool", t.Name)
			return
		}
		names = append(names, t.Name)
	}
	slog.Warn("mcp remote tool not advertised", "server", spec.Name, "tool", spec.RemoteTool, "available", names)
}

// post sends one JSON-RPC request and decodes the reply. It returns the
// parsed response, the raw JSON message and any session id the server assigned.
func (s *URLStrategy) post(ctx context.Context, endpoint, session string, rpc rpcRequest) (*rpcResponse, json.RawMessage, string, error) {
	body, err := json.Marshal(rpc)
	if err != nil {
		return nil, nil, "", fmt.Errorf("encode %s: %w", rpc.Method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", errs.ErrTransportFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("User-Agent", userAgent)
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}

	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	httpResp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, "", fmt.Errorf("%w: %s: %w", errs.ErrTransportFailure, rpc.Method, ctxErr)
		}
		return nil, nil, "", fmt.Errorf("%w: %s: %v", errs.ErrTransportFailure, rpc.Method, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: read %s response: %v", errs.ErrTransportFailure, rpc.Method, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, nil, "", fmt.Errorf("%w: HTTP %d: %s", errs.ErrTransportFailure,
			httpResp.StatusCode, util.TruncateRunes(strings.TrimSpace(string(data)), 200))
	}

	raw, err := decodeBody(data)
	if err != nil {
		return nil, nil, "", err
	}
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, "", fmt.Errorf("%w: malformed JSON-RPC message: %v", errs.ErrTransportFailure, err)
	}
	return &resp, raw, httpResp.Header.Get(sessionHeader), nil
}

// decodeBody accepts a plain JSON body or an event stream, in which case the
// first "data: " line holds the message.
func decodeBody(data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxResponseBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if !json.Valid([]byte(payload)) {
			return nil, fmt.Errorf("%w: unparseable event data: %s", errs.ErrTransportFailure, util.TruncateRunes(payload, 200))
		}
		return json.RawMessage(payload), nil
	}
	return nil, fmt.Errorf("%w: response is neither JSON nor an event stream: %s",
		errs.ErrTransportFailure, util.TruncateRunes(string(trimmed), 200))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errs.ErrTransportFailure, ctx.Err())
	}
}
