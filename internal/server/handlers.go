// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Jeff9497/200Model8Dev/internal/backend"
	"github.com/Jeff9497/200Model8Dev/internal/chat"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/mcpcall"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/permission"
	"github.com/Jeff9497/200Model8Dev/internal/ratelimit"
	"github.com/Jeff9497/200Model8Dev/internal/tools"
)

// ============================================================================
// HEALTH
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}

// ============================================================================
// TOOL-CALL TRANSPORT
// ============================================================================

// handleToolCall handles POST /api/mcp-call.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	if s.opts.Caller == nil {
		writeError(w, http.StatusServiceUnavailable, "tool transport is not configured")
		return
	}

	var req tools.ServerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing required parameters", Details: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	env, err := s.opts.Caller.CallServer(r.Context(), req)
	if err != nil {
		s.logger.Warn("tool call failed", "server", req.ServerConfig.Name, "tool", req.ToolName, "error", err)
		writeJSON(w, http.StatusInternalServerError, tools.ErrorBody{Error: "MCP call failed", Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// handleToolCallTest handles GET /api/mcp-call?test=duckduckgo|context7.
func (s *Server) handleToolCallTest(w http.ResponseWriter, r *http.Request) {
	var server, query string
	switch r.URL.Query().Get("test") {
	case "duckduckgo":
		server, query = mcpcall.ServerDuckDuckGo, "test search"
	case "context7":
		server, query = mcpcall.ServerContext7, "next.js"
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "MCP Test Endpoint",
			"usage":   "Add ?test=duckduckgo or ?test=context7 to test MCP servers",
		})
		return
	}
	if q := strings.TrimSpace(r.URL.Query().Get("query")); q != "" {
		query = q
	}
	if s.opts.Caller == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "tool transport is not configured"})
		return
	}

	env, err := s.opts.Caller.CallServer(r.Context(), tools.ServerRequest{
		ServerConfig: &tools.ServerConfig{Name: server},
		ToolName:     "search",
		Parameters:   map[string]any{"query": query},
	})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": env})
}

// ============================================================================
// ONE-SHOT COMPLETION
// ============================================================================

type completeRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// handleComplete handles POST /api/complete.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if s.opts.Completer == nil {
		writeError(w, http.StatusServiceUnavailable, "completion backend is not configured")
		return
	}

	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Message == "" || req.Model == "" {
		writeError(w, http.StatusBadRequest, "Message and model are required")
		return
	}

	response, err := s.opts.Completer.Complete(r.Context(), req.Message, req.Model)
	if err != nil {
		s.logger.Warn("completion failed", "model", req.Model, "error", err)
		status, body := completionError(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

// completionError maps a completion failure to a status and body.
// Provider statuses 400, 401 and 429 pass through; other provider
// failures are reported as 500.
func completionError(err error) (int, errorBody) {
	var quota *backend.QuotaError
	if errors.As(err, &quota) {
		body := errorBody{Error: quota.Error(), RateLimited: true}
		for _, m := range quota.Alternatives {
			body.Alternatives = append(body.Alternatives, m.ID)
		}
		return http.StatusTooManyRequests, body
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		body := errorBody{Error: apiErr.Message, RateLimited: apiErr.RateLimited()}
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests:
			return apiErr.StatusCode, body
		default:
			return http.StatusInternalServerError, body
		}
	}

	if errors.Is(err, backend.ErrNoResponse) {
		return http.StatusInternalServerError, errorBody{Error: err.Error()}
	}
	status := errs.HTTPStatus(err)
	return status, errorBody{Error: err.Error(), RateLimited: status == http.StatusTooManyRequests}
}

// ============================================================================
// CONVERSATION
// ============================================================================

type chatRequest struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

type editRequest struct {
	Content string `json:"content"`
}

type resendRequest struct {
	Model string `json:"model"`
}

func (s *Server) orchestrator(w http.ResponseWriter) (*chat.Orchestrator, bool) {
	if s.opts.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return nil, false
	}
	return s.opts.Orchestrator, true
}

func (s *Server) modelOrDefault(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.opts.DefaultModel
}

// handleChat handles POST /api/chat. The turn runs in the background; the
// response only says whether it started.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	modelID := s.modelOrDefault(req.Model)
	if strings.TrimSpace(req.Content) == "" || modelID == "" {
		writeError(w, http.StatusBadRequest, "Content and model are required")
		return
	}

	started := s.startTurn(func(ctx context.Context) error {
		return o.SendMessage(ctx, req.Content, modelID)
	})
	if !started {
		writeError(w, http.StatusConflict, chat.ErrTurnInProgress.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "model": modelID})
}

// handleListMessages handles GET /api/messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": o.Messages()})
}

// handleNewChat handles DELETE /api/messages.
func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w)
	if !ok {
		return
	}
	o.NewChat()
	w.WriteHeader(http.StatusNoContent)
}

// handleEditMessage handles PUT /api/messages/{id}.
func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w)
	if !ok {
		return
	}

	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := o.EditMessage(chi.URLParam(r, "id"), req.Content)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, model.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleResend handles POST /api/messages/{id}/resend. The body is optional.
func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w)
	if !ok {
		return
	}

	var req resendRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	id := chi.URLParam(r, "id")
	found := false
	for _, m := range o.Messages() {
		if m.ID != id {
			continue
		}
		if m.Role != model.RoleUser {
			writeError(w, http.StatusBadRequest, model.ErrNotUserMessage.Error())
			return
		}
		found = true
		break
	}
	if !found {
		writeError(w, http.StatusNotFound, model.ErrMessageNotFound.Error())
		return
	}

	modelID := s.modelOrDefault(req.Model)
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	started := s.startTurn(func(ctx context.Context) error {
		return o.Resend(ctx, id, modelID)
	})
	if !started {
		writeError(w, http.StatusConflict, chat.ErrTurnInProgress.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "model": modelID})
}

// handleCodePreview handles GET /api/code-preview.
func (s *Server) handleCodePreview(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"codeBlock": o.CodeBlock()})
}

type stateResponse struct {
	State    chat.TurnState              `json:"state"`
	Busy     bool                        `json:"busy"`
	LastTool *chat.ToolEvent             `json:"lastTool,omitempty"`
	Pending  *permission.PendingApproval `json:"pendingApproval,omitempty"`
}

// handleState handles GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orchestrator(w)
	if !ok {
		return
	}
	resp := stateResponse{State: o.State(), Busy: o.Busy()}
	if ev, ok := o.LastToolEvent(); ok {
		resp.LastTool = &ev
	}
	if s.opts.Gate != nil {
		if p, ok := s.opts.Gate.Pending(); ok {
			resp.Pending = &p
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// PERMISSIONS
// ============================================================================

type approvalRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) gate(w http.ResponseWriter) (*permission.Gate, bool) {
	if s.opts.Gate == nil {
		writeError(w, http.StatusServiceUnavailable, "permission gate is not configured")
		return nil, false
	}
	return s.opts.Gate, true
}

// handleGetApproval handles GET /api/approval.
func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gate(w)
	if !ok {
		return
	}
	if p, ok := g.Pending(); ok {
		writeJSON(w, http.StatusOK, map[string]any{"pending": p})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": nil})
}

// handleResolveApproval handles POST /api/approval.
func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gate(w)
	if !ok {
		return
	}

	var req approvalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	decision, err := permission.ParseDecision(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := g.Resolve(decision); err != nil {
		status := errs.HTTPStatus(err)
		if errors.Is(err, permission.ErrNoPendingApproval) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"decision": string(decision)})
}

// handleListPermissions handles GET /api/permissions.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gate(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": g.Permissions()})
}

// handleClearPermissions handles DELETE /api/permissions.
func (s *Server) handleClearPermissions(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gate(w)
	if !ok {
		return
	}
	g.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// CATALOGS
// ============================================================================

type modelEntry struct {
	model.ModelInfo
	Unlimited bool              `json:"unlimited"`
	Usage     *ratelimit.Record `json:"usage,omitempty"`
	Remaining *int              `json:"remaining,omitempty"`
}

// handleModels handles GET /api/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	var usage map[string]ratelimit.Record
	if s.opts.Tracker != nil {
		var err error
		if usage, err = s.opts.Tracker.All(r.Context()); err != nil {
			s.logger.Warn("rate-limit records unavailable", "error", err)
		}
	}

	list := model.ListModels()
	out := make([]modelEntry, 0, len(list))
	for _, m := range list {
		e := modelEntry{ModelInfo: m, Unlimited: m.Unlimited()}
		if rec, ok := usage[m.ID]; ok {
			remaining := rec.Remaining()
			e.Usage = &rec
			e.Remaining = &remaining
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

// handleTools handles GET /api/tools.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools":    model.ListTools(),
		"accepted": model.ToolNamesWithAliases(),
	})
}

// handleToolResults handles GET /api/tool-results.
func (s *Server) handleToolResults(w http.ResponseWriter, r *http.Request) {
	if s.opts.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "tool executor is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": s.opts.Executor.Results()})
}

// handleClearToolResults handles DELETE /api/tool-results.
func (s *Server) handleClearToolResults(w http.ResponseWriter, r *http.Request) {
	if s.opts.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "tool executor is not configured")
		return
	}
	s.opts.Executor.ClearResults()
	w.WriteHeader(http.StatusNoContent)
}
