// Package api exposes the agent over HTTP: a JSON chat endpoint, an
// SSE streaming variant, tool confirmation, session teardown and a
// health probe.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/donhauser/atlas-agent/agent"
	"github.com/donhauser/atlas-agent/model"
)

// Server wires the agent into an http.Handler.
type Server struct {
	agent  *agent.Agent
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates the HTTP surface over a.
func NewServer(a *agent.Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{agent: a, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /api/agent/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/agent/stream", s.handleStream)
	s.mux.HandleFunc("POST /api/agent/confirm", s.handleConfirm)
	s.mux.HandleFunc("DELETE /api/agent/session/{id}", s.handleClearSession)
	s.mux.HandleFunc("GET /api/agent/health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req agent.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp := s.agent.Chat(r.Context(), req)
	s.writeJSON(w, http.StatusOK, resp)
}

// confirmRequest is the confirmation endpoint's body: the session the
// pending calls belong to and the approved calls themselves.
type confirmRequest struct {
	SessionID string                  `json:"sessionId"`
	ToolCalls []model.ToolCallRequest `json:"toolCalls"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.SessionID == "" || len(req.ToolCalls) == 0 {
		s.writeError(w, http.StatusBadRequest, "sessionId and toolCalls are required")
		return
	}

	results, err := s.agent.Confirm(r.Context(), req.SessionID, req.ToolCalls)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.agent.Clear(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cleared": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agent.Health())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}
