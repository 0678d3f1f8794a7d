package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/donhauser/atlas-agent/agent"
)

// handleStream is the SSE variant of the chat endpoint. Events:
// start {sessionId}, content {text} per chunk, done {response} with
// the full ChatResponse, error {message} on failure.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req agent.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Resolve the session up front so the start event announces the
	// real id even for a fresh session.
	req.SessionID = s.agent.EnsureSession(r.Context(), req.SessionID)
	writeEvent(w, "start", map[string]any{"sessionId": req.SessionID})
	flusher.Flush()

	chunks := make(chan string)
	type outcome struct {
		resp agent.ChatResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := s.agent.Stream(r.Context(), req, chunks)
		close(chunks)
		done <- outcome{resp, err}
	}()

	for chunk := range chunks {
		writeEvent(w, "content", map[string]any{"text": chunk})
		flusher.Flush()
	}

	out := <-done
	if out.err != nil {
		s.logger.Warn("stream turn failed", "error", out.err)
		writeEvent(w, "error", map[string]any{"message": out.err.Error()})
		flusher.Flush()
		return
	}
	writeEvent(w, "done", out.resp)
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
