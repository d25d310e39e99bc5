package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/haasonsaas/companion/internal/orchestrator"
	"github.com/haasonsaas/companion/pkg/models"
)

type chatRequest struct {
	SessionID            string              `json:"session_id"`
	Module               string              `json:"module"`
	Message              string              `json:"message"`
	SystemPromptOverride string              `json:"system_prompt_override,omitempty"`
	WorkingDir           string              `json:"working_directory,omitempty"`
	AgentType            string              `json:"agent_type,omitempty"`
	Attachments          []models.Attachment `json:"attachments,omitempty"`
	Trust                string              `json:"trust,omitempty"`
	WorkspaceID          string              `json:"workspace_id,omitempty"`
	Model                string              `json:"model,omitempty"`
	ContextSelections    []string            `json:"context_selections,omitempty"`
	ContinuedFrom        string              `json:"continued_from,omitempty"`
}

// handleChat drives one orchestrator turn and streams its normalized
// events back over SSE, per spec.md §6's "POST /chat (SSE)" row.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not configured")
		return
	}

	var req chatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	events, err := s.deps.Orchestrator.RunTurn(r.Context(), orchestrator.TurnRequest{
		UserMessage:          req.Message,
		SessionID:            req.SessionID,
		Module:               req.Module,
		SystemPromptOverride: req.SystemPromptOverride,
		WorkingDir:           req.WorkingDir,
		AgentType:            req.AgentType,
		Attachments:          req.Attachments,
		TrustOverride:        req.Trust,
		WorkspaceID:          req.WorkspaceID,
		ModelOverride:        req.Model,
		ContextFileSelection: req.ContextSelections,
		ContinuedFrom:        req.ContinuedFrom,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	streamEvents(w, r, events)
}

// handleAbort signals cancellation for an in-flight turn.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not configured")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	ok := s.deps.Orchestrator.Cancel(sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// handleAnswer delivers an answer to a pending user_question, keyed by
// the permission broker's request id ("{session_id}-q-{tool_use_id}").
// The question is looked up once: if the broker has not registered it
// yet, the request fails with 404 and is not retried.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if s.deps.Brokers == nil {
		writeError(w, http.StatusServiceUnavailable, "permission broker not configured")
		return
	}
	requestID := chi.URLParam(r, "requestID")

	var body answerRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sessionID := sessionIDFromRequestID(requestID)
	broker, ok := s.deps.Brokers.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active session for this request id")
		return
	}
	if !broker.Answer(requestID, body.Answer) {
		writeError(w, http.StatusNotFound, "no pending question for this request id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

// sessionIDFromRequestID recovers the session id from a broker request
// id of the form "{session_id}-q-{tool_use_id}".
func sessionIDFromRequestID(requestID string) string {
	if idx := strings.LastIndex(requestID, "-q-"); idx >= 0 {
		return requestID[:idx]
	}
	return requestID
}
