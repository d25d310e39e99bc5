package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/haasonsaas/companion/internal/sessions"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := sessions.ListFilters{
		Module:    q.Get("module"),
		Workspace: q.Get("workspace"),
		Search:    q.Get("search"),
		AgentType: q.Get("agent_type"),
	}
	if v := q.Get("archived"); v != "" {
		archived := v == "true"
		filters.Archived = &archived
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filters.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filters.Offset = v
	}

	list, err := s.deps.Sessions.List(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := s.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type updateSessionRequest struct {
	Title      *string `json:"title,omitempty"`
	Model      *string `json:"model,omitempty"`
	Summary    *string `json:"summary,omitempty"`
	WorkingDir *string `json:"working_directory,omitempty"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var body updateSessionRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	updated, err := s.deps.Sessions.Update(r.Context(), id, sessions.Patch{
		Title: body.Title, Model: body.Model, Summary: body.Summary, WorkingDir: body.WorkingDir,
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.deps.Sessions.Delete(r.Context(), id); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := s.deps.Sessions.Archive(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleUnarchiveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := s.deps.Sessions.Unarchive(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleGetTranscript returns the reconstructed message transcript for
// a session, per spec.md §6's "GET /sessions/{id}/transcript" row.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, messages, err := s.deps.Sessions.GetWithMessages(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  session,
		"messages": messages,
	})
}

func writeSessionError(w http.ResponseWriter, err error) {
	if err == sessions.ErrNotFound {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
