package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haasonsaas/companion/internal/workspaces"
	"github.com/haasonsaas/companion/pkg/models"
)

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Workspaces.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	ws, err := s.deps.Workspaces.Get(r.Context(), slug)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var ws models.Workspace
	if err := readJSON(r, &ws); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := s.deps.Workspaces.Create(r.Context(), ws)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var ws models.Workspace
	if err := readJSON(r, &ws); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	updated, err := s.deps.Workspaces.Update(r.Context(), slug, ws)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := s.deps.Workspaces.Delete(r.Context(), slug); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeWorkspaceError(w http.ResponseWriter, err error) {
	if err == workspaces.ErrNotFound {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
