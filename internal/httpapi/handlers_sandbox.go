package httpapi

import (
	"net/http"

	"github.com/haasonsaas/companion/pkg/models"
)

// handleSandboxBuild streams "docker build" output for the configured
// sandbox image over SSE.
func (s *Server) handleSandboxBuild(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sandbox == nil {
		writeError(w, http.StatusServiceUnavailable, "sandbox controller not configured")
		return
	}
	buildContext := r.URL.Query().Get("context")
	if buildContext == "" {
		buildContext = "."
	}

	events := make(chan models.Event, 16)
	go func() {
		defer close(events)
		if err := s.deps.Sandbox.Build(r.Context(), buildContext, events); err != nil {
			events <- models.Event{Type: models.EventError, Error: &models.ErrorPayload{Message: err.Error()}}
			return
		}
		events <- models.Event{Type: models.EventDone, Done: &models.DonePayload{Response: "build complete"}}
	}()
	streamEvents(w, r, events)
}

func (s *Server) handleSandboxDefaultStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sandbox == nil {
		writeError(w, http.StatusServiceUnavailable, "sandbox controller not configured")
		return
	}
	if err := s.deps.Sandbox.StopDefaultContainer(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}
