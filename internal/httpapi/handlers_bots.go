package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haasonsaas/companion/internal/connectors"
)

func (s *Server) handleGetBotsConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := connectors.LoadBotsConfig(s.deps.VaultRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Never echo tokens back over the wire.
	redacted := connectors.BotsConfig{Platforms: map[string]connectors.Config{}}
	for platform, pc := range cfg.Platforms {
		pc.Token = ""
		redacted.Platforms[platform] = pc
	}
	writeJSON(w, http.StatusOK, redacted)
}

func (s *Server) handlePostBotsConfig(w http.ResponseWriter, r *http.Request) {
	var cfg connectors.BotsConfig
	if err := readJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := connectors.SaveBotsConfig(s.deps.VaultRoot, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleBotStart(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if s.deps.Connectors == nil {
		writeError(w, http.StatusServiceUnavailable, "connector registry not configured")
		return
	}
	adapter, ok := s.deps.Connectors.Get(platform)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown platform: "+platform)
		return
	}
	if err := adapter.Start(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"platform": platform, "state": string(adapter.State())})
}

func (s *Server) handleBotStop(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if s.deps.Connectors == nil {
		writeError(w, http.StatusServiceUnavailable, "connector registry not configured")
		return
	}
	adapter, ok := s.deps.Connectors.Get(platform)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown platform: "+platform)
		return
	}
	if err := adapter.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"platform": platform, "state": string(adapter.State())})
}

func (s *Server) handleBotTest(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if s.deps.Connectors == nil {
		writeError(w, http.StatusServiceUnavailable, "connector registry not configured")
		return
	}
	adapter, ok := s.deps.Connectors.Get(platform)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown platform: "+platform)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"platform": platform, "state": string(adapter.State())})
}

type pairingDecisionRequest struct {
	ModuleSlug string `json:"module_slug"`
}

func (s *Server) handlePairingApprove(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pairing == nil {
		writeError(w, http.StatusServiceUnavailable, "pairing store not configured")
		return
	}
	code := chi.URLParam(r, "code")
	var body pairingDecisionRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.deps.Pairing.Confirm(code, body.ModuleSlug); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": true})
}

// handlePairingDeny simply lets the pairing request expire; there is
// no persisted "denied" state, matching the original pairing flow's
// TTL-only lifecycle.
func (s *Server) handlePairingDeny(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"denied": true})
}
