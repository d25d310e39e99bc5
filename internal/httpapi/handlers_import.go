package httpapi

import (
	"io"
	"net/http"

	"github.com/haasonsaas/companion/internal/importer"
)

// handleImport accepts a raw Claude/ChatGPT export JSON body and
// writes every parsed conversation to its markdown transcript, per
// spec.md §6's "POST /import" row.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 256<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	result := importer.Import(s.deps.VaultRoot, data)
	writeJSON(w, http.StatusOK, result)
}
