package orchestrator

import (
	"github.com/haasonsaas/companion/internal/capfilter"
	"github.com/haasonsaas/companion/pkg/models"
)

// ResolveTrust implements Phase 5's priority order: explicit client
// param, then the session's stored trust, then the workspace default,
// then direct. Each non-empty candidate is normalized via capfilter
// before being accepted, so a legacy synonym at any priority level
// still resolves correctly.
func ResolveTrust(clientParam, sessionStored, workspaceDefault string) (models.TrustLevel, error) {
	for _, candidate := range []string{clientParam, sessionStored, workspaceDefault} {
		if candidate == "" {
			continue
		}
		return capfilter.NormalizeTrust(candidate)
	}
	return models.TrustDirect, nil
}
