// Package capfilter implements C1: the pure trust/workspace capability
// filter. It is grounded on _examples/original_source's
// parachute/core/capability_filter.py (trust_rank / filter_by_trust_level
// / filter_capabilities) re-expressed with the spec's canonical trust
// names and wired into this module's models.MCPDescriptor /
// WorkspaceCapabilities types.
package capfilter

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/companion/pkg/models"
)

// legacyTrustSynonyms maps accepted legacy spellings to the canonical
// trust level, per spec.md §3 invariant (iii).
var legacyTrustSynonyms = map[string]models.TrustLevel{
	"trusted":   models.TrustDirect,
	"full":      models.TrustDirect,
	"vault":     models.TrustDirect,
	"untrusted": models.TrustSandboxed,
}

// trustRank gives the restrictiveness order: direct < sandboxed.
var trustRank = map[models.TrustLevel]int{
	models.TrustDirect:    0,
	models.TrustSandboxed: 1,
}

// NormalizeTrust canonicalizes a trust level string, accepting legacy
// synonyms on input. It rejects unknown strings with an error that
// lists the accepted values, and is idempotent: normalizing an already
// canonical value returns it unchanged.
func NormalizeTrust(raw string) (models.TrustLevel, error) {
	key := models.TrustLevel(strings.ToLower(strings.TrimSpace(raw)))
	if key == models.TrustDirect || key == models.TrustSandboxed {
		return key, nil
	}
	if canonical, ok := legacyTrustSynonyms[string(key)]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("unknown trust level %q: accepted values are direct, sandboxed, trusted, full, vault, untrusted", raw)
}

// Rank returns the restrictiveness rank of an already-normalized trust
// level. Unrecognized values rank as TrustDirect (0).
func Rank(level models.TrustLevel) int {
	if r, ok := trustRank[level]; ok {
		return r
	}
	return 0
}
