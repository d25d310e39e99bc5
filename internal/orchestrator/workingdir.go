package orchestrator

import (
	"path/filepath"
	"strings"
)

// ResolveWorkingDir implements Phase 2: explicit param, then metadata
// override, then the session's stored value, then the vault root. If
// the resolved directory does not exist on disk, fall back to the cwd
// of a discovered transcript, else the vault root.
func ResolveWorkingDir(explicit, metadataOverride, sessionStored, vaultRoot string, exists func(string) bool, discoveredTranscriptCwd string) string {
	candidate := firstNonEmpty(explicit, metadataOverride, sessionStored, vaultRoot)
	if exists(candidate) {
		return candidate
	}
	if discoveredTranscriptCwd != "" && exists(discoveredTranscriptCwd) {
		return discoveredTranscriptCwd
	}
	return vaultRoot
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DisplayPath rewrites an absolute host path to its leaf name unless it
// is already vault-relative, per Phase 2's "absolute host paths leaking
// into display must be rewritten" rule.
func DisplayPath(path, vaultRoot string) string {
	if path == "" {
		return path
	}
	if rel, err := filepath.Rel(vaultRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.Join("/vault", rel)
	}
	return filepath.Base(path)
}
