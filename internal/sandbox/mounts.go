package sandbox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// EphemeralName returns the conventional name for a one-turn container:
// "parachute-sandbox-<id8>".
func EphemeralName() string {
	return "parachute-sandbox-" + randomHex(4)
}

// PersistentName returns the conventional name for a workspace's
// long-lived container: "parachute-env-<workspace-slug>".
func PersistentName(workspaceSlug string) string {
	return "parachute-env-" + workspaceSlug
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is unrecoverable at this layer; fall back
		// to a fixed marker rather than panicking mid-turn.
		return "00000000"[:n*2]
	}
	return hex.EncodeToString(buf)
}

// stripGlobSuffix removes a trailing glob pattern ("/**", "/*", "*")
// from an allowed vault path so the remaining prefix can be used as a
// mount source, per spec.md §4.3.
func stripGlobSuffix(pattern string) string {
	trimmed := pattern
	for _, suffix := range []string{"/**", "/*", "*"} {
		if strings.HasSuffix(trimmed, suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	return strings.TrimSuffix(trimmed, "/")
}

// BuildVaultMounts implements the vault mount rule: each allowed path
// (glob suffix stripped) is mounted read-write at its /vault/… target;
// with no allowed paths, the whole vault is mounted read-only at
// /vault.
func BuildVaultMounts(vaultRoot string, allowedPaths []string) []MountSpec {
	if len(allowedPaths) == 0 {
		return []MountSpec{{Source: vaultRoot, Target: "/vault", ReadOnly: true}}
	}
	mounts := make([]MountSpec, 0, len(allowedPaths))
	for _, raw := range allowedPaths {
		logical := stripGlobSuffix(raw)
		logical = strings.TrimPrefix(logical, "/vault")
		logical = strings.TrimPrefix(logical, "/")
		target := "/vault"
		if logical != "" {
			target = "/vault/" + logical
		}
		source := filepath.Join(vaultRoot, logical)
		mounts = append(mounts, MountSpec{Source: source, Target: target, ReadOnly: false})
	}
	return mounts
}

// BuildSupportMounts adds the read-only MCP config, skills directory,
// custom agents directory, and CLAUDE.md mounts common to every
// sandbox invocation.
func BuildSupportMounts(vaultRoot, mcpConfigPath, skillsDir, agentsDir string) []MountSpec {
	return []MountSpec{
		{Source: mcpConfigPath, Target: "/config/mcp.json", ReadOnly: true},
		{Source: skillsDir, Target: "/skills", ReadOnly: true},
		{Source: agentsDir, Target: "/agents", ReadOnly: true},
		{Source: filepath.Join(vaultRoot, "CLAUDE.md"), Target: "/vault/CLAUDE.md", ReadOnly: true},
	}
}

// BuildPluginMounts mounts each plugin directory at /plugins/plugin-<i>
// in discovery order.
func BuildPluginMounts(pluginDirs []string) []MountSpec {
	mounts := make([]MountSpec, 0, len(pluginDirs))
	for i, dir := range pluginDirs {
		mounts = append(mounts, MountSpec{
			Source:   dir,
			Target:   fmt.Sprintf("/plugins/plugin-%d", i),
			ReadOnly: true,
		})
	}
	return mounts
}

// BuildPersistentMounts adds the per-workspace home directory and
// shared read-only tools volume used only by persistent containers.
func BuildPersistentMounts(homeDir, toolsVolume string) []MountSpec {
	mounts := []MountSpec{{Source: homeDir, Target: "/home/sandbox", ReadOnly: false}}
	if toolsVolume != "" {
		mounts = append(mounts, MountSpec{Source: toolsVolume, Target: "/opt/tools", ReadOnly: true})
	}
	return mounts
}
