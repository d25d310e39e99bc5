package sandbox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TurnEnv is the set of values the container needs that must not leak
// via the host process table (`docker run -e`), so they are delivered
// through a restricted-permission env file instead, per spec.md §4.3.
type TurnEnv struct {
	SessionID       string
	AgentType       string
	Credential      string
	WorkingDir      string
	MCPNames        []string
	ResumeContainer bool   // true: the container should resume its own persistent session state
	InjectedHistory string // tier-2 fallback text context, base64-encoded on disk to survive newlines
}

// WriteEnvFile renders TurnEnv as a "KEY=value" file with 0600
// permissions in dir, returning its path. Caller is responsible for
// removing it once the container exits.
func WriteEnvFile(dir string, env TurnEnv) (string, error) {
	path := filepath.Join(dir, "sandbox-"+randomHex(4)+".env")
	lines := []string{
		"SESSION_ID=" + env.SessionID,
		"AGENT_TYPE=" + env.AgentType,
		"AGENT_CREDENTIAL=" + env.Credential,
		"WORKING_DIRECTORY=" + env.WorkingDir,
		"MCP_NAMES=" + strings.Join(env.MCPNames, ","),
		"RESUME_CONTAINER=" + strconv.FormatBool(env.ResumeContainer),
		"INJECTED_HISTORY_B64=" + base64.StdEncoding.EncodeToString([]byte(env.InjectedHistory)),
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write sandbox env file: %w", err)
	}
	return path, nil
}

// WriteCapabilitiesFile renders the filtered capability set as JSON,
// mounted read-only into the container so it can decide which MCP
// servers, skills, and agents to expose without a second round-trip.
func WriteCapabilitiesFile(dir string, capabilities any) (string, error) {
	path := filepath.Join(dir, "capabilities-"+randomHex(4)+".json")
	data, err := json.Marshal(capabilities)
	if err != nil {
		return "", fmt.Errorf("marshal sandbox capabilities: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write sandbox capabilities file: %w", err)
	}
	return path, nil
}

// CleanupArtifacts removes temp files written for one turn. Errors are
// swallowed: a leaked temp file is not worth failing an otherwise
// complete turn over, mirroring the original's `finally` block.
func CleanupArtifacts(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
