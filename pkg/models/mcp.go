package models

import "time"

// MCPDescriptor is an opaque tool-server descriptor. The core treats it
// as a label + trust annotation and does not interpret the Payload.
type MCPDescriptor struct {
	Name       string         `json:"name"`
	TrustLevel TrustLevel     `json:"trust_level,omitempty"` // defaults to TrustDirect when empty
	Payload    map[string]any `json:"payload,omitempty"`
	PluginSlug string         `json:"plugin_slug,omitempty"` // set when merged in from a plugin
}

// EffectiveTrust returns the descriptor's trust tag, defaulting to
// TrustDirect (most privileged, hence most restricted exposure) when
// unset, per spec.md §4.1.
func (m MCPDescriptor) EffectiveTrust() TrustLevel {
	if m.TrustLevel == "" {
		return TrustDirect
	}
	return m.TrustLevel
}

// PluginDescriptor indexes a directory + manifest exposing skills,
// agents, and MCP servers.
type PluginDescriptor struct {
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	Source      string          `json:"source"` // "parachute-managed" | "user"
	SourceURL   string          `json:"source_url,omitempty"`
	InstalledAt time.Time       `json:"installed_at"`
	Skills      []string        `json:"skills,omitempty"`
	Agents      []string        `json:"agents,omitempty"`
	MCPServers  []MCPDescriptor `json:"mcp_servers,omitempty"`
	Dir         string          `json:"-"`
}

// Capabilities is the raw, unfiltered set of capabilities discovered
// for a vault snapshot, before trust/workspace filtering (C1).
type Capabilities struct {
	MCPs    []MCPDescriptor
	Skills  []string
	Agents  []string
	Plugins []PluginDescriptor
}
