package capfilter

import "github.com/haasonsaas/companion/pkg/models"

// FilterByTrust applies stage 1 (spec.md §4.1): an MCP is visible to a
// session if its trust tag is at least as restrictive as the session's
// trust. Order is preserved.
func FilterByTrust(mcps []models.MCPDescriptor, sessionTrust models.TrustLevel) []models.MCPDescriptor {
	sessionRank := Rank(sessionTrust)
	out := make([]models.MCPDescriptor, 0, len(mcps))
	for _, mcp := range mcps {
		if Rank(mcp.EffectiveTrust()) >= sessionRank {
			out = append(out, mcp)
		}
	}
	return out
}

// filterNames applies the three-shape capability-set rule (§4.1 stage
// 2) to a name-ordered list, preserving input order.
func filterNames(names []string, set models.CapabilitySet) []string {
	switch {
	case set.All:
		return append([]string(nil), names...)
	case set.None:
		return []string{}
	default:
		allowed := make(map[string]bool, len(set.Names))
		for _, n := range set.Names {
			allowed[n] = true
		}
		out := make([]string, 0, len(names))
		for _, n := range names {
			if allowed[n] {
				out = append(out, n)
			}
		}
		return out
	}
}

// FilterMCPsByWorkspace applies the workspace capability set to an MCP
// list by name, preserving order.
func FilterMCPsByWorkspace(mcps []models.MCPDescriptor, set models.CapabilitySet) []models.MCPDescriptor {
	switch {
	case set.All:
		return append([]models.MCPDescriptor(nil), mcps...)
	case set.None:
		return []models.MCPDescriptor{}
	default:
		allowed := make(map[string]bool, len(set.Names))
		for _, n := range set.Names {
			allowed[n] = true
		}
		out := make([]models.MCPDescriptor, 0, len(mcps))
		for _, mcp := range mcps {
			if allowed[mcp.Name] {
				out = append(out, mcp)
			}
		}
		return out
	}
}

// FilterSkillsByWorkspace applies the workspace capability set to a
// skill name list.
func FilterSkillsByWorkspace(skills []string, set models.CapabilitySet) []string {
	return filterNames(skills, set)
}

// FilterAgentsByWorkspace applies the workspace capability set to an
// agent name list.
func FilterAgentsByWorkspace(agents []string, set models.CapabilitySet) []string {
	return filterNames(agents, set)
}

// wellKnownUserPluginSlug is the slug of the always-discovered
// user-managed plugin directory referenced by IncludeUser.
const wellKnownUserPluginSlug = "user"

// FilterPluginsByWorkspace applies the plugin capability rule:
// include_user=false excludes the well-known user plugin; extra plugin
// directories listed on the workspace are additionally included when
// present in discovered, per spec.md §4.1.
func FilterPluginsByWorkspace(discovered []models.PluginDescriptor, caps models.WorkspaceCapabilities) []models.PluginDescriptor {
	bySlug := make(map[string]models.PluginDescriptor, len(discovered))
	order := make([]string, 0, len(discovered))
	for _, p := range discovered {
		bySlug[p.Slug] = p
		order = append(order, p.Slug)
	}

	base := filterNames(order, caps.Plugins)
	included := make(map[string]bool, len(base)+len(caps.ExtraPluginDirs))
	result := make([]models.PluginDescriptor, 0, len(base))
	for _, slug := range base {
		if slug == wellKnownUserPluginSlug && !caps.IncludeUser {
			continue
		}
		if !included[slug] {
			included[slug] = true
			result = append(result, bySlug[slug])
		}
	}
	for _, slug := range caps.ExtraPluginDirs {
		if p, ok := bySlug[slug]; ok && !included[slug] {
			included[slug] = true
			result = append(result, p)
		}
	}
	return result
}

// Apply runs both filter stages in order (trust, then workspace) over a
// full discovered capability set, returning the effective set passed to
// the agent runtime.
func Apply(discovered models.Capabilities, sessionTrust models.TrustLevel, caps *models.WorkspaceCapabilities) models.Capabilities {
	mcps := FilterByTrust(discovered.MCPs, sessionTrust)
	skills := append([]string(nil), discovered.Skills...)
	agents := append([]string(nil), discovered.Agents...)
	plugins := append([]models.PluginDescriptor(nil), discovered.Plugins...)

	if caps != nil {
		mcps = FilterMCPsByWorkspace(mcps, caps.MCPs)
		skills = FilterSkillsByWorkspace(skills, caps.Skills)
		agents = FilterAgentsByWorkspace(agents, caps.Agents)
		plugins = FilterPluginsByWorkspace(plugins, *caps)
	}

	return models.Capabilities{MCPs: mcps, Skills: skills, Agents: agents, Plugins: plugins}
}
