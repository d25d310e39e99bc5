// Package discovery implements the filesystem side of Phase 4
// (capability discovery): it walks a vault's global and plugin
// directories and returns the raw, unfiltered models.Capabilities
// consumed by internal/capfilter's trust/workspace filters. Grounded
// on _examples/original_source/computer/parachute/core/module_loader.py's
// sorted-directory-scan-plus-manifest idiom and on
// _examples/haasonsaas-nexus/internal/channels's YAML-manifest
// decoding style.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/companion/pkg/models"
)

// Layout names the vault-relative directories this discoverer reads.
// global skills/agents live directly under these directories as named
// entries; plugins are subdirectories carrying their own manifest.
const (
	skillsDir  = "skills"
	agentsDir  = "agents"
	pluginsDir = "plugins"
	mcpFile    = "mcp.yaml"
	parachute  = ".parachute"
)

// mcpConfigFile is the decoded shape of <vault>/.parachute/mcp.yaml.
type mcpConfigFile struct {
	Servers []models.MCPDescriptor `yaml:"servers"`
}

// pluginManifest is the decoded shape of a plugin directory's
// plugin.yaml.
type pluginManifest struct {
	Name        string                  `yaml:"name"`
	Version     string                  `yaml:"version"`
	Description string                  `yaml:"description"`
	Source      string                  `yaml:"source"`
	SourceURL   string                  `yaml:"source_url"`
	Skills      []string                `yaml:"skills"`
	Agents      []string                `yaml:"agents"`
	MCPServers  []models.MCPDescriptor  `yaml:"mcp_servers"`
}

// Discoverer implements orchestrator.CapabilityDiscoverer by reading a
// vault's global config plus every installed plugin. Both Discover's
// parameters are accepted for interface parity; this implementation is
// vault-global and does not vary by working directory or agent type,
// since SPEC_FULL.md's capability set is scoped per-vault, not per-turn.
type Discoverer struct {
	vaultRoot string
}

// New returns a Discoverer rooted at vaultRoot.
func New(vaultRoot string) *Discoverer {
	return &Discoverer{vaultRoot: vaultRoot}
}

// Discover walks .parachute/mcp.yaml, .parachute/skills/,
// .parachute/agents/, and .parachute/plugins/*/plugin.yaml and returns
// the merged, unfiltered capability set.
func (d *Discoverer) Discover(ctx context.Context, workingDir, agentType string) (models.Capabilities, error) {
	base := filepath.Join(d.vaultRoot, parachute)

	mcps, err := d.discoverMCPs(base)
	if err != nil {
		return models.Capabilities{}, err
	}
	skills, err := listDirNames(filepath.Join(base, skillsDir))
	if err != nil {
		return models.Capabilities{}, err
	}
	agents, err := listDirNames(filepath.Join(base, agentsDir))
	if err != nil {
		return models.Capabilities{}, err
	}
	plugins, err := d.discoverPlugins(base)
	if err != nil {
		return models.Capabilities{}, err
	}

	for _, p := range plugins {
		skills = append(skills, p.Skills...)
		agents = append(agents, p.Agents...)
		for _, m := range p.MCPServers {
			m.PluginSlug = p.Slug
			mcps = append(mcps, m)
		}
	}

	return models.Capabilities{MCPs: mcps, Skills: skills, Agents: agents, Plugins: plugins}, nil
}

func (d *Discoverer) discoverMCPs(base string) ([]models.MCPDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(base, mcpFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg mcpConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg.Servers, nil
}

func (d *Discoverer) discoverPlugins(base string) ([]models.PluginDescriptor, error) {
	root := filepath.Join(base, pluginsDir)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]models.PluginDescriptor, 0, len(names))
	for _, slug := range names {
		dir := filepath.Join(root, slug)
		manifestPath := filepath.Join(dir, "plugin.yaml")
		data, err := os.ReadFile(manifestPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var m pluginManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		info, statErr := os.Stat(manifestPath)
		installedAt := time.Now()
		if statErr == nil {
			installedAt = info.ModTime()
		}
		source := m.Source
		if source == "" {
			source = "user"
		}
		out = append(out, models.PluginDescriptor{
			Slug:        slug,
			Name:        firstNonEmpty(m.Name, slug),
			Version:     m.Version,
			Description: m.Description,
			Source:      source,
			SourceURL:   m.SourceURL,
			InstalledAt: installedAt,
			Skills:      m.Skills,
			Agents:      m.Agents,
			MCPServers:  m.MCPServers,
			Dir:         dir,
		})
	}
	return out, nil
}

func listDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
