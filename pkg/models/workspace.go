package models

import "time"

// CapabilitySet is one of the three shapes a workspace capability field
// can take: the literal "all", the literal "none", or an explicit list
// of names. Zero value behaves as "all" is NOT assumed — callers must
// check IsAll/IsNone explicitly, matching the spec's requirement that
// every field is one of exactly these three shapes.
type CapabilitySet struct {
	All   bool
	None  bool
	Names []string
}

// AllCapabilities returns the "all" capability set.
func AllCapabilities() CapabilitySet { return CapabilitySet{All: true} }

// NoCapabilities returns the "none" capability set.
func NoCapabilities() CapabilitySet { return CapabilitySet{None: true} }

// NamedCapabilities returns an explicit-list capability set.
func NamedCapabilities(names ...string) CapabilitySet {
	return CapabilitySet{Names: append([]string(nil), names...)}
}

// MarshalYAML renders the capability set as "all", "none", or a list.
func (c CapabilitySet) MarshalYAML() (any, error) {
	switch {
	case c.All:
		return "all", nil
	case c.None:
		return "none", nil
	default:
		return c.Names, nil
	}
}

// UnmarshalYAML parses "all", "none", or a sequence of names.
func (c *CapabilitySet) UnmarshalYAML(unmarshal func(any) error) error {
	var asString string
	if err := unmarshal(&asString); err == nil {
		switch asString {
		case "all":
			*c = CapabilitySet{All: true}
		case "none":
			*c = CapabilitySet{None: true}
		default:
			*c = CapabilitySet{Names: []string{asString}}
		}
		return nil
	}
	var asList []string
	if err := unmarshal(&asList); err != nil {
		return err
	}
	*c = CapabilitySet{Names: asList}
	return nil
}

// WorkspaceCapabilities is the four-field capability record of a
// workspace: mcps, skills, agents, plugins.
type WorkspaceCapabilities struct {
	MCPs            CapabilitySet `yaml:"mcps"`
	Skills          CapabilitySet `yaml:"skills"`
	Agents          CapabilitySet `yaml:"agents"`
	Plugins         CapabilitySet `yaml:"plugins"`
	IncludeUser     bool          `yaml:"include_user"`
	ExtraPluginDirs []string      `yaml:"extra_plugin_dirs,omitempty"`
}

// Workspace is a named capability bundle + defaults persisted at
// <vault>/.parachute/workspaces/<slug>/config.yaml.
type Workspace struct {
	Name         string                `yaml:"name" json:"name"`
	Slug         string                `yaml:"-" json:"slug"`
	Description  string                `yaml:"description,omitempty" json:"description,omitempty"`
	DefaultTrust TrustLevel            `yaml:"default_trust" json:"default_trust"`
	WorkingDir   string                `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`
	Model        string                `yaml:"model,omitempty" json:"model,omitempty"`
	Capabilities WorkspaceCapabilities `yaml:"capabilities" json:"capabilities"`
	CreatedAt    time.Time             `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time             `yaml:"updated_at" json:"updated_at"`
}
