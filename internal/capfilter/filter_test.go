package capfilter

import (
	"testing"

	"github.com/haasonsaas/companion/pkg/models"
)

func TestNormalizeTrustLegacySynonyms(t *testing.T) {
	cases := map[string]models.TrustLevel{
		"direct":    models.TrustDirect,
		"sandboxed": models.TrustSandboxed,
		"trusted":   models.TrustDirect,
		"full":      models.TrustDirect,
		"vault":     models.TrustDirect,
		"untrusted": models.TrustSandboxed,
		"DIRECT":    models.TrustDirect,
	}
	for in, want := range cases {
		got, err := NormalizeTrust(in)
		if err != nil {
			t.Fatalf("NormalizeTrust(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("NormalizeTrust(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTrustRejectsUnknown(t *testing.T) {
	_, err := NormalizeTrust("godmode")
	if err == nil {
		t.Fatal("expected error for unknown trust level")
	}
}

func TestNormalizeTrustIdempotent(t *testing.T) {
	first, err := NormalizeTrust("trusted")
	if err != nil {
		t.Fatal(err)
	}
	second, err := NormalizeTrust(string(first))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("normalization not idempotent: %q != %q", first, second)
	}
}

func sampleMCPs() []models.MCPDescriptor {
	return []models.MCPDescriptor{
		{Name: "fs", TrustLevel: models.TrustDirect},
		{Name: "web", TrustLevel: models.TrustSandboxed},
		{Name: "legacy"}, // untagged defaults to direct
	}
}

func TestFilterByTrust_DirectExcludedFromSandboxed(t *testing.T) {
	filtered := FilterByTrust(sampleMCPs(), models.TrustSandboxed)
	var names []string
	for _, m := range filtered {
		names = append(names, m.Name)
	}
	if len(names) != 1 || names[0] != "web" {
		t.Errorf("expected only 'web' visible to sandboxed session, got %v", names)
	}
}

func TestFilterByTrust_SandboxedVisibleToBoth(t *testing.T) {
	directView := FilterByTrust(sampleMCPs(), models.TrustDirect)
	sandboxedView := FilterByTrust(sampleMCPs(), models.TrustSandboxed)

	hasWeb := func(mcps []models.MCPDescriptor) bool {
		for _, m := range mcps {
			if m.Name == "web" {
				return true
			}
		}
		return false
	}
	if !hasWeb(directView) || !hasWeb(sandboxedView) {
		t.Error("sandboxed-tagged MCP must be visible at both trust levels")
	}
}

func TestWorkspaceFilter_AllIsIdentity(t *testing.T) {
	names := []string{"a", "b", "c"}
	got := filterNames(names, models.AllCapabilities())
	if len(got) != 3 {
		t.Errorf("expected identity, got %v", got)
	}
}

func TestWorkspaceFilter_NoneIsEmpty(t *testing.T) {
	names := []string{"a", "b", "c"}
	got := filterNames(names, models.NoCapabilities())
	if len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestWorkspaceFilter_ListRetainsOnlyNamed(t *testing.T) {
	names := []string{"a", "b", "c"}
	got := filterNames(names, models.NamedCapabilities("c", "a"))
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("expected order-preserving subset [a c], got %v", got)
	}
}

func TestFilterPluginsByWorkspace_ExcludesUserWhenDisabled(t *testing.T) {
	discovered := []models.PluginDescriptor{
		{Slug: "user"},
		{Slug: "acme-tools"},
	}
	caps := models.WorkspaceCapabilities{
		Plugins:     models.AllCapabilities(),
		IncludeUser: false,
	}
	got := FilterPluginsByWorkspace(discovered, caps)
	for _, p := range got {
		if p.Slug == "user" {
			t.Error("expected well-known user plugin to be excluded")
		}
	}
	if len(got) != 1 || got[0].Slug != "acme-tools" {
		t.Errorf("got %+v", got)
	}
}

func TestFilterPluginsByWorkspace_ExtraDirsAdded(t *testing.T) {
	discovered := []models.PluginDescriptor{
		{Slug: "user"},
		{Slug: "acme-tools"},
		{Slug: "side-plugin"},
	}
	caps := models.WorkspaceCapabilities{
		Plugins:         models.NoCapabilities(),
		IncludeUser:     false,
		ExtraPluginDirs: []string{"side-plugin"},
	}
	got := FilterPluginsByWorkspace(discovered, caps)
	if len(got) != 1 || got[0].Slug != "side-plugin" {
		t.Errorf("expected extra plugin dir to be included, got %+v", got)
	}
}

func TestApply_Determinism(t *testing.T) {
	discovered := models.Capabilities{
		MCPs:   sampleMCPs(),
		Skills: []string{"s1", "s2"},
		Agents: []string{"a1", "a2"},
	}
	caps := &models.WorkspaceCapabilities{
		MCPs:   models.AllCapabilities(),
		Skills: models.NamedCapabilities("s2"),
		Agents: models.AllCapabilities(),
	}

	first := Apply(discovered, models.TrustDirect, caps)
	second := Apply(discovered, models.TrustDirect, caps)
	if len(first.Skills) != 1 || first.Skills[0] != "s2" {
		t.Errorf("unexpected skills filter result: %v", first.Skills)
	}
	if len(first.MCPs) != len(second.MCPs) {
		t.Error("expected deterministic filtering across calls")
	}
}
