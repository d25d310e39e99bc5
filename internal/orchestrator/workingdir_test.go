package orchestrator

import "testing"

func alwaysExists(paths ...string) func(string) bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(p string) bool { return set[p] }
}

func TestResolveWorkingDir_PriorityOrder(t *testing.T) {
	exists := alwaysExists("/explicit", "/metadata", "/stored", "/vault")
	got := ResolveWorkingDir("/explicit", "/metadata", "/stored", "/vault", exists, "")
	if got != "/explicit" {
		t.Errorf("expected explicit param to win, got %q", got)
	}

	got = ResolveWorkingDir("", "/metadata", "/stored", "/vault", exists, "")
	if got != "/metadata" {
		t.Errorf("expected metadata override to win over stored, got %q", got)
	}

	got = ResolveWorkingDir("", "", "/stored", "/vault", exists, "")
	if got != "/stored" {
		t.Errorf("expected stored value to win over vault root, got %q", got)
	}

	got = ResolveWorkingDir("", "", "", "/vault", exists, "")
	if got != "/vault" {
		t.Errorf("expected vault root as final fallback, got %q", got)
	}
}

func TestResolveWorkingDir_FallsBackToTranscriptCwdThenVault(t *testing.T) {
	exists := alwaysExists("/vault", "/discovered")
	got := ResolveWorkingDir("/missing", "", "", "/vault", exists, "/discovered")
	if got != "/discovered" {
		t.Errorf("expected fallback to discovered transcript cwd, got %q", got)
	}

	got = ResolveWorkingDir("/missing", "", "", "/vault", exists, "/also-missing")
	if got != "/vault" {
		t.Errorf("expected fallback to vault root when transcript cwd also missing, got %q", got)
	}
}

func TestDisplayPath_VaultRelativePreferred(t *testing.T) {
	got := DisplayPath("/srv/vault/Projects/foo", "/srv/vault")
	if got != "/vault/Projects/foo" {
		t.Errorf("expected vault-relative display path, got %q", got)
	}
}

func TestDisplayPath_OutsideVaultRewrittenToLeafName(t *testing.T) {
	got := DisplayPath("/home/other/secret-project", "/srv/vault")
	if got != "secret-project" {
		t.Errorf("expected leaf name for non-vault path, got %q", got)
	}
}
