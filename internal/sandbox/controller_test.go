package sandbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/companion/internal/sessions"
	"github.com/haasonsaas/companion/pkg/models"
)

func TestTranslateEvent_RewritesSessionID(t *testing.T) {
	raw := map[string]json.RawMessage{
		"type":    json.RawMessage(`"session"`),
		"session": json.RawMessage(`{"session_id":"container-internal-id"}`),
	}
	req := RunRequest{SessionID: "caller-visible-id", WorkingDir: "/vault/proj", Trust: models.TrustSandboxed}
	c := NewController(DefaultConfig())
	visible := req.SessionID
	ev := c.translateEvent(context.Background(), raw, req, &visible)
	if ev.Type != models.EventSession {
		t.Fatalf("expected session event, got %q", ev.Type)
	}
	if ev.Session.SessionID != "caller-visible-id" {
		t.Errorf("expected container-internal id masked, got %q", ev.Session.SessionID)
	}
	if ev.Session.TrustLevel != models.TrustSandboxed {
		t.Errorf("expected trust annotation, got %q", ev.Session.TrustLevel)
	}
}

func TestTranslateEvent_DoneRewritesSessionID(t *testing.T) {
	raw := map[string]json.RawMessage{
		"type": json.RawMessage(`"done"`),
		"done": json.RawMessage(`{"session_id":"container-internal-id","response":"hi","message_count":2}`),
	}
	req := RunRequest{SessionID: "caller-visible-id"}
	c := NewController(DefaultConfig())
	visible := req.SessionID
	ev := c.translateEvent(context.Background(), raw, req, &visible)
	if ev.Done.SessionID != "caller-visible-id" {
		t.Errorf("expected done event session id masked, got %q", ev.Done.SessionID)
	}
	if ev.Done.Response != "hi" || ev.Done.MessageCount != 2 {
		t.Errorf("expected done payload fields preserved, got %+v", ev.Done)
	}
}

func TestTranslateEvent_SessionEventFinalizesPendingPlaceholder(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	decision, err := store.GetOrCreate(context.Background(), "", "parachute", "/vault/proj", models.TrustSandboxed)
	if err != nil {
		t.Fatalf("seed pending session: %v", err)
	}

	c := NewController(DefaultConfig())
	c.SetSessionStore(store)

	raw := map[string]json.RawMessage{
		"type":    json.RawMessage(`"session"`),
		"session": json.RawMessage(`{"session_id":"33333333-3333-3333-3333-333333333333"}`),
	}
	req := RunRequest{SessionID: decision.Session.ID, WorkingDir: "/vault/proj", AgentType: "default", Trust: models.TrustSandboxed}
	visible := req.SessionID
	ev := c.translateEvent(context.Background(), raw, req, &visible)

	if ev.Session.SessionID != "33333333-3333-3333-3333-333333333333" {
		t.Errorf("expected caller-facing event to carry the finalized container id, got %q", ev.Session.SessionID)
	}
	if visible != "33333333-3333-3333-3333-333333333333" {
		t.Errorf("expected visibleSessionID updated for later events in the stream, got %q", visible)
	}

	finalized, err := store.Get(context.Background(), "33333333-3333-3333-3333-333333333333")
	if err != nil {
		t.Fatalf("expected finalized session resolvable under the container-minted id: %v", err)
	}
	if finalized.WorkingDir != "/vault/proj" {
		t.Errorf("expected finalized session to preserve working dir, got %q", finalized.WorkingDir)
	}
}

func TestTranslateEvent_ResumeFailedIsNotForwarded(t *testing.T) {
	raw := map[string]json.RawMessage{"type": json.RawMessage(`"resume_failed"`)}
	req := RunRequest{SessionID: "caller-visible-id"}
	c := NewController(DefaultConfig())
	visible := req.SessionID
	ev := c.translateEvent(context.Background(), raw, req, &visible)
	if ev.Type != models.EventResumeFailed {
		t.Fatalf("expected resume_failed event type, got %q", ev.Type)
	}
}

func TestBuildRunSpec_NetworkModeByTrust(t *testing.T) {
	c := NewController(Config{NetworkName: "parachute-net", MemoryLimit: "2g", CPULimit: "2", VaultRoot: "/srv/vault"})

	direct := c.buildRunSpec(RunRequest{Trust: models.TrustDirect}, "/tmp/env", "/tmp/caps")
	if direct.NetworkMode != "none" {
		t.Errorf("expected direct-trust ephemeral runs with no declared network need to use 'none', got %q", direct.NetworkMode)
	}

	sandboxed := c.buildRunSpec(RunRequest{Trust: models.TrustSandboxed}, "/tmp/env", "/tmp/caps")
	if sandboxed.NetworkMode != "parachute-net" {
		t.Errorf("expected sandboxed turns to use the bridge network, got %q", sandboxed.NetworkMode)
	}
}

func TestBuildRunSpec_NamingByLifecycle(t *testing.T) {
	c := NewController(DefaultConfig())

	ephemeral := c.buildRunSpec(RunRequest{}, "/tmp/env", "/tmp/caps")
	if ephemeral.Name[:len("parachute-sandbox-")] != "parachute-sandbox-" {
		t.Errorf("expected ephemeral naming, got %q", ephemeral.Name)
	}

	persistent := c.buildRunSpec(RunRequest{WorkspaceSlug: "acme"}, "/tmp/env", "/tmp/caps")
	if persistent.Name != "parachute-env-acme" {
		t.Errorf("expected persistent naming, got %q", persistent.Name)
	}
}

func TestDockerArgs_IncludesMountsAndEnvFile(t *testing.T) {
	spec := RunSpec{
		Name:        "parachute-sandbox-ab12",
		Image:       "parachute-sandbox:latest",
		NetworkMode: "none",
		MemoryLimit: "2g",
		CPULimit:    "2",
		EnvFilePath: "/tmp/env",
		Mounts:      []MountSpec{{Source: "/srv/vault", Target: "/vault", ReadOnly: true}},
	}
	args := dockerArgs(spec)
	joined := ""
	for _, a := range args {
		joined += a + " "
	}
	for _, want := range []string{"--env-file", "/tmp/env", "-v", "/srv/vault:/vault:ro"} {
		found := false
		for _, a := range args {
			if a == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected docker args to contain %q, got %v", want, args)
		}
	}
}
