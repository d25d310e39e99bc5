package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/companion/internal/permission"
	"github.com/haasonsaas/companion/internal/sessions"
	"github.com/haasonsaas/companion/pkg/models"
)

// fakeDirectRuntime emits a fixed, minimal event sequence so tests can
// assert on orchestrator-level plumbing without a network dependency.
type fakeDirectRuntime struct {
	mintedSessionID string
}

func (f *fakeDirectRuntime) RunDirect(ctx context.Context, req DirectRunRequest) (<-chan models.Event, error) {
	out := make(chan models.Event, 8)
	go func() {
		defer close(out)
		out <- models.Event{Type: models.EventSession, Session: &models.SessionEventPayload{SessionID: f.mintedSessionID}}
		out <- models.Event{Type: models.EventText, Text: &models.TextPayload{Content: "hello back", Delta: "hello back"}}
		out <- models.Event{Type: models.EventDone, Done: &models.DonePayload{Response: "hello back", SessionID: f.mintedSessionID, MessageCount: 2}}
	}()
	return out, nil
}

type fakePostTurn struct {
	tasks []models.PostTurnTask
}

func (f *fakePostTurn) Enqueue(task models.PostTurnTask) {
	f.tasks = append(f.tasks, task)
}

func drain(t *testing.T, ch <-chan models.Event, timeout time.Duration) []models.Event {
	t.Helper()
	var events []models.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

func TestRunTurn_EmitsExpectedEventSequenceAndFinalizes(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	postTurn := &fakePostTurn{}
	orch := New(Dependencies{
		Sessions:           store,
		Brokers:            permission.NewRegistry(),
		Direct:             &fakeDirectRuntime{mintedSessionID: "11111111-1111-1111-1111-111111111111"},
		PostTurn:           postTurn,
		VaultRoot:          "/vault",
		SystemPromptPreset: "PRESET",
	})

	ch, err := orch.RunTurn(context.Background(), TurnRequest{
		UserMessage: "hi",
		Module:      "parachute",
		TrustOverride: "direct",
	})
	if err != nil {
		t.Fatal(err)
	}

	events := drain(t, ch, 2*time.Second)

	var types []models.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}

	wantPrefix := []models.EventType{models.EventSession, models.EventPromptMetadata, models.EventUserMessage}
	for i, want := range wantPrefix {
		if i >= len(types) || types[i] != want {
			t.Fatalf("expected event %d to be %q, got sequence %v", i, want, types)
		}
	}

	lastType := types[len(types)-1]
	if lastType != models.EventDone {
		t.Errorf("expected terminal done event, got %q (sequence %v)", lastType, types)
	}

	finalized, err := store.Get(context.Background(), "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("expected finalized session to be resolvable by its minted id: %v", err)
	}
	if finalized.MessageCount != 2 {
		t.Errorf("expected message count incremented by 2 on done, got %d", finalized.MessageCount)
	}

	if len(postTurn.tasks) != 1 {
		t.Fatalf("expected exactly one post-turn task enqueued, got %d", len(postTurn.tasks))
	}
	if postTurn.tasks[0].UserMessage != "hi" || postTurn.tasks[0].AssistantReply != "hello back" {
		t.Errorf("unexpected post-turn task content: %+v", postTurn.tasks[0])
	}
}

func TestRunTurn_ContinuedFromInheritsParentWorkspace(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	parentDecision, err := store.GetOrCreate(context.Background(), "parent-session", "parachute", "/vault", models.TrustDirect)
	if err != nil {
		t.Fatalf("seed parent session: %v", err)
	}
	parentID := parentDecision.Session.ID
	workspaceID := "ws-1"
	if _, err := store.Update(context.Background(), parentID, sessions.Patch{WorkspaceID: &workspaceID}); err != nil {
		t.Fatalf("set parent workspace: %v", err)
	}

	orch := New(Dependencies{
		Sessions:           store,
		Brokers:            permission.NewRegistry(),
		Direct:             &fakeDirectRuntime{mintedSessionID: "22222222-2222-2222-2222-222222222222"},
		PostTurn:           &fakePostTurn{},
		VaultRoot:          "/vault",
		SystemPromptPreset: "PRESET",
	})

	ch, err := orch.RunTurn(context.Background(), TurnRequest{
		UserMessage:   "continuing",
		Module:        "parachute",
		TrustOverride: "direct",
		ContinuedFrom: parentID,
	})
	if err != nil {
		t.Fatal(err)
	}
	drain(t, ch, 2*time.Second)

	child, err := store.Get(context.Background(), "22222222-2222-2222-2222-222222222222")
	if err != nil {
		t.Fatalf("expected finalized child session: %v", err)
	}
	if child.ParentSessionID != parentID {
		t.Errorf("expected parent_session_id %q, got %q", parentID, child.ParentSessionID)
	}
	if child.WorkspaceID != workspaceID {
		t.Errorf("expected inherited workspace %q, got %q", workspaceID, child.WorkspaceID)
	}
}

func TestRunTurn_NoDirectRuntimeConfiguredEmitsError(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	orch := New(Dependencies{
		Sessions:           store,
		Brokers:            permission.NewRegistry(),
		VaultRoot:          "/vault",
		SystemPromptPreset: "PRESET",
	})

	ch, err := orch.RunTurn(context.Background(), TurnRequest{UserMessage: "hi", TrustOverride: "direct"})
	if err != nil {
		t.Fatal(err)
	}
	events := drain(t, ch, 2*time.Second)
	last := events[len(events)-1]
	if last.Type != models.EventError {
		t.Errorf("expected terminal error event when no runtime is configured, got %q", last.Type)
	}
}

func TestCancel_UnknownSessionReturnsFalse(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	orch := New(Dependencies{
		Sessions:           store,
		Brokers:            permission.NewRegistry(),
		Direct:             &fakeDirectRuntime{mintedSessionID: "sess-cancel"},
		VaultRoot:          "/vault",
		SystemPromptPreset: "PRESET",
	})
	if orch.Cancel("no-such-session") {
		t.Error("expected Cancel to report false for an unknown session")
	}
}
