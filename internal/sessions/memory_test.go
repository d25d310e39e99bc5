package sessions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/companion/pkg/models"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestGetOrCreate_EmptyRequestedIDReturnsPending(t *testing.T) {
	store := NewMemoryStore(nil)
	decision, err := store.GetOrCreate(context.Background(), "", "parachute", "/vault/proj", models.TrustDirect)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.IsNew {
		t.Error("expected IsNew for empty requested id")
	}
	if decision.Session.ID != models.PendingSessionID {
		t.Errorf("expected pending id, got %q", decision.Session.ID)
	}
}

func TestGetOrCreate_UnknownIDAdopted(t *testing.T) {
	store := NewMemoryStore(nil)
	decision, err := store.GetOrCreate(context.Background(), "session-abc", "parachute", "/vault/proj", models.TrustDirect)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.IsNew {
		t.Error("expected IsNew=true for first sight of an id")
	}
	again, err := store.GetOrCreate(context.Background(), "session-abc", "parachute", "/vault/proj", models.TrustDirect)
	if err != nil {
		t.Fatal(err)
	}
	if again.IsNew {
		t.Error("expected IsNew=false on second resolution of the same id")
	}
	if !again.ResumeInfo.Resumed {
		t.Error("expected Resumed=true")
	}
}

// TestFinalize_PreservesFieldsAcrossIDRewrite is grounded on P1/P2: the
// placeholder-to-final id rewrite must not drop or duplicate session
// state.
func TestFinalize_PreservesFieldsAcrossIDRewrite(t *testing.T) {
	store := NewMemoryStore(nil)
	decision, err := store.GetOrCreate(context.Background(), "", "parachute", "/vault/proj", models.TrustDirect)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(context.Background(), decision.Session.ID, Patch{MessageCountAdd: 1}); err != nil {
		t.Fatal(err)
	}

	final, err := store.Finalize(context.Background(), decision.Session.ID, "11111111-1111-1111-1111-111111111111", "claude-opus", "Untitled chat", "general", "ws-1")
	if err != nil {
		t.Fatal(err)
	}
	if final.ID != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("expected finalized id, got %q", final.ID)
	}
	if final.MessageCount != 1 {
		t.Errorf("expected message count preserved across finalize, got %d", final.MessageCount)
	}
	if final.Title != "Untitled chat" || final.Model != "claude-opus" || final.WorkspaceID != "ws-1" {
		t.Errorf("expected finalize fields applied, got %+v", final)
	}

	if _, err := store.Get(context.Background(), decision.Session.ID); err == nil {
		t.Error("expected placeholder id to no longer resolve after finalize")
	}
}

func TestFinalize_IdempotentOnRepeatedNewID(t *testing.T) {
	store := NewMemoryStore(nil)
	decision, _ := store.GetOrCreate(context.Background(), "", "parachute", "/vault/proj", models.TrustDirect)
	first, err := store.Finalize(context.Background(), decision.Session.ID, "final-1", "m", "t", "a", "w")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Finalize(context.Background(), decision.Session.ID, "final-1", "m2", "t2", "a2", "w2")
	if err != nil {
		t.Fatal(err)
	}
	if first.Title != second.Title {
		t.Error("expected second finalize of an already-finalized id to be a no-op returning the existing session")
	}
}

// TestGetOrCreateForBot_SingleNonArchivedSessionPerChat covers invariant
// (ii)/P3: at most one non-archived session per (platform, chatID).
func TestGetOrCreateForBot_SingleNonArchivedSessionPerChat(t *testing.T) {
	store := NewMemoryStore(nil)
	first, isNew, err := store.GetOrCreateForBot(context.Background(), "telegram", "chat-1", "private", models.TrustSandboxed)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Error("expected new session on first message from a chat")
	}

	second, isNew, err := store.GetOrCreateForBot(context.Background(), "telegram", "chat-1", "private", models.TrustSandboxed)
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Error("expected existing session reused on second message from same chat")
	}
	if second.ID != first.ID {
		t.Errorf("expected same session id, got %q vs %q", first.ID, second.ID)
	}

	if _, err := store.Archive(context.Background(), first.ID); err != nil {
		t.Fatal(err)
	}
	third, isNew, err := store.GetOrCreateForBot(context.Background(), "telegram", "chat-1", "private", models.TrustSandboxed)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew || third.ID == first.ID {
		t.Error("expected a fresh session once the prior one was archived")
	}
}

func TestGetOrCreateForBot_FinalizeUpdatesBotIndex(t *testing.T) {
	store := NewMemoryStore(nil)
	pending, _, err := store.GetOrCreateForBot(context.Background(), "discord", "chat-9", "guild", models.TrustSandboxed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Finalize(context.Background(), pending.ID, "final-discord-1", "m", "t", "a", "w"); err != nil {
		t.Fatal(err)
	}

	resumed, isNew, err := store.GetOrCreateForBot(context.Background(), "discord", "chat-9", "guild", models.TrustSandboxed)
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Error("expected bot index to follow the session through finalize")
	}
	if resumed.ID != "final-discord-1" {
		t.Errorf("expected resumed session to carry the finalized id, got %q", resumed.ID)
	}
}

func TestList_FiltersAndOrdersByLastAccessed(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(nil)
	store.now = fixedClock(base)
	d1, _ := store.GetOrCreate(context.Background(), "s1", "parachute", "/vault/a", models.TrustDirect)

	store.now = fixedClock(base.Add(time.Hour))
	d2, _ := store.GetOrCreate(context.Background(), "s2", "parachute", "/vault/a", models.TrustDirect)

	archived := true
	if _, err := store.Archive(context.Background(), d1.Session.ID); err != nil {
		t.Fatal(err)
	}

	results, err := store.List(context.Background(), ListFilters{Archived: &archived})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != d1.Session.ID {
		t.Errorf("expected archived filter to return only s1, got %+v", results)
	}

	notArchived := false
	results, err = store.List(context.Background(), ListFilters{Archived: &notArchived})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != d2.Session.ID {
		t.Errorf("expected non-archived filter to return only s2, got %+v", results)
	}
}

func TestClone_MutationDoesNotLeakIntoStore(t *testing.T) {
	store := NewMemoryStore(nil)
	decision, _ := store.GetOrCreate(context.Background(), "s1", "parachute", "/vault/a", models.TrustDirect)
	decision.Session.Title = "mutated by caller"

	reread, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if reread.Title == "mutated by caller" {
		t.Error("expected returned session to be a clone; external mutation leaked into the store")
	}
}

// TestFileTranscriptLocator_PrimaryAndLegacyRoots covers P8 (transcript
// location prefers the computed primary path, then falls back to a
// directory scan and the legacy vault root).
func TestFileTranscriptLocator_PrimaryAndLegacyRoots(t *testing.T) {
	home := t.TempDir()
	vault := t.TempDir()

	primaryDir := filepath.Join(home, ".claude", "projects", encodeCwd("/vault/proj"))
	if err := os.MkdirAll(primaryDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(primaryDir, "abc.jsonl"), []byte(`{"type":"user","message":{"role":"user","content":"hi"}}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	locator := &FileTranscriptLocator{HomeDir: home, VaultRoot: vault}
	loc, err := locator.Locate(context.Background(), "abc", "/vault/proj")
	if err != nil {
		t.Fatal(err)
	}
	if loc == nil || loc.Root != RootPrimary {
		t.Fatalf("expected primary-root hit, got %+v", loc)
	}

	legacyDir := filepath.Join(vault, ".claude", "projects", "some-other-cwd")
	if err := os.MkdirAll(legacyDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(legacyDir, "legacy-session.jsonl"), []byte(`{"type":"user","message":{"role":"user","content":"legacy"}}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	loc, err = locator.Locate(context.Background(), "legacy-session", "/vault/proj")
	if err != nil {
		t.Fatal(err)
	}
	if loc == nil || loc.Root != RootLegacy {
		t.Fatalf("expected legacy-root hit via scan, got %+v", loc)
	}
	if loc.Cwd == "/vault/proj" {
		t.Error("expected resume to report the cwd the transcript was actually found under, not the caller-supplied one")
	}
}

func TestFileTranscriptLocator_Messages(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".claude", "projects", encodeCwd("/vault/proj"))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := `{"type":"user","message":{"role":"user","content":"hello"}}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi there"}]}}
{"type":"result","result":"done"}
`
	path := filepath.Join(dir, "s1.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	locator := &FileTranscriptLocator{HomeDir: home}
	msgs, err := locator.Messages(context.Background(), &TranscriptLocation{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 reconstructed messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Content != "hello" || msgs[0].Role != models.RoleUser {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Content != "hi there" || msgs[1].Role != models.RoleAssistant {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
}

// TestAppendSandbox_IsAppendOnly covers P9: sandbox-origin writes never
// truncate or reorder a transcript, only append.
func TestAppendSandbox_IsAppendOnly(t *testing.T) {
	home := t.TempDir()
	locator := &FileTranscriptLocator{HomeDir: home}

	if err := locator.AppendSandbox(context.Background(), "s1", "first question", "first answer", "/vault/proj"); err != nil {
		t.Fatal(err)
	}
	if err := locator.AppendSandbox(context.Background(), "s1", "second question", "second answer", "/vault/proj"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(home, ".claude", "projects", encodeCwd("/vault/proj"), "s1.jsonl")
	msgs, err := locator.Messages(context.Background(), &TranscriptLocation{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages across two appended turns (result events carry no text), got %d", len(msgs))
	}
	if msgs[0].Content != "first question" || msgs[2].Content != "second question" {
		t.Errorf("expected append-only ordering preserved, got %+v", msgs)
	}
}
