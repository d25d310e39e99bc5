package connectors

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPairingStore_RequestCodeIsStableForSameUser(t *testing.T) {
	store := NewPairingStore(filepath.Join(t.TempDir(), "pairing.json"))

	code1, err := store.RequestCode("telegram", "u1")
	if err != nil {
		t.Fatal(err)
	}
	code2, err := store.RequestCode("telegram", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if code1 != code2 {
		t.Errorf("expected repeated request to reuse pending code, got %q then %q", code1, code2)
	}
}

func TestPairingStore_ConfirmLinksModule(t *testing.T) {
	store := NewPairingStore(filepath.Join(t.TempDir(), "pairing.json"))

	code, err := store.RequestCode("discord", "u2")
	if err != nil {
		t.Fatal(err)
	}
	if _, paired := store.IsPaired("discord", "u2"); paired {
		t.Fatal("expected not yet paired")
	}

	if err := store.Confirm(code, "my-module"); err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}

	slug, paired := store.IsPaired("discord", "u2")
	if !paired || slug != "my-module" {
		t.Errorf("expected pairing to link to my-module, got %q paired=%v", slug, paired)
	}
}

func TestPairingStore_ConfirmUnknownCodeFails(t *testing.T) {
	store := NewPairingStore(filepath.Join(t.TempDir(), "pairing.json"))
	if err := store.Confirm("NOTREAL1", "x"); err != ErrPairingNotFound {
		t.Errorf("expected ErrPairingNotFound, got %v", err)
	}
}

func TestPairingStore_ExpiredRequestIsNotConfirmable(t *testing.T) {
	store := NewPairingStore(filepath.Join(t.TempDir(), "pairing.json"))
	store.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	code, err := store.RequestCode("telegram", "u3")
	if err != nil {
		t.Fatal(err)
	}
	store.now = time.Now

	if err := store.Confirm(code, "mod"); err != ErrPairingNotFound {
		t.Errorf("expected expired code to be rejected, got %v", err)
	}
}

func TestShouldRespond_DirectMessagesAlwaysPass(t *testing.T) {
	if !ShouldRespond(ModeMentionOnly, false, "@bot", "no mention here") {
		t.Error("expected direct messages to always pass gating")
	}
}

func TestShouldRespond_GroupMentionOnlyRequiresMention(t *testing.T) {
	if ShouldRespond(ModeMentionOnly, true, "@bot", "hello everyone") {
		t.Error("expected unmentioned group message to be gated out")
	}
	if !ShouldRespond(ModeMentionOnly, true, "@bot", "hey @bot can you help") {
		t.Error("expected mentioned group message to pass")
	}
}

func TestShouldRespond_AllMessagesModeIgnoresMention(t *testing.T) {
	if !ShouldRespond(ModeAllMessages, true, "@bot", "no mention here") {
		t.Error("expected all_messages mode to always pass in groups")
	}
}

func TestGroupHistory_TrimsToCap(t *testing.T) {
	h := NewGroupHistory()
	for i := 0; i < groupHistoryCap+5; i++ {
		h.Record("chat1", "msg")
	}
	if got := len(h.Snapshot("chat1")); got != groupHistoryCap {
		t.Errorf("expected history capped at %d, got %d", groupHistoryCap, got)
	}
}
