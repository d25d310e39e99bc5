package observer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/companion/internal/sessions"
	"github.com/haasonsaas/companion/pkg/models"
)

type fakeAnalyzer struct {
	result Analysis
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, task models.PostTurnTask) (Analysis, error) {
	f.calls++
	return f.result, f.err
}

type fakeExchangeRecorder struct {
	recorded []string
}

func (f *fakeExchangeRecorder) RecordExchange(ctx context.Context, sessionID, description string) error {
	f.recorded = append(f.recorded, description)
	return nil
}

func newTestObserver(t *testing.T, store sessions.Store, analyzer Analyzer, recorder ExchangeRecorder) (*Observer, string) {
	t.Helper()
	vaultRoot := t.TempDir()
	obs := New(store, analyzer, recorder, vaultRoot, nil)
	return obs, vaultRoot
}

func TestObserver_ProcessesTaskAndUpdatesTitle(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	decision, _ := store.GetOrCreate(context.Background(), "s1", "parachute", "/vault/a", models.TrustDirect)
	analyzer := &fakeAnalyzer{result: Analysis{Title: "A Chat About Go", Summary: "discussed goroutines", Activity: "chatted", ExchangeDescription: "a decent conversation about concurrency"}}
	recorder := &fakeExchangeRecorder{}
	obs, vaultRoot := newTestObserver(t, store, analyzer, recorder)

	obs.Enqueue(models.PostTurnTask{SessionID: decision.Session.ID, UserMessage: "how do goroutines work", AssistantReply: "goroutines are lightweight threads managed by the runtime"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go obs.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s, err := store.Get(context.Background(), decision.Session.ID)
		if err == nil && s.Title == "A Chat About Go" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s, err := store.Get(context.Background(), decision.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Title != "A Chat About Go" {
		t.Errorf("expected title updated from analysis, got %q", s.Title)
	}
	if s.Summary != "discussed goroutines" {
		t.Errorf("expected summary updated, got %q", s.Summary)
	}
	if len(recorder.recorded) != 1 {
		t.Errorf("expected one exchange recorded, got %d", len(recorder.recorded))
	}

	day := time.Now().Format("2006-01-02")
	logPath := filepath.Join(vaultRoot, "Daily", ".activity", day+".jsonl")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("expected activity log written: %v", err)
	}
	var line struct {
		SessionID      string `json:"session_id"`
		SessionTitle   string `json:"session_title"`
		ExchangeNumber int    `json:"exchange_number"`
		Summary        string `json:"summary"`
	}
	if err := json.Unmarshal(data[:len(data)-1], &line); err != nil {
		t.Fatal(err)
	}
	if line.SessionID != decision.Session.ID {
		t.Errorf("unexpected activity log content: %s", data)
	}
	if line.SessionTitle != "A Chat About Go" {
		t.Errorf("expected activity log to carry the updated session title, got %q", line.SessionTitle)
	}
}

func TestObserver_PersistsAnalyzerBridgeSessionID(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	decision, _ := store.GetOrCreate(context.Background(), "s1", "parachute", "/vault/a", models.TrustDirect)
	analyzer := &fakeAnalyzer{result: Analysis{Activity: "chatted", ExchangeDescription: "a conversation of reasonable length", BridgeSessionID: "analyzer-conv-123"}}
	obs, _ := newTestObserver(t, store, analyzer, nil)
	obs.Enqueue(models.PostTurnTask{SessionID: decision.Session.ID, UserMessage: "hello there friend", AssistantReply: "hello yourself, friend"})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	obs.Run(ctx)

	s, err := store.Get(context.Background(), decision.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.BridgeSessionID != "analyzer-conv-123" {
		t.Errorf("expected bridge session id persisted, got %q", s.BridgeSessionID)
	}
}

func TestObserver_DoesNotOverwriteExistingTitle(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	decision, _ := store.GetOrCreate(context.Background(), "s1", "parachute", "/vault/a", models.TrustDirect)
	userTitle := "My Renamed Chat"
	if _, err := store.Update(context.Background(), decision.Session.ID, sessions.Patch{Title: &userTitle}); err != nil {
		t.Fatal(err)
	}

	analyzer := &fakeAnalyzer{result: Analysis{Title: "AI Suggested Title", Activity: "chatted", ExchangeDescription: "a conversation of reasonable length"}}
	obs, _ := newTestObserver(t, store, analyzer, nil)
	obs.Enqueue(models.PostTurnTask{SessionID: decision.Session.ID, UserMessage: "hello there friend", AssistantReply: "hello yourself, friend"})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	obs.Run(ctx)

	s, err := store.Get(context.Background(), decision.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Title != userTitle {
		t.Errorf("expected user-set title to survive, got %q", s.Title)
	}
}

func TestObserver_SkipsExchangeRecordForTrivialExchange(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	decision, _ := store.GetOrCreate(context.Background(), "s1", "parachute", "/vault/a", models.TrustDirect)
	analyzer := &fakeAnalyzer{result: Analysis{Activity: "ack", ExchangeDescription: "trivial"}}
	recorder := &fakeExchangeRecorder{}
	obs, _ := newTestObserver(t, store, analyzer, recorder)

	obs.Enqueue(models.PostTurnTask{SessionID: decision.Session.ID, UserMessage: "hi", AssistantReply: "hey"})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	obs.Run(ctx)

	if len(recorder.recorded) != 0 {
		t.Errorf("expected trivial exchange to be skipped, got %v", recorder.recorded)
	}
}

func TestObserver_AnalyzerFailureMarksTaskFailedWithoutCrashing(t *testing.T) {
	store := sessions.NewMemoryStore(nil)
	decision, _ := store.GetOrCreate(context.Background(), "s1", "parachute", "/vault/a", models.TrustDirect)
	analyzer := &fakeAnalyzer{err: errBoom}
	obs, _ := newTestObserver(t, store, analyzer, nil)

	var processedTask *models.PostTurnTask
	obs.mu.Lock()
	obs.queue.PushBack(&models.PostTurnTask{SessionID: decision.Session.ID})
	obs.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	task := obs.pop()
	obs.process(ctx, task)
	processedTask = task

	if processedTask.Status != models.TaskFailed {
		t.Errorf("expected task marked failed, got %q", processedTask.Status)
	}
	if processedTask.Error == "" {
		t.Error("expected error message recorded on the task")
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (e *boomError) Error() string { return "boom" }
