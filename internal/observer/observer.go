// Package observer implements C6: the post-turn analysis worker.
// Grounded on _examples/haasonsaas-nexus/internal/tasks/
// {executor.go,scheduler.go,types.go} for the FIFO single-worker queue
// (status transitions, wake-on-enqueue-or-30s-idle, catch-all failure
// wrapping) and on spec.md §4.6 for the structured-output contract.
package observer

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/companion/internal/sessions"
	"github.com/haasonsaas/companion/pkg/models"
)

// trivialExchangeCharThreshold skips the knowledge-graph exchange
// record for exchanges this short, per spec.md §4.6 step 3.
const trivialExchangeCharThreshold = 8

// Analysis is the JSON-schema-constrained structured output the
// observer requests once per turn.
type Analysis struct {
	Title               string `json:"title,omitempty"`
	Summary             string `json:"summary,omitempty"`
	Activity            string `json:"activity"`
	ExchangeDescription string `json:"exchange_description"`
	// BridgeSessionID is the analyzer's own id for this turn's analysis
	// call. It is persisted on the session; the analyzer does not read
	// it back, so each analysis call starts without earlier analyzer
	// context.
	BridgeSessionID string `json:"bridge_session_id,omitempty"`
}

// Analyzer produces an Analysis for one completed turn, without
// calling tools (spec.md §4.6).
type Analyzer interface {
	Analyze(ctx context.Context, task models.PostTurnTask) (Analysis, error)
}

// ExchangeRecorder stores a searchable exchange record in the
// knowledge-graph module. Best-effort: errors are logged, not
// propagated.
type ExchangeRecorder interface {
	RecordExchange(ctx context.Context, sessionID, description string) error
}

// Observer runs the FIFO single-worker post-turn task queue.
type Observer struct {
	sessions  sessions.Store
	analyzer  Analyzer
	exchanges ExchangeRecorder
	vaultRoot string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	queue   *list.List // of *models.PostTurnTask
	wake    chan struct{}
	stopped bool
}

// New constructs an Observer. logger defaults to slog.Default.
func New(store sessions.Store, analyzer Analyzer, exchanges ExchangeRecorder, vaultRoot string, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		sessions:  store,
		analyzer:  analyzer,
		exchanges: exchanges,
		vaultRoot: vaultRoot,
		logger:    logger,
		now:       time.Now,
		queue:     list.New(),
		wake:      make(chan struct{}, 1),
	}
}

// Enqueue appends a task and wakes the worker. Implements
// orchestrator.PostTurnEnqueuer.
func (o *Observer) Enqueue(task models.PostTurnTask) {
	task.Status = models.TaskPending
	task.QueuedAt = o.now()

	o.mu.Lock()
	o.queue.PushBack(&task)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Run drives the single worker loop until ctx is cancelled. It never
// returns an error: every task failure is caught, logged, and recorded
// on the task, matching the "observer never raises upward" rule.
func (o *Observer) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		task := o.pop()
		if task != nil {
			o.process(ctx, task)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		case <-ticker.C:
		}
	}
}

func (o *Observer) pop() *models.PostTurnTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	front := o.queue.Front()
	if front == nil {
		return nil
	}
	o.queue.Remove(front)
	return front.Value.(*models.PostTurnTask)
}

func (o *Observer) process(ctx context.Context, task *models.PostTurnTask) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("post-turn task panicked", "session_id", task.SessionID, "panic", r)
			task.Status = models.TaskFailed
			task.Error = fmt.Sprintf("panic: %v", r)
			completed := o.now()
			task.CompletedAt = &completed
		}
	}()

	now := o.now()
	task.StartedAt = &now
	task.Status = models.TaskRunning

	if err := o.runTask(ctx, task); err != nil {
		o.logger.Warn("post-turn task failed", "session_id", task.SessionID, "error", err)
		task.Status = models.TaskFailed
		task.Error = err.Error()
	} else {
		task.Status = models.TaskCompleted
	}
	completed := o.now()
	task.CompletedAt = &completed
}

func (o *Observer) runTask(ctx context.Context, task *models.PostTurnTask) error {
	if o.analyzer == nil {
		return nil
	}
	analysis, err := o.analyzer.Analyze(ctx, *task)
	if err != nil {
		return fmt.Errorf("analyze turn: %w", err)
	}
	task.Result = analysis.Activity

	session, err := o.sessions.Get(ctx, task.SessionID)
	if err != nil {
		return fmt.Errorf("load session for post-turn update: %w", err)
	}

	if err := o.appendActivityLog(session, task, analysis); err != nil {
		o.logger.Warn("failed to append activity log", "error", err)
	}

	if err := o.updateSessionTitleAndSummary(ctx, session, analysis); err != nil {
		o.logger.Warn("failed to update session title/summary", "error", err)
	}

	if o.exchanges != nil && !isTrivialExchange(task.UserMessage, task.AssistantReply) {
		if err := o.exchanges.RecordExchange(ctx, task.SessionID, analysis.ExchangeDescription); err != nil {
			o.logger.Warn("failed to record exchange", "error", err)
		}
	}

	return nil
}

func isTrivialExchange(userMsg, assistantReply string) bool {
	return len(userMsg) < trivialExchangeCharThreshold && len(assistantReply) < trivialExchangeCharThreshold
}

// appendActivityLog writes one JSONL line to
// <vault>/Daily/.activity/<YYYY-MM-DD>.jsonl, per spec.md §4.6 step 1.
func (o *Observer) appendActivityLog(session *models.Session, task *models.PostTurnTask, analysis Analysis) error {
	day := o.now().Format("2006-01-02")
	dir := filepath.Join(o.vaultRoot, "Daily", ".activity")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	path := filepath.Join(dir, day+".jsonl")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	line, err := json.Marshal(struct {
		Time           time.Time `json:"ts"`
		SessionID      string    `json:"session_id"`
		SessionTitle   string    `json:"session_title"`
		ExchangeNumber int       `json:"exchange_number"`
		Summary        string    `json:"summary"`
	}{
		Time:           o.now(),
		SessionID:      session.ID,
		SessionTitle:   session.Title,
		ExchangeNumber: task.MessageCount,
		Summary:        analysis.Activity,
	})
	if err != nil {
		return err
	}
	_, err = file.Write(append(line, '\n'))
	return err
}

// updateSessionTitleAndSummary updates the session's title only if it
// is AI-set or unset, per spec.md §4.6 step 2. The store does not
// distinguish AI-set from user-set titles, so this conservatively only
// overwrites an empty title; a user-renamed session is never clobbered.
// Step 4 persists the analyzer's own id on the session as
// BridgeSessionID; nothing reads it back into a later analysis call.
func (o *Observer) updateSessionTitleAndSummary(ctx context.Context, session *models.Session, analysis Analysis) error {
	patch := sessions.Patch{}
	if session.Title == "" && analysis.Title != "" {
		patch.Title = &analysis.Title
	}
	if analysis.Summary != "" {
		patch.Summary = &analysis.Summary
	}
	if analysis.BridgeSessionID != "" && analysis.BridgeSessionID != session.BridgeSessionID {
		patch.BridgeSessionID = &analysis.BridgeSessionID
	}
	if patch.Title == nil && patch.Summary == nil && patch.BridgeSessionID == nil {
		return nil
	}
	_, err := o.sessions.Update(ctx, session.ID, patch)
	return err
}
