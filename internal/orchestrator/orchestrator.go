// Package orchestrator implements C5: the turn state machine. Phase
// numbers in comments refer to spec.md §4.5. Grounded on
// _examples/original_source/parachute/core/orchestrator.py for exact
// phase semantics and on
// _examples/haasonsaas-nexus/internal/gateway/{runtime.go,streaming.go}
// for the Go event-channel-with-cancellation idiom.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/companion/internal/capfilter"
	"github.com/haasonsaas/companion/internal/contextfiles"
	"github.com/haasonsaas/companion/internal/permission"
	"github.com/haasonsaas/companion/internal/sandbox"
	"github.com/haasonsaas/companion/internal/sessions"
	"github.com/haasonsaas/companion/pkg/models"
)

// CapabilityDiscoverer loads the raw, unfiltered capability set for a
// turn (Phase 4). A concrete implementation walks global/agent MCP
// config, skill, plugin, and custom-agent directories; this interface
// lets the orchestrator stay independent of filesystem layout details.
type CapabilityDiscoverer interface {
	Discover(ctx context.Context, workingDir, agentType string) (models.Capabilities, error)
}

// PostTurnEnqueuer hands a completed turn to C6.
type PostTurnEnqueuer interface {
	Enqueue(task models.PostTurnTask)
}

// WorkspaceResolver looks up a workspace by id for Phase 5's default
// trust and Phase 4/2 defaults.
type WorkspaceResolver interface {
	Get(ctx context.Context, workspaceID string) (*models.Workspace, error)
}

// ContextResolver turns a turn's explicitly-selected context paths
// (files or folders) into loaded file content for Phase 3. A nil
// Dependencies.ContextResolver skips context-file resolution entirely.
type ContextResolver interface {
	Resolve(selections []string) (contextfiles.Chain, error)
}

// Dependencies wires every collaborator C5 needs. Each is an
// interface or a concrete struct with its own constructor — no hidden
// global registry.
type Dependencies struct {
	Sessions           sessions.Store
	Brokers            *permission.Registry
	Sandbox            *sandbox.Controller
	Direct             AgentRuntime
	Discoverer         CapabilityDiscoverer
	Workspaces         WorkspaceResolver
	ContextResolver    ContextResolver
	PostTurn           PostTurnEnqueuer
	VaultRoot          string
	SystemPromptPreset string
	Now                func() time.Time
}

// TurnRequest collects the inputs listed in spec.md §4.5.
type TurnRequest struct {
	UserMessage           string
	SessionID             string
	Module                string
	SystemPromptOverride  string
	WorkingDir            string
	AgentType             string
	Attachments           []models.Attachment
	TrustOverride         string
	WorkspaceID           string
	RecoveryMode          bool
	ModelOverride         string
	ContextFileSelection  []string
	PriorConversationText string
	ContinuedFrom         string // parent session id this new session continues, if any
}

// Orchestrator runs turns. It tracks one interrupt handle per active
// session stream so a cancel request can signal the right goroutine.
type Orchestrator struct {
	deps Dependencies

	mu       sync.Mutex
	interrupt map[string]context.CancelFunc
}

// New constructs an Orchestrator. deps.Now defaults to time.Now.
func New(deps Dependencies) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{deps: deps, interrupt: make(map[string]context.CancelFunc)}
}

// Cancel signals the active stream for sessionID to abort at its next
// checkpoint, per the per-session concurrency model of spec.md §4.5.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.interrupt[sessionID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// RunTurn executes Phases 1-11 and returns a channel of normalized
// events. The channel is closed once a terminal event (done, aborted,
// error, or session_unavailable) has been emitted.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (<-chan models.Event, error) {
	turnCtx, cancel := context.WithCancel(ctx)

	out := make(chan models.Event, 32)
	go func() {
		defer close(out)
		defer cancel()
		o.runPhases(turnCtx, cancel, req, out)
	}()

	return out, nil
}

func (o *Orchestrator) runPhases(ctx context.Context, cancel context.CancelFunc, req TurnRequest, out chan<- models.Event) {
	// Phase 1: resolve session.
	trustHint, _ := capfilter.NormalizeTrust(firstNonEmpty(req.TrustOverride, "direct"))
	decision, err := o.deps.Sessions.GetOrCreate(ctx, req.SessionID, req.Module, req.WorkingDir, trustHint)
	if err != nil {
		o.emitError(out, "failed to resolve session", err)
		return
	}
	session := decision.Session

	// A brand new session created via continued_from inherits its
	// parent's workspace unless the caller specified one explicitly;
	// client-supplied workspace_id always wins, matching Phase 2's
	// working-directory precedence order. The parent link itself is
	// recorded once the session has a real id, alongside Finalize below.
	if decision.IsNew && req.ContinuedFrom != "" && req.WorkspaceID == "" {
		if parent, perr := o.deps.Sessions.Get(ctx, req.ContinuedFrom); perr == nil && parent != nil {
			req.WorkspaceID = parent.WorkspaceID
		}
	}

	o.mu.Lock()
	o.interrupt[session.ID] = cancel
	o.mu.Unlock()

	firstSessionID := session.ID
	if session.IsPending() {
		// no real id minted yet; a rejoining client must not latch onto
		// the placeholder as if it were durable.
		firstSessionID = ""
	}
	out <- models.Event{Type: models.EventSession, Time: o.deps.Now(), Session: &models.SessionEventPayload{
		SessionID:  firstSessionID,
		WorkingDir: session.WorkingDir,
		ResumeInfo: decision.ResumeInfo,
		TrustLevel: session.TrustLevel,
	}}

	defer func() {
		o.mu.Lock()
		delete(o.interrupt, session.ID)
		o.mu.Unlock()
	}()

	// Phase 2: resolve working directory.
	metadataOverride := ""
	if v, ok := session.Metadata["working_directory_override"].(string); ok {
		metadataOverride = v
	}
	workingDir := ResolveWorkingDir(req.WorkingDir, metadataOverride, session.WorkingDir, o.deps.VaultRoot, dirExists, decision.ResumeInfo.TranscriptPath)

	// Phase 3: resolve explicitly-selected context files/folders, then
	// build the system prompt.
	var resolvedContext []ContextFile
	if o.deps.ContextResolver != nil && len(req.ContextFileSelection) > 0 {
		chain, cerr := o.deps.ContextResolver.Resolve(req.ContextFileSelection)
		if cerr != nil {
			// non-fatal: log-equivalent, continue without context files.
			resolvedContext = nil
		} else {
			resolvedContext = make([]ContextFile, len(chain.Files))
			for i, f := range chain.Files {
				resolvedContext[i] = ContextFile{Path: f.Path, Content: f.Content}
			}
		}
	}

	promptResult := BuildSystemPrompt(o.deps.SystemPromptPreset, PromptBuildInput{
		CustomPrompt:       req.SystemPromptOverride,
		AgentType:          req.AgentType,
		WorkingDirDisplay:  DisplayPath(workingDir, o.deps.VaultRoot),
		ContextFiles:       resolvedContext,
		ContextTokenBudget: 8000,
		PriorConversation:  req.PriorConversationText,
	})

	// Phase 4: discover capabilities.
	var discovered models.Capabilities
	if o.deps.Discoverer != nil {
		discovered, err = o.deps.Discoverer.Discover(ctx, workingDir, req.AgentType)
		if err != nil {
			// non-fatal: log-equivalent, continue with empty capabilities.
			discovered = models.Capabilities{}
		}
	}

	// Phase 5: resolve effective trust.
	workspaceDefault := ""
	if o.deps.Workspaces != nil && req.WorkspaceID != "" {
		if ws, err := o.deps.Workspaces.Get(ctx, req.WorkspaceID); err == nil && ws != nil {
			workspaceDefault = string(ws.DefaultTrust)
		}
	}
	trust, err := ResolveTrust(req.TrustOverride, string(session.TrustLevel), workspaceDefault)
	if err != nil {
		trust = models.TrustDirect
	}

	var caps models.WorkspaceCapabilities
	hasWSCaps := false
	if o.deps.Workspaces != nil && req.WorkspaceID != "" {
		if ws, err := o.deps.Workspaces.Get(ctx, req.WorkspaceID); err == nil && ws != nil {
			caps = ws.Capabilities
			hasWSCaps = true
		}
	}
	var effective models.Capabilities
	if hasWSCaps {
		effective = capfilter.Apply(discovered, trust, &caps)
	} else {
		effective = capfilter.Apply(discovered, trust, nil)
	}

	// Phase 6: prompt-metadata event.
	out <- models.Event{Type: models.EventPromptMetadata, Time: o.deps.Now(), PromptMetadata: &models.PromptMetadataPayload{
		PromptSource:      promptResult.SourceKind,
		ContextFiles:      promptResult.ContextFiles,
		ContextTokens:     promptResult.ContextTokens,
		ContextTruncated:  promptResult.ContextTruncated,
		AvailableAgents:   effective.Agents,
		AvailableSkills:   effective.Skills,
		AvailableMCPs:     mcpNames(effective.MCPs),
		BasePromptTokens:  promptResult.BasePromptTokens,
		TotalPromptTokens: promptResult.TotalPromptTokens,
		TrustMode:         trust,
	}}

	// Phase 7: user-message event, emitted before the response is known
	// to succeed so rejoining clients always see their own message.
	out <- models.Event{Type: models.EventUserMessage, Time: o.deps.Now(), UserMessage: &models.UserMessagePayload{Content: req.UserMessage}}

	// Phase 8/9: invoke the agent and multiplex its events.
	broker := o.deps.Brokers.Start(session.ID)
	defer o.deps.Brokers.End(session.ID)

	var agentEvents <-chan models.Event
	if trust == models.TrustSandboxed && o.deps.Sandbox != nil {
		agentEvents = o.runSandboxed(ctx, session, workingDir, req, effective, trust)
	} else {
		agentEvents = o.runDirect(ctx, session, promptResult.Prompt, req, broker)
	}

	var finalDone *models.DonePayload
	var finalAborted *models.AbortedPayload
	var finalError *models.ErrorPayload

	for ev := range agentEvents {
		if ev.Type == models.EventSession && ev.Session != nil && session.IsPending() {
			// agent-minted id captured at first sight; finalize before
			// forwarding the second session event, per Phase 9. On the
			// sandboxed path the controller has already finalized this
			// row under the same id (to mask it before this event ever
			// reached us), so Get-then-Update rather than Finalize again
			// to still apply title/model instead of silently no-oping.
			var title string
			if session.Title == "" && strings.TrimSpace(req.UserMessage) != "" {
				title = GenerateTitleFromMessage(req.UserMessage)
			}

			var resolved *models.Session
			var rerr error
			if existing, gerr := o.deps.Sessions.Get(ctx, ev.Session.SessionID); gerr == nil && existing != nil {
				patch := sessions.Patch{}
				if title != "" {
					patch.Title = &title
				}
				if req.ModelOverride != "" {
					patch.Model = &req.ModelOverride
				}
				if patch.Title != nil || patch.Model != nil {
					resolved, rerr = o.deps.Sessions.Update(ctx, ev.Session.SessionID, patch)
				} else {
					resolved = existing
				}
			} else {
				resolved, rerr = o.deps.Sessions.Finalize(ctx, session.ID, ev.Session.SessionID, req.ModelOverride, title, req.AgentType, req.WorkspaceID)
			}
			if rerr == nil && resolved != nil {
				session = resolved
				if req.ContinuedFrom != "" {
					if updated, uerr := o.deps.Sessions.Update(ctx, session.ID, sessions.Patch{ParentSessionID: &req.ContinuedFrom}); uerr == nil && updated != nil {
						session = updated
					}
				}
			}
		}
		if ev.Type == models.EventDone {
			finalDone = ev.Done
		}
		if ev.Type == models.EventAborted {
			finalAborted = ev.Aborted
		}
		if ev.Type == models.EventError {
			finalError = ev.Error
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}

	// Phase 10: terminate.
	switch {
	case finalDone != nil:
		if _, err := o.deps.Sessions.Update(ctx, session.ID, sessions.Patch{MessageCountAdd: 2}); err != nil {
			_ = err // non-fatal: the done event already carries the count.
		}
	case finalAborted != nil, finalError != nil:
		// nothing further to reconcile in the store.
	default:
		out <- models.Event{Type: models.EventError, Time: o.deps.Now(), Error: &models.ErrorPayload{Message: "agent runtime ended without a terminal event"}}
	}

	// Phase 11: post-turn task.
	if o.deps.PostTurn != nil && finalDone != nil {
		o.deps.PostTurn.Enqueue(models.PostTurnTask{
			TaskID:         uuid.NewString(),
			SessionID:      session.ID,
			Trigger:        "turn_complete",
			MessageCount:   finalDone.MessageCount,
			QueuedAt:       o.deps.Now(),
			Status:         models.TaskPending,
			UserMessage:    req.UserMessage,
			AssistantReply: finalDone.Response,
		})
	}
}

func (o *Orchestrator) runDirect(ctx context.Context, session *models.Session, systemPrompt string, req TurnRequest, broker *permission.Broker) <-chan models.Event {
	if o.deps.Direct == nil {
		out := make(chan models.Event, 1)
		out <- models.Event{Type: models.EventError, Time: o.deps.Now(), Error: &models.ErrorPayload{Message: "no direct agent runtime configured"}}
		close(out)
		return out
	}
	events, err := o.deps.Direct.RunDirect(ctx, DirectRunRequest{
		SessionID:    session.ID,
		Model:        req.ModelOverride,
		SystemPrompt: systemPrompt,
		UserMessage:  req.UserMessage,
		Attachments:  req.Attachments,
		CanUseTool: func(ctx context.Context, toolName, toolUseID string, _ json.RawMessage) permission.Decision {
			return permission.Decide(session.TrustLevel, toolName)
		},
		AskUserQuestion: func(ctx context.Context, requestID string, questions []string) (string, error) {
			return broker.Ask(ctx, requestID, 2*time.Minute)
		},
	})
	if err != nil {
		out := make(chan models.Event, 1)
		out <- models.Event{Type: models.EventError, Time: o.deps.Now(), Error: &models.ErrorPayload{Message: fmt.Sprintf("direct runtime failed to start: %v", err)}}
		close(out)
		return out
	}
	return events
}

// runSandboxed drives the three-tier persistent-container resume
// fallback of spec.md §4.3/§4.5 Phase 8: a direct container-side resume
// is tried first; if the container reports that its session state is
// gone (ErrResumeFailed), the turn is retried with the prior
// conversation injected as text context; if that attempt also fails,
// it falls back to a fresh container with neither resume nor injected
// history. Only the final attempt's non-resume-related error, if any,
// reaches the caller.
func (o *Orchestrator) runSandboxed(ctx context.Context, session *models.Session, workingDir string, req TurnRequest, caps models.Capabilities, trust models.TrustLevel) <-chan models.Event {
	out := make(chan models.Event, 32)
	go func() {
		defer close(out)

		base := sandbox.RunRequest{
			SessionID:     session.ID,
			WorkspaceSlug: req.WorkspaceID,
			AgentType:     req.AgentType,
			WorkingDir:    workingDir,
			UserMessage:   req.UserMessage,
			Capabilities:  caps,
			Trust:         trust,
		}

		attempt := base
		attempt.ResumeContainer = !session.IsPending() && req.WorkspaceID != ""

		err := o.deps.Sandbox.Run(ctx, attempt, out)
		if errors.Is(err, sandbox.ErrResumeFailed) {
			textAttempt := base
			textAttempt.InjectedHistory = o.buildInjectedHistory(ctx, session.ID)
			err = o.deps.Sandbox.Run(ctx, textAttempt, out)
			if err != nil {
				err = o.deps.Sandbox.Run(ctx, base, out)
			}
		}
		if err != nil {
			out <- models.Event{Type: models.EventError, Time: o.deps.Now(), Error: &models.ErrorPayload{Message: fmt.Sprintf("sandbox turn failed: %v", err)}}
		}
	}()
	return out
}

// buildInjectedHistory renders a session's prior messages as plain
// text for tier 2 of the sandbox resume fallback. Failure or a session
// with no history both yield "": the container then proceeds with no
// injected context, same as a fresh start.
func (o *Orchestrator) buildInjectedHistory(ctx context.Context, sessionID string) string {
	if o.deps.Sessions == nil || sessionID == "" || models.IsPendingSessionID(sessionID) {
		return ""
	}
	_, messages, err := o.deps.Sessions.GetWithMessages(ctx, sessionID)
	if err != nil || len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func (o *Orchestrator) emitError(out chan<- models.Event, title string, err error) {
	out <- models.Event{Type: models.EventError, Time: o.deps.Now(), Error: &models.ErrorPayload{Title: title, Message: err.Error()}}
}

func mcpNames(mcps []models.MCPDescriptor) []string {
	names := make([]string, 0, len(mcps))
	for _, m := range mcps {
		names = append(names, m.Name)
	}
	return names
}

func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
