package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/haasonsaas/companion/pkg/models"
)

// AnthropicRuntime drives the direct-trust path in-process against the
// Anthropic Messages streaming API. Grounded on
// _examples/haasonsaas-nexus/internal/agent/providers/anthropic.go's
// createStream/processStream pair: a content-block-start/delta loop
// translated into this module's normalized event vocabulary instead of
// the teacher's CompletionChunk shape.
type AnthropicRuntime struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// NewAnthropicRuntime constructs a runtime bound to apiKey. defaultModel
// is used when a turn does not specify one.
func NewAnthropicRuntime(apiKey, defaultModel string) *AnthropicRuntime {
	return &AnthropicRuntime{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
		maxTokens:    4096,
	}
}

func (r *AnthropicRuntime) model(requested string) string {
	if requested != "" {
		return requested
	}
	if r.defaultModel != "" {
		return r.defaultModel
	}
	return "claude-sonnet-4-20250514"
}

// RunDirect streams one turn's events. It issues a single Messages.New
// call (no multi-round tool-execution loop). For a session that still
// has a pending placeholder id it first emits a session event carrying
// a newly minted UUID, under which the orchestrator finalizes the
// session. Each tool_use block gets a permission decision via
// CanUseTool, matching spec.md §4.4's auto-approve-for-direct-trust
// behavior, and is then surfaced as a ToolUse event; actual tool execution and
// re-submission is the caller's responsibility via a follow-up turn
// (see DESIGN.md for the scope note on this simplification).
func (r *AnthropicRuntime) RunDirect(ctx context.Context, req DirectRunRequest) (<-chan models.Event, error) {
	out := make(chan models.Event, 16)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model(req.Model)),
		MaxTokens: int64(r.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)),
		},
	}

	stream := r.client.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(out)
		start := time.Now()
		var responseText string
		var toolCalls []models.ToolCallRecord
		var denials []models.PermissionDenial

		// The Messages API keeps no session of its own, so a new
		// conversation's id is minted here.
		sessionID := req.SessionID
		if models.IsPendingSessionID(sessionID) {
			sessionID = uuid.NewString()
			out <- models.Event{Type: models.EventSession, Time: time.Now(), Session: &models.SessionEventPayload{SessionID: sessionID}}
		}

		out <- models.Event{Type: models.EventModel, Time: time.Now(), Model: &models.ModelPayload{Model: string(params.Model)}}

		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if textDelta := variant.Delta.Text; textDelta != "" {
					responseText += textDelta
					out <- models.Event{Type: models.EventText, Time: time.Now(), Text: &models.TextPayload{Content: responseText, Delta: textDelta}}
				}
				if thinkingDelta := variant.Delta.Thinking; thinkingDelta != "" {
					out <- models.Event{Type: models.EventThinking, Time: time.Now(), Thinking: &models.ThinkingPayload{Content: thinkingDelta}}
				}
			case anthropic.ContentBlockStartEvent:
				if toolUse := variant.ContentBlock.AsToolUse(); toolUse.ID != "" {
					decision := req.CanUseTool(ctx, toolUse.Name, toolUse.ID, nil)
					toolCalls = append(toolCalls, models.ToolCallRecord{ID: toolUse.ID, Name: toolUse.Name})
					if !decision.Allowed {
						denials = append(denials, models.PermissionDenial{ToolName: toolUse.Name, Reason: decision.Reason})
					}
					out <- models.Event{Type: models.EventToolUse, Time: time.Now(), ToolUse: &models.ToolUsePayload{ToolID: toolUse.ID, ToolName: toolUse.Name}}
				}
			}
		}

		if err := stream.Err(); err != nil {
			out <- models.Event{Type: models.EventError, Time: time.Now(), Error: &models.ErrorPayload{Message: fmt.Sprintf("anthropic stream: %v", err)}}
			return
		}

		out <- models.Event{
			Type: models.EventDone,
			Time: time.Now(),
			Done: &models.DonePayload{
				Response:          responseText,
				SessionID:         sessionID,
				Model:             string(params.Model),
				DurationMS:        time.Since(start).Milliseconds(),
				ToolCalls:         toolCalls,
				PermissionDenials: denials,
			},
		}
	}()

	return out, nil
}
