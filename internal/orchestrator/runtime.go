package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/companion/internal/permission"
	"github.com/haasonsaas/companion/pkg/models"
)

// DirectRunRequest is what the direct (in-process) path hands to an
// AgentRuntime implementation. CanUseTool and AskUserQuestion wire the
// permission broker (C4) into the runtime's tool-execution loop,
// matching the teacher's `can_use_tool` callback shape.
type DirectRunRequest struct {
	SessionID       string
	Model           string
	SystemPrompt    string
	UserMessage     string
	Attachments     []models.Attachment
	CanUseTool      func(ctx context.Context, toolName string, toolUseID string, input json.RawMessage) permission.Decision
	AskUserQuestion func(ctx context.Context, requestID string, questions []string) (string, error)
}

// AgentRuntime drives the LLM agent loop in-process for direct-trust
// turns. Concrete implementations call out to the agent-runtime SDK
// (anthropic-sdk-go); tests substitute a fake.
type AgentRuntime interface {
	RunDirect(ctx context.Context, req DirectRunRequest) (<-chan models.Event, error)
}
