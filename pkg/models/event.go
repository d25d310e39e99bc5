package models

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of normalized orchestrator event. See
// spec.md §6 for the full contract; every turn emits a sequence of
// these, terminated by exactly one of done/aborted/error/
// session_unavailable.
type EventType string

const (
	EventSession           EventType = "session"
	EventPromptMetadata     EventType = "prompt_metadata"
	EventUserMessage        EventType = "user_message"
	EventInit               EventType = "init"
	EventModel              EventType = "model"
	EventThinking           EventType = "thinking"
	EventText               EventType = "text"
	EventToolUse            EventType = "tool_use"
	EventToolResult         EventType = "tool_result"
	EventUserQuestion       EventType = "user_question"
	EventDone               EventType = "done"
	EventAborted            EventType = "aborted"
	EventError              EventType = "error"
	EventTypedError         EventType = "typed_error"
	EventSessionUnavailable EventType = "session_unavailable"

	// EventResumeFailed signals a failed persistent-container resume
	// attempt. The sandbox controller intercepts it before it ever
	// reaches an out channel; the orchestrator's three-tier resume
	// fallback reacts to the controller's corresponding error return
	// instead. It is never forwarded to a caller.
	EventResumeFailed EventType = "resume_failed"
)

// Event is the normalized, tagged record streamed to callers for one
// turn. Exactly one of the payload pointers is non-nil for a given
// Type, mirroring the teacher's AgentEvent discriminated-union shape.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	Session           *SessionEventPayload           `json:"session,omitempty"`
	PromptMetadata    *PromptMetadataPayload          `json:"prompt_metadata,omitempty"`
	UserMessage       *UserMessagePayload             `json:"user_message,omitempty"`
	Init              *InitPayload                    `json:"init,omitempty"`
	Model             *ModelPayload                   `json:"model,omitempty"`
	Thinking          *ThinkingPayload                `json:"thinking,omitempty"`
	Text              *TextPayload                    `json:"text,omitempty"`
	ToolUse           *ToolUsePayload                 `json:"tool_use,omitempty"`
	ToolResult        *ToolResultPayload              `json:"tool_result,omitempty"`
	UserQuestion      *UserQuestionPayload            `json:"user_question,omitempty"`
	Done              *DonePayload                    `json:"done,omitempty"`
	Aborted           *AbortedPayload                 `json:"aborted,omitempty"`
	Error             *ErrorPayload                   `json:"error,omitempty"`
	SessionUnavailable *SessionUnavailablePayload     `json:"session_unavailable,omitempty"`
}

type SessionEventPayload struct {
	SessionID       string     `json:"session_id,omitempty"`
	WorkingDir      string     `json:"working_directory"`
	ResumeInfo      ResumeInfo `json:"resume_info"`
	TrustLevel      TrustLevel `json:"trust_level"`
}

type PromptMetadataPayload struct {
	PromptSource       string   `json:"prompt_source"`
	ContextFiles       []string `json:"context_files"`
	ContextTokens      int      `json:"context_tokens"`
	ContextTruncated   bool     `json:"context_truncated"`
	AvailableAgents    []string `json:"available_agents"`
	AvailableSkills    []string `json:"available_skills"`
	AvailableMCPs      []string `json:"available_mcps"`
	BasePromptTokens   int      `json:"base_prompt_tokens"`
	TotalPromptTokens  int      `json:"total_prompt_tokens"`
	TrustMode          TrustLevel `json:"trust_mode"`
}

type UserMessagePayload struct {
	Content string `json:"content"`
}

type InitPayload struct {
	Tools          []string `json:"tools"`
	PermissionMode string   `json:"permission_mode"`
}

type ModelPayload struct {
	Model string `json:"model"`
}

type ThinkingPayload struct {
	Content string `json:"content"`
}

type TextPayload struct {
	Content string `json:"content"` // cumulative
	Delta   string `json:"delta"`   // new since last event
}

type ToolUsePayload struct {
	ToolID    string          `json:"id"`
	ToolName  string          `json:"name"`
	ToolInput json.RawMessage `json:"input"`
}

type ToolResultPayload struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

type UserQuestionPayload struct {
	RequestID string   `json:"request_id"`
	SessionID string   `json:"session_id"`
	Questions []string `json:"questions"`
}

type ToolCallRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input,omitempty"`
}

type PermissionDenial struct {
	ToolName string `json:"tool_name"`
	Reason   string `json:"reason"`
}

type DonePayload struct {
	Response          string             `json:"response"`
	SessionID         string             `json:"session_id"`
	MessageCount      int                `json:"message_count"`
	Model             string             `json:"model"`
	DurationMS        int64              `json:"duration_ms"`
	ToolCalls         []ToolCallRecord   `json:"tool_calls,omitempty"`
	PermissionDenials []PermissionDenial `json:"permission_denials,omitempty"`
}

type AbortedPayload struct {
	Message         string `json:"message"`
	SessionID       string `json:"session_id"`
	PartialResponse string `json:"partial_response,omitempty"`
}

type ErrorPayload struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

type SessionUnavailablePayload struct {
	Reason            string `json:"reason"`
	SessionID         string `json:"session_id"`
	HasMarkdownHistory bool  `json:"has_markdown_history"`
	MessageCount      int    `json:"message_count"`
	Message           string `json:"message"`
}
