// Package models provides the domain types shared across the companion
// server: sessions, messages, the normalized event protocol, workspaces,
// and capability descriptors.
package models

import (
	"strings"
	"time"
)

// TrustLevel is the canonical trust level of a session. Legacy synonyms
// are accepted on input (see capfilter.NormalizeTrust) but every stored value
// is one of these two.
type TrustLevel string

const (
	TrustDirect    TrustLevel = "direct"
	TrustSandboxed TrustLevel = "sandboxed"
)

// SessionSource identifies which surface originated a session.
type SessionSource string

const (
	SourceParachute  SessionSource = "parachute"
	SourceClaudeCode SessionSource = "claude-code"
	SourceClaudeWeb  SessionSource = "claude-web"
	SourceChatGPT    SessionSource = "chatgpt"
	SourceTelegram   SessionSource = "telegram"
	SourceDiscord    SessionSource = "discord"
	SourceMatrix     SessionSource = "matrix"
)

// PendingSessionID is the placeholder primary key used before the agent
// runtime assigns its own UUID on first response.
const PendingSessionID = "pending"

// BotLinkage ties a session to exactly one external chat.
type BotLinkage struct {
	Platform  string `json:"platform"`
	ChatID    string `json:"chat_id"`
	ChatType  string `json:"chat_type,omitempty"`
}

// Session is the durable record of one conversation. Identity is the
// agent-runtime session id once assigned; until then ID is
// PendingSessionID.
type Session struct {
	ID              string         `json:"id"`
	Title           string         `json:"title,omitempty"`
	Module          string         `json:"module"`
	Source          SessionSource  `json:"source"`
	WorkingDir      string         `json:"working_directory,omitempty"`
	Model           string         `json:"model,omitempty"`
	MessageCount    int            `json:"message_count"`
	Archived        bool           `json:"archived"`
	CreatedAt       time.Time      `json:"created_at"`
	LastAccessedAt  time.Time      `json:"last_accessed_at"`
	ParentSessionID string         `json:"parent_session_id,omitempty"`
	AgentType       string         `json:"agent_type,omitempty"`
	TrustLevel      TrustLevel     `json:"trust_level"`
	WorkspaceID     string         `json:"workspace_id,omitempty"`
	Bot             *BotLinkage    `json:"bot,omitempty"`
	BridgeSessionID string         `json:"bridge_session_id,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// IsPending reports whether this session has not yet been finalized
// with an agent-runtime id.
func (s *Session) IsPending() bool {
	return s == nil || IsPendingSessionID(s.ID)
}

// IsPendingSessionID reports whether id is a not-yet-finalized
// placeholder, shared by Session.IsPending and by collaborators (the
// sandbox controller) that only have the bare id string to hand.
func IsPendingSessionID(id string) bool {
	return id == "" || id == PendingSessionID || strings.HasPrefix(id, PendingSessionID+"-")
}

// ResumeInfo describes how a turn resumes a prior conversation.
type ResumeInfo struct {
	Resumed          bool   `json:"resumed"`
	TranscriptPath   string `json:"transcript_path,omitempty"`
	TranscriptRoot   string `json:"transcript_root,omitempty"` // "primary" | "legacy"
	InjectedHistory  bool   `json:"injected_history,omitempty"`
	ParentSessionID  string `json:"parent_session_id,omitempty"`
}
