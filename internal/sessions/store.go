// Package sessions implements C2: the durable session metadata index,
// transcript locator, and placeholder→finalized-id rewrite. Grounded on
// _examples/haasonsaas-nexus/internal/sessions/{store.go,memory.go}
// (interface shape, clone-on-read/write discipline) and
// _examples/original_source/parachute/core/{session_manager.py,
// orchestrator.py} for the resume-decision and transcript-location
// algorithms in spec.md §4.2.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/companion/pkg/models"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrBotConflict   = errors.New("an active session already exists for this bot chat")
	ErrSessionExists = errors.New("session already exists")
)

// ListFilters narrows a List call.
type ListFilters struct {
	Module     string
	Archived   *bool
	Workspace  string
	Search     string
	AgentType  string
	Limit      int
	Offset     int
}

// Patch describes a partial update to a session; nil fields are left
// unchanged.
type Patch struct {
	Title           *string
	Model           *string
	Summary         *string
	WorkingDir      *string
	WorkspaceID     *string
	ParentSessionID *string
	BridgeSessionID *string
	MessageCountAdd int
	Metadata        map[string]any // merged, not replaced
}

// ResumeDecision is the outcome of resolving a requested session id
// against the store and transcript locator, per spec.md §4.2.
type ResumeDecision struct {
	Session    *models.Session
	IsNew      bool
	ResumeInfo models.ResumeInfo
}

// TranscriptRoot identifies which of the two canonical transcript roots
// a located transcript was found under.
type TranscriptRoot string

const (
	RootPrimary TranscriptRoot = "primary"
	RootLegacy  TranscriptRoot = "legacy"
)

// TranscriptLocation is the result of LocateTranscript.
type TranscriptLocation struct {
	Path string
	Root TranscriptRoot
	Cwd  string // the cwd this transcript is actually keyed under
}

// Store is the C2 contract.
type Store interface {
	GetOrCreate(ctx context.Context, requestedID, module, workingDir string, trust models.TrustLevel) (ResumeDecision, error)
	Finalize(ctx context.Context, placeholderID, newID, model, title, agentType, workspaceID string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, id string, patch Patch) (*models.Session, error)
	Archive(ctx context.Context, id string) (*models.Session, error)
	Unarchive(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) error
	List(ctx context.Context, filters ListFilters) ([]*models.Session, error)
	GetWithMessages(ctx context.Context, id string) (*models.Session, []models.Message, error)
	LocateTranscript(ctx context.Context, id, workingDir string) (*TranscriptLocation, error)
	WriteSandboxTranscriptAppend(ctx context.Context, id, userMsg, assistantText, workingDir string) error

	// GetOrCreateForBot resolves or creates the unique non-archived
	// session for a (platform, chatID) bot linkage, enforcing
	// invariant (ii) of spec.md §3.
	GetOrCreateForBot(ctx context.Context, platform, chatID, chatType string, trust models.TrustLevel) (*models.Session, bool, error)
}

// Clock is injected so tests can control time; defaults to time.Now.
type Clock func() time.Time
