package sessions

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/companion/pkg/models"
)

// MemoryStore is an in-process Store implementation, grounded on
// _examples/haasonsaas-nexus/internal/sessions/memory.go's discipline
// of cloning every record on the way in and out of the map so callers
// can never mutate store state through a returned pointer.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byBot    map[string]string // "platform\x00chatID" -> session id, non-archived only

	locator TranscriptLocator
	now     Clock
}

// NewMemoryStore constructs an empty store. locator may be nil, in
// which case transcript operations return ErrNotFound.
func NewMemoryStore(locator TranscriptLocator) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		byBot:    make(map[string]string),
		locator:  locator,
		now:      time.Now,
	}
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Bot != nil {
		bot := *s.Bot
		out.Bot = &bot
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func botKey(platform, chatID string) string {
	return platform + "\x00" + chatID
}

// GetOrCreate resolves a requested session id against the store,
// implementing the four-case resume decision of spec.md §4.2:
//  1. requestedID is empty or PendingSessionID -> brand new pending session.
//  2. requestedID names a known, non-archived session -> resume it in place.
//  3. requestedID names an archived session -> unarchive and resume.
//  4. requestedID is unknown -> treat as a fresh id to adopt (first-write-wins).
func (m *MemoryStore) GetOrCreate(ctx context.Context, requestedID, module, workingDir string, trust models.TrustLevel) (ResumeDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if requestedID == "" || requestedID == models.PendingSessionID {
		s := &models.Session{
			ID:             models.PendingSessionID,
			Module:         module,
			WorkingDir:     workingDir,
			TrustLevel:     trust,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
		m.sessions[s.ID] = s
		return ResumeDecision{Session: cloneSession(s), IsNew: true}, nil
	}

	if existing, ok := m.sessions[requestedID]; ok {
		existing.Archived = false
		existing.LastAccessedAt = now
		resumeInfo := models.ResumeInfo{Resumed: true}

		if m.locator != nil {
			if loc, err := m.locator.Locate(ctx, requestedID, workingDir); err == nil && loc != nil {
				resumeInfo.TranscriptPath = loc.Path
				resumeInfo.TranscriptRoot = string(loc.Root)
				if loc.Cwd != "" && loc.Cwd != workingDir {
					existing.WorkingDir = loc.Cwd
				}
			}
		}

		return ResumeDecision{Session: cloneSession(existing), IsNew: false, ResumeInfo: resumeInfo}, nil
	}

	s := &models.Session{
		ID:             requestedID,
		Module:         module,
		WorkingDir:     workingDir,
		TrustLevel:     trust,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	m.sessions[requestedID] = s
	return ResumeDecision{Session: cloneSession(s), IsNew: true}, nil
}

// Finalize rewrites a pending-placeholder session to its agent-runtime
// assigned id, preserving all other fields (invariant P1/P2). It is a
// no-op returning the existing session if placeholderID is already
// finalized under newID.
func (m *MemoryStore) Finalize(ctx context.Context, placeholderID, newID, model, title, agentType, workspaceID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[newID]; ok {
		return cloneSession(existing), nil
	}

	s, ok := m.sessions[placeholderID]
	if !ok {
		s = &models.Session{CreatedAt: m.now()}
	} else {
		delete(m.sessions, placeholderID)
	}

	if s.Bot != nil {
		if key := botKey(s.Bot.Platform, s.Bot.ChatID); m.byBot[key] == placeholderID {
			m.byBot[key] = newID
		}
	}

	s.ID = newID
	if model != "" {
		s.Model = model
	}
	if title != "" {
		s.Title = title
	}
	if agentType != "" {
		s.AgentType = agentType
	}
	if workspaceID != "" {
		s.WorkspaceID = workspaceID
	}
	s.LastAccessedAt = m.now()
	m.sessions[newID] = s
	return cloneSession(s), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, patch Patch) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Title != nil {
		s.Title = *patch.Title
	}
	if patch.Model != nil {
		s.Model = *patch.Model
	}
	if patch.Summary != nil {
		s.Summary = *patch.Summary
	}
	if patch.WorkingDir != nil {
		s.WorkingDir = *patch.WorkingDir
	}
	if patch.WorkspaceID != nil {
		s.WorkspaceID = *patch.WorkspaceID
	}
	if patch.ParentSessionID != nil {
		s.ParentSessionID = *patch.ParentSessionID
	}
	if patch.BridgeSessionID != nil {
		s.BridgeSessionID = *patch.BridgeSessionID
	}
	if patch.MessageCountAdd != 0 {
		s.MessageCount += patch.MessageCountAdd
	}
	if len(patch.Metadata) > 0 {
		if s.Metadata == nil {
			s.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			s.Metadata[k] = v
		}
	}
	s.LastAccessedAt = m.now()
	return cloneSession(s), nil
}

func (m *MemoryStore) Archive(ctx context.Context, id string) (*models.Session, error) {
	return m.setArchived(id, true)
}

func (m *MemoryStore) Unarchive(ctx context.Context, id string) (*models.Session, error) {
	return m.setArchived(id, false)
}

func (m *MemoryStore) setArchived(id string, archived bool) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Archived = archived
	return cloneSession(s), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Bot != nil {
		delete(m.byBot, botKey(s.Bot.Platform, s.Bot.ChatID))
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Touch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastAccessedAt = m.now()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filters ListFilters) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if filters.Module != "" && s.Module != filters.Module {
			continue
		}
		if filters.Workspace != "" && s.WorkspaceID != filters.Workspace {
			continue
		}
		if filters.AgentType != "" && s.AgentType != filters.AgentType {
			continue
		}
		if filters.Archived != nil && s.Archived != *filters.Archived {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(s.Title), strings.ToLower(filters.Search)) {
			continue
		}
		matched = append(matched, s)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastAccessedAt.After(matched[j].LastAccessedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filters.Offset:]
		}
	}
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}

	out := make([]*models.Session, len(matched))
	for i, s := range matched {
		out[i] = cloneSession(s)
	}
	return out, nil
}

func (m *MemoryStore) GetWithMessages(ctx context.Context, id string) (*models.Session, []models.Message, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if m.locator == nil {
		return s, nil, nil
	}
	loc, err := m.locator.Locate(ctx, id, s.WorkingDir)
	if err != nil || loc == nil {
		return s, nil, nil
	}
	msgs, err := m.locator.Messages(ctx, loc)
	if err != nil {
		return s, nil, nil
	}
	for i := range msgs {
		msgs[i].SessionID = id
	}
	return s, msgs, nil
}

func (m *MemoryStore) LocateTranscript(ctx context.Context, id, workingDir string) (*TranscriptLocation, error) {
	if m.locator == nil {
		return nil, nil
	}
	return m.locator.Locate(ctx, id, workingDir)
}

func (m *MemoryStore) WriteSandboxTranscriptAppend(ctx context.Context, id, userMsg, assistantText, workingDir string) error {
	if m.locator == nil {
		return nil
	}
	return m.locator.AppendSandbox(ctx, id, userMsg, assistantText, workingDir)
}

// GetOrCreateForBot enforces invariant (ii): at most one non-archived
// session per (platform, chatID). A second message from the same chat
// resumes the existing session rather than creating a sibling.
func (m *MemoryStore) GetOrCreateForBot(ctx context.Context, platform, chatID, chatType string, trust models.TrustLevel) (*models.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := botKey(platform, chatID)
	if id, ok := m.byBot[key]; ok {
		if s, ok := m.sessions[id]; ok && !s.Archived {
			s.LastAccessedAt = m.now()
			return cloneSession(s), false, nil
		}
		delete(m.byBot, key)
	}

	now := m.now()
	placeholderID := models.PendingSessionID + "-" + uuid.NewString()
	s := &models.Session{
		ID:             placeholderID,
		Source:         sourceForPlatform(platform),
		TrustLevel:     trust,
		CreatedAt:      now,
		LastAccessedAt: now,
		Bot: &models.BotLinkage{
			Platform: platform,
			ChatID:   chatID,
			ChatType: chatType,
		},
	}
	m.sessions[placeholderID] = s
	m.byBot[key] = placeholderID
	return cloneSession(s), true, nil
}

func sourceForPlatform(platform string) models.SessionSource {
	switch platform {
	case "telegram":
		return models.SourceTelegram
	case "discord":
		return models.SourceDiscord
	case "matrix":
		return models.SourceMatrix
	default:
		return models.SourceParachute
	}
}
