package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/haasonsaas/companion/pkg/models"
)

// SQLiteStore durably persists the session index at <vault>/Chat/
// sessions.db, per spec.md §6's persisted-layout table. It delegates
// every resume-decision, clone-on-read/write, and bot-linkage-dedup
// rule to an in-process MemoryStore (same package, so this simply
// wraps it) and write-through persists the resulting row after each
// mutation — grounded on the teacher's
// _examples/haasonsaas-nexus/internal/sessions/cockroach.go prepared-
// statement CRUD shape, adapted to modernc.org/sqlite's pure-Go driver
// and to a single JSON-blob-per-row schema instead of CockroachDB's
// wide relational columns, since this store has exactly one reader
// process and no need for server-side relational queries.
type SQLiteStore struct {
	*MemoryStore
	db *sql.DB

	stmtUpsert *sql.Stmt
	stmtDelete *sql.Stmt
}

// bot linkage is reconstructed from each row's embedded Bot field on
// load (see loadSessions), so no separate bot_links table is kept.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
`

// NewSQLiteStore opens (creating if absent) the sqlite database at
// path, replays every stored session into an in-process MemoryStore,
// and returns a Store that persists future mutations back to it.
func NewSQLiteStore(path string, locator TranscriptLocator) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sessions.db: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions.db schema: %w", err)
	}

	mem := NewMemoryStore(locator)
	if err := loadSessions(db, mem); err != nil {
		db.Close()
		return nil, err
	}

	stmtUpsert, err := db.Prepare(`INSERT INTO sessions (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	stmtDelete, err := db.Prepare(`DELETE FROM sessions WHERE id = ?`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare delete: %w", err)
	}

	return &SQLiteStore{MemoryStore: mem, db: db, stmtUpsert: stmtUpsert, stmtDelete: stmtDelete}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.stmtUpsert.Close()
	s.stmtDelete.Close()
	return s.db.Close()
}

func loadSessions(db *sql.DB, mem *MemoryStore) error {
	rows, err := db.Query(`SELECT data FROM sessions`)
	if err != nil {
		return fmt.Errorf("load sessions.db rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("scan session row: %w", err)
		}
		var s models.Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return fmt.Errorf("unmarshal session row: %w", err)
		}
		mem.sessions[s.ID] = &s
		if s.Bot != nil {
			mem.byBot[botKey(s.Bot.Platform, s.Bot.ChatID)] = s.ID
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) persist(session *models.Session) error {
	if session == nil {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.stmtUpsert.Exec(session.ID, string(data))
	return err
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, requestedID, module, workingDir string, trust models.TrustLevel) (ResumeDecision, error) {
	decision, err := s.MemoryStore.GetOrCreate(ctx, requestedID, module, workingDir, trust)
	if err != nil {
		return decision, err
	}
	if decision.IsNew && decision.Session.ID != models.PendingSessionID {
		if err := s.persist(decision.Session); err != nil {
			return decision, err
		}
	}
	return decision, nil
}

func (s *SQLiteStore) Finalize(ctx context.Context, placeholderID, newID, model, title, agentType, workspaceID string) (*models.Session, error) {
	session, err := s.MemoryStore.Finalize(ctx, placeholderID, newID, model, title, agentType, workspaceID)
	if err != nil {
		return nil, err
	}
	if _, execErr := s.stmtDelete.Exec(placeholderID); execErr != nil {
		return session, fmt.Errorf("delete placeholder row: %w", execErr)
	}
	return session, s.persist(session)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch) (*models.Session, error) {
	session, err := s.MemoryStore.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return session, s.persist(session)
}

func (s *SQLiteStore) Archive(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.MemoryStore.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	return session, s.persist(session)
}

func (s *SQLiteStore) Unarchive(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.MemoryStore.Unarchive(ctx, id)
	if err != nil {
		return nil, err
	}
	return session, s.persist(session)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := s.MemoryStore.Delete(ctx, id); err != nil {
		return err
	}
	_, err := s.stmtDelete.Exec(id)
	return err
}

func (s *SQLiteStore) Touch(ctx context.Context, id string) error {
	if err := s.MemoryStore.Touch(ctx, id); err != nil {
		return err
	}
	session, err := s.MemoryStore.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.persist(session)
}

func (s *SQLiteStore) GetOrCreateForBot(ctx context.Context, platform, chatID, chatType string, trust models.TrustLevel) (*models.Session, bool, error) {
	session, isNew, err := s.MemoryStore.GetOrCreateForBot(ctx, platform, chatID, chatType, trust)
	if err != nil {
		return session, isNew, err
	}
	if isNew {
		if err := s.persist(session); err != nil {
			return session, isNew, err
		}
	}
	return session, isNew, nil
}
