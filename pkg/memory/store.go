package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the canonical durable storage: one row per session holding
// the full serialized ConversationContext as a JSON document.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the context database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create context db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS contexts (
			session_id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS contexts_updated_idx ON contexts(updated_at_ms DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init context schema: %w", err)
		}
	}
	return nil
}

// Load returns the durable context for sessionID. The second return value
// reports whether a record exists.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*ConversationContext, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM contexts WHERE session_id = ?`, sessionID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load context %s: %w", sessionID, err)
	}

	cc := &ConversationContext{}
	if err := json.Unmarshal([]byte(doc), cc); err != nil {
		return nil, false, fmt.Errorf("decode context %s: %w", sessionID, err)
	}
	normalizeLoaded(cc, sessionID)
	return cc, true, nil
}

// Save upserts the full serialized context.
func (s *SQLiteStore) Save(ctx context.Context, cc *ConversationContext) error {
	if cc == nil || cc.SessionID == "" {
		return fmt.Errorf("save context: missing session id")
	}
	doc, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("encode context %s: %w", cc.SessionID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contexts (session_id, document, updated_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			document = excluded.document,
			updated_at_ms = excluded.updated_at_ms
	`, cc.SessionID, string(doc), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save context %s: %w", cc.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contexts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete context %s: %w", sessionID, err)
	}
	return nil
}

// ListSessionIDs returns session keys ordered by most recently written.
func (s *SQLiteStore) ListSessionIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM contexts ORDER BY updated_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// normalizeLoaded repairs nil slices/maps after JSON decoding so callers
// never see a partially-initialized aggregate.
func normalizeLoaded(cc *ConversationContext, sessionID string) {
	if cc.SessionID == "" {
		cc.SessionID = sessionID
	}
	if cc.ShortTerm == nil {
		cc.ShortTerm = []MemoryEntry{}
	}
	if cc.MediumTerm == nil {
		cc.MediumTerm = []MemoryChunk{}
	}
	if cc.LongTerm == nil {
		cc.LongTerm = []MemoryChunk{}
	}
	if cc.Facts == nil {
		cc.Facts = []Fact{}
	}
	if cc.Metadata == nil {
		cc.Metadata = map[string]string{}
	}
}

// MemStore is an in-memory Store used by tests and as a no-persistence
// fallback. Contexts are deep-copied on both Save and Load.
type MemStore struct {
	mu   sync.Mutex
	docs map[string]*ConversationContext
}

func NewMemStore() *MemStore {
	return &MemStore{docs: map[string]*ConversationContext{}}
}

func (m *MemStore) Load(_ context.Context, sessionID string) (*ConversationContext, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc, ok := m.docs[sessionID]
	if !ok {
		return nil, false, nil
	}
	return cc.Clone(), true, nil
}

func (m *MemStore) Save(_ context.Context, cc *ConversationContext) error {
	if cc == nil || cc.SessionID == "" {
		return fmt.Errorf("save context: missing session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[cc.SessionID] = cc.Clone()
	return nil
}

func (m *MemStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, sessionID)
	return nil
}

func (m *MemStore) ListSessionIDs(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemStore) Close() error { return nil }
