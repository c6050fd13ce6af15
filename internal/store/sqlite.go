package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clarabot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteLog implements domain.ConversationLog on SQLite. Turns are
// append-only: there is no update or delete statement anywhere in
// this package.
type SQLiteLog struct {
	db     *sql.DB
	logger *slog.Logger

	// lastWrite clamps timestamps so CreatedAt never decreases within
	// a conversation, even if the wall clock steps backwards.
	mu        sync.Mutex
	lastWrite map[string]time.Time
}

func NewSQLiteLog(dbPath string, logger *slog.Logger) (*SQLiteLog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log := &SQLiteLog{db: db, logger: logger, lastWrite: make(map[string]time.Time)}

	if err := log.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return log, nil
}

func (s *SQLiteLog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS turns (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		role            TEXT NOT NULL,
		text            TEXT NOT NULL,
		created_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conv ON turns(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append writes one immutable turn. The conversation row is created
// implicitly on first use.
func (s *SQLiteLog) Append(ctx context.Context, conversationID string, role domain.Role, text string) (domain.Turn, error) {
	if text == "" {
		return domain.Turn{}, domain.ErrEmptyText
	}
	if !role.Valid() {
		return domain.Turn{}, fmt.Errorf("unknown role %q", role)
	}

	now := s.stampFor(conversationID)

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, created_at) VALUES (?, ?)`,
		conversationID, now,
	); err != nil {
		return domain.Turn{}, fmt.Errorf("%w: create conversation: %v", domain.ErrStoreUnavailable, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, string(role), text, now,
	)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("%w: append turn: %v", domain.ErrStoreUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Turn{}, fmt.Errorf("%w: last insert id: %v", domain.ErrStoreUnavailable, err)
	}

	return domain.Turn{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		CreatedAt:      now,
	}, nil
}

// RecentTurns returns up to limit most recent turns, newest first.
// Equal timestamps fall back to insertion order via the rowid.
func (s *SQLiteLog) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, text, created_at
		 FROM turns WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: recent turns: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var role string
		if err := rows.Scan(&t.ID, &t.ConversationID, &role, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %v", domain.ErrStoreUnavailable, err)
		}
		t.Role = domain.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent turns: %v", domain.ErrStoreUnavailable, err)
	}
	return turns, nil
}

// Conversations lists known conversation IDs, most recently created
// first. Used by the history and doctor commands.
func (s *SQLiteLog) Conversations(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan conversation: %v", domain.ErrStoreUnavailable, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// stampFor returns a write timestamp that never decreases within a
// conversation.
func (s *SQLiteLog) stampFor(conversationID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if last, ok := s.lastWrite[conversationID]; ok && now.Before(last) {
		now = last
	}
	s.lastWrite[conversationID] = now
	return now
}

func (s *SQLiteLog) Close() error {
	return s.db.Close()
}
