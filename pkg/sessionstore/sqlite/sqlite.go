// Package sqlite is a reference session backend: load/save/reset a
// conversation by session id, backed by SQLite. The core Agent never
// depends on this package directly — an embedder wires it around
// Agent.Conversation()/Agent.LoadConversation() itself.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/agentcore/pkg/content"
)

// Store implements the Session backend contract against a SQLite
// database using a New/migrate/WAL-pragma setup shape.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		conversation TEXT NOT NULL DEFAULT '{}',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`)
	return err
}

// Load returns the conversation stored for sessionID, or an empty
// conversation if the session has never been saved.
func (s *Store) Load(ctx context.Context, sessionID string) (content.Conversation, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation FROM sessions WHERE id = ?`, sessionID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return content.Conversation{}, nil
	}
	if err != nil {
		return content.Conversation{}, fmt.Errorf("sessionstore: loading %q: %w", sessionID, err)
	}

	var conv content.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return content.Conversation{}, fmt.Errorf("sessionstore: decoding %q: %w", sessionID, err)
	}
	return conv, nil
}

// Save persists conv under sessionID, overwriting any prior state.
func (s *Store) Save(ctx context.Context, sessionID string, conv content.Conversation) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("sessionstore: encoding %q: %w", sessionID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, conversation, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET conversation = excluded.conversation, updated_at = excluded.updated_at`,
		sessionID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("sessionstore: saving %q: %w", sessionID, err)
	}
	return nil
}

// Reset discards any conversation stored for sessionID.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("sessionstore: resetting %q: %w", sessionID, err)
	}
	return nil
}
