package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a chat row does not exist.
var ErrNotFound = errors.New("chat row not found")

// Row is one persisted conversation. Turns holds the JSON array of turns.
type Row struct {
	ID    string
	Turns json.RawMessage
}

// ChatMetadata is a lightweight description of a row for listings.
type ChatMetadata struct {
	ID        string
	TurnCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatStore keeps conversations in a sqlite database.
type ChatStore struct {
	db *sql.DB
}

// NewChatStore opens (or creates) chats.db inside dataDir.
func NewChatStore(dataDir string) (*ChatStore, error) {
	return OpenChatStore(filepath.Join(dataDir, "chats.db"))
}

// OpenChatStore opens the sqlite database at dbPath.
func OpenChatStore(dbPath string) (*ChatStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY between concurrent chat logs.
	db.SetMaxOpenConns(1)

	store := &ChatStore{db: db}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (cs *ChatStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		turns TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at);
	`

	if _, err := cs.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// FindByID returns the row with id, or ErrNotFound.
func (cs *ChatStore) FindByID(ctx context.Context, id string) (*Row, error) {
	var turns string
	err := cs.db.QueryRowContext(ctx, `SELECT turns FROM chats WHERE id = ?`, id).Scan(&turns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", id, err)
	}
	return &Row{ID: id, Turns: json.RawMessage(turns)}, nil
}

// FindMany returns the rows that exist among ids in a single query.
func (cs *ChatStore) FindMany(ctx context.Context, ids []string) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT id, turns FROM chats WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := cs.db.QueryContext(ctx, query, anyArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			id    string
			turns string
		)
		if err := rows.Scan(&id, &turns); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		out = append(out, Row{ID: id, Turns: json.RawMessage(turns)})
	}
	return out, rows.Err()
}

// Upsert writes the turns of id, creating the row if needed.
func (cs *ChatStore) Upsert(ctx context.Context, id string, turns json.RawMessage) error {
	now := time.Now()
	_, err := cs.db.ExecContext(ctx, `
	INSERT INTO chats (id, turns, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET turns = excluded.turns, updated_at = excluded.updated_at
	`, id, string(turns), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert chat %s: %w", id, err)
	}
	return nil
}

// CreateMany inserts empty rows for ids in one transaction. Existing rows are
// left untouched.
func (cs *ChatStore) CreateMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := cs.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO chats (id, turns, created_at, updated_at) VALUES (?, '[]', ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, now, now); err != nil {
			return fmt.Errorf("failed to create chat %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chats: %w", err)
	}
	return nil
}

// Delete removes the row id. Deleting a missing row is not an error.
func (cs *ChatStore) Delete(ctx context.Context, id string) error {
	if _, err := cs.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", id, err)
	}
	return nil
}

// List returns metadata for every chat, most recently updated first.
func (cs *ChatStore) List(ctx context.Context) ([]ChatMetadata, error) {
	rows, err := cs.db.QueryContext(ctx, `
	SELECT id, json_array_length(turns), created_at, updated_at
	FROM chats
	ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var out []ChatMetadata
	for rows.Next() {
		var md ChatMetadata
		if err := rows.Scan(&md.ID, &md.TurnCount, &md.CreatedAt, &md.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		out = append(out, md)
	}
	return out, rows.Err()
}

func (cs *ChatStore) Close() error {
	if cs.db != nil {
		return cs.db.Close()
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anyArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
