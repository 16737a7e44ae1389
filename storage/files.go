package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// chatFile is the on-disk form of a chat in the file store.
type chatFile struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Turns     json.RawMessage `json:"turns"`
}

// FileStore keeps one JSON file per chat. It suits single-user installs
// where a database is unwanted.
type FileStore struct {
	chatsDir string
	mu       sync.Mutex
}

// NewFileStore creates the chats directory inside dataDir if needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	chatsDir := filepath.Join(dataDir, "chats")

	// Conversations may hold personal data: user-only access.
	if err := os.MkdirAll(chatsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create chats directory: %w", err)
	}

	return &FileStore{chatsDir: chatsDir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.chatsDir, fmt.Sprintf("%s.json", id))
}

func (s *FileStore) read(id string) (*chatFile, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat file: %w", err)
	}

	var cf chatFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat %s: %w", id, err)
	}
	if len(cf.Turns) == 0 {
		cf.Turns = json.RawMessage("[]")
	}
	return &cf, nil
}

func (s *FileStore) write(cf *chatFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}

	// Write then rename so readers never see a partial file.
	tmp := s.path(cf.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write chat file: %w", err)
	}
	if err := os.Rename(tmp, s.path(cf.ID)); err != nil {
		return fmt.Errorf("failed to replace chat file: %w", err)
	}
	return nil
}

func (s *FileStore) FindByID(_ context.Context, id string) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return &Row{ID: cf.ID, Turns: cf.Turns}, nil
}

func (s *FileStore) FindMany(_ context.Context, ids []string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Row
	for _, id := range ids {
		cf, err := s.read(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Row{ID: cf.ID, Turns: cf.Turns})
	}
	return out, nil
}

func (s *FileStore) Upsert(_ context.Context, id string, turns json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cf, err := s.read(id)
	if errors.Is(err, ErrNotFound) {
		cf = &chatFile{ID: id, CreatedAt: now}
	} else if err != nil {
		return err
	}
	cf.Turns = turns
	cf.UpdatedAt = now
	return s.write(cf)
}

func (s *FileStore) CreateMany(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		if _, err := os.Stat(s.path(id)); err == nil {
			continue
		}
		cf := &chatFile{ID: id, CreatedAt: now, UpdatedAt: now, Turns: json.RawMessage("[]")}
		if err := s.write(cf); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the file of id. Deleting a missing chat is not an error.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete chat file: %w", err)
	}
	return nil
}

// List returns metadata for all chats, sorted by update time (newest first).
func (s *FileStore) List(_ context.Context) ([]ChatMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.chatsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chats directory: %w", err)
	}

	var out []ChatMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		cf, err := s.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // Skip corrupted files
		}
		var turns []json.RawMessage
		_ = json.Unmarshal(cf.Turns, &turns)
		out = append(out, ChatMetadata{
			ID:        cf.ID,
			TurnCount: len(turns),
			CreatedAt: cf.CreatedAt,
			UpdatedAt: cf.UpdatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	return out, nil
}

func (s *FileStore) Close() error { return nil }
