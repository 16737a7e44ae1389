package chatlog

import (
	"context"
	"errors"
	"fmt"

	"fetchr/content"
	"fetchr/storage"

	"github.com/google/uuid"
)

// TakeSnapshot records the current turns and returns the snapshot id.
// Persisted logs store the snapshot as a separate row; temporary logs keep
// it in memory.
func (l *Log) TakeSnapshot(ctx context.Context) (string, error) {
	data, err := l.encode()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if l.IsTemporary() {
		l.mu.Lock()
		if l.snapshots == nil {
			l.snapshots = make(map[string][]byte)
		}
		l.snapshots[id] = data
		l.mu.Unlock()
		return id, nil
	}

	if err := l.svc.rows.Upsert(ctx, id, data); err != nil {
		return "", fmt.Errorf("failed to store snapshot of %s: %w", l.id, err)
	}
	return id, nil
}

// RestoreSnapshot replaces the turns with those of snapshot id and persists
// the result.
func (l *Log) RestoreSnapshot(ctx context.Context, id string) error {
	var data []byte
	if l.IsTemporary() {
		l.mu.Lock()
		data = l.snapshots[id]
		l.mu.Unlock()
		if data == nil {
			return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
		}
	} else {
		row, err := l.svc.rows.FindByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load snapshot %s: %w", id, err)
		}
		data = row.Turns
	}

	turns, err := content.DecodeTurns(data, l.svc.decoder)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", id, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = turns
	l.enqueueLocked(data)
	return nil
}

// DropSnapshot discards snapshot id once it is no longer needed.
func (l *Log) DropSnapshot(ctx context.Context, id string) error {
	if l.IsTemporary() {
		l.mu.Lock()
		delete(l.snapshots, id)
		l.mu.Unlock()
		return nil
	}
	if err := l.svc.rows.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to drop snapshot %s: %w", id, err)
	}
	return nil
}
