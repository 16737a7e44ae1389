// Package chatlog stores conversations and keeps them in a shape model
// providers accept.
//
// A Log is the in-memory view of one conversation. Mutations are applied in
// memory at once and persisted through a per-log queue, so callers never wait
// on storage. Logs created with Service.NewTemporary or derived with
// Temporary and Filter are never written.
package chatlog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"fetchr/content"
	"fetchr/storage"
	"fetchr/tools"
)

// Log is one conversation.
type Log struct {
	id    string
	svc   *Service
	queue *writeQueue

	mu    sync.Mutex
	turns []content.Turn

	// snapshots of a temporary log, keyed by snapshot id
	snapshots map[string][]byte
}

// ID returns the conversation id.
func (l *Log) ID() string { return l.id }

// IsTemporary reports whether the log lives only in memory.
func (l *Log) IsTemporary() bool { return l.queue == nil }

// Turns returns the current turns. The slice is a copy and shares blocks with
// the log. Shared blocks are never modified; the Update methods swap in new
// ones.
func (l *Log) Turns() []content.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.turns)
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Append adds turns and schedules a durable write.
func (l *Log) Append(turns ...content.Turn) {
	if len(turns) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turns...)
	l.persistLocked()
}

// AddToolUse appends an assistant turn holding use.
func (l *Log) AddToolUse(use *content.ToolUse) {
	l.Append(content.BlockTurn(content.RoleAssistant, use))
}

// AddToolResult appends a user turn answering the tool call toolUseID.
func (l *Log) AddToolResult(payload content.ResponsePayload, toolUseID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasPendingLocked(toolUseID) {
		return fmt.Errorf("tool call %s: %w", toolUseID, ErrNoMatchingToolCall)
	}
	l.turns = append(l.turns, content.BlockTurn(content.RoleUser, content.NewToolResult(toolUseID, payload)))
	l.persistLocked()
	return nil
}

func (l *Log) hasPendingLocked(toolUseID string) bool {
	found := false
	for _, t := range l.turns {
		for _, u := range t.ToolUses() {
			if u.ID == toolUseID {
				found = true
			}
		}
		for _, r := range t.ToolResults() {
			if r.ToolUseID == toolUseID {
				return false
			}
		}
	}
	return found
}

// ToolUse returns the tool call with id.
func (l *Log) ToolUse(id string) (*content.ToolUse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, j := l.toolUseLocked(id); i >= 0 {
		return l.turns[i].Blocks[j].(*content.ToolUse), nil
	}
	return nil, fmt.Errorf("tool use %s: %w", id, ErrNotFound)
}

// toolUseLocked returns the turn and block index of the tool call id, or -1.
func (l *Log) toolUseLocked(id string) (int, int) {
	for i, t := range l.turns {
		for j, b := range t.Blocks {
			if u, ok := b.(*content.ToolUse); ok && u.ID == id {
				return i, j
			}
		}
	}
	return -1, -1
}

// ToolResult returns the latest result for the tool call toolUseID.
func (l *Log) ToolResult(toolUseID string) (*content.ToolResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, j := l.toolResultLocked(toolUseID); i >= 0 {
		return l.turns[i].Blocks[j].(*content.ToolResult), nil
	}
	return nil, fmt.Errorf("tool result %s: %w", toolUseID, ErrNotFound)
}

func (l *Log) toolResultLocked(toolUseID string) (int, int) {
	for i := len(l.turns) - 1; i >= 0; i-- {
		for j, b := range l.turns[i].Blocks {
			if r, ok := b.(*content.ToolResult); ok && r.ToolUseID == toolUseID {
				return i, j
			}
		}
	}
	return -1, -1
}

// PendingToolUseID returns the id of the latest assistant call of toolName
// that has no result after it. A placeholder result handed out while the call
// runs elsewhere does not count as an answer.
func (l *Log) PendingToolUseID(toolName string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	answered := make(map[string]bool)
	for i := len(l.turns) - 1; i >= 0; i-- {
		t := l.turns[i]
		for _, r := range t.ToolResults() {
			if !tools.IsPlaceholder(r.Payload) {
				answered[r.ToolUseID] = true
			}
		}
		if t.Role != content.RoleAssistant {
			continue
		}
		uses := t.ToolUses()
		for j := len(uses) - 1; j >= 0; j-- {
			if uses[j].Name == toolName && !answered[uses[j].ID] {
				return uses[j].ID, nil
			}
		}
	}
	return "", fmt.Errorf("pending %s call: %w", toolName, ErrNotFound)
}

// AddToolUseMetadata merges md into the request payload of the tool call id.
func (l *Log) AddToolUseMetadata(id string, md map[string]any) error {
	return l.UpdateToolUse(id, func(u *content.ToolUse) {
		if u.Payload != nil {
			u.Payload.AddMetadata(md)
		}
	})
}

// UpdateToolUse applies fn to a copy of the tool call id, swaps the copy into
// the log and persists it. Blocks already handed out by Turns are never
// changed.
func (l *Log) UpdateToolUse(id string, fn func(*content.ToolUse)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, j := l.toolUseLocked(id)
	if i < 0 {
		return fmt.Errorf("tool use %s: %w", id, ErrNotFound)
	}
	cloned, err := content.CloneTurns(l.turns[i:i+1], l.svc.decoder)
	if err != nil {
		return fmt.Errorf("failed to copy tool use %s: %w", id, err)
	}
	u := cloned[0].Blocks[j].(*content.ToolUse)
	fn(u)
	l.replaceBlockLocked(i, j, u)
	l.persistLocked()
	return nil
}

// UpdateToolResult replaces the result of the tool call toolUseID with
// payload. This is how a tool executed outside the agent loop reports back
// over its placeholder result.
func (l *Log) UpdateToolResult(toolUseID string, payload content.ResponsePayload) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, j := l.toolResultLocked(toolUseID)
	if i < 0 {
		return fmt.Errorf("tool result %s: %w", toolUseID, ErrNotFound)
	}
	l.replaceBlockLocked(i, j, content.NewToolResult(toolUseID, payload))
	l.persistLocked()
	return nil
}

// replaceBlockLocked puts blk at block j of turn i on a fresh Blocks slice so
// copies of the turn keep their old block.
func (l *Log) replaceBlockLocked(i, j int, blk content.Block) {
	blocks := slices.Clone(l.turns[i].Blocks)
	blocks[j] = blk
	l.turns[i].Blocks = blocks
}

// Normalize repairs the log in place and returns the repaired turns. The log
// is only written back when the repair changed something.
func (l *Log) Normalize() ([]content.Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	before, err := content.EncodeTurns(l.turns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat log %s: %w", l.id, err)
	}
	normalized := Normalize(l.turns, l.svc.logger)
	after, err := content.EncodeTurns(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat log %s: %w", l.id, err)
	}

	l.turns = normalized
	if string(before) != string(after) {
		l.svc.logger.Debugw("Repaired chat log", "chatID", l.id, "turns", len(normalized))
		l.enqueueLocked(after)
	}
	return slices.Clone(normalized), nil
}

// Temporary returns an in-memory copy of the log.
func (l *Log) Temporary() (*Log, error) {
	return l.Filter(func(content.Turn) bool { return true })
}

// Filter returns an in-memory copy holding the turns keep accepts.
func (l *Log) Filter(keep func(content.Turn) bool) (*Log, error) {
	l.mu.Lock()
	kept := make([]content.Turn, 0, len(l.turns))
	for _, t := range l.turns {
		if keep(t) {
			kept = append(kept, t)
		}
	}
	turns, err := content.CloneTurns(kept, l.svc.decoder)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to copy chat log %s: %w", l.id, err)
	}
	return l.svc.NewTemporary(turns), nil
}

// Clone persists a copy of the log under id. It fails with ErrAlreadyExists
// when id is taken.
func (l *Log) Clone(ctx context.Context, id string) (*Log, error) {
	_, err := l.svc.rows.FindByID(ctx, id)
	if err == nil {
		return nil, fmt.Errorf("chat log %s: %w", id, ErrAlreadyExists)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check chat log %s: %w", id, err)
	}

	data, err := l.encode()
	if err != nil {
		return nil, err
	}
	turns, err := content.DecodeTurns(data, l.svc.decoder)
	if err != nil {
		return nil, err
	}
	if err := l.svc.store(ctx, id, data); err != nil {
		return nil, err
	}
	return l.svc.newLog(id, turns), nil
}

// Flush waits until every queued write of the log has finished.
func (l *Log) Flush(ctx context.Context) error {
	if l.queue == nil {
		return nil
	}
	return l.queue.flush(ctx)
}

func (l *Log) encode() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := content.EncodeTurns(l.turns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat log %s: %w", l.id, err)
	}
	return data, nil
}

// persistLocked captures the current turns and queues them for writing.
func (l *Log) persistLocked() {
	if l.queue == nil {
		return
	}
	data, err := content.EncodeTurns(l.turns)
	if err != nil {
		l.svc.logger.Errorw("Failed to encode chat log", "chatID", l.id, "error", err)
		return
	}
	l.enqueueLocked(data)
}

func (l *Log) enqueueLocked(data []byte) {
	if l.queue == nil {
		return
	}
	l.queue.enqueue(data)
}
