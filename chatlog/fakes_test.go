package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"fetchr/content"
	"fetchr/storage"
	"fetchr/tools"

	"github.com/stretchr/testify/require"
)

// memRows is a RowStore that records every call.
type memRows struct {
	mu        sync.Mutex
	rows      map[string]json.RawMessage
	calls     []string
	upserts   []json.RawMessage
	failWrite error
}

func newMemRows() *memRows {
	return &memRows{rows: map[string]json.RawMessage{}}
}

func (m *memRows) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *memRows) FindByID(_ context.Context, id string) (*storage.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindByID")
	turns, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return &storage.Row{ID: id, Turns: turns}, nil
}

func (m *memRows) FindMany(_ context.Context, ids []string) ([]storage.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindMany")
	var out []storage.Row
	for _, id := range ids {
		if turns, ok := m.rows[id]; ok {
			out = append(out, storage.Row{ID: id, Turns: turns})
		}
	}
	return out, nil
}

func (m *memRows) Upsert(_ context.Context, id string, turns json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Upsert")
	if m.failWrite != nil {
		return m.failWrite
	}
	m.rows[id] = slices.Clone(turns)
	m.upserts = append(m.upserts, slices.Clone(turns))
	return nil
}

func (m *memRows) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Delete")
	delete(m.rows, id)
	return nil
}

func (m *memRows) CreateMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateMany")
	for _, id := range ids {
		if _, ok := m.rows[id]; !ok {
			m.rows[id] = json.RawMessage("[]")
		}
	}
	return nil
}

func (m *memRows) count(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

// memCache is a Cache that records every call.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	calls   []string
	msets   []map[string][]byte
	failGet bool
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "Get")
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "Set")
	c.entries[key] = slices.Clone(value)
	return nil
}

func (c *memCache) MGet(_ context.Context, keys []string) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "MGet")
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = c.entries[k]
	}
	return out, nil
}

func (c *memCache) MSet(_ context.Context, entries map[string][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "MSet")
	c.msets = append(c.msets, entries)
	for k, v := range entries {
		c.entries[k] = slices.Clone(v)
	}
	return nil
}

func (c *memCache) count(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.calls {
		if got == call {
			n++
		}
	}
	return n
}

func newTestService() (*Service, *memRows, *memCache) {
	rows, cache := newMemRows(), newMemCache()
	return NewService(rows, cache, tools.Default()), rows, cache
}

func toolUse(t *testing.T, name, id, input string) *content.ToolUse {
	t.Helper()
	use, err := tools.Default().CreateRequest(name, id, json.RawMessage(input))
	require.NoError(t, err)
	return use
}

func user(text string) content.Turn {
	return content.TextTurn(content.RoleUser, text)
}

func assistant(text string) content.Turn {
	return content.TextTurn(content.RoleAssistant, text)
}

func useTurn(uses ...*content.ToolUse) content.Turn {
	blocks := make([]content.Block, len(uses))
	for i, u := range uses {
		blocks[i] = u
	}
	return content.BlockTurn(content.RoleAssistant, blocks...)
}

func resultTurn(id string, payload content.ResponsePayload) content.Turn {
	return content.BlockTurn(content.RoleUser, content.NewToolResult(id, payload))
}

func encode(t *testing.T, turns []content.Turn) string {
	t.Helper()
	data, err := content.EncodeTurns(turns)
	require.NoError(t, err)
	return string(data)
}
