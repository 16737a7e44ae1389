package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowStore is the surface both durable stores share.
type rowStore interface {
	FindByID(ctx context.Context, id string) (*Row, error)
	FindMany(ctx context.Context, ids []string) ([]Row, error)
	Upsert(ctx context.Context, id string, turns json.RawMessage) error
	CreateMany(ctx context.Context, ids []string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]ChatMetadata, error)
	Close() error
}

func stores(t *testing.T) map[string]rowStore {
	t.Helper()

	chats, err := NewChatStore(t.TempDir())
	require.NoError(t, err)
	files, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		chats.Close()
		files.Close()
	})
	return map[string]rowStore{"sqlite": chats, "files": files}
}

func TestRowStores(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing row", func(t *testing.T) {
				_, err := store.FindByID(ctx, "nope")
				assert.True(t, errors.Is(err, ErrNotFound))
			})

			t.Run("upsert then find", func(t *testing.T) {
				turns := json.RawMessage(`[{"role":"user","content":"hi"}]`)
				require.NoError(t, store.Upsert(ctx, "a", turns))

				row, err := store.FindByID(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, "a", row.ID)
				assert.JSONEq(t, string(turns), string(row.Turns))

				updated := json.RawMessage(`[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`)
				require.NoError(t, store.Upsert(ctx, "a", updated))
				row, err = store.FindByID(ctx, "a")
				require.NoError(t, err)
				assert.JSONEq(t, string(updated), string(row.Turns))
			})

			t.Run("create many is idempotent", func(t *testing.T) {
				require.NoError(t, store.CreateMany(ctx, []string{"a", "b", "c"}))
				require.NoError(t, store.CreateMany(ctx, []string{"b", "c"}))

				row, err := store.FindByID(ctx, "a")
				require.NoError(t, err)
				assert.Contains(t, string(row.Turns), "hello", "existing row must not be reset")

				row, err = store.FindByID(ctx, "b")
				require.NoError(t, err)
				assert.JSONEq(t, `[]`, string(row.Turns))
			})

			t.Run("find many skips missing ids", func(t *testing.T) {
				rows, err := store.FindMany(ctx, []string{"a", "missing", "c"})
				require.NoError(t, err)
				ids := make([]string, 0, len(rows))
				for _, r := range rows {
					ids = append(ids, r.ID)
				}
				assert.ElementsMatch(t, []string{"a", "c"}, ids)

				rows, err = store.FindMany(ctx, nil)
				require.NoError(t, err)
				assert.Empty(t, rows)
			})

			t.Run("list", func(t *testing.T) {
				list, err := store.List(ctx)
				require.NoError(t, err)
				require.Len(t, list, 3)
				for _, md := range list {
					if md.ID == "a" {
						assert.Equal(t, 2, md.TurnCount)
					}
				}
			})

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, store.Delete(ctx, "b"))
				require.NoError(t, store.Delete(ctx, "b"), "deleting twice is fine")

				_, err := store.FindByID(ctx, "b")
				assert.True(t, errors.Is(err, ErrNotFound))
				list, err := store.List(ctx)
				require.NoError(t, err)
				assert.Len(t, list, 2)
			})
		})
	}
}

func TestChatStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewChatStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, "a", json.RawMessage(`[{"role":"user","content":"hi"}]`)))
	require.NoError(t, store.Close())

	store, err = NewChatStore(dir)
	require.NoError(t, err)
	defer store.Close()

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 1, list[0].TurnCount)
}

func TestFileStorePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Upsert(context.Background(), "x", json.RawMessage(`[]`)))

	info, err := os.Stat(filepath.Join(dir, "chats", "x.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(dir, "chats", "x.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestTTLCache(t *testing.T) {
	ctx := context.Background()

	t.Run("get and set copy values", func(t *testing.T) {
		c := NewTTLCache(10, time.Minute)
		value := []byte("one")
		require.NoError(t, c.Set(ctx, "k", value))
		value[0] = 'X'

		got, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "one", string(got))

		_, ok, err = c.Get(ctx, "other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("mget keeps key order", func(t *testing.T) {
		c := NewTTLCache(10, time.Minute)
		require.NoError(t, c.MSet(ctx, map[string][]byte{"a": []byte("1"), "c": []byte("3")}))

		got, err := c.MGet(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "1", string(got[0]))
		assert.Nil(t, got[1])
		assert.Equal(t, "3", string(got[2]))
	})

	t.Run("entries expire", func(t *testing.T) {
		c := NewTTLCache(10, 20*time.Millisecond)
		require.NoError(t, c.Set(ctx, "k", []byte("v")))
		assert.Eventually(t, func() bool {
			_, ok, _ := c.Get(ctx, "k")
			return !ok
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("lru eviction and delete", func(t *testing.T) {
		c := NewTTLCache(2, time.Minute)
		require.NoError(t, c.Set(ctx, "a", []byte("1")))
		require.NoError(t, c.Set(ctx, "b", []byte("2")))
		require.NoError(t, c.Set(ctx, "c", []byte("3")))
		assert.Equal(t, 2, c.Len())

		_, ok, _ := c.Get(ctx, "a")
		assert.False(t, ok)

		require.NoError(t, c.Delete(ctx, "b"))
		assert.Equal(t, 1, c.Len())
	})
}
