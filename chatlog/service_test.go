package chatlog

import (
	"context"
	"errors"
	"testing"

	"fetchr/content"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesMissingLog(t *testing.T) {
	ctx := context.Background()
	svc, rows, cache := newTestService()

	log, err := svc.Load(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 0, log.Len())
	assert.Equal(t, 1, rows.count("CreateMany"))
	assert.Contains(t, cache.entries, "chatlog:new")

	// A second load is served by the cache.
	_, err = svc.Load(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 1, rows.count("FindByID"))
}

func TestGetExisting(t *testing.T) {
	ctx := context.Background()
	svc, rows, cache := newTestService()

	_, err := svc.GetExisting(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Zero(t, rows.count("CreateMany"))

	rows.rows["x"] = []byte(`[{"role":"user","content":"hi"}]`)
	log, err := svc.GetExisting(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "hi", log.Turns()[0].Text)
	assert.Contains(t, cache.entries, "chatlog:x", "durable reads backfill the cache")
}

func TestGetExistingSurvivesCacheFailure(t *testing.T) {
	ctx := context.Background()
	svc, rows, cache := newTestService()
	cache.failGet = true
	rows.rows["x"] = []byte(`[]`)

	_, err := svc.GetExisting(ctx, "x")
	require.NoError(t, err)
}

func TestLoadManyBatchHydration(t *testing.T) {
	ctx := context.Background()
	svc, rows, cache := newTestService()

	cache.entries["chatlog:X"] = []byte(`[{"role":"user","content":"cached"}]`)
	rows.rows["Y"] = []byte(`[{"role":"user","content":"stored"}]`)

	logs, err := svc.LoadMany(ctx, []string{"X", "Y", "Z"})
	require.NoError(t, err)
	require.Len(t, logs, 3)

	assert.Equal(t, "cached", logs[0].Turns()[0].Text)
	assert.Equal(t, "stored", logs[1].Turns()[0].Text)
	assert.Equal(t, 0, logs[2].Len())

	assert.Equal(t, 1, cache.count("MGet"))
	assert.Equal(t, 1, rows.count("FindMany"))
	assert.Equal(t, 1, rows.count("CreateMany"))
	assert.Equal(t, 1, cache.count("MSet"))
	assert.Zero(t, rows.count("FindByID"))

	require.Len(t, cache.msets, 1)
	assert.Len(t, cache.msets[0], 2)
	assert.Contains(t, cache.msets[0], "chatlog:Y")
	assert.Contains(t, cache.msets[0], "chatlog:Z")
	assert.Contains(t, rows.rows, "Z")
}

func TestLoadManyAllCached(t *testing.T) {
	ctx := context.Background()
	svc, rows, cache := newTestService()
	cache.entries["chatlog:A"] = []byte(`[]`)

	logs, err := svc.LoadMany(ctx, []string{"A", "A"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Same(t, logs[0], logs[1])
	assert.Zero(t, rows.count("FindMany"))
	assert.Zero(t, cache.count("MSet"))
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	svc, rows, cache := newTestService()

	_, err := svc.Set(ctx, "s", []content.Turn{user("one")})
	require.NoError(t, err)
	_, err = svc.Set(ctx, "s", []content.Turn{user("two")})
	require.NoError(t, err)

	assert.JSONEq(t, `[{"role":"user","content":"two"}]`, string(rows.rows["s"]))
	assert.JSONEq(t, `[{"role":"user","content":"two"}]`, string(cache.entries["chatlog:s"]))
}
