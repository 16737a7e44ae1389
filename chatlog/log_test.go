package chatlog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fetchr/content"
	"fetchr/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAppendWriteOrdering(t *testing.T) {
	ctx := context.Background()
	svc, rows, _ := newTestService()

	log, err := svc.Load(ctx, "chat-1")
	require.NoError(t, err)

	use := toolUse(t, tools.PlaceOrder, "A", `{"orderId":"o-1"}`)
	log.AddToolUse(use)
	require.NoError(t, log.AddToolResult(tools.NewPlaceOrderResponse(), "A"))
	require.NoError(t, log.Flush(ctx))

	require.Len(t, rows.upserts, 2)
	first, err := content.DecodeTurns(rows.upserts[0], nil)
	require.NoError(t, err)
	second, err := content.DecodeTurns(rows.upserts[1], nil)
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Len(t, second, 2)

	stored, err := svc.GetExisting(ctx, "chat-1")
	require.NoError(t, err)
	assert.JSONEq(t, encode(t, log.Turns()), encode(t, stored.Turns()))
}

func TestManyAppendsLandInOrder(t *testing.T) {
	ctx := context.Background()
	svc, rows, _ := newTestService()

	log, err := svc.Load(ctx, "chat-1")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		log.Append(user("message"))
	}
	require.NoError(t, log.Flush(ctx))

	require.Len(t, rows.upserts, 50)
	for i, data := range rows.upserts {
		turns, err := content.DecodeTurns(data, nil)
		require.NoError(t, err)
		assert.Len(t, turns, i+1)
	}
}

func TestFailedWritesAreSwallowed(t *testing.T) {
	ctx := context.Background()
	svc, rows, _ := newTestService()

	log, err := svc.Load(ctx, "chat-1")
	require.NoError(t, err)

	rows.mu.Lock()
	rows.failWrite = errors.New("disk full")
	rows.mu.Unlock()

	log.Append(user("one"))
	log.Append(user("two"))
	require.NoError(t, log.Flush(ctx))

	assert.Equal(t, 2, log.Len(), "in-memory state keeps every append")
	assert.Equal(t, 2, rows.count("Upsert"), "the queue moves on after a failure")
}

func TestAddToolResult(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	log := svc.NewTemporary(nil)

	err := log.AddToolResult(tools.NewPlaceOrderResponse(), "missing")
	assert.True(t, errors.Is(err, ErrNoMatchingToolCall))

	log.AddToolUse(toolUse(t, tools.PlaceOrder, "A", `{"orderId":"o-1"}`))
	require.NoError(t, log.AddToolResult(tools.NewPlaceOrderResponse(), "A"))

	err = log.AddToolResult(tools.NewPlaceOrderResponse(), "A")
	assert.True(t, errors.Is(err, ErrNoMatchingToolCall), "a call is answered once")

	res, err := log.ToolResult("A")
	require.NoError(t, err)
	assert.JSONEq(t, `"Order placed successfully"`, string(res.Content))

	_, err = log.ToolResult("B")
	assert.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, log.Flush(ctx))
}

func TestPendingToolUseID(t *testing.T) {
	svc, _, _ := newTestService()
	log := svc.NewTemporary(nil)

	_, err := log.PendingToolUseID(tools.MessageUser)
	assert.True(t, errors.Is(err, ErrNotFound))

	log.AddToolUse(toolUse(t, tools.MessageUser, "m1", `{"message":"size?","blocking":true}`))
	require.NoError(t, log.AddToolResult(tools.NewMessageUserResponse("M"), "m1"))
	log.AddToolUse(toolUse(t, tools.MessageUser, "m2", `{"message":"color?","blocking":true}`))
	log.AddToolUse(toolUse(t, tools.PlaceOrder, "p1", `{"orderId":"o"}`))

	id, err := log.PendingToolUseID(tools.MessageUser)
	require.NoError(t, err)
	assert.Equal(t, "m2", id)

	require.NoError(t, log.AddToolResult(tools.NewMessageUserResponse("red"), "m2"))
	_, err = log.PendingToolUseID(tools.MessageUser)
	assert.True(t, errors.Is(err, ErrNotFound))

	log.AddToolUse(toolUse(t, tools.MessageUser, "m3", `{"message":"budget?","blocking":true}`))
	require.NoError(t, log.AddToolResult(tools.NewExecutingOutsideResponse(), "m3"))
	id, err = log.PendingToolUseID(tools.MessageUser)
	require.NoError(t, err)
	assert.Equal(t, "m3", id, "a placeholder result still waits for the user")
}

func TestToolUseMetadataAndUpdates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	log, err := svc.Load(ctx, "chat-1")
	require.NoError(t, err)

	log.AddToolUse(toolUse(t, tools.SuggestProductsToUser, "s1", `{"searchQueries":[{"query":"linen","explanation":"x"}]}`))
	require.NoError(t, log.AddToolUseMetadata("s1", map[string]any{"searchId": "abc"}))
	require.NoError(t, log.AddToolUseMetadata("s1", map[string]any{"count": 3}))

	err = log.AddToolUseMetadata("nope", map[string]any{"x": 1})
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, log.AddToolResult(tools.NewExecutingOutsideResponse(), "s1"))
	prefs := []tools.ProductPreference{{Product: &tools.Product{ID: "p1", Name: "Linen shirt"}}}
	require.NoError(t, log.UpdateToolResult("s1", tools.NewSuggestProductsToUserResponse(prefs)))
	require.NoError(t, log.Flush(ctx))

	reloaded, err := svc.GetExisting(ctx, "chat-1")
	require.NoError(t, err)

	use, err := reloaded.ToolUse("s1")
	require.NoError(t, err)
	md := use.Payload.Metadata()
	assert.Equal(t, "abc", md["searchId"])
	assert.Equal(t, float64(3), md["count"])

	res, err := reloaded.ToolResult("s1")
	require.NoError(t, err)
	resp, ok := res.Payload.(*tools.SuggestProductsToUserResponse)
	require.True(t, ok, "payload %T", res.Payload)
	assert.Len(t, resp.ProductPreferences, 1)
}

func TestUpdatesLeaveHandedOutTurnsAlone(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	log, err := svc.Load(ctx, "chat-1")
	require.NoError(t, err)

	log.AddToolUse(toolUse(t, tools.PlaceOrder, "A", `{"orderId":"o-1"}`))
	require.NoError(t, log.AddToolResult(tools.NewExecutingOutsideResponse(), "A"))
	turns, err := log.Normalize()
	require.NoError(t, err)
	require.Len(t, turns, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, log.UpdateToolResult("A", tools.NewPlaceOrderResponse()))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, log.AddToolUseMetadata("A", map[string]any{"attempt": 2}))
	}()
	for i := 0; i < 100; i++ {
		r := turns[1].ToolResults()[0]
		out := r.Payload.Render(content.ProviderOpenAI)
		assert.NotEmpty(t, out.Text)
		assert.Nil(t, turns[0].ToolUses()[0].Payload.Metadata())
	}
	wg.Wait()
	require.NoError(t, log.Flush(ctx))

	assert.True(t, tools.IsPlaceholder(turns[1].ToolResults()[0].Payload), "earlier copies keep the placeholder")

	res, err := log.ToolResult("A")
	require.NoError(t, err)
	assert.False(t, tools.IsPlaceholder(res.Payload))
	use, err := log.ToolUse("A")
	require.NoError(t, err)
	assert.Equal(t, float64(2), use.Payload.Metadata()["attempt"])
}

func TestLogNormalizeWritesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	svc, rows, _ := newTestService()

	log, err := svc.Set(ctx, "chat-1", []content.Turn{
		user("hi"),
		useTurn(toolUse(t, tools.PlaceOrder, "A", `{"orderId":"o"}`)),
	})
	require.NoError(t, err)
	before := rows.count("Upsert")

	turns, err := log.Normalize()
	require.NoError(t, err)
	assert.Len(t, turns, 4)
	require.NoError(t, log.Flush(ctx))
	assert.Equal(t, before+1, rows.count("Upsert"))

	_, err = log.Normalize()
	require.NoError(t, err)
	require.NoError(t, log.Flush(ctx))
	assert.Equal(t, before+1, rows.count("Upsert"), "already normalized log is not written again")
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("persisted", func(t *testing.T) {
		svc, _, _ := newTestService()
		log, err := svc.Load(ctx, "chat-1")
		require.NoError(t, err)
		log.Append(user("before"))

		id, err := log.TakeSnapshot(ctx)
		require.NoError(t, err)

		log.Append(assistant("partial"), user("more"))
		require.NoError(t, log.RestoreSnapshot(ctx, id))
		require.NoError(t, log.Flush(ctx))
		assert.Equal(t, 1, log.Len())

		reloaded, err := svc.GetExisting(ctx, "chat-1")
		require.NoError(t, err)
		assert.Equal(t, 1, reloaded.Len())

		err = log.RestoreSnapshot(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, log.DropSnapshot(ctx, id))
		err = log.RestoreSnapshot(ctx, id)
		assert.True(t, errors.Is(err, ErrNotFound), "dropped snapshots are gone from storage")
		require.NoError(t, log.DropSnapshot(ctx, id))
	})

	t.Run("temporary", func(t *testing.T) {
		svc, rows, _ := newTestService()
		log := svc.NewTemporary([]content.Turn{user("a")})

		id, err := log.TakeSnapshot(ctx)
		require.NoError(t, err)
		log.Append(user("b"))
		require.NoError(t, log.RestoreSnapshot(ctx, id))

		assert.Equal(t, 1, log.Len())
		assert.Zero(t, rows.count("Upsert"), "temporary logs are never written")

		require.NoError(t, log.DropSnapshot(ctx, id))
		err = log.RestoreSnapshot(ctx, id)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Zero(t, rows.count("Delete"))
	})
}

func TestCloneTemporaryAndFilter(t *testing.T) {
	ctx := context.Background()
	svc, rows, _ := newTestService()

	log, err := svc.Load(ctx, "chat-1")
	require.NoError(t, err)
	log.Append(content.TextTurn(content.RoleSystem, "sys"), user("hi"), assistant("hello"))
	require.NoError(t, log.Flush(ctx))

	clone, err := log.Clone(ctx, "chat-2")
	require.NoError(t, err)
	assert.Equal(t, 3, clone.Len())
	assert.False(t, clone.IsTemporary())

	_, err = log.Clone(ctx, "chat-2")
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	upserts := rows.count("Upsert")
	tmp, err := log.Temporary()
	require.NoError(t, err)
	assert.True(t, tmp.IsTemporary())
	assert.NotEqual(t, log.ID(), tmp.ID())
	tmp.Append(user("scratch"))

	filtered, err := log.Filter(func(turn content.Turn) bool { return turn.Role != content.RoleSystem })
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.Len())
	assert.Equal(t, 3, log.Len())

	assert.Equal(t, upserts, rows.count("Upsert"))
	require.NoError(t, clone.Flush(ctx))
}
