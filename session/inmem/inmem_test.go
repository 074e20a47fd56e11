package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/ensemble/blackboard"
	"goa.design/ensemble/session"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	board := blackboard.New()
	board.SetVar("stage", "discovery")
	board.PushQueue("followups", "send pricing")
	board.AddFact(blackboard.Fact{Type: "budget", Value: 50000, Confidence: 0.9})

	id := session.NewID()
	require.NoError(t, store.Save(ctx, session.Session{ID: id, Board: board.ToDict(), TurnCount: 3}))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.TurnCount)
	assert.False(t, loaded.CreatedAt.IsZero())

	restored := blackboard.FromDict(loaded.Board)
	v, _ := restored.Var("stage")
	assert.Equal(t, "discovery", v)
	assert.Equal(t, []any{"send pricing"}, restored.Queue("followups"))
	f, ok := restored.GetFact("budget", "")
	require.True(t, ok)
	assert.InDelta(t, 0.9, f.Confidence, 1e-9)
}

func TestSavePreservesCreatedAt(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session.Session{ID: "s1"}))
	first, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, session.Session{ID: "s1", TurnCount: 2}))
	second, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 2, second.TurnCount)
}

func TestLoadIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()

	board := map[string]any{"variables": map[string]any{"k": "v"}}
	require.NoError(t, store.Save(ctx, session.Session{ID: "s1", Board: board}))

	// Mutating the caller's tree after Save must not affect the store.
	board["variables"].(map[string]any)["k"] = "mutated"
	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "v", loaded.Board["variables"].(map[string]any)["k"])

	// Mutating a loaded tree must not affect later loads.
	loaded.Board["variables"].(map[string]any)["k"] = "mutated"
	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Board["variables"].(map[string]any)["k"])
}

func TestNotFoundAndValidation(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Error(t, store.Save(ctx, session.Session{}))
	assert.NoError(t, store.Delete(ctx, "missing"))
}

func TestListAndDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session.Session{ID: "b"}))
	require.NoError(t, store.Save(ctx, session.Session{ID: "a"}))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "a"))
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}
