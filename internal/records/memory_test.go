package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(gadgets)
	store.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	created, err := store.Create(ctx, &gadget{Title: "مضخة مياه", Price: 45000, UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, store.now(), created.CreatedAt)

	_, err = store.Create(ctx, created)
	assert.ErrorIs(t, err, ErrConflict)

	// Returned rows are copies.
	created.Title = "mutated"
	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "مضخة مياه", got.Title)

	updated, err := store.Update(ctx, created.ID, map[string]any{"price": 40000.0, "tags": []string{"pump"}})
	require.NoError(t, err)
	assert.Equal(t, 40000.0, updated.Price)
	assert.Equal(t, []string{"pump"}, []string(updated.Tags))
	assert.Equal(t, "u1", updated.UserID)

	_, err = store.Update(ctx, created.ID, map[string]any{"owner": "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = store.Update(ctx, "missing", map[string]any{"price": 1})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, created.ID))
	assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrNotFound)
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreFetchAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(gadgets)
	require.NoError(t, store.Seed(sampleGadgets()...))

	rows, err := store.Fetch(ctx, Query{Limit: 2}.Where("user_id", OpEq, "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"g3", "g1"}, ids(rows))

	n, err := store.Count(ctx, Query{Limit: 1}.Where("is_active", OpEq, true))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Fetch(ctx, Query{}.Where("secret", OpEq, 1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMemoryStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(gadgets)
	require.NoError(t, store.Seed(sampleGadgets()...))

	g := sampleGadgets()[0]
	g.Title = "جرار جديد"
	_, err := store.Upsert(ctx, g)
	require.NoError(t, err)

	got, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "جرار جديد", got.Title)

	n, err := store.Count(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

type recordingObserver struct {
	ops []string
}

func (r *recordingObserver) ObserveOperation(table, op string, err error, _ time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.ops = append(r.ops, table+"."+op+":"+outcome)
}

func TestObservedStore(t *testing.T) {
	obs := &recordingObserver{}
	store, err := Open(Source{Backend: BackendMemory, Observer: obs}, gadgets)
	require.NoError(t, err)

	ctx := context.Background()
	_, _ = store.Fetch(ctx, Query{})
	_, _ = store.Get(ctx, "missing")

	assert.Equal(t, []string{"gadgets.fetch:ok", "gadgets.get:error"}, obs.ops)
}
