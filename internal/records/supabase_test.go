package records

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elghella/marketplace/internal/supabase"
)

func newSupabaseGadgets(t *testing.T, handler http.HandlerFunc) *SupabaseStore[*gadget] {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := supabase.New(supabase.Config{URL: server.URL, APIKey: "service-key"})
	require.NoError(t, err)
	return NewSupabaseStore(client, gadgets)
}

func TestSupabaseStoreFetch(t *testing.T) {
	store := newSupabaseGadgets(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/rest/v1/gadgets", r.URL.Path)
		assert.Equal(t, "eq.true", q.Get("is_active"))
		assert.Equal(t, "gte.100", q.Get("price"))
		assert.Equal(t, "(title.ilike.*جرار*)", q.Get("or"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, "Bearer user-jwt", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(sampleGadgets()[:1])
	})

	ctx := supabase.WithAccessToken(context.Background(), "user-jwt")
	rows, err := store.Fetch(ctx, Query{Search: "جرار,()", Limit: 5}.
		Where("is_active", OpEq, true).
		Where("price", OpGte, 100))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "g1", rows[0].ID)

	_, err = store.Fetch(ctx, Query{}.Where("nope", OpEq, 1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSupabaseStoreWrites(t *testing.T) {
	store := newSupabaseGadgets(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("id") == "eq.missing" {
				_, _ = io.WriteString(w, `[]`)
				return
			}
			_, _ = io.WriteString(w, `[{"id":"g1","title":"جرار"}]`)
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("[" + string(body) + "]"))
		case http.MethodPatch:
			if r.URL.Query().Get("id") == "eq.missing" {
				_, _ = io.WriteString(w, `[]`)
				return
			}
			_, _ = io.WriteString(w, `[{"id":"g1","title":"محراث"}]`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"code":"23503","message":"still referenced"}`)
		}
	})
	ctx := context.Background()

	got, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "جرار", got.Title)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := store.Create(ctx, &gadget{ID: "g9", Title: "بذارة"})
	require.NoError(t, err)
	assert.Equal(t, "g9", created.ID)

	updated, err := store.Update(ctx, "g1", map[string]any{"title": "محراث"})
	require.NoError(t, err)
	assert.Equal(t, "محراث", updated.Title)

	_, err = store.Update(ctx, "missing", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Delete(ctx, "g1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSupabaseStoreCountAndErrors(t *testing.T) {
	status := http.StatusOK
	store := newSupabaseGadgets(t, func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"message":"boom"}`)
			return
		}
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "0-0/42")
		_, _ = io.WriteString(w, `[{"id":"g1"}]`)
	})
	ctx := context.Background()

	n, err := store.Count(ctx, Query{}.Where("is_active", OpEq, true))
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	status = http.StatusServiceUnavailable
	_, err = store.Fetch(ctx, Query{})
	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, store.Health(ctx), ErrDatabase)

	status = http.StatusForbidden
	_, err = store.Fetch(ctx, Query{})
	assert.ErrorIs(t, err, ErrForbidden)
}
