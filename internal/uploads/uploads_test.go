package uploads

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/supabase"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type memStorage struct {
	mu      sync.Mutex
	objects map[string]string
	fail    bool
}

func (m *memStorage) Upload(_ context.Context, p string, data []byte, contentType string, _ bool) (*supabase.UploadResult, error) {
	if m.fail {
		return nil, errors.New("storage down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = contentType
	return &supabase.UploadResult{Key: "listings/" + p}, nil
}

func (m *memStorage) Remove(_ context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.objects, p)
	}
	return nil
}

func (m *memStorage) PublicURL(p string) string {
	return "https://proj.supabase.co/storage/v1/object/public/listings/" + p
}

func newService(store Storage) *Service {
	svc := New(store, 1024, []string{"equipment", "land"}, logging.NewWithOutput("test", "info", "json", io.Discard))
	svc.newID = func() string { return "fixed" }
	return svc
}

func TestUpload(t *testing.T) {
	store := &memStorage{objects: map[string]string{}}
	svc := newService(store)
	ctx := context.Background()

	res, err := svc.Upload(ctx, "user-1", "equipment", "tractor.png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "user-1/equipment/fixed.png", res.Path)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/listings/user-1/equipment/fixed.png", res.URL)
	assert.Equal(t, "image/png", store.objects[res.Path])
}

func TestUploadRejects(t *testing.T) {
	store := &memStorage{objects: map[string]string{}}
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "", "equipment", "a.png", pngHeader)
	assert.True(t, svcerrors.IsUnauthorized(err))

	_, err = svc.Upload(ctx, "user-1", "animals", "a.png", pngHeader)
	assert.True(t, svcerrors.IsNotFound(err))

	_, err = svc.Upload(ctx, "user-1", "land", "a.png", nil)
	assert.True(t, svcerrors.IsValidation(err))

	_, err = svc.Upload(ctx, "user-1", "land", "big.png", append(pngHeader, make([]byte, 2048)...))
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeTooLarge))

	_, err = svc.Upload(ctx, "user-1", "land", "notes.txt", []byte("just some text, not an image"))
	assert.True(t, svcerrors.IsValidation(err))

	store.fail = true
	_, err = svc.Upload(ctx, "user-1", "land", "a.png", pngHeader)
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeUnavailable))
	assert.Empty(t, store.objects)
}

func TestDeleteOwnPrefixOnly(t *testing.T) {
	store := &memStorage{objects: map[string]string{
		"user-1/land/a.png": "image/png",
		"user-2/land/b.png": "image/png",
	}}
	svc := newService(store)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "user-1", "user-1/land/a.png"))
	assert.NotContains(t, store.objects, "user-1/land/a.png")

	err := svc.Delete(ctx, "user-1", "user-2/land/b.png")
	assert.True(t, svcerrors.IsForbidden(err))
	err = svc.Delete(ctx, "user-1", "user-1/../user-2/land/b.png")
	assert.True(t, svcerrors.IsForbidden(err))
	assert.Contains(t, store.objects, "user-2/land/b.png")

	require.NoError(t, svc.Delete(ctx, "user-2", store.PublicURL("user-2/land/b.png")))
	assert.Empty(t, store.objects)

	assert.True(t, svcerrors.IsValidation(svc.Delete(ctx, "user-1", " ")))
}

func TestUploadThroughSupabaseStorage(t *testing.T) {
	var gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotType = r.URL.Path, r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Key":"listings/x"}`))
	}))
	defer srv.Close()

	client, err := supabase.New(supabase.Config{URL: srv.URL, APIKey: "anon"})
	require.NoError(t, err)
	svc := New(client.Storage().From("listings"), 0, nil, nil)

	res, err := svc.Upload(context.Background(), "user-9", "vegetables", "tomato.png", pngHeader)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/storage/v1/object/listings/user-9/vegetables/"), gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.True(t, strings.HasSuffix(res.URL, ".png"))
	assert.Equal(t, int64(DefaultMaxBytes), svc.MaxBytes())
}
