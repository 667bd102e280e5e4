package settings

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/records"
)

var admin = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}

type countingStore struct {
	records.Store[*domain.WebsiteSettings]
	gets int
	fail bool
}

func (c *countingStore) Get(ctx context.Context, id string) (*domain.WebsiteSettings, error) {
	c.gets++
	if c.fail {
		return nil, fmt.Errorf("%w: timeout", records.ErrDatabase)
	}
	return c.Store.Get(ctx, id)
}

func newService() (*Service, *countingStore) {
	store := &countingStore{Store: records.NewMemoryStore(domain.WebsiteSettingsTable)}
	svc := New(store, time.Minute, logging.NewWithOutput("test", "info", "json", io.Discard))
	return svc, store
}

func TestGetDefaultsAndCaches(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	s, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSiteName, s.SiteName)

	_, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets)

	// Callers get copies.
	s.SocialLinks["x"] = "y"
	again, _ := svc.Get(ctx)
	assert.NotContains(t, again.SocialLinks, "x")

	now = now.Add(2 * time.Minute)
	_, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.gets)
}

func TestUpdate(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Update(ctx, domain.Actor{UserID: "u1", Role: domain.RoleUser}, map[string]any{"site_name": "x"})
	assert.True(t, svcerrors.IsForbidden(err))

	saved, err := svc.Update(ctx, admin, map[string]any{
		"site_name":    "الغلة - سوق",
		"social_links": map[string]any{"facebook": "https://facebook.com/elghella"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SettingsID, saved.ID)
	assert.Equal(t, "الغلة - سوق", saved.SiteName)
	assert.NotEmpty(t, saved.HeroTitle, "defaults are kept")
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "الغلة - سوق", got.SiteName)

	_, err = svc.Update(ctx, admin, map[string]any{"contact_email": "nope"})
	assert.True(t, svcerrors.IsValidation(err))
	_, err = svc.Update(ctx, admin, map[string]any{"id": "other"})
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeBadRequest))
	_, err = svc.Update(ctx, admin, map[string]any{"unknown": 1})
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeBadRequest))
}

func TestGetServesStaleCopyOnError(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	_, err := svc.Update(ctx, admin, map[string]any{"announcement": "موسم الحصاد"})
	require.NoError(t, err)

	store.fail = true
	svc.mu.Lock()
	svc.loadedAt = time.Time{}
	svc.mu.Unlock()
	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "موسم الحصاد", got.Announcement)

	svc.Invalidate()
	got, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSiteName, got.SiteName)
	assert.Empty(t, got.Announcement)

	assert.NoError(t, svc.Refresh(ctx))
}

func TestLookup(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Update(ctx, admin, map[string]any{
		"social_links": map[string]any{"facebook": "https://facebook.com/elghella"},
	})
	require.NoError(t, err)

	v, err := svc.Lookup(ctx, "$.social_links.facebook")
	require.NoError(t, err)
	assert.Equal(t, "https://facebook.com/elghella", v)

	v, err = svc.Lookup(ctx, "site_name")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSiteName, v)

	_, err = svc.Lookup(ctx, "$.social_links.tiktok")
	assert.Error(t, err)
	_, err = svc.Lookup(ctx, " ")
	assert.True(t, svcerrors.IsValidation(err))
}
