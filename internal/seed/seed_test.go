package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/records"
	"github.com/elghella/marketplace/pkg/testutil"
)

var testTime = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cats := records.NewMemoryStore(domain.CategoryTable)
	settings := records.NewMemoryStore(domain.WebsiteSettingsTable)

	res, err := Apply(ctx, cats, settings, testutil.QuietLogger())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCategories()), res.Categories)
	assert.True(t, res.Settings)

	res, err = Apply(ctx, cats, settings, testutil.QuietLogger())
	require.NoError(t, err)
	assert.Zero(t, res.Categories)
	assert.False(t, res.Settings)

	n, err := cats.Count(ctx, records.Query{})
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCategories()), n)

	s, err := settings.Get(ctx, domain.SettingsID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSiteName, s.SiteName)
}

func TestApplyKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	cats := records.NewMemoryStore(domain.CategoryTable)
	settings := records.NewMemoryStore(domain.WebsiteSettingsTable)

	custom := &domain.Category{Name: "My Tools", Slug: "tools"}
	custom.Prepare("", testutil.NewClock(testTime).Now())
	require.NoError(t, cats.Seed(custom))

	res, err := Apply(ctx, cats, settings, testutil.QuietLogger())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCategories())-1, res.Categories)

	got, err := cats.Get(ctx, custom.ID)
	require.NoError(t, err)
	assert.Equal(t, "My Tools", got.Name)
}

func TestDefaultCategoriesAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range DefaultCategories() {
		require.NoError(t, c.Validate(), c.Slug)
		assert.False(t, seen[c.Slug], "duplicate slug %s", c.Slug)
		seen[c.Slug] = true
	}
}
