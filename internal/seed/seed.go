// Package seed inserts the default categories and website settings.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/records"
)

// DefaultCategories mirrors the rows inserted by the seed migration.
func DefaultCategories() []*domain.Category {
	return []*domain.Category{
		{Name: "Tools", NameAr: "أدوات", Slug: "tools", Icon: "wrench", SortOrder: 1},
		{Name: "Seeds", NameAr: "بذور", Slug: "seeds", Icon: "sprout", SortOrder: 2},
		{Name: "Fertilizers", NameAr: "أسمدة", Slug: "fertilizers", Icon: "flask", SortOrder: 3},
		{Name: "Irrigation", NameAr: "ري", Slug: "irrigation", Icon: "droplet", SortOrder: 4},
		{Name: "Feed", NameAr: "أعلاف", Slug: "feed", Icon: "wheat", SortOrder: 5},
		{Name: "Other", NameAr: "أخرى", Slug: "other", Icon: "box", SortOrder: 99},
	}
}

// Result counts what Apply inserted.
type Result struct {
	Categories int  `json:"categories"`
	Settings   bool `json:"settings"`
}

// Apply inserts missing default categories (matched by slug) and the
// default settings row. Existing rows are left untouched, so Apply can run
// on every start.
func Apply(ctx context.Context, categories records.Store[*domain.Category], settings records.Store[*domain.WebsiteSettings], logger *logging.Logger) (Result, error) {
	if logger == nil {
		logger = logging.Default()
	}
	var res Result
	now := time.Now()

	for _, c := range DefaultCategories() {
		n, err := categories.Count(ctx, records.Query{}.Where("slug", records.OpEq, c.Slug))
		if err != nil {
			return res, fmt.Errorf("count category %s: %w", c.Slug, err)
		}
		if n > 0 {
			continue
		}
		c.Prepare("", now)
		if _, err := categories.Create(ctx, c); err != nil {
			if errors.Is(err, records.ErrConflict) {
				continue
			}
			return res, fmt.Errorf("create category %s: %w", c.Slug, err)
		}
		res.Categories++
	}

	_, err := settings.Get(ctx, domain.SettingsID)
	switch {
	case errors.Is(err, records.ErrNotFound):
		s := domain.DefaultWebsiteSettings()
		s.Prepare("", now)
		if _, err := settings.Create(ctx, s); err != nil && !errors.Is(err, records.ErrConflict) {
			return res, fmt.Errorf("create settings: %w", err)
		}
		res.Settings = true
	case err != nil:
		return res, fmt.Errorf("read settings: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"categories": res.Categories,
		"settings":   res.Settings,
	}).Info("seed applied")
	return res, nil
}
