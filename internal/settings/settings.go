// Package settings serves the single website settings row with an
// in-memory TTL cache.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/records"
)

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// Service reads and writes website settings.
type Service struct {
	store  records.Store[*domain.WebsiteSettings]
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time

	mu       sync.RWMutex
	cached   *domain.WebsiteSettings
	loadedAt time.Time
}

// New creates the settings service.
func New(store records.Store[*domain.WebsiteSettings], ttl time.Duration, logger *logging.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the current settings. Defaults are served while no row
// exists. When the database fails, the last loaded copy (or the defaults)
// is served.
func (s *Service) Get(ctx context.Context) (*domain.WebsiteSettings, error) {
	s.mu.RLock()
	if s.cached != nil && s.now().Sub(s.loadedAt) < s.ttl {
		out := clone(s.cached)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()
	return s.load(ctx)
}

// Refresh reloads the settings from the database.
func (s *Service) Refresh(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

// Invalidate drops the cached copy.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Service) load(ctx context.Context) (*domain.WebsiteSettings, error) {
	row, err := s.store.Get(ctx, domain.SettingsID)
	switch {
	case err == nil:
	case errors.Is(err, records.ErrNotFound):
		row = domain.DefaultWebsiteSettings()
	default:
		s.logger.WithContext(ctx).WithError(err).Warn("failed to load website settings")
		s.mu.RLock()
		stale := s.cached
		s.mu.RUnlock()
		if stale != nil {
			return clone(stale), nil
		}
		return domain.DefaultWebsiteSettings(), nil
	}

	s.mu.Lock()
	s.cached = row
	s.loadedAt = s.now()
	s.mu.Unlock()
	return clone(row), nil
}

// Update merges fields into the settings row and saves it. Admin only.
func (s *Service) Update(ctx context.Context, actor domain.Actor, fields map[string]any) (*domain.WebsiteSettings, error) {
	if !actor.IsAdmin() {
		return nil, svcerrors.Forbidden("only admins can change website settings")
	}
	delete(fields, "updated_at")
	if err := s.store.Table().CheckFields(fields, "id", "created_at"); err != nil {
		return nil, records.ToServiceError(err, domain.TableWebsiteSettings, domain.SettingsID)
	}

	current, err := s.store.Get(ctx, domain.SettingsID)
	if errors.Is(err, records.ErrNotFound) {
		current, err = domain.DefaultWebsiteSettings(), nil
	}
	if err != nil {
		return nil, records.ToServiceError(err, domain.TableWebsiteSettings, domain.SettingsID)
	}

	row, err := records.ToRow(current)
	if err != nil {
		return nil, svcerrors.Internal("encode settings", err)
	}
	for k, v := range fields {
		row[k] = v
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, svcerrors.BadRequest("invalid settings values")
	}
	next := s.store.Table().New()
	if err := json.Unmarshal(data, next); err != nil {
		return nil, svcerrors.BadRequest("invalid settings values: " + err.Error())
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.Prepare("", s.now())

	saved, err := s.store.Upsert(ctx, next)
	if err != nil {
		return nil, records.ToServiceError(err, domain.TableWebsiteSettings, domain.SettingsID)
	}

	s.mu.Lock()
	s.cached = saved
	s.loadedAt = s.now()
	s.mu.Unlock()

	s.logger.LogSecurityEvent(ctx, "settings_updated", map[string]interface{}{"fields": len(fields)})
	return clone(saved), nil
}

// Lookup evaluates a JSONPath expression such as "$.social_links.facebook"
// against the current settings.
func (s *Service) Lookup(ctx context.Context, path string) (any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, svcerrors.Validation("path", "path is required")
	}
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	row, err := records.ToRow(current)
	if err != nil {
		return nil, svcerrors.Internal("encode settings", err)
	}
	value, err := jsonpath.Get(path, map[string]any(row))
	if err != nil {
		if strings.Contains(err.Error(), "unknown key") || strings.Contains(err.Error(), "out of bounds") {
			return nil, svcerrors.NotFound("setting", path)
		}
		return nil, svcerrors.Validation("path", "invalid path: "+err.Error())
	}
	return value, nil
}

func clone(s *domain.WebsiteSettings) *domain.WebsiteSettings {
	out := *s
	out.SocialLinks = copyMap(s.SocialLinks)
	out.Extra = copyMap(s.Extra)
	return &out
}

func copyMap(m domain.JSONMap) domain.JSONMap {
	out := make(domain.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
