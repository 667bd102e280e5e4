package auth

import (
	"context"
	"sync"
	"time"

	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/logging"
)

// ProfileRoles looks up the role stored on a user's profile.
type ProfileRoles interface {
	Role(ctx context.Context, userID string) (string, error)
}

type cachedRole struct {
	role      string
	expiresAt time.Time
}

// Resolver decides a user's role. The ADMIN_USER_IDS allowlist wins, then
// the app_metadata.role claim, then the profile row.
type Resolver struct {
	admins   map[string]bool
	profiles ProfileRoles
	ttl      time.Duration
	logger   *logging.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedRole
}

// NewResolver creates a resolver. profiles may be nil.
func NewResolver(adminIDs []string, profiles ProfileRoles, ttl time.Duration, logger *logging.Logger) *Resolver {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		admins:   admins,
		profiles: profiles,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]cachedRole),
	}
}

// Resolve returns RoleAdmin or RoleUser for claims.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) string {
	id := claims.UserID()
	if r.admins[id] {
		return domain.RoleAdmin
	}
	switch claims.AppRole() {
	case domain.RoleAdmin:
		return domain.RoleAdmin
	case domain.RoleUser:
		return domain.RoleUser
	}
	if r.profiles == nil {
		return domain.RoleUser
	}

	r.mu.Lock()
	c, ok := r.cache[id]
	r.mu.Unlock()
	if ok && r.now().Before(c.expiresAt) {
		return c.role
	}

	role, err := r.profiles.Role(ctx, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("profile role lookup failed")
		return domain.RoleUser
	}
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[id] = cachedRole{role: role, expiresAt: r.now().Add(r.ttl)}
		r.mu.Unlock()
	}
	return role
}

// Forget drops the cached role of userID.
func (r *Resolver) Forget(userID string) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// Purge drops expired cache entries.
func (r *Resolver) Purge() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.cache {
		if !now.Before(c.expiresAt) {
			delete(r.cache, id)
		}
	}
}
