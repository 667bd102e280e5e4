// Package profiles manages the public profile attached to each auth user.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/records"
)

const resource = "profile"

// editable lists the columns a user may change on their own profile.
var editable = map[string]bool{
	"full_name":  true,
	"phone":      true,
	"avatar_url": true,
	"location":   true,
	"bio":        true,
}

// Service reads and writes profiles.
type Service struct {
	store  records.Store[*domain.Profile]
	logger *logging.Logger
	now    func() time.Time
}

// New creates the service.
func New(store records.Store[*domain.Profile], logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Get returns the profile of user id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, records.ToServiceError(err, resource, id)
	}
	return p, nil
}

// Role returns the stored role of user id, or "" when there is no profile.
func (s *Service) Role(ctx context.Context, id string) (string, error) {
	p, err := s.store.Get(ctx, id)
	if errors.Is(err, records.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

// Upsert creates or updates the actor's own profile. Only the editable
// columns are taken from fields; the role is never changed here.
func (s *Service) Upsert(ctx context.Context, actor domain.Actor, fields map[string]any) (*domain.Profile, error) {
	if actor.Anonymous() {
		return nil, svcerrors.Unauthorized("sign in to edit your profile")
	}
	for k := range fields {
		if !editable[k] {
			return nil, svcerrors.Validation(k, k+" cannot be changed")
		}
	}

	current, err := s.store.Get(ctx, actor.UserID)
	exists := err == nil
	if errors.Is(err, records.ErrNotFound) {
		current, err = s.store.Table().New(), nil
		current.Prepare(actor.UserID, s.now())
	}
	if err != nil {
		return nil, records.ToServiceError(err, resource, actor.UserID)
	}

	row, err := records.ToRow(current)
	if err != nil {
		return nil, svcerrors.Internal("encode profile", err)
	}
	for k, v := range fields {
		row[k] = v
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, svcerrors.BadRequest("invalid profile values")
	}
	next := s.store.Table().New()
	if err := json.Unmarshal(data, next); err != nil {
		return nil, svcerrors.BadRequest("invalid profile values: " + err.Error())
	}
	next.Role = current.Role
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.Touch(s.now())

	var saved *domain.Profile
	if exists {
		saved, err = s.store.Upsert(ctx, next)
	} else {
		saved, err = s.store.Create(ctx, next)
	}
	if err != nil {
		return nil, records.ToServiceError(err, resource, actor.UserID)
	}
	return saved, nil
}

// Ensure creates a profile for a new user. An existing profile is left
// untouched.
func (s *Service) Ensure(ctx context.Context, userID, fullName, phone string) (*domain.Profile, error) {
	if existing, err := s.store.Get(ctx, userID); err == nil {
		return existing, nil
	}
	p := s.store.Table().New()
	p.FullName = fullName
	p.Phone = phone
	p.Prepare(userID, s.now())
	if err := p.Validate(); err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, p)
	if errors.Is(err, records.ErrConflict) {
		return s.Get(ctx, userID)
	}
	if err != nil {
		return nil, records.ToServiceError(err, resource, userID)
	}
	return created, nil
}
