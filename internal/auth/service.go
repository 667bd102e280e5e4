package auth

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/supabase"
)

// MinPasswordLength matches the Supabase Auth default.
const MinPasswordLength = 6

// Provider is the subset of the Supabase Auth API used by Service.
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*supabase.AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*supabase.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*supabase.AuthResponse, error)
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// ProfileStore creates and reads profiles.
type ProfileStore interface {
	Ensure(ctx context.Context, userID, fullName, phone string) (*domain.Profile, error)
	Get(ctx context.Context, id string) (*domain.Profile, error)
}

// SignUpRequest is the sign-up form.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// Session is returned after sign-up or sign-in.
type Session struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	ExpiresIn    int             `json:"expires_in,omitempty"`
	TokenType    string          `json:"token_type,omitempty"`
	User         *supabase.User  `json:"user,omitempty"`
	Profile      *domain.Profile `json:"profile,omitempty"`
	// ConfirmationRequired is set when the account must be confirmed by
	// email before signing in.
	ConfirmationRequired bool `json:"confirmation_required,omitempty"`
}

// Service implements sign-up, sign-in and the current user view.
type Service struct {
	provider Provider
	profiles ProfileStore
	roles    *Resolver
	logger   *logging.Logger
}

// NewService creates the auth service. provider is nil when Supabase is not
// configured, in which case sign-up and sign-in are unavailable.
func NewService(provider Provider, profiles ProfileStore, roles *Resolver, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{provider: provider, profiles: profiles, roles: roles, logger: logger}
}

// SignUp registers a user and creates their profile.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	if s.provider == nil {
		return nil, svcerrors.Unavailable("authentication is not configured", nil)
	}
	email, err := validateCredentials(req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	req.FullName = strings.TrimSpace(req.FullName)
	if utf8.RuneCountInString(req.FullName) > 120 {
		return nil, svcerrors.Validation("full_name", "full_name is too long")
	}

	metadata := map[string]any{}
	if req.FullName != "" {
		metadata["full_name"] = req.FullName
	}
	if req.Phone != "" {
		metadata["phone"] = req.Phone
	}
	resp, err := s.provider.SignUp(ctx, email, req.Password, metadata)
	if err != nil {
		return nil, mapAuthError(err)
	}

	session := toSession(resp)
	session.ConfirmationRequired = resp.AccessToken == ""
	if resp.User != nil && s.profiles != nil {
		pctx := ctx
		if resp.AccessToken != "" {
			pctx = supabase.WithAccessToken(ctx, resp.AccessToken)
		}
		profile, err := s.profiles.Ensure(pctx, resp.User.ID, req.FullName, req.Phone)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("user_id", resp.User.ID).
				Warn("profile creation after sign-up failed")
		} else {
			session.Profile = profile
		}
	}

	s.logger.LogSecurityEvent(ctx, "user_signed_up", map[string]interface{}{"email_domain": domainOf(email)})
	return session, nil
}

// SignIn exchanges credentials for a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if s.provider == nil {
		return nil, svcerrors.Unavailable("authentication is not configured", nil)
	}
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, err
	}
	resp, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.logger.LogSecurityEvent(ctx, "sign_in_failed", map[string]interface{}{"email_domain": domainOf(email)})
		return nil, mapAuthError(err)
	}
	session := toSession(resp)
	if resp.User != nil && s.profiles != nil {
		if p, err := s.profiles.Get(supabase.WithAccessToken(ctx, resp.AccessToken), resp.User.ID); err == nil {
			session.Profile = p
		}
	}
	return session, nil
}

// Refresh exchanges a refresh token for a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if s.provider == nil {
		return nil, svcerrors.Unavailable("authentication is not configured", nil)
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, svcerrors.Validation("refresh_token", "refresh_token is required")
	}
	resp, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, mapAuthError(err)
	}
	return toSession(resp), nil
}

// Me describes the signed-in caller.
type Me struct {
	UserID  string          `json:"user_id"`
	Role    string          `json:"role"`
	IsAdmin bool            `json:"is_admin"`
	Email   string          `json:"email,omitempty"`
	Profile *domain.Profile `json:"profile,omitempty"`
}

// Me returns the caller's identity and profile.
func (s *Service) Me(ctx context.Context, actor domain.Actor, claims *Claims) (*Me, error) {
	if actor.Anonymous() {
		return nil, svcerrors.Unauthorized("not signed in")
	}
	me := &Me{UserID: actor.UserID, Role: actor.Role, IsAdmin: actor.IsAdmin()}
	if claims != nil {
		me.Email = claims.Email
	}
	if s.profiles != nil {
		p, err := s.profiles.Get(ctx, actor.UserID)
		switch {
		case err == nil:
			me.Profile = p
		case !svcerrors.IsNotFound(err):
			s.logger.WithContext(ctx).WithError(err).Warn("profile lookup failed")
		}
	}
	return me, nil
}

func validateCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", svcerrors.Validation("email", "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", svcerrors.Validation("email", "email is invalid")
	}
	if len(password) < MinPasswordLength {
		return "", svcerrors.Validation("password", "password is too short")
	}
	return email, nil
}

func mapAuthError(err error) error {
	var apiErr *supabase.Error
	if !errors.As(err, &apiErr) {
		return svcerrors.Unavailable("authentication service unreachable", err)
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return svcerrors.RateLimitExceeded(0, "")
	case strings.Contains(msg, "already registered") || strings.Contains(msg, "already exists"):
		return svcerrors.Conflict("email already registered")
	case strings.Contains(msg, "invalid login") || strings.Contains(msg, "invalid grant") ||
		strings.Contains(msg, "refresh token"):
		return svcerrors.Unauthorized("invalid credentials")
	case strings.Contains(msg, "not confirmed"):
		return svcerrors.Forbidden("email not confirmed")
	case apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity:
		return svcerrors.BadRequest(apiErr.Message)
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return svcerrors.Unauthorized("invalid credentials")
	default:
		return svcerrors.Unavailable("authentication service error", err)
	}
}

func toSession(resp *supabase.AuthResponse) *Session {
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		TokenType:    resp.TokenType,
		User:         resp.User,
	}
}

func domainOf(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
