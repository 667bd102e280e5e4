// Package auth authenticates callers with Supabase access tokens and
// resolves their marketplace role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/supabase"
)

// Audience is the aud claim of tokens issued to signed-in users.
const Audience = "authenticated"

// Claims are the claims of a Supabase access token.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject.
func (c *Claims) UserID() string { return c.Subject }

// AppRole returns app_metadata.role, which only the service role can set.
func (c *Claims) AppRole() string {
	role, _ := c.AppMetadata["role"].(string)
	return role
}

// Verifier checks HS256 tokens signed with the project's JWT secret.
type Verifier struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier for secret.
func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), leeway: 30 * time.Second, now: time.Now}, nil
}

// Verify parses and validates token.
func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, svcerrors.InvalidToken(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, svcerrors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}
	return claims, nil
}

// Issue signs a token the way Supabase Auth does. It backs the memory
// backend and tests.
func (v *Verifier) Issue(userID, email, appRole string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Email: email,
		Role:  Audience,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if appRole != "" {
		claims.AppMetadata = map[string]any{"role": appRole}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticator turns a bearer token into an Actor.
type Authenticator struct {
	verifier *Verifier
	roles    *Resolver
}

// NewAuthenticator combines a verifier and a role resolver.
func NewAuthenticator(verifier *Verifier, roles *Resolver) *Authenticator {
	return &Authenticator{verifier: verifier, roles: roles}
}

// Authenticate validates token and resolves the caller's role.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.Actor, *Claims, error) {
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return domain.Actor{}, nil, err
	}
	role := domain.RoleUser
	if a.roles != nil {
		role = a.roles.Resolve(ctx, claims)
	}
	return domain.Actor{UserID: claims.UserID(), Role: role}, claims, nil
}

// ContextWithActor stores the actor and its access token in ctx. The token
// is forwarded to Supabase so row level security applies.
func ContextWithActor(ctx context.Context, actor domain.Actor, token string) context.Context {
	ctx = logging.WithUserID(ctx, actor.UserID)
	ctx = logging.WithRole(ctx, actor.Role)
	if token != "" {
		ctx = supabase.WithAccessToken(ctx, token)
	}
	return ctx
}

// ActorFromContext returns the actor stored by ContextWithActor, or the
// anonymous actor.
func ActorFromContext(ctx context.Context) domain.Actor {
	return domain.Actor{UserID: logging.GetUserID(ctx), Role: logging.GetRole(ctx)}
}
