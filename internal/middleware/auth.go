// Package middleware provides HTTP middleware for the marketplace API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/elghella/marketplace/internal/auth"
	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/errors"
	internalhttputil "github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/logging"
)

type claimsKey struct{}

// AuthMiddleware authenticates Supabase bearer tokens.
type AuthMiddleware struct {
	authenticator *auth.Authenticator
	logger        *logging.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator *auth.Authenticator, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// Handler rejects requests without a valid bearer token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return m.handler(next, false)
}

// Optional authenticates the caller when a token is sent and otherwise
// serves the request anonymously. Invalid tokens are ignored.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return m.handler(next, true)
}

func (m *AuthMiddleware) handler(next http.Handler, optional bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Already authenticated by an outer middleware.
		if GetUserID(r.Context()) != "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if optional {
				next.ServeHTTP(w, r)
				return
			}
			m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			if optional {
				next.ServeHTTP(w, r)
				return
			}
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		actor, claims, err := m.authenticator.Authenticate(r.Context(), tokenString)
		if err != nil {
			if optional {
				m.logger.WithContext(r.Context()).WithError(err).Debug("Ignoring invalid token on public route")
				next.ServeHTTP(w, r)
				return
			}
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		ctx := auth.ContextWithActor(r.Context(), actor, tokenString)
		ctx = context.WithValue(ctx, claimsKey{}, claims)

		m.logger.WithContext(ctx).WithField("user_id", actor.UserID).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts user role from context
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// GetActor returns the authenticated caller, or the anonymous actor.
func GetActor(ctx context.Context) domain.Actor {
	return auth.ActorFromContext(ctx)
}

// GetClaims returns the verified token claims, or nil.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// RequireUserID middleware ensures user ID is present in context
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			internalhttputil.WriteError(w, r, errors.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin lets only administrators through.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := GetActor(r.Context())
		switch {
		case actor.Anonymous():
			internalhttputil.WriteError(w, r, errors.Unauthorized("Authentication required"))
		case !actor.IsAdmin():
			internalhttputil.WriteError(w, r, errors.Forbidden("Administrator access required"))
		default:
			next.ServeHTTP(w, r)
		}
	})
}
