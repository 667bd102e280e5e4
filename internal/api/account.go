package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/elghella/marketplace/internal/auth"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/middleware"
)

type signInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshInput struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) authService() (*auth.Service, error) {
	if s.deps.Auth == nil {
		return nil, svcerrors.Unavailable("authentication is not configured", nil)
	}
	return s.deps.Auth, nil
}

// handleSignUp registers an account and its profile.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	svc, err := s.authService()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req auth.SignUpRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := svc.SignUp(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.created(w, session)
}

// handleSignIn exchanges credentials for a session.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	svc, err := s.authService()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var input signInInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := svc.SignIn(r.Context(), input.Email, input.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, session)
}

// handleRefresh renews a session.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	svc, err := s.authService()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var input refreshInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := svc.Refresh(r.Context(), input.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, session)
}

// handleMe describes the caller.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	svc, err := s.authService()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	me, err := svc.Me(ctx, middleware.GetActor(ctx), middleware.GetClaims(ctx))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, me)
}

// handleGetOwnProfile returns the caller's profile, creating an empty one
// for accounts that predate profiles.
func (s *Server) handleGetOwnProfile(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	p, err := s.deps.Profiles.Ensure(r.Context(), actor.UserID, "", "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, p)
}

// handleUpdateProfile edits the caller's profile.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := httputil.DecodeJSON(r, &fields); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.deps.Profiles.Upsert(r.Context(), middleware.GetActor(r.Context()), fields)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, p)
}

// handleGetProfile returns a public profile.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, p)
}
