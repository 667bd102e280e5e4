// Package api exposes the marketplace over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/elghella/marketplace/internal/auth"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/listings"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/marketplace"
	"github.com/elghella/marketplace/internal/messages"
	"github.com/elghella/marketplace/internal/metrics"
	"github.com/elghella/marketplace/internal/middleware"
	"github.com/elghella/marketplace/internal/profiles"
	"github.com/elghella/marketplace/internal/service"
	"github.com/elghella/marketplace/internal/settings"
	"github.com/elghella/marketplace/internal/uploads"
)

// Deps are the services behind the API. Limiter, CORS, Metrics and Uploads
// are optional.
type Deps struct {
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	Base        *service.BaseService
	Registry    *listings.Registry
	Marketplace *marketplace.Service
	Messages    *messages.Service
	Profiles    *profiles.Service
	Settings    *settings.Service
	Auth        *auth.Service
	AuthMW      *middleware.AuthMiddleware
	Limiter     *middleware.RateLimiter
	CORS        *middleware.CORSMiddleware
	Uploads     *uploads.Service
}

// Server routes HTTP requests to the services.
type Server struct {
	deps   Deps
	logger *logging.Logger
	router *mux.Router
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{deps: deps, logger: logger, router: mux.NewRouter()}
	s.registerRoutes()
	return s
}

// Handler returns the root handler. Tracing and CORS wrap the router so
// unmatched routes and preflight requests get them too.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.deps.CORS != nil {
		h = s.deps.CORS.Handler(h)
	}
	return middleware.NewTracingMiddleware(s.logger).Handler(h)
}

// Router exposes the mux router.
func (s *Server) Router() *mux.Router { return s.router }

// =============================================================================
// Routes
// =============================================================================

func (s *Server) registerRoutes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, svcerrors.NotFound("route", req.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteErrorResponse(w, req, http.StatusMethodNotAllowed, string(svcerrors.CodeBadRequest), "method not allowed", nil)
	})

	if s.deps.Metrics != nil {
		r.Use(middleware.MetricsMiddleware("elghella", s.deps.Metrics))
		r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	if s.deps.AuthMW != nil {
		r.Use(s.deps.AuthMW.Optional)
	}
	if s.deps.Limiter != nil {
		r.Use(s.deps.Limiter.Handler)
	}
	if s.deps.Base != nil {
		s.deps.Base.RegisterStandardRoutes(r)
	}

	api := r.PathPrefix("/api").Subrouter()

	// Auth and accounts
	api.HandleFunc("/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.user(s.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.user(s.handleGetOwnProfile)).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.user(s.handleUpdateProfile)).Methods(http.MethodPut)
	api.HandleFunc("/profiles/{id}", s.handleGetProfile).Methods(http.MethodGet)

	// Listings
	api.HandleFunc("/listings", s.handleListResources).Methods(http.MethodGet)
	api.HandleFunc("/listings/{resource}", s.handleListListings).Methods(http.MethodGet)
	api.HandleFunc("/listings/{resource}", s.user(s.handleCreateListing)).Methods(http.MethodPost)
	api.HandleFunc("/listings/{resource}/{id}", s.handleGetListing).Methods(http.MethodGet)
	api.HandleFunc("/listings/{resource}/{id}", s.user(s.handleUpdateListing)).Methods(http.MethodPatch)
	api.HandleFunc("/listings/{resource}/{id}", s.user(s.handleDeleteListing)).Methods(http.MethodDelete)
	api.HandleFunc("/listings/{resource}/{id}/availability", s.user(s.handleSetAvailability)).Methods(http.MethodPost)
	api.HandleFunc("/me/listings/{resource}", s.user(s.handleListMyListings)).Methods(http.MethodGet)

	// Marketplace
	api.HandleFunc("/marketplace/items", s.handleListItems).Methods(http.MethodGet)
	api.HandleFunc("/marketplace/items", s.user(s.handleCreateItem)).Methods(http.MethodPost)
	api.HandleFunc("/marketplace/items/{id}", s.handleGetItem).Methods(http.MethodGet)
	api.HandleFunc("/marketplace/items/{id}", s.user(s.handleUpdateItem)).Methods(http.MethodPatch)
	api.HandleFunc("/marketplace/items/{id}", s.user(s.handleDeleteItem)).Methods(http.MethodDelete)
	api.HandleFunc("/marketplace/items/{id}/sold", s.user(s.handleMarkSold)).Methods(http.MethodPost)
	api.HandleFunc("/marketplace/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/me/items", s.user(s.handleListMyItems)).Methods(http.MethodGet)

	// Site
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleSubmitMessage).Methods(http.MethodPost)

	// Uploads
	api.HandleFunc("/uploads/{resource}", s.user(s.handleUpload)).Methods(http.MethodPost)
	api.HandleFunc("/uploads", s.user(s.handleDeleteUpload)).Methods(http.MethodDelete)

	// Back-office
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/messages", s.handleListMessages).Methods(http.MethodGet)
	admin.HandleFunc("/messages/unread-count", s.handleUnreadCount).Methods(http.MethodGet)
	admin.HandleFunc("/messages/{id}", s.handleGetMessage).Methods(http.MethodGet)
	admin.HandleFunc("/messages/{id}", s.handleUpdateMessage).Methods(http.MethodPatch)
	admin.HandleFunc("/messages/{id}", s.handleDeleteMessage).Methods(http.MethodDelete)
	admin.HandleFunc("/messages/{id}/reply", s.handleReplyMessage).Methods(http.MethodPost)
	admin.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPut)
	admin.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	admin.HandleFunc("/categories/{id}", s.handleUpdateCategory).Methods(http.MethodPatch)
	admin.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)
	admin.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// =============================================================================
// Helpers
// =============================================================================

// user rejects anonymous callers.
func (s *Server) user(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RequireUserID(h).ServeHTTP
}

// fail writes err and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil || se.HTTPStatus >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	httputil.WriteError(w, r, err)
}

func (s *Server) ok(w http.ResponseWriter, v interface{}) {
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) created(w http.ResponseWriter, v interface{}) {
	httputil.WriteJSON(w, http.StatusCreated, v)
}
