package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/middleware"
)

// =============================================================================
// Items
// =============================================================================

// handleListItems returns active marketplace items.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	f, err := itemFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.deps.Marketplace.ListItems(r.Context(), middleware.GetActor(r.Context()), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if page.Stale {
		w.Header().Set(StaleHeader, "true")
	}
	s.ok(w, page)
}

// handleListMyItems returns the caller's items in every status.
func (s *Server) handleListMyItems(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.deps.Marketplace.ListSellerItems(r.Context(), middleware.GetActor(r.Context()), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, page)
}

// handleGetItem returns one item.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Marketplace.GetItem(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, item)
}

// handleCreateItem publishes an item.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := s.deps.Marketplace.DecodeItem(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.deps.Marketplace.CreateItem(r.Context(), middleware.GetActor(r.Context()), item)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.created(w, created)
}

// handleUpdateItem patches an item.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := httputil.DecodeJSON(r, &fields); err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := s.deps.Marketplace.UpdateItem(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"], fields)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, item)
}

// handleDeleteItem removes an item.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Marketplace.DeleteItem(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkSold marks an item sold.
func (s *Server) handleMarkSold(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Marketplace.MarkSold(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, item)
}

// =============================================================================
// Categories
// =============================================================================

// handleListCategories returns every category.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Marketplace.ListCategories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]interface{}{"items": cats, "total": len(cats)})
}

// handleCreateCategory adds a category.
func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.deps.Marketplace.DecodeCategory(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.deps.Marketplace.CreateCategory(r.Context(), middleware.GetActor(r.Context()), c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.created(w, created)
}

// handleUpdateCategory patches a category.
func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := httputil.DecodeJSON(r, &fields); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.deps.Marketplace.UpdateCategory(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"], fields)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, c)
}

// handleDeleteCategory removes a category.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Marketplace.DeleteCategory(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
