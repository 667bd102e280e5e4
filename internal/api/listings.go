package api

import (
	"net/http"

	"github.com/gorilla/mux"

	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/listings"
	"github.com/elghella/marketplace/internal/middleware"
)

// StaleHeader marks responses served from the offline cache.
const StaleHeader = "X-Data-Stale"

func (s *Server) resource(r *http.Request) (listings.Resource, error) {
	name := mux.Vars(r)["resource"]
	res, ok := s.deps.Registry.Lookup(name)
	if !ok {
		return nil, svcerrors.NotFound("resource", name)
	}
	return res, nil
}

// readBody reads a bounded JSON request body.
func readBody(r *http.Request) ([]byte, error) {
	body, truncated, err := httputil.ReadAllWithLimit(r.Body, httputil.MaxJSONBodyBytes)
	if err != nil {
		return nil, svcerrors.BadRequest("failed to read request body")
	}
	if truncated {
		return nil, svcerrors.TooLarge(httputil.MaxJSONBodyBytes)
	}
	return body, nil
}

func writePage(w http.ResponseWriter, page *listings.Page[any]) {
	if page.Stale {
		w.Header().Set(StaleHeader, "true")
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// handleListResources lists the listing resource names.
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	s.ok(w, map[string]interface{}{"resources": s.deps.Registry.Names()})
}

// handleListListings returns public listings of one resource.
func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	res, err := s.resource(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := listingQuery(r, res)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := res.List(r.Context(), middleware.GetActor(r.Context()), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, page)
}

// handleListMyListings returns the caller's listings, hidden ones included.
func (s *Server) handleListMyListings(w http.ResponseWriter, r *http.Request) {
	res, err := s.resource(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := listingQuery(r, res)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := res.ListMine(r.Context(), middleware.GetActor(r.Context()), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePage(w, page)
}

// handleGetListing returns one listing.
func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	res, err := s.resource(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := res.Get(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, item)
}

// handleCreateListing publishes a listing for the caller.
func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	res, err := s.resource(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := res.Create(r.Context(), middleware.GetActor(r.Context()), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.created(w, item)
}

// handleUpdateListing applies a partial update.
func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	res, err := s.resource(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var fields map[string]any
	if err := httputil.DecodeJSON(r, &fields); err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := res.Update(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"], fields)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, item)
}

// handleDeleteListing removes a listing.
func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	res, err := s.resource(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := res.Delete(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityInput struct {
	Available *bool `json:"available"`
}

// handleSetAvailability marks a listing available or unavailable.
func (s *Server) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	res, err := s.resource(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var input availabilityInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	if input.Available == nil {
		s.fail(w, r, svcerrors.Validation("available", "available is required"))
		return
	}
	item, err := res.SetAvailability(r.Context(), middleware.GetActor(r.Context()), mux.Vars(r)["id"], *input.Available)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, item)
}
