package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/messages"
	"github.com/elghella/marketplace/internal/middleware"
	"github.com/elghella/marketplace/internal/records"
)

// =============================================================================
// Settings
// =============================================================================

// handleGetSettings returns the website settings, or one value of them
// with ?key=social_links.facebook.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
		value, err := s.deps.Settings.Lookup(r.Context(), key)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.ok(w, map[string]interface{}{"key": key, "value": value})
		return
	}
	current, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, current)
}

// handleUpdateSettings saves the website settings.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := httputil.DecodeJSON(r, &fields); err != nil {
		s.fail(w, r, err)
		return
	}
	saved, err := s.deps.Settings.Update(r.Context(), middleware.GetActor(r.Context()), fields)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, saved)
}

// =============================================================================
// Messages
// =============================================================================

// handleSubmitMessage stores a contact form submission.
func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := httputil.DecodeJSON(r, &msg); err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.deps.Messages.Submit(r.Context(), &msg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.created(w, created)
}

// handleListMessages lists contact messages for the back-office.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", messages.MaxPageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := httputil.QueryInt(r, "offset", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit == 0 || limit > messages.MaxPageSize {
		limit = messages.MaxPageSize
	}
	items, total, err := s.deps.Messages.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]interface{}{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleUnreadCount returns the number of unread messages.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Messages.UnreadCount(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]int{"unread": n})
}

// handleGetMessage opens a message, marking it read.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.deps.Messages.MarkRead(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, msg)
}

type messageStatusInput struct {
	Status string `json:"status"`
}

// handleUpdateMessage changes a message status.
func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var input messageStatusInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.deps.Messages.SetStatus(r.Context(), mux.Vars(r)["id"], input.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, msg)
}

type replyInput struct {
	Reply string `json:"reply"`
}

// handleReplyMessage records a reply.
func (s *Server) handleReplyMessage(w http.ResponseWriter, r *http.Request) {
	var input replyInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.deps.Messages.Reply(r.Context(), mux.Vars(r)["id"], input.Reply)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, msg)
}

// handleDeleteMessage removes a message.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Messages.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Stats
// =============================================================================

// Stats summarises the marketplace for the back-office dashboard.
type Stats struct {
	Listings       map[string]int `json:"listings"`
	TotalListings  int            `json:"total_listings"`
	Items          int            `json:"marketplace_items"`
	Categories     int            `json:"categories"`
	Messages       int            `json:"messages"`
	UnreadMessages int            `json:"unread_messages"`
}

// handleStats counts rows per resource.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := Stats{Listings: make(map[string]int)}
	for _, res := range s.deps.Registry.All() {
		n, err := res.Count(ctx)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		stats.Listings[res.Name()] = n
		stats.TotalListings += n
	}

	var err error
	if stats.Items, err = s.deps.Marketplace.Items().Count(ctx, records.Query{}); err != nil {
		s.fail(w, r, err)
		return
	}
	if stats.Categories, err = s.deps.Marketplace.Categories().Count(ctx, records.Query{}); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, stats.Messages, err = s.deps.Messages.List(ctx, "", 1, 0); err != nil {
		s.fail(w, r, err)
		return
	}
	if stats.UnreadMessages, err = s.deps.Messages.UnreadCount(ctx); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, stats)
}
