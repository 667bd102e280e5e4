// Package messages handles contact form submissions and their
// back-office workflow.
package messages

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/records"
)

const resource = "message"

// MaxPageSize bounds List.
const MaxPageSize = 100

// Service implements the contact message operations. Admin checks for
// everything but Submit are made by the HTTP layer.
type Service struct {
	store  records.Store[*domain.Message]
	logger *logging.Logger
	now    func() time.Time
}

// New creates the service.
func New(store records.Store[*domain.Message], logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Submit stores a contact form message as unread.
func (s *Service) Submit(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	msg.ID = ""
	msg.Prepare("", s.now())
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, msg)
	if err != nil {
		return nil, records.ToServiceError(err, resource, "")
	}
	s.logger.WithContext(ctx).WithField("message_id", created.ID).Info("contact message received")
	return created, nil
}

// List returns messages newest first, optionally by status.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*domain.Message, int, error) {
	q := records.Query{Limit: limit, Offset: offset}
	if q.Limit <= 0 || q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if status != "" {
		switch status {
		case domain.MessageUnread, domain.MessageRead, domain.MessageReplied:
		default:
			return nil, 0, svcerrors.Validation("status", "status must be unread, read or replied")
		}
		q = q.Where("status", records.OpEq, status)
	}
	items, err := s.store.Fetch(ctx, q)
	if err != nil {
		return nil, 0, records.ToServiceError(err, resource, "")
	}
	total, err := s.store.Count(ctx, q)
	if err != nil {
		return nil, 0, records.ToServiceError(err, resource, "")
	}
	return items, total, nil
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, records.ToServiceError(err, resource, id)
	}
	return msg, nil
}

// MarkRead marks an unread message as read. Replied messages keep their
// status.
func (s *Service) MarkRead(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.Status != domain.MessageUnread {
		return msg, nil
	}
	return s.update(ctx, id, map[string]any{"status": domain.MessageRead})
}

// SetStatus moves a message to status.
func (s *Service) SetStatus(ctx context.Context, id, status string) (*domain.Message, error) {
	switch status {
	case domain.MessageUnread, domain.MessageRead, domain.MessageReplied:
	default:
		return nil, svcerrors.Validation("status", "status must be unread, read or replied")
	}
	return s.update(ctx, id, map[string]any{"status": status})
}

// Reply records the admin's reply and marks the message replied.
func (s *Service) Reply(ctx context.Context, id, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, svcerrors.Validation("reply", "reply is required")
	}
	if utf8.RuneCountInString(text) > 5000 {
		return nil, svcerrors.Validation("reply", "reply is too long")
	}
	now := s.now().UTC()
	return s.update(ctx, id, map[string]any{
		"status":     domain.MessageReplied,
		"reply":      text,
		"replied_at": now,
	})
}

// Delete removes a message.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return records.ToServiceError(err, resource, id)
	}
	return nil
}

// UnreadCount returns the number of unread messages.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx, records.Query{}.Where("status", records.OpEq, domain.MessageUnread))
	if err != nil {
		return 0, records.ToServiceError(err, resource, "")
	}
	return n, nil
}

func (s *Service) update(ctx context.Context, id string, fields map[string]any) (*domain.Message, error) {
	fields["updated_at"] = s.now().UTC()
	msg, err := s.store.Update(ctx, id, fields)
	if err != nil {
		return nil, records.ToServiceError(err, resource, id)
	}
	return msg, nil
}
