package messages

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/records"
)

func newService() *Service {
	return New(records.NewMemoryStore(domain.MessageTable), logging.NewWithOutput("test", "info", "json", io.Discard))
}

func submit(t *testing.T, svc *Service, name string) *domain.Message {
	t.Helper()
	msg, err := svc.Submit(context.Background(), &domain.Message{
		Name:    name,
		Email:   "farmer@example.dz",
		Subject: "استفسار",
		Message: "هل الجرار متوفر؟",
	})
	require.NoError(t, err)
	return msg
}

func TestSubmit(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	msg, err := svc.Submit(ctx, &domain.Message{
		ID:      "chosen",
		Name:    "أحمد",
		Email:   "ahmed@example.dz",
		Message: "مرحبا",
		Status:  domain.MessageReplied,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "chosen", msg.ID)
	assert.Equal(t, domain.MessageUnread, msg.Status)

	_, err = svc.Submit(ctx, &domain.Message{Name: "x", Email: "bad", Message: "hi"})
	assert.True(t, svcerrors.IsValidation(err))
	_, err = svc.Submit(ctx, &domain.Message{Name: "x", Email: "x@example.dz"})
	assert.True(t, svcerrors.IsValidation(err))
}

func TestWorkflow(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	first := submit(t, svc, "علي")
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC) }
	second := submit(t, svc, "فاطمة")

	n, err := svc.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	read, err := svc.MarkRead(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageRead, read.Status)

	replied, err := svc.Reply(ctx, second.ID, "  نعم، متوفر  ")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageReplied, replied.Status)
	assert.Equal(t, "نعم، متوفر", replied.Reply)
	require.NotNil(t, replied.RepliedAt)

	again, err := svc.MarkRead(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageReplied, again.Status)

	n, err = svc.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	items, total, err := svc.List(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, second.ID, items[0].ID)

	items, total, err = svc.List(ctx, domain.MessageRead, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, items[0].ID)

	_, _, err = svc.List(ctx, "archived", 10, 0)
	assert.True(t, svcerrors.IsValidation(err))

	unread, err := svc.SetStatus(ctx, first.ID, domain.MessageUnread)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageUnread, unread.Status)
	_, err = svc.SetStatus(ctx, first.ID, "spam")
	assert.True(t, svcerrors.IsValidation(err))

	_, err = svc.Reply(ctx, first.ID, " ")
	assert.True(t, svcerrors.IsValidation(err))

	require.NoError(t, svc.Delete(ctx, first.ID))
	_, err = svc.Get(ctx, first.ID)
	assert.True(t, svcerrors.IsNotFound(err))
	assert.True(t, svcerrors.IsNotFound(svc.Delete(ctx, first.ID)))
}
