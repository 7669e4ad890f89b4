package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/config"
	"github.com/spec-kit/property-backoffice/internal/events"
	"github.com/spec-kit/property-backoffice/internal/mailer"
)

// syncDispatcher delivers events inline so tests can assert on the mail that
// a publication produced.
type syncDispatcher struct {
	handlers map[events.EventType][]events.EventHandler
}

func newSyncDispatcher() *syncDispatcher {
	return &syncDispatcher{handlers: make(map[events.EventType][]events.EventHandler)}
}

func (d *syncDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

func (d *syncDispatcher) Publish(ctx context.Context, event events.Event) error {
	for _, handler := range d.handlers[event.Type] {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func notificationFixture() (*syncDispatcher, *fakeMailer, *NotificationService) {
	dispatcher := newSyncDispatcher()
	mail := &fakeMailer{}
	svc := NewNotificationService(dispatcher, mail, zap.NewNop(), config.NotificationConfig{
		SupportEmail: "support@example.com",
	})
	svc.RegisterHandlers()
	return dispatcher, mail, svc
}

func TestQuotationPendingMailsResidentWithTicketNumber(t *testing.T) {
	dispatcher, mail, _ := notificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:      events.EventQuotationPending,
		RequestID: "req-1",
		Payload: events.QuotationPendingPayload{
			RequesterEmail: "resident@example.com",
			TicketNumber:   "T-100",
			FileRef:        "quotes/estimate.pdf",
			Note:           "two visits required",
		},
	})
	require.NoError(t, err)

	require.Len(t, mail.sent, 1)
	msg := mail.sent[0]
	assert.Equal(t, []string{"resident@example.com"}, msg.To)
	assert.Equal(t, []string{"support@example.com"}, msg.CC)
	assert.Equal(t, "Quotation ready for approval - ticket T-100", msg.Subject)
	assert.Contains(t, msg.Body, "quotes/estimate.pdf")
	assert.Contains(t, msg.Body, "two visits required")
}

func TestWorkRejectedMailsResponsibleParty(t *testing.T) {
	dispatcher, mail, _ := notificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:      events.EventWorkRejected,
		RequestID: "req-1",
		Payload: events.WorkDecidedPayload{
			RequesterEmail:   "resident@example.com",
			ResponsibleEmail: "crew@example.com",
			TicketNumber:     "T-100",
		},
	})
	require.NoError(t, err)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{"crew@example.com"}, mail.sent[0].To)
	assert.Equal(t, "Work rejected by resident - ticket T-100", mail.sent[0].Subject)
}

func TestWorkRejectedWithoutResponsibleIsSkipped(t *testing.T) {
	dispatcher, mail, _ := notificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:      events.EventWorkRejected,
		RequestID: "req-1",
		Payload: events.WorkDecidedPayload{
			RequesterEmail: "resident@example.com",
			TicketNumber:   "T-100",
		},
	})
	require.NoError(t, err)
	assert.Empty(t, mail.sent)
}

func TestCompensationFailedAlertsSupport(t *testing.T) {
	dispatcher, mail, _ := notificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventCompensationFailed,
		Payload: events.CompensationFailedPayload{
			PaymentAttemptID: "pay-1",
			Transaction:      42,
			LineCount:        2,
		},
	})
	require.NoError(t, err)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{"support@example.com"}, mail.sent[0].To)
	assert.Equal(t, "Compensation failed - transaction 42", mail.sent[0].Subject)
	assert.Contains(t, mail.sent[0].Body, "Manual reconciliation")
}

func TestMismatchedPayloadIsRejected(t *testing.T) {
	dispatcher, mail, _ := notificationFixture()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventPaymentApproved,
		Payload: events.WorkPendingPayload{},
	})
	require.Error(t, err)
	assert.Empty(t, mail.sent)
}
