package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/config"
	"github.com/spec-kit/property-backoffice/internal/events"
	"github.com/spec-kit/property-backoffice/internal/mailer"
)

// NotificationService turns domain events into resident and crew email.
// Handlers run on the dispatcher worker, off the request path.
type NotificationService struct {
	dispatcher events.Dispatcher
	mail       mailer.Mailer
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, mail mailer.Mailer, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		mail:       mail,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRequestCreated, n.handleRequestCreated)
	n.dispatcher.Subscribe(events.EventQuotationPending, n.handleQuotationPending)
	n.dispatcher.Subscribe(events.EventWorkPending, n.handleWorkPending)
	n.dispatcher.Subscribe(events.EventWorkRejected, n.handleWorkRejected)
	n.dispatcher.Subscribe(events.EventPaymentApproved, n.handlePaymentApproved)
	n.dispatcher.Subscribe(events.EventCompensationFailed, n.handleCompensationFailed)
}

func (n *NotificationService) handleRequestCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	n.logger.Info("ServiceRequestCreated",
		zap.String("request_id", event.RequestID),
		zap.Int64("ticket_id", payload.TicketID))
	return n.mail.Send(ctx, mailer.Message{
		To:      []string{payload.RequesterEmail},
		Subject: fmt.Sprintf("Service request received: %s", payload.ServiceName),
		Body: fmt.Sprintf(
			"Your request for %s was registered and a support ticket was opened. "+
				"We will contact you once a quotation is ready.", payload.ServiceName),
	})
}

func (n *NotificationService) handleQuotationPending(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.QuotationPendingPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	n.logger.Info("QuotationPending",
		zap.String("request_id", event.RequestID),
		zap.String("ticket_number", payload.TicketNumber))
	body := "A quotation for your service request is ready and waiting for your approval."
	if payload.Note != "" {
		body += "\n\nNotes: " + payload.Note
	}
	if payload.FileRef != "" {
		body += "\nQuotation document: " + payload.FileRef
	}
	return n.mail.Send(ctx, mailer.Message{
		To:      []string{payload.RequesterEmail},
		CC:      []string{n.cfg.SupportEmail},
		Subject: fmt.Sprintf("Quotation ready for approval - ticket %s", payload.TicketNumber),
		Body:    body,
	})
}

func (n *NotificationService) handleWorkPending(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.WorkPendingPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	n.logger.Info("WorkPending",
		zap.String("request_id", event.RequestID),
		zap.String("ticket_number", payload.TicketNumber))
	return n.mail.Send(ctx, mailer.Message{
		To:      []string{payload.RequesterEmail},
		CC:      []string{n.cfg.SupportEmail},
		Subject: fmt.Sprintf("Work completed, waiting for your acceptance - ticket %s", payload.TicketNumber),
		Body: "The work on your service request has been reported as finished. " +
			"Please confirm the result or reject it so the crew can return.",
	})
}

func (n *NotificationService) handleWorkRejected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.WorkDecidedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	n.logger.Info("WorkRejected",
		zap.String("request_id", event.RequestID),
		zap.String("ticket_number", payload.TicketNumber))
	if payload.ResponsibleEmail == "" {
		n.logger.Warn("work rejected without responsible party email",
			zap.String("request_id", event.RequestID))
		return nil
	}
	return n.mail.Send(ctx, mailer.Message{
		To:      []string{payload.ResponsibleEmail},
		CC:      []string{n.cfg.SupportEmail},
		Subject: fmt.Sprintf("Work rejected by resident - ticket %s", payload.TicketNumber),
		Body: "The resident rejected the delivered work. " +
			"Schedule a follow-up visit for this work order.",
	})
}

func (n *NotificationService) handlePaymentApproved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PaymentApprovedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	n.logger.Info("PaymentApproved",
		zap.Int64("transaction", payload.Transaction))
	return n.mail.Send(ctx, mailer.Message{
		To:      []string{payload.ResidentEmail},
		Subject: fmt.Sprintf("Payment confirmation - transaction %d", payload.Transaction),
		Body: fmt.Sprintf("Your payment was approved. Authorization code: %s.",
			payload.AuthorizationCode),
	})
}

func (n *NotificationService) handleCompensationFailed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CompensationFailedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	n.logger.Error("CompensationFailed",
		zap.String("payment_attempt_id", payload.PaymentAttemptID),
		zap.Int64("transaction", payload.Transaction),
		zap.Int("line_count", payload.LineCount))
	return n.mail.Send(ctx, mailer.Message{
		To:      []string{n.cfg.SupportEmail},
		Subject: fmt.Sprintf("Compensation failed - transaction %d", payload.Transaction),
		Body: fmt.Sprintf(
			"The charge for payment attempt %s settled but ERP compensation failed on %d line(s). "+
				"Manual reconciliation is required.", payload.PaymentAttemptID, payload.LineCount),
	})
}
