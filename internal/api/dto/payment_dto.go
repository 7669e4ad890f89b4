package dto

import (
	"time"

	"github.com/spec-kit/property-backoffice/internal/domain"
	"github.com/spec-kit/property-backoffice/internal/service"
)

// InvoiceItem is one outstanding document in a payment attempt. Amounts in cents.
type InvoiceItem struct {
	Amount         int64     `json:"amount"`
	AmountDOP      int64     `json:"amount_dop"`
	Tax            int64     `json:"tax"`
	Currency       string    `json:"currency"`
	Company        int       `json:"company"`
	CompanyName    string    `json:"company_name"`
	DocumentNumber int64     `json:"document_number"`
	DocumentDate   time.Time `json:"document_date"`
	Position       string    `json:"position"`
	Reference      string    `json:"reference"`
	MerchantNumber string    `json:"merchant_number"`
}

// AdvanceItem is one prepaid line item. Amount in cents.
type AdvanceItem struct {
	Amount      int64  `json:"amount"`
	Concept     string `json:"concept"`
	Description string `json:"description"`
}

// PaymentAttemptCreateRequest payload for new attempts.
type PaymentAttemptCreateRequest struct {
	Invoices []InvoiceItem `json:"invoices"`
	Advances []AdvanceItem `json:"advance_payments"`
}

// CardPayload carries inline card data or a saved card reference.
type CardPayload struct {
	Number         string `json:"number,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	CVC            string `json:"cvc,omitempty"`
	Name           string `json:"name,omitempty"`
	Save           bool   `json:"save,omitempty"`
	CardUUID       string `json:"card_uuid,omitempty"`
}

// ChargeRequest payload for the charge trigger.
type ChargeRequest struct {
	Card CardPayload `json:"card"`
}

// CompensationErrorItem renders one ERP rejection line.
type CompensationErrorItem struct {
	SapID   string `json:"id_sap"`
	Message string `json:"message"`
}

// PaymentAttemptResponse renders an attempt.
type PaymentAttemptResponse struct {
	ID            string    `json:"id"`
	Transaction   int64     `json:"transaction"`
	StatusProcess string    `json:"status_process_payment"`
	StatusComp    string    `json:"status_compensation"`
	CardNumber    string    `json:"card_number,omitempty"`
	CardBrand     string    `json:"card_brand,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChargeResponse renders the charge outcome.
type ChargeResponse struct {
	Success            bool                    `json:"success"`
	ResponseCode       string                  `json:"response_code"`
	ResponseMessage    string                  `json:"response_message,omitempty"`
	AuthorizationCode  string                  `json:"authorization_code,omitempty"`
	OrderID            string                  `json:"order_id,omitempty"`
	Attempt            PaymentAttemptResponse  `json:"payment_attempt"`
	CompensationErrors []CompensationErrorItem `json:"compensation_errors,omitempty"`
}

// CreditCardResponse renders a vaulted card.
type CreditCardResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Brand      string `json:"brand"`
	LastFour   string `json:"last_four"`
	Expiration string `json:"expiration"`
}

// NewPaymentAttemptResponse maps a domain attempt.
func NewPaymentAttemptResponse(attempt domain.PaymentAttempt) PaymentAttemptResponse {
	return PaymentAttemptResponse{
		ID:            attempt.ID,
		Transaction:   attempt.Transaction,
		StatusProcess: string(attempt.StatusProcess),
		StatusComp:    string(attempt.StatusComp),
		CardNumber:    attempt.CardNumber,
		CardBrand:     attempt.CardBrand,
		CreatedAt:     attempt.CreatedAt,
	}
}

// NewChargeResponse maps a service charge outcome.
func NewChargeResponse(outcome service.ChargeOutcome) ChargeResponse {
	resp := ChargeResponse{
		Success:           outcome.Approved,
		ResponseCode:      outcome.ResponseCode,
		ResponseMessage:   outcome.ResponseMessage,
		AuthorizationCode: outcome.AuthorizationCode,
		OrderID:           outcome.OrderID,
		Attempt:           NewPaymentAttemptResponse(outcome.Attempt),
	}
	for _, compErr := range outcome.CompensationErrors {
		resp.CompensationErrors = append(resp.CompensationErrors, CompensationErrorItem{
			SapID:   compErr.SapID,
			Message: compErr.Message,
		})
	}
	return resp
}

// NewCreditCardResponse maps a vaulted card.
func NewCreditCardResponse(card domain.CreditCard) CreditCardResponse {
	return CreditCardResponse{
		ID:         card.ID,
		Name:       card.Name,
		Brand:      card.Brand,
		LastFour:   card.LastFour,
		Expiration: card.DataVaultExpiration,
	}
}
