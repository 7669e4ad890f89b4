package domain

import "time"

// PaymentAttempt aggregates invoices and advance payments charged as a unit.
// The two status axes are independent: a settled charge is never reversed by
// a failed compensation.
type PaymentAttempt struct {
	ID             string
	ResidentID     string
	SapCustomer    int
	Transaction    int64
	MerchantName   string
	MerchantNumber string
	CardNumber     string
	CardBrand      string
	StatusProcess  ProcessPaymentStatus
	StatusComp     CompensationStatus
	CreatedAt      time.Time
}

// Invoice is an outstanding ERP document compensated by a payment attempt.
// Amounts are integer cents.
type Invoice struct {
	ID               string
	PaymentAttemptID string
	Amount           int64
	AmountDOP        int64
	Tax              int64
	Currency         string
	Company          int
	CompanyName      string
	DocumentNumber   int64
	DocumentDate     time.Time
	Position         string
	Reference        string
	MerchantNumber   string
	Status           DocumentStatus
}

// AdvancePayment is a prepaid line item compensated alongside invoices.
type AdvancePayment struct {
	ID               string
	PaymentAttemptID string
	Amount           int64
	Concept          string
	Description      string
	Status           DocumentStatus
}

// GatewayRequest records the single outbound charge sent for an attempt.
type GatewayRequest struct {
	ID               string
	PaymentAttemptID string
	OrderNumber      int64
	Amount           int64
	Tax              int64
	Store            string
	CardNumber       string
	CreatedAt        time.Time
}

// GatewayResponse records the single gateway answer for an attempt.
type GatewayResponse struct {
	ID                string
	PaymentAttemptID  string
	ResponseCode      string
	AuthorizationCode string
	OrderID           string
	CreatedAt         time.Time
}

// CompensationError is a per-line ERP rejection recorded for operator remediation.
type CompensationError struct {
	ID               string
	PaymentAttemptID string
	SapID            string
	Message          string
	CreatedAt        time.Time
}

// CreditCardStatus enumerates vaulted card states.
type CreditCardStatus string

const (
	CreditCardStatusValid   CreditCardStatus = "VALID"
	CreditCardStatusDeleted CreditCardStatus = "DELETED"
)

// CreditCard is a vaulted payment method reusable across attempts.
type CreditCard struct {
	ID                  string
	OwnerID             string
	Name                string
	Brand               string
	Token               string
	LastFour            string
	MerchantNumber      string
	DataVaultExpiration string
	Status              CreditCardStatus
	CreatedAt           time.Time
}

// Total returns the charge amount of the attempt in cents.
func Total(invoices []Invoice, advances []AdvancePayment) int64 {
	var total int64
	for _, inv := range invoices {
		total += inv.AmountDOP
	}
	for _, adv := range advances {
		total += adv.Amount
	}
	return total
}

// TotalTax returns the aggregate invoice tax in cents.
func TotalTax(invoices []Invoice) int64 {
	var tax int64
	for _, inv := range invoices {
		tax += inv.Tax
	}
	return tax
}
