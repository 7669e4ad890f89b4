// Package erp talks to the external ERP that schedules field work (avisos)
// and reconciles payments against outstanding documents.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/config"
	"github.com/spec-kit/property-backoffice/internal/domain"
)

// AvisoInfo is the remote work-order snapshot returned by Info.
type AvisoInfo struct {
	AvisoState       string `json:"work_order_state"`
	TicketState      string `json:"ticket_state"`
	ResponsibleEmail string `json:"responsible_party_email"`
	QuotationFileRef string `json:"quotation_file_ref"`
	QuotationNote    string `json:"quotation_note"`
}

// CompensationLine is one document the ERP rejected during compensation.
type CompensationLine struct {
	SapID   string `json:"id"`
	Message string `json:"error_message"`
}

// CompensationFailure carries the ERP's per-line rejection detail.
type CompensationFailure struct {
	Lines []CompensationLine
}

func (e *CompensationFailure) Error() string {
	return fmt.Sprintf("erp compensation rejected %d line(s)", len(e.Lines))
}

// Client is the consumed ERP contract.
type Client interface {
	CreateAviso(ctx context.Context, ticketID int64, sapCustomer int, serviceCode, note string) (int64, error)
	Info(ctx context.Context, avisoID int64) (*AvisoInfo, error)
	ChangeState(ctx context.Context, avisoID int64, state string) error
	Compensate(ctx context.Context, attempt *domain.PaymentAttempt, invoices []domain.Invoice, advances []domain.AdvancePayment) error
}

type httpClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient builds an HTTP-backed ERP client.
func NewClient(cfg config.ERPConfig, logger *zap.Logger) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type createAvisoRequest struct {
	TicketID    int64  `json:"ticket_id"`
	SapCustomer int    `json:"sap_customer"`
	ServiceCode string `json:"service_code"`
	Note        string `json:"note"`
}

type createAvisoResponse struct {
	AvisoID int64 `json:"aviso_id"`
}

func (c *httpClient) CreateAviso(ctx context.Context, ticketID int64, sapCustomer int, serviceCode, note string) (int64, error) {
	payload := createAvisoRequest{
		TicketID:    ticketID,
		SapCustomer: sapCustomer,
		ServiceCode: serviceCode,
		Note:        note,
	}
	var resp createAvisoResponse
	if err := c.do(ctx, http.MethodPost, "/api/avisos", payload, &resp); err != nil {
		return 0, err
	}
	c.logger.Info("erp aviso created",
		zap.Int64("aviso_id", resp.AvisoID), zap.Int64("ticket_id", ticketID))
	return resp.AvisoID, nil
}

func (c *httpClient) Info(ctx context.Context, avisoID int64) (*AvisoInfo, error) {
	var info AvisoInfo
	path := fmt.Sprintf("/api/avisos/%d", avisoID)
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type changeStateRequest struct {
	State string `json:"state"`
}

func (c *httpClient) ChangeState(ctx context.Context, avisoID int64, state string) error {
	path := fmt.Sprintf("/api/avisos/%d/state", avisoID)
	if err := c.do(ctx, http.MethodPut, path, changeStateRequest{State: state}, nil); err != nil {
		return err
	}
	c.logger.Info("erp aviso state changed",
		zap.Int64("aviso_id", avisoID), zap.String("state", state))
	return nil
}

type compensateDocument struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

type compensateRequest struct {
	SapCustomer int                  `json:"sap_customer"`
	Transaction int64                `json:"transaction"`
	Invoices    []compensateDocument `json:"invoices"`
	Advances    []compensateDocument `json:"advance_payments"`
}

type compensateErrorBody struct {
	Errors []CompensationLine `json:"error"`
}

func (c *httpClient) Compensate(ctx context.Context, attempt *domain.PaymentAttempt, invoices []domain.Invoice, advances []domain.AdvancePayment) error {
	payload := compensateRequest{
		SapCustomer: attempt.SapCustomer,
		Transaction: attempt.Transaction,
	}
	for _, inv := range invoices {
		payload.Invoices = append(payload.Invoices, compensateDocument{ID: inv.Reference, Amount: inv.AmountDOP})
	}
	for _, adv := range advances {
		payload.Advances = append(payload.Advances, compensateDocument{ID: adv.Concept, Amount: adv.Amount})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/compensations", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		var body compensateErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("erp compensation failed with status %d", resp.StatusCode)
		}
		return &CompensationFailure{Lines: body.Errors}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("erp compensation failed with status %d", resp.StatusCode)
	}
	c.logger.Info("erp compensation committed",
		zap.String("payment_attempt_id", attempt.ID), zap.Int64("transaction", attempt.Transaction))
	return nil
}

func (c *httpClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("erp request %s %s failed with status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
