// Package helpdesk talks to the external support-desk system. The helpdesk
// owns the ticket record; this service only keeps the ticket id and fetches
// live state on demand.
package helpdesk

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
)

// Ticket is the remote ticket snapshot returned by Get.
type Ticket struct {
	ID     int64  `json:"ticket_id"`
	Number string `json:"ticket_number"`
	State  string `json:"state_name"`
}

// Client is the consumed helpdesk contract.
type Client interface {
	Create(ctx context.Context, topic, subject, body, priority string) (int64, error)
	Get(ctx context.Context, ticketID int64) (*Ticket, error)
	ChangeState(ctx context.Context, ticketID int64, state string) error
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient builds an HTTP-backed helpdesk client.
func NewClient(cfg config.HelpdeskConfig, logger *zap.Logger) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type createTicketRequest struct {
	Topic    string `json:"topic"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

type createTicketResponse struct {
	TicketID int64 `json:"ticket_id"`
}

func (c *httpClient) Create(ctx context.Context, topic, subject, body, priority string) (int64, error) {
	payload := createTicketRequest{Topic: topic, Subject: subject, Body: body, Priority: priority}
	var resp createTicketResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tickets", payload, &resp); err != nil {
		return 0, err
	}
	c.logger.Info("helpdesk ticket created",
		zap.Int64("ticket_id", resp.TicketID), zap.String("topic", topic))
	return resp.TicketID, nil
}

func (c *httpClient) Get(ctx context.Context, ticketID int64) (*Ticket, error) {
	var ticket Ticket
	path := fmt.Sprintf("/api/v1/tickets/%d", ticketID)
	if err := c.do(ctx, http.MethodGet, path, nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

type changeStateRequest struct {
	State string `json:"state_name"`
}

func (c *httpClient) ChangeState(ctx context.Context, ticketID int64, state string) error {
	path := fmt.Sprintf("/api/v1/tickets/%d/state", ticketID)
	if err := c.do(ctx, http.MethodPut, path, changeStateRequest{State: state}, nil); err != nil {
		return err
	}
	c.logger.Info("helpdesk ticket state changed",
		zap.Int64("ticket_id", ticketID), zap.String("state", state))
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
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("helpdesk request %s %s failed with status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
