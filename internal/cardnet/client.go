// Package cardnet talks to the card payment gateway. Declines come back as a
// non-approved ChargeResult, not an error; errors mean the exchange itself
// could not complete.
package cardnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/config"
)

// ErrCardNotDeletable signals the vault refused to drop the token.
var ErrCardNotDeletable = errors.New("cardnet: card token not deletable")

// approvedResponseCode is the gateway's single success code.
const approvedResponseCode = "00"

// ChargeInput is one outbound charge. Amount and Tax are integer cents.
type ChargeInput struct {
	OrderNumber    int64
	Amount         int64
	Tax            int64
	MerchantName   string
	MerchantNumber string

	// Either a raw card or a vault token, never both.
	CardNumber     string
	ExpirationDate string
	CVC            string
	Token          string

	SaveToVault bool
}

// ChargeResult is the gateway's answer to a charge.
type ChargeResult struct {
	Approved          bool
	ResponseCode      string
	ResponseMessage   string
	AuthorizationCode string
	OrderID           string
	CardLastFour      string
	CardBrand         string

	// Vault fields, populated only when SaveToVault was requested and approved.
	DataVaultToken      string
	DataVaultBrand      string
	DataVaultExpiration string
}

// Client is the consumed gateway contract.
type Client interface {
	Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error)
	DeleteCard(ctx context.Context, token, merchantNumber string) error
}

type httpClient struct {
	baseURL string
	authKey string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient builds an HTTP-backed gateway client.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		authKey: cfg.AuthKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type chargeRequest struct {
	OrderNumber    int64  `json:"order_number"`
	Amount         int64  `json:"amount"`
	Tax            int64  `json:"itbis"`
	MerchantName   string `json:"merchant_name"`
	MerchantNumber string `json:"merchant_number"`
	CardNumber     string `json:"card_number,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	CVC            string `json:"cvc,omitempty"`
	Token          string `json:"data_vault_token,omitempty"`
	CreateToken    bool   `json:"data_vault_create,omitempty"`
}

type chargeResponse struct {
	ResponseCode        string `json:"response_code"`
	ResponseMessage     string `json:"response_message"`
	AuthorizationCode   string `json:"authorization_code"`
	OrderID             string `json:"order_id"`
	CardLastFour        string `json:"card_last_four"`
	CardBrand           string `json:"card_brand"`
	DataVaultToken      string `json:"data_vault_token"`
	DataVaultBrand      string `json:"data_vault_brand"`
	DataVaultExpiration string `json:"data_vault_expiration"`
}

func (c *httpClient) Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error) {
	payload := chargeRequest{
		OrderNumber:    input.OrderNumber,
		Amount:         input.Amount,
		Tax:            input.Tax,
		MerchantName:   input.MerchantName,
		MerchantNumber: input.MerchantNumber,
		CardNumber:     input.CardNumber,
		ExpirationDate: input.ExpirationDate,
		CVC:            input.CVC,
		Token:          input.Token,
		CreateToken:    input.SaveToVault,
	}

	var resp chargeResponse
	if err := c.do(ctx, http.MethodPost, "/transactions/sales", payload, &resp); err != nil {
		return nil, err
	}

	result := &ChargeResult{
		Approved:            resp.ResponseCode == approvedResponseCode,
		ResponseCode:        resp.ResponseCode,
		ResponseMessage:     resp.ResponseMessage,
		AuthorizationCode:   resp.AuthorizationCode,
		OrderID:             resp.OrderID,
		CardLastFour:        resp.CardLastFour,
		CardBrand:           resp.CardBrand,
		DataVaultToken:      resp.DataVaultToken,
		DataVaultBrand:      resp.DataVaultBrand,
		DataVaultExpiration: resp.DataVaultExpiration,
	}
	c.logger.Info("gateway charge processed",
		zap.Int64("order_number", input.OrderNumber),
		zap.String("response_code", result.ResponseCode),
		zap.Bool("approved", result.Approved))
	return result, nil
}

type deleteCardRequest struct {
	Token          string `json:"data_vault_token"`
	MerchantNumber string `json:"merchant_number"`
}

type deleteCardResponse struct {
	Deleted bool `json:"deleted"`
}

func (c *httpClient) DeleteCard(ctx context.Context, token, merchantNumber string) error {
	payload := deleteCardRequest{Token: token, MerchantNumber: merchantNumber}
	var resp deleteCardResponse
	if err := c.do(ctx, http.MethodPost, "/data-vault/delete", payload, &resp); err != nil {
		return err
	}
	if !resp.Deleted {
		return ErrCardNotDeletable
	}
	c.logger.Info("gateway card token deleted", zap.String("merchant_number", merchantNumber))
	return nil
}

func (c *httpClient) do(ctx context.Context, method, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.authKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gateway request %s %s failed with status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
