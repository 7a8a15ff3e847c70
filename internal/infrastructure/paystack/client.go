// Package paystack talks to the Paystack API for the redirect rail: checkout
// session creation and webhook signature verification. Settlement arrives on
// the webhook endpoint, never from this client.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appbilling "github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/pkg/config"
)

const initializePath = "/transaction/initialize"

var _ appbilling.PaystackGateway = (*Client)(nil)

// Client implements billing.PaystackGateway. The account secret key
// authenticates API calls and keys the webhook HMAC.
type Client struct {
	httpClient *http.Client
	cfg        config.PaystackConfig
}

func NewClient(cfg config.PaystackConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
	}
}

type initializeRequest struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"` // minor units
	Currency  string            `json:"currency"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// InitializeTransaction creates a checkout session and returns the
// authorization URL the payer is redirected to.
func (c *Client) InitializeTransaction(ctx context.Context, email string, amountMinor int64, currency, reference string, metadata map[string]string) (string, error) {
	payload, err := json.Marshal(initializeRequest{
		Email:     email,
		Amount:    amountMinor,
		Currency:  currency,
		Reference: reference,
		Metadata:  metadata,
	})
	if err != nil {
		return "", fmt.Errorf("paystack: serialize initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+initializePath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("paystack: build initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("paystack: initialize timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("paystack: initialize call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("paystack: read initialize response: %w", err)
	}

	var ir initializeResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		return "", fmt.Errorf("paystack: parse initialize response (%d): %s", resp.StatusCode, raw)
	}
	if resp.StatusCode != http.StatusOK || !ir.Status {
		return "", fmt.Errorf("paystack: initialize rejected (%d): %s", resp.StatusCode, ir.Message)
	}
	if ir.Data.AuthorizationURL == "" {
		return "", fmt.Errorf("paystack: initialize response carried no authorization url")
	}
	return ir.Data.AuthorizationURL, nil
}

// VerifySignature checks the x-paystack-signature header: hex HMAC-SHA512 of
// the raw webhook body keyed with the secret key. Constant-time compare.
func (c *Client) VerifySignature(rawBody []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.cfg.SecretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
