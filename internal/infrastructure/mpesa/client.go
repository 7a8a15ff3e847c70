// Package mpesa talks to the Daraja API for the mobile-money rail: OAuth
// token issuance and STK push initiation. Settlement arrives asynchronously
// on the callback endpoint, never from this client.
package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	appbilling "github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/pkg/config"
)

const (
	authPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	// Daraja access tokens last 3600 s; refresh a little early.
	tokenSlack = 60 * time.Second
)

var _ appbilling.MpesaGateway = (*Client)(nil)

// Client implements billing.MpesaGateway against the Daraja HTTP API.
// The OAuth token is cached and refreshed under a mutex.
type Client struct {
	httpClient *http.Client
	cfg        config.MpesaConfig

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds the Daraja client with a network timeout; the sandbox can
// take several seconds to answer an STK push.
func NewClient(cfg config.MpesaConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
	}
}

// ── OAuth ─────────────────────────────────────────────────────────────────────

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// token returns a valid cached access token or fetches a new one.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+authPath, nil)
	if err != nil {
		return "", fmt.Errorf("mpesa: build auth request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa: auth call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("mpesa: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa: auth rejected (%d): %s", resp.StatusCode, raw)
	}

	var ar authResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return "", fmt.Errorf("mpesa: parse auth response: %w", err)
	}
	if ar.AccessToken == "" {
		return "", fmt.Errorf("mpesa: auth response carried no token")
	}

	c.accessToken = ar.AccessToken
	c.tokenExpiry = time.Now().Add(time.Hour - tokenSlack)
	return c.accessToken, nil
}

// ── STK push ──────────────────────────────────────────────────────────────────

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
	ErrorMessage      string `json:"errorMessage"`
}

// InitiateSTKPush asks Daraja to prompt the payer's phone and returns the
// CheckoutRequestID to store on the invoice as its pending payment reference.
// Amount is integer minor units; Daraja bills whole shillings.
func (c *Client) InitiateSTKPush(ctx context.Context, phone string, amountMinor int64, account, description string) (string, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	ts := time.Now().Format("20060102150405")
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          passwordFor(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            (amountMinor + 99) / 100, // round up to whole units
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  account,
		TransactionDesc:   description,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("mpesa: serialize push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+stkPushPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("mpesa: build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("mpesa: push timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("mpesa: push call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("mpesa: read push response: %w", err)
	}

	var pr stkPushResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return "", fmt.Errorf("mpesa: parse push response (%d): %s", resp.StatusCode, raw)
	}
	if resp.StatusCode != http.StatusOK || pr.ResponseCode != "0" {
		msg := pr.ErrorMessage
		if msg == "" {
			msg = pr.ResponseDesc
		}
		return "", fmt.Errorf("mpesa: push rejected (%d): %s", resp.StatusCode, msg)
	}
	if pr.CheckoutRequestID == "" {
		return "", fmt.Errorf("mpesa: push response carried no checkout id")
	}
	return pr.CheckoutRequestID, nil
}
