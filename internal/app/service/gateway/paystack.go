package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/kestrelmarket/billing/pkg/config"

	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC of the webhook body.
const SignatureHeader = "x-paystack-signature"

// Client talks to the payment gateway's REST API. The gateway deals in
// minor currency units (kobo); amounts cross this boundary multiplied or
// divided by 100 and the rest of the system only ever sees major units.
type Client struct {
	baseURL   string
	secretKey string
	callback  string
	http      *http.Client
	log       *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:   cfg.Gateway.BaseURL,
		secretKey: cfg.Gateway.SecretKey,
		callback:  cfg.Gateway.CallbackURL,
		http:      &http.Client{Timeout: cfg.Gateway.Timeout},
		log:       log,
	}
}

type InitializeRequest struct {
	Email     string
	Amount    float64
	Reference string
	Metadata  map[string]any
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize creates a hosted checkout session and returns the URL the
// vendor completes payment at.
func (c *Client) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	payload := map[string]any{
		"email": req.Email,
		// Round, don't truncate: 1.13 in binary float is 112.99999..
		// kobo and a plain int64 cast would undercharge by one.
		"amount":       int64(math.Round(req.Amount * 100)),
		"reference":    req.Reference,
		"callback_url": c.callback,
		"metadata":     req.Metadata,
	}
	var result InitializeResult
	if err := c.post(ctx, "/transaction/initialize", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type VerifyResult struct {
	Status    string         `json:"status"`
	Reference string         `json:"reference"`
	Amount    float64        `json:"-"`
	Currency  string         `json:"currency"`
	PaidAt    string         `json:"paid_at"`
	Channel   string         `json:"channel"`
	Metadata  map[string]any `json:"metadata"`
}

// Verify fetches the authoritative state of a transaction by reference.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var raw struct {
		VerifyResult
		AmountMinor int64 `json:"amount"`
	}
	if err := c.get(ctx, "/transaction/verify/"+reference, &raw); err != nil {
		return nil, err
	}
	result := raw.VerifyResult
	result.Amount = float64(raw.AmountMinor) / 100
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode gateway response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !envelope.Status {
		return fmt.Errorf("%w: %s (http %d)", ErrGateway, envelope.Message, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode gateway payload: %w", err)
		}
	}
	return nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 of the raw webhook body
// against the signature header. Comparison is constant time.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifySignature(c.secretKey, body, signature)
}

func verifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
