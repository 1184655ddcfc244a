// Package gateway talks to the mobile-money deposit API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sepiso23/creator-monetization/internal/models"
)

type AccountDetails struct {
	PhoneNumber string `json:"phoneNumber"`
	Provider    string `json:"provider"`
}

type Payer struct {
	Type           string         `json:"type"`
	AccountDetails AccountDetails `json:"accountDetails"`
}

type DepositRequest struct {
	DepositID         string `json:"depositId"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Payer             Payer  `json:"payer"`
	ClientReferenceID string `json:"clientReferenceId,omitempty"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
}

// Result is what a gateway call produced. Body holds a decoded JSON object,
// Raw the response text when it was not one. Err is set on transport failure,
// in which case StatusCode is 500.
type Result struct {
	StatusCode int
	Body       map[string]any
	Raw        string
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Status is the deposit status reported in the body, looked up under "data"
// first for lookups and at the top level otherwise.
func (r Result) Status() models.PaymentStatus {
	if data, ok := r.Body["data"].(map[string]any); ok {
		if s, ok := data["status"].(string); ok {
			return models.ParsePaymentStatus(s)
		}
	}
	if s, ok := r.Body["status"].(string); ok {
		return models.ParsePaymentStatus(s)
	}
	return ""
}

// Payload is the body suitable for storing as payment metadata.
func (r Result) Payload() map[string]any {
	if data, ok := r.Body["data"].(map[string]any); ok {
		return data
	}
	if r.Body != nil {
		return r.Body
	}
	if r.Raw != "" {
		return map[string]any{"raw": r.Raw}
	}
	return nil
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

func (c *Client) CreateDeposit(ctx context.Context, req DepositRequest) Result {
	return c.do(ctx, http.MethodPost, "/deposits", req)
}

func (c *Client) GetDeposit(ctx context.Context, depositID string) Result {
	return c.do(ctx, http.MethodGet, "/deposits/"+depositID, nil)
}

func (c *Client) ResendCallback(ctx context.Context, depositID string) Result {
	return c.do(ctx, http.MethodPost, "/deposits/resend-callback/"+depositID, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) Result {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return c.failure(method, path, fmt.Errorf("encode payload: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return c.failure(method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.failure(method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.failure(method, path, fmt.Errorf("read body: %w", err))
	}

	result := Result{StatusCode: resp.StatusCode}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		result.Body = decoded
	} else {
		result.Raw = string(raw)
	}
	if !result.OK() {
		c.logger.Warn("Gateway returned non-success status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
	}
	return result
}

func (c *Client) failure(method, path string, err error) Result {
	c.logger.Error("Gateway request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Any("err", err),
	)
	return Result{StatusCode: http.StatusInternalServerError, Err: err}
}
