// Package backend is the HTTP client for the hosted database/auth service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sale_sync/internal/queue"

	"go.uber.org/zap"
	"resty.dev/v3"
)

// ErrSaleRejected is returned when the atomic sale operation reports a
// structured failure (success = false).
var ErrSaleRejected = errors.New("sale rejected by backend")

const defaultSessionTimeout = 3 * time.Second

// Config holds connection settings for the hosted backend.
type Config struct {
	// BaseURL of the backend, e.g. https://project.example.co
	BaseURL string
	// APIKey sent as the apikey header and bearer token.
	APIKey string
	// SessionTimeout bounds the session lookup so the caller can fall back
	// to an anonymous state instead of hanging.
	SessionTimeout time.Duration
}

// Client talks to the backend's sale RPC and auth endpoints. It implements
// syncer.SaleSender and syncer.IdentitySource.
type Client struct {
	http           *resty.Client
	logger         *zap.Logger
	sessionTimeout time.Duration
}

// NewClient creates a backend client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("apikey", cfg.APIKey).
		SetAuthToken(cfg.APIKey)
	return &Client{
		http:           httpClient,
		logger:         logger,
		sessionTimeout: timeout,
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// processSaleRequest matches the parameter names of the process_sale stored
// procedure.
type processSaleRequest struct {
	ProductID   string  `json:"p_product_id"`
	Quantity    int     `json:"p_quantity"`
	ProductName string  `json:"p_product_name"`
	SalePrice   float64 `json:"p_sale_price"`
	CostPrice   float64 `json:"p_cost_price"`
}

type processSaleResult struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// Send invokes the atomic sale operation. A transport error, a non-2xx
// response, or a structured {success:false} result all count as delivery
// failure; an empty or null result body counts as success.
func (c *Client) Send(ctx context.Context, payload queue.SalePayload) error {
	req := processSaleRequest{
		ProductID:   payload.ProductID,
		Quantity:    payload.Quantity,
		ProductName: payload.ProductName,
		SalePrice:   payload.SalePrice,
		CostPrice:   payload.CostPrice,
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/rest/v1/rpc/process_sale")
	if err != nil {
		return fmt.Errorf("process_sale call failed: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("process_sale returned %s: %s", res.Status(), res.String())
	}

	body := bytes.TrimSpace(res.Bytes())
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	var result processSaleResult
	if err := json.Unmarshal(body, &result); err != nil {
		// An unexpected body shape on a 2xx is still a confirmed call.
		c.logger.Warn("unexpected process_sale response body", zap.ByteString("body", body))
		return nil
	}
	if result.Success != nil && !*result.Success {
		reason := result.Error
		if reason == "" {
			reason = "unknown error"
		}
		return fmt.Errorf("%w: %s", ErrSaleRejected, reason)
	}
	return nil
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CurrentUser fetches the authenticated session, bounded by the session
// timeout. Any failure, including a timeout, degrades to "no identity"
// rather than blocking the caller; the next poll may still succeed.
func (c *Client) CurrentUser(ctx context.Context) (string, bool) {
	tctx, cancel := context.WithTimeout(ctx, c.sessionTimeout)
	defer cancel()

	var user sessionUser
	res, err := c.http.R().
		SetContext(tctx).
		SetResult(&user).
		Get("/auth/v1/user")
	if err != nil {
		c.logger.Debug("session lookup failed, assuming no identity", zap.Error(err))
		return "", false
	}
	if res.IsError() || user.ID == "" {
		return "", false
	}
	return user.ID, true
}
