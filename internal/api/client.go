package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 15 * time.Second

var errMissingBaseURL = errors.New("api: base URL is required")

// TokenSource supplies the bearer token attached to authenticated requests.
// An empty token sends the request unauthenticated.
type TokenSource interface {
	Token() string
}

// StatusError reports a non-2xx remote response. Callers use the status code
// to separate authentication failures from transient ones.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: remote returned status %d", e.Code)
	}
	return fmt.Sprintf("api: remote returned status %d: %s", e.Code, e.Body)
}

// IsAuthFailure reports whether err is a remote authentication rejection.
func IsAuthFailure(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized
}

// ClientConfig configures the remote API client.
type ClientConfig struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Client is a thin bearer-token HTTP client for the fulfillment API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var result LoginResult
	payload := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", payload, &result); err != nil {
		return LoginResult{}, err
	}
	if strings.TrimSpace(result.Token) == "" {
		return LoginResult{}, fmt.Errorf("api: login response missing token")
	}
	return result, nil
}

// ListOrders fetches the current order list.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var response struct {
		Orders []Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &response); err != nil {
		return nil, err
	}
	return response.Orders, nil
}

// OrderDetail fetches one order with its full item set.
func (c *Client) OrderDetail(ctx context.Context, orderID int64) (OrderDetail, error) {
	var detail OrderDetail
	path := fmt.Sprintf("/orders/%d", orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return OrderDetail{}, err
	}
	return detail, nil
}

// SyncOrders asks the server to pull fresh orders from the commerce platform.
func (c *Client) SyncOrders(ctx context.Context) (SyncStats, error) {
	var response struct {
		Stats SyncStats `json:"stats"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders/sync", nil, &response); err != nil {
		return SyncStats{}, err
	}
	return response.Stats, nil
}

// StartOrder marks the order as picking-started by the current user. The
// remote effect is an idempotent set.
func (c *Client) StartOrder(ctx context.Context, orderID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/start", orderID), nil, nil)
}

// MarkItemPicked sets the picked quantity for an item to exactly quantity.
func (c *Client) MarkItemPicked(ctx context.Context, orderID, itemID int64, quantity int) error {
	path := fmt.Sprintf("/orders/%d/items/%d/picked", orderID, itemID)
	return c.do(ctx, http.MethodPut, path, map[string]int{"pickedQuantity": quantity}, nil)
}

// MarkItemMissing sets the missing quantity for an item to exactly quantity.
func (c *Client) MarkItemMissing(ctx context.Context, orderID, itemID int64, quantity int) error {
	path := fmt.Sprintf("/orders/%d/items/%d/missing", orderID, itemID)
	return c.do(ctx, http.MethodPut, path, map[string]int{"missingQuantity": quantity}, nil)
}

// CompleteOrder marks the order completed; the server computes the duration.
func (c *Client) CompleteOrder(ctx context.Context, orderID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/complete", orderID), nil, nil)
}

// CreateCodeMapping upserts a scanned-code-to-SKU mapping.
func (c *Client) CreateCodeMapping(ctx context.Context, qrCode, sku string) error {
	payload := map[string]string{"qrCode": qrCode, "sku": sku}
	return c.do(ctx, http.MethodPost, "/admin/qr-mappings", payload, nil)
}

// do issues one bounded-timeout request and decodes the response into out
// when provided. Non-2xx responses become *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(requestCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		c.logger.Debug("remote request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode))
		return &StatusError{Code: response.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
