// Package orb is a client for the Withorb billing API.
package orb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	obstracing "github.com/smallbiznis/crmsync/internal/observability/tracing"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.withorb.com/v1"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

// Throttle spaces out outbound calls to respect provider rate limits.
type Throttle interface {
	Wait(ctx context.Context) error
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	throttle   Throttle
	log        *zap.Logger
}

// NewClient builds a Withorb client. A nil throttle disables spacing.
func NewClient(cfg Config, throttle Throttle, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: obstracing.WrapHTTPClient(&http.Client{Timeout: timeout}),
		throttle:   throttle,
		log:        log.Named("orb"),
	}, nil
}

// ListCustomers fetches one page of customers.
func (c *Client) ListCustomers(ctx context.Context, cursor string, limit int) (CustomerList, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var out CustomerList
	if err := c.get(ctx, query, &out, "customers"); err != nil {
		return CustomerList{}, err
	}
	return out, nil
}

func (c *Client) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	var out Customer
	if err := c.get(ctx, nil, &out, "customers", customerID); err != nil {
		return Customer{}, err
	}
	return out, nil
}

func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	query := url.Values{}
	query.Set("customer_id", customerID)

	var out subscriptionList
	if err := c.get(ctx, query, &out, "subscriptions"); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetCustomerUsage fetches daily usage buckets for [start, end].
func (c *Client) GetCustomerUsage(ctx context.Context, customerID string, start, end time.Time) (CustomerUsage, error) {
	query := url.Values{}
	query.Set("timeframe_start", start.UTC().Format(time.RFC3339))
	query.Set("timeframe_end", end.UTC().Format(time.RFC3339))
	query.Set("granularity", "day")

	var out CustomerUsage
	if err := c.get(ctx, query, &out, "customers", customerID, "usage"); err != nil {
		return CustomerUsage{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, query url.Values, out any, segments ...string) error {
	if c.throttle != nil {
		if err := c.throttle.Wait(ctx); err != nil {
			return err
		}
	}

	endpoint, err := c.buildURL(query, segments...)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug("orb.request",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, req.URL.Path, err)
	}
	return nil
}

func (c *Client) buildURL(query url.Values, segments ...string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path.Join(append([]string{u.Path}, segments...)...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrUnauthorized, status, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", ErrNotFound, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, msg)
	}
}
