// Package apiclient talks to the marketplace REST API. It provides the
// customer listing and status update operations the status dialog depends on.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"squares/customer"
	"squares/listing"
)

const defaultTimeout = 15 * time.Second

// ErrUnauthorized signals a missing or rejected bearer token.
var ErrUnauthorized = errors.New("apiclient: unauthorized")

// APIError is a non-success response. Its message is the server's, verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client is a REST API consumer.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *zap.Logger
	newKey  func() string
}

// New creates a client for baseURL authenticating with token.
func New(baseURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("apiclient: base url %q must be absolute", baseURL)
	}
	return &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
		newKey:  uuid.NewString,
	}, nil
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

// WithTimeout sets the per-request timeout of the underlying HTTP client.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		clone := *c.http
		clone.Timeout = d
		c.http = &clone
	}
	return c
}

func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// ListCustomers fetches customer accounts. It satisfies customer.Source.
func (c *Client) ListCustomers(ctx context.Context, f customer.Filter) ([]customer.Customer, error) {
	q := url.Values{}
	q.Set("role", "customer")
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var data Users
	if err := c.do(ctx, http.MethodGet, "/api/users", q, nil, nil, &data); err != nil {
		return nil, err
	}
	if data.Users == nil {
		return []customer.Customer{}, nil
	}
	return data.Users, nil
}

// UpdateStatus submits one status change under a fresh idempotency key. It
// satisfies workflow.StatusUpdater.
func (c *Client) UpdateStatus(ctx context.Context, req listing.TransitionRequest) error {
	body := StatusUpdate{
		Status:     string(req.NewStatus),
		CustomerID: req.CustomerID,
		Reason:     req.Reason,
	}
	headers := http.Header{}
	headers.Set("Idempotency-Key", c.newKey())
	return c.do(ctx, http.MethodPatch, "/api/properties/"+url.PathEscape(req.PropertyID)+"/status", nil, headers, body, nil)
}

// GetProperty fetches one listing.
func (c *Client) GetProperty(ctx context.Context, id string) (listing.Property, error) {
	var p Property
	if err := c.do(ctx, http.MethodGet, "/api/properties/"+url.PathEscape(id), nil, nil, nil, &p); err != nil {
		return listing.Property{}, err
	}
	return p.Listing(), nil
}

// GetAction fetches the server's view of the property's next action.
func (c *Client) GetAction(ctx context.Context, id string) (Action, error) {
	var a Action
	err := c.do(ctx, http.MethodGet, "/api/properties/"+url.PathEscape(id)+"/status-action", nil, nil, nil, &a)
	return a, err
}

// History fetches the status history of a listing.
func (c *Client) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	var out struct {
		Items []HistoryEntry `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/properties/"+url.PathEscape(id)+"/history", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers http.Header, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	var env Envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("apiclient: decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}
