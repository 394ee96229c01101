// Package backend is the HTTP client of the disaster-relief REST API. The API is an
// external collaborator; this package only shapes requests and normalizes failures.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

const defaultMessage = "Something went wrong"

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

// Client performs JSON requests against the backend.
type Client struct {
	baseURL   string
	http      *http.Client
	endpoints Endpoints
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithEndpoints overrides the endpoint paths.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e
	}
}

// New creates a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		endpoints: DefaultEndpoints(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Endpoints returns the endpoint paths in use.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// Do sends a request with an optional JSON body and decodes the JSON response into out.
// A non-empty token is attached as a bearer credential. out may be nil.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.clientFor(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, endpoint, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &Error{Status: res.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}

	return nil
}

// clientFor wraps the base client with a bearer transport when a token is present.
func (c *Client) clientFor(ctx context.Context, token string) *http.Client {
	if token == "" {
		return c.http
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	hc.Timeout = c.http.Timeout
	return hc
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		return defaultMessage
	}
	return body.Message
}
