// Package client provides the HTTP client for a running playground server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/pipeline"
)

const playgroundPath = "/api/v1/playground"

// Client is the playground API client
type Client struct {
	// BaseURL is the playground server URL
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// Debug enables debug logging
	Debug bool

	// DebugWriter receives debug lines
	DebugWriter io.Writer

	// UserAgent to use for requests
	UserAgent string
}

// ClientOption configures the client
type ClientOption func(*Client)

// NewClient creates a new API client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent:   "playground-cli/1.0",
		DebugWriter: io.Discard,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithDebug enables debug mode, writing request lines to w
func WithDebug(debug bool, w io.Writer) ClientOption {
	return func(c *Client) {
		c.Debug = debug
		if w != nil {
			c.DebugWriter = w
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.HTTPClient.Timeout = timeout
	}
}

// Request makes an API request
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	return c.RequestWithQuery(ctx, method, path, body, nil)
}

// RequestWithQuery makes an API request with query parameters
func (c *Client) RequestWithQuery(ctx context.Context, method, path string, body interface{}, query url.Values) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	if c.Debug {
		_, _ = fmt.Fprintf(c.DebugWriter, "DEBUG: %s %s\n", method, u.String())
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// DoGet performs a GET request and decodes the response into target
func (c *Client) DoGet(ctx context.Context, path string, query url.Values, target interface{}) error {
	resp, err := c.RequestWithQuery(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// DoPost performs a POST request and decodes the response into target
func (c *Client) DoPost(ctx context.Context, path string, body interface{}, target interface{}) error {
	resp, err := c.Request(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// DoPut performs a PUT request with query parameters and decodes the
// response into target
func (c *Client) DoPut(ctx context.Context, path string, query url.Values, body interface{}, target interface{}) error {
	resp, err := c.RequestWithQuery(ctx, http.MethodPut, path, body, query)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// Snapshot returns the server's displayed state
func (c *Client) Snapshot(ctx context.Context) (*pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	if err := c.DoGet(ctx, playgroundPath+"/", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetSource replaces the editor contents and waits for the pipeline to settle
func (c *Client) SetSource(ctx context.Context, source string) (*pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	body := map[string]string{"source": source}
	if err := c.DoPut(ctx, playgroundPath+"/source", waitQuery(), body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// OptionsUpdate changes compile options. Nil fields keep their value.
type OptionsUpdate struct {
	Minify        *string `json:"minify,omitempty"`
	EntryStrategy *string `json:"entry_strategy,omitempty"`
	Transpile     *bool   `json:"transpile,omitempty"`
}

// SetOptions changes compile options and waits for the pipeline to settle
func (c *Client) SetOptions(ctx context.Context, update OptionsUpdate) (*pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	if err := c.DoPut(ctx, playgroundPath+"/options", waitQuery(), update, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetView switches the output panel and waits for the pipeline to settle
func (c *Client) SetView(ctx context.Context, view string) (*pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	body := map[string]string{"view": view}
	if err := c.DoPut(ctx, playgroundPath+"/view", waitQuery(), body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Fragment is the shareable form of the server's state
type Fragment struct {
	Fragment string `json:"fragment"`
	URL      string `json:"url"`
}

// Fragment returns the server's shareable fragment
func (c *Client) Fragment(ctx context.Context) (*Fragment, error) {
	var f Fragment
	if err := c.DoGet(ctx, playgroundPath+"/fragment", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Compile runs a stateless compile of fragment on the server
func (c *Client) Compile(ctx context.Context, fragment string) (*pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	body := map[string]string{"fragment": fragment}
	if err := c.DoPost(ctx, playgroundPath+"/compile", body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Analysis returns the bundle analysis of the server's current modules
func (c *Client) Analysis(ctx context.Context) (*bundler.AnalysisResult, error) {
	var analysis bundler.AnalysisResult
	if err := c.DoGet(ctx, playgroundPath+"/analysis", nil, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func waitQuery() url.Values {
	return url.Values{"wait": []string{"true"}}
}

// decodeBody decodes the response body into target
func decodeBody(resp *http.Response, target interface{}) error {
	if resp.StatusCode >= 400 {
		return parseErrorBody(resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// parseErrorBody parses an error response body
func parseErrorBody(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read error response: %v", err),
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Error_     string `json:"error"`
	Code       string `json:"code"`
	Hint       string `json:"hint"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Error_
	}
	if msg == "" {
		return fmt.Sprintf("API error with status %d", e.StatusCode)
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}
