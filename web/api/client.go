// Package api provides a client for communicating with the pipeline orchestrator API.
package api

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
)

// DefaultKeyHeader is the header that carries the orchestrator API key.
const DefaultKeyHeader = "X-API-Key"

// Client is an API client for the orchestrator.
//
// Requests are never retried and the underlying http.Client has no timeout;
// callers bound each call with their context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	keyHeader  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the http.Client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithKeyHeader sets the header name used for the API key.
func WithKeyHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.keyHeader = name
		}
	}
}

// NewClient creates a new API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		keyHeader:  DefaultKeyHeader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAPIKey returns a new client with the specified API key.
func (c *Client) WithAPIKey(key string) *Client {
	return &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		apiKey:     key,
		keyHeader:  c.keyHeader,
	}
}

// CloseIdleConnections drops pooled connections to the orchestrator.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// BaseURL returns the orchestrator base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error renders "<code> <status text>" followed by the body when there is one.
func (e *StatusError) Error() string {
	msg := strconv.Itoa(e.StatusCode)
	if e.Status != "" {
		msg += " " + e.Status
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Payload is a decoded response body: JSON when the server said so, text otherwise.
type Payload struct {
	ContentType string
	// Raw holds the JSON document when IsJSON is true.
	Raw json.RawMessage
	// Value is Raw decoded into generic Go values (numbers as json.Number).
	Value any
	// Text holds the body when the response was not JSON.
	Text string
}

// IsJSON reports whether the payload was a JSON response.
func (p *Payload) IsJSON() bool {
	return p != nil && p.Raw != nil
}

// Decode unmarshals a JSON payload into v.
func (p *Payload) Decode(v any) error {
	if !p.IsJSON() {
		return fmt.Errorf("expected JSON response, got %q", p.ContentType)
	}
	if err := json.Unmarshal(p.Raw, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Pretty renders the payload for display: indented JSON, or the raw text.
func (p *Payload) Pretty() string {
	if p == nil {
		return ""
	}
	if !p.IsJSON() {
		return p.Text
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, p.Raw, "", "  "); err != nil {
		return string(p.Raw)
	}
	return buf.String()
}

// Get performs a GET request and returns the JSON-or-text payload.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Payload, error) {
	return c.send(ctx, http.MethodGet, path, query, nil)
}

// PostJSON performs a POST with body encoded as JSON.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Payload, error) {
	return c.postJSON(ctx, path, nil, body)
}

// PostEmpty performs a POST with query parameters and an empty body.
func (c *Client) PostEmpty(ctx context.Context, path string, query url.Values) (*Payload, error) {
	return c.send(ctx, http.MethodPost, path, query, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, query url.Values, body any) (*Payload, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return c.send(ctx, http.MethodPost, path, query, data)
}

// send performs the request and parses the response by content type.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (*Payload, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return parsePayload(resp.Header.Get("Content-Type"), data)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}
}

// checkStatus turns a non-2xx response into a StatusError, consuming the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     text,
		Body:       strings.TrimSpace(string(body)),
	}
}

func parsePayload(contentType string, data []byte) (*Payload, error) {
	p := &Payload{ContentType: contentType}
	if !strings.Contains(strings.ToLower(contentType), "application/json") || len(bytes.TrimSpace(data)) == 0 {
		p.Text = string(data)
		return p, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p.Value); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	p.Raw = json.RawMessage(data)
	return p, nil
}

// ResolveURL resolves ref against the API base, returning an absolute URL.
func (c *Client) ResolveURL(ref string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	target, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", ref, err)
	}
	return base.ResolveReference(target).String(), nil
}
