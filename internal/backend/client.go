package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// credentialHeader carries the user-supplied API key. When the client has no
// credential the header is omitted and the backend falls back to its own
// default key.
const credentialHeader = "X-API-Key"

// Client communicates with the campus RAG backend over HTTP.
// It classifies every failure into a *Failure and performs no side effects
// beyond the network call itself.
type Client struct {
	baseURL    string
	timeout    time.Duration
	credential func() string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 60s per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCredential installs a credential source, consulted on every request so
// a key saved mid-session takes effect without rebuilding the client.
func WithCredential(source func() string) Option {
	return func(c *Client) {
		c.credential = source
	}
}

// New creates a Client targeting the given backend base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		httpClient: &http.Client{
			// Deadlines are applied per call via context so a timeout can be
			// classified separately from transport errors.
			Timeout: 0,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errorBody is the JSON error envelope the backend returns on non-2xx.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// do issues one request and classifies the outcome. A nil body sends no
// request payload. The returned bytes are the raw response body on 2xx.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &Failure{Kind: KindNetwork, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.credential != nil {
		if key := c.credential(); key != "" {
			req.Header.Set(credentialHeader, key)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, &Failure{Kind: KindTimeout, Message: fmt.Sprintf("no response within %s", c.timeout)}
		}
		return nil, &Failure{Kind: KindNetwork, Message: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, &Failure{Kind: KindTimeout, Message: fmt.Sprintf("response cut off after %s", c.timeout)}
		}
		return nil, &Failure{Kind: KindNetwork, Message: err.Error()}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Failure{Kind: KindUnauthorized, Code: resp.StatusCode, Message: messageFrom(data, resp)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Failure{Kind: KindRateLimited, Code: resp.StatusCode, Message: messageFrom(data, resp)}
	default:
		return nil, &Failure{Kind: KindServer, Code: resp.StatusCode, Message: messageFrom(data, resp)}
	}
}

// messageFrom prefers the backend's error message over the bare status line.
func messageFrom(data []byte, resp *http.Response) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	return resp.Status
}

// unwrapURLError strips the outer *url.Error wrapper so failure messages
// read "dial tcp ...: connection refused" rather than repeating the URL.
func unwrapURLError(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}

// QueryResponse is the success body of POST /api/query.
type QueryResponse struct {
	Status            string  `json:"status"`
	Response          string  `json:"response"`
	Cached            bool    `json:"cached"`
	ResponseTime      float64 `json:"response_time"`
	Model             string  `json:"model,omitempty"`
	RemainingRequests *int    `json:"remaining_requests,omitempty"`
}

type queryRequest struct {
	Query string `json:"query"`
}

// Query submits a user question to the RAG backend.
func (c *Client) Query(ctx context.Context, text string) (QueryResponse, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/query", queryRequest{Query: text})
	if err != nil {
		return QueryResponse{}, err
	}
	var qr QueryResponse
	if err := json.Unmarshal(data, &qr); err != nil {
		return QueryResponse{}, &Failure{Kind: KindServer, Message: fmt.Sprintf("malformed query response: %v", err)}
	}
	return qr, nil
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status         string `json:"status"`
	RAGInitialized bool   `json:"rag_initialized"`
	Timestamp      string `json:"timestamp"`
}

// Health probes backend readiness.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return HealthResponse{}, err
	}
	var hr HealthResponse
	if err := json.Unmarshal(data, &hr); err != nil {
		return HealthResponse{}, &Failure{Kind: KindServer, Message: fmt.Sprintf("malformed health response: %v", err)}
	}
	return hr, nil
}

// StatsResponse is the body of GET /api/stats. Stats is kept as a raw map:
// the set of fields is owned by the backend and only displayed here.
type StatsResponse struct {
	Status string         `json:"status"`
	Stats  map[string]any `json:"stats"`
}

// Stats fetches backend usage statistics.
func (c *Client) Stats(ctx context.Context) (StatsResponse, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/stats", nil)
	if err != nil {
		return StatsResponse{}, err
	}
	var sr StatsResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return StatsResponse{}, &Failure{Kind: KindServer, Message: fmt.Sprintf("malformed stats response: %v", err)}
	}
	return sr, nil
}

type suggestionsResponse struct {
	Status      string   `json:"status"`
	Suggestions []string `json:"suggestions"`
}

// Suggestions returns suggested questions. count <= 0 requests the backend default.
func (c *Client) Suggestions(ctx context.Context, count int) ([]string, error) {
	path := "/api/suggestions"
	if count > 0 {
		path = fmt.Sprintf("%s?count=%d", path, count)
	}
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var sr suggestionsResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, &Failure{Kind: KindServer, Message: fmt.Sprintf("malformed suggestions response: %v", err)}
	}
	return sr.Suggestions, nil
}

// ClearCache asks the backend to drop its query cache.
func (c *Client) ClearCache(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/clear-cache", struct{}{})
	return err
}
