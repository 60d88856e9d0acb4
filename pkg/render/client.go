// Package render is a client for a browserless-style page rendering
// service: it submits a URL and gets back the fully rendered HTML after
// client-side JavaScript has run.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the rendering operations the scan agent needs.
type Client interface {
	// CreateSession opens a browser session on the service.
	CreateSession(ctx context.Context) (*Session, error)
	// Render loads url in the given session and returns the page state.
	Render(ctx context.Context, sessionID, url string) (*Page, error)
	// CloseSession releases the session's browser.
	CloseSession(ctx context.Context, sessionID string) error
}

// Session identifies a live browser session.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Page is the rendered result for one URL.
type Page struct {
	URL        string `json:"url"`
	FinalURL   string `json:"finalUrl"`
	Title      string `json:"title"`
	HTML       string `json:"html"`
	StatusCode int    `json:"statusCode"`
}

// renderRequest is the body for POST /sessions/{id}/render.
type renderRequest struct {
	URL       string `json:"url"`
	WaitUntil string `json:"waitUntil,omitempty"`
}

// APIError is returned when the service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("render: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a rendering-service client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CreateSession(ctx context.Context) (*Session, error) {
	var sess Session
	if err := c.post(ctx, "/sessions", struct{}{}, &sess); err != nil {
		return nil, eris.Wrap(err, "render: create session")
	}
	return &sess, nil
}

func (c *httpClient) Render(ctx context.Context, sessionID, url string) (*Page, error) {
	var page Page
	req := renderRequest{URL: url, WaitUntil: "networkidle"}
	if err := c.post(ctx, fmt.Sprintf("/sessions/%s/render", sessionID), req, &page); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("render: render %s", url))
	}
	return &page, nil
}

func (c *httpClient) CloseSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/sessions/"+sessionID, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	if err := c.do(req, nil); err != nil {
		return eris.Wrap(err, fmt.Sprintf("render: close session %s", sessionID))
	}
	return nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
