package hirelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BaseURLEnv names the environment variable holding the API origin.
const BaseURLEnv = "HIRELINE_API_BASE_URL"

// ResolveBaseURL reads the API origin from the environment. Empty means same-origin.
func ResolveBaseURL() string {
	return strings.TrimSpace(os.Getenv(BaseURLEnv))
}

// Client is a thin Hireline HTTP API transport. It never interprets status
// codes: a non-2xx response is returned as-is and only transport failures
// produce an error.
type Client struct {
	BaseURL    string
	Headers    http.Header
	HTTPClient *http.Client
	Timeout    time.Duration
	Observer   func(CallInfo)

	mu          sync.RWMutex
	bearerToken string
}

// CallInfo describes one finished round trip.
type CallInfo struct {
	Method     string
	Path       string
	RequestID  string
	StatusCode int
	Err        error
	Duration   time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// SetBearerToken sets the token sent as Authorization on every call. Empty clears it.
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	c.bearerToken = token
	c.mu.Unlock()
}

func (c *Client) BearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearerToken
}

func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.url(path)
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if token := c.BearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range c.Headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	start := time.Now()
	resp, err := httpClient.Do(req)
	info := CallInfo{Method: method, Path: path, RequestID: requestID, Duration: time.Since(start)}
	if err != nil {
		info.Err = err
		c.observe(info)
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	info.StatusCode = resp.StatusCode
	c.observe(info)
	return resp, nil
}

func (c *Client) observe(info CallInfo) {
	if c.Observer != nil {
		c.Observer(info)
	}
}

func (c *Client) url(path string) string {
	return c.base() + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
