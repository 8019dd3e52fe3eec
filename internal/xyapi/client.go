// Package xyapi is a small client for the host's REST API: buckets, tags
// and email. Every call is attempted exactly once.
package xyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mattjoyce/xyrun/internal/config"
)

const (
	userAgent    = "xyrun/0.1"
	apiKeyHeader = "X-API-KEY"

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// Client talks to one host instance with one API key.
type Client struct {
	baseURL string
	apiKey  string
	paths   config.APIPaths
	http    *http.Client
	logger  *slog.Logger
}

// New builds a client for baseURL. The API config supplies endpoint paths and
// the optional request timeout.
func New(baseURL, apiKey string, cfg config.APIConfig, logger *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("job has no base_url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base_url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base_url %q: scheme must be http or https", baseURL)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("empty API key")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		paths:   cfg.Paths,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.do(op, req, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode body: %w", op, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

// do sends req and decodes the standard {code, description, ...} response
// into out. A non-2xx status or a non-zero code is an *APIError.
func (c *Client) do(op string, req *http.Request, out any) error {
	c.logger.Debug("xyops api request", "op", op, "method", req.Method, "url", req.URL.Redacted())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(op, resp.StatusCode, body)
	}

	var status struct {
		Code        any    `json:"code"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if !codeOK(status.Code) {
		return &APIError{Op: op, Status: resp.StatusCode, Code: fmt.Sprint(status.Code), Description: status.Description}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

func codeOK(code any) bool {
	switch t := code.(type) {
	case nil:
		return true
	case float64:
		return t == 0
	case string:
		return t == "" || t == "0"
	default:
		return false
	}
}
