package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a non-2xx response from the server.
type APIError struct {
	HTTPStatus int
	Code       int      `json:"code"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.HTTPStatus)
	}
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.HTTPStatus, msg)
}

// Client talks to the dynaquery HTTP API.
type Client struct {
	BaseURL    string
	Token      string
	Tenant     string
	HTTPClient *http.Client
}

// NewClient creates a Client. Fields may be updated after flag resolution.
func NewClient(baseURL, token, tenant string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		Tenant:     tenant,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Do sends a JSON request and decodes a JSON response into out. Responses
// for which accept returns true are decoded even when not 2xx.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}, accept func(status int) bool) error {
	u := strings.TrimRight(c.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.Tenant != "" {
		req.Header.Set("X-Tenant-ID", c.Tenant)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && (accept == nil || !accept(resp.StatusCode)) {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		apiErr.HTTPStatus = resp.StatusCode
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if s, isString := out.(*string); isString {
		*s = string(data)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
