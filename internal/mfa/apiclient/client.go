// Package apiclient talks to the remote verification service. Every call
// is normalized to a decoded JSON object or an error with a stable,
// human-readable message. No retries happen here, a failed call is a
// business failure the caller handles.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	handshakePath = "/wp/handshake"
	verifyPath    = "/wp/verify"

	// genericFailure is returned when the remote service gives no usable
	// error message. It is safe to show to a caller.
	genericFailure = "Request failed"

	defaultTimeout = 10 * time.Second
)

// ErrInvalidResponse marks a 200 response whose body is not a JSON
// object. It is never coerced into a success.
var ErrInvalidResponse = errors.New("apiclient: invalid response body")

type Options struct {
	BaseURL string
	APIKey  string

	// HTTPClient may be swapped in tests. The default carries a bounded
	// timeout so a hung remote cannot stall unrelated sessions.
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

func New(opts Options, log *slog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    httpClient,
		log:     log,
	}
}

// HandshakePayload is the wire body for the handshake call. Optional
// fields are omitted rather than sent empty.
type HandshakePayload struct {
	UserIP               string `json:"user_ip"`
	LoginURL             string `json:"login_url"`
	SendEmailURL         string `json:"send_email_url,omitempty"`
	SendEmailURLFallback string `json:"send_email_url_fallback,omitempty"`
	SendEmailSecret      string `json:"send_email_secret,omitempty"`
	UserGroup            string `json:"user_group,omitempty"`
	IsPreAuthenticated   bool   `json:"is_pre_authenticated,omitempty"`
}

// Handshake asks the remote service to open a new verification session.
func (c *Client) Handshake(ctx context.Context, payload HandshakePayload) (map[string]any, error) {
	return c.post(ctx, handshakePath, payload)
}

// Verify asks the remote service whether the token/secret pair has been
// verified out-of-band.
func (c *Client) Verify(ctx context.Context, token, secret string) (map[string]any, error) {
	body := struct {
		Token  string `json:"token"`
		Secret string `json:"secret"`
	}{Token: token, Secret: secret}

	return c.post(ctx, verifyPath, body)
}

func (c *Client) post(ctx context.Context, path string, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("remote api transport failure", "path", path, "error", err)
		return nil, fmt.Errorf("%s: %w", genericFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(c.errorMessage(resp, path))
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || data == nil {
		c.log.Debug("remote api returned non-object body", "path", path, "status", resp.StatusCode)
		return nil, ErrInvalidResponse
	}

	sanitizeObject(data)
	return data, nil
}

// errorMessage digs a human-readable message out of a non-200 response.
// Detail beyond the message goes to logs only.
func (c *Client) errorMessage(resp *http.Response, path string) string {
	c.log.Debug("remote api error status", "path", path, "status", resp.StatusCode)

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return unescape(body.Message)
	}
	return genericFailure
}

// sanitizeObject strips escape sequences from every string in the
// decoded body, including nested objects and arrays. The remote service
// can echo attacker-influenced strings back at us.
func sanitizeObject(data map[string]any) {
	for k, v := range data {
		data[k] = sanitizeValue(v)
	}
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return unescape(t)
	case map[string]any:
		sanitizeObject(t)
		return t
	case []any:
		for i := range t {
			t[i] = sanitizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

// unescape removes backslash escaping until the string is stable, so
// doubly-escaped input cannot smuggle an escape through one pass.
func unescape(s string) string {
	for strings.Contains(s, `\`) {
		next := stripSlashes(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func stripSlashes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
