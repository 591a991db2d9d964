package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Responses larger than this are treated as malformed.
const maxResponseBytes = 8 << 20

// Client calls the backend's /ask endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/ask",
		http: &http.Client{
			Transport: &TraceTransport{Base: http.DefaultTransport, Name: "Backend"},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask sends req with token as a bearer credential (omitted when empty) and
// waits for the reply. Cancellation and deadlines come from ctx.
func (c *Client) Ask(ctx context.Context, token string, req Request) (*Response, error) {
	if req.Conversation == nil {
		req.Conversation = []Turn{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	slog.Debug("Sending ask request", "turns", len(req.Conversation), "authenticated", token != "")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, snippet(data))
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResponse, maxResponseBytes)
	}

	var wire struct {
		Response    *string         `json:"response"`
		Attachments json.RawMessage `json:"attachments"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wire.Response == nil {
		return nil, fmt.Errorf("%w: missing response field", ErrMalformedResponse)
	}

	out := &Response{Response: *wire.Response}
	if len(wire.Attachments) > 0 && string(wire.Attachments) != "null" {
		if err := json.Unmarshal(wire.Attachments, &out.Attachments); err != nil {
			return nil, fmt.Errorf("%w: attachments: %v", ErrMalformedResponse, err)
		}
	}
	slog.Debug("Received ask response", "length", len(out.Response), "attachments", len(out.Attachments))
	return out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
