// Package ollama is a minimal client for the Ollama chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docchat/internal/domain"
)

const defaultHost = "http://localhost:11434"

type chatRequest struct {
	Model     string               `json:"model"`
	Messages  []domain.ChatMessage `json:"messages"`
	Stream    bool                 `json:"stream"`
	KeepAlive *int                 `json:"keep_alive,omitempty"`
}

type chatResponse struct {
	Model   string             `json:"model"`
	Message domain.ChatMessage `json:"message"`
	Done    bool               `json:"done"`
}

// HTTPStatusError captures non-2xx responses from the Ollama server.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("ollama: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Client struct {
	host       string
	model      string
	httpClient *http.Client
	keepAlive  bool
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithKeepAliveForever asks the server to keep the model loaded indefinitely.
func WithKeepAliveForever(on bool) Option {
	return func(c *Client) {
		c.keepAlive = on
	}
}

// NewClient creates a Client for the given host and model. The default HTTP
// client has no timeout; callers bound requests through the context.
func NewClient(host, model string, opts ...Option) (*Client, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = defaultHost
	}
	c := &Client{
		host:       host,
		model:      model,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) chatURL() string {
	return c.host + "/api/chat"
}

// Complete sends prompt as a single user message and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	in := chatRequest{
		Model:    c.model,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}},
		Stream:   false,
	}
	if c.keepAlive {
		forever := -1
		in.KeepAlive = &forever
	}

	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	url := c.chatURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	return payload.Message.Content, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
