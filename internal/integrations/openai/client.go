// Package openai adapts the OpenAI chat completions API to the completion
// interface used by the chat service.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultModel = "gpt-4o-mini"

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client completes prompts with a single user message. Retries are disabled.
type Client struct {
	model      string
	baseURL    string
	httpClient *http.Client

	staticKey string
	getter    Getter
	keyParam  string

	keyMu  sync.RWMutex
	apiKey string

	sdk sdk.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey uses a fixed API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.staticKey = strings.TrimSpace(key)
	}
}

// WithParamStore resolves the API key from a parameter holding {"token": "..."}.
// The first successful lookup is reused afterwards; failures are retried.
func WithParamStore(g Getter, name string) Option {
	return func(c *Client) {
		c.getter = g
		c.keyParam = strings.TrimSpace(name)
	}
}

func NewClient(model string, opts ...Option) (*Client, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}
	c := &Client{model: model}
	for _, opt := range opts {
		opt(c)
	}
	if c.staticKey == "" && c.getter == nil {
		return nil, errors.New("openai: an API key or a paramstore getter is required")
	}

	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	if c.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(c.httpClient))
	}
	c.sdk = sdk.NewClient(reqOpts...)
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	if c.staticKey != "" {
		return c.staticKey, nil
	}

	c.keyMu.RLock()
	key := c.apiKey
	c.keyMu.RUnlock()
	if key != "" {
		return key, nil
	}

	key, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.keyParam)
	if err != nil {
		return "", err
	}

	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey == "" {
		c.apiKey = key
	}
	return c.apiKey, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	resp, err := c.sdk.Chat.Completions.New(ctx,
		sdk.ChatCompletionNewParams{
			Model:    sdk.ChatModel(c.model),
			Messages: []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(prompt)},
		},
		option.WithAPIKey(apiKey),
	)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// StatusCode reports the HTTP status carried by an API error.
func StatusCode(err error) (int, bool) {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	return apiErr.StatusCode, true
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("openai: API token is empty")
	}
	return tp.Token, nil
}
