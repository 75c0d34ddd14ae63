// Package paramstore reads configuration values from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the subset of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is what consumers depend on so they stay testable without AWS.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client resolves parameter names, optionally under a prefix, and memoizes
// successful lookups. Failures are never cached.
type Client struct {
	api    ssmAPI
	prefix string

	mu    sync.RWMutex
	cache map[string]string
}

type Option func(*Client)

// WithPrefix resolves names that do not start with "/" under prefix.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	}
}

func New(api ssmAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	c := &Client{api: api, cache: make(map[string]string)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolve(name string) string {
	if c.prefix == "" || strings.HasPrefix(name, "/") {
		return name
	}
	return c.prefix + "/" + name
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}
	name = c.resolve(name)

	c.mu.RLock()
	v, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}

	v = *out.Parameter.Value
	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[string]string)
	}
	c.cache[name] = v
	c.mu.Unlock()
	return v, nil
}
