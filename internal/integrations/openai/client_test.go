package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val    string
	err    error
	onCall func()
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

const completionBody = `{
	"id": "chatcmpl-123",
	"object": "chat.completion",
	"created": 1670000000,
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {"role": "assistant", "content": "Hello from mock"}
	}]
}`

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(srv.URL + "/v1"),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	}, opts...)
	c, err := NewClient("gpt-4o-mini", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKeySource(t *testing.T) {
	_, err := NewClient("gpt-4o-mini")
	require.Error(t, err)

	c, err := NewClient("", WithAPIKey("sk-static"))
	require.NoError(t, err)
	require.Equal(t, defaultModel, c.model)
}

func TestResolveAPIKey_FetchedOnce(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`, onCall: func() { calls++ }}
	c, err := NewClient("gpt-4o-mini", WithParamStore(g, "/docchat/openai-token"))
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", key)

	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, calls)
}

func TestResolveAPIKey_FailureIsRetried(t *testing.T) {
	g := &fakeGetter{err: errors.New("transient ssm throttle")}
	calls := 0
	g.onCall = func() {
		calls++
		if calls > 1 {
			g.val, g.err = `{"token":"sk-from-ssm"}`, nil
		}
	}
	c, err := NewClient("gpt-4o-mini", WithParamStore(g, "/docchat/openai-token"))
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "transient ssm throttle")

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", key)

	_, err = c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestResolveAPIKey_StaticWins(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`, onCall: func() { calls++ }}
	c, err := NewClient("gpt-4o-mini", WithAPIKey("sk-static"), WithParamStore(g, "/p"))
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-static", key)
	require.Zero(t, calls)
}

func TestFetchAPIKey(t *testing.T) {
	key, err := fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{val: `{"token":"sk-json"}`}, "/p")
	require.NoError(t, err)
	require.Equal(t, "sk-json", key)

	_, err = fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{val: `{"other":"v"}`}, "/p")
	require.ErrorContains(t, err, "API token is empty")

	_, err = fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{val: `{"broken`}, "/p")
	require.ErrorContains(t, err, "unmarshal")

	_, err = fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{err: errors.New("ssm unavailable")}, "/p")
	require.ErrorContains(t, err, "ssm unavailable")

	_, err = fetchAPIKeyFromParamStore(context.Background(), nil, "/p")
	require.ErrorContains(t, err, "nil")

	_, err = fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{}, " ")
	require.ErrorContains(t, err, "empty")
}

func TestClient_Complete_HappyPath(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithParamStore(&fakeGetter{val: `{"token":"sk-test"}`}, "/p"))
	reply, err := c.Complete(context.Background(), "the prompt")
	require.NoError(t, err)
	require.Equal(t, "Hello from mock", reply)

	require.Equal(t, "gpt-4o-mini", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 1)
	require.Equal(t, "user", msgs[0].(map[string]any)["role"])
	require.Equal(t, "the prompt", msgs[0].(map[string]any)["content"])
}

func TestClient_Complete_StatusError_NoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithAPIKey("sk-test"))
	_, err := c.Complete(context.Background(), "p")
	require.Error(t, err)
	require.Equal(t, 1, calls)

	status, ok := StatusCode(err)
	require.True(t, ok)
	require.Equal(t, http.StatusTooManyRequests, status)
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithAPIKey("sk-test"))
	_, err := c.Complete(context.Background(), "p")
	require.ErrorContains(t, err, "no choices")
}

func TestClient_Complete_KeyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent without a key")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithParamStore(&fakeGetter{err: errors.New("denied")}, "/p"))
	_, err := c.Complete(context.Background(), "p")
	require.ErrorContains(t, err, "denied")
}

func TestStatusCode_NonAPIError(t *testing.T) {
	_, ok := StatusCode(errors.New("plain"))
	require.False(t, ok)
}
