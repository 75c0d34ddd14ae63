// Package search adapts an Elasticsearch cluster into the chunk index used by
// ingestion and retrieval.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// chunkField is the single document field holding chunk text.
const chunkField = "chunk"

// Config holds connection details for the Elasticsearch cluster.
type Config struct {
	Addresses   []string
	Username    string
	Password    string
	VerifyCerts bool
	Index       string
}

// StatusError captures non-2xx responses from Elasticsearch.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client indexes and queries chunk documents in one index.
type Client struct {
	es     *elasticsearch.Client
	index  string
	logger *slog.Logger
}

// NewClient builds an Elasticsearch client from cfg.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DisableRetry: true,
	}
	if !cfg.VerifyCerts {
		esCfg.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // matches cluster setups with self-signed certs
		}
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return New(es, cfg.Index, logger)
}

// New wraps an existing Elasticsearch client bound to index.
func New(es *elasticsearch.Client, index string, logger *slog.Logger) (*Client, error) {
	if es == nil {
		return nil, errors.New("search: elasticsearch client must not be nil")
	}
	index = strings.TrimSpace(index)
	if index == "" {
		return nil, errors.New("search: index name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{es: es, index: index, logger: logger}, nil
}

// Index returns the name of the index this client writes to and reads from.
func (c *Client) Index() string {
	return c.index
}

// IndexExists reports whether the named index exists.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("search: IndexExists %q: %w", name, err)
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, statusError("IndexExists", res)
	}
}

// IndexAll writes each chunk as its own document. A failed chunk is logged and
// skipped; the number of chunks that were stored is returned.
func (c *Client) IndexAll(ctx context.Context, chunks []string) int {
	indexed := 0
	for i, chunk := range chunks {
		if err := c.indexChunk(ctx, chunk); err != nil {
			c.logger.Error("error indexing chunk", "index", c.index, "chunk", i, "err", err)
			continue
		}
		indexed++
	}
	c.logger.Info("chunks indexed", "index", c.index, "indexed", indexed, "total", len(chunks))
	return indexed
}

func (c *Client) indexChunk(ctx context.Context, chunk string) error {
	body, err := json.Marshal(map[string]string{chunkField: chunk})
	if err != nil {
		return fmt.Errorf("search: marshal chunk: %w", err)
	}
	res, err := c.es.Index(c.index, bytes.NewReader(body), c.es.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: index chunk: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return statusError("index chunk", res)
	}
	return nil
}

type queryString struct {
	Query        string `json:"query"`
	DefaultField string `json:"default_field"`
}

type searchRequest struct {
	Query struct {
		QueryString queryString `json:"query_string"`
	} `json:"query"`
	Size int `json:"size"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				Chunk string `json:"chunk"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func newSearchRequest(query string, k int) searchRequest {
	var req searchRequest
	req.Query.QueryString = queryString{
		Query:        "*" + query + "*",
		DefaultField: chunkField,
	}
	req.Size = k
	return req
}

// Retrieve returns up to k chunk texts whose content matches the wildcard
// query "*<query>*", in the cluster's relevance order.
func (c *Client) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search: Retrieve: k must be positive, got %d", k)
	}
	body, err := json.Marshal(newSearchRequest(query, k))
	if err != nil {
		return nil, fmt.Errorf("search: Retrieve marshal: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: Retrieve: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return nil, statusError("Retrieve", res)
	}

	var payload searchResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("search: Retrieve decode: %w", err)
	}
	chunks := make([]string, 0, len(payload.Hits.Hits))
	for _, hit := range payload.Hits.Hits {
		chunks = append(chunks, hit.Source.Chunk)
	}
	return chunks, nil
}

// DeleteIndex removes the named index and every chunk in it.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: DeleteIndex %q: %w", name, err)
	}
	defer closeBody(res)
	if res.IsError() {
		return statusError("DeleteIndex", res)
	}
	return nil
}

func statusError(op string, res *esapi.Response) error {
	var buf []byte
	if res.Body != nil {
		buf, _ = io.ReadAll(io.LimitReader(res.Body, 4096))
	}
	return &StatusError{Op: op, StatusCode: res.StatusCode, Body: string(buf)}
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
}
