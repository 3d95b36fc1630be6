// Package elastic wraps the Elasticsearch client calls used to provision and
// inspect a data stream.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Config holds the connection settings.
type Config struct {
	Endpoint string
	// Port applies when Endpoint has no port.
	Port   int
	APIKey string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// APIError is a non-2xx response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elastic: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client talks to one Elasticsearch deployment.
type Client struct {
	es       *elasticsearch.Client
	endpoint string
	now      func() time.Time
}

// New validates cfg and builds a client. It does not contact the server.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint, err := NormalizeEndpoint(cfg.Endpoint, cfg.Port)
	if err != nil {
		return nil, err
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{endpoint},
		APIKey:    cfg.APIKey,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elastic: new client: %w", err)
	}
	return &Client{es: es, endpoint: endpoint, now: time.Now}, nil
}

// Endpoint returns the normalized endpoint.
func (c *Client) Endpoint() string { return c.endpoint }

// Ping checks that the server is reachable and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic: ping %s: %w", c.endpoint, err)
	}
	defer drain(res)
	if res.IsError() {
		return apiError("ping", res)
	}
	return nil
}

// DataStreamExists reports whether the named data stream exists.
func (c *Client) DataStreamExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.GetDataStream(
		c.es.Indices.GetDataStream.WithName(name),
		c.es.Indices.GetDataStream.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("elastic: get data stream %s: %w", name, err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, apiError("get data stream", res)
	}
	var body struct {
		DataStreams []json.RawMessage `json:"data_streams"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("elastic: decode data stream %s: %w", name, err)
	}
	return len(body.DataStreams) > 0, nil
}

// DeleteDataStream deletes the named data stream. A missing stream is not an error.
func (c *Client) DeleteDataStream(ctx context.Context, name string) error {
	res, err := c.es.Indices.DeleteDataStream([]string{name}, c.es.Indices.DeleteDataStream.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic: delete data stream %s: %w", name, err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return apiError("delete data stream", res)
	}
	return nil
}

// PutIndexTemplate creates or replaces a composable index template and
// fails unless the server acknowledges it.
func (c *Client) PutIndexTemplate(ctx context.Context, name string, body []byte) error {
	res, err := c.es.Indices.PutIndexTemplate(name, bytes.NewReader(body), c.es.Indices.PutIndexTemplate.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic: put index template %s: %w", name, err)
	}
	defer drain(res)
	if res.IsError() {
		return apiError("put index template", res)
	}
	var ack struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := json.NewDecoder(res.Body).Decode(&ack); err != nil {
		return fmt.Errorf("elastic: decode put index template %s: %w", name, err)
	}
	if !ack.Acknowledged {
		return fmt.Errorf("elastic: index template %s not acknowledged", name)
	}
	return nil
}

// Count returns the number of documents in stream matching q. A stream that
// does not exist counts as zero.
func (c *Client) Count(ctx context.Context, stream string, q Query) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(stream),
		c.es.Count.WithBody(bytes.NewReader(q.Body(c.now()))),
	)
	if err != nil {
		return 0, fmt.Errorf("elastic: count %s: %w", stream, err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, apiError("count", res)
	}
	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("elastic: decode count %s: %w", stream, err)
	}
	return body.Count, nil
}

func apiError(op string, res *esapi.Response) error {
	var b []byte
	if res.Body != nil {
		b, _ = io.ReadAll(io.LimitReader(res.Body, 512))
	}
	return &APIError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(b))}
}

func drain(res *esapi.Response) {
	if res.Body == nil {
		return
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
