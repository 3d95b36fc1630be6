package runner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tinytelemetry/pipecheck/internal/datastream"
	"github.com/tinytelemetry/pipecheck/internal/elastic"
)

// ElasticBackend provisions and counts through the Elasticsearch client.
type ElasticBackend struct {
	client *elastic.Client
	prov   *datastream.Provisioner
}

// DialElastic builds an ElasticBackend from ES_ENDPOINT, ES_PORT and
// ELASTIC_ADMIN_API_KEY.
func DialElastic(env map[string]string) (Backend, error) {
	port := 0
	if p := strings.TrimSpace(env["ES_PORT"]); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ES_PORT %q: %w", p, err)
		}
		port = n
	}
	client, err := elastic.New(elastic.Config{
		Endpoint: env["ES_ENDPOINT"],
		Port:     port,
		APIKey:   env["ELASTIC_ADMIN_API_KEY"],
	})
	if err != nil {
		return nil, err
	}
	return &ElasticBackend{client: client, prov: datastream.NewProvisioner(client)}, nil
}

func (b *ElasticBackend) Provision(ctx context.Context, spec datastream.Spec) (datastream.Result, error) {
	return b.prov.Provision(ctx, spec)
}

func (b *ElasticBackend) Count(ctx context.Context, stream string) (int64, error) {
	return b.client.Count(ctx, stream, elastic.Query{})
}

func (b *ElasticBackend) Endpoint() string { return b.client.Endpoint() }
