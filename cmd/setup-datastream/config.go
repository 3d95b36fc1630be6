package main

import (
	"time"

	"github.com/tinytelemetry/pipecheck/internal/config"
)

const requestTimeout = 2 * time.Minute

func bindFlags(l *config.Loader) {
	l.String("stream.type", "type", "data stream type")
	l.String("stream.dataset", "dataset", "data stream dataset")
	l.String("stream.namespace", "namespace", "data stream namespace (ES_DATA_STREAM_NAMESPACE)")
	l.Bool("stream.logsdb", "logsdb", "enable logsdb index mode")
	l.String("stream.mappings-file", "mappings-file", "YAML file with extra mapping properties")
	l.String("elastic.endpoint", "es-endpoint", "Elasticsearch endpoint (ES_ENDPOINT)")
	l.Int("elastic.port", "es-port", "Elasticsearch port when the endpoint has none (ES_PORT)")
	l.String("elastic.api-key", "api-key", "Elasticsearch API key (ELASTIC_ADMIN_API_KEY)")
	l.String("log-file", "log-file", "append logs to this file instead of stderr")
	l.Bool("debug", "debug", "verbose output")
}
