package main

import (
	"time"

	"github.com/tinytelemetry/pipecheck/internal/config"
)

const (
	shutdownGrace  = 5 * time.Second
	requestTimeout = 30 * time.Second
)

func bindFlags(l *config.Loader) {
	l.String("stream.type", "type", "data stream type")
	l.String("stream.dataset", "dataset", "data stream dataset")
	l.String("stream.namespace", "namespace", "data stream namespace (ES_DATA_STREAM_NAMESPACE)")
	l.String("elastic.endpoint", "es-endpoint", "Elasticsearch endpoint (ES_ENDPOINT)")
	l.Int("elastic.port", "es-port", "Elasticsearch port when the endpoint has none (ES_PORT)")
	l.String("elastic.api-key", "api-key", "Elasticsearch API key (ELASTIC_ADMIN_API_KEY)")

	l.Int("watch.minutes", "minutes", "only count documents from the last N minutes")
	l.String("watch.query", "query", "custom JSON query clause")
	l.Bool("watch.enabled", "watch", "poll the count until a stop condition triggers or Ctrl+C")
	l.Duration("watch.interval", "interval", "watch poll interval")
	l.Duration("watch.timeout", "timeout", "stop watching after this long, whatever the other conditions")
	l.Duration("watch.no-change", "no-change-timeout", "stop watching once the count has not grown for this long, 0 disables")
	l.Int64("watch.expected", "expected", "stop watching once the count reaches this value")
	l.Bool("watch.expect-from-logs", "expect-from-logs", "derive --expected from the non-blank lines under --log-dir")
	l.String("forward.log-dir", "log-dir", "log directory used by --expect-from-logs (LOG_DIR)")
	l.String("forward.log-type", "log-type", "log type used by --expect-from-logs (LOG_TYPE)")

	l.String("log-file", "log-file", "append logs to this file instead of stderr")
	l.Bool("debug", "debug", "verbose logging")
}
