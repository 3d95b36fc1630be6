package main

import (
	"time"

	"github.com/tinytelemetry/pipecheck/internal/config"
)

const shutdownGrace = 10 * time.Second

func bindFlags(l *config.Loader) {
	l.String("sink.tcp-addr", "tcp-addr", "syslog TCP listen address, empty disables")
	l.String("sink.udp-addr", "udp-addr", "syslog UDP listen address, empty disables")
	l.String("sink.api-addr", "api-addr", "Elasticsearch-compatible HTTP API address")
	l.String("sink.db-path", "db-path", "DuckDB database file, empty keeps data in memory")
	l.String("sink.stream", "stream", "data stream receiving every document (default: type-dataset-namespace)")
	l.Bool("sink.auto-create", "auto-create", "create data streams on first write even without a matching template")
	l.Int("sink.max-line-size", "max-line-size", "longest accepted TCP line in bytes")
	l.Int("sink.insert-batch-size", "insert-batch-size", "documents per DuckDB insert")
	l.Duration("sink.insert-flush-interval", "insert-flush-interval", "max delay before a partial batch is written")
	l.Int("sink.insert-flush-queue-size", "insert-flush-queue-size", "batches queued for writing before backpressure")
	l.Duration("sink.retention", "retention", "delete documents older than this, 0 keeps everything")

	l.String("stream.type", "type", "data stream type")
	l.String("stream.dataset", "dataset", "data stream dataset")
	l.String("stream.namespace", "namespace", "data stream namespace")
	l.String("forward.log-type", "log-type", "log_type label stored on every document")

	l.String("log-file", "log-file", "append logs to this file instead of stderr")
	l.Bool("debug", "debug", "verbose logging")
}
