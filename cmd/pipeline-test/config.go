package main

import (
	"time"

	"github.com/tinytelemetry/pipecheck/internal/config"
)

const shutdownGrace = 2 * time.Minute

func bindFlags(l *config.Loader) {
	l.String("forward.log-type", "log-type", "log type to test: all, linux, mac, ssh")
	l.Bool("stream.logsdb", "logsdb", "enable LogsDB index mode on the data stream")
	l.String("stream.mappings-file", "mappings-file", "JSON or YAML mapping properties merged over the defaults")

	l.String("runner.compose-file", "compose-file", "docker compose file (default: compose lookup in the working directory)")
	l.String("runner.report-path", "report-path", "markdown report written after the run")
	l.Bool("runner.no-cleanup", "no-cleanup", "leave containers running and keep the modified .env file")
	l.Duration("runner.init-wait", "init-wait", "wait for the collector to start")
	l.Duration("runner.send-wait", "send-wait", "wait before counting starts")

	l.String("log-file", "log-file", "append logs to this file instead of stderr")
	l.Bool("debug", "debug", "print container logs and environment details")
}
