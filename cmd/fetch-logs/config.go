package main

import (
	"time"

	"github.com/tinytelemetry/pipecheck/internal/config"
)

const shutdownGrace = 10 * time.Second

func bindFlags(l *config.Loader) {
	l.String("forward.log-type", "log-type", "archive to download: windows, linux, mac, ssh, apache or all")
	l.String("fetch.output-dir", "output-dir", "directory receiving the archives and extracted logs")
	l.Int("fetch.workers", "workers", "parallel extractions")
	l.Negated("fetch.remove-archives", "keep-archives", "keep the .tar.gz files after extraction")
	l.String("log-file", "log-file", "append logs to this file instead of stderr")
	l.Bool("debug", "debug", "verbose logging")
}
