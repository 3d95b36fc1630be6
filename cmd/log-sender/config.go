package main

import (
	"time"

	"github.com/tinytelemetry/pipecheck/internal/config"
)

const shutdownGrace = 10 * time.Second

// bindFlags registers the log-sender flags. Flag defaults come from the
// loader, so env and .env values show up in -help.
func bindFlags(l *config.Loader) {
	l.String("collector.host", "host", "collector host (LOGSTASH_HOST)")
	l.Int("collector.port", "port", "collector port (LOGSTASH_PORT)")
	l.String("collector.protocol", "protocol", "tcp or udp (PROTOCOL)")
	l.Duration("collector.dial-timeout", "dial-timeout", "TCP connect timeout")
	l.Duration("collector.send-timeout", "send-timeout", "per-line write timeout, 0 disables")

	l.String("forward.log-dir", "log-dir", "directory holding the log files (LOG_DIR)")
	l.String("forward.log-type", "log-type", "log type to send: windows, linux, mac, ssh, apache or all (LOG_TYPE)")
	l.Duration("forward.interval", "interval", "delay between lines (LOG_SEND_INTERVAL)")
	l.Bool("forward.loop", "loop", "repeat passes until no log files remain")
	l.Negated("forward.delete-after-send", "keep-logs", "keep log files after sending them")
	l.Duration("forward.pass-delay", "pass-delay", "delay between looped passes")
	l.String("forward.host-mode", "host-mode", "host for non-syslog lines: file (file name) or local (machine hostname)")

	l.String("log-file", "log-file", "append logs to this file instead of stderr")
	l.Bool("debug", "debug", "verbose logging")
}
