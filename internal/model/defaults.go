package model

import "time"

// Shared defaults used across the pipecheck binaries.
const (
	DefaultCollectorHost   = "logstash"
	DefaultCollectorPort   = 5514
	DefaultLogDir          = "/logs"
	DefaultInterPassDelay  = 5 * time.Second
	DefaultExtractWorkers  = 3
	DefaultStreamType      = "logs"
	DefaultStreamDataset   = "syslog"
	DefaultStreamNamespace = "default"
	DefaultWatchInterval   = 5 * time.Second
	DefaultWatchTimeout    = 300 * time.Second
)
