package model

import (
	"path/filepath"
	"strings"
	"time"
)

// LogType is a filter key used to select log files by directory or file name.
// It is never parsed as a log format.
type LogType string

const (
	LogTypeAll     LogType = "all"
	LogTypeWindows LogType = "windows"
	LogTypeLinux   LogType = "linux"
	LogTypeMac     LogType = "mac"
	LogTypeSSH     LogType = "ssh"
	LogTypeApache  LogType = "apache"
)

// KnownLogTypes lists the log types that have a downloadable archive.
func KnownLogTypes() []LogType {
	return []LogType{LogTypeWindows, LogTypeLinux, LogTypeMac, LogTypeSSH, LogTypeApache}
}

// ParseLogType normalizes a user supplied log type. Empty input selects all logs.
func ParseLogType(s string) LogType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LogTypeAll
	}
	return LogType(s)
}

// IsAll reports whether t selects every log file.
func (t LogType) IsAll() bool {
	return strings.EqualFold(string(t), string(LogTypeAll))
}

func (t LogType) String() string { return string(t) }

// LogFileRef points at a line-delimited log file on disk.
type LogFileRef struct {
	Path string
	Host string // filename stem, used as the synthetic syslog hostname
}

// NewLogFileRef derives the host identifier from the file name up to its first dot.
func NewLogFileRef(path string) LogFileRef {
	return LogFileRef{Path: path, Host: HostFromPath(path)}
}

// HostFromPath returns the basename of path truncated at the first '.'.
func HostFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// Document is one log event stored by the local sink.
type Document struct {
	Stream     string
	Timestamp  time.Time
	ReceivedAt time.Time
	Host       string
	AppName    string
	LogType    string
	Message    string
	RawLine    string
	Source     string // "tcp", "udp"
	SourceIP   string
	Facility   int
	Severity   int
	Priority   int
}
