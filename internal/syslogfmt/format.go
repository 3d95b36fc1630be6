// Package syslogfmt turns raw log lines into BSD-style syslog lines.
package syslogfmt

import (
	"os"
	"strings"
	"time"
	"unicode"
)

// TimestampLayout is the syslog timestamp written in front of lines that lack one.
const TimestampLayout = "Jan 02 15:04:05"

// Line is one formatted syslog record.
type Line struct {
	Timestamp string
	Host      string
	Message   string

	passthrough bool
}

// String renders the line without a trailing newline.
func (l Line) String() string {
	if l.passthrough {
		return l.Message
	}
	return l.Timestamp + " " + l.Host + " " + l.Message
}

// Passthrough reports whether the input already looked like syslog and was kept as is.
func (l Line) Passthrough() bool { return l.passthrough }

// Formatter formats raw lines for one forwarding run.
type Formatter struct {
	// LocalHost is used when a line has no explicit host.
	LocalHost string
	// Now returns the clock used for generated timestamps.
	Now func() time.Time
}

// NewFormatter returns a Formatter using the machine hostname and the local clock.
func NewFormatter() *Formatter {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return &Formatter{LocalHost: host, Now: time.Now}
}

// Format normalizes raw into a syslog line. Surrounding whitespace is trimmed first.
// Blank lines report ok=false. Lines that already start with a syslog timestamp are
// returned unchanged; all others get a fresh timestamp and host prepended. An empty
// host falls back to the formatter's LocalHost.
func (f *Formatter) Format(raw, host string) (Line, bool) {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return Line{}, false
	}
	if LooksLikeSyslog(msg) {
		return Line{Message: msg, passthrough: true}, true
	}
	if host == "" {
		host = f.LocalHost
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return Line{
		Timestamp: now().Local().Format(TimestampLayout),
		Host:      host,
		Message:   msg,
	}, true
}

// LooksLikeSyslog applies the leading-timestamp heuristic: the first rune is a
// letter and a space appears somewhere in runes 2 through 6 ("Jan 15 ...").
func LooksLikeSyslog(line string) bool {
	i := 0
	for _, r := range line {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if i >= 6 {
			break
		}
		if i > 0 && r == ' ' {
			return true
		}
		i++
	}
	return false
}
