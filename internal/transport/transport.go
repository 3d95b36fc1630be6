// Package transport delivers newline-terminated syslog lines to a collector over
// TCP or UDP. Delivery is best effort: there is no retry, acknowledgement or
// reconnect, and every line is sent at most once.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Protocol selects the transport.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// ParseProtocol accepts "tcp" or "udp" in any case.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case ProtocolTCP:
		return ProtocolTCP, nil
	case ProtocolUDP:
		return ProtocolUDP, nil
	default:
		return "", fmt.Errorf("transport: unknown protocol %q (want tcp or udp)", s)
	}
}

const defaultDialTimeout = 10 * time.Second

// Config describes the collector endpoint.
type Config struct {
	Host     string
	Port     int
	Protocol Protocol

	// DialTimeout bounds the initial TCP connect. Zero uses 10s.
	DialTimeout time.Duration
	// SendTimeout bounds a single write. Zero means no deadline.
	SendTimeout time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Sender writes one line per call.
type Sender interface {
	Send(line string) error
	Close() error
	Protocol() Protocol
	Addr() string
}

// ConnectError reports a failure to establish the session. It is fatal for a run.
type ConnectError struct {
	Addr     string
	Protocol Protocol
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect %s %s: %v", e.Protocol, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError reports a failure to deliver one line. It never aborts a run.
type SendError struct {
	Addr string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("transport: send to %s: %v", e.Addr, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Dial opens a session. TCP connects immediately and holds the connection for
// the life of the Sender. UDP only resolves the destination; every Send is an
// independently addressed datagram.
func Dial(ctx context.Context, cfg Config) (Sender, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, &ConnectError{Addr: cfg.Addr(), Protocol: cfg.Protocol, Err: fmt.Errorf("invalid port %d", cfg.Port)}
	}
	switch cfg.Protocol {
	case ProtocolTCP:
		s, err := dialTCP(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ProtocolUDP:
		s, err := dialUDP(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, &ConnectError{Addr: cfg.Addr(), Protocol: cfg.Protocol, Err: fmt.Errorf("unknown protocol %q", cfg.Protocol)}
	}
}

// Frame returns line as a newline-terminated UTF-8 frame. Invalid UTF-8 is
// replaced with U+FFFD.
func Frame(line string) []byte {
	line = strings.ToValidUTF8(line, "\uFFFD")
	b := make([]byte, 0, len(line)+1)
	b = append(b, line...)
	return append(b, '\n')
}
