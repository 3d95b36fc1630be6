// Package collector receives syslog lines over TCP and UDP and turns them
// into documents for the local sink.
package collector

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

const (
	// DefaultLineChannelSize is the default buffer size for the incoming line channel.
	DefaultLineChannelSize = 100_000

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	defaultAddr = "127.0.0.1:5514"
)

// ServerConfig holds tunable parameters for the receivers.
type ServerConfig struct {
	MaxLineSize int
}

func maxLineSize(conf []ServerConfig) int {
	if len(conf) > 0 && conf[0].MaxLineSize > 0 {
		return conf[0].MaxLineSize
	}
	return DefaultMaxLineSize
}

// TCPServer accepts newline-framed syslog streams. Each connection is read
// by its own goroutine.
type TCPServer struct {
	listener    net.Listener
	addr        string
	out         chan<- model.IngestEnvelope
	maxLineSize int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	open        atomic.Int64
}

// NewTCPServer creates a TCP receiver that writes lines to out. The caller
// owns out and closes it after Stop returns. Default addr is "127.0.0.1:5514".
func NewTCPServer(addr string, out chan<- model.IngestEnvelope, conf ...ServerConfig) *TCPServer {
	if addr == "" {
		addr = defaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPServer{
		addr:        addr,
		out:         out,
		maxLineSize: maxLineSize(conf),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins accepting TCP connections.
func (s *TCPServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					continue
				}
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	return nil
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner when the server stops.
	done := make(chan struct{})
	defer close(done)
	s.open.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.open.Add(-1)
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	remote := conn.RemoteAddr().String()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(64*1024, s.maxLineSize)), s.maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case s.out <- model.IngestEnvelope{Source: "tcp", Remote: remote, Line: line}:
		case <-s.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Printf("collector: dropped connection %s due to line exceeding max size (%d bytes)", remote, s.maxLineSize)
			return
		}
		if s.ctx.Err() == nil {
			log.Printf("collector: read error from %s: %v", remote, err)
		}
	}
}

// Stop closes the listener and every open connection and waits for the
// connection goroutines to exit.
func (s *TCPServer) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// OpenConnections returns the number of connections not yet fully released.
func (s *TCPServer) OpenConnections() int64 {
	return s.open.Load()
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *TCPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
