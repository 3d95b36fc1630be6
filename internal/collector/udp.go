package collector

import (
	"context"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

const maxDatagramSize = 64 * 1024

// UDPServer receives syslog datagrams. A datagram may carry several
// newline-separated lines.
type UDPServer struct {
	conn   net.PacketConn
	addr   string
	out    chan<- model.IngestEnvelope
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUDPServer creates a UDP receiver that writes lines to out. The caller
// owns out and closes it after Stop returns.
func NewUDPServer(addr string, out chan<- model.IngestEnvelope) *UDPServer {
	if addr == "" {
		addr = defaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &UDPServer{addr: addr, out: out, ctx: ctx, cancel: cancel}
}

// Start binds the socket and begins reading datagrams.
func (s *UDPServer) Start() error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return err
	}
	s.conn = conn

	s.wg.Add(1)
	go s.readLoop()
	return nil
}

func (s *UDPServer) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Printf("collector: udp read error: %v", err)
			continue
		}
		remote := from.String()
		payload := strings.ReplaceAll(string(buf[:n]), "\r\n", "\n")
		for _, line := range strings.Split(payload, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			select {
			case s.out <- model.IngestEnvelope{Source: "udp", Remote: remote, Line: line}:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// Stop closes the socket and waits for the read loop to exit.
func (s *UDPServer) Stop() error {
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *UDPServer) Addr() string {
	if s.conn != nil {
		return s.conn.LocalAddr().String()
	}
	return s.addr
}
