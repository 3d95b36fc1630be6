package transport

import (
	"context"
	"net"
	"time"
)

type tcpSender struct {
	conn        net.Conn
	addr        string
	sendTimeout time.Duration
}

func dialTCP(ctx context.Context, cfg Config) (*tcpSender, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, &ConnectError{Addr: cfg.Addr(), Protocol: ProtocolTCP, Err: err}
	}
	return &tcpSender{conn: conn, addr: cfg.Addr(), sendTimeout: cfg.SendTimeout}, nil
}

func (s *tcpSender) Send(line string) error {
	if s.sendTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.sendTimeout)); err != nil {
			return &SendError{Addr: s.addr, Err: err}
		}
	}
	if _, err := s.conn.Write(Frame(line)); err != nil {
		return &SendError{Addr: s.addr, Err: err}
	}
	return nil
}

func (s *tcpSender) Close() error       { return s.conn.Close() }
func (s *tcpSender) Protocol() Protocol { return ProtocolTCP }
func (s *tcpSender) Addr() string       { return s.addr }
