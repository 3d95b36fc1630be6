package transport

import (
	"context"
	"net"
	"time"
)

type udpSender struct {
	conn        net.PacketConn
	dst         *net.UDPAddr
	addr        string
	sendTimeout time.Duration
}

func dialUDP(ctx context.Context, cfg Config) (*udpSender, error) {
	var r net.Resolver
	ips, err := r.LookupIPAddr(ctx, cfg.Host)
	if err != nil {
		return nil, &ConnectError{Addr: cfg.Addr(), Protocol: ProtocolUDP, Err: err}
	}
	dst := &net.UDPAddr{IP: ips[0].IP, Port: cfg.Port, Zone: ips[0].Zone}

	network := "udp4"
	if dst.IP.To4() == nil {
		network = "udp6"
	}
	conn, err := net.ListenPacket(network, ":0")
	if err != nil {
		return nil, &ConnectError{Addr: cfg.Addr(), Protocol: ProtocolUDP, Err: err}
	}
	return &udpSender{conn: conn, dst: dst, addr: cfg.Addr(), sendTimeout: cfg.SendTimeout}, nil
}

func (s *udpSender) Send(line string) error {
	if s.sendTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.sendTimeout)); err != nil {
			return &SendError{Addr: s.addr, Err: err}
		}
	}
	if _, err := s.conn.WriteTo(Frame(line), s.dst); err != nil {
		return &SendError{Addr: s.addr, Err: err}
	}
	return nil
}

func (s *udpSender) Close() error       { return s.conn.Close() }
func (s *udpSender) Protocol() Protocol { return ProtocolUDP }
func (s *udpSender) Addr() string       { return s.addr }
