package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseProtocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Protocol
		wantErr bool
	}{
		{"tcp", ProtocolTCP, false},
		{" UDP ", ProtocolUDP, false},
		{"relp", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProtocol(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseProtocol(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseProtocol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFrame_ReplacesInvalidUTF8(t *testing.T) {
	t.Parallel()

	got := string(Frame("ok\xffdone"))
	if got != "ok\uFFFDdone\n" {
		t.Fatalf("Frame = %q", got)
	}
}

func TestDialTCP_SendsNewlineFrames(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan []string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var lines []string
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		got <- lines
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	s, err := Dial(context.Background(), Config{Host: "127.0.0.1", Port: port, Protocol: ProtocolTCP, SendTimeout: time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	for _, l := range []string{"first", "second"} {
		if err := s.Send(l); err != nil {
			t.Fatalf("Send(%q): %v", l, err)
		}
	}
	s.Close()

	select {
	case lines := <-got:
		if strings.Join(lines, "|") != "first|second" {
			t.Fatalf("received %q", lines)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frames")
	}
}

func TestDialTCP_ConnectFailureIsTyped(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Dial(context.Background(), Config{Host: "127.0.0.1", Port: port, Protocol: ProtocolTCP, DialTimeout: time.Second})
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Dial error = %v, want *ConnectError", err)
	}
}

func TestDial_InvalidPort(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Config{Host: "127.0.0.1", Port: 0, Protocol: ProtocolUDP})
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Dial error = %v, want *ConnectError", err)
	}
}

func TestDialUDP_OneDatagramPerLine(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	s, err := Dial(context.Background(), Config{Host: "127.0.0.1", Port: port, Protocol: ProtocolUDP})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()

	if err := s.Send("Jan 02 15:04:05 host hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 1024)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got := string(buf[:n]); got != "Jan 02 15:04:05 host hello\n" {
		t.Fatalf("datagram = %q", got)
	}
	if s.Protocol() != ProtocolUDP {
		t.Fatalf("Protocol() = %q", s.Protocol())
	}
}
