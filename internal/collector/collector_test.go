package collector

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

func TestNewTCPServer_DefaultLocalhostAddress(t *testing.T) {
	t.Parallel()

	s := NewTCPServer("", nil)
	if got := s.Addr(); got != "127.0.0.1:5514" {
		t.Fatalf("Addr() = %q, want %q", got, "127.0.0.1:5514")
	}
	if got := s.maxLineSize; got != DefaultMaxLineSize {
		t.Fatalf("max line size = %d, want %d", got, DefaultMaxLineSize)
	}

	s = NewTCPServer("0.0.0.0:6000", nil, ServerConfig{MaxLineSize: 2048})
	if got := s.maxLineSize; got != 2048 {
		t.Fatalf("max line size = %d, want %d", got, 2048)
	}
}

func recv(t *testing.T, ch <-chan model.IngestEnvelope, n int) []model.IngestEnvelope {
	t.Helper()
	var got []model.IngestEnvelope
	deadline := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case env := <-ch:
			got = append(got, env)
		case <-deadline:
			t.Fatalf("received %d lines, want %d", len(got), n)
		}
	}
	return got
}

func TestTCPServer_ReceivesLines(t *testing.T) {
	t.Parallel()

	out := make(chan model.IngestEnvelope, 16)
	s := NewTCPServer("127.0.0.1:0", out)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	fmt.Fprint(conn, "first line\n\nsecond line\n")
	conn.Close()

	got := recv(t, out, 2)
	if got[0].Line != "first line" || got[1].Line != "second line" {
		t.Fatalf("lines = %+v", got)
	}
	if got[0].Source != "tcp" {
		t.Fatalf("source = %q, want tcp", got[0].Source)
	}
	if !strings.HasPrefix(got[0].Remote, "127.0.0.1:") {
		t.Fatalf("remote = %q", got[0].Remote)
	}
}

func TestTCPServer_DropsOversizedLine(t *testing.T) {
	t.Parallel()

	out := make(chan model.IngestEnvelope, 16)
	s := NewTCPServer("127.0.0.1:0", out, ServerConfig{MaxLineSize: 16})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	fmt.Fprint(conn, "ok\n"+strings.Repeat("x", 64)+"\nafter\n")
	conn.Close()

	got := recv(t, out, 1)
	if got[0].Line != "ok" {
		t.Fatalf("line = %q, want ok", got[0].Line)
	}
	select {
	case env := <-out:
		t.Fatalf("unexpected line after oversized input: %q", env.Line)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTCPServer_StopClosesConnections(t *testing.T) {
	t.Parallel()

	out := make(chan model.IngestEnvelope, 1)
	s := NewTCPServer("127.0.0.1:0", out)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return with an idle connection open")
	}
}

func TestTCPServer_ReleasesClosedConnections(t *testing.T) {
	t.Parallel()

	out := make(chan model.IngestEnvelope, 64)
	s := NewTCPServer("127.0.0.1:0", out)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	const sessions = 20
	for i := 0; i < sessions; i++ {
		conn, err := net.Dial("tcp", s.Addr())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		fmt.Fprintf(conn, "line %d\n", i)
		conn.Close()
	}
	recv(t, out, sessions)

	deadline := time.Now().Add(5 * time.Second)
	for s.OpenConnections() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("OpenConnections = %d after every client closed, want 0", s.OpenConnections())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUDPServer_SplitsDatagrams(t *testing.T) {
	t.Parallel()

	out := make(chan model.IngestEnvelope, 16)
	s := NewUDPServer("127.0.0.1:0", out)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("udp", s.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("one\r\ntwo\n\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := recv(t, out, 2)
	if got[0].Line != "one" || got[1].Line != "two" {
		t.Fatalf("lines = %+v", got)
	}
	if got[0].Source != "udp" {
		t.Fatalf("source = %q, want udp", got[0].Source)
	}
}

type memSink struct {
	mu   sync.Mutex
	docs []*model.Document
}

func (m *memSink) Add(doc *model.Document) {
	m.mu.Lock()
	m.docs = append(m.docs, doc)
	m.mu.Unlock()
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
}

func TestProcessor_ParsesRFC3164(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil, ProcessorConfig{Stream: "logs-syslog-default", LogType: "linux", Now: fixedNow})
	doc := p.Parse(model.IngestEnvelope{
		Source: "tcp",
		Remote: "10.0.0.7:41000",
		Line:   "<34>Oct 11 22:14:15 mymachine su: 'su root' failed for lonvick on /dev/pts/8",
	})
	if doc == nil {
		t.Fatal("Parse returned nil")
	}
	if doc.Host != "mymachine" {
		t.Fatalf("Host = %q, want mymachine", doc.Host)
	}
	if doc.AppName != "su" {
		t.Fatalf("AppName = %q, want su", doc.AppName)
	}
	if doc.Priority != 34 || doc.Facility != 4 || doc.Severity != 2 {
		t.Fatalf("pri/fac/sev = %d/%d/%d, want 34/4/2", doc.Priority, doc.Facility, doc.Severity)
	}
	if doc.Timestamp.Month() != time.October || doc.Timestamp.Day() != 11 || doc.Timestamp.Hour() != 22 {
		t.Fatalf("Timestamp = %v", doc.Timestamp)
	}
	if doc.Stream != "logs-syslog-default" || doc.LogType != "linux" {
		t.Fatalf("labels = %q/%q", doc.Stream, doc.LogType)
	}
	if doc.SourceIP != "10.0.0.7" || doc.Source != "tcp" {
		t.Fatalf("source = %q/%q", doc.Source, doc.SourceIP)
	}
	if !doc.ReceivedAt.Equal(fixedNow()) {
		t.Fatalf("ReceivedAt = %v", doc.ReceivedAt)
	}
}

func TestProcessor_HeaderWithoutPriority(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil, ProcessorConfig{Now: fixedNow})
	doc := p.Parse(model.IngestEnvelope{Line: "Mar 05 09:07:03 LINUX sshd[481]: Accepted password for root"})
	if doc == nil {
		t.Fatal("Parse returned nil")
	}
	if doc.Host != "LINUX" {
		t.Fatalf("Host = %q, want LINUX", doc.Host)
	}
	if doc.AppName != "sshd" {
		t.Fatalf("AppName = %q, want sshd", doc.AppName)
	}
	if doc.Timestamp.Month() != time.March || doc.Timestamp.Day() != 5 || doc.Timestamp.Second() != 3 {
		t.Fatalf("Timestamp = %v", doc.Timestamp)
	}
	if doc.Priority != 13 {
		t.Fatalf("Priority = %d, want 13", doc.Priority)
	}
	if doc.RawLine != "Mar 05 09:07:03 LINUX sshd[481]: Accepted password for root" {
		t.Fatalf("RawLine = %q", doc.RawLine)
	}
}

func TestProcessor_UnparsableLineKeptRaw(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	p := NewProcessor(sink, ProcessorConfig{Now: fixedNow})
	doc := p.Process(model.IngestEnvelope{Line: "plain text without header"})
	if doc == nil {
		t.Fatal("Process returned nil")
	}
	if doc.Message != "plain text without header" {
		t.Fatalf("Message = %q", doc.Message)
	}
	if !doc.Timestamp.Equal(fixedNow()) {
		t.Fatalf("Timestamp = %v, want receive time", doc.Timestamp)
	}
	if p.Process(model.IngestEnvelope{Line: "   "}) != nil {
		t.Fatal("blank line produced a document")
	}

	processed, raw := p.Counts()
	if processed != 1 || raw != 1 {
		t.Fatalf("Counts() = %d, %d, want 1, 1", processed, raw)
	}
	if len(sink.docs) != 1 {
		t.Fatalf("sink received %d docs, want 1", len(sink.docs))
	}
}

func TestSplitTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, tag, msg string
	}{
		{"sshd[42]: hello", "sshd", "hello"},
		{"kernel: boot", "kernel", "boot"},
		{"no tag here: at all", "", "no tag here: at all"},
		{"plain", "", "plain"},
	}
	for _, tt := range tests {
		tag, msg := splitTag(tt.in)
		if tag != tt.tag || msg != tt.msg {
			t.Errorf("splitTag(%q) = %q, %q, want %q, %q", tt.in, tag, msg, tt.tag, tt.msg)
		}
	}
}

func TestProcessor_RunDrainsChannel(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	p := NewProcessor(sink, ProcessorConfig{Now: fixedNow})
	in := make(chan model.IngestEnvelope, 3)
	in <- model.IngestEnvelope{Line: "<13>Mar 10 11:00:00 a app: one"}
	in <- model.IngestEnvelope{Line: "<13>Mar 10 11:00:01 b app: two"}
	close(in)

	done := make(chan struct{})
	go func() {
		p.Run(t.Context(), in)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	if len(sink.docs) != 2 {
		t.Fatalf("sink received %d docs, want 2", len(sink.docs))
	}
}
