package collector

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/leodido/go-syslog/v4"
	"github.com/leodido/go-syslog/v4/rfc3164"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

// defaultPriority is user.notice, the priority assumed for lines sent
// without a PRI part.
const defaultPriority = "<13>"

const bsdTimestampLayout = "Jan _2 15:04:05"

// Sink accepts parsed documents. *duckdb.InsertBuffer satisfies it.
type Sink interface {
	Add(doc *model.Document)
}

// ProcessorConfig describes how documents are labeled.
type ProcessorConfig struct {
	Stream  string
	LogType string
	Now     func() time.Time
}

// Processor parses received lines as RFC 3164 syslog and forwards the
// resulting documents to a Sink.
type Processor struct {
	sink    Sink
	stream  string
	logType string
	now     func() time.Time
	parser  syslog.Machine

	processed atomic.Int64
	raw       atomic.Int64
}

// NewProcessor creates a processor writing to sink.
func NewProcessor(sink Sink, conf ProcessorConfig) *Processor {
	now := conf.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		sink:    sink,
		stream:  conf.Stream,
		logType: conf.LogType,
		now:     now,
		parser: rfc3164.NewParser(
			rfc3164.WithBestEffort(),
			rfc3164.WithYear(rfc3164.CurrentYear{}),
			rfc3164.WithTimezone(time.Local),
		),
	}
}

// Run consumes lines until in is closed or ctx is canceled.
func (p *Processor) Run(ctx context.Context, in <-chan model.IngestEnvelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			p.Process(env)
		}
	}
}

// Process parses one envelope and hands it to the sink.
func (p *Processor) Process(env model.IngestEnvelope) *model.Document {
	doc := p.Parse(env)
	if doc == nil {
		return nil
	}
	p.processed.Add(1)
	if p.sink != nil {
		p.sink.Add(doc)
	}
	return doc
}

// Counts returns the number of documents produced and how many of them
// were stored without a parsed syslog header.
func (p *Processor) Counts() (processed, raw int64) {
	return p.processed.Load(), p.raw.Load()
}

// Parse converts one line into a document. Blank lines yield nil. Lines the
// parser cannot make sense of are kept with the receive time as timestamp.
func (p *Processor) Parse(env model.IngestEnvelope) *model.Document {
	line := strings.TrimRight(env.Line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil
	}

	received := p.now()
	doc := &model.Document{
		Stream:     p.stream,
		Timestamp:  received,
		ReceivedAt: received,
		LogType:    p.logType,
		Message:    line,
		RawLine:    line,
		Source:     env.Source,
		SourceIP:   remoteIP(env.Remote),
		Facility:   1,
		Severity:   5,
		Priority:   13,
	}

	input := line
	if !strings.HasPrefix(input, "<") {
		input = defaultPriority + input
	}
	parsed, _ := p.parser.Parse([]byte(input))
	msg, ok := parsed.(*rfc3164.SyslogMessage)
	if !ok || msg == nil {
		p.raw.Add(1)
		return doc
	}

	if msg.Priority != nil {
		doc.Priority = int(*msg.Priority)
	}
	if msg.Facility != nil {
		doc.Facility = int(*msg.Facility)
	}
	if msg.Severity != nil {
		doc.Severity = int(*msg.Severity)
	}

	if msg.Timestamp == nil || msg.Hostname == nil {
		// The parser stops at the first header field it rejects, so fall
		// back to splitting "Mmm dd hh:mm:ss host message" by hand.
		if ts, host, rest, ok := splitHeader(stripPriority(input), received); ok {
			doc.Timestamp = ts
			doc.Host = host
			doc.AppName, doc.Message = splitTag(rest)
			return doc
		}
		p.raw.Add(1)
		doc.Message = stripPriority(input)
		return doc
	}

	doc.Timestamp = *msg.Timestamp
	doc.Host = *msg.Hostname
	if msg.Appname != nil {
		doc.AppName = *msg.Appname
	}
	if msg.Message != nil {
		doc.Message = *msg.Message
	} else {
		doc.Message = ""
	}
	return doc
}

func stripPriority(s string) string {
	if !strings.HasPrefix(s, "<") {
		return s
	}
	if i := strings.IndexByte(s, '>'); i > 0 && i <= 4 {
		return s[i+1:]
	}
	return s
}

func splitHeader(s string, now time.Time) (time.Time, string, string, bool) {
	if len(s) < len(bsdTimestampLayout)+2 {
		return time.Time{}, "", "", false
	}
	ts, err := time.ParseInLocation(bsdTimestampLayout, s[:len(bsdTimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, "", "", false
	}
	ts = ts.AddDate(now.Year(), 0, 0)
	rest := strings.TrimLeft(s[len(bsdTimestampLayout):], " ")
	host, msg, _ := strings.Cut(rest, " ")
	if host == "" {
		return time.Time{}, "", "", false
	}
	return ts, host, msg, true
}

// splitTag separates "tag[pid]: text" or "tag: text" into tag and text.
// Messages without a tag are returned whole.
func splitTag(msg string) (string, string) {
	i := strings.IndexByte(msg, ':')
	if i <= 0 {
		return "", msg
	}
	tag := msg[:i]
	if strings.ContainsAny(tag, " \t") {
		return "", msg
	}
	if j := strings.IndexByte(tag, '['); j > 0 {
		tag = tag[:j]
	}
	return tag, strings.TrimLeft(msg[i+1:], " ")
}

func remoteIP(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
