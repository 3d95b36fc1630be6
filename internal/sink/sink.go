// Package sink assembles the local stand-in for the collector and
// Elasticsearch: syslog listeners feeding DuckDB, served over an
// Elasticsearch-compatible HTTP API.
package sink

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/pipecheck/internal/collector"
	"github.com/tinytelemetry/pipecheck/internal/duckdb"
	"github.com/tinytelemetry/pipecheck/internal/httpserver"
	"github.com/tinytelemetry/pipecheck/internal/model"
)

// Config selects the listeners and storage. An empty TCPAddr or UDPAddr
// disables that listener.
type Config struct {
	TCPAddr string
	UDPAddr string
	APIAddr string
	// DBPath is the DuckDB file; empty keeps everything in memory.
	DBPath string
	// Stream receives every document.
	Stream     string
	LogType    string
	AutoCreate bool
	// Templates are installed before the listeners start.
	Templates   []model.IndexTemplateRecord
	MaxLineSize int
	Insert      duckdb.InsertBufferConfig
	Retention   time.Duration
}

// Sink owns every component of a running local sink.
type Sink struct {
	conf Config

	store     *duckdb.Store
	buffer    *duckdb.InsertBuffer
	retention *duckdb.RetentionCleaner
	api       *httpserver.Server
	tcp       *collector.TCPServer
	udp       *collector.UDPServer
	processor *collector.Processor
	lines     chan model.IngestEnvelope

	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

// Start opens the store and starts the API and the listeners. On error
// everything already started is stopped again.
func Start(conf Config) (*Sink, error) {
	store, err := duckdb.NewStore(conf.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	store.AutoCreate = conf.AutoCreate

	for _, t := range conf.Templates {
		if err := store.PutIndexTemplate(t); err != nil {
			store.Close()
			return nil, err
		}
	}

	s := &Sink{conf: conf, store: store}
	s.buffer = duckdb.NewInsertBuffer(store, conf.Insert)
	s.retention = duckdb.NewRetentionCleaner(store, conf.Retention)

	s.api = httpserver.NewServer(conf.APIAddr, store)
	if err := s.api.Start(); err != nil {
		s.shutdown()
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}

	s.lines = make(chan model.IngestEnvelope, collector.DefaultLineChannelSize)
	if conf.TCPAddr != "" {
		s.tcp = collector.NewTCPServer(conf.TCPAddr, s.lines, collector.ServerConfig{MaxLineSize: conf.MaxLineSize})
		if err := s.tcp.Start(); err != nil {
			s.tcp = nil
			s.shutdown()
			return nil, fmt.Errorf("failed to start TCP listener: %w", err)
		}
	}
	if conf.UDPAddr != "" {
		s.udp = collector.NewUDPServer(conf.UDPAddr, s.lines)
		if err := s.udp.Start(); err != nil {
			s.udp = nil
			s.shutdown()
			return nil, fmt.Errorf("failed to start UDP listener: %w", err)
		}
	}

	s.processor = collector.NewProcessor(s.buffer, collector.ProcessorConfig{
		Stream:  conf.Stream,
		LogType: conf.LogType,
	})
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, _ = errgroup.WithContext(ctx)
	s.group.Go(func() error {
		s.processor.Run(ctx, s.lines)
		return nil
	})
	return s, nil
}

// Store exposes the underlying store.
func (s *Sink) Store() *duckdb.Store { return s.store }

// TCPAddr returns the bound TCP address, or "" when disabled.
func (s *Sink) TCPAddr() string {
	if s.tcp == nil {
		return ""
	}
	return s.tcp.Addr()
}

// UDPAddr returns the bound UDP address, or "" when disabled.
func (s *Sink) UDPAddr() string {
	if s.udp == nil {
		return ""
	}
	return s.udp.Addr()
}

// APIAddr returns the bound HTTP API address.
func (s *Sink) APIAddr() string { return s.api.Addr() }

// Counts returns the documents parsed and the documents flushed to DuckDB.
func (s *Sink) Counts() (parsed, flushed int64) {
	parsed, _ = s.processor.Counts()
	_, flushed = s.buffer.Counts()
	return parsed, flushed
}

// Flush blocks until every document parsed so far has been written, or
// until ctx is done.
func (s *Sink) Flush(ctx context.Context) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		if len(s.lines) == 0 {
			parsed, flushed := s.Counts()
			if flushed >= parsed {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Stop shuts the listeners down first, lets the processor drain what was
// already received, flushes the buffer and closes the store.
func (s *Sink) Stop() {
	s.stopOnce.Do(s.shutdown)
}

func (s *Sink) shutdown() {
	if s.tcp != nil {
		s.tcp.Stop()
	}
	if s.udp != nil {
		s.udp.Stop()
	}
	if s.group != nil {
		close(s.lines)
		if err := s.group.Wait(); err != nil {
			log.Printf("sink: processor exited with error: %v", err)
		}
		s.cancel()
	}
	if s.api != nil {
		s.api.Stop()
	}
	if s.retention != nil {
		s.retention.Stop()
	}
	s.buffer.Stop()
	if err := s.store.Close(); err != nil {
		log.Printf("sink: close store: %v", err)
	}
}
