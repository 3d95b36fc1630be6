package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/pipecheck/internal/cli"
	"github.com/tinytelemetry/pipecheck/internal/config"
	"github.com/tinytelemetry/pipecheck/internal/datastream"
	"github.com/tinytelemetry/pipecheck/internal/duckdb"
	"github.com/tinytelemetry/pipecheck/internal/model"
	"github.com/tinytelemetry/pipecheck/internal/sink"
)

// runServer starts the listeners and the HTTP API and blocks until signaled.
func runServer(cfg config.Config) error {
	cleanupLogger := cli.ConfigureLogger(cfg.LogFile, cfg.Debug)
	defer cleanupLogger()

	stream := cfg.Sink.Stream
	if stream == "" {
		stream = cfg.StreamName()
	}

	// Install the template the setup tool would, so a fresh database
	// accepts writes to the configured stream.
	spec := datastream.Spec{Type: cfg.Stream.Type, Dataset: cfg.Stream.Dataset, LogsDB: cfg.Stream.LogsDB}
	body, err := datastream.TemplateBody(spec)
	if err != nil {
		return err
	}

	s, err := sink.Start(sink.Config{
		TCPAddr:    cfg.Sink.TCPAddr,
		UDPAddr:    cfg.Sink.UDPAddr,
		APIAddr:    cfg.Sink.APIAddr,
		DBPath:     cfg.Sink.DBPath,
		Stream:     stream,
		LogType:    cfg.Forward.LogType,
		AutoCreate: cfg.Sink.AutoCreate,
		Templates: []model.IndexTemplateRecord{{
			Name:          spec.TemplateName(),
			IndexPatterns: []string{spec.IndexPattern()},
			Priority:      datastream.TemplatePriority,
			Body:          body,
		}},
		MaxLineSize: cfg.Sink.MaxLineSize,
		Insert: duckdb.InsertBufferConfig{
			BatchSize:      cfg.Sink.InsertBatchSize,
			FlushInterval:  cfg.Sink.InsertFlushInterval,
			FlushQueueSize: cfg.Sink.InsertFlushQueue,
		},
		Retention: cfg.Sink.Retention,
	})
	if err != nil {
		return err
	}
	defer s.Stop()

	ctx, stop := cli.SignalContext(shutdownGrace)
	defer stop()

	printStartupBanner(cfg, s, stream)

	<-ctx.Done()
	parsed, flushed := s.Counts()
	log.Printf("local-sink: shutting down, %d documents received, %d written", parsed, flushed)
	return nil
}

func printStartupBanner(cfg config.Config, s *sink.Sink, stream string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	listener := func(name, addr string) string {
		if addr == "" {
			return fmt.Sprintf("    %s  %-14s %s", dot, name, dim.Render("disabled"))
		}
		return fmt.Sprintf("    %s  %-14s %s", check, name, cyan.Render(addr))
	}

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{
		"",
		cyan.Bold(true).Render("    pipecheck local sink"),
		"    " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Gateway"),
		"",
		listener("HTTP API", s.APIAddr()),
		listener("Syslog TCP", s.TCPAddr()),
		listener("Syslog UDP", s.UDPAddr()),
		"",
		bold.Render("    Storage"),
		"",
	}

	if cfg.Sink.DBPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Storage        %s", check, dim.Render(shortenPath(cfg.Sink.DBPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Storage        %s", check, dim.Render("in memory")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Schema         %s", check, dim.Render(fmt.Sprintf("v%d", s.Store().SchemaVersion()))))
	lines = append(lines, fmt.Sprintf("    %s  Data Stream    %s", check, dim.Render(stream)))
	if cfg.Sink.Retention > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", check, dim.Render(cfg.Sink.Retention.String())))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, "", bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
