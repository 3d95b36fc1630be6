package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/tinytelemetry/pipecheck/internal/cli"
	"github.com/tinytelemetry/pipecheck/internal/config"
	"github.com/tinytelemetry/pipecheck/internal/forward"
	"github.com/tinytelemetry/pipecheck/internal/locate"
	"github.com/tinytelemetry/pipecheck/internal/model"
	"github.com/tinytelemetry/pipecheck/internal/transport"
	"github.com/tinytelemetry/pipecheck/internal/verify"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	loader := config.NewLoader("log-sender")
	bindFlags(loader)

	cfg, err := loader.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if loader.ShowVersion() {
		cli.PrintVersion(os.Stdout, cli.Build{
			Title:     "pipecheck log-sender - Syslog Forwarder",
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
			GoVersion: goVersion,
		})
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	cleanupLogger := cli.ConfigureLogger(cfg.LogFile, cfg.Debug)
	defer cleanupLogger()

	ctx, stop := cli.SignalContext(shutdownGrace)
	defer stop()

	protocol, err := transport.ParseProtocol(cfg.Collector.Protocol)
	if err != nil {
		return err
	}
	hostMode, err := forward.ParseHostMode(cfg.Forward.HostMode)
	if err != nil {
		return err
	}

	finder := locate.Finder{Root: cfg.Forward.LogDir, Type: model.ParseLogType(cfg.Forward.LogType)}
	refs, err := finder.List()
	if err != nil {
		return err
	}
	log.Printf("log-sender: found %d unique log files to process in %s", len(refs), cfg.Forward.LogDir)
	if !finder.Type.IsAll() {
		log.Printf("log-sender: filtered to log type: %s", finder.Type)
	}
	for _, ref := range refs {
		log.Printf("log-sender:   - %s", ref.Path)
	}
	if cfg.Debug {
		log.Printf("log-sender: %d non-blank lines to send", verify.ExpectedCount(refs))
	}

	sender, err := transport.Dial(ctx, transport.Config{
		Host:        cfg.Collector.Host,
		Port:        cfg.Collector.Port,
		Protocol:    protocol,
		DialTimeout: cfg.Collector.DialTimeout,
		SendTimeout: cfg.Collector.SendTimeout,
	})
	if err != nil {
		return err
	}
	defer sender.Close()
	log.Printf("log-sender: sending to %s via %s", sender.Addr(), sender.Protocol())

	fw := forward.New(finder, sender, forward.Config{
		Interval:        cfg.Forward.Interval,
		Loop:            cfg.Forward.Loop,
		DeleteAfterSend: cfg.Forward.DeleteAfterSend,
		PassDelay:       cfg.Forward.PassDelay,
		HostMode:        hostMode,
	}, forward.WithObserver(cli.ProgressObserver(os.Stdout)))

	stats, err := fw.Run(ctx)
	log.Printf("log-sender: sent %d of %d log lines (%d failed, %d files, %d passes, %d deleted)",
		stats.Sent, stats.TotalLines, stats.Failed, stats.Files, stats.Passes, stats.Deleted)
	if errors.Is(err, forward.ErrNoLogFiles) {
		return fmt.Errorf("no log files found in %s", cfg.Forward.LogDir)
	}
	if errors.Is(err, context.Canceled) {
		log.Printf("log-sender: interrupted")
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("log-sender: log sending completed")
	return nil
}
