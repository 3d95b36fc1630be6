package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/tinytelemetry/pipecheck/internal/cli"
	"github.com/tinytelemetry/pipecheck/internal/config"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	loader := config.NewLoader("local-sink")
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
			Title:     "pipecheck local-sink - Local Syslog Collector and Search API",
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
			GoVersion: goVersion,
		})
		return
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
