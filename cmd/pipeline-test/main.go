package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/tinytelemetry/pipecheck/internal/cli"
	"github.com/tinytelemetry/pipecheck/internal/config"
	"github.com/tinytelemetry/pipecheck/internal/datastream"
	"github.com/tinytelemetry/pipecheck/internal/model"
	"github.com/tinytelemetry/pipecheck/internal/runner"
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
	loader := config.NewLoader("pipeline-test")
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
			Title:     "pipecheck pipeline-test - End-to-End Ingestion Test",
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
			GoVersion: goVersion,
		})
		return
	}

	os.Exit(run(cfg))
}

func run(cfg config.Config) int {
	cleanupLogger := cli.ConfigureLogger(cfg.LogFile, cfg.Debug)
	defer cleanupLogger()

	spec := datastream.Spec{
		Type:    cfg.Stream.Type,
		Dataset: cfg.Stream.Dataset,
	}
	if cfg.Stream.MappingsFile != "" {
		m, err := datastream.LoadMappings(cfg.Stream.MappingsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		spec.Mappings = m
	}

	watch := config.PipelineWatch()
	r := runner.New(
		runner.NewCompose(cfg.Runner.ComposeFile, cfg.Runner.EnvFile),
		&runner.EnvFile{Path: cfg.Runner.EnvFile},
		runner.DialElastic,
		runner.Options{
			LogType:   model.ParseLogType(cfg.Forward.LogType),
			LogsDB:    cfg.Stream.LogsDB,
			NoCleanup: cfg.Runner.NoCleanup,
			Debug:     cfg.Debug,
			InitWait:  cfg.Runner.InitWait,
			SendWait:  cfg.Runner.SendWait,
			Watch: verify.Policy{
				Interval: watch.Interval,
				NoChange: watch.NoChange,
				Timeout:  watch.Timeout,
			},
			ReportPath: cfg.Runner.ReportPath,
			Spec:       spec,
		},
		os.Stdout,
	)

	ctx, stop := cli.SignalContext(shutdownGrace)
	defer stop()

	out, err := r.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return runner.ExitCode(out, err)
}
