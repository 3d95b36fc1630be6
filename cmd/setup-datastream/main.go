package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/tinytelemetry/pipecheck/internal/cli"
	"github.com/tinytelemetry/pipecheck/internal/config"
	"github.com/tinytelemetry/pipecheck/internal/datastream"
	"github.com/tinytelemetry/pipecheck/internal/elastic"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	loader := config.NewLoader("setup-datastream")
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
			Title:     "pipecheck setup-datastream - Data Stream Provisioning",
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
			GoVersion: goVersion,
		})
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render("Error:"), err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	cleanupLogger := cli.ConfigureLogger(cfg.LogFile, cfg.Debug)
	defer cleanupLogger()

	spec := datastream.Spec{
		Type:      cfg.Stream.Type,
		Dataset:   cfg.Stream.Dataset,
		Namespace: cfg.Stream.Namespace,
		LogsDB:    cfg.Stream.LogsDB,
	}
	if cfg.Stream.MappingsFile != "" {
		m, err := datastream.LoadMappings(cfg.Stream.MappingsFile)
		if err != nil {
			return err
		}
		spec.Mappings = m
	}

	client, err := elastic.New(elastic.Config{
		Endpoint: cfg.Elastic.Endpoint,
		Port:     cfg.Elastic.Port,
		APIKey:   cfg.Elastic.APIKey,
	})
	if err != nil {
		return err
	}
	if cfg.Debug {
		fmt.Printf("Elasticsearch endpoint: %s\n", client.Endpoint())
		fmt.Println("API key: ******** (masked)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to Elasticsearch: %w", err)
	}

	fmt.Printf("Setting up data stream: %s\n", spec.StreamName())
	fmt.Printf("Using index pattern: %s\n", spec.IndexPattern())
	if spec.LogsDB {
		fmt.Println("LogsDB mode is enabled for this data stream")
	}

	res, err := datastream.NewProvisioner(client).Provision(ctx, spec)
	if err != nil {
		return err
	}
	if res.StillPresent {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("3")).
			Render("Warning: Could not completely delete the existing data stream."))
	}

	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("Setup completed successfully!"))
	fmt.Println("The data stream will be created automatically when the first log entry is ingested.")
	fmt.Printf("Data stream name: %s\n", res.Stream)
	return nil
}
