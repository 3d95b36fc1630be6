package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/tinytelemetry/pipecheck/internal/cli"
	"github.com/tinytelemetry/pipecheck/internal/config"
	"github.com/tinytelemetry/pipecheck/internal/elastic"
	"github.com/tinytelemetry/pipecheck/internal/locate"
	"github.com/tinytelemetry/pipecheck/internal/model"
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
	loader := config.NewLoader("count-logs")
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
			Title:     "pipecheck count-logs - Ingestion Counter",
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

	client, err := elastic.New(elastic.Config{
		Endpoint: cfg.Elastic.Endpoint,
		Port:     cfg.Elastic.Port,
		APIKey:   cfg.Elastic.APIKey,
	})
	if err != nil {
		return err
	}
	query := elastic.Query{Minutes: cfg.Watch.Minutes, Custom: cfg.Watch.Query}
	stream := cfg.StreamName()

	if cfg.Watch.Enabled {
		return watch(cfg, client, query, stream)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	count, err := client.Count(ctx, stream, query)
	if err != nil {
		return err
	}
	printCount(cfg, stream, count)
	return nil
}

func watch(cfg config.Config, client *elastic.Client, query elastic.Query, stream string) error {
	ctx, stop := cli.SignalContext(shutdownGrace)
	defer stop()

	policy := verify.Policy{
		Interval:      cfg.Watch.Interval,
		ExpectedCount: cfg.Watch.Expected,
		NoChange:      cfg.Watch.NoChange,
		Timeout:       cfg.Watch.Timeout,
	}
	if cfg.Watch.ExpectFromLogs && policy.ExpectedCount == 0 {
		refs, err := locate.Locate(cfg.Forward.LogDir, model.ParseLogType(cfg.Forward.LogType))
		if err != nil {
			return err
		}
		policy.ExpectedCount = verify.ExpectedCount(refs)
		fmt.Printf("Expecting %d log lines from %d files in %s\n", policy.ExpectedCount, len(refs), cfg.Forward.LogDir)
	}

	fmt.Printf("Watching log count for data stream: %s\n", stream)
	fmt.Println("Press Ctrl+C to stop...")

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	counter := verify.CounterFunc(func(ctx context.Context, stream string) (int64, error) {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return client.Count(ctx, stream, query)
	})
	w := verify.NewWatcher(counter, policy, verify.WithTickFunc(func(t verify.Tick) {
		switch {
		case t.Err != nil:
			fmt.Printf("Count failed: %v\n", t.Err)
		case t.N == 1:
			fmt.Printf("Current log count: %d\n", t.Count)
		default:
			fmt.Printf("Current log count: %d %s\n", t.Count, dim.Render(fmt.Sprintf("(+%d new)", max(t.Delta, 0))))
		}
	}))

	res, err := w.Watch(ctx, stream)
	if err != nil {
		return err
	}
	if res.Reason == verify.ReasonCanceled {
		fmt.Println("\nWatch mode stopped.")
	}
	fmt.Printf("Final log count: %d (%s after %s)\n", res.FinalCount, res.Reason, res.Elapsed.Round(time.Second))
	return nil
}

func printCount(cfg config.Config, stream string, count int64) {
	bold := lipgloss.NewStyle().Bold(true)
	fmt.Printf("Log count for '%s': %s\n", stream, bold.Render(fmt.Sprint(count)))
	if cfg.Watch.Minutes > 0 {
		fmt.Printf("(Limited to logs from the last %d minutes)\n", cfg.Watch.Minutes)
	}

	fmt.Println("\nData stream info:")
	fmt.Printf("  Type:      %s\n", cfg.Stream.Type)
	fmt.Printf("  Dataset:   %s\n", cfg.Stream.Dataset)
	fmt.Printf("  Namespace: %s\n", cfg.Stream.Namespace)

	if count > 0 {
		return
	}
	fmt.Println("\nPossible reasons for 0 count:")
	fmt.Println("1. The data stream doesn't exist yet (will be created when logs are first sent)")
	fmt.Println("2. No logs have been sent yet")
	fmt.Println("3. Logs were sent outside the specified time range")
	fmt.Println("4. The collector configuration is incorrect")
	fmt.Println("\nTry the following:")
	fmt.Println("- Verify containers are running: docker compose ps")
	fmt.Println("- Check collector logs: docker compose logs logstash")
	fmt.Println("- Check log-sender logs: docker compose logs log-sender")
	fmt.Println("- Use --watch to monitor as logs come in")
}
