package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/tinytelemetry/pipecheck/internal/archive"
	"github.com/tinytelemetry/pipecheck/internal/cli"
	"github.com/tinytelemetry/pipecheck/internal/config"
	"github.com/tinytelemetry/pipecheck/internal/model"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	loader := config.NewLoader("fetch-logs")
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
			Title:     "pipecheck fetch-logs - Sample Log Downloader",
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

	logType := model.ParseLogType(cfg.Forward.LogType)
	urls, err := archive.URLs(logType)
	if err != nil {
		return err
	}
	outDir := cfg.Fetch.OutputDir
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	fmt.Printf("Current contents of %s:\n", outDir)
	listDir(os.Stdout, outDir, false)
	fmt.Printf("Selected log type: %s\n", logType)
	fmt.Printf("Output directory: %s\n", outDir)
	fmt.Printf("URLs to download: %d\n", len(urls))

	fetcher := archive.NewFetcher(cli.ProgressObserver(os.Stdout))
	var pending []string
	var downloadErrs []error
	for _, u := range urls {
		res, err := fetcher.Fetch(ctx, u, outDir)
		if err != nil {
			log.Printf("fetch-logs: %v", err)
			downloadErrs = append(downloadErrs, err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if res.NeedsExtract() {
			pending = append(pending, res.Path)
		}
	}

	if len(pending) == 0 {
		fmt.Println("\nNo new files were downloaded.")
	} else {
		fmt.Println("\nExtracting files...")
		err := archive.ExtractAll(ctx, pending, outDir, cfg.Fetch.Workers, cfg.Fetch.RemoveArchives)
		if err != nil {
			log.Printf("fetch-logs: extraction finished with errors: %v", err)
			downloadErrs = append(downloadErrs, err)
		} else {
			fmt.Println("All files have been downloaded and extracted to the output directory.")
		}
	}

	fmt.Println("\nFinal contents of output directory:")
	listDir(os.Stdout, outDir, true)
	return errors.Join(downloadErrs...)
}

func listDir(w io.Writer, dir string, sizes bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(w, "  %s\n", dim.Render(err.Error()))
		return
	}
	for _, e := range entries {
		switch {
		case e.IsDir() && sizes:
			n := 0
			if sub, err := os.ReadDir(filepath.Join(dir, e.Name())); err == nil {
				n = len(sub)
			}
			fmt.Fprintf(w, "  DIR: %s %s\n", e.Name(), dim.Render(fmt.Sprintf("(%d items)", n)))
		case e.IsDir():
			fmt.Fprintf(w, "  DIR: %s\n", e.Name())
		case sizes:
			var size int64
			if info, err := e.Info(); err == nil {
				size = info.Size()
			}
			fmt.Fprintf(w, "  FILE: %s %s\n", e.Name(), dim.Render(fmt.Sprintf("(%d bytes)", size)))
		default:
			fmt.Fprintf(w, "  FILE: %s\n", e.Name())
		}
	}
}
