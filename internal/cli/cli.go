// Package cli holds the process plumbing shared by the pipecheck binaries:
// version output, log setup and signal handling.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tinytelemetry/pipecheck/internal/progress"
)

// Build describes a binary. The fields are set from ldflags variables.
type Build struct {
	Title     string
	Version   string
	Commit    string
	BuildTime string
	GoVersion string
}

// PrintVersion writes the -version output.
func PrintVersion(w io.Writer, b Build) {
	fmt.Fprintf(w, "%s\n", b.Title)
	fmt.Fprintf(w, "  Version:    %s\n", b.Version)
	fmt.Fprintf(w, "  Commit:     %s\n", b.Commit)
	fmt.Fprintf(w, "  Built:      %s\n", b.BuildTime)
	fmt.Fprintf(w, "  Go version: %s\n", b.GoVersion)
}

// ConfigureLogger sets the standard logger's flags and, when path is set,
// appends log output to that file. The returned func closes the file.
func ConfigureLogger(path string, debug bool) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if debug {
		log.SetFlags(log.Flags() | log.Lshortfile)
	}
	if path == "" {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.SetOutput(os.Stderr)
			log.Printf("cli: cannot create log directory %s: %v", dir, err)
			return func() {}
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Printf("cli: cannot open log file %s: %v", path, err)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}
}

// SignalContext returns a context canceled on SIGINT or SIGTERM. A second
// signal, or grace elapsing after the first, exits the process with status 1.
func SignalContext(grace time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(grace)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nForce shutdown.")
		case <-deadline.C:
			fmt.Fprintln(os.Stderr, "Shutdown timed out, forcing exit.")
		case <-done:
			return
		}
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	}
}

// ProgressObserver draws progress bars when f is a terminal and logs
// progress in tenths otherwise.
func ProgressObserver(f *os.File) progress.Observer {
	if IsTerminal(f) {
		return progress.NewConsole(f)
	}
	return progress.NewLogger(nil)
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
