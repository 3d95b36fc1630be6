// Package forward streams log files line by line to a syslog collector.
package forward

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinytelemetry/pipecheck/internal/model"
	"github.com/tinytelemetry/pipecheck/internal/progress"
	"github.com/tinytelemetry/pipecheck/internal/syslogfmt"
	"github.com/tinytelemetry/pipecheck/internal/transport"
)

// ErrNoLogFiles is returned when the first listing finds nothing to send.
var ErrNoLogFiles = errors.New("forward: no log files found")

// HostMode selects the host written into lines that lack a syslog header.
type HostMode string

const (
	// HostModeFile uses the file name stem of the source file.
	HostModeFile HostMode = "file"
	// HostModeLocal uses the machine hostname for every line.
	HostModeLocal HostMode = "local"
)

// ParseHostMode accepts "file" (or empty) and "local".
func ParseHostMode(s string) (HostMode, error) {
	switch HostMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", HostModeFile:
		return HostModeFile, nil
	case HostModeLocal:
		return HostModeLocal, nil
	default:
		return "", fmt.Errorf("forward: unknown host mode %q (want file or local)", s)
	}
}

// Lister returns the files to forward. It is called before every pass.
type Lister interface {
	List() ([]model.LogFileRef, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func() ([]model.LogFileRef, error)

func (f ListerFunc) List() ([]model.LogFileRef, error) { return f() }

// Config controls pacing, looping and cleanup.
type Config struct {
	// Interval is slept after every send. Zero sends as fast as possible.
	Interval time.Duration
	// Loop repeats passes until no files remain.
	Loop bool
	// DeleteAfterSend removes every processed file at the end of a pass.
	DeleteAfterSend bool
	// PassDelay is slept between looped passes.
	PassDelay time.Duration
	HostMode  HostMode
}

// Stats summarizes a run.
type Stats struct {
	Passes     int
	Files      int
	LinesRead  int64 // every line read, blank ones included
	TotalLines int64 // non-blank lines formatted for sending
	Sent       int64
	Failed     int64
	Deleted    int
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Forwarder runs passes over the listed files. A Forwarder is single-threaded
// and owns its sender for the duration of Run.
type Forwarder struct {
	lister    Lister
	sender    transport.Sender
	formatter *syslogfmt.Formatter
	cfg       Config
	obs       progress.Observer
	sleep     SleepFunc
}

// Option customizes a Forwarder.
type Option func(*Forwarder)

// WithFormatter replaces the default formatter.
func WithFormatter(f *syslogfmt.Formatter) Option {
	return func(fw *Forwarder) { fw.formatter = f }
}

// WithObserver reports per-file line progress to obs.
func WithObserver(obs progress.Observer) Option {
	return func(fw *Forwarder) { fw.obs = obs }
}

// WithSleep replaces the sleep used for the send interval and pass delay.
func WithSleep(s SleepFunc) Option {
	return func(fw *Forwarder) { fw.sleep = s }
}

// New returns a Forwarder that sends the files from lister through sender.
func New(lister Lister, sender transport.Sender, cfg Config, opts ...Option) *Forwarder {
	if cfg.HostMode == "" {
		cfg.HostMode = HostModeFile
	}
	fw := &Forwarder{
		lister: lister,
		sender: sender,
		cfg:    cfg,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(fw)
	}
	if fw.formatter == nil {
		fw.formatter = syslogfmt.NewFormatter()
	}
	fw.obs = progress.Or(fw.obs)
	return fw
}

// Run forwards files until a single pass completes or, in loop mode, until a
// listing comes back empty. Send failures are counted and never end the run.
// Cancelling ctx stops the run and returns the stats so far with ctx.Err().
func (f *Forwarder) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	refs, err := f.lister.List()
	if err != nil {
		return stats, fmt.Errorf("forward: list files: %w", err)
	}
	if len(refs) == 0 {
		return stats, ErrNoLogFiles
	}

	for {
		stats.Passes++
		log.Printf("forward: pass %d: %d files to %s %s", stats.Passes, len(refs), f.sender.Protocol(), f.sender.Addr())

		processed, err := f.pass(ctx, refs, &stats)
		if f.cfg.DeleteAfterSend {
			stats.Deleted += deleteFiles(processed)
		}
		if err != nil {
			return stats, err
		}
		if !f.cfg.Loop {
			return stats, nil
		}

		refs, err = f.lister.List()
		if err != nil {
			return stats, fmt.Errorf("forward: list files: %w", err)
		}
		if len(refs) == 0 {
			log.Printf("forward: no log files remain after pass %d", stats.Passes)
			return stats, nil
		}
		if err := f.sleep(ctx, f.cfg.PassDelay); err != nil {
			return stats, err
		}
	}
}

// pass forwards each file in order and returns the paths that were read to the end.
func (f *Forwarder) pass(ctx context.Context, refs []model.LogFileRef, stats *Stats) ([]string, error) {
	processed := make([]string, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ok, err := f.sendFile(ctx, ref, stats)
		if ok {
			processed = append(processed, ref.Path)
		}
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// sendFile reports ok when the file was read to the end. A non-nil error
// means the run must stop.
func (f *Forwarder) sendFile(ctx context.Context, ref model.LogFileRef, stats *Stats) (bool, error) {
	total, err := CountLines(ref.Path)
	if err != nil {
		log.Printf("forward: skipping %s: %v", ref.Path, err)
		return false, nil
	}
	fh, err := os.Open(ref.Path)
	if err != nil {
		log.Printf("forward: skipping %s: %v", ref.Path, err)
		return false, nil
	}
	defer fh.Close()

	stats.Files++
	host := ref.Host
	if f.cfg.HostMode == HostModeLocal {
		host = ""
	}

	tracker := progress.Begin(f.obs, filepath.Base(ref.Path), progress.UnitLines, total)
	defer tracker.End()

	r := bufio.NewReader(fh)
	for {
		raw, readErr := r.ReadString('\n')
		if raw != "" {
			stats.LinesRead++
			tracker.Add(1)
			if err := f.sendLine(ctx, raw, host, tracker, stats); err != nil {
				return false, err
			}
		}
		if readErr == io.EOF {
			return true, nil
		}
		if readErr != nil {
			log.Printf("forward: read %s: %v", ref.Path, readErr)
			return false, nil
		}
	}
}

func (f *Forwarder) sendLine(ctx context.Context, raw, host string, tracker *progress.Tracker, stats *Stats) error {
	line, ok := f.formatter.Format(raw, host)
	if !ok {
		return nil
	}
	stats.TotalLines++
	if err := f.sender.Send(line.String()); err != nil {
		stats.Failed++
		tracker.Fail()
		log.Printf("forward: send failed: %v", err)
	} else {
		stats.Sent++
	}
	if f.cfg.Interval > 0 {
		return f.sleep(ctx, f.cfg.Interval)
	}
	return nil
}

func deleteFiles(paths []string) int {
	deleted := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			log.Printf("forward: deleted %s", p)
			deleted++
		case errors.Is(err, os.ErrNotExist):
			deleted++
		default:
			log.Printf("forward: delete %s: %v", p, err)
		}
	}
	return deleted
}

// CountLines returns the number of lines in path, counting a final line
// without a trailing newline.
func CountLines(path string) (int64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	var (
		n    int64
		last byte = '\n'
		buf       = make([]byte, 32*1024)
	)
	for {
		c, err := fh.Read(buf)
		for _, b := range buf[:c] {
			if b == '\n' {
				n++
			}
		}
		if c > 0 {
			last = buf[c-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		n++
	}
	return n, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
