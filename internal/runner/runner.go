// Package runner drives an end-to-end pipeline test: it provisions the data
// stream, starts the containers, waits for ingestion and reports the result.
package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/pipecheck/internal/datastream"
	"github.com/tinytelemetry/pipecheck/internal/model"
	"github.com/tinytelemetry/pipecheck/internal/verify"
)

const (
	ServiceCollector = "logstash"
	ServiceSender    = "log-sender"

	logTail        = 20
	cleanupTimeout = 2 * time.Minute
)

// Backend is the store under test.
type Backend interface {
	Provision(ctx context.Context, spec datastream.Spec) (datastream.Result, error)
	Count(ctx context.Context, stream string) (int64, error)
	Endpoint() string
}

// DialFunc connects to the store using the variables read from the .env file.
type DialFunc func(env map[string]string) (Backend, error)

// Options selects what a run tests.
type Options struct {
	LogType    model.LogType
	LogsDB     bool
	NoCleanup  bool
	Debug      bool
	InitWait   time.Duration
	SendWait   time.Duration
	Watch      verify.Policy
	ReportPath string
	// Spec is the base stream spec; its namespace is replaced per run.
	Spec datastream.Spec
}

// Outcome is the result of a run that got as far as counting.
type Outcome struct {
	Namespace  string
	Stream     string
	FinalCount int64
	Watch      verify.Result
	Passed     bool
}

// Runner executes one pipeline test.
type Runner struct {
	orch      Orchestrator
	env       *EnvFile
	dial      DialFunc
	opts      Options
	out       io.Writer
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	watchOpts []verify.Option

	info, ok, warn, fail lipgloss.Style
	box                  lipgloss.Style
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSleep replaces the wait between stages.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

// WithWatchOptions passes options to the count watcher.
func WithWatchOptions(opts ...verify.Option) Option {
	return func(r *Runner) { r.watchOpts = append(r.watchOpts, opts...) }
}

// New returns a Runner writing progress to out.
func New(orch Orchestrator, env *EnvFile, dial DialFunc, opts Options, out io.Writer, options ...Option) *Runner {
	r := &Runner{
		orch:  orch,
		env:   env,
		dial:  dial,
		opts:  opts,
		out:   out,
		sleep: sleepContext,
		now:   time.Now,
		info:  lipgloss.NewStyle(),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1),
	}
	for _, o := range options {
		o(r)
	}
	if r.opts.ReportPath == "" {
		r.opts.ReportPath = "test_report.md"
	}
	return r
}

func (r *Runner) printf(style lipgloss.Style, format string, args ...any) {
	fmt.Fprintln(r.out, style.Render(fmt.Sprintf(format, args...)))
}

// Run performs the test. An error means the run could not complete; a
// completed run that ingested nothing returns an Outcome with Passed false.
// Unless NoCleanup is set, the containers are stopped and the .env file is
// restored on every exit path, cancellation included.
func (r *Runner) Run(ctx context.Context) (out Outcome, err error) {
	logType := r.opts.LogType
	if logType == "" {
		logType = model.LogTypeAll
	}
	r.printf(r.warn, "Starting test of Logstash Syslog Server to Elasticsearch setup...")
	r.printf(r.info, "Using log type: %s", logType)
	r.printf(r.info, "LogsDB mode: %t", r.opts.LogsDB)

	r.printf(r.info, "Checking prerequisites...")
	if err := r.orch.Check(ctx); err != nil {
		return out, err
	}

	r.printf(r.info, "Checking environment variables...")
	created, err := r.env.Ensure()
	if err != nil {
		return out, err
	}
	if created {
		r.printf(r.warn, "Created %s from %s; update it with real credentials before the test can pass.", r.env.Path, r.env.examplePath())
	}
	if err := r.env.Backup(); err != nil {
		return out, err
	}

	started := false
	defer func() {
		r.cleanup(started)
	}()

	if _, err := r.env.Check(RequiredEnv); err != nil {
		return out, fmt.Errorf("required Elasticsearch settings not found: %w", err)
	}

	out.Namespace = datastream.Namespace(logType, r.opts.LogsDB)
	r.printf(r.ok, "Using namespace: %s", out.Namespace)
	update := map[string]string{
		"ES_DATA_STREAM_NAMESPACE": out.Namespace,
		"LOG_TYPE":                 logType.String(),
	}
	if err := r.env.Update(update); err != nil {
		return out, err
	}
	vars, err := r.env.Read()
	if err != nil {
		return out, err
	}
	if r.opts.Debug {
		r.debugEnv(vars)
	}

	backend, err := r.dial(vars)
	if err != nil {
		return out, err
	}

	spec := r.opts.Spec
	if spec.Type == "" {
		spec = datastream.DefaultSpec()
	}
	spec.Namespace = out.Namespace
	spec.LogsDB = r.opts.LogsDB
	out.Stream = spec.StreamName()

	r.printf(r.info, "Setting up Elasticsearch data stream with namespace %s...", out.Namespace)
	if _, err := backend.Provision(ctx, spec); err != nil {
		return out, fmt.Errorf("setting up data stream: %w", err)
	}

	r.printf(r.info, "Starting containers...")
	started = true
	if err := r.orch.Up(ctx, update); err != nil {
		return out, fmt.Errorf("starting containers: %w", err)
	}

	r.printf(r.info, "Waiting for %s to initialize (%s)...", ServiceCollector, r.opts.InitWait)
	if err := r.sleep(ctx, r.opts.InitWait); err != nil {
		return out, err
	}
	for _, svc := range []string{ServiceCollector, ServiceSender} {
		running, err := r.orch.Running(ctx, svc)
		if err != nil {
			return out, err
		}
		if !running {
			if logs, err := r.orch.Logs(ctx, svc, 0); err == nil {
				fmt.Fprintln(r.out, logs)
			}
			return out, fmt.Errorf("%s container is not running", svc)
		}
	}
	if env, err := r.orch.Exec(ctx, ServiceSender, "env"); err == nil {
		for _, line := range strings.Split(env, "\n") {
			if strings.HasPrefix(line, "LOG_TYPE=") {
				r.printf(r.info, "%s environment: %s", ServiceSender, line)
			}
		}
	}

	fmt.Fprintln(r.out, r.box.Render(strings.Join([]string{
		"ELASTICSEARCH QUERY INFORMATION",
		"Elasticsearch URL:  " + backend.Endpoint(),
		"Data stream:        " + out.Stream,
		fmt.Sprintf("Using LogsDB mode:  %t", r.opts.LogsDB),
		"Log type:           " + logType.String(),
		"Namespace:          " + out.Namespace + " (includes log type)",
	}, "\n")))

	r.printf(r.info, "Waiting for %s to start sending logs (%s)...", ServiceSender, r.opts.SendWait)
	if err := r.sleep(ctx, r.opts.SendWait); err != nil {
		return out, err
	}

	r.printf(r.info, "Monitoring log count until ingestion is complete (%s with no new logs)...", r.opts.Watch.NoChange)
	watchOpts := append([]verify.Option{verify.WithTickFunc(r.printTick)}, r.watchOpts...)
	watcher := verify.NewWatcher(verify.CounterFunc(backend.Count), r.opts.Watch, watchOpts...)
	out.Watch, err = watcher.Watch(ctx, out.Stream)
	if err != nil {
		return out, err
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	r.printf(r.info, "Performing final log count check...")
	final, err := backend.Count(ctx, out.Stream)
	if err != nil {
		r.printf(r.warn, "Final count failed: %v", err)
		final = 0
	}
	out.FinalCount = final
	out.Passed = final > 0

	result := "FAILED"
	if out.Passed {
		result = "PASSED"
		r.printf(r.ok, "Test PASSED: Successfully ingested %d logs into Elasticsearch", final)
	} else {
		r.printf(r.fail, "Test FAILED: No logs were ingested into Elasticsearch")
	}

	if err := r.writeReport(ctx, out, result, logType, backend.Endpoint()); err != nil {
		r.printf(r.warn, "Writing report failed: %v", err)
	} else {
		r.printf(r.info, "Test report generated: %s", r.opts.ReportPath)
	}
	return out, nil
}

func (r *Runner) printTick(t verify.Tick) {
	if t.Err != nil {
		r.printf(r.warn, "Count failed: %v", t.Err)
		return
	}
	if t.Delta > 0 {
		r.printf(r.info, "Current log count: %d (+%d new)", t.Count, t.Delta)
		return
	}
	r.printf(r.info, "Current log count: %d", t.Count)
}

func (r *Runner) debugEnv(vars map[string]string) {
	for k, v := range vars {
		if !strings.HasPrefix(k, "ES_") && !strings.HasPrefix(k, "ELASTIC_") && k != "LOG_TYPE" {
			continue
		}
		if strings.Contains(k, "KEY") {
			v = "******"
		}
		r.printf(r.info, "  %s=%s", k, v)
	}
}

func (r *Runner) writeReport(ctx context.Context, out Outcome, result string, logType model.LogType, endpoint string) error {
	rep := Report{
		Time:       r.now(),
		Result:     result,
		Stream:     out.Stream,
		LogsDB:     r.opts.LogsDB,
		LogType:    logType.String(),
		FinalCount: out.FinalCount,
		Versions:   r.orch.Versions(ctx),
		Endpoint:   endpoint,
		WatchSummary: fmt.Sprintf("%s after %s (%d polls)",
			out.Watch.Reason, out.Watch.Elapsed.Round(time.Second), out.Watch.Ticks),
	}
	rep.Status = "No containers running"
	if s, err := r.orch.Status(ctx); err == nil && s != "" {
		rep.Status = s
	}
	for _, svc := range []struct{ name, title string }{
		{ServiceCollector, "Logstash Logs"},
		{ServiceSender, "Log Sender Logs"},
	} {
		lines := "No logs available"
		if l, err := r.orch.Logs(ctx, svc.name, logTail); err == nil && l != "" {
			lines = l
		}
		rep.ServiceLogs = append(rep.ServiceLogs, ServiceLog{Title: svc.title, Lines: lines})
	}
	return rep.WriteFile(r.opts.ReportPath)
}

func (r *Runner) cleanup(started bool) {
	if r.opts.NoCleanup {
		r.printf(r.warn, "Cleanup skipped (--no-cleanup). Containers left running and %s not restored.", r.env.Path)
		return
	}
	r.printf(r.info, "Cleaning up...")
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if started {
		if err := r.orch.Down(ctx); err != nil {
			r.printf(r.warn, "Stopping containers failed: %v", err)
		}
	}
	if restored, err := r.env.Restore(); err != nil {
		r.printf(r.warn, "%v", err)
	} else if restored {
		r.printf(r.info, "Restored %s from backup", r.env.Path)
	}
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

// ExitCode maps a run result to the process exit status.
func ExitCode(out Outcome, err error) int {
	if err != nil || !out.Passed {
		return 1
	}
	return 0
}
