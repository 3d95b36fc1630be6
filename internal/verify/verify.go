// Package verify polls a document count until ingestion looks finished.
package verify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

// Counter returns the number of documents in a stream, 0 when it does not exist.
type Counter interface {
	Count(ctx context.Context, stream string) (int64, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context, stream string) (int64, error)

func (f CounterFunc) Count(ctx context.Context, stream string) (int64, error) {
	return f(ctx, stream)
}

// Clock is the time source of a Watcher.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Reason says why a watch ended.
type Reason string

const (
	ReasonReachedTarget Reason = "reached-target"
	ReasonNoChange      Reason = "no-change"
	ReasonTimeout       Reason = "timeout"
	ReasonCanceled      Reason = "canceled"
)

// Policy holds the stop conditions. The first one to trigger wins. A zero
// ExpectedCount or NoChange disables that condition. Timeout is always
// active; zero means the default watch timeout.
type Policy struct {
	Interval      time.Duration
	ExpectedCount int64
	NoChange      time.Duration
	Timeout       time.Duration
}

// Result is the outcome of a watch.
type Result struct {
	FinalCount int64
	Reason     Reason
	Elapsed    time.Duration
	Ticks      int
}

// Tick is reported after every poll.
type Tick struct {
	N       int
	Count   int64
	Delta   int64
	Elapsed time.Duration
	Err     error
}

// Watcher polls a Counter on a fixed interval.
type Watcher struct {
	counter Counter
	policy  Policy
	clock   Clock
	onTick  func(Tick)
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(w *Watcher) { w.clock = c }
}

// WithTickFunc calls fn after every poll.
func WithTickFunc(fn func(Tick)) Option {
	return func(w *Watcher) { w.onTick = fn }
}

// NewWatcher returns a Watcher. A zero Interval or Timeout uses the default.
func NewWatcher(counter Counter, policy Policy, opts ...Option) *Watcher {
	if policy.Interval <= 0 {
		policy.Interval = model.DefaultWatchInterval
	}
	if policy.Timeout <= 0 {
		policy.Timeout = model.DefaultWatchTimeout
	}
	w := &Watcher{counter: counter, policy: policy, clock: realClock{}}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch polls stream until a stop condition triggers or ctx is cancelled.
// Count errors are logged and treated as an unchanged count. Cancellation is
// not an error: the last observed count is returned with ReasonCanceled.
func (w *Watcher) Watch(ctx context.Context, stream string) (Result, error) {
	var (
		p          = w.policy
		start      = w.clock.Now()
		lastChange = start
		count      int64
		res        Result
	)

	for {
		if ctx.Err() != nil {
			res.Reason = ReasonCanceled
			break
		}

		n, err := w.counter.Count(ctx, stream)
		res.Ticks++
		now := w.clock.Now()
		elapsed := now.Sub(start)
		if err != nil {
			if ctx.Err() != nil {
				res.Reason = ReasonCanceled
				break
			}
			log.Printf("verify: count %s: %v", stream, err)
			n = count
		}
		delta := n - count
		if n > count {
			lastChange = now
		}
		count = n
		if w.onTick != nil {
			w.onTick(Tick{N: res.Ticks, Count: count, Delta: delta, Elapsed: elapsed, Err: err})
		}

		if p.ExpectedCount > 0 && count >= p.ExpectedCount {
			res.Reason = ReasonReachedTarget
			break
		}
		if p.NoChange > 0 && count > 0 && now.Sub(lastChange) >= p.NoChange {
			res.Reason = ReasonNoChange
			break
		}
		if elapsed >= p.Timeout {
			res.Reason = ReasonTimeout
			break
		}

		wait := p.Interval
		if remaining := p.Timeout - elapsed; remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
		case <-w.clock.After(wait):
		}
	}

	res.FinalCount = count
	res.Elapsed = w.clock.Now().Sub(start)
	return res, nil
}

// ExpectedCount returns the number of non-blank lines across refs, which is
// the number of documents a complete forwarding pass should produce. Files
// that cannot be read are logged and skipped, as the forwarder skips them.
func ExpectedCount(refs []model.LogFileRef) int64 {
	var total int64
	for _, ref := range refs {
		n, err := nonBlankLines(ref.Path)
		if err != nil {
			log.Printf("verify: skipping %s: %v", ref.Path, err)
			continue
		}
		total += n
	}
	return total
}

func nonBlankLines(path string) (int64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	var n int64
	r := bufio.NewReader(fh)
	for {
		line, err := r.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			n++
		}
		if err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, fmt.Errorf("read %s: %w", path, err)
		}
	}
}
