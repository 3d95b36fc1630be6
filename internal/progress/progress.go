// Package progress carries progress events from long running stages (downloads,
// file forwarding) to a renderer chosen by the binary.
package progress

import "sync"

// Unit names what Done and Total count.
type Unit string

const (
	UnitBytes Unit = "bytes"
	UnitLines Unit = "lines"
)

// Kind is the lifecycle position of an Event.
type Kind int

const (
	KindBegin Kind = iota
	KindAdvance
	KindEnd
)

// Event reports progress of one named task.
type Event struct {
	Kind  Kind
	Task  string
	Unit  Unit
	Done  int64
	Total int64 // <= 0 when unknown
	// Failed counts units that were processed but not delivered.
	Failed int64
}

// Fraction returns Done/Total clamped to [0,1], or 0 when Total is unknown.
func (e Event) Fraction() float64 {
	if e.Total <= 0 {
		return 0
	}
	f := float64(e.Done) / float64(e.Total)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// Observer receives progress events. Implementations must be cheap: they are
// called from the hot loop of the stage they observe.
type Observer interface {
	OnProgress(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnProgress(e Event) { f(e) }

// Nop discards every event.
var Nop Observer = ObserverFunc(func(Event) {})

// Or returns o, or Nop when o is nil.
func Or(o Observer) Observer {
	if o == nil {
		return Nop
	}
	return o
}

// Recorder keeps every event it sees. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) OnProgress(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Tracker emits Begin/Advance/End events for one task.
type Tracker struct {
	obs    Observer
	task   string
	unit   Unit
	total  int64
	done   int64
	failed int64
}

// Begin starts tracking task and emits a KindBegin event.
func Begin(obs Observer, task string, unit Unit, total int64) *Tracker {
	t := &Tracker{obs: Or(obs), task: task, unit: unit, total: total}
	t.emit(KindBegin)
	return t
}

// Add advances the task by n.
func (t *Tracker) Add(n int64) {
	t.done += n
	t.emit(KindAdvance)
}

// Fail records one failed unit without advancing the task.
func (t *Tracker) Fail() {
	t.failed++
	t.emit(KindAdvance)
}

// Done returns the amount reported so far.
func (t *Tracker) Done() int64 { return t.done }

// End emits the final KindEnd event.
func (t *Tracker) End() {
	t.emit(KindEnd)
}

func (t *Tracker) emit(k Kind) {
	t.obs.OnProgress(Event{Kind: k, Task: t.task, Unit: t.unit, Done: t.done, Total: t.total, Failed: t.failed})
}
