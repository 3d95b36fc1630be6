package progress

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestTracker_EmitsLifecycle(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	tr := Begin(rec, "Linux.log", UnitLines, 3)
	tr.Add(1)
	tr.Add(2)
	tr.End()

	events := rec.Events()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	if events[0].Kind != KindBegin || events[3].Kind != KindEnd {
		t.Fatalf("kinds = %v..%v, want begin..end", events[0].Kind, events[3].Kind)
	}
	if got := events[3].Done; got != 3 {
		t.Fatalf("final Done = %d, want 3", got)
	}
	if got := events[3].Fraction(); got != 1 {
		t.Fatalf("Fraction() = %v, want 1", got)
	}
}

func TestEvent_FractionUnknownTotal(t *testing.T) {
	t.Parallel()

	if got := (Event{Done: 10}).Fraction(); got != 0 {
		t.Fatalf("Fraction() = %v, want 0", got)
	}
	if got := (Event{Done: 20, Total: 10}).Fraction(); got != 1 {
		t.Fatalf("Fraction() = %v, want 1 (clamped)", got)
	}
}

func TestOr_NilIsNop(t *testing.T) {
	t.Parallel()

	Or(nil).OnProgress(Event{Task: "x"})
}

func TestLogger_ReportsDeciles(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewLogger(log.New(&buf, "", 0))
	tr := Begin(l, "Mac.tar.gz", UnitBytes, 100)
	for i := 0; i < 100; i++ {
		tr.Add(1)
	}
	tr.End()

	out := buf.String()
	if got := strings.Count(out, "%"); got != 10 {
		t.Fatalf("decile lines = %d, want 10\n%s", got, out)
	}
	if !strings.Contains(out, "Mac.tar.gz done (100B/100B)") {
		t.Fatalf("missing done line:\n%s", out)
	}
}

func TestConsole_WritesBarAndNewlineOnEnd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewConsole(&buf)
	tr := Begin(c, "Windows.log", UnitLines, 2)
	tr.Add(2)
	tr.End()

	out := buf.String()
	if !strings.Contains(out, "Windows.log") {
		t.Fatalf("output missing task name: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("output should end with newline after End: %q", out)
	}
}

func TestHumanBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int64
		want string
	}{
		{512, "512B"},
		{2048, "2.0KiB"},
		{5 * 1024 * 1024, "5.0MiB"},
	}
	for _, tt := range tests {
		if got := humanBytes(tt.n); got != tt.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
