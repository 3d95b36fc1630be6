package progress

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const defaultRenderEvery = 200 * time.Millisecond

// Console draws one progress bar line per task on a terminal.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	bar   progress.Model
	every time.Duration
	last  map[string]time.Time
	label lipgloss.Style
	dim   lipgloss.Style
}

// NewConsole renders progress bars to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:   out,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		every: defaultRenderEvery,
		last:  make(map[string]time.Time),
		label: lipgloss.NewStyle().Bold(true),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (c *Console) OnProgress(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e.Kind == KindAdvance {
		if now.Sub(c.last[e.Task]) < c.every {
			return
		}
	}
	c.last[e.Task] = now

	line := fmt.Sprintf("\r%s %s %s", c.label.Render(e.Task), c.bar.ViewAs(e.Fraction()), c.dim.Render(amount(e)))
	fmt.Fprint(c.out, line)
	if e.Kind == KindEnd {
		fmt.Fprintln(c.out)
		delete(c.last, e.Task)
	}
}

// Logger writes a log line at the start and end of each task and every
// tenth of the way through it.
type Logger struct {
	mu     sync.Mutex
	logger *log.Logger
	step   map[string]int
}

// NewLogger reports through l, or the standard logger when l is nil.
func NewLogger(l *log.Logger) *Logger {
	return &Logger{logger: l, step: make(map[string]int)}
}

func (l *Logger) OnProgress(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e.Kind {
	case KindBegin:
		l.step[e.Task] = 0
		l.printf("progress: %s started (%s)", e.Task, amount(e))
	case KindAdvance:
		if e.Total <= 0 {
			return
		}
		s := int(e.Fraction() * 10)
		if s > l.step[e.Task] {
			l.step[e.Task] = s
			l.printf("progress: %s %d%% (%s)", e.Task, s*10, amount(e))
		}
	case KindEnd:
		delete(l.step, e.Task)
		l.printf("progress: %s done (%s)", e.Task, amount(e))
	}
}

func (l *Logger) printf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func amount(e Event) string {
	s := count(e)
	if e.Failed > 0 {
		s += fmt.Sprintf(", %d failed", e.Failed)
	}
	return s
}

func count(e Event) string {
	switch e.Unit {
	case UnitBytes:
		if e.Total > 0 {
			return humanBytes(e.Done) + "/" + humanBytes(e.Total)
		}
		return humanBytes(e.Done)
	default:
		if e.Total > 0 {
			return fmt.Sprintf("%d/%d %s", e.Done, e.Total, e.Unit)
		}
		return fmt.Sprintf("%d %s", e.Done, e.Unit)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
