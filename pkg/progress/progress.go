// Package progress shows the stages of an import run on a terminal.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/scttfrdmn/probav/pkg/i18n"
)

// Status of a step.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
	StatusSkipped  = "skipped"
)

// Step keys of an import run, in order.
const (
	StepResolve    = "resolve"
	StepList       = "list"
	StepPlan       = "plan"
	StepRegion     = "region"
	StepDownload   = "download"
	StepReproject  = "reproject"
	StepCategories = "categories"
)

// ImportSteps lists the steps of an import run.
var ImportSteps = []string{StepResolve, StepList, StepPlan, StepRegion, StepDownload, StepReproject, StepCategories}

// Reporter receives pipeline progress. Implementations must tolerate
// steps they do not know.
type Reporter interface {
	Start(step string)
	Complete(step string)
	Error(step string, err error)
	Skip(step string)
	Message(msg string)
	// Bytes reports a transfer. total is <= 0 while the size is unknown;
	// the last call of a transfer has done == total.
	Bytes(name string, done, total int64)
}

// Nop is a Reporter that prints nothing.
type Nop struct{}

func (Nop) Start(string)               {}
func (Nop) Complete(string)            {}
func (Nop) Error(string, error)        {}
func (Nop) Skip(string)                {}
func (Nop) Message(string)             {}
func (Nop) Bytes(string, int64, int64) {}

// Step represents a single step in the run
type Step struct {
	Key       string
	Name      string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Detail    string
}

// Progress tracks and displays run progress line by line.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	title string
	steps []Step

	lastBytes time.Time
}

// NewProgress creates a tracker for the import steps of year.
func NewProgress(w io.Writer, year int) *Progress {
	p := &Progress{
		w:     w,
		title: i18n.Tf("probav.progress.title", map[string]interface{}{"Year": year}),
	}
	for _, key := range ImportSteps {
		p.steps = append(p.steps, Step{Key: key, Name: i18n.T("probav.progress." + key), Status: StatusPending})
	}
	return p
}

// Header prints the title.
func (p *Progress) Header() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "%s %s\n", i18n.Emoji("satellite"), p.title)
	fmt.Fprintln(p.w, strings.Repeat("━", 56))
}

// Start marks a step as started
func (p *Progress) Start(key string) {
	p.update(key, func(s *Step) {
		s.Status = StatusRunning
		s.StartTime = time.Now()
	})
}

// Complete marks a step as complete
func (p *Progress) Complete(key string) {
	p.update(key, func(s *Step) {
		s.Status = StatusComplete
		s.EndTime = time.Now()
	})
}

// Error marks a step as errored
func (p *Progress) Error(key string, err error) {
	p.update(key, func(s *Step) {
		s.Status = StatusError
		s.EndTime = time.Now()
		s.Detail = fmt.Sprintf("%s: %v", i18n.T("probav.progress.error"), err)
	})
}

// Skip marks a step as skipped
func (p *Progress) Skip(key string) {
	p.update(key, func(s *Step) {
		s.Status = StatusSkipped
	})
}

// Message prints an informational line below the current step.
func (p *Progress) Message(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "     %s\n", msg)
}

// Bytes prints download progress, at most twice a second per file.
func (p *Progress) Bytes(name string, done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	finished := total > 0 && done >= total
	if !finished && time.Since(p.lastBytes) < 500*time.Millisecond {
		return
	}
	p.lastBytes = time.Now()

	if total > 0 {
		fmt.Fprintf(p.w, "\r     %s %s / %s (%.0f%%)", name, humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)), 100*float64(done)/float64(total))
	} else {
		fmt.Fprintf(p.w, "\r     %s %s", name, humanize.Bytes(uint64(done)))
	}
	if finished {
		fmt.Fprintln(p.w)
	}
}

func (p *Progress) update(key string, f func(*Step)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.steps {
		if p.steps[i].Key == key {
			f(&p.steps[i])
			p.display(p.steps[i])
			return
		}
	}
}

func (p *Progress) display(step Step) {
	duration := ""
	switch {
	case step.Status == StatusComplete && !step.StartTime.IsZero():
		duration = " (" + formatDuration(step.EndTime.Sub(step.StartTime)) + ")"
	case step.Status == StatusRunning:
		duration = "..."
	}

	fmt.Fprintf(p.w, "  %s %s%s\n", getSymbol(step.Status), step.Name, duration)
	if step.Detail != "" {
		fmt.Fprintf(p.w, "     %s\n", step.Detail)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func getSymbol(status string) string {
	switch status {
	case StatusPending:
		return i18n.Symbol("pending")
	case StatusRunning:
		return i18n.Symbol("running")
	case StatusComplete:
		return i18n.Symbol("success")
	case StatusError:
		return i18n.Symbol("error")
	case StatusSkipped:
		return i18n.Symbol("skipped")
	default:
		return "  "
	}
}
