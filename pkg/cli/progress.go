package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// StepProgress reports simulation progress one step at a time.
type StepProgress struct {
	mu      sync.Mutex
	total   int
	done    int
	started time.Time
	writer  io.Writer
}

// NewStepProgress creates a reporter that writes to w, or os.Stderr if w
// is nil.
func NewStepProgress(w io.Writer) *StepProgress {
	if w == nil {
		w = os.Stderr
	}
	return &StepProgress{writer: w}
}

// Start resets the reporter for a run of total steps.
func (p *StepProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.done = 0
	p.started = time.Now()
}

// Step records a completed step and redraws the bar with the running
// outcome summary.
func (p *StepProgress) Step(s *trace.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.render(s)
}

// Finish ends the progress line.
func (p *StepProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.writer)
}

func (p *StepProgress) render(s *trace.Summary) {
	if p.total == 0 {
		return
	}

	const barWidth = 30
	filled := barWidth * p.done / p.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\rStep %d/%d [%s] %d decisions, %.1f%% fallback, %s",
		p.done, p.total, bar, s.Records, s.FallbackRate()*100,
		time.Since(p.started).Round(time.Millisecond))
}
