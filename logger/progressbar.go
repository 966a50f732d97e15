package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar renders a single self-overwriting line. It is fed the same
// (delta, total) pairs as a batch progress callback.
type ProgressBar struct {
	startTime time.Time
	mu        sync.Mutex
	out       io.Writer
	label     string
	total     int
	current   int
	width     int
	complete  bool
}

func NewProgressBar(label string, out io.Writer) *ProgressBar {
	return &ProgressBar{
		width:     40,
		label:     label,
		startTime: time.Now(),
		out:       out,
	}
}

// Apply records a progress update. Updates are cumulative; a zero delta
// only announces the total.
func (p *ProgressBar) Apply(delta, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = min(p.current+delta, p.total)
	p.render()
}

// Current returns the number of files accounted for so far.
func (p *ProgressBar) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *ProgressBar) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.complete {
		return
	}
	p.render()
	p.complete = true
	fmt.Fprintln(p.out)
}

func (p *ProgressBar) render() {
	if p.complete {
		return
	}

	var fraction float64
	if p.total > 0 {
		fraction = float64(p.current) / float64(p.total)
	}
	filled := int(float64(p.width) * fraction)

	elapsed := time.Since(p.startTime)
	var eta time.Duration
	if p.current > 0 {
		eta = time.Duration(float64(elapsed) * float64(p.total-p.current) / float64(p.current))
	}

	fmt.Fprintf(p.out, "\r%s [%s%s] %3.0f%% %d/%d ETA: %s ",
		p.label,
		strings.Repeat("█", filled),
		strings.Repeat("░", p.width-filled),
		fraction*100,
		p.current,
		p.total,
		formatDuration(eta),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
