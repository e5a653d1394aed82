package loader

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints a single self-overwriting progress line.
type ProgressTracker struct {
	mu             sync.Mutex
	w              io.Writer
	total          int
	done           int
	reportInterval int
	reportedAt     int
	start          time.Time
	running        bool
	now            func() time.Time
}

// NewProgressTracker reports to w every reportInterval documents out of total.
func NewProgressTracker(w io.Writer, total, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		w:              w,
		total:          total,
		reportInterval: max(reportInterval, 1),
		now:            time.Now,
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = p.now()
	p.running = true
	p.done = 0
	p.reportedAt = 0
}

// Update sets the number of completed documents.
func (p *ProgressTracker) Update(done int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.advance(done)
	}
}

// Increment adds delta completed documents.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.advance(p.done + delta)
	}
}

// Finish prints the final line and stops tracking.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.done = p.total
	p.print()
	fmt.Fprintln(p.w)
	p.running = false
}

// Elapsed returns the time since Start, or zero before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start.IsZero() {
		return 0
	}
	return p.now().Sub(p.start)
}

// advance must be called with the lock held.
func (p *ProgressTracker) advance(done int) {
	p.done = min(done, p.total)
	if p.done-p.reportedAt >= p.reportInterval {
		p.print()
		p.reportedAt = p.done
	}
}

func (p *ProgressTracker) print() {
	elapsed := p.now().Sub(p.start).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(p.done) / elapsed
	}
	pct := 0.0
	if p.total > 0 {
		pct = float64(p.done) * 100 / float64(p.total)
	}
	line := fmt.Sprintf("\rProgress: %d/%d (%.1f%%) - %.1f docs/s", p.done, p.total, pct, rate)
	if remaining := p.total - p.done; remaining > 0 && rate > 0 {
		eta := time.Duration(float64(remaining) / rate * float64(time.Second))
		line += fmt.Sprintf(" - eta %v", eta.Round(time.Second))
	}
	fmt.Fprint(p.w, line)
}
