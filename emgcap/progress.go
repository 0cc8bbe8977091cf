package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// progressPrinter writes capture progress at most once per interval. The
// final update is always written.
type progressPrinter struct {
	w        io.Writer
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func newProgressPrinter(w io.Writer, interval time.Duration) *progressPrinter {
	return &progressPrinter{w: w, interval: interval, now: time.Now}
}

// Update is registered as the session progress callback.
func (p *progressPrinter) Update(n, target int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now()
	if n < target && !p.last.IsZero() && t.Sub(p.last) < p.interval {
		return
	}
	p.last = t

	fmt.Fprintf(p.w, "\rcapturing %d/%d", n, target)
	if n >= target {
		fmt.Fprintln(p.w)
	}
}
