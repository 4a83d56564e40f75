package captions

import "time"

// Stability decides when the active fragment's text has settled enough to
// emit. Implementations only choose the moment; delta extraction and
// speaker attribution are shared.
type Stability interface {
	// Mutated records a page mutation of the active fragment at now.
	// changed reports whether its text differs from the last snapshot.
	Mutated(now time.Time, changed bool)
	// Ready reports whether the pending text may be emitted at now.
	Ready(now time.Time) bool
	// Reset clears state after an emission or fragment switch.
	Reset()
}

// Debounce declares stability once no mutation has arrived for Window.
type Debounce struct {
	Window time.Duration
	last   time.Time
}

func NewDebounce(window time.Duration) *Debounce {
	return &Debounce{Window: window}
}

func (d *Debounce) Mutated(now time.Time, _ bool) { d.last = now }

func (d *Debounce) Ready(now time.Time) bool {
	return !d.last.IsZero() && now.Sub(d.last) >= d.Window
}

func (d *Debounce) Reset() { d.last = time.Time{} }

// Polling samples the text every Interval and declares stability after
// Checks consecutive samples without change.
type Polling struct {
	Interval time.Duration
	Checks   int

	lastCheck time.Time
	stable    int
	dirty     bool
}

func NewPolling(interval time.Duration, checks int) *Polling {
	if checks <= 0 {
		checks = 3
	}
	return &Polling{Interval: interval, Checks: checks}
}

func (p *Polling) Mutated(_ time.Time, changed bool) {
	if changed {
		p.dirty = true
	}
}

func (p *Polling) Ready(now time.Time) bool {
	if !p.lastCheck.IsZero() && now.Sub(p.lastCheck) < p.Interval {
		return p.stable >= p.Checks
	}
	p.lastCheck = now
	if p.dirty {
		p.stable = 0
		p.dirty = false
	} else {
		p.stable++
	}
	return p.stable >= p.Checks
}

func (p *Polling) Reset() {
	p.lastCheck = time.Time{}
	p.stable = 0
	p.dirty = false
}
