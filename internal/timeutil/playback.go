package timeutil

import (
	"sync"
	"time"
)

// PlaybackClock turns wall time into playback time. Elapsed playback time
// advances at Scale times the wall rate while running and is frozen while
// paused. It is safe for concurrent use.
type PlaybackClock struct {
	clock Clock

	mu      sync.Mutex
	base    time.Duration // playback time at anchor
	anchor  time.Time     // wall time base was taken
	scale   float64
	running bool
}

// NewPlaybackClock returns a running clock at zero elapsed time with scale 1.
// A nil clock uses RealClock.
func NewPlaybackClock(clock Clock) *PlaybackClock {
	if clock == nil {
		clock = RealClock{}
	}
	return &PlaybackClock{clock: clock, anchor: clock.Now(), scale: 1, running: true}
}

func (p *PlaybackClock) elapsedLocked(now time.Time) time.Duration {
	if !p.running {
		return p.base
	}
	return p.base + time.Duration(float64(now.Sub(p.anchor))*p.scale)
}

// rebase folds the time run since anchor into base.
func (p *PlaybackClock) rebase() {
	now := p.clock.Now()
	p.base = p.elapsedLocked(now)
	p.anchor = now
}

// Elapsed returns the current playback time.
func (p *PlaybackClock) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsedLocked(p.clock.Now())
}

// ElapsedMillis returns Elapsed in fractional milliseconds, the unit of
// trajectory log time.
func (p *PlaybackClock) ElapsedMillis() float64 {
	return float64(p.Elapsed()) / float64(time.Millisecond)
}

// Pause freezes playback time.
func (p *PlaybackClock) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.rebase()
		p.running = false
	}
}

// Resume continues playback from where it was paused.
func (p *PlaybackClock) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		p.anchor = p.clock.Now()
		p.running = true
	}
}

// Paused reports whether the clock is paused.
func (p *PlaybackClock) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.running
}

// SetScale changes the playback rate. Time already elapsed is unaffected.
// Negative scales run playback backwards.
func (p *PlaybackClock) SetScale(scale float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebase()
	p.scale = scale
}

// Scale returns the playback rate.
func (p *PlaybackClock) Scale() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scale
}

// Seek sets the playback time to d.
func (p *PlaybackClock) Seek(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = d
	p.anchor = p.clock.Now()
}
