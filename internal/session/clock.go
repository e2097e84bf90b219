package session

import (
	"sync"
	"time"
)

// ClockConfig sets the per-match time control.
type ClockConfig struct {
	Initial   time.Duration // per side
	Increment time.Duration // applied to the mover on every switch
	Tick      time.Duration // countdown resolution, defaults to 1s
}

// ClockSnapshot mirrors both remaining times in milliseconds.
type ClockSnapshot struct {
	White  int64
	Black  int64
	Active Color
}

// Clock owns the two countdown timers of one match. At most one color's
// remaining time decreases at a time; remaining time is clamped at zero and
// expiry is reported exactly once. Tick and expiry callbacks run on the
// clock goroutine and must route into the session's own serialization.
type Clock struct {
	mu        sync.Mutex
	remaining map[Color]time.Duration
	increment time.Duration
	tick      time.Duration
	active    Color
	running   bool
	started   bool
	expired   bool

	stopCh   chan struct{}
	stopOnce sync.Once

	onTick   func(ClockSnapshot)
	onExpire func(Color)
}

func NewClock(cfg ClockConfig, onTick func(ClockSnapshot), onExpire func(Color)) *Clock {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Clock{
		remaining: map[Color]time.Duration{White: cfg.Initial, Black: cfg.Initial},
		increment: cfg.Increment,
		tick:      cfg.Tick,
		active:    White,
		stopCh:    make(chan struct{}),
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start begins the countdown for color, replacing any running countdown.
func (c *Clock) Start(color Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return
	}
	c.active = color
	c.running = true
	if !c.started {
		c.started = true
		go c.loop()
	}
}

// Switch credits the configured increment to the color that just moved and
// hands the countdown to the other color.
func (c *Clock) Switch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.expired {
		return
	}
	c.remaining[c.active] += c.increment
	c.active = c.active.Other()
}

// StopAll halts both countdowns. Safe to call more than once, including from
// within the expiry callback.
func (c *Clock) StopAll() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Snapshot returns the current remaining times.
func (c *Clock) Snapshot() ClockSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Clock) snapshotLocked() ClockSnapshot {
	return ClockSnapshot{
		White:  c.remaining[White].Milliseconds(),
		Black:  c.remaining[Black].Milliseconds(),
		Active: c.active,
	}
}

func (c *Clock) loop() {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			c.mu.Lock()
			if !c.running || c.expired {
				c.mu.Unlock()
				continue
			}
			rem := c.remaining[c.active] - c.tick
			if rem < 0 {
				rem = 0
			}
			c.remaining[c.active] = rem
			snap := c.snapshotLocked()
			var flagged Color
			fired := false
			if rem == 0 {
				c.expired = true
				c.running = false
				fired = true
				flagged = c.active
			}
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(snap)
			}
			if fired && c.onExpire != nil {
				c.onExpire(flagged)
			}
		}
	}
}
