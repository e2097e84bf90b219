package session

import (
	"sync"
	"time"
)

// Monitor maps identity keys to single-shot grace timers. Arm replaces any
// existing timer for the key; an expiry callback fires at most once and is
// suppressed once Disarm has removed the entry. A callback that has already
// claimed its entry wins the race; Disarm reports that by returning false.
type Monitor struct {
	mu      sync.Mutex
	nextGen uint64
	entries map[string]*armedTimer
}

type armedTimer struct {
	gen   uint64
	timer *time.Timer
}

func NewMonitor() *Monitor {
	return &Monitor{entries: make(map[string]*armedTimer)}
}

// Arm schedules fn to run after d unless the key is disarmed first.
func (m *Monitor) Arm(key string, d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[key]; ok {
		cur.timer.Stop()
	}
	m.nextGen++
	gen := m.nextGen
	entry := &armedTimer{gen: gen}
	entry.timer = time.AfterFunc(d, func() {
		m.mu.Lock()
		cur, ok := m.entries[key]
		if !ok || cur.gen != gen {
			m.mu.Unlock()
			return
		}
		delete(m.entries, key)
		m.mu.Unlock()
		fn()
	})
	m.entries[key] = entry
}

// Disarm cancels the timer for key. Returns true when the cancellation is
// confirmed, false when there was no timer or its expiry already claimed it.
func (m *Monitor) Disarm(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[key]
	if !ok {
		return false
	}
	cur.timer.Stop()
	delete(m.entries, key)
	return true
}

// DisarmAll cancels everything. Used once a match turns terminal.
func (m *Monitor) DisarmAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cur := range m.entries {
		cur.timer.Stop()
		delete(m.entries, key)
	}
}

// Armed reports whether a timer is currently pending for key.
func (m *Monitor) Armed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}
