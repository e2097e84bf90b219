package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitor_FiresAfterDelay(t *testing.T) {
	m := NewMonitor()
	fired := make(chan struct{})
	m.Arm("p1", 10*time.Millisecond, func() { close(fired) })
	if !m.Armed("p1") {
		t.Fatalf("timer should be armed")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timer never fired")
	}
	if m.Armed("p1") {
		t.Fatalf("fired timer still registered")
	}
}

func TestMonitor_DisarmSuppressesCallback(t *testing.T) {
	m := NewMonitor()
	var calls atomic.Int32
	m.Arm("p1", 20*time.Millisecond, func() { calls.Add(1) })
	if !m.Disarm("p1") {
		t.Fatalf("disarm should succeed while pending")
	}
	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("callback ran %d times after disarm", n)
	}
	if m.Disarm("p1") {
		t.Fatalf("second disarm should report nothing to cancel")
	}
}

func TestMonitor_RearmReplacesTimer(t *testing.T) {
	m := NewMonitor()
	var first, second atomic.Int32
	m.Arm("p1", 10*time.Millisecond, func() { first.Add(1) })
	m.Arm("p1", 30*time.Millisecond, func() { second.Add(1) })
	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("replaced timer still fired")
	}
	if second.Load() != 1 {
		t.Fatalf("replacement timer fired %d times", second.Load())
	}
}

func TestMonitor_DisarmAll(t *testing.T) {
	m := NewMonitor()
	var calls atomic.Int32
	m.Arm("p1", 20*time.Millisecond, func() { calls.Add(1) })
	m.Arm("p2", 20*time.Millisecond, func() { calls.Add(1) })
	m.DisarmAll()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("callbacks ran after DisarmAll")
	}
}
