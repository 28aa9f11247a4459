package room

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestGraceExpiryFiresOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	g := NewGraceTimers(fc, 30*time.Second)

	var fired atomic.Int32
	g.Start("u1", func(uid string) { fired.Add(1) })
	if !g.Active("u1") {
		t.Fatal("timer not active after Start")
	}

	fc.Advance(30 * time.Second)
	waitUntil(t, "grace expiry", func() bool { return fired.Load() == 1 })

	if g.Active("u1") {
		t.Error("timer still active after expiry")
	}
	fc.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("expiry fired %d times, want exactly 1", n)
	}
}

func TestGraceCancelBeforeExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	g := NewGraceTimers(fc, 30*time.Second)

	var fired atomic.Int32
	g.Start("u1", func(uid string) { fired.Add(1) })
	if !g.Cancel("u1") {
		t.Fatal("Cancel reported no active timer")
	}

	fc.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("cancelled timer fired %d times", n)
	}
	if g.Cancel("u1") {
		t.Error("second Cancel reported an active timer")
	}
}

func TestGraceRestartReplacesTimer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	g := NewGraceTimers(fc, 30*time.Second)

	var fired atomic.Int32
	g.Start("u1", func(uid string) { fired.Add(1) })
	fc.Advance(20 * time.Second)
	// Second disconnect rearms the window from scratch.
	g.Start("u1", func(uid string) { fired.Add(1) })

	fc.Advance(20 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("replaced timer fired early: %d", n)
	}

	fc.Advance(10 * time.Second)
	waitUntil(t, "replacement expiry", func() bool { return fired.Load() == 1 })
}

func TestGraceCancelAll(t *testing.T) {
	fc := clockwork.NewFakeClock()
	g := NewGraceTimers(fc, time.Second)

	var fired atomic.Int32
	g.Start("u1", func(uid string) { fired.Add(1) })
	g.Start("u2", func(uid string) { fired.Add(1) })
	if !g.AnyActive() {
		t.Fatal("AnyActive false with two armed timers")
	}

	g.CancelAll()
	if g.AnyActive() {
		t.Error("AnyActive true after CancelAll")
	}
	fc.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("cancelled timers fired %d times", n)
	}
}
