package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// GraceTimers runs the per-participant reconnection windows of one session.
// At most one timer is active per uid: a new disconnect cancels and replaces
// any existing timer, never stacks one on top.
//
// The expiry callback fires on a timer goroutine; the session must re-take
// its lock and re-validate phase and connection state before forfeiting,
// since the participant may have reconnected or the match may have ended in
// the meantime.
type GraceTimers struct {
	clock  clockwork.Clock
	window time.Duration

	mu     sync.Mutex
	active map[string]chan struct{}
}

func NewGraceTimers(clock clockwork.Clock, window time.Duration) *GraceTimers {
	return &GraceTimers{
		clock:  clock,
		window: window,
		active: make(map[string]chan struct{}),
	}
}

// Window is the configured grace duration.
func (g *GraceTimers) Window() time.Duration { return g.window }

// Start arms uid's grace window, replacing any timer already running.
func (g *GraceTimers) Start(uid string, expired func(uid string)) {
	g.mu.Lock()
	if cancel, ok := g.active[uid]; ok {
		close(cancel)
	}
	cancel := make(chan struct{})
	g.active[uid] = cancel
	g.mu.Unlock()

	log.Debug().Str("uid", uid).Dur("window", g.window).Msg("reconnection grace timer armed")

	timer := g.clock.NewTimer(g.window)
	go func() {
		defer timer.Stop()
		select {
		case <-cancel:
			return
		case <-timer.Chan():
		}
		g.mu.Lock()
		// Only the still-registered timer may expire; a replacement or
		// cancellation that raced the firing wins.
		if g.active[uid] != cancel {
			g.mu.Unlock()
			return
		}
		delete(g.active, uid)
		g.mu.Unlock()
		expired(uid)
	}()
}

// Cancel disarms uid's timer; reports whether one was active.
func (g *GraceTimers) Cancel(uid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cancel, ok := g.active[uid]
	if ok {
		close(cancel)
		delete(g.active, uid)
	}
	return ok
}

// CancelAll disarms every timer; used on finish and disposal.
func (g *GraceTimers) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for uid, cancel := range g.active {
		close(cancel)
		delete(g.active, uid)
	}
}

// Active reports whether uid currently has a grace window open.
func (g *GraceTimers) Active(uid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[uid]
	return ok
}

// AnyActive reports whether any participant is inside a grace window.
func (g *GraceTimers) AnyActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active) > 0
}
