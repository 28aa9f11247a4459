package room

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mintkit/gameroom/internal/auth"
	"github.com/mintkit/gameroom/internal/game"
)

// stubGame is a minimal variant for exercising the session machinery.
type stubGame struct {
	mu        sync.Mutex
	host      game.Host
	players   []game.PlayerInfo
	started   bool
	ticks     int
	forfeited []string
	resumed   bool
}

func (g *stubGame) Config() game.Config {
	return game.Config{
		Type:              "stub",
		MinPlayers:        2,
		MaxPlayers:        2,
		SimInterval:       10 * time.Millisecond,
		BroadcastInterval: 20 * time.Millisecond,
		AllowSpectators:   true,
	}
}

func (g *stubGame) Start(host game.Host, players []game.PlayerInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.host = host
	g.players = players
	g.started = true
}

func (g *stubGame) HandleIntent(uid string, intent game.Intent) error {
	switch intent.Type {
	case "win":
		g.host.Finish(game.Result{WinnerUID: uid, Reason: game.ReasonScoreThreshold, Stats: g.FinalStats()})
		return nil
	case "double_win":
		g.host.Finish(game.Result{WinnerUID: uid, Reason: game.ReasonScoreThreshold, Stats: g.FinalStats()})
		g.host.Finish(game.Result{WinnerUID: "late-loser", Reason: game.ReasonElimination, Stats: g.FinalStats()})
		return nil
	default:
		return nil
	}
}

func (g *stubGame) Tick(dt time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ticks++
}

func (g *stubGame) PlayerDisconnected(uid string) {}
func (g *stubGame) PlayerReconnected(uid string)  {}

func (g *stubGame) PlayerForfeited(uid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forfeited = append(g.forfeited, uid)
}

func (g *stubGame) PublicSnapshot() any { return map[string]int{"ticks": g.ticks} }

func (g *stubGame) PrivatePayload(uid string) (string, any, bool) { return "", nil, false }

func (g *stubGame) FinalStats() map[string]game.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	stats := make(map[string]game.Stats, len(g.players))
	for i, p := range g.players {
		stats[p.UID] = game.Stats{Primary: float64(len(g.players) - i)}
	}
	return stats
}

func (g *stubGame) Suspend() ([]byte, []byte, error) {
	return []byte(`{"stub":true}`), nil, nil
}

func (g *stubGame) Resume(public, private []byte) error {
	g.resumed = true
	return nil
}

func (g *stubGame) snapshot() (started bool, forfeited []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started, append([]string(nil), g.forfeited...)
}

// memStore is an in-process Store recording every call.
type memStore struct {
	mu        sync.Mutex
	suspended map[string]SuspendedBundle
	finalized map[string][]game.Result
}

func newMemStore() *memStore {
	return &memStore{
		suspended: make(map[string]SuspendedBundle),
		finalized: make(map[string][]game.Result),
	}
}

func (m *memStore) SaveSuspended(ctx context.Context, bundle SuspendedBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended[bundle.MatchID] = bundle
	return nil
}

func (m *memStore) LoadSuspended(ctx context.Context, matchID string) (*SuspendedBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.suspended[matchID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *memStore) FinalizeCompleted(ctx context.Context, matchID string, result game.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized[matchID] = append(m.finalized[matchID], result)
	return nil
}

func (m *memStore) finalizeCount(matchID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.finalized[matchID])
}

func (m *memStore) suspendedBundle(matchID string) (SuspendedBundle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.suspended[matchID]
	return b, ok
}

type sessionFixture struct {
	session *Session
	clock   *clockwork.FakeClock
	stub    *stubGame
	store   *memStore
	conns   map[string]*fakeConn
	onEmpty []string
	emptyMu sync.Mutex
}

func newFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		clock: clockwork.NewFakeClock(),
		stub:  &stubGame{},
		store: newMemStore(),
		conns: make(map[string]*fakeConn),
	}
	f.session = NewSession(Options{
		ID:          "room-1",
		Config:      f.stub.Config(),
		NewGame:     func(seed int64) game.Game { return f.stub },
		Clock:       f.clock,
		Store:       f.store,
		GraceWindow: 5 * time.Second,
		OnEmpty: func(roomID string) {
			f.emptyMu.Lock()
			f.onEmpty = append(f.onEmpty, roomID)
			f.emptyMu.Unlock()
		},
	})
	return f
}

func (f *sessionFixture) join(t *testing.T, uid string) *fakeConn {
	t.Helper()
	conn := newFakeConn(uid)
	f.conns[uid] = conn
	if err := f.session.Join(conn, auth.Identity{UID: uid, DisplayName: uid}); err != nil {
		t.Fatalf("Join(%s) error: %v", uid, err)
	}
	return conn
}

func countdownOf(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

// driveToPlaying pushes the countdown through with the fake clock.
func (f *sessionFixture) driveToPlaying(t *testing.T) {
	t.Helper()
	waitUntil(t, "playing phase", func() bool {
		f.clock.Advance(time.Second)
		return f.session.Phase() == PhasePlaying
	})
}

func framesContain(conn *fakeConn, substr string) bool {
	for _, frame := range conn.sent() {
		if strings.Contains(frame, substr) {
			return true
		}
	}
	return false
}

func framesCount(conn *fakeConn, substr string) int {
	n := 0
	for _, frame := range conn.sent() {
		if strings.Contains(frame, substr) {
			n++
		}
	}
	return n
}

func TestSessionQuorumStartsCountdownThenPlaying(t *testing.T) {
	f := newFixture(t)
	c1 := f.join(t, "u1")
	if got := f.session.Phase(); got != PhaseWaiting {
		t.Fatalf("phase after single join = %s, want waiting", got)
	}
	f.join(t, "u2")
	if got := f.session.Phase(); got != PhaseCountdown {
		t.Fatalf("phase at quorum = %s, want countdown (auto-ready policy)", got)
	}
	if countdownOf(f.session) != 3 {
		t.Errorf("countdown starts at %d, want 3", countdownOf(f.session))
	}

	f.driveToPlaying(t)

	if started, _ := f.stub.snapshot(); !started {
		t.Error("game not started after countdown elapsed")
	}
	if !framesContain(c1, `"game_start"`) {
		t.Error("game_start never broadcast")
	}
	if !framesContain(c1, `"seed"`) {
		t.Error("game_start carries no seed")
	}
}

func TestSessionCountdownAbortsBelowQuorum(t *testing.T) {
	f := newFixture(t)
	c1 := f.join(t, "u1")
	f.join(t, "u2")
	if f.session.Phase() != PhaseCountdown {
		t.Fatal("countdown did not start")
	}

	f.session.Leave("u2")
	if got := f.session.Phase(); got != PhaseWaiting {
		t.Fatalf("phase after drop below quorum = %s, want waiting", got)
	}
	if !framesContain(c1, `"countdown_aborted"`) {
		t.Error("countdown_aborted never broadcast")
	}

	// A stale countdown tick must not start the match.
	f.clock.Advance(5 * time.Second)
	time.Sleep(30 * time.Millisecond)
	if got := f.session.Phase(); got != PhaseWaiting {
		t.Errorf("stale countdown tick moved phase to %s", got)
	}
}

func TestSessionLateJoinerBecomesSpectator(t *testing.T) {
	f := newFixture(t)
	f.join(t, "u1")
	f.join(t, "u2")
	f.driveToPlaying(t)

	sc := f.join(t, "watcher")
	if !f.session.RosterView().IsSpectator("watcher") {
		t.Fatal("late joiner not registered as spectator")
	}
	if !framesContain(sc, `"spectator"`) {
		t.Error("spectator welcome missing role")
	}
}

func TestSessionFinishIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c1 := f.join(t, "u1")
	f.join(t, "u2")
	f.driveToPlaying(t)

	f.session.HandleIntent("u1", game.Intent{Type: "double_win"})

	if got := f.session.Phase(); got != PhaseFinished {
		t.Fatalf("phase = %s, want finished", got)
	}
	res := f.session.Result()
	if res == nil || res.WinnerUID != "u1" {
		t.Fatalf("result = %+v, want first trigger's winner u1", res)
	}
	if n := framesCount(c1, `"game_over"`); n != 1 {
		t.Errorf("game_over broadcast %d times, want exactly 1", n)
	}
	waitUntil(t, "async finalize", func() bool { return f.store.finalizeCount("room-1") >= 1 })
}

func TestSessionGraceExpiryForfeitsOpponentLeft(t *testing.T) {
	f := newFixture(t)
	c1 := f.join(t, "u1")
	f.join(t, "u2")
	f.driveToPlaying(t)

	f.session.Leave("u2")
	if !framesContain(c1, `"player_reconnecting"`) {
		t.Error("player_reconnecting never broadcast")
	}
	if res := f.session.Result(); res != nil {
		t.Fatalf("match resolved immediately on disconnect: %+v", res)
	}

	f.clock.Advance(5 * time.Second)
	waitUntil(t, "forfeit resolution", func() bool { return f.session.Result() != nil })

	res := f.session.Result()
	if res.Reason != game.ReasonOpponentLeft {
		t.Errorf("reason = %q, want %q", res.Reason, game.ReasonOpponentLeft)
	}
	if res.WinnerUID != "u1" {
		t.Errorf("winner = %q, want the remaining player u1", res.WinnerUID)
	}
	if _, forfeited := f.stub.snapshot(); len(forfeited) != 1 || forfeited[0] != "u2" {
		t.Errorf("game notified of forfeits %v, want [u2]", forfeited)
	}
	if n := framesCount(c1, `"game_over"`); n != 1 {
		t.Errorf("game_over broadcast %d times, want exactly 1", n)
	}
}

func TestSessionReconnectWithinGraceAvoidsForfeit(t *testing.T) {
	f := newFixture(t)
	f.join(t, "u1")
	f.join(t, "u2")
	f.driveToPlaying(t)

	f.session.Leave("u2")
	f.clock.Advance(2 * time.Second)

	replacement := newFakeConn("u2-reborn")
	if err := f.session.Join(replacement, auth.Identity{UID: "u2", DisplayName: "u2"}); err != nil {
		t.Fatalf("rejoin error: %v", err)
	}
	p := f.session.RosterView().Player("u2")
	if p == nil || !p.Connected {
		t.Fatal("participant not reconnected")
	}

	f.clock.Advance(time.Minute)
	time.Sleep(30 * time.Millisecond)
	if res := f.session.Result(); res != nil {
		t.Errorf("forfeit fired despite reconnection: %+v", res)
	}
	if f.session.Phase() != PhasePlaying {
		t.Errorf("phase = %s, want playing", f.session.Phase())
	}
}

func TestSessionRejectsGameIntentOutsidePlaying(t *testing.T) {
	f := newFixture(t)
	c1 := f.join(t, "u1")

	f.session.HandleIntent("u1", game.Intent{Type: "play_card", Data: json.RawMessage(`{}`)})
	if !framesContain(c1, `"wrong_phase"`) {
		t.Error("no targeted wrong_phase rejection sent")
	}
	if f.session.Phase() != PhaseWaiting {
		t.Error("rejected intent mutated phase")
	}
}

func TestSessionRematchHandshake(t *testing.T) {
	f := newFixture(t)
	c1 := f.join(t, "u1")
	f.join(t, "u2")
	f.driveToPlaying(t)
	f.session.HandleIntent("u1", game.Intent{Type: "win"})
	if f.session.Phase() != PhaseFinished {
		t.Fatal("match did not finish")
	}
	seedBefore := f.session.SeedValue()

	f.session.HandleIntent("u1", game.Intent{Type: "rematch"})
	if !framesContain(c1, `"rematch_request"`) {
		t.Fatal("rematch_request never broadcast")
	}

	// The proposer cannot accept their own proposal.
	f.session.HandleIntent("u1", game.Intent{Type: "rematch_accept"})
	if f.session.Phase() != PhaseFinished {
		t.Fatal("proposer self-accept completed the handshake")
	}

	f.session.HandleIntent("u2", game.Intent{Type: "rematch_accept"})
	if got := f.session.Phase(); got != PhaseCountdown {
		t.Fatalf("phase after accept = %s, want countdown (full room auto-readies)", got)
	}
	if f.session.SeedValue() == seedBefore {
		t.Error("seed not regenerated on rematch")
	}
	if f.session.Result() != nil {
		t.Error("stale result survived rematch reset")
	}

	// Seats rotate, identities persist.
	roster := f.session.RosterView()
	if p := roster.BySeat(0); p == nil || p.UID != "u2" {
		t.Errorf("seat 0 holds %v, want u2 after rotation", p)
	}
	if p := roster.BySeat(1); p == nil || p.UID != "u1" {
		t.Errorf("seat 1 holds %v, want u1 after rotation", p)
	}
}

func TestSessionDisposeSuspendsPlayingMatch(t *testing.T) {
	f := newFixture(t)
	c1 := f.join(t, "u1")
	f.join(t, "u2")
	f.driveToPlaying(t)

	f.session.Dispose("shutdown")

	bundle, ok := f.store.suspendedBundle("room-1")
	if !ok {
		t.Fatal("no suspended bundle saved at disposal")
	}
	if bundle.GameType != "stub" {
		t.Errorf("bundle game type = %q, want stub", bundle.GameType)
	}
	if string(bundle.Public) != `{"stub":true}` {
		t.Errorf("bundle public = %s", bundle.Public)
	}
	c1.mu.Lock()
	closed := c1.closed
	c1.mu.Unlock()
	if !closed {
		t.Error("connection not closed at disposal")
	}
}

func TestSessionEmptyRoomSignalsOnEmpty(t *testing.T) {
	f := newFixture(t)
	f.join(t, "u1")
	f.session.Leave("u1")

	f.emptyMu.Lock()
	defer f.emptyMu.Unlock()
	if len(f.onEmpty) != 1 || f.onEmpty[0] != "room-1" {
		t.Errorf("onEmpty calls = %v, want [room-1]", f.onEmpty)
	}
}

func TestSessionAbandonedDuringPlaySignalsOnEmpty(t *testing.T) {
	f := newFixture(t)
	f.join(t, "u1")
	f.join(t, "u2")
	f.driveToPlaying(t)

	// Both participants drop mid-match. They are retained for the grace
	// window, so the roster still counts them and Leave alone never reports
	// the room empty.
	f.session.Leave("u1")
	f.session.Leave("u2")
	f.clock.Advance(10 * time.Second)

	waitUntil(t, "abandoned match resolved", func() bool {
		return f.session.Result() != nil
	})
	if res := f.session.Result(); res.Reason != game.ReasonOpponentLeft {
		t.Errorf("reason = %q, want %q", res.Reason, game.ReasonOpponentLeft)
	}
	waitUntil(t, "empty signal for abandoned room", func() bool {
		f.emptyMu.Lock()
		defer f.emptyMu.Unlock()
		return len(f.onEmpty) == 1 && f.onEmpty[0] == "room-1"
	})
}

func TestSessionRestoreConsumesSuspendedBundle(t *testing.T) {
	f := newFixture(t)
	f.store.suspended["room-1"] = SuspendedBundle{
		MatchID:  "room-1",
		GameType: "stub",
		Seed:     42,
		Public:   json.RawMessage(`{"stub":true}`),
		SavedAt:  time.Now(),
	}

	f.session.TryRestore(context.Background())
	if f.session.SeedValue() != 42 {
		t.Fatalf("seed = %d, want restored 42", f.session.SeedValue())
	}
	if !f.stub.resumed {
		t.Fatal("game Resume never invoked")
	}

	f.join(t, "u1")
	f.join(t, "u2")
	f.driveToPlaying(t)
	if started, _ := f.stub.snapshot(); !started {
		t.Error("restored game not re-started with the reassembled roster")
	}
}
