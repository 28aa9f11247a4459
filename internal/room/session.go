package room

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mintkit/gameroom/internal/auth"
	"github.com/mintkit/gameroom/internal/game"
)

const (
	defaultCountdownSeconds = 3
	defaultGraceWindow      = 30 * time.Second
	collaboratorTimeout     = 5 * time.Second
)

var (
	ErrMatchInProgress = errors.New("match in progress")
	ErrNotParticipant  = errors.New("not a participant")
)

// Options configures one session.
type Options struct {
	ID               string
	Config           game.Config
	NewGame          game.Factory
	Clock            clockwork.Clock
	Store            Store               // optional
	Publisher        MatchEventPublisher // optional
	GraceWindow      time.Duration
	CountdownSeconds int
	OnEmpty          func(roomID string) // registry disposal hook
}

// Session is one running room. All mutation, inbound intents and every
// timer callback alike, is serialized under mu, so tick-vs-message interleaving
// on the same fields cannot happen. External collaborators (persistence,
// the event bus) are only awaited off the lock, and their results are
// applied after re-validating the phase.
type Session struct {
	ID  string
	cfg game.Config

	newGame       game.Factory
	clock         clockwork.Clock
	store         Store
	publisher     MatchEventPublisher
	countdownFrom int
	onEmpty       func(string)

	sched *Scheduler
	grace *GraceTimers

	mu            sync.Mutex
	phase         Phase
	seed          int64
	roster        *Roster
	game          game.Game
	resumed       game.Game // restored from a suspended bundle, consumed at start
	countdown     int
	countdownStop chan struct{}
	result        *game.Result
	rematchFrom   string
	matchStart    time.Time
	disposed      bool
}

func NewSession(opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	window := opts.GraceWindow
	if window <= 0 {
		window = defaultGraceWindow
	}
	countdownFrom := opts.CountdownSeconds
	if countdownFrom <= 0 {
		countdownFrom = defaultCountdownSeconds
	}
	return &Session{
		ID:            opts.ID,
		cfg:           opts.Config,
		newGame:       opts.NewGame,
		clock:         clock,
		store:         opts.Store,
		publisher:     opts.Publisher,
		countdownFrom: countdownFrom,
		onEmpty:       opts.OnEmpty,
		sched:         NewScheduler(clock),
		grace:         NewGraceTimers(clock, window),
		phase:         PhaseWaiting,
		seed:          rand.Int63(),
		roster:        NewRoster(),
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Seed returns the shared RNG seed for the current match.
func (s *Session) SeedValue() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed
}

// Result returns the match result, or nil while unresolved.
func (s *Session) Result() *game.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Roster exposes the roster for read-only inspection in tests and stats.
func (s *Session) RosterView() *Roster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster
}

// TryRestore loads a suspended bundle for this room and prepares the
// restored game to be resumed once the roster reassembles. Called once at
// session creation, before any traffic is served.
func (s *Session) TryRestore(ctx context.Context) {
	if s.store == nil {
		return
	}
	bundle, err := s.store.LoadSuspended(ctx, s.ID)
	if err != nil {
		log.Error().Err(err).Str("room_id", s.ID).Msg("failed to load suspended match")
		return
	}
	if bundle == nil || bundle.GameType != s.cfg.Type {
		return
	}

	g := s.newGame(bundle.Seed)
	if err := g.Resume(bundle.Public, bundle.Private); err != nil {
		log.Error().Err(err).Str("room_id", s.ID).Msg("failed to resume suspended match")
		return
	}

	s.mu.Lock()
	if s.phase == PhaseWaiting {
		s.seed = bundle.Seed
		s.resumed = g
		log.Info().Str("room_id", s.ID).Str("game_type", bundle.GameType).Msg("suspended match restored, waiting for roster")
	}
	s.mu.Unlock()
}

// Join admits an authenticated connection. Rejoining participants are
// reconnected; fresh arrivals are seated while waiting and routed to
// spectator registration once play has begun.
func (s *Session) Join(conn Conn, identity auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.roster.Player(identity.UID); p != nil {
		return s.rejoinLocked(p, conn)
	}

	if s.phase == PhaseWaiting && s.roster.Len() < s.cfg.MaxPlayers {
		p, err := s.roster.AddPlayer(conn, identity, s.cfg.MaxPlayers)
		if err != nil {
			return err
		}
		log.Info().Str("room_id", s.ID).Str("uid", p.UID).Int("seat", p.Seat).Msg("player joined")
		s.broadcastLocked(EventPlayerJoined, map[string]any{
			"uid": p.UID, "display_name": p.DisplayName, "seat": p.Seat,
		})
		s.sendToLocked(p.UID, EventWelcome, map[string]any{
			"room_id": s.ID, "game_type": s.cfg.Type, "seat": p.Seat, "role": "player",
		})
		if s.roster.Len() >= s.cfg.MinPlayers {
			// Quorum convenience policy: reaching quorum readies everyone.
			s.roster.MarkAllReady()
			s.startCountdownLocked()
		}
		return nil
	}

	if !s.cfg.AllowSpectators {
		return ErrMatchInProgress
	}
	sp := s.roster.AddSpectator(conn, identity, s.clock.Now())
	log.Info().Str("room_id", s.ID).Str("uid", sp.UID).Msg("spectator joined")
	s.sendToConnLocked(conn, EventWelcome, map[string]any{
		"room_id": s.ID, "game_type": s.cfg.Type, "role": "spectator",
	})
	s.sendToConnLocked(conn, EventState, s.snapshotLocked())
	s.broadcastLocked(EventSpectatorJoined, map[string]any{"uid": sp.UID})
	return nil
}

func (s *Session) rejoinLocked(p *Participant, conn Conn) error {
	if p.Connected {
		return ErrAlreadyJoined
	}
	p.Conn = conn
	p.Connected = true
	s.grace.Cancel(p.UID)

	log.Info().Str("room_id", s.ID).Str("uid", p.UID).Msg("player reconnected")
	s.broadcastLocked(EventPlayerReconnected, map[string]any{"uid": p.UID})
	s.sendToLocked(p.UID, EventWelcome, map[string]any{
		"room_id": s.ID, "game_type": s.cfg.Type, "seat": p.Seat, "role": "player",
	})
	if s.phase == PhasePlaying && s.game != nil {
		s.game.PlayerReconnected(p.UID)
		// Full private-state resend so the client can rebuild its view.
		if eventType, data, ok := s.game.PrivatePayload(p.UID); ok {
			s.sendToLocked(p.UID, EventType(eventType), data)
		}
		s.sendToLocked(p.UID, EventState, s.snapshotLocked())
	}
	return nil
}

// Leave handles a dropped or closed connection. During play a participant
// is retained and given a reconnection grace window instead of being
// removed.
func (s *Session) Leave(connID string) {
	s.mu.Lock()

	if p := s.roster.ByConn(connID); p != nil {
		switch s.phase {
		case PhasePlaying:
			s.disconnectDuringPlayLocked(p)
			s.mu.Unlock()
			return
		case PhaseCountdown:
			s.roster.Remove(connID)
			s.broadcastLocked(EventPlayerLeft, map[string]any{"uid": p.UID})
			if s.roster.Len() < s.cfg.MinPlayers {
				// Policy: dropping below quorum mid-countdown aborts back
				// to waiting.
				s.cancelCountdownLocked()
				s.transitionLocked(PhaseWaiting)
				s.broadcastLocked(EventCountdownAborted, map[string]any{"reason": "below_quorum"})
			}
		default:
			s.roster.Remove(connID)
			s.broadcastLocked(EventPlayerLeft, map[string]any{"uid": p.UID})
		}
	} else if _, sp := s.roster.Remove(connID); sp != nil {
		log.Debug().Str("room_id", s.ID).Str("uid", sp.UID).Msg("spectator left")
	}

	empty := s.roster.Len() == 0 && len(s.roster.Spectators()) == 0 && !s.disposed
	s.mu.Unlock()

	if empty && s.onEmpty != nil {
		s.onEmpty(s.ID)
	}
}

func (s *Session) disconnectDuringPlayLocked(p *Participant) {
	p.Connected = false
	p.Conn = nil
	log.Info().Str("room_id", s.ID).Str("uid", p.UID).Msg("player disconnected during play, grace window started")
	if s.game != nil {
		s.game.PlayerDisconnected(p.UID)
	}
	s.broadcastLocked(EventPlayerReconnecting, map[string]any{
		"uid": p.UID, "grace_ms": s.grace.Window().Milliseconds(),
	})
	s.grace.Start(p.UID, s.onGraceExpired)
}

// onGraceExpired runs on a timer goroutine; the phase and the participant's
// connection state are re-validated under the lock because the session may
// have moved on while the timer was in flight.
func (s *Session) onGraceExpired(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return
	}
	p := s.roster.Player(uid)
	if p == nil || p.Connected {
		return
	}

	log.Info().Str("room_id", s.ID).Str("uid", uid).Msg("reconnection grace expired, forfeiting")
	if s.game != nil {
		s.game.PlayerForfeited(uid)
		if s.result == nil {
			s.finishLocked(EvaluateForfeit(s.game.FinalStats(), uid, game.ReasonOpponentLeft))
		}
	}
}

// HandleIntent applies one decoded client message. Validation failures are
// answered with a targeted rejection event and leave state untouched.
func (s *Session) HandleIntent(uid string, intent game.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch intent.Type {
	case "ready":
		s.readyLocked(uid)
	case "rematch":
		s.rematchLocked(uid)
	case "rematch_accept":
		s.rematchAcceptLocked(uid)
	case "emote":
		if s.roster.Player(uid) != nil {
			s.broadcastLocked(EventEmote, map[string]any{"uid": uid, "emote": json.RawMessage(intent.Data)})
		}
	default:
		s.gameIntentLocked(uid, intent)
	}
}

func (s *Session) gameIntentLocked(uid string, intent game.Intent) {
	if s.phase != PhasePlaying || s.game == nil {
		s.rejectLocked(uid, "wrong_phase", "no match in progress")
		return
	}
	if s.roster.Player(uid) == nil {
		s.rejectLocked(uid, "not_a_player", "spectators cannot act")
		return
	}
	if err := s.game.HandleIntent(uid, intent); err != nil {
		s.rejectLocked(uid, "invalid_intent", err.Error())
	}
}

func (s *Session) readyLocked(uid string) {
	if s.phase != PhaseWaiting {
		return
	}
	p := s.roster.Player(uid)
	if p == nil || p.Ready {
		return
	}
	p.Ready = true
	s.broadcastLocked(EventPlayerReady, map[string]any{"uid": uid})
	if s.roster.Len() >= s.cfg.MinPlayers && s.roster.AllReady() {
		s.startCountdownLocked()
	}
}

func (s *Session) rematchLocked(uid string) {
	if s.phase != PhaseFinished || s.roster.Player(uid) == nil {
		return
	}
	s.rematchFrom = uid
	s.broadcastLocked(EventRematchRequest, map[string]any{"uid": uid})
}

// rematchAcceptLocked completes the two-phase rematch handshake: one
// participant proposed, a different one accepts. Per-match data resets, the
// seed regenerates and seats rotate, but identities are preserved.
func (s *Session) rematchAcceptLocked(uid string) {
	if s.phase != PhaseFinished || s.rematchFrom == "" || uid == s.rematchFrom {
		return
	}
	if s.roster.Player(uid) == nil {
		return
	}

	s.transitionLocked(PhaseWaiting)
	s.seed = rand.Int63()
	s.game = nil
	s.result = nil
	s.rematchFrom = ""
	s.roster.RotateSeats()
	for _, p := range s.roster.Players() {
		p.Ready = false
	}

	seats := make(map[string]int, s.roster.Len())
	for _, p := range s.roster.Players() {
		seats[p.UID] = p.Seat
	}
	log.Info().Str("room_id", s.ID).Msg("rematch accepted, room reset")
	s.broadcastLocked(EventRematchStarted, map[string]any{"seats": seats})

	if s.roster.Len() >= s.cfg.MinPlayers {
		s.roster.MarkAllReady()
		s.startCountdownLocked()
	}
}

/* ---- countdown ---- */

func (s *Session) startCountdownLocked() {
	if !s.transitionLocked(PhaseCountdown) {
		return
	}
	s.cancelCountdownLocked()
	s.countdown = s.countdownFrom
	s.broadcastLocked(EventCountdown, map[string]any{"value": s.countdown})

	stop := make(chan struct{})
	s.countdownStop = stop
	go s.runCountdown(stop)
}

func (s *Session) runCountdown(stop chan struct{}) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if s.countdownTick(stop) {
				return
			}
		}
	}
}

// countdownTick returns true once the countdown is finished or stale.
func (s *Session) countdownTick(stop chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A cancelled or replaced countdown must not fire.
	if s.countdownStop != stop || s.phase != PhaseCountdown {
		return true
	}
	s.countdown--
	if s.countdown > 0 {
		s.broadcastLocked(EventCountdown, map[string]any{"value": s.countdown})
		return false
	}
	s.countdownStop = nil
	s.startPlayingLocked()
	return true
}

func (s *Session) cancelCountdownLocked() {
	if s.countdownStop != nil {
		close(s.countdownStop)
		s.countdownStop = nil
	}
}

/* ---- playing ---- */

func (s *Session) startPlayingLocked() {
	if !s.transitionLocked(PhasePlaying) {
		return
	}
	s.matchStart = s.clock.Now()

	if s.resumed != nil {
		s.game = s.resumed
		s.resumed = nil
	} else {
		s.game = s.newGame(s.seed)
	}

	players := make([]game.PlayerInfo, 0, s.roster.Len())
	for _, p := range s.roster.Players() {
		players = append(players, game.PlayerInfo{UID: p.UID, DisplayName: p.DisplayName, Seat: p.Seat})
	}

	s.broadcastLocked(EventGameStart, map[string]any{"seed": s.seed, "players": players})
	s.game.Start(&sessionHost{s}, players)
	s.sched.Start(s.cfg.SimInterval, s.cfg.BroadcastInterval, s.simTick, s.broadcastTick)
}

func (s *Session) simTick(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePlaying || s.game == nil {
		return
	}
	s.game.Tick(dt)
}

func (s *Session) broadcastTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePlaying {
		return
	}
	s.broadcastLocked(EventState, s.snapshotLocked())
}

/* ---- finish / dispose ---- */

// finishLocked resolves the match. Idempotent: a second concurrent trigger
// (simultaneous timeout and score event) is a no-op.
func (s *Session) finishLocked(result game.Result) {
	if s.phase != PhasePlaying || s.result != nil {
		return
	}
	if !s.transitionLocked(PhaseFinished) {
		return
	}
	s.result = &result
	s.sched.Stop()
	s.grace.CancelAll()

	log.Info().
		Str("room_id", s.ID).
		Str("winner", result.WinnerUID).
		Str("reason", result.Reason).
		Bool("draw", result.Draw).
		Msg("match finished")
	s.broadcastLocked(EventGameOver, result)

	// Collaborators run off the session lock; the broadcast outcome above
	// stays authoritative for clients whatever happens to storage.
	go s.finalize(result)

	// A match can resolve with nobody left watching (every participant
	// forfeited out). Leave never fires again for them, so the disposal
	// signal has to come from here. Off the lock: disposal re-enters mu.
	if s.roster.ConnectedCount() == 0 && len(s.roster.Spectators()) == 0 && !s.disposed && s.onEmpty != nil {
		go s.onEmpty(s.ID)
	}
}

func (s *Session) finalize(result game.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.FinalizeCompleted(ctx, s.ID, result); err != nil {
			log.Error().Err(err).Str("room_id", s.ID).Msg("failed to finalize completed match")
		}
	}
	if s.publisher != nil {
		payload, err := json.Marshal(result)
		if err == nil {
			err = s.publisher.PublishMatchEvent(ctx, s.ID, "completed", payload)
		}
		if err != nil {
			log.Error().Err(err).Str("room_id", s.ID).Msg("failed to publish match event")
		}
	}
}

// Dispose tears the session down: every timer is cancelled, a playing match
// is suspend-saved, a finished one gets the idempotent finalize fallback,
// and all connections are closed.
func (s *Session) Dispose(reason string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.cancelCountdownLocked()
	s.sched.Stop()
	s.grace.CancelAll()

	var bundle *SuspendedBundle
	var finalize *game.Result
	if s.phase == PhasePlaying && s.game != nil {
		public, private, err := s.game.Suspend()
		if err != nil {
			log.Error().Err(err).Str("room_id", s.ID).Msg("failed to serialize suspended match")
		} else {
			bundle = &SuspendedBundle{
				MatchID:  s.ID,
				GameType: s.cfg.Type,
				Seed:     s.seed,
				Public:   public,
				Private:  private,
				SavedAt:  s.clock.Now(),
			}
		}
	} else if s.phase == PhaseFinished && s.result != nil {
		finalize = s.result
	}

	conns := make([]Conn, 0, s.roster.Len())
	for _, p := range s.roster.Players() {
		if p.Conn != nil {
			conns = append(conns, p.Conn)
		}
	}
	for _, sp := range s.roster.Spectators() {
		if sp.Conn != nil {
			conns = append(conns, sp.Conn)
		}
	}
	s.mu.Unlock()

	log.Info().Str("room_id", s.ID).Str("reason", reason).Msg("session disposed")

	if s.store != nil && (bundle != nil || finalize != nil) {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()
		if bundle != nil {
			// A failed suspend-save means this state is lost: accepted risk,
			// logged and non-fatal.
			if err := s.store.SaveSuspended(ctx, *bundle); err != nil {
				log.Error().Err(err).Str("room_id", s.ID).Msg("failed to save suspended match")
			}
		}
		if finalize != nil {
			if err := s.store.FinalizeCompleted(ctx, s.ID, *finalize); err != nil {
				log.Error().Err(err).Str("room_id", s.ID).Msg("disposal-time finalize failed")
			}
		}
	}

	for _, c := range conns {
		c.Close()
	}
}

/* ---- shared helpers ---- */

func (s *Session) transitionLocked(to Phase) bool {
	if !canTransition(s.phase, to) {
		log.Warn().Str("room_id", s.ID).Str("from", string(s.phase)).Str("to", string(to)).Msg("illegal phase transition blocked")
		return false
	}
	log.Debug().Str("room_id", s.ID).Str("from", string(s.phase)).Str("to", string(to)).Msg("phase transition")
	s.phase = to
	return true
}

type publicPlayer struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Seat        int    `json:"seat"`
	Connected   bool   `json:"connected"`
	Ready       bool   `json:"ready"`
}

type snapshot struct {
	Phase   Phase          `json:"phase"`
	Players []publicPlayer `json:"players"`
	Game    any            `json:"game,omitempty"`
}

// snapshotLocked builds the public wire projection. Game private state never
// appears here; games expose derived facts only through PublicSnapshot.
func (s *Session) snapshotLocked() snapshot {
	players := make([]publicPlayer, 0, s.roster.Len())
	for _, p := range s.roster.Players() {
		players = append(players, publicPlayer{
			UID: p.UID, DisplayName: p.DisplayName, Seat: p.Seat,
			Connected: p.Connected, Ready: p.Ready,
		})
	}
	snap := snapshot{Phase: s.phase, Players: players}
	if s.game != nil {
		snap.Game = s.game.PublicSnapshot()
	}
	return snap
}

func (s *Session) broadcastLocked(eventType EventType, data any) {
	payload := encodeEvent(s.ID, eventType, s.clock.Now(), data)
	if payload == nil {
		return
	}
	for _, p := range s.roster.Players() {
		if p.Connected && p.Conn != nil {
			p.Conn.Send(payload)
		}
	}
	for _, sp := range s.roster.Spectators() {
		if sp.Conn != nil {
			sp.Conn.Send(payload)
		}
	}
}

func (s *Session) sendToLocked(uid string, eventType EventType, data any) {
	p := s.roster.Player(uid)
	if p == nil || p.Conn == nil {
		return
	}
	s.sendToConnLocked(p.Conn, eventType, data)
}

func (s *Session) sendToConnLocked(conn Conn, eventType EventType, data any) {
	payload := encodeEvent(s.ID, eventType, s.clock.Now(), data)
	if payload != nil {
		conn.Send(payload)
	}
}

func (s *Session) rejectLocked(uid, code, message string) {
	s.sendToLocked(uid, EventError, errorPayload{Code: code, Message: message})
}

// sessionHost adapts the session to game.Host. Its methods are only invoked
// from inside game callbacks, which already hold the session lock.
type sessionHost struct{ s *Session }

func (h *sessionHost) RoomID() string { return h.s.ID }
func (h *sessionHost) Seed() int64    { return h.s.seed }
func (h *sessionHost) Now() time.Time { return h.s.clock.Now() }

func (h *sessionHost) Broadcast(eventType string, data any) {
	h.s.broadcastLocked(EventType(eventType), data)
}

func (h *sessionHost) SendTo(uid string, eventType string, data any) {
	h.s.sendToLocked(uid, EventType(eventType), data)
}

func (h *sessionHost) Finish(result game.Result) {
	h.s.finishLocked(result)
}
