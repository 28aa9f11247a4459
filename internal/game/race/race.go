// Package race implements the simultaneous score race variant: clients
// report their own progress, the server gates every report through the
// anti-cheat rate validator, and the round is resolved by the deterministic
// win evaluator when time expires.
package race

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mintkit/gameroom/internal/game"
	"github.com/mintkit/gameroom/internal/room"
)

const (
	GameType = "race"

	roundLength  = 60 * time.Second
	simInterval  = 125 * time.Millisecond
	pushInterval = 100 * time.Millisecond
)

// Spec returns the room registration for this variant.
func Spec() room.GameSpec {
	return room.GameSpec{
		Config: game.Config{
			Type:              GameType,
			MinPlayers:        2,
			MaxPlayers:        8,
			SimInterval:       simInterval,
			BroadcastInterval: pushInterval,
			AllowSpectators:   true,
		},
		Factory: func(seed int64) game.Game { return New(seed) },
	}
}

type playerProgress struct {
	Score      float64
	BestStreak float64
	LastReport time.Time
}

type Game struct {
	seed      int64
	host      game.Host
	anticheat *room.AntiCheat

	seats    []game.PlayerInfo
	progress map[string]*playerProgress

	remaining time.Duration
	paused    int
	restored  bool
	finished  bool
}

func New(seed int64) *Game {
	return &Game{
		seed:      seed,
		anticheat: room.NewAntiCheat(room.DefaultBounds()),
		progress:  make(map[string]*playerProgress),
		remaining: roundLength,
	}
}

func (g *Game) Config() game.Config { return Spec().Config }

func (g *Game) Start(host game.Host, players []game.PlayerInfo) {
	g.host = host
	g.seats = players
	now := host.Now()
	for _, p := range players {
		if g.restored {
			if pr, ok := g.progress[p.UID]; ok {
				pr.LastReport = now
				continue
			}
		}
		g.progress[p.UID] = &playerProgress{LastReport: now}
	}
}

func (g *Game) HandleIntent(uid string, intent game.Intent) error {
	if intent.Type != "score_update" {
		return fmt.Errorf("unsupported intent %q", intent.Type)
	}
	if g.finished {
		return errors.New("match already resolved")
	}
	pr, ok := g.progress[uid]
	if !ok {
		return errors.New("unknown player")
	}

	var payload struct {
		Score  float64 `json:"score"`
		Streak float64 `json:"streak"`
	}
	if err := json.Unmarshal(intent.Data, &payload); err != nil {
		return fmt.Errorf("malformed score_update payload: %w", err)
	}

	now := g.host.Now()
	elapsed := now.Sub(pr.LastReport)
	if err := g.anticheat.Validate(GameType, payload.Score, pr.Score, elapsed); err != nil {
		// Anti-cheat rejection: the report is dropped, the previous value
		// stands, and the session continues. Logged, not punished.
		log.Warn().
			Str("uid", uid).
			Float64("reported", payload.Score).
			Float64("previous", pr.Score).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("score report rejected")
		return nil
	}

	pr.Score = payload.Score
	if payload.Streak > pr.BestStreak {
		pr.BestStreak = payload.Streak
	}
	pr.LastReport = now
	return nil
}

// Tick counts the round down; the clock is paused while anyone is in a
// reconnection grace window.
func (g *Game) Tick(dt time.Duration) {
	if g.finished || g.paused > 0 {
		return
	}
	g.remaining -= dt
	if g.remaining > 0 {
		return
	}
	g.finished = true
	g.host.Finish(room.Evaluate(g.FinalStats(), game.ReasonTimeExpired))
}

func (g *Game) PlayerDisconnected(uid string) { g.paused++ }

func (g *Game) PlayerReconnected(uid string) {
	if g.paused > 0 {
		g.paused--
	}
	if pr, ok := g.progress[uid]; ok {
		// Restart the rate window so the backlog burst after a reconnect is
		// measured from now, not from the pre-disconnect report.
		pr.LastReport = g.host.Now()
	}
}

func (g *Game) PlayerForfeited(uid string) {
	g.finished = true
}

type publicState struct {
	Scores      map[string]float64 `json:"scores"`
	RemainingMS int64              `json:"remaining_ms"`
}

func (g *Game) PublicSnapshot() any {
	scores := make(map[string]float64, len(g.progress))
	for uid, pr := range g.progress {
		scores[uid] = pr.Score
	}
	return publicState{Scores: scores, RemainingMS: g.remaining.Milliseconds()}
}

func (g *Game) PrivatePayload(uid string) (string, any, bool) {
	return "", nil, false
}

// FinalStats ranks by score, breaking ties on best streak.
func (g *Game) FinalStats() map[string]game.Stats {
	stats := make(map[string]game.Stats, len(g.progress))
	for uid, pr := range g.progress {
		stats[uid] = game.Stats{Primary: pr.Score, Secondary: pr.BestStreak}
	}
	return stats
}

type suspended struct {
	Scores    map[string]float64 `json:"scores"`
	Streaks   map[string]float64 `json:"streaks"`
	Remaining time.Duration      `json:"remaining"`
	Seats     []game.PlayerInfo  `json:"seats"`
}

func (g *Game) Suspend() ([]byte, []byte, error) {
	s := suspended{
		Scores:    make(map[string]float64, len(g.progress)),
		Streaks:   make(map[string]float64, len(g.progress)),
		Remaining: g.remaining,
		Seats:     g.seats,
	}
	for uid, pr := range g.progress {
		s.Scores[uid] = pr.Score
		s.Streaks[uid] = pr.BestStreak
	}
	public, err := json.Marshal(s)
	if err != nil {
		return nil, nil, err
	}
	return public, nil, nil
}

func (g *Game) Resume(public, private []byte) error {
	var s suspended
	if err := json.Unmarshal(public, &s); err != nil {
		return fmt.Errorf("decode public bundle: %w", err)
	}
	g.remaining = s.Remaining
	g.seats = s.Seats
	for uid, score := range s.Scores {
		g.progress[uid] = &playerProgress{Score: score, BestStreak: s.Streaks[uid]}
	}
	g.restored = true
	return nil
}
