// Package duel implements the continuous physics variant: a two-seat pong
// style duel where the server integrates all motion and clients only send
// paddle intents.
package duel

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mintkit/gameroom/internal/game"
	"github.com/mintkit/gameroom/internal/room"
)

const (
	GameType = "duel"

	fieldWidth  = 160.0
	fieldHeight = 96.0
	ballRadius  = 2.0

	paddleHeight = 18.0
	paddleSpeed  = 3.0 // units per tick
	paddleMargin = 4.0

	goalHalfHeight = 12.0

	serveSpeedX = 2.0
	serveSpeedY = 3.0

	scoreToWin  = 5
	roundLength = 2 * time.Minute

	simInterval  = 16 * time.Millisecond
	pushInterval = 50 * time.Millisecond
)

// Spec returns the room registration for this variant.
func Spec() room.GameSpec {
	return room.GameSpec{
		Config: game.Config{
			Type:              GameType,
			MinPlayers:        2,
			MaxPlayers:        2,
			SimInterval:       simInterval,
			BroadcastInterval: pushInterval,
			AllowSpectators:   true,
		},
		Factory: func(seed int64) game.Game { return New(seed) },
	}
}

// Ball is the server-authoritative projectile. Velocity is expressed in
// units per simulation tick; one tick advances position by exactly the
// velocity vector.
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	R      float64 `json:"r"`
}

// Paddle occupies the left (seat 0) or right (seat 1) edge of the field.
type Paddle struct {
	Y   float64 `json:"y"`
	Dir int     `json:"dir"` // -1 up, 0 hold, 1 down
}

type Game struct {
	seed int64
	host game.Host

	seats   []game.PlayerInfo
	ball    Ball
	paddles [2]Paddle
	scores  [2]int
	serves  int

	remaining time.Duration
	paused    int
	restored  bool
	finished  bool
}

func New(seed int64) *Game {
	g := &Game{seed: seed, remaining: roundLength}
	g.resetBall(0)
	g.paddles[0].Y = fieldHeight / 2
	g.paddles[1].Y = fieldHeight / 2
	return g
}

func (g *Game) Config() game.Config { return Spec().Config }

func (g *Game) Start(host game.Host, players []game.PlayerInfo) {
	g.host = host
	g.seats = players
}

func (g *Game) HandleIntent(uid string, intent game.Intent) error {
	if intent.Type != "paddle_input" {
		return fmt.Errorf("unsupported intent %q", intent.Type)
	}
	seat, ok := g.seatOf(uid)
	if !ok || seat > 1 {
		return errors.New("unknown player")
	}
	var payload struct {
		Dir int `json:"dir"`
	}
	if err := json.Unmarshal(intent.Data, &payload); err != nil {
		return fmt.Errorf("malformed paddle_input payload: %w", err)
	}
	if payload.Dir < -1 || payload.Dir > 1 {
		return errors.New("dir must be -1, 0 or 1")
	}
	g.paddles[seat].Dir = payload.Dir
	return nil
}

// Tick advances one fixed timestep: paddle motion, ball integration, wall
// and paddle collisions, then scoring. All inside the simulation, never
// driven by broadcast cadence.
func (g *Game) Tick(dt time.Duration) {
	if g.finished || g.paused > 0 || len(g.seats) < 2 {
		return
	}

	// A scoreless stalemate still ends: the leader at expiry takes the
	// match, equal scores are a draw.
	g.remaining -= dt
	if g.remaining <= 0 {
		g.finished = true
		g.host.Finish(room.Evaluate(g.FinalStats(), game.ReasonTimeExpired))
		return
	}

	for i := range g.paddles {
		g.paddles[i].Y += float64(g.paddles[i].Dir) * paddleSpeed
		g.paddles[i].Y = clamp(g.paddles[i].Y, paddleHeight/2, fieldHeight-paddleHeight/2)
	}

	g.ball.X += g.ball.VX
	g.ball.Y += g.ball.VY

	// Top/bottom wall bounce: clamp to radius, flip the velocity sign.
	if g.ball.Y <= g.ball.R && g.ball.VY < 0 {
		g.ball.Y = g.ball.R
		g.ball.VY = -g.ball.VY
	}
	if g.ball.Y >= fieldHeight-g.ball.R && g.ball.VY > 0 {
		g.ball.Y = fieldHeight - g.ball.R
		g.ball.VY = -g.ball.VY
	}

	// Paddle faces sit just inside the side walls.
	if g.ball.X-g.ball.R <= paddleMargin && g.ball.VX < 0 && g.hits(0) {
		g.ball.X = paddleMargin + g.ball.R
		g.ball.VX = -g.ball.VX
	}
	if g.ball.X+g.ball.R >= fieldWidth-paddleMargin && g.ball.VX > 0 && g.hits(1) {
		g.ball.X = fieldWidth - paddleMargin - g.ball.R
		g.ball.VX = -g.ball.VX
	}

	// Side walls: a goal only opens in the center band; everywhere else the
	// ball bounces like the top and bottom walls.
	if g.ball.X <= g.ball.R && g.ball.VX < 0 {
		if g.inGoalBand() {
			g.scorePoint(1)
		} else {
			g.ball.X = g.ball.R
			g.ball.VX = -g.ball.VX
		}
	} else if g.ball.X >= fieldWidth-g.ball.R && g.ball.VX > 0 {
		if g.inGoalBand() {
			g.scorePoint(0)
		} else {
			g.ball.X = fieldWidth - g.ball.R
			g.ball.VX = -g.ball.VX
		}
	}
}

func (g *Game) inGoalBand() bool {
	return g.ball.Y >= fieldHeight/2-goalHalfHeight && g.ball.Y <= fieldHeight/2+goalHalfHeight
}

func (g *Game) hits(seat int) bool {
	half := paddleHeight / 2
	return g.ball.Y >= g.paddles[seat].Y-half-g.ball.R && g.ball.Y <= g.paddles[seat].Y+half+g.ball.R
}

func (g *Game) scorePoint(seat int) {
	g.scores[seat]++
	g.serves++
	g.host.Broadcast("point", map[string]any{
		"seat": seat, "uid": g.seats[seat].UID, "scores": g.scores,
	})
	if g.scores[seat] >= scoreToWin {
		g.finished = true
		g.host.Finish(room.Evaluate(g.FinalStats(), game.ReasonScoreThreshold))
		return
	}
	g.resetBall(g.serves)
}

// resetBall serves toward alternating sides.
func (g *Game) resetBall(serve int) {
	vx := serveSpeedX
	if serve%2 == 1 {
		vx = -vx
	}
	vy := serveSpeedY
	if serve%4 >= 2 {
		vy = -vy
	}
	g.ball = Ball{X: fieldWidth / 2, Y: fieldHeight / 2, VX: vx, VY: vy, R: ballRadius}
}

func (g *Game) PlayerDisconnected(uid string) { g.paused++ }

func (g *Game) PlayerReconnected(uid string) {
	if g.paused > 0 {
		g.paused--
	}
}

func (g *Game) PlayerForfeited(uid string) {
	g.finished = true
}

type publicState struct {
	Ball        Ball      `json:"ball"`
	Paddles     [2]Paddle `json:"paddles"`
	Scores      [2]int    `json:"scores"`
	RemainingMS int64     `json:"remaining_ms"`
}

func (g *Game) PublicSnapshot() any {
	return publicState{
		Ball:        g.ball,
		Paddles:     g.paddles,
		Scores:      g.scores,
		RemainingMS: g.remaining.Milliseconds(),
	}
}

// PrivatePayload: a duel has no hidden per-player state.
func (g *Game) PrivatePayload(uid string) (string, any, bool) {
	return "", nil, false
}

func (g *Game) FinalStats() map[string]game.Stats {
	stats := make(map[string]game.Stats, len(g.seats))
	for _, p := range g.seats {
		if p.Seat < 2 {
			stats[p.UID] = game.Stats{Primary: float64(g.scores[p.Seat])}
		}
	}
	return stats
}

type suspended struct {
	Ball      Ball              `json:"ball"`
	Paddles   [2]Paddle         `json:"paddles"`
	Scores    [2]int            `json:"scores"`
	Serves    int               `json:"serves"`
	Remaining time.Duration     `json:"remaining"`
	Seats     []game.PlayerInfo `json:"seats"`
}

func (g *Game) Suspend() ([]byte, []byte, error) {
	public, err := json.Marshal(suspended{
		Ball: g.ball, Paddles: g.paddles, Scores: g.scores, Serves: g.serves,
		Remaining: g.remaining, Seats: g.seats,
	})
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
	g.ball = s.Ball
	g.paddles = s.Paddles
	g.scores = s.Scores
	g.serves = s.Serves
	g.remaining = s.Remaining
	g.seats = s.Seats
	g.restored = true
	return nil
}

func (g *Game) seatOf(uid string) (int, bool) {
	for _, p := range g.seats {
		if p.UID == uid {
			return p.Seat, true
		}
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
