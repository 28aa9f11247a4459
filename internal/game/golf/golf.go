// Package golf implements the golf duels variant: a nested per-hole,
// per-shot state machine layered on the generic room engine. It exercises
// the scheduler, grace timers, shot clock pausing and the win evaluator
// all at once.
package golf

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mintkit/gameroom/internal/game"
	"github.com/mintkit/gameroom/internal/room"
)

const (
	GameType = "golf"

	holesPerMatch   = 9
	strokeCapOver   = 4 // cap = par + strokeCapOver; reaching it holes out
	introTime       = 3 * time.Second
	shotClock       = 20 * time.Second
	maxShotSpeed    = 80.0 // units per second at power 1.0
	minAutoPower    = 0.05
	stopSpeed       = 1.0
	captureSpeed    = 30.0
	wallRestitution = 0.8

	simInterval  = 16 * time.Millisecond
	pushInterval = 66 * time.Millisecond
)

// stateKind tags the nested phase inside the room's Playing phase.
type stateKind string

const (
	stateHoleIntro   stateKind = "hole_intro"
	stateAiming      stateKind = "aiming"
	stateBallMoving  stateKind = "ball_moving"
	stateHoleResolve stateKind = "hole_resolve"
	stateMatchEnd    stateKind = "match_end"
)

// holeState is the tagged union for the nested machine: the kind plus its
// per-state data (which seat is up).
type holeState struct {
	Kind stateKind `json:"kind"`
	Seat int       `json:"seat"` // meaningful for aiming / ball_moving
}

// playerHole is one player's progress on the current hole.
type playerHole struct {
	Ball     Vec2 `json:"ball"`
	Vel      Vec2 `json:"vel"`
	LastSafe Vec2 `json:"last_safe"`
	Strokes  int  `json:"strokes"`
	Holed    bool `json:"holed"`
}

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

type Game struct {
	seed int64
	host game.Host

	seats []game.PlayerInfo

	holeNumber int
	hole       Hole
	state      holeState
	players    [2]playerHole
	holesWon   [2]int
	strokes    [2]int // total strokes over the match, tie-break stat

	introLeft time.Duration
	clockLeft time.Duration

	paused   int
	restored bool
	finished bool
}

func New(seed int64) *Game {
	return &Game{seed: seed}
}

func (g *Game) Config() game.Config { return Spec().Config }

func (g *Game) Start(host game.Host, players []game.PlayerInfo) {
	g.host = host
	g.seats = players
	if g.restored {
		// Hole selection is a pure function of (session, hole number), so
		// the layout does not need to travel in the suspended bundle.
		g.hole = SelectHole(host.RoomID(), g.holeNumber)
		g.announceHole()
		return
	}
	g.holeNumber = 0
	g.nextHole()
}

// nextHole advances the outer loop: selects the next layout
// deterministically and re-enters the intro state.
func (g *Game) nextHole() {
	g.holeNumber++
	if g.holeNumber > holesPerMatch {
		g.state = holeState{Kind: stateMatchEnd}
		g.finished = true
		g.host.Finish(room.Evaluate(g.FinalStats(), game.ReasonMatchComplete))
		return
	}
	g.hole = SelectHole(g.host.RoomID(), g.holeNumber)
	for i := range g.players {
		g.players[i] = playerHole{Ball: g.hole.Tee, LastSafe: g.hole.Tee}
	}
	g.state = holeState{Kind: stateHoleIntro}
	g.introLeft = introTime
	g.announceHole()
}

func (g *Game) announceHole() {
	g.host.Broadcast("hole_start", map[string]any{
		"hole":   g.holeNumber,
		"layout": g.hole,
	})
}

func (g *Game) strokeCap() int { return g.hole.Par + strokeCapOver }

// firstSeat alternates the honor between holes.
func (g *Game) firstSeat() int { return (g.holeNumber + 1) % 2 }

func (g *Game) HandleIntent(uid string, intent game.Intent) error {
	if intent.Type != "shot" {
		return fmt.Errorf("unsupported intent %q", intent.Type)
	}
	seat, ok := g.seatOf(uid)
	if !ok {
		return errors.New("unknown player")
	}
	var payload struct {
		Power float64 `json:"power"`
		DirX  float64 `json:"dir_x"`
		DirY  float64 `json:"dir_y"`
	}
	if err := json.Unmarshal(intent.Data, &payload); err != nil {
		return fmt.Errorf("malformed shot payload: %w", err)
	}
	return g.executeShot(seat, payload.Power, payload.DirX, payload.DirY)
}

// executeShot validates turn and phase, clamps power into [0,1] and either
// launches the ball or, at the stroke cap, teleports it straight into the
// cup so a hole can never run unbounded.
func (g *Game) executeShot(seat int, power, dirX, dirY float64) error {
	if g.state.Kind != stateAiming {
		return fmt.Errorf("no shot expected in state %s", g.state.Kind)
	}
	if seat != g.state.Seat {
		return errors.New("not your turn")
	}
	norm := math.Hypot(dirX, dirY)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return errors.New("invalid shot direction")
	}

	power = clamp(power, 0, 1)
	p := &g.players[seat]
	p.Strokes++
	g.strokes[seat]++

	if p.Strokes >= g.strokeCap() {
		g.holeOut(seat, true)
		return nil
	}

	p.LastSafe = p.Ball
	speed := power * maxShotSpeed
	p.Vel = Vec2{X: dirX / norm * speed, Y: dirY / norm * speed}
	g.state = holeState{Kind: stateBallMoving, Seat: seat}

	g.host.Broadcast("shot", map[string]any{
		"seat": seat, "power": power, "strokes": p.Strokes,
	})
	return nil
}

// holeOut marks the seat's ball in the cup. capped shots are teleported
// rather than simulated.
func (g *Game) holeOut(seat int, capped bool) {
	p := &g.players[seat]
	p.Ball = g.hole.Cup
	p.Vel = Vec2{}
	p.Holed = true
	g.host.Broadcast("holed", map[string]any{
		"seat": seat, "strokes": p.Strokes, "capped": capped,
	})
	g.afterBallSettled(seat)
}

// Tick drives the nested machine: the intro countdown, the shot clock while
// aiming, and physics integration only while a ball is in motion.
func (g *Game) Tick(dt time.Duration) {
	if g.finished || g.paused > 0 {
		return
	}
	switch g.state.Kind {
	case stateHoleIntro:
		g.introLeft -= dt
		if g.introLeft <= 0 {
			g.beginAiming(g.firstSeat())
		}
	case stateAiming:
		g.clockLeft -= dt
		if g.clockLeft <= 0 {
			g.autoShot()
		}
	case stateBallMoving:
		g.integrate(dt)
	}
}

func (g *Game) beginAiming(seat int) {
	// Skip seats that have already holed out.
	if g.players[seat].Holed {
		seat = 1 - seat
	}
	g.state = holeState{Kind: stateAiming, Seat: seat}
	g.clockLeft = shotClock
	g.host.Broadcast("aiming", map[string]any{
		"seat": seat, "shot_clock_ms": shotClock.Milliseconds(),
	})
}

// autoShot is the shot-clock fallback: a conservative default aimed at the
// cup with minimum power.
func (g *Game) autoShot() {
	seat := g.state.Seat
	p := g.players[seat]
	dx, dy := g.hole.Cup.X-p.Ball.X, g.hole.Cup.Y-p.Ball.Y
	if dx == 0 && dy == 0 {
		dx = 1
	}
	log.Debug().Int("seat", seat).Msg("shot clock expired, auto-executing default shot")
	if err := g.executeShot(seat, minAutoPower, dx, dy); err != nil {
		log.Error().Err(err).Int("seat", seat).Msg("auto shot failed")
	}
}

// integrate advances the moving ball one timestep: friction, wall bounces,
// hazard reversion, cup capture and rest detection.
func (g *Game) integrate(dt time.Duration) {
	seat := g.state.Seat
	p := &g.players[seat]
	secs := dt.Seconds()

	p.Ball.X += p.Vel.X * secs
	p.Ball.Y += p.Vel.Y * secs

	decay := 1 - g.hole.Friction*secs
	if decay < 0 {
		decay = 0
	}
	p.Vel.X *= decay
	p.Vel.Y *= decay

	// Field walls.
	if p.Ball.X < 0 {
		p.Ball.X = 0
		p.Vel.X = -p.Vel.X * wallRestitution
	} else if p.Ball.X > g.hole.Width {
		p.Ball.X = g.hole.Width
		p.Vel.X = -p.Vel.X * wallRestitution
	}
	if p.Ball.Y < 0 {
		p.Ball.Y = 0
		p.Vel.Y = -p.Vel.Y * wallRestitution
	} else if p.Ball.Y > g.hole.Height {
		p.Ball.Y = g.hole.Height
		p.Vel.Y = -p.Vel.Y * wallRestitution
	}

	// Hazard contact reverts to the last safe rest and charges a penalty
	// stroke; the stroke cap applies to penalties too.
	for _, hz := range g.hole.Hazards {
		if hz.Contains(p.Ball) {
			p.Ball = p.LastSafe
			p.Vel = Vec2{}
			p.Strokes++
			g.strokes[seat]++
			g.host.Broadcast("hazard", map[string]any{"seat": seat, "strokes": p.Strokes})
			if p.Strokes >= g.strokeCap() {
				g.holeOut(seat, true)
				return
			}
			g.afterBallSettled(seat)
			return
		}
	}

	speed := math.Hypot(p.Vel.X, p.Vel.Y)

	// Cup capture needs proximity and a speed the cup can actually hold.
	if speed < captureSpeed && dist(p.Ball, g.hole.Cup) <= g.hole.CupR {
		g.holeOut(seat, false)
		return
	}

	if speed < stopSpeed {
		p.Vel = Vec2{}
		p.LastSafe = p.Ball
		g.afterBallSettled(seat)
	}
}

// afterBallSettled decides the next inner transition: alternate to the
// opponent, let the last unfinished player continue, or resolve the hole.
func (g *Game) afterBallSettled(seat int) {
	other := 1 - seat
	switch {
	case g.players[0].Holed && g.players[1].Holed:
		g.resolveHole()
	case !g.players[other].Holed:
		g.beginAiming(other)
	default:
		g.beginAiming(seat)
	}
}

// resolveHole scores the hole for the fewer-stroke player and advances the
// outer loop.
func (g *Game) resolveHole() {
	g.state = holeState{Kind: stateHoleResolve}
	a, b := g.players[0].Strokes, g.players[1].Strokes
	winner := -1
	if a < b {
		winner = 0
	} else if b < a {
		winner = 1
	}
	if winner >= 0 {
		g.holesWon[winner]++
	}
	g.host.Broadcast("hole_result", map[string]any{
		"hole": g.holeNumber, "strokes": []int{a, b}, "winner_seat": winner, "holes_won": g.holesWon,
	})
	g.nextHole()
}

func (g *Game) PlayerDisconnected(uid string) {
	// The shot clock (and everything else) pauses for the entire duration
	// any participant sits inside a reconnection grace window.
	g.paused++
}

func (g *Game) PlayerReconnected(uid string) {
	if g.paused > 0 {
		g.paused--
	}
}

// PlayerForfeited resolves the match immediately on holes won so far.
func (g *Game) PlayerForfeited(uid string) {
	if g.finished {
		return
	}
	g.finished = true
	g.state = holeState{Kind: stateMatchEnd}
	g.host.Finish(room.EvaluateForfeit(g.FinalStats(), uid, game.ReasonForfeit))
}

type publicState struct {
	Hole     int           `json:"hole"`
	State    holeState     `json:"state"`
	Players  [2]playerHole `json:"players"`
	HolesWon [2]int        `json:"holes_won"`
	ClockMS  int64         `json:"shot_clock_ms"`
	Paused   bool          `json:"paused"`
}

func (g *Game) PublicSnapshot() any {
	return publicState{
		Hole:     g.holeNumber,
		State:    g.state,
		Players:  g.players,
		HolesWon: g.holesWon,
		ClockMS:  g.clockLeft.Milliseconds(),
		Paused:   g.paused > 0,
	}
}

func (g *Game) PrivatePayload(uid string) (string, any, bool) {
	return "", nil, false
}

// FinalStats: holes won first, then fewest total strokes.
func (g *Game) FinalStats() map[string]game.Stats {
	stats := make(map[string]game.Stats, len(g.seats))
	for _, p := range g.seats {
		if p.Seat < 2 {
			stats[p.UID] = game.Stats{
				Primary:   float64(g.holesWon[p.Seat]),
				Secondary: -float64(g.strokes[p.Seat]),
			}
		}
	}
	return stats
}

type suspended struct {
	HoleNumber int               `json:"hole_number"`
	State      holeState         `json:"state"`
	Players    [2]playerHole     `json:"players"`
	HolesWon   [2]int            `json:"holes_won"`
	Strokes    [2]int            `json:"strokes"`
	ClockLeft  time.Duration     `json:"clock_left"`
	IntroLeft  time.Duration     `json:"intro_left"`
	Seats      []game.PlayerInfo `json:"seats"`
}

func (g *Game) Suspend() ([]byte, []byte, error) {
	public, err := json.Marshal(suspended{
		HoleNumber: g.holeNumber,
		State:      g.state,
		Players:    g.players,
		HolesWon:   g.holesWon,
		Strokes:    g.strokes,
		ClockLeft:  g.clockLeft,
		IntroLeft:  g.introLeft,
		Seats:      g.seats,
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
	g.holeNumber = s.HoleNumber
	g.state = s.State
	g.players = s.Players
	g.holesWon = s.HolesWon
	g.strokes = s.Strokes
	g.clockLeft = s.ClockLeft
	g.introLeft = s.IntroLeft
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

func dist(a, b Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
