package room

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Anti-cheat rejection causes. Rejected values are dropped and logged; the
// previous value stays authoritative and the session continues.
var (
	ErrScoreDecreased = errors.New("reported value decreased")
	ErrNotFinite      = errors.New("reported value is not finite")
	ErrNotIntegral    = errors.New("reported value must be an integer")
	ErrOverCeiling    = errors.New("reported value exceeds absolute ceiling")
	ErrRateExceeded   = errors.New("reported rate exceeds plausible bound")
)

// RateBounds is the per-game-type anti-cheat configuration: a pure lookup
// table, not dynamic dispatch.
type RateBounds struct {
	MaxPerSecond float64 `yaml:"max_per_second"`
	Ceiling      float64 `yaml:"ceiling"`
	Integral     bool    `yaml:"integral"`
}

// ToleranceFactor widens the rate bound to absorb network jitter and report
// batching bursts.
const ToleranceFactor = 1.5

const rateEpsilon = 1e-3 // floor for elapsed seconds in the rate division

// AntiCheat validates client-reported numeric progress against configured
// per-game bounds.
type AntiCheat struct {
	bounds map[string]RateBounds
}

// NewAntiCheat builds a validator from a bounds table keyed by game type.
func NewAntiCheat(bounds map[string]RateBounds) *AntiCheat {
	if bounds == nil {
		bounds = map[string]RateBounds{}
	}
	return &AntiCheat{bounds: bounds}
}

// DefaultBounds is the shipped bounds table.
func DefaultBounds() map[string]RateBounds {
	return map[string]RateBounds{
		"race": {MaxPerSecond: 200, Ceiling: 1_000_000, Integral: true},
	}
}

// Validate accepts or rejects one reported value. Game types absent from the
// bounds table pass through unchecked: availability over strictness, so a
// newly added game type never silently discards every report.
func (a *AntiCheat) Validate(gameType string, reported, previous float64, elapsed time.Duration) error {
	b, ok := a.bounds[gameType]
	if !ok {
		log.Debug().Str("game_type", gameType).Msg("no anti-cheat bounds configured; accepting report unchecked")
		return nil
	}

	if math.IsNaN(reported) || math.IsInf(reported, 0) {
		return ErrNotFinite
	}
	if reported < previous {
		return ErrScoreDecreased
	}
	if b.Integral && reported != math.Trunc(reported) {
		return ErrNotIntegral
	}
	if b.Ceiling > 0 && reported > b.Ceiling {
		return ErrOverCeiling
	}
	if b.MaxPerSecond > 0 {
		seconds := math.Max(elapsed.Seconds(), rateEpsilon)
		if reported/seconds > b.MaxPerSecond*ToleranceFactor {
			return ErrRateExceeded
		}
	}
	return nil
}
