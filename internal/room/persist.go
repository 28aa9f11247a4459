package room

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mintkit/gameroom/internal/game"
)

// SuspendedBundle is the opaque pair of projections saved when a playing
// session is abandoned mid-match and consumed to resume it later. Private
// data travels in its own bundle so the public half can be handed to
// observers or tooling without leaking hands.
type SuspendedBundle struct {
	MatchID  string          `json:"match_id"`
	GameType string          `json:"game_type"`
	Seed     int64           `json:"seed"`
	Public   json.RawMessage `json:"public"`
	Private  json.RawMessage `json:"private"`
	SavedAt  time.Time       `json:"saved_at"`
}

// Store is the persistence bridge. Implementations are external
// collaborators; every call is non-fatal to the live session. A failed
// suspend-save loses state at disposal (accepted, documented risk) and a
// failed finalize never rolls back an already-broadcast outcome.
type Store interface {
	SaveSuspended(ctx context.Context, bundle SuspendedBundle) error
	// LoadSuspended returns nil with no error when no bundle exists.
	LoadSuspended(ctx context.Context, matchID string) (*SuspendedBundle, error)
	// FinalizeCompleted must be idempotent: it is invoked from explicit
	// match end and again from the disposal-time fallback.
	FinalizeCompleted(ctx context.Context, matchID string, result game.Result) error
}

// MatchEventPublisher fans completed-match events out to the message bus.
// Nil-safe at the call sites; publishing failures are logged only.
type MatchEventPublisher interface {
	PublishMatchEvent(ctx context.Context, roomID, eventType string, payload []byte) error
}
