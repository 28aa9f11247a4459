package game

import (
	"encoding/json"
	"time"
)

// Config describes the fixed parameters of one game type.
type Config struct {
	Type              string
	MinPlayers        int
	MaxPlayers        int
	SimInterval       time.Duration
	BroadcastInterval time.Duration
	AllowSpectators   bool
}

// PlayerInfo is the roster view a game receives at start.
type PlayerInfo struct {
	UID         string
	DisplayName string
	Seat        int
}

// Intent is one decoded client message addressed at the running game.
type Intent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Stats is the final per-player snapshot the win evaluator orders.
// Primary is compared first, then Secondary; both descending.
type Stats struct {
	Primary   float64 `json:"primary"`
	Secondary float64 `json:"secondary"`
}

// Result is the resolved outcome of a match.
type Result struct {
	WinnerUID string           `json:"winner_uid,omitempty"`
	Reason    string           `json:"reason"`
	Draw      bool             `json:"draw,omitempty"`
	Stats     map[string]Stats `json:"stats"`
}

// Match end reasons shared across game types.
const (
	ReasonScoreThreshold = "score_threshold"
	ReasonTimeExpired    = "time_expired"
	ReasonEmptyHand      = "empty_hand"
	ReasonOpponentLeft   = "opponent_left"
	ReasonForfeit        = "forfeit"
	ReasonElimination    = "elimination"
	ReasonMatchComplete  = "match_complete"
)

// Host is the room-side surface a running game mutates the world through.
// Every Host method must only be called from inside a Game callback; the
// room serializes those, so Host calls need no extra locking.
type Host interface {
	RoomID() string
	Seed() int64
	Now() time.Time

	// Broadcast sends a named event with the given payload to every
	// participant and spectator. Payloads must never contain private state.
	Broadcast(eventType string, data any)

	// SendTo delivers a targeted event to a single participant, used for
	// private state (hands) and per-player rejections.
	SendTo(uid string, eventType string, data any)

	// Finish resolves the match. Idempotent: only the first call takes effect.
	Finish(result Result)
}

// Game is one minigame variant plugged into the room engine. All methods are
// invoked with the owning session serialized, never concurrently.
type Game interface {
	Config() Config

	// Start begins play. Seed-derived randomness and initial private
	// deliveries (dealt hands) happen here.
	Start(host Host, players []PlayerInfo)

	// HandleIntent applies one client intent. A returned error is reported
	// to the sender as a targeted rejection; state must be unchanged then.
	HandleIntent(uid string, intent Intent) error

	// Tick advances the simulation by one fixed timestep.
	Tick(dt time.Duration)

	// PlayerDisconnected pauses any per-player clocks (shot clock) while the
	// participant is inside a reconnection grace window.
	PlayerDisconnected(uid string)

	// PlayerReconnected resumes paused clocks and re-delivers private state.
	PlayerReconnected(uid string)

	// PlayerForfeited reports a grace-window expiry. A game may resolve the
	// match itself via Host.Finish; if it does not, the room applies the
	// generic opponent_left resolution.
	PlayerForfeited(uid string)

	// PublicSnapshot is the broadcast projection. It must not reference
	// private per-player state.
	PublicSnapshot() any

	// PrivatePayload returns the targeted event re-sent to uid on
	// reconnection and restore. ok is false when the player has none.
	PrivatePayload(uid string) (eventType string, data any, ok bool)

	// FinalStats feeds the win evaluator.
	FinalStats() map[string]Stats

	// Suspend serializes the game into public and private bundles for the
	// persistence bridge; Resume is its inverse at session restore.
	Suspend() (public, private []byte, err error)
	Resume(public, private []byte) error
}

// Factory builds a fresh game instance for one match, seeded with the
// session's shared RNG seed.
type Factory func(seed int64) Game
