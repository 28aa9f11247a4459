package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mintkit/gameroom/internal/game"
)

var (
	ErrUnknownGameType = errors.New("unknown game type")
	ErrRoomNotFound    = errors.New("room not found")
)

// GameSpec pairs a game's static configuration with its per-match factory.
type GameSpec struct {
	Config  game.Config
	Factory game.Factory
}

// Registry owns every live session. Sessions share nothing with each other;
// the registry only maps ids to actors and handles create/dispose.
type Registry struct {
	clock       clockwork.Clock
	store       Store
	publisher   MatchEventPublisher
	graceWindow time.Duration
	specs       map[string]GameSpec

	mu    sync.Mutex
	rooms map[string]*Session
}

type RegistryOptions struct {
	Clock       clockwork.Clock
	Store       Store
	Publisher   MatchEventPublisher
	GraceWindow time.Duration
	Games       map[string]GameSpec
}

func NewRegistry(opts RegistryOptions) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:       clock,
		store:       opts.Store,
		publisher:   opts.Publisher,
		graceWindow: opts.GraceWindow,
		specs:       opts.Games,
		rooms:       make(map[string]*Session),
	}
}

// CreateRoom starts a fresh session of the given game type. When roomID is
// empty a new id is generated; otherwise a suspended match under that id is
// restored if the store has one.
func (r *Registry) CreateRoom(ctx context.Context, gameType, roomID string) (*Session, error) {
	spec, ok := r.specs[gameType]
	if !ok {
		return nil, ErrUnknownGameType
	}
	if roomID == "" {
		roomID = uuid.New().String()
	}

	sess := NewSession(Options{
		ID:          roomID,
		Config:      spec.Config,
		NewGame:     spec.Factory,
		Clock:       r.clock,
		Store:       r.store,
		Publisher:   r.publisher,
		GraceWindow: r.graceWindow,
		OnEmpty:     r.onEmpty,
	})
	sess.TryRestore(ctx)

	r.mu.Lock()
	if existing, ok := r.rooms[roomID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.rooms[roomID] = sess
	total := len(r.rooms)
	r.mu.Unlock()

	log.Info().Str("room_id", roomID).Str("game_type", gameType).Int("total_rooms", total).Msg("room created")
	return sess, nil
}

// Get returns the live session for roomID.
func (r *Registry) Get(roomID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return sess, nil
}

// GetOrCreate fetches a room or creates it for the given game type.
func (r *Registry) GetOrCreate(ctx context.Context, gameType, roomID string) (*Session, error) {
	if roomID != "" {
		if sess, err := r.Get(roomID); err == nil {
			return sess, nil
		}
	}
	return r.CreateRoom(ctx, gameType, roomID)
}

// Dispose removes and tears down one session.
func (r *Registry) Dispose(roomID, reason string) {
	r.mu.Lock()
	sess, ok := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()
	if ok {
		sess.Dispose(reason)
	}
}

// DisposeAll tears every session down, used at server shutdown.
func (r *Registry) DisposeAll(reason string) {
	r.mu.Lock()
	rooms := make([]*Session, 0, len(r.rooms))
	for _, sess := range r.rooms {
		rooms = append(rooms, sess)
	}
	r.rooms = make(map[string]*Session)
	r.mu.Unlock()
	for _, sess := range rooms {
		sess.Dispose(reason)
	}
}

// Stats summarizes live rooms for the ops endpoint.
func (r *Registry) Stats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPhase := make(map[string]int)
	for _, sess := range r.rooms {
		byPhase[string(sess.Phase())]++
	}
	return map[string]any{
		"total_rooms": len(r.rooms),
		"by_phase":    byPhase,
	}
}

// onEmpty is the session callback for a fully drained room.
func (r *Registry) onEmpty(roomID string) {
	log.Debug().Str("room_id", roomID).Msg("room empty, disposing")
	r.Dispose(roomID, "empty")
}
