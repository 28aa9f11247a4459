package room

import (
	"errors"
	"time"

	"github.com/mintkit/gameroom/internal/auth"
)

// Conn is the transport handle for one connected client. Send must not
// block; slow consumers are the transport's problem, not the session's.
type Conn interface {
	ID() string
	Send(payload []byte)
	Close()
}

// Participant is a seated player. The seat index is stable for the lifetime
// of the match; reconnection replaces the connection handle only.
type Participant struct {
	UID         string
	DisplayName string
	AvatarURL   string
	Seat        int
	Conn        Conn
	Connected   bool
	Ready       bool
}

// Spectator observes broadcasts but never holds a seat and never counts
// toward quorum.
type Spectator struct {
	UID      string
	Conn     Conn
	JoinedAt time.Time
}

var (
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadyJoined = errors.New("identity already seated")
)

// Roster tracks participants in join order plus spectators.
type Roster struct {
	players    []*Participant
	spectators map[string]*Spectator
}

func NewRoster() *Roster {
	return &Roster{spectators: make(map[string]*Spectator)}
}

// AddPlayer seats a new participant. Seats are assigned strictly in join
// order: the first joiner gets seat 0. Downstream layout decisions (which
// side of the field a paddle occupies) depend on this.
func (r *Roster) AddPlayer(conn Conn, identity auth.Identity, maxPlayers int) (*Participant, error) {
	if r.Player(identity.UID) != nil {
		return nil, ErrAlreadyJoined
	}
	if len(r.players) >= maxPlayers {
		return nil, ErrRoomFull
	}
	p := &Participant{
		UID:         identity.UID,
		DisplayName: identity.DisplayName,
		AvatarURL:   identity.AvatarURL,
		Seat:        len(r.players),
		Conn:        conn,
		Connected:   true,
	}
	r.players = append(r.players, p)
	return p, nil
}

// AddSpectator registers an observer keyed by uid.
func (r *Roster) AddSpectator(conn Conn, identity auth.Identity, now time.Time) *Spectator {
	s := &Spectator{UID: identity.UID, Conn: conn, JoinedAt: now}
	r.spectators[identity.UID] = s
	return s
}

// Remove drops whichever participant or spectator owns the connection and
// reports what was removed.
func (r *Roster) Remove(connID string) (participant *Participant, spectator *Spectator) {
	for i, p := range r.players {
		if p.Conn != nil && p.Conn.ID() == connID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			for j := i; j < len(r.players); j++ {
				r.players[j].Seat = j
			}
			return p, nil
		}
	}
	for uid, s := range r.spectators {
		if s.Conn != nil && s.Conn.ID() == connID {
			delete(r.spectators, uid)
			return nil, s
		}
	}
	return nil, nil
}

// RemovePlayer drops a participant by uid without reseating rules applied to
// spectators.
func (r *Roster) RemovePlayer(uid string) *Participant {
	for i, p := range r.players {
		if p.UID == uid {
			r.players = append(r.players[:i], r.players[i+1:]...)
			for j := i; j < len(r.players); j++ {
				r.players[j].Seat = j
			}
			return p
		}
	}
	return nil
}

func (r *Roster) IsSpectator(uid string) bool {
	_, ok := r.spectators[uid]
	return ok
}

// Player looks a participant up by uid.
func (r *Roster) Player(uid string) *Participant {
	for _, p := range r.players {
		if p.UID == uid {
			return p
		}
	}
	return nil
}

// ByConn looks a participant up by connection id.
func (r *Roster) ByConn(connID string) *Participant {
	for _, p := range r.players {
		if p.Conn != nil && p.Conn.ID() == connID {
			return p
		}
	}
	return nil
}

// BySeat returns the participant in the given seat, or nil.
func (r *Roster) BySeat(seat int) *Participant {
	if seat < 0 || seat >= len(r.players) {
		return nil
	}
	return r.players[seat]
}

// Players returns the seated participants in seat order.
func (r *Roster) Players() []*Participant {
	return r.players
}

func (r *Roster) Spectators() map[string]*Spectator {
	return r.spectators
}

func (r *Roster) Len() int { return len(r.players) }

func (r *Roster) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (r *Roster) AllReady() bool {
	for _, p := range r.players {
		if !p.Ready {
			return false
		}
	}
	return len(r.players) > 0
}

// MarkAllReady is the quorum convenience policy: reaching quorum readies
// everyone currently seated.
func (r *Roster) MarkAllReady() {
	for _, p := range r.players {
		p.Ready = true
	}
}

// RotateSeats shifts every participant one seat over. Used on rematch reset:
// seats may swap, identities never do.
func (r *Roster) RotateSeats() {
	if len(r.players) < 2 {
		return
	}
	last := r.players[len(r.players)-1]
	copy(r.players[1:], r.players[:len(r.players)-1])
	r.players[0] = last
	for i, p := range r.players {
		p.Seat = i
	}
}
