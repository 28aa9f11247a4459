// Package cards implements the hidden-information card game variant: a
// crazy-eights style shedding game where hands stay private to their owners
// and only derived facts (hand sizes, whose turn) are ever broadcast.
package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/mintkit/gameroom/internal/game"
	"github.com/mintkit/gameroom/internal/room"
)

const (
	GameType = "cards"

	handSize     = 7
	turnClock    = 30 * time.Second
	simInterval  = 125 * time.Millisecond
	pushInterval = 100 * time.Millisecond
)

var (
	errNotYourTurn  = errors.New("not your turn")
	errCardNotOwned = errors.New("card not in hand")
	errNoMatch      = errors.New("card matches neither suit nor rank")
	errEmptyDeck    = errors.New("draw pile is empty")
)

// Card is one playing card. Suit is one of "S","H","D","C"; Rank 0..12.
type Card struct {
	Suit string `json:"suit"`
	Rank int    `json:"rank"`
}

func (c Card) String() string { return fmt.Sprintf("%s%d", c.Suit, c.Rank) }

// Spec returns the room registration for this variant.
func Spec() room.GameSpec {
	return room.GameSpec{
		Config: game.Config{
			Type:              GameType,
			MinPlayers:        2,
			MaxPlayers:        4,
			SimInterval:       simInterval,
			BroadcastInterval: pushInterval,
			AllowSpectators:   true,
		},
		Factory: func(seed int64) game.Game { return New(seed) },
	}
}

// Game is one dealt match. Hands live exclusively in the hidden partition;
// the public snapshot carries hand sizes only.
type Game struct {
	seed int64
	host game.Host

	hands   *room.HiddenPartition
	seats   []game.PlayerInfo
	deck    []Card
	discard []Card

	currentSuit string
	currentRank int
	turnSeat    int

	turnRemaining time.Duration
	paused        int // depth of grace windows currently pausing the turn clock

	restored bool
	finished bool
}

func New(seed int64) *Game {
	return &Game{
		seed: seed,
		hands: room.NewHiddenPartition(func(secret any) int {
			return len(secret.([]Card))
		}),
	}
}

func (g *Game) Config() game.Config { return Spec().Config }

// Start deals from the shared seed, or re-attaches a restored match without
// redealing.
func (g *Game) Start(host game.Host, players []game.PlayerInfo) {
	g.host = host
	g.seats = players

	if g.restored {
		g.deliverHands()
		return
	}

	g.deck = newDeck()
	rng := rand.New(rand.NewSource(g.seed))
	rng.Shuffle(len(g.deck), func(i, j int) { g.deck[i], g.deck[j] = g.deck[j], g.deck[i] })

	for _, p := range players {
		hand := append([]Card(nil), g.deck[:handSize]...)
		g.deck = g.deck[handSize:]
		g.hands.Set(p.UID, hand)
	}

	top := g.deck[0]
	g.deck = g.deck[1:]
	g.discard = []Card{top}
	g.currentSuit = top.Suit
	g.currentRank = top.Rank
	g.turnSeat = 0
	g.turnRemaining = turnClock

	g.deliverHands()
}

func (g *Game) deliverHands() {
	for _, p := range g.seats {
		if hand, ok := g.hands.Get(p.UID); ok {
			g.host.SendTo(p.UID, "hand", map[string]any{"cards": hand.([]Card)})
		}
	}
}

func (g *Game) HandleIntent(uid string, intent game.Intent) error {
	switch intent.Type {
	case "play_card":
		var payload struct {
			Card Card `json:"card"`
		}
		if err := json.Unmarshal(intent.Data, &payload); err != nil {
			return fmt.Errorf("malformed play_card payload: %w", err)
		}
		return g.playCard(uid, payload.Card)
	case "draw_card":
		return g.drawCard(uid)
	default:
		return fmt.Errorf("unsupported intent %q", intent.Type)
	}
}

func (g *Game) playCard(uid string, card Card) error {
	if g.finished {
		return errors.New("match already resolved")
	}
	seat, ok := g.seatOf(uid)
	if !ok {
		return errors.New("unknown player")
	}
	if seat != g.turnSeat {
		return errNotYourTurn
	}
	if card.Suit != g.currentSuit && card.Rank != g.currentRank {
		return errNoMatch
	}

	hand := g.hand(uid)
	idx := indexOf(hand, card)
	if idx < 0 {
		return errCardNotOwned
	}

	hand = append(hand[:idx], hand[idx+1:]...)
	g.hands.Set(uid, hand)
	g.discard = append(g.discard, card)
	g.currentSuit = card.Suit
	g.currentRank = card.Rank

	g.host.Broadcast("card_played", map[string]any{
		"uid": uid, "card": card, "hand_sizes": g.hands.Sizes(),
	})

	if len(hand) == 0 {
		g.finished = true
		g.host.Finish(room.Evaluate(g.FinalStats(), game.ReasonEmptyHand))
		return nil
	}

	g.advanceTurn()
	return nil
}

func (g *Game) drawCard(uid string) error {
	if g.finished {
		return errors.New("match already resolved")
	}
	seat, ok := g.seatOf(uid)
	if !ok {
		return errors.New("unknown player")
	}
	if seat != g.turnSeat {
		return errNotYourTurn
	}
	if len(g.deck) == 0 {
		return errEmptyDeck
	}

	card := g.deck[0]
	g.deck = g.deck[1:]
	hand := append(g.hand(uid), card)
	g.hands.Set(uid, hand)

	// Targeted delivery: only the owner learns what was drawn.
	g.host.SendTo(uid, "card_drawn", map[string]any{"card": card})
	g.host.Broadcast("player_drew", map[string]any{
		"uid": uid, "deck_size": len(g.deck), "hand_sizes": g.hands.Sizes(),
	})

	g.advanceTurn()
	return nil
}

// advanceTurn moves to the next seat in roster order and rearms the turn
// clock.
func (g *Game) advanceTurn() {
	g.turnSeat = (g.turnSeat + 1) % len(g.seats)
	g.turnRemaining = turnClock
	g.host.Broadcast("turn", map[string]any{"seat": g.turnSeat, "uid": g.seats[g.turnSeat].UID})
}

// Tick runs the turn clock. On expiry the current player auto-draws (or
// auto-passes on an empty deck) so one absent player cannot stall the match.
func (g *Game) Tick(dt time.Duration) {
	if g.finished || g.paused > 0 {
		return
	}
	g.turnRemaining -= dt
	if g.turnRemaining > 0 {
		return
	}
	uid := g.seats[g.turnSeat].UID
	if err := g.drawCard(uid); err != nil {
		g.advanceTurn()
	}
}

func (g *Game) PlayerDisconnected(uid string) { g.paused++ }

func (g *Game) PlayerReconnected(uid string) {
	if g.paused > 0 {
		g.paused--
	}
}

// PlayerForfeited defers to the room's generic opponent_left resolution.
func (g *Game) PlayerForfeited(uid string) {
	g.finished = true
}

type publicState struct {
	HandSizes   map[string]int `json:"hand_sizes"`
	DeckSize    int            `json:"deck_size"`
	DiscardTop  Card           `json:"discard_top"`
	CurrentSuit string         `json:"current_suit"`
	TurnSeat    int            `json:"turn_seat"`
}

func (g *Game) PublicSnapshot() any {
	snap := publicState{
		HandSizes:   g.hands.Sizes(),
		DeckSize:    len(g.deck),
		CurrentSuit: g.currentSuit,
		TurnSeat:    g.turnSeat,
	}
	if n := len(g.discard); n > 0 {
		snap.DiscardTop = g.discard[n-1]
	}
	return snap
}

func (g *Game) PrivatePayload(uid string) (string, any, bool) {
	hand, ok := g.hands.Get(uid)
	if !ok {
		return "", nil, false
	}
	return "hand", map[string]any{"cards": hand.([]Card)}, true
}

// FinalStats orders players by fewest cards left: primary is the negated
// hand size so the emptiest hand ranks first. Equal hand sizes resolve as
// a draw.
func (g *Game) FinalStats() map[string]game.Stats {
	stats := make(map[string]game.Stats, len(g.seats))
	for _, p := range g.seats {
		stats[p.UID] = game.Stats{Primary: -float64(g.hands.Size(p.UID))}
	}
	return stats
}

type suspendedPublic struct {
	Deck        []Card            `json:"deck"`
	Discard     []Card            `json:"discard"`
	CurrentSuit string            `json:"current_suit"`
	CurrentRank int               `json:"current_rank"`
	TurnSeat    int               `json:"turn_seat"`
	Seats       []game.PlayerInfo `json:"seats"`
}

func (g *Game) Suspend() ([]byte, []byte, error) {
	public, err := json.Marshal(suspendedPublic{
		Deck:        g.deck,
		Discard:     g.discard,
		CurrentSuit: g.currentSuit,
		CurrentRank: g.currentRank,
		TurnSeat:    g.turnSeat,
		Seats:       g.seats,
	})
	if err != nil {
		return nil, nil, err
	}
	hands := make(map[string][]Card)
	for _, uid := range g.hands.Owners() {
		h, _ := g.hands.Get(uid)
		hands[uid] = h.([]Card)
	}
	private, err := json.Marshal(hands)
	if err != nil {
		return nil, nil, err
	}
	return public, private, nil
}

func (g *Game) Resume(public, private []byte) error {
	var pub suspendedPublic
	if err := json.Unmarshal(public, &pub); err != nil {
		return fmt.Errorf("decode public bundle: %w", err)
	}
	var hands map[string][]Card
	if err := json.Unmarshal(private, &hands); err != nil {
		return fmt.Errorf("decode private bundle: %w", err)
	}
	g.deck = pub.Deck
	g.discard = pub.Discard
	g.currentSuit = pub.CurrentSuit
	g.currentRank = pub.CurrentRank
	g.turnSeat = pub.TurnSeat
	g.seats = pub.Seats
	for uid, hand := range hands {
		g.hands.Set(uid, hand)
	}
	g.turnRemaining = turnClock
	g.restored = true
	return nil
}

/* ---- helpers ---- */

func newDeck() []Card {
	suits := []string{"S", "H", "D", "C"}
	deck := make([]Card, 0, 52)
	for _, s := range suits {
		for r := 0; r < 13; r++ {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

func (g *Game) seatOf(uid string) (int, bool) {
	for _, p := range g.seats {
		if p.UID == uid {
			return p.Seat, true
		}
	}
	return 0, false
}

func (g *Game) hand(uid string) []Card {
	h, ok := g.hands.Get(uid)
	if !ok {
		return nil
	}
	return h.([]Card)
}

func indexOf(hand []Card, card Card) int {
	for i, c := range hand {
		if c.Suit == card.Suit && c.Rank == card.Rank {
			return i
		}
	}
	return -1
}
