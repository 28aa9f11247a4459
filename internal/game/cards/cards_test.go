package cards

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mintkit/gameroom/internal/game"
)

type hostEvent struct {
	eventType string
	data      any
}

type fakeHost struct {
	roomID     string
	now        time.Time
	broadcasts []hostEvent
	targeted   map[string][]hostEvent
	result     *game.Result
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		roomID:   "room-1",
		now:      time.Unix(1000, 0),
		targeted: make(map[string][]hostEvent),
	}
}

func (h *fakeHost) RoomID() string { return h.roomID }
func (h *fakeHost) Seed() int64    { return 1 }
func (h *fakeHost) Now() time.Time { return h.now }

func (h *fakeHost) Broadcast(eventType string, data any) {
	h.broadcasts = append(h.broadcasts, hostEvent{eventType, data})
}

func (h *fakeHost) SendTo(uid string, eventType string, data any) {
	h.targeted[uid] = append(h.targeted[uid], hostEvent{eventType, data})
}

func (h *fakeHost) Finish(result game.Result) {
	if h.result == nil {
		h.result = &result
	}
}

func twoPlayers() []game.PlayerInfo {
	return []game.PlayerInfo{
		{UID: "alice", DisplayName: "alice", Seat: 0},
		{UID: "bob", DisplayName: "bob", Seat: 1},
	}
}

func startedGame(seed int64) (*Game, *fakeHost) {
	g := New(seed)
	h := newFakeHost()
	g.Start(h, twoPlayers())
	return g, h
}

func playIntent(t *testing.T, card Card) game.Intent {
	t.Helper()
	data, err := json.Marshal(map[string]any{"card": card})
	if err != nil {
		t.Fatal(err)
	}
	return game.Intent{Type: "play_card", Data: data}
}

func TestDealLeavesThirtySevenCards(t *testing.T) {
	g, h := startedGame(7)

	// 52 - 2x7 dealt - 1 flipped discard.
	if len(g.deck) != 37 {
		t.Errorf("deck size after deal = %d, want 37", len(g.deck))
	}
	if g.hands.Size("alice") != 7 || g.hands.Size("bob") != 7 {
		t.Errorf("hand sizes = %d/%d, want 7/7", g.hands.Size("alice"), g.hands.Size("bob"))
	}
	if len(g.discard) != 1 {
		t.Fatalf("discard size = %d, want 1", len(g.discard))
	}
	if g.currentSuit != g.discard[0].Suit || g.currentRank != g.discard[0].Rank {
		t.Error("current suit/rank not taken from the flipped card")
	}
	if g.turnSeat != 0 {
		t.Errorf("opening turn seat = %d, want 0", g.turnSeat)
	}

	// Both players got a targeted hand; nobody's hand was broadcast.
	for _, uid := range []string{"alice", "bob"} {
		if len(h.targeted[uid]) == 0 || h.targeted[uid][0].eventType != "hand" {
			t.Errorf("%s did not receive a targeted hand delivery", uid)
		}
	}
}

func TestDealIsSeedDeterministic(t *testing.T) {
	a, _ := startedGame(99)
	b, _ := startedGame(99)
	if a.hand("alice")[0] != b.hand("alice")[0] || a.discard[0] != b.discard[0] {
		t.Error("same seed produced different deals")
	}
	c, _ := startedGame(100)
	if a.discard[0] == c.discard[0] && a.hand("alice")[0] == c.hand("alice")[0] {
		t.Error("different seeds produced an identical deal (suspicious shuffle)")
	}
}

func TestPlayMatchingCardUpdatesSuitAndAdvancesTurn(t *testing.T) {
	g, h := startedGame(7)

	card := g.hand("alice")[0]
	g.currentSuit = card.Suit
	g.currentRank = (card.Rank + 1) % 13 // only the suit matches

	if err := g.HandleIntent("alice", playIntent(t, card)); err != nil {
		t.Fatalf("playCard error: %v", err)
	}
	if g.currentSuit != card.Suit || g.currentRank != card.Rank {
		t.Error("current suit/rank not updated from the played card")
	}
	if g.turnSeat != 1 {
		t.Errorf("turn seat = %d, want 1 (next in roster order)", g.turnSeat)
	}
	if g.hands.Size("alice") != 6 {
		t.Errorf("hand size after play = %d, want 6", g.hands.Size("alice"))
	}
	if top := g.discard[len(g.discard)-1]; top != card {
		t.Error("played card not on top of the discard pile")
	}

	var sawPlay bool
	for _, ev := range h.broadcasts {
		if ev.eventType == "card_played" {
			sawPlay = true
		}
	}
	if !sawPlay {
		t.Error("card_played never broadcast")
	}
}

func TestPlayRejections(t *testing.T) {
	g, _ := startedGame(7)
	aliceCard := g.hand("alice")[0]
	g.currentSuit = aliceCard.Suit
	g.currentRank = aliceCard.Rank

	tests := []struct {
		name string
		uid  string
		card Card
	}{
		{"out of turn", "bob", aliceCard},
		{"card not owned", "alice", offSuitCard(g, "alice")},
		{"unknown player", "mallory", aliceCard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := g.hands.Sizes()
			if err := g.HandleIntent(tt.uid, playIntent(t, tt.card)); err == nil {
				t.Fatal("expected rejection, got nil")
			}
			after := g.hands.Sizes()
			for uid, n := range before {
				if after[uid] != n {
					t.Errorf("rejected play mutated %s's hand: %d -> %d", uid, n, after[uid])
				}
			}
		})
	}
}

// offSuitCard returns a card guaranteed absent from uid's hand that matches
// the current suit.
func offSuitCard(g *Game, uid string) Card {
	hand := g.hand(uid)
	for rank := 0; rank < 13; rank++ {
		candidate := Card{Suit: g.currentSuit, Rank: rank}
		if indexOf(hand, candidate) < 0 {
			return candidate
		}
	}
	return Card{Suit: g.currentSuit, Rank: 0}
}

func TestEmptyHandEndsMatch(t *testing.T) {
	g, h := startedGame(7)
	last := Card{Suit: "H", Rank: 4}
	g.hands.Set("alice", []Card{last})
	g.currentSuit = last.Suit
	g.currentRank = last.Rank
	g.turnSeat = 0

	if err := g.HandleIntent("alice", playIntent(t, last)); err != nil {
		t.Fatal(err)
	}
	if h.result == nil {
		t.Fatal("emptying the hand did not finish the match")
	}
	if h.result.Reason != game.ReasonEmptyHand {
		t.Errorf("reason = %q, want %q", h.result.Reason, game.ReasonEmptyHand)
	}
	if h.result.WinnerUID != "alice" {
		t.Errorf("winner = %q, want alice", h.result.WinnerUID)
	}
}

func TestDrawIsTargetedToOwner(t *testing.T) {
	g, h := startedGame(7)
	deckBefore := len(g.deck)

	if err := g.HandleIntent("alice", game.Intent{Type: "draw_card"}); err != nil {
		t.Fatal(err)
	}
	if len(g.deck) != deckBefore-1 {
		t.Errorf("deck size = %d, want %d", len(g.deck), deckBefore-1)
	}
	if g.hands.Size("alice") != 8 {
		t.Errorf("hand size after draw = %d, want 8", g.hands.Size("alice"))
	}
	if g.turnSeat != 1 {
		t.Errorf("turn seat after draw = %d, want 1", g.turnSeat)
	}

	var drew bool
	for _, ev := range h.targeted["alice"] {
		if ev.eventType == "card_drawn" {
			drew = true
		}
	}
	if !drew {
		t.Error("drawn card not delivered to its owner")
	}
	// The broadcast announces the draw but never the card.
	for _, ev := range h.broadcasts {
		if ev.eventType == "player_drew" {
			b, err := json.Marshal(ev.data)
			if err != nil {
				t.Fatal(err)
			}
			if strings.Contains(string(b), `"card"`) {
				t.Errorf("player_drew broadcast leaks the card: %s", b)
			}
		}
	}
}

func TestTurnClockAutoDraws(t *testing.T) {
	g, _ := startedGame(7)

	g.Tick(10 * time.Second)
	if g.turnSeat != 0 {
		t.Fatal("turn advanced before the clock expired")
	}
	g.Tick(25 * time.Second)
	if g.turnSeat != 1 {
		t.Errorf("turn seat = %d, want auto-advance to 1 on clock expiry", g.turnSeat)
	}
	if g.hands.Size("alice") != 8 {
		t.Errorf("expiring clock did not auto-draw: hand size %d", g.hands.Size("alice"))
	}
}

func TestTurnClockPausedDuringGrace(t *testing.T) {
	g, _ := startedGame(7)
	g.PlayerDisconnected("bob")
	g.Tick(time.Minute)
	if g.turnSeat != 0 || g.hands.Size("alice") != 7 {
		t.Error("turn clock ran while a player was in a grace window")
	}
	g.PlayerReconnected("bob")
	g.Tick(time.Minute)
	if g.turnSeat != 1 {
		t.Error("turn clock did not resume after reconnection")
	}
}

func TestPublicSnapshotNeverContainsHands(t *testing.T) {
	g, _ := startedGame(7)
	b, err := json.Marshal(g.PublicSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), `"cards"`) {
		t.Errorf("public snapshot contains card lists: %s", b)
	}
	var snap struct {
		HandSizes map[string]int `json:"hand_sizes"`
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		t.Fatal(err)
	}
	for uid, n := range snap.HandSizes {
		if n != len(g.hand(uid)) {
			t.Errorf("%s projected size %d, true hand %d", uid, n, len(g.hand(uid)))
		}
	}
}

func TestSuspendResumeRoundTrip(t *testing.T) {
	g, _ := startedGame(7)
	if err := g.HandleIntent("alice", game.Intent{Type: "draw_card"}); err != nil {
		t.Fatal(err)
	}

	public, private, err := g.Suspend()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(private), `"suit"`) {
		t.Error("private bundle missing hands")
	}
	if strings.Contains(string(public), `"alice":[`) {
		t.Error("public bundle contains a hand")
	}

	restored := New(7)
	if err := restored.Resume(public, private); err != nil {
		t.Fatal(err)
	}
	h2 := newFakeHost()
	restored.Start(h2, twoPlayers())

	if len(restored.deck) != len(g.deck) {
		t.Errorf("restored deck size %d, want %d", len(restored.deck), len(g.deck))
	}
	if restored.turnSeat != g.turnSeat || restored.currentSuit != g.currentSuit {
		t.Error("restored turn state diverges")
	}
	if restored.hands.Size("alice") != g.hands.Size("alice") {
		t.Error("restored hand sizes diverge")
	}
	// Restored start re-delivers hands without re-dealing.
	if len(h2.targeted["alice"]) == 0 {
		t.Error("restored start did not re-deliver hands")
	}
}
