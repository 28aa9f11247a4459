package room

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is the outbound wire envelope pushed to clients.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType names an outbound event.
type EventType string

const (
	EventWelcome            EventType = "welcome"
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerLeft         EventType = "player_left"
	EventPlayerReady        EventType = "player_ready"
	EventSpectatorJoined    EventType = "spectator_joined"
	EventCountdown          EventType = "countdown"
	EventCountdownAborted   EventType = "countdown_aborted"
	EventGameStart          EventType = "game_start"
	EventState              EventType = "state"
	EventGameOver           EventType = "game_over"
	EventPlayerReconnecting EventType = "player_reconnecting"
	EventPlayerReconnected  EventType = "player_reconnected"
	EventRematchRequest     EventType = "rematch_request"
	EventRematchStarted     EventType = "rematch_started"
	EventEmote              EventType = "emote"
	EventError              EventType = "error"
)

// encodeEvent marshals the envelope once so a broadcast fan-out reuses the
// same bytes for every recipient.
func encodeEvent(roomID string, eventType EventType, now time.Time, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
			return nil
		}
		raw = b
	}

	evt := Event{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: now,
		Data:      raw,
	}
	b, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to marshal event envelope")
		return nil
	}
	return b
}

// errorPayload is the body of a targeted rejection event.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
