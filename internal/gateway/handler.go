package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mintkit/gameroom/internal/auth"
	"github.com/mintkit/gameroom/internal/room"
)

const verifyTimeout = 5 * time.Second

// Handler upgrades HTTP requests to WebSocket connections and binds each
// one to a room session. Authentication happens before any roster change.
type Handler struct {
	registry      *room.Registry
	authenticator auth.Authenticator
	upgrader      websocket.Upgrader
	config        ConnectionConfig
}

func NewHandler(registry *room.Registry, authenticator auth.Authenticator, config ConnectionConfig) *Handler {
	return &Handler{
		registry:      registry,
		authenticator: authenticator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// HandleRoomConnection serves GET /ws?room_id=...&game_type=...&token=...
// A missing room_id creates a fresh room of the given game type.
func (h *Handler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	token := query.Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
	defer cancel()
	identity, err := h.authenticator.Verify(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("rejected WebSocket connection: invalid token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	gameType := query.Get("game_type")
	roomID := query.Get("room_id")
	if gameType == "" && roomID == "" {
		http.Error(w, "room_id or game_type is required", http.StatusBadRequest)
		return
	}

	var session *room.Session
	if gameType == "" {
		session, err = h.registry.Get(roomID)
	} else {
		session, err = h.registry.GetOrCreate(ctx, gameType, roomID)
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_id", roomID).
			Str("game_type", gameType).
			Msg("failed to resolve room")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := &Connection{
		id:      uuid.New().String(),
		uid:     identity.UID,
		ws:      ws,
		send:    make(chan []byte, h.config.SendBufferSize),
		done:    make(chan struct{}),
		session: session,
		config:  h.config,
	}

	go conn.writePump()

	if err := session.Join(conn, identity); err != nil {
		log.Info().
			Err(err).
			Str("room_id", session.ID).
			Str("uid", identity.UID).
			Msg("join rejected")
		h.sendRejection(conn, err)
		conn.Close()
		return
	}

	go conn.readPump()

	log.Info().
		Str("connection_id", conn.id).
		Str("uid", identity.UID).
		Str("room_id", session.ID).
		Msg("WebSocket connection established")
}

func (h *Handler) sendRejection(conn *Connection, joinErr error) {
	frame, err := json.Marshal(map[string]any{
		"type": "error",
		"data": map[string]string{"code": "join_rejected", "message": joinErr.Error()},
	})
	if err != nil {
		return
	}
	conn.Send(frame)
	// Give the write pump a moment to flush before the close frame.
	time.Sleep(100 * time.Millisecond)
}

// HandleStats returns registry statistics as JSON.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.Stats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}
