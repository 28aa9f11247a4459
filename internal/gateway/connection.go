package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mintkit/gameroom/internal/game"
	"github.com/mintkit/gameroom/internal/room"
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Connection wraps one WebSocket client. It implements room.Conn: the
// session fans events out through Send and the read pump feeds decoded
// intents back into the session.
type Connection struct {
	id      string
	uid     string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	session *room.Session
	config  ConnectionConfig

	closeOnce sync.Once
}

func (c *Connection) ID() string { return c.id }

// Send queues a frame for the write pump. A full buffer means the client
// cannot keep up; the connection is closed rather than blocking the room.
func (c *Connection) Send(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		log.Warn().
			Str("connection_id", c.id).
			Str("uid", c.uid).
			Msg("connection send buffer full, closing connection")
		c.Close()
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// intentFrame is the client-to-server wire shape.
type intentFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.session.Leave(c.id)
		c.Close()
	}()

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}

// handleClientMessage decodes one intent frame and hands it to the session.
func (c *Connection) handleClientMessage(message []byte) {
	var frame intentFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.id).
			Str("uid", c.uid).
			Msg("dropping malformed client frame")
		return
	}
	if frame.Type == "" {
		return
	}
	c.session.HandleIntent(c.uid, game.Intent{Type: frame.Type, Data: frame.Data})
}
