package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playchess/backend/internal/matchmaking"
	"github.com/playchess/backend/internal/models"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by middleware.WebSocketCORSCheck
	},
}

// Client is one player's socket waiting for match notifications.
type Client struct {
	conn     *websocket.Conn
	playerID string
	send     chan []byte
}

// Hub tracks connected players and delivers match.found to them.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log.With().Str("component", "ws").Logger(),
	}
}

// Message is the frame sent to clients.
type Message struct {
	Type     string `json:"type"`
	MatchID  string `json:"matchId"`
	Opponent string `json:"opponent"`
	Mode     string `json:"mode"`
	Region   string `json:"region,omitempty"`
}

// OnMatchFound notifies both players if they are connected here.
func (h *Hub) OnMatchFound(ctx context.Context, evt models.MatchFound) error {
	h.SendToPlayer(evt.Player1, Message{Type: matchmaking.EventMatchFound, MatchID: evt.MatchID, Opponent: evt.Player2, Mode: evt.Mode, Region: evt.Region})
	h.SendToPlayer(evt.Player2, Message{Type: matchmaking.EventMatchFound, MatchID: evt.MatchID, Opponent: evt.Player1, Mode: evt.Mode, Region: evt.Region})
	return nil
}

// SendToPlayer queues msg for playerID. Reports whether a client was found.
func (h *Hub) SendToPlayer(playerID string, msg interface{}) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal message")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[playerID]
	if !ok {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		h.log.Warn().Str("player", playerID).Msg("send buffer full, dropping message")
		return false
	}
}

// Connected reports whether playerID has a live socket on this instance.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[playerID]
	return ok
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	old, ok := h.clients[c.playerID]
	h.clients[c.playerID] = c
	h.mu.Unlock()

	if ok {
		close(old.send)
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.playerID]; ok && cur == c {
		delete(h.clients, c.playerID)
		close(c.send)
	}
}

// HandleQueueSocket upgrades GET /queue/ws?playerId=X.
func (h *Hub) HandleQueueSocket(c *gin.Context) {
	playerID := c.Query("playerId")
	if playerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "playerId required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	client := &Client{conn: conn, playerID: playerID, send: make(chan []byte, sendBuffer)}
	h.register(client)
	h.log.Debug().Str("player", playerID).Msg("client connected")

	go client.writePump(h.log)
	client.readPump(h)
}

// readPump only handles control frames; clients never send data.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump(log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("player", c.playerID).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
