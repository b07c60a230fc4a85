package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/threatlanes/threatlanes-server-go/internal/config"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"go.uber.org/zap"
)

// Message is pushed to websocket clients. State is redacted for the
// client's viewer.
type Message struct {
	Type     string          `json:"type"`
	GameID   string          `json:"game_id"`
	PlayerID string          `json:"player_id,omitempty"`
	Data     map[string]any  `json:"data,omitempty"`
	State    *game.StateView `json:"state,omitempty"`
}

// MessageState is the type of the snapshot sent on connect.
const MessageState = "STATE"

const sendBuffer = 64

// Hub fans engine notifications out to the websocket clients watching each
// match.
type Hub struct {
	logger   *zap.Logger
	engine   *game.Engine
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	games  map[string]map[*client]struct{}
	closed bool
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	gameID string
	viewer string
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

// NewHub creates a hub.
func NewHub(logger *zap.Logger, engine *game.Engine, cfg config.WebSocketConfig) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Hub{
		logger: logger,
		engine: engine,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		games: make(map[string]map[*client]struct{}),
	}
}

// ServeWS upgrades GET /ws?game_id=&viewer= and streams the match.
func (h *Hub) ServeWS(c *gin.Context) {
	gameID := c.Query("game_id")
	if gameID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing game_id"})
		return
	}
	viewer := c.Query("viewer")
	view, err := h.engine.GetRedactedState(gameID, viewer)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	cl := &client{
		hub:    h,
		conn:   conn,
		gameID: gameID,
		viewer: viewer,
		send:   make(chan []byte, sendBuffer),
	}
	if !h.register(cl) {
		conn.Close()
		return
	}

	first, err := json.Marshal(Message{Type: MessageState, GameID: gameID, State: view})
	if err == nil {
		cl.trySend(first)
	}
	go cl.writePump()
	go cl.readPump()

	h.logger.Debug("websocket client connected",
		zap.String("game_id", gameID),
		zap.String("viewer", viewer),
	)
}

func (h *Hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.games[cl.gameID] == nil {
		h.games[cl.gameID] = make(map[*client]struct{})
	}
	h.games[cl.gameID][cl] = struct{}{}
	return true
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if clients, ok := h.games[cl.gameID]; ok {
		delete(clients, cl)
		if len(clients) == 0 {
			delete(h.games, cl.gameID)
		}
	}
	h.mu.Unlock()
	cl.close()
}

// Clients returns how many connections watch gameID.
func (h *Hub) Clients(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

// Publish is the engine's notification handler. Each watcher receives the
// notification with a state view redacted for its viewer.
func (h *Hub) Publish(n game.GameNotification) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.games[n.GameID]))
	for cl := range h.games[n.GameID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	payloads := make(map[string][]byte)
	for _, cl := range clients {
		msg, ok := payloads[cl.viewer]
		if !ok {
			view, err := h.engine.GetRedactedState(n.GameID, cl.viewer)
			if err != nil && !errors.Is(err, game.ErrGameNotFound) {
				h.logger.Warn("failed to render state for push",
					zap.String("game_id", n.GameID),
					zap.String("viewer", cl.viewer),
					zap.Error(err),
				)
				continue
			}
			msg, err = json.Marshal(Message{
				Type:     n.Type,
				GameID:   n.GameID,
				PlayerID: n.PlayerID,
				Data:     n.Data,
				State:    view,
			})
			if err != nil {
				h.logger.Error("failed to encode push", zap.String("game_id", n.GameID), zap.Error(err))
				return
			}
			payloads[cl.viewer] = msg
		}
		if !cl.trySend(msg) {
			h.logger.Warn("websocket client too slow, dropping",
				zap.String("game_id", n.GameID),
				zap.String("viewer", cl.viewer),
			)
			h.unregister(cl)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, clients := range h.games {
		for cl := range clients {
			all = append(all, cl)
		}
	}
	h.games = make(map[string]map[*client]struct{})
	h.mu.Unlock()
	for _, cl := range all {
		cl.close()
	}
}

// trySend queues msg without blocking. It reports false when the buffer is
// full.
func (c *client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	wait := 2 * c.hub.cfg.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		// clients only listen; anything they send is discarded
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
