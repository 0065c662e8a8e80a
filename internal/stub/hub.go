package stub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/and161185/lendclient/internal/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub fans notifications out to the sockets of each user.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]bool
	log   *zap.Logger
	up    websocket.Upgrader
}

// NewHub returns an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns: map[string]map[*websocket.Conn]bool{},
		log:   log,
		up:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Publish sends env to every socket of userID and drops sockets that fail.
func (h *Hub) Publish(userID string, env model.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[userID] {
		_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteJSON(env); err != nil {
			h.log.Debug("dropping socket", zap.Error(err))
			delete(h.conns[userID], c)
			_ = c.Close()
		}
	}
}

// Connected reports how many sockets userID has open.
func (h *Hub) Connected(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

func (h *Hub) add(userID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = map[*websocket.Conn]bool{}
	}
	h.conns[userID][c] = true
}

func (h *Hub) remove(userID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], c)
}

// serve upgrades r for acc and reads until the peer goes away. Client
// pings are answered with pongs, everything else is ignored.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, acc *Account) {
	c, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.add(acc.User.ID, c)
	defer func() {
		h.remove(acc.User.ID, c)
		_ = c.Close()
	}()
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}
		var env model.Notification
		if json.Unmarshal(raw, &env) == nil && env.Type == "ping" {
			h.Publish(acc.User.ID, model.Notification{Type: "pong"})
		}
	}
}
