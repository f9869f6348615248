package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sentinelflow/internal/models"
	"sentinelflow/internal/risk"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	clientSend = 32
)

// wsMessage is the JSON envelope pushed to dashboard clients.
type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type nodeSummary struct {
	AgentID   string    `json:"agent_id"`
	Hostname  string    `json:"hostname"`
	LastSeen  time.Time `json:"last_seen"`
	RiskScore float64   `json:"risk_score"`
	LastAlert *string   `json:"last_alert"`
	Samples   int       `json:"samples"`
	Seq       uint64    `json:"seq"`
}

func summarize(n models.NodeState, seq uint64) nodeSummary {
	return nodeSummary{
		Seq:       seq,
		AgentID:   n.AgentID,
		Hostname:  n.Hostname,
		LastSeen:  n.LastSeen,
		RiskScore: n.RiskScore,
		LastAlert: n.LastAlert,
		Samples:   len(n.History),
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans node updates out to connected websocket clients. A client that
// cannot keep up is disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	log     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{clients: map[*wsClient]struct{}{}, log: logger}
}

type evictedNode struct {
	AgentID string `json:"agent_id"`
	Seq     uint64 `json:"seq"`
}

// NodeUpdated implements risk.Listener. Clients receive a "node" message with
// the row to show, or "evicted" when the agent's row should go. Both carry
// seq so a client can drop messages that arrive out of order.
func (h *Hub) NodeUpdated(u risk.Update) {
	msg := wsMessage{Type: "node", Payload: summarize(u.Node, u.Seq)}
	if u.Evicted {
		msg = wsMessage{Type: "evicted", Payload: evictedNode{AgentID: u.Node.AgentID, Seq: u.Seq}}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "err", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientSend)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop only watches for the client going away.
func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", "err", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = c.conn.Close()
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
