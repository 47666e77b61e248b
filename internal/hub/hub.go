// Package hub fans activity state out to authenticated websocket clients.
package hub

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zsprackett/agent-pulse/internal/activity"
)

// CloseInvalidToken is the close code sent when the token query parameter
// does not match the configured token.
const CloseInvalidToken = 4001

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Source supplies the snapshot sent to newly connected clients. View must
// hold off state changes while fn runs. *monitor.Machine satisfies it.
type Source interface {
	View(fn func(activity.StateMessage))
}

var _ activity.Broadcaster = (*Hub)(nil)

// Hub owns the set of live, authenticated connections.
type Hub struct {
	token    string
	source   Source
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

func New(token string, source Source, logger *slog.Logger) *Hub {
	return &Hub{
		token:  token,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[*conn]struct{}),
	}
}

// Broadcast implements activity.Broadcaster. The message is encoded once and
// queued to every open connection; a connection whose queue is full misses
// it and catches up on the next change.
func (h *Hub) Broadcast(msg activity.StateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("hub: encode state", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if !c.enqueue(data) {
			h.logger.Debug("hub: dropped state for slow client", "conn", c.id, "mode", string(msg.Mode))
		}
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// HandleWS upgrades the request and, if ?token= matches, registers the
// connection and sends it the current state.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("hub: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	if !h.authorized(token) {
		h.logger.Warn("hub: rejected connection", "remote", r.RemoteAddr)
		h.sendClose(ws, CloseInvalidToken, "invalid token", "remote", r.RemoteAddr)
		ws.Close()
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		hub:  h,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	registered := false
	h.source.View(func(snap activity.StateMessage) {
		if !h.add(c) {
			return
		}
		registered = true
		data, err := json.Marshal(snap)
		if err != nil {
			h.logger.Error("hub: encode snapshot", "err", err)
			return
		}
		c.enqueue(data)
	})
	if !registered {
		h.sendClose(ws, websocket.CloseGoingAway, "shutting down", "remote", r.RemoteAddr)
		ws.Close()
		return
	}

	h.logger.Info("hub: client connected", "conn", c.id, "remote", r.RemoteAddr)
	go c.writePump()
	go c.readPump()
}

// Close disconnects every client with a going-away close frame and refuses
// new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.sendClose(c.ws, websocket.CloseGoingAway, "shutting down", "conn", c.id)
		c.close()
	}
}

// sendClose writes a close frame. The peer may already be gone, so a failure
// is only logged.
func (h *Hub) sendClose(ws *websocket.Conn, code int, text string, attrs ...any) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("hub: close frame failed", append(attrs, "code", code, "err", err)...)
	}
}

func (h *Hub) authorized(token string) bool {
	if h.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

func (h *Hub) add(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// clientMsg is a message sent by a display client. Only the hello greeting
// is recognised and it has no effect beyond logging.
type clientMsg struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Client  string `json:"client"`
}

func (h *Hub) handleClientMessage(c *conn, data []byte) {
	var msg clientMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("hub: ignoring malformed client message", "conn", c.id)
		return
	}
	switch msg.Type {
	case "hello":
		h.logger.Info("hub: client hello", "conn", c.id, "client", msg.Client, "version", msg.Version)
	default:
		h.logger.Debug("hub: ignoring client message", "conn", c.id, "type", msg.Type)
	}
}
