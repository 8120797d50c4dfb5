package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-events-sync/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 60 * time.Second
	sendBuffer   = 32
	maxFrameSize = 1 << 20
)

// Authorizer decides whether a token may join a privileged room.
type Authorizer interface {
	AuthorizeRoom(room, token string) error
}

// Hub fans mutation frames out to every connected socket.
type Hub struct {
	mu         sync.Mutex
	conns      map[*conn]struct{}
	auth       Authorizer
	privileged map[string]bool
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

type conn struct {
	ws    *websocket.Conn
	send  chan []byte
	rooms map[string]struct{}
}

func NewHub(auth Authorizer, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:      make(map[*conn]struct{}),
		auth:       auth,
		privileged: map[string]bool{domain.RoomAdmin: true},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logger.With("component", "push-hub"),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("socket upgrade failed", "err", err)
		return
	}
	ws.SetReadLimit(maxFrameSize)
	c := &conn{ws: ws, send: make(chan []byte, sendBuffer), rooms: make(map[string]struct{})}
	t := time.NewTicker(pingInterval)
	defer t.Stop()

	h.signon(c)
	go h.write(c, t)
	err = h.read(c)
	h.signoff(c)
	if err != nil {
		h.log.Warn("socket read failed", "err", err)
	}
}

// Connections returns the number of live sockets.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast sends a frame to every connection.
func (h *Hub) Broadcast(name string, data any) error {
	return h.deliver("", name, data)
}

// BroadcastRoom sends a frame to the connections that joined room.
func (h *Hub) BroadcastRoom(room, name string, data any) error {
	return h.deliver(room, name, data)
}

// Emit publishes a mutation to every connection.
func (h *Hub) Emit(m domain.ChannelMessage) error {
	return h.Broadcast(domain.PushEventName(m), domain.ToPushData(m))
}

// Close disconnects every socket.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		h.dropLocked(c)
	}
}

func (h *Hub) signon(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.log.Debug("socket connected", "connections", n)
}

func (h *Hub) signoff(c *conn) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.conns)
	h.mu.Unlock()
	h.log.Debug("socket disconnected", "connections", n)
}

func (h *Hub) dropLocked(c *conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.send)
}

func (h *Hub) deliver(room, name string, data any) error {
	b, err := encodeFrame(name, data)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if room != "" {
			if _, ok := c.rooms[room]; !ok {
				continue
			}
		}
		select {
		case c.send <- b:
		default:
			h.log.Warn("dropping slow socket", "event", name)
			h.dropLocked(c)
		}
	}
	return nil
}

func (h *Hub) reply(c *conn, name string, data any) {
	b, err := encodeFrame(name, data)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		h.dropLocked(c)
	}
}

func (h *Hub) inRoom(c *conn, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

func (h *Hub) read(c *conn) error {
	for {
		op, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil // client went away
		}
		if op != websocket.TextMessage {
			continue
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			h.log.Debug("ignoring malformed frame")
			continue
		}
		h.route(c, f)
	}
}

func (h *Hub) route(c *conn, f Frame) {
	switch {
	case strings.HasPrefix(f.Event, domain.PushJoinPrefix):
		h.join(c, strings.TrimPrefix(f.Event, domain.PushJoinPrefix), f.Data)
	case f.Event == domain.PushEventCreate, f.Event == domain.PushEventUpdate, f.Event == domain.PushEventDelete:
		h.relay(c, f)
	default:
		h.log.Debug("ignoring frame", "event", f.Event)
	}
}

func (h *Hub) join(c *conn, room string, data json.RawMessage) {
	if room == "" {
		h.reply(c, FrameError, errorReply{Message: "room required"})
		return
	}
	if h.privileged[room] {
		var req joinRequest
		if len(data) > 0 {
			_ = json.Unmarshal(data, &req)
		}
		if h.auth == nil {
			h.reply(c, FrameError, errorReply{Message: "room unavailable"})
			return
		}
		if err := h.auth.AuthorizeRoom(room, req.Token); err != nil {
			h.log.Info("room join denied", "room", room, "err", err)
			h.reply(c, FrameError, errorReply{Message: "join " + room + " denied"})
			return
		}
	}
	h.mu.Lock()
	c.rooms[room] = struct{}{}
	h.mu.Unlock()
	h.reply(c, FrameJoined, joinedReply{Room: room})
}

// relay re-emits a client mutation frame under its past-tense name.
func (h *Hub) relay(c *conn, f Frame) {
	if !h.inRoom(c, domain.RoomAdmin) {
		h.log.Info("rejecting relay from unprivileged socket", "event", f.Event)
		return
	}
	name := map[string]string{
		domain.PushEventCreate: domain.PushEventCreated,
		domain.PushEventUpdate: domain.PushEventUpdated,
		domain.PushEventDelete: domain.PushEventDeleted,
	}[f.Event]
	m, err := domain.DecodePush(name, f.Data)
	if err != nil {
		h.log.Warn("rejecting relay", "event", f.Event, "err", err)
		return
	}
	if err := h.Emit(m); err != nil {
		h.log.Warn("relay failed", "event", f.Event, "err", err)
	}
}

func (h *Hub) write(c *conn, t *time.Ticker) {
	defer c.ws.Close()
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-t.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
