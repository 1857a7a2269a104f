package realtime

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/lockgate/internal/events"
	"github.com/charlesng35/lockgate/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	defaultBufferSize = 32
)

// Event names delivered on a lock stream.
const (
	EventSubscribed = "subscribed"
	EventAccess     = "access"
)

// Message is the JSON frame written to subscribers.
type Message struct {
	Stream string `json:"stream"`
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
}

// LockStream names the stream carrying access events for one lock.
func LockStream(lockUUID string) string {
	return "lock." + strings.ToLower(strings.TrimSpace(lockUUID))
}

// Hub pushes lock access events to dashboard WebSocket clients. It satisfies
// events.Publisher so it can sit beside the MQTT publisher. Callers authorize
// the subscriber before Serve.
type Hub struct {
	mu       sync.RWMutex
	streams  map[string]map[*connection]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

var _ events.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		streams: make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the request and streams events for lockUUID until the client goes away.
func (h *Hub) Serve(userID, lockUUID string, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	stream := LockStream(lockUUID)
	conn := &connection{
		hub:    h,
		socket: socket,
		userID: userID,
		stream: stream,
		send:   make(chan Message, defaultBufferSize),
	}

	h.mu.Lock()
	if h.streams[stream] == nil {
		h.streams[stream] = make(map[*connection]struct{})
	}
	h.streams[stream][conn] = struct{}{}
	h.mu.Unlock()

	conn.enqueue(Message{Stream: stream, Event: EventSubscribed})

	go conn.writeLoop()
	conn.readLoop()
}

// PublishAccess broadcasts event to subscribers of its lock. It never blocks;
// a subscriber whose buffer is full is disconnected.
func (h *Hub) PublishAccess(_ context.Context, event events.AccessEvent) error {
	stream := LockStream(event.LockUUID)
	msg := Message{Stream: stream, Event: EventAccess, Data: event}

	h.mu.RLock()
	targets := make([]*connection, 0, len(h.streams[stream]))
	for conn := range h.streams[stream] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		conn.enqueue(msg)
	}
	return nil
}

// Subscribers reports how many clients follow lockUUID.
func (h *Hub) Subscribers(lockUUID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[LockStream(lockUUID)])
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.RLock()
	var all []*connection
	for _, conns := range h.streams {
		for conn := range conns {
			all = append(all, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range all {
		conn.close()
	}
	return nil
}

func (h *Hub) remove(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.streams[conn.stream]
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.streams, conn.stream)
	}
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn
	userID string
	stream string

	mu     sync.Mutex
	closed bool
	send   chan Message
}

func (c *connection) enqueue(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.hub.log.Warn("dropping slow subscriber", zap.String("user_id", c.userID), zap.String("stream", c.stream))
		c.closeLocked()
	}
}

// readLoop only services control frames; clients never send data.
func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("subscriber closed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.socket.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.socket.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *connection) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	c.hub.remove(c)
	close(c.send)
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := hostOnly(parsed.Host)
	if originHost == hostOnly(r.Host) {
		return true
	}
	if ip := net.ParseIP(originHost); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(originHost, "localhost")
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
