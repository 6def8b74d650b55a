// Package hub is the realtime fan-out layer: it owns the dashboard websocket
// connections and broadcasts typed events with best-effort, at-most-once
// semantics. A disconnected subscriber misses events until it reconnects and
// requests fresh state.
package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Transport is the write side of one client connection. gorilla's
// *websocket.Conn satisfies it; tests plug in fakes.
type Transport interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is the hub's bookkeeping for one subscriber. Writes on a single
// connection are serialized so messages arrive in enqueue order.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	transport Transport

	writeMu sync.Mutex

	topicsMu sync.Mutex
	topics   map[string]bool

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	lastActivity     atomic.Int64 // unix nano
}

func (c *Connection) touch(now time.Time) {
	c.lastActivity.Store(now.UnixNano())
}

// Subscribe adds a topic to the connection. Idempotent.
func (c *Connection) Subscribe(topic string) {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	c.topics[topic] = true
}

func (c *Connection) subscribed(topic string) bool {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	return c.topics[topic]
}

// Stats is a read-only view of the hub counters.
type Stats struct {
	ActiveConnections int   `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	MessagesSent      int64 `json:"messages_sent"`
	MessagesReceived  int64 `json:"messages_received"`
}

// Hub tracks subscriber connections. The connection table is mutated only by
// Connect and Disconnect; Broadcast iterates over a point-in-time snapshot.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	sendTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// New creates an empty hub. sendTimeout bounds every transport write; a write
// that misses it marks the connection dead.
func New(sendTimeout time.Duration, logger *slog.Logger) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		sendTimeout: sendTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Connect registers a transport and sends the welcome message. New
// connections are subscribed to every topic; subscribe messages narrow
// nothing, they only confirm.
func (h *Hub) Connect(transport Transport) *Connection {
	now := h.now().UTC()
	conn := &Connection{
		ID:          uuid.NewString(),
		ConnectedAt: now,
		transport:   transport,
		topics: map[string]bool{
			TopicAlerts:    true,
			TopicSightings: true,
			TopicStatus:    true,
		},
	}
	conn.touch(now)

	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()
	h.totalConnections.Add(1)

	h.logger.Info("dashboard client connected", "connection_id", conn.ID)

	// A failed welcome tears the connection right back down.
	h.Send(conn.ID, welcomeMessage(conn.ID))
	return conn
}

// Disconnect removes a connection and closes its transport. Idempotent and
// safe to call from the send-failure path.
func (h *Hub) Disconnect(connectionID string) {
	h.mu.Lock()
	conn, ok := h.connections[connectionID]
	if ok {
		delete(h.connections, connectionID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	conn.transport.Close()
	h.logger.Info("dashboard client disconnected",
		"connection_id", connectionID,
		"messages_sent", conn.messagesSent.Load(),
	)
}

// Send stamps and writes one message. Any write failure or timeout treats the
// connection as dead and disconnects it; the error never reaches the caller.
func (h *Hub) Send(connectionID string, msg Message) bool {
	h.mu.RLock()
	conn, ok := h.connections[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if err := h.write(conn, msg); err != nil {
		h.logger.Warn("send failed, dropping connection",
			"connection_id", connectionID,
			"type", msg.Type,
			"error", err,
		)
		h.Disconnect(connectionID)
		return false
	}
	return true
}

func (h *Hub) write(conn *Connection, msg Message) error {
	now := h.now()
	stamp(&msg, now)

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	if err := conn.transport.SetWriteDeadline(now.Add(h.sendTimeout)); err != nil {
		return err
	}
	if err := conn.transport.WriteJSON(msg); err != nil {
		return err
	}

	conn.messagesSent.Add(1)
	conn.touch(now)
	h.messagesSent.Add(1)
	return nil
}

// Broadcast delivers the message to every connection subscribed to topic, or
// to all connections when topic is empty. Delivery failures are isolated per
// connection; dead connections are cleaned up after the pass completes.
// Returns the number of successful deliveries.
func (h *Hub) Broadcast(msg Message, topic string) int {
	h.mu.RLock()
	snapshot := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		if topic == "" || conn.subscribed(topic) {
			snapshot = append(snapshot, conn)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	var dead []string
	for _, conn := range snapshot {
		if err := h.write(conn, msg); err != nil {
			h.logger.Warn("broadcast delivery failed",
				"connection_id", conn.ID,
				"type", msg.Type,
				"error", err,
			)
			dead = append(dead, conn.ID)
			continue
		}
		delivered++
	}

	for _, id := range dead {
		h.Disconnect(id)
	}
	return delivered
}

// ActiveConnections returns the current connection count.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll disconnects every client, for service shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Disconnect(id)
	}
}

// Stats returns a point-in-time copy of the hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		ActiveConnections: h.ActiveConnections(),
		TotalConnections:  h.totalConnections.Load(),
		MessagesSent:      h.messagesSent.Load(),
		MessagesReceived:  h.messagesReceived.Load(),
	}
}

func (h *Hub) countReceived(conn *Connection) {
	conn.messagesReceived.Add(1)
	conn.touch(h.now())
	h.messagesReceived.Add(1)
}
