package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// AlertAcker lets dashboard clients acknowledge alerts over the socket.
type AlertAcker interface {
	Acknowledge(ctx context.Context, instanceID string) (*storage.AlertInstance, error)
}

// StatusProvider produces the payload for request_status replies.
type StatusProvider func() map[string]any

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboard origins are enforced by the CORS middleware upstream.
		return true
	},
}

// Handler upgrades dashboard connections and runs their inbound read loop.
type Handler struct {
	hub    *Hub
	acker  AlertAcker
	status StatusProvider
	logger *slog.Logger
}

// NewHandler creates the websocket endpoint handler. acker and status may be
// nil; the corresponding client messages then answer with an error payload.
func NewHandler(h *Hub, acker AlertAcker, status StatusProvider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: h, acker: acker, status: status, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := h.hub.Connect(ws)
	defer h.hub.Disconnect(conn.ID)

	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", "connection_id", conn.ID, "error", err)
			}
			return
		}
		h.hub.countReceived(conn)
		h.handleClientMessage(r.Context(), conn, &msg)
	}
}

// handleClientMessage dispatches one inbound frame. Unknown types are logged
// and ignored, not treated as protocol errors.
func (h *Handler) handleClientMessage(ctx context.Context, conn *Connection, msg *clientMessage) {
	switch msg.Type {
	case clientPing:
		h.hub.Send(conn.ID, Message{Type: MessagePong})

	case clientRequestStatus:
		data := map[string]any{"connections": h.hub.ActiveConnections()}
		if h.status != nil {
			data = h.status()
		}
		h.hub.Send(conn.ID, Message{Type: MessageSystemStatusUpdate, Data: data})

	case clientSubscribeAlerts:
		conn.Subscribe(TopicAlerts)
		h.hub.Send(conn.ID, Message{
			Type: MessageSystemStatusUpdate,
			Data: map[string]any{"event": "subscribed", "topic": TopicAlerts},
		})

	case clientAcknowledgeAlert:
		h.acknowledge(ctx, conn, msg.InstanceID)

	default:
		h.logger.Warn("unknown client message type ignored",
			"connection_id", conn.ID,
			"type", msg.Type,
		)
	}
}

func (h *Handler) acknowledge(ctx context.Context, conn *Connection, instanceID string) {
	if h.acker == nil || instanceID == "" {
		h.hub.Send(conn.ID, Message{
			Type: MessageSystemStatusUpdate,
			Data: map[string]any{"event": "acknowledge_failed", "instance_id": instanceID},
		})
		return
	}

	instance, err := h.acker.Acknowledge(ctx, instanceID)
	if err != nil {
		event := "acknowledge_failed"
		if errors.Is(err, storage.ErrInstanceNotFound) {
			event = "acknowledge_unknown_instance"
		}
		h.hub.Send(conn.ID, Message{
			Type: MessageSystemStatusUpdate,
			Data: map[string]any{"event": event, "instance_id": instanceID},
		})
		return
	}

	h.hub.Send(conn.ID, Message{
		Type: MessageSystemStatusUpdate,
		Data: map[string]any{
			"event":       "acknowledged",
			"instance_id": instance.ID,
			"status":      string(instance.Status),
		},
	})
}
