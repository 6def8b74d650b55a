package hub

import (
	"time"

	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// Outbound message types.
const (
	MessageConnectionEstablished = "connection_established"
	MessageAlertNotification     = "alert_notification"
	MessagePersonSighting        = "person_sighting"
	MessageSystemStatusUpdate    = "system_status_update"
	MessagePong                  = "pong"
)

// Inbound message types. Anything else is logged and ignored.
const (
	clientPing             = "ping"
	clientRequestStatus    = "request_status"
	clientSubscribeAlerts  = "subscribe_alerts"
	clientAcknowledgeAlert = "acknowledge_alert"
)

// Broadcast topics.
const (
	TopicAlerts    = "alerts"
	TopicSightings = "sightings"
	TopicStatus    = "status"
)

// Message is one outbound frame. The timestamp is stamped at send time, not
// at construction.
type Message struct {
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// clientMessage is one inbound frame from a dashboard client.
type clientMessage struct {
	Type       string `json:"type"`
	InstanceID string `json:"instance_id,omitempty"`
}

func stamp(msg *Message, now time.Time) {
	msg.Timestamp = now.UTC().Format(time.RFC3339)
}

// welcomeMessage is sent once per connection right after the handshake.
func welcomeMessage(connectionID string) Message {
	return Message{
		Type: MessageConnectionEstablished,
		Data: map[string]any{
			"connection_id": connectionID,
			"server_info": map[string]any{
				"service": "faceguard",
				"version": "2.0",
			},
			"capabilities": []string{
				clientPing,
				clientRequestStatus,
				clientSubscribeAlerts,
				clientAcknowledgeAlert,
			},
		},
	}
}

// AlertNotificationMessage renders an alert instance for dashboard clients,
// including the display hints derived from its priority.
func AlertNotificationMessage(instance *storage.AlertInstance, hints config.DisplayHints) Message {
	return Message{
		Type: MessageAlertNotification,
		Data: map[string]any{
			"instance_id":   instance.ID,
			"rule_id":       instance.RuleID,
			"person_id":     instance.PersonID,
			"priority":      instance.Priority,
			"status":        string(instance.Status),
			"camera_id":     instance.TriggerPayload.CameraID,
			"confidence":    instance.TriggerPayload.Confidence,
			"message":       instance.TriggerPayload.Message,
			"escalation_of": instance.EscalationOf,
			"triggered_at":  instance.TriggeredAt.UTC().Format(time.RFC3339),
			"display":       hints,
		},
	}
}

// AlertStatusMessage announces an acknowledge or resolve transition.
func AlertStatusMessage(event string, instance *storage.AlertInstance) Message {
	return Message{
		Type: MessageSystemStatusUpdate,
		Data: map[string]any{
			"event":       event,
			"instance_id": instance.ID,
			"rule_id":     instance.RuleID,
			"status":      string(instance.Status),
		},
	}
}

// SightingMessage announces a processed sighting.
func SightingMessage(data map[string]any) Message {
	return Message{
		Type: MessagePersonSighting,
		Data: data,
	}
}
