package hub

import (
	"context"

	"github.com/kozaktomas/faceguard/internal/alerting"
	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/coredata"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// DashboardSender is the "dashboard" delivery channel: sending means
// broadcasting an alert notification to every subscribed client. Broadcast is
// best effort, so delivery always confirms even with zero subscribers.
type DashboardSender struct {
	hub      *Hub
	hintsFor func(priority string) config.DisplayHints
}

// NewDashboardSender wires the hub into the alert dispatcher.
func NewDashboardSender(h *Hub, hintsFor func(string) config.DisplayHints) *DashboardSender {
	return &DashboardSender{hub: h, hintsFor: hintsFor}
}

func (s *DashboardSender) Name() string { return "dashboard" }

func (s *DashboardSender) Send(_ context.Context, instance *storage.AlertInstance, _ []coredata.NotificationContact) error {
	s.hub.Broadcast(AlertNotificationMessage(instance, s.hintsFor(instance.Priority)), TopicAlerts)
	return nil
}

// StatusNotifier broadcasts alert lifecycle transitions to dashboard clients.
type StatusNotifier struct {
	hub *Hub
}

// NewStatusNotifier wires the hub into the engine's notifier hook.
func NewStatusNotifier(h *Hub) *StatusNotifier {
	return &StatusNotifier{hub: h}
}

func (n *StatusNotifier) AlertAcknowledged(instance storage.AlertInstance) {
	n.hub.Broadcast(AlertStatusMessage("alert_acknowledged", &instance), TopicStatus)
}

func (n *StatusNotifier) AlertResolved(instance storage.AlertInstance) {
	n.hub.Broadcast(AlertStatusMessage("alert_resolved", &instance), TopicStatus)
}

// Verify interface compliance
var _ alerting.Sender = (*DashboardSender)(nil)
var _ alerting.Notifier = (*StatusNotifier)(nil)
