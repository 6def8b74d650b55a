package alerting

import (
	"context"
	"log/slog"

	"github.com/kozaktomas/faceguard/internal/coredata"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// LogSender is a delivery channel that records the notification in the log
// instead of sending it anywhere. It stands in for outbound channels whose
// transport lives outside this service; the delivery still counts as
// confirmed so notification_count and the notification log stay accurate.
type LogSender struct {
	name   string
	logger *slog.Logger
}

// NewLogSender creates a log-backed sender for the given channel name.
func NewLogSender(name string, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{name: name, logger: logger}
}

func (s *LogSender) Name() string { return s.name }

func (s *LogSender) Send(_ context.Context, instance *storage.AlertInstance, contacts []coredata.NotificationContact) error {
	recipients := make([]string, 0, len(contacts))
	for _, contact := range contacts {
		switch s.name {
		case "sms":
			if contact.Phone != "" {
				recipients = append(recipients, contact.Phone)
			}
		default:
			if contact.Email != "" {
				recipients = append(recipients, contact.Email)
			}
		}
	}
	s.logger.Info("alert notification",
		"channel", s.name,
		"instance_id", instance.ID,
		"rule_id", instance.RuleID,
		"priority", instance.Priority,
		"recipients", recipients,
	)
	return nil
}

var _ Sender = (*LogSender)(nil)
