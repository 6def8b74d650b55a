package alerting

import (
	"context"
	"log/slog"
	"time"

	"github.com/kozaktomas/faceguard/internal/coredata"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// Sender delivers an alert over one channel. Implementations must be safe for
// concurrent use.
type Sender interface {
	Name() string
	Send(ctx context.Context, instance *storage.AlertInstance, contacts []coredata.NotificationContact) error
}

// LogAppender records delivery attempts with the record store.
type LogAppender interface {
	AppendNotificationLog(ctx context.Context, entry coredata.NotificationLogEntry) error
}

// Dispatcher fans an alert out to its channels. A failure in one channel
// never blocks the others; the returned count covers confirmed sends only.
type Dispatcher struct {
	senders map[string]Sender
	logs    LogAppender
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over the given senders. logs may be nil
// when no record-store logging is wanted.
func NewDispatcher(senders []Sender, logs LogAppender, logger *slog.Logger) *Dispatcher {
	byName := make(map[string]Sender, len(senders))
	for _, s := range senders {
		byName[s.Name()] = s
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{senders: byName, logs: logs, logger: logger}
}

// Channels returns the names of every registered sender.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.senders))
	for name := range d.senders {
		names = append(names, name)
	}
	return names
}

// Deliver sends the instance over each requested channel and returns the
// number of confirmed sends.
func (d *Dispatcher) Deliver(ctx context.Context, instance *storage.AlertInstance, channels []string, contacts []coredata.NotificationContact) int {
	confirmed := 0
	for _, channel := range channels {
		sender, ok := d.senders[channel]
		if !ok {
			d.logger.Warn("no sender registered for channel",
				"channel", channel,
				"instance_id", instance.ID,
			)
			continue
		}

		if err := sender.Send(ctx, instance, contacts); err != nil {
			d.logger.Error("alert delivery failed",
				"channel", channel,
				"instance_id", instance.ID,
				"error", err,
			)
			d.appendLog(ctx, instance, channel, "failed", err.Error())
			continue
		}

		confirmed++
		d.appendLog(ctx, instance, channel, "sent", "")
	}
	return confirmed
}

// appendLog records the attempt with the record store, best effort.
func (d *Dispatcher) appendLog(ctx context.Context, instance *storage.AlertInstance, channel, status, detail string) {
	if d.logs == nil {
		return
	}
	entry := coredata.NotificationLogEntry{
		InstanceID: instance.ID,
		RuleID:     instance.RuleID,
		Channel:    channel,
		Status:     status,
		Detail:     detail,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := d.logs.AppendNotificationLog(ctx, entry); err != nil {
		d.logger.Warn("notification log append failed",
			"instance_id", instance.ID,
			"channel", channel,
			"error", err,
		)
	}
}
