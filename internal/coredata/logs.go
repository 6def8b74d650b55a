package coredata

import (
	"context"
	"net/http"
)

// AppendNotificationLog records a delivery attempt with the record store.
// Log append is best effort for callers; they decide whether a failure here
// matters.
func (c *Client) AppendNotificationLog(ctx context.Context, entry NotificationLogEntry) error {
	return doRequestRaw(ctx, c, http.MethodPost, "notifications/logs", entry)
}
