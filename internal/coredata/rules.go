package coredata

import "context"

// Health checks record store liveness.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	return doGetJSON[HealthStatus](ctx, c, "health")
}

// GetAlertRules returns every configured alert rule, active or not. The
// decision engine filters on IsActive itself.
func (c *Client) GetAlertRules(ctx context.Context) ([]AlertRule, error) {
	rules, err := doGetJSON[[]AlertRule](ctx, c, "notifications/alert-rules")
	if err != nil {
		return nil, err
	}
	return *rules, nil
}

// GetAlertRule fetches a single rule by id.
func (c *Client) GetAlertRule(ctx context.Context, ruleID string) (*AlertRule, error) {
	return doGetJSON[AlertRule](ctx, c, "notifications/alert-rules/"+ruleID)
}

// CreateAlertRule registers a new rule with the record store.
func (c *Client) CreateAlertRule(ctx context.Context, rule AlertRule) (*AlertRule, error) {
	return doPostJSON[AlertRule](ctx, c, "notifications/alert-rules", rule)
}

// UpdateAlertRule replaces an existing rule.
func (c *Client) UpdateAlertRule(ctx context.Context, rule AlertRule) (*AlertRule, error) {
	return doPutJSON[AlertRule](ctx, c, "notifications/alert-rules/"+rule.ID, rule)
}

// DeleteAlertRule removes a rule by id.
func (c *Client) DeleteAlertRule(ctx context.Context, ruleID string) error {
	_, err := doDeleteJSON[struct{}](ctx, c, "notifications/alert-rules/"+ruleID)
	return err
}

// GetNotificationChannels returns the configured delivery channels.
func (c *Client) GetNotificationChannels(ctx context.Context) ([]NotificationChannel, error) {
	channels, err := doGetJSON[[]NotificationChannel](ctx, c, "notifications/channels")
	if err != nil {
		return nil, err
	}
	return *channels, nil
}
