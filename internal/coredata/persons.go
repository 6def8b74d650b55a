package coredata

import "context"

// CheckHighPriorityPerson consults the watchlist for a person. An unknown
// person answers {is_high_priority: false}, not a 404.
func (c *Client) CheckHighPriorityPerson(ctx context.Context, personID string) (*HighPriorityStatus, error) {
	return doGetJSON[HighPriorityStatus](ctx, c, "high-priority-persons/check/"+personID)
}

// GetNotificationContacts returns the delivery contacts configured for a
// high-priority person.
func (c *Client) GetNotificationContacts(ctx context.Context, personID string) ([]NotificationContact, error) {
	contacts, err := doGetJSON[[]NotificationContact](ctx, c, "high-priority-persons/"+personID+"/notification-contacts")
	if err != nil {
		return nil, err
	}
	return *contacts, nil
}
