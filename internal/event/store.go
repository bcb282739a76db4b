package event

import "context"

// Store persists and retrieves events.
type Store interface {
	// Append persists one or more events.
	Append(ctx context.Context, events ...Event) error
	// ListByAuction returns all events for an auction in insertion order.
	ListByAuction(ctx context.Context, auctionID int64) ([]Event, error)
}
