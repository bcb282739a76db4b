// Package event records the audit trail of an auction. Events are appended
// in the same transaction as the change they describe and are never
// updated or deleted.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type identifies an event kind.
type Type string

const (
	AuctionCreated       Type = "auction.created"
	AuctionStatusChanged Type = "auction.status_changed"

	ParticipantEnrolled Type = "participant.enrolled"

	LineItemAdded      Type = "line_item.added"
	LineItemSuperseded Type = "line_item.superseded"
	LineItemDeleted    Type = "line_item.deleted"

	BidAccepted Type = "bid.accepted"

	RequestsConverted Type = "requests.converted"
)

// Event represents a single audit record.
type Event struct {
	ID        string          `json:"id" db:"id"`
	AuctionID int64           `json:"auctionId" db:"auction_id"`
	Type      Type            `json:"type" db:"type"`
	Data      json.RawMessage `json:"data" db:"data"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// New builds an event for auctionID with payload marshalled to JSON.
// Payloads are plain structs from this package, so marshalling cannot fail.
func New(auctionID int64, t Type, payload any, at time.Time) Event {
	data, _ := json.Marshal(payload)
	return Event{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		Type:      t,
		Data:      data,
		CreatedAt: at.UTC(),
	}
}

// AuctionCreatedData is the payload for AuctionCreated events.
type AuctionCreatedData struct {
	CreatedBy int64  `json:"createdBy"`
	RuleSetID *int64 `json:"ruleSetId,omitempty"`
}

// StatusChangedData is the payload for AuctionStatusChanged events.
type StatusChangedData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ParticipantEnrolledData is the payload for ParticipantEnrolled events.
type ParticipantEnrolledData struct {
	ParticipantID int64  `json:"participantId"`
	UserID        int64  `json:"userId"`
	Role          string `json:"role"`
}

// LineItemData is the payload for line item events.
type LineItemData struct {
	LineItemID   int64           `json:"lineItemId"`
	ItemID       int64           `json:"itemId"`
	UnitID       int64           `json:"unitId"`
	Quantity     decimal.Decimal `json:"quantity"`
	SupersededID *int64          `json:"supersededId,omitempty"`
}

// BidAcceptedData is the payload for BidAccepted events.
type BidAcceptedData struct {
	BidID         int64           `json:"bidId"`
	LineItemID    int64           `json:"lineItemId"`
	ParticipantID int64           `json:"participantId"`
	Value         decimal.Decimal `json:"value"`
}

// RequestsConvertedData is the payload for RequestsConverted events.
type RequestsConvertedData struct {
	RequestIDs []int64 `json:"requestIds"`
	Extended   bool    `json:"extended"`
}
