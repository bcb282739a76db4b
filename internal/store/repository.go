package store

import (
	"context"
	"time"

	"github.com/jensholdgaard/pregao/internal/event"
)

// Lookups return *apperr.Error values of kind NotFound when a row is
// missing. List methods return an empty slice, never NoContent; turning an
// empty list into NoContent is a service decision.

// RuleSetRepository defines bid rule-set persistence operations.
type RuleSetRepository interface {
	Create(ctx context.Context, r *RuleSet) error
	GetByID(ctx context.Context, id int64) (*RuleSet, error)
	GetActive(ctx context.Context) (*RuleSet, error)
	List(ctx context.Context) ([]RuleSet, error)
	DeactivateAll(ctx context.Context) error
}

// AuctionRepository defines auction persistence operations.
type AuctionRepository interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id int64) (*Auction, error)
	// GetByIDForUpdate reads the auction and holds a write lock on it until
	// the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*Auction, error)
	UpdateStatus(ctx context.Context, id int64, status AuctionStatus, at time.Time) error
}

// ParticipantRepository defines auction roster persistence operations.
type ParticipantRepository interface {
	Create(ctx context.Context, p *Participant) error
	GetByID(ctx context.Context, id int64) (*Participant, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Participant, error)
	FindByAuctionUser(ctx context.Context, auctionID, userID int64) (*Participant, error)
	ListByAuction(ctx context.Context, auctionID int64) ([]Participant, error)
}

// LineItemRepository defines auction line item persistence operations.
type LineItemRepository interface {
	Create(ctx context.Context, li *LineItem) error
	GetByID(ctx context.Context, id int64) (*LineItem, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*LineItem, error)
	// FindActive returns the current, non-deleted row for (auction, item).
	FindActive(ctx context.Context, auctionID, itemID int64) (*LineItem, error)
	ListActive(ctx context.Context, auctionID int64) ([]LineItem, error)
	// SetFlags updates only the version flags of a row; business fields of
	// a stored row never change.
	SetFlags(ctx context.Context, id int64, current, deleted bool, at time.Time) error
}

// BidRepository defines bid persistence operations. Bids are append-only.
type BidRepository interface {
	Create(ctx context.Context, b *Bid) error
	// LineItemWinner returns the lowest bid on any version of a line item
	// (same auction, same catalog item), earliest declared time then
	// earliest registration breaking ties.
	LineItemWinner(ctx context.Context, auctionID, lineItemID int64) (*Bid, error)
	// AuctionWinner applies the same ordering across the whole auction.
	AuctionWinner(ctx context.Context, auctionID int64) (*Bid, error)
	// CountSince counts a participant's bids on an auction registered at or
	// after since.
	CountSince(ctx context.Context, auctionID, participantID int64, since time.Time) (int, error)
	ListByAuction(ctx context.Context, auctionID int64) ([]Bid, error)
}

// RequestRepository defines purchase request persistence operations.
type RequestRepository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id int64) (*Request, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Request, error)
	UpdateStatus(ctx context.Context, id int64, status RequestStatus, reason string, at time.Time) error

	CreateLineItem(ctx context.Context, li *RequestLineItem) error
	ListLineItems(ctx context.Context, requestID int64) ([]RequestLineItem, error)

	CreateParticipant(ctx context.Context, p *RequestParticipant) error
	FindParticipant(ctx context.Context, requestID, userID int64) (*RequestParticipant, error)
	ListParticipants(ctx context.Context, requestID int64) ([]RequestParticipant, error)
}

// ConversionRepository records which requests fed which auction.
type ConversionRepository interface {
	Create(ctx context.Context, c *Conversion) error
	ListByAuction(ctx context.Context, auctionID int64) ([]Conversion, error)
}

// UserLookup resolves user identities.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}

// CatalogLookup resolves catalog entities.
type CatalogLookup interface {
	GetItem(ctx context.Context, id int64) (*CatalogItem, error)
	GetUnit(ctx context.Context, id int64) (*MeasureUnit, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	GetBrand(ctx context.Context, id int64) (*Brand, error)
}

// Unit groups repositories that share one connection or one transaction.
type Unit struct {
	RuleSets     RuleSetRepository
	Auctions     AuctionRepository
	Participants ParticipantRepository
	LineItems    LineItemRepository
	Bids         BidRepository
	Requests     RequestRepository
	Conversions  ConversionRepository
	Users        UserLookup
	Catalog      CatalogLookup
	Events       event.Store
}

// TxRunner runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise; nothing fn wrote is visible to
// other callers before commit.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, u *Unit) error) error
}
