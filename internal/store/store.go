package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionPending    AuctionStatus = "PENDING"
	AuctionAuthorized AuctionStatus = "AUTHORIZED"
	AuctionCanceled   AuctionStatus = "CANCELED"
	AuctionRejected   AuctionStatus = "REJECTED"
)

// Role is the fixed role of a user inside one auction or request.
type Role string

const (
	RoleBuyer    Role = "BUYER"
	RoleSupplier Role = "SUPPLIER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSupplier
}

// RequestStatus is the lifecycle state of a purchase request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestConverted RequestStatus = "CONVERTED"
)

// Decimal places the postgres schema stores for money and quantities.
const (
	MoneyScale    int32 = 2
	QuantityScale int32 = 4
)

// FitsScale reports whether d has at most places decimal places.
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// RuleSet is an immutable bid admissibility policy.
type RuleSet struct {
	ID               int64           `db:"id" json:"id"`
	Active           bool            `db:"active" json:"active"`
	MinDecrement     decimal.Decimal `db:"min_decrement" json:"minDecrement"`
	CooldownMinutes  int             `db:"cooldown_minutes" json:"cooldownMinutes"`
	MaxBidsPerWindow int             `db:"max_bids_per_window" json:"maxBidsPerWindow"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
}

// Cooldown returns the rate-limit window as a duration.
func (r RuleSet) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Auction represents a reverse auction ("pregão").
type Auction struct {
	ID             int64         `db:"id" json:"id"`
	Description    string        `db:"description" json:"description"`
	Info           string        `db:"info" json:"info"`
	Status         AuctionStatus `db:"status" json:"status"`
	CreatedBy      int64         `db:"created_by" json:"createdBy"`
	RuleSetID      *int64        `db:"rule_set_id" json:"ruleSetId"`
	StartsAt       time.Time     `db:"starts_at" json:"startsAt"`
	EndsAt         time.Time     `db:"ends_at" json:"endsAt"`
	DemandOpensAt  time.Time     `db:"demand_opens_at" json:"demandOpensAt"`
	DemandClosesAt time.Time     `db:"demand_closes_at" json:"demandClosesAt"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// Participant is a user's enrollment in an auction.
type Participant struct {
	ID        int64     `db:"id" json:"id"`
	AuctionID int64     `db:"auction_id" json:"auctionId"`
	UserID    int64     `db:"user_id" json:"userId"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// IsBuyer reports whether the participant holds the buyer role.
func (p Participant) IsBuyer() bool { return p.Role == RoleBuyer }

// LineItem is one version of an auction's demand for a catalog item.
type LineItem struct {
	ID             int64           `db:"id" json:"id"`
	AuctionID      int64           `db:"auction_id" json:"auctionId"`
	ItemID         int64           `db:"item_id" json:"itemId"`
	CreatedBy      int64           `db:"created_by" json:"createdBy"`
	UnitID         int64           `db:"unit_id" json:"unitId"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	CurrentVersion bool            `db:"current_version" json:"currentVersion"`
	Deleted        bool            `db:"deleted" json:"deleted"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Active reports whether li is the live version of its demand.
func (li LineItem) Active() bool { return li.CurrentVersion && !li.Deleted }

// LineItemPatch lists the fields a supersession may override. A nil field
// keeps the value of the superseded row.
type LineItemPatch struct {
	Quantity *decimal.Decimal
	UnitID   *int64
}

// Empty reports whether the patch overrides nothing.
func (p LineItemPatch) Empty() bool { return p.Quantity == nil && p.UnitID == nil }

// Successor returns the row that supersedes li: every field copied except
// the id, patch applied, flagged current and not deleted.
func (li LineItem) Successor(p LineItemPatch, now time.Time) LineItem {
	next := LineItem{
		AuctionID:      li.AuctionID,
		ItemID:         li.ItemID,
		CreatedBy:      li.CreatedBy,
		UnitID:         li.UnitID,
		Quantity:       li.Quantity,
		CurrentVersion: true,
		Deleted:        false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Quantity != nil {
		next.Quantity = *p.Quantity
	}
	if p.UnitID != nil {
		next.UnitID = *p.UnitID
	}
	return next
}

// Bid is an accepted offer on a line item. Bids are append-only.
type Bid struct {
	ID            int64           `db:"id" json:"id"`
	AuctionID     int64           `db:"auction_id" json:"auctionId"`
	ParticipantID int64           `db:"participant_id" json:"participantId"`
	LineItemID    int64           `db:"line_item_id" json:"lineItemId"`
	Value         decimal.Decimal `db:"value" json:"value"`
	BidAt         time.Time       `db:"bid_at" json:"bidAt"`
	RegisteredAt  time.Time       `db:"registered_at" json:"registeredAt"`
}

// RanksBefore reports whether a beats b for the winning position: lower
// value first, then earlier declared time, then earlier registration, then
// lower id.
func RanksBefore(a, b Bid) bool {
	if c := a.Value.Cmp(b.Value); c != 0 {
		return c < 0
	}
	if !a.BidAt.Equal(b.BidAt) {
		return a.BidAt.Before(b.BidAt)
	}
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.ID < b.ID
}

// Request is a purchase request ("solicitação").
type Request struct {
	ID              int64         `db:"id" json:"id"`
	Description     string        `db:"description" json:"description"`
	Info            string        `db:"info" json:"info"`
	SuggestedStart  *time.Time    `db:"suggested_start" json:"suggestedStart"`
	SuggestedEnd    *time.Time    `db:"suggested_end" json:"suggestedEnd"`
	CreatedBy       int64         `db:"created_by" json:"createdBy"`
	Status          RequestStatus `db:"status" json:"status"`
	RejectionReason string        `db:"rejection_reason" json:"rejectionReason"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// RequestLineItem is a demand entry of a request. Free-text fields hold
// what the requester typed; the reference ids are set when the entry was
// picked from the catalog.
type RequestLineItem struct {
	ID              int64           `db:"id" json:"id"`
	RequestID       int64           `db:"request_id" json:"requestId"`
	CreatedBy       int64           `db:"created_by" json:"createdBy"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	Deleted         bool            `db:"deleted" json:"deleted"`
	ItemName        string          `db:"item_name" json:"itemName"`
	ItemDescription string          `db:"item_description" json:"itemDescription"`
	CategoryName    string          `db:"category_name" json:"categoryName"`
	UnitName        string          `db:"unit_name" json:"unitName"`
	BrandName       string          `db:"brand_name" json:"brandName"`
	ItemRefID       *int64          `db:"item_ref_id" json:"itemReferenceId"`
	UnitRefID       *int64          `db:"unit_ref_id" json:"unitReferenceId"`
	CategoryRefID   *int64          `db:"category_ref_id" json:"categoryReferenceId"`
	BrandRefID      *int64          `db:"brand_ref_id" json:"brandReferenceId"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// RequestParticipant is a user's enrollment in a request.
type RequestParticipant struct {
	ID        int64     `db:"id" json:"id"`
	RequestID int64     `db:"request_id" json:"requestId"`
	UserID    int64     `db:"user_id" json:"userId"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Conversion records that a request fed into an auction.
type Conversion struct {
	ID        int64     `db:"id" json:"id"`
	AuctionID int64     `db:"auction_id" json:"auctionId"`
	RequestID int64     `db:"request_id" json:"requestId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// User is an identity resolved through UserLookup.
type User struct {
	ID    int64  `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
}

// CatalogItem is a purchasable item of the catalog.
type CatalogItem struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	CategoryID  *int64 `db:"category_id" json:"categoryId"`
	BrandID     *int64 `db:"brand_id" json:"brandId"`
}

// MeasureUnit is a unit of measure.
type MeasureUnit struct {
	ID   int64  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// Category groups catalog items.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Brand is a catalog item manufacturer.
type Brand struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
