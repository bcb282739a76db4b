package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/pregao/internal/store"
)

// BidRepo implements store.BidRepository with sqlx.
type BidRepo struct {
	db sqlx.ExtContext
}

// rankOrder mirrors store.RanksBefore. Queries alias bids as b.
const rankOrder = `ORDER BY b.value ASC, b.bid_at ASC, b.registered_at ASC, b.id ASC`

func (r *BidRepo) Create(ctx context.Context, b *store.Bid) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO bids (auction_id, participant_id, line_item_id, value, bid_at, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		b.AuctionID, b.ParticipantID, b.LineItemID, b.Value, b.BidAt, b.RegisteredAt,
	).Scan(&b.ID)
	if err != nil {
		return mapErr(fmt.Errorf("creating bid: %w", err), "bid")
	}
	return nil
}

// LineItemWinner ranks the bids on every version of the line item: rows of
// the same auction for the same catalog item.
func (r *BidRepo) LineItemWinner(ctx context.Context, auctionID, lineItemID int64) (*store.Bid, error) {
	var b store.Bid
	err := sqlx.GetContext(ctx, r.db, &b,
		`SELECT b.* FROM bids b
		 JOIN line_items v ON v.id = b.line_item_id
		 JOIN line_items li ON li.auction_id = v.auction_id AND li.item_id = v.item_id
		 WHERE b.auction_id = $1 AND li.id = $2 `+rankOrder+` LIMIT 1`,
		auctionID, lineItemID)
	if err != nil {
		return nil, notFound(err, "bid", lineItemID)
	}
	return &b, nil
}

func (r *BidRepo) AuctionWinner(ctx context.Context, auctionID int64) (*store.Bid, error) {
	var b store.Bid
	err := sqlx.GetContext(ctx, r.db, &b,
		`SELECT b.* FROM bids b WHERE b.auction_id = $1 `+rankOrder+` LIMIT 1`, auctionID)
	if err != nil {
		return nil, notFound(err, "bid", auctionID)
	}
	return &b, nil
}

func (r *BidRepo) CountSince(ctx context.Context, auctionID, participantID int64, since time.Time) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n,
		`SELECT COUNT(*) FROM bids
		 WHERE auction_id = $1 AND participant_id = $2 AND registered_at >= $3`,
		auctionID, participantID, since)
	if err != nil {
		return 0, fmt.Errorf("counting bids: %w", err)
	}
	return n, nil
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID int64) ([]store.Bid, error) {
	bids := []store.Bid{}
	err := sqlx.SelectContext(ctx, r.db, &bids,
		`SELECT * FROM bids WHERE auction_id = $1 ORDER BY registered_at ASC, id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}

// ConversionRepo implements store.ConversionRepository with sqlx.
type ConversionRepo struct {
	db sqlx.ExtContext
}

func (r *ConversionRepo) Create(ctx context.Context, c *store.Conversion) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO conversions (auction_id, request_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		c.AuctionID, c.RequestID, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return mapErr(fmt.Errorf("recording conversion of request %d: %w", c.RequestID, err), "conversion")
	}
	return nil
}

func (r *ConversionRepo) ListByAuction(ctx context.Context, auctionID int64) ([]store.Conversion, error) {
	cs := []store.Conversion{}
	err := sqlx.SelectContext(ctx, r.db, &cs,
		`SELECT * FROM conversions WHERE auction_id = $1 ORDER BY id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing conversions: %w", err)
	}
	return cs, nil
}
