package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/store"
)

// ParticipantRepo implements store.ParticipantRepository with sqlx.
type ParticipantRepo struct {
	db sqlx.ExtContext
}

func (r *ParticipantRepo) Create(ctx context.Context, p *store.Participant) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO participants (auction_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		p.AuctionID, p.UserID, p.Role, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return mapErr(fmt.Errorf("enrolling user %d in auction %d: %w", p.UserID, p.AuctionID, err), "participant")
	}
	return nil
}

func (r *ParticipantRepo) GetByID(ctx context.Context, id int64) (*store.Participant, error) {
	var p store.Participant
	if err := sqlx.GetContext(ctx, r.db, &p, `SELECT * FROM participants WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "participant", id)
	}
	return &p, nil
}

func (r *ParticipantRepo) GetByIDForUpdate(ctx context.Context, id int64) (*store.Participant, error) {
	var p store.Participant
	if err := sqlx.GetContext(ctx, r.db, &p, `SELECT * FROM participants WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, mapErr(notFound(err, "participant", id), "participant")
	}
	return &p, nil
}

func (r *ParticipantRepo) FindByAuctionUser(ctx context.Context, auctionID, userID int64) (*store.Participant, error) {
	var p store.Participant
	err := sqlx.GetContext(ctx, r.db, &p,
		`SELECT * FROM participants WHERE auction_id = $1 AND user_id = $2`, auctionID, userID)
	if err != nil {
		return nil, notFound(err, "participant", userID)
	}
	return &p, nil
}

func (r *ParticipantRepo) ListByAuction(ctx context.Context, auctionID int64) ([]store.Participant, error) {
	ps := []store.Participant{}
	err := sqlx.SelectContext(ctx, r.db, &ps,
		`SELECT * FROM participants WHERE auction_id = $1 ORDER BY id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	return ps, nil
}

// LineItemRepo implements store.LineItemRepository with sqlx.
type LineItemRepo struct {
	db sqlx.ExtContext
}

func (r *LineItemRepo) Create(ctx context.Context, li *store.LineItem) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO line_items (auction_id, item_id, created_by, unit_id, quantity,
		                         current_version, deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		li.AuctionID, li.ItemID, li.CreatedBy, li.UnitID, li.Quantity,
		li.CurrentVersion, li.Deleted, li.CreatedAt, li.UpdatedAt,
	).Scan(&li.ID)
	if err != nil {
		return mapErr(fmt.Errorf("creating line item for item %d: %w", li.ItemID, err), "line-item")
	}
	return nil
}

func (r *LineItemRepo) GetByID(ctx context.Context, id int64) (*store.LineItem, error) {
	var li store.LineItem
	if err := sqlx.GetContext(ctx, r.db, &li, `SELECT * FROM line_items WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "line-item", id)
	}
	return &li, nil
}

func (r *LineItemRepo) GetByIDForUpdate(ctx context.Context, id int64) (*store.LineItem, error) {
	var li store.LineItem
	if err := sqlx.GetContext(ctx, r.db, &li, `SELECT * FROM line_items WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, mapErr(notFound(err, "line-item", id), "line-item")
	}
	return &li, nil
}

func (r *LineItemRepo) FindActive(ctx context.Context, auctionID, itemID int64) (*store.LineItem, error) {
	var li store.LineItem
	err := sqlx.GetContext(ctx, r.db, &li,
		`SELECT * FROM line_items
		 WHERE auction_id = $1 AND item_id = $2 AND current_version AND NOT deleted`, auctionID, itemID)
	if err != nil {
		return nil, notFound(err, "line-item", itemID)
	}
	return &li, nil
}

func (r *LineItemRepo) ListActive(ctx context.Context, auctionID int64) ([]store.LineItem, error) {
	items := []store.LineItem{}
	err := sqlx.SelectContext(ctx, r.db, &items,
		`SELECT * FROM line_items
		 WHERE auction_id = $1 AND current_version AND NOT deleted ORDER BY id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing line items: %w", err)
	}
	return items, nil
}

func (r *LineItemRepo) SetFlags(ctx context.Context, id int64, current, deleted bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE line_items SET current_version = $1, deleted = $2, updated_at = $3 WHERE id = $4`,
		current, deleted, at, id)
	if err != nil {
		return mapErr(fmt.Errorf("updating line item %d: %w", id, err), "line-item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("line-item", id)
	}
	return nil
}
