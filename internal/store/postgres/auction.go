package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/store"
)

// RuleSetRepo implements store.RuleSetRepository with sqlx.
type RuleSetRepo struct {
	db sqlx.ExtContext
}

func (r *RuleSetRepo) Create(ctx context.Context, rs *store.RuleSet) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO rule_sets (active, min_decrement, cooldown_minutes, max_bids_per_window, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		rs.Active, rs.MinDecrement, rs.CooldownMinutes, rs.MaxBidsPerWindow, rs.CreatedAt,
	).Scan(&rs.ID)
	if err != nil {
		return mapErr(fmt.Errorf("creating rule-set: %w", err), "rule-set")
	}
	return nil
}

func (r *RuleSetRepo) GetByID(ctx context.Context, id int64) (*store.RuleSet, error) {
	var rs store.RuleSet
	if err := sqlx.GetContext(ctx, r.db, &rs, `SELECT * FROM rule_sets WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "rule-set", id)
	}
	return &rs, nil
}

func (r *RuleSetRepo) GetActive(ctx context.Context) (*store.RuleSet, error) {
	var rs []store.RuleSet
	if err := sqlx.SelectContext(ctx, r.db, &rs, `SELECT * FROM rule_sets WHERE active LIMIT 1`); err != nil {
		return nil, fmt.Errorf("getting active rule-set: %w", err)
	}
	if len(rs) == 0 {
		return nil, &apperr.Error{Kind: apperr.KindNotFound, Resource: "rule-set", Message: "no active rule-set"}
	}
	return &rs[0], nil
}

func (r *RuleSetRepo) List(ctx context.Context) ([]store.RuleSet, error) {
	rs := []store.RuleSet{}
	if err := sqlx.SelectContext(ctx, r.db, &rs, `SELECT * FROM rule_sets ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("listing rule-sets: %w", err)
	}
	return rs, nil
}

func (r *RuleSetRepo) DeactivateAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE rule_sets SET active = FALSE WHERE active`); err != nil {
		return fmt.Errorf("deactivating rule-sets: %w", err)
	}
	return nil
}

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db sqlx.ExtContext
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO auctions (description, info, status, created_by, rule_set_id, starts_at, ends_at,
		                       demand_opens_at, demand_closes_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		a.Description, a.Info, a.Status, a.CreatedBy, a.RuleSetID, a.StartsAt, a.EndsAt,
		a.DemandOpensAt, a.DemandClosesAt, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return mapErr(fmt.Errorf("creating auction: %w", err), "auction")
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id int64) (*store.Auction, error) {
	var a store.Auction
	if err := sqlx.GetContext(ctx, r.db, &a, `SELECT * FROM auctions WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "auction", id)
	}
	return &a, nil
}

func (r *AuctionRepo) GetByIDForUpdate(ctx context.Context, id int64) (*store.Auction, error) {
	var a store.Auction
	if err := sqlx.GetContext(ctx, r.db, &a, `SELECT * FROM auctions WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, mapErr(notFound(err, "auction", id), "auction")
	}
	return &a, nil
}

func (r *AuctionRepo) UpdateStatus(ctx context.Context, id int64, status store.AuctionStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = $1, updated_at = $2 WHERE id = $3`, status, at, id)
	if err != nil {
		return fmt.Errorf("updating auction status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("auction", id)
	}
	return nil
}
