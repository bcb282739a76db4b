package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/pregao/internal/event"
	"github.com/jensholdgaard/pregao/internal/store"
)

// UserRepo resolves users from the users table.
type UserRepo struct {
	db sqlx.ExtContext
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*store.User, error) {
	var u store.User
	if err := sqlx.GetContext(ctx, r.db, &u, `SELECT id, email, name FROM users WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

// CatalogRepo resolves catalog entities.
type CatalogRepo struct {
	db sqlx.ExtContext
}

func (r *CatalogRepo) GetItem(ctx context.Context, id int64) (*store.CatalogItem, error) {
	var it store.CatalogItem
	if err := sqlx.GetContext(ctx, r.db, &it, `SELECT * FROM items WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "item", id)
	}
	return &it, nil
}

func (r *CatalogRepo) GetUnit(ctx context.Context, id int64) (*store.MeasureUnit, error) {
	var u store.MeasureUnit
	if err := sqlx.GetContext(ctx, r.db, &u, `SELECT * FROM units WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "unit", id)
	}
	return &u, nil
}

func (r *CatalogRepo) GetCategory(ctx context.Context, id int64) (*store.Category, error) {
	var c store.Category
	if err := sqlx.GetContext(ctx, r.db, &c, `SELECT * FROM categories WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "category", id)
	}
	return &c, nil
}

func (r *CatalogRepo) GetBrand(ctx context.Context, id int64) (*store.Brand, error) {
	var b store.Brand
	if err := sqlx.GetContext(ctx, r.db, &b, `SELECT * FROM brands WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "brand", id)
	}
	return &b, nil
}

// EventStore implements event.Store backed by Postgres. Append runs on
// whatever connection or transaction the store was built with.
type EventStore struct {
	db sqlx.ExtContext
}

func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	for _, e := range events {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO events (id, auction_id, type, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.AuctionID, e.Type, []byte(e.Data), e.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting event (auction=%d, type=%s): %w", e.AuctionID, e.Type, err)
		}
	}
	return nil
}

func (s *EventStore) ListByAuction(ctx context.Context, auctionID int64) ([]event.Event, error) {
	events := []event.Event{}
	err := sqlx.SelectContext(ctx, s.db, &events,
		`SELECT id, auction_id, type, data, created_at
		 FROM events WHERE auction_id = $1 ORDER BY seq ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return events, nil
}
