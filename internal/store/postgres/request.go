package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/store"
)

// RequestRepo implements store.RequestRepository with sqlx.
type RequestRepo struct {
	db sqlx.ExtContext
}

func (r *RequestRepo) Create(ctx context.Context, req *store.Request) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO requests (description, info, suggested_start, suggested_end, created_by,
		                       status, rejection_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		req.Description, req.Info, req.SuggestedStart, req.SuggestedEnd, req.CreatedBy,
		req.Status, req.RejectionReason, req.CreatedAt, req.UpdatedAt,
	).Scan(&req.ID)
	if err != nil {
		return mapErr(fmt.Errorf("creating request: %w", err), "request")
	}
	return nil
}

func (r *RequestRepo) GetByID(ctx context.Context, id int64) (*store.Request, error) {
	var req store.Request
	if err := sqlx.GetContext(ctx, r.db, &req, `SELECT * FROM requests WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "request", id)
	}
	return &req, nil
}

func (r *RequestRepo) GetByIDForUpdate(ctx context.Context, id int64) (*store.Request, error) {
	var req store.Request
	if err := sqlx.GetContext(ctx, r.db, &req, `SELECT * FROM requests WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, mapErr(notFound(err, "request", id), "request")
	}
	return &req, nil
}

func (r *RequestRepo) UpdateStatus(ctx context.Context, id int64, status store.RequestStatus, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE requests SET status = $1, rejection_reason = $2, updated_at = $3 WHERE id = $4`,
		status, reason, at, id)
	if err != nil {
		return fmt.Errorf("updating request status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("request", id)
	}
	return nil
}

func (r *RequestRepo) CreateLineItem(ctx context.Context, li *store.RequestLineItem) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO request_line_items (request_id, created_by, quantity, deleted,
		                                 item_name, item_description, category_name, unit_name, brand_name,
		                                 item_ref_id, unit_ref_id, category_ref_id, brand_ref_id,
		                                 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		li.RequestID, li.CreatedBy, li.Quantity, li.Deleted,
		li.ItemName, li.ItemDescription, li.CategoryName, li.UnitName, li.BrandName,
		li.ItemRefID, li.UnitRefID, li.CategoryRefID, li.BrandRefID,
		li.CreatedAt, li.UpdatedAt,
	).Scan(&li.ID)
	if err != nil {
		return mapErr(fmt.Errorf("creating request line item: %w", err), "request-line-item")
	}
	return nil
}

func (r *RequestRepo) ListLineItems(ctx context.Context, requestID int64) ([]store.RequestLineItem, error) {
	items := []store.RequestLineItem{}
	err := sqlx.SelectContext(ctx, r.db, &items,
		`SELECT * FROM request_line_items WHERE request_id = $1 AND NOT deleted ORDER BY id ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("listing request line items: %w", err)
	}
	return items, nil
}

func (r *RequestRepo) CreateParticipant(ctx context.Context, p *store.RequestParticipant) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO request_participants (request_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		p.RequestID, p.UserID, p.Role, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return mapErr(fmt.Errorf("enrolling user %d in request %d: %w", p.UserID, p.RequestID, err), "request-participant")
	}
	return nil
}

func (r *RequestRepo) FindParticipant(ctx context.Context, requestID, userID int64) (*store.RequestParticipant, error) {
	var p store.RequestParticipant
	err := sqlx.GetContext(ctx, r.db, &p,
		`SELECT * FROM request_participants WHERE request_id = $1 AND user_id = $2`, requestID, userID)
	if err != nil {
		return nil, notFound(err, "request-participant", userID)
	}
	return &p, nil
}

func (r *RequestRepo) ListParticipants(ctx context.Context, requestID int64) ([]store.RequestParticipant, error) {
	ps := []store.RequestParticipant{}
	err := sqlx.SelectContext(ctx, r.db, &ps,
		`SELECT * FROM request_participants WHERE request_id = $1 ORDER BY id ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("listing request participants: %w", err)
	}
	return ps, nil
}
