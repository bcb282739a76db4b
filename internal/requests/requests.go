// Package requests manages purchase requests, the demand that conversion
// later turns into auctions.
package requests

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/store"
)

// NewRequest are the inputs of Create.
type NewRequest struct {
	Description    string     `json:"description"`
	Info           string     `json:"info"`
	SuggestedStart *time.Time `json:"suggestedStart"`
	SuggestedEnd   *time.Time `json:"suggestedEnd"`
}

// NewLineItem is a demand entry added to a request. Free-text fields are
// kept as typed; reference ids, when set, must resolve in the catalog.
type NewLineItem struct {
	CreatedBy       int64           `json:"createdBy"`
	Quantity        decimal.Decimal `json:"quantity"`
	ItemName        string          `json:"itemName"`
	ItemDescription string          `json:"itemDescription"`
	CategoryName    string          `json:"categoryName"`
	UnitName        string          `json:"unitName"`
	BrandName       string          `json:"brandName"`
	ItemRefID       *int64          `json:"itemReferenceId"`
	UnitRefID       *int64          `json:"unitReferenceId"`
	CategoryRefID   *int64          `json:"categoryReferenceId"`
	BrandRefID      *int64          `json:"brandReferenceId"`
}

// Manager handles purchase request operations.
type Manager struct {
	repos  *store.Repositories
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewManager returns a new request Manager.
func NewManager(repos *store.Repositories, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		repos:  repos,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/pregao/internal/requests"),
		clock:  clk,
	}
}

// Create opens a PENDING request.
func (m *Manager) Create(ctx context.Context, creatorUserID int64, in NewRequest) (*store.Request, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create", trace.WithAttributes(attribute.Int64("creator_user_id", creatorUserID)))
	defer span.End()

	if strings.TrimSpace(in.Description) == "" {
		return nil, apperr.Validation("description", "description is required")
	}
	if in.SuggestedStart != nil && in.SuggestedEnd != nil && !in.SuggestedStart.Before(*in.SuggestedEnd) {
		return nil, apperr.Validation("suggestedEnd", "suggested window must end after it starts")
	}

	now := m.clock.Now().UTC()
	r := &store.Request{
		Description:    in.Description,
		Info:           in.Info,
		SuggestedStart: in.SuggestedStart,
		SuggestedEnd:   in.SuggestedEnd,
		CreatedBy:      creatorUserID,
		Status:         store.RequestPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		if _, err := u.Users.GetByID(ctx, creatorUserID); err != nil {
			return err
		}
		return u.Requests.Create(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "request created",
		slog.Int64("request_id", r.ID),
		slog.Int64("created_by", creatorUserID),
	)
	return r, nil
}

// Get returns a request by id.
func (m *Manager) Get(ctx context.Context, id int64) (*store.Request, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get", trace.WithAttributes(attribute.Int64("request_id", id)))
	defer span.End()
	return m.repos.Requests.GetByID(ctx, id)
}

// Approve moves a PENDING request to APPROVED.
func (m *Manager) Approve(ctx context.Context, id int64) (*store.Request, error) {
	return m.decide(ctx, id, store.RequestApproved, "")
}

// Reject moves a PENDING request to REJECTED. reason is required.
func (m *Manager) Reject(ctx context.Context, id int64, reason string) (*store.Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("reason", "a rejection needs a reason")
	}
	return m.decide(ctx, id, store.RequestRejected, reason)
}

func (m *Manager) decide(ctx context.Context, id int64, to store.RequestStatus, reason string) (*store.Request, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.decide",
		trace.WithAttributes(
			attribute.Int64("request_id", id),
			attribute.String("to", string(to)),
		),
	)
	defer span.End()

	var r *store.Request
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		var err error
		r, err = u.Requests.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != store.RequestPending {
			return apperr.Validation("status", "request %d is %s; only PENDING requests can become %s", id, r.Status, to)
		}
		now := m.clock.Now().UTC()
		if err := SetStatus(ctx, u, id, to, reason, now); err != nil {
			return err
		}
		r.Status = to
		r.RejectionReason = reason
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "request status changed",
		slog.Int64("request_id", id),
		slog.String("status", string(to)),
	)
	return r, nil
}

// AddLineItem appends a demand entry to a request that is not yet
// converted.
func (m *Manager) AddLineItem(ctx context.Context, requestID int64, in NewLineItem) (*store.RequestLineItem, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.AddLineItem", trace.WithAttributes(attribute.Int64("request_id", requestID)))
	defer span.End()

	if in.Quantity.IsNegative() {
		return nil, apperr.Validation("quantity", "quantity must be >= 0, got %s", in.Quantity)
	}
	if !store.FitsScale(in.Quantity, store.QuantityScale) {
		return nil, apperr.Validation("quantity", "quantity %s has more than %d decimal places", in.Quantity, store.QuantityScale)
	}

	now := m.clock.Now().UTC()
	li := &store.RequestLineItem{
		RequestID:       requestID,
		CreatedBy:       in.CreatedBy,
		Quantity:        in.Quantity,
		ItemName:        in.ItemName,
		ItemDescription: in.ItemDescription,
		CategoryName:    in.CategoryName,
		UnitName:        in.UnitName,
		BrandName:       in.BrandName,
		ItemRefID:       in.ItemRefID,
		UnitRefID:       in.UnitRefID,
		CategoryRefID:   in.CategoryRefID,
		BrandRefID:      in.BrandRefID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		if err := open(ctx, u, requestID); err != nil {
			return err
		}
		if _, err := u.Users.GetByID(ctx, in.CreatedBy); err != nil {
			return err
		}
		if err := resolveRefs(ctx, u.Catalog, in); err != nil {
			return err
		}
		return u.Requests.CreateLineItem(ctx, li)
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "request line item added",
		slog.Int64("request_id", requestID),
		slog.Int64("request_line_item_id", li.ID),
		slog.String("quantity", li.Quantity.String()),
	)
	return li, nil
}

// AddParticipant enrolls userID in a request under role. The rules match
// the auction roster: same role again is a no-op, a different role is a
// Conflict.
func (m *Manager) AddParticipant(ctx context.Context, requestID, userID int64, role store.Role) (*store.RequestParticipant, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.AddParticipant",
		trace.WithAttributes(
			attribute.Int64("request_id", requestID),
			attribute.Int64("user_id", userID),
			attribute.String("role", string(role)),
		),
	)
	defer span.End()

	if !role.Valid() {
		return nil, apperr.Validation("role", "unknown role %q", role)
	}

	var (
		p       *store.RequestParticipant
		created bool
	)
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		if err := open(ctx, u, requestID); err != nil {
			return err
		}
		if _, err := u.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		existing, err := u.Requests.FindParticipant(ctx, requestID, userID)
		switch {
		case err == nil:
			if existing.Role != role {
				return apperr.Conflict("request-participant",
					"user %d is in request %d as %s, not %s", userID, requestID, existing.Role, role).WithID(existing.ID)
			}
			p = existing
			return nil
		case apperr.KindOf(err) != apperr.KindNotFound:
			return fmt.Errorf("looking up request participant: %w", err)
		}
		p = &store.RequestParticipant{RequestID: requestID, UserID: userID, Role: role, CreatedAt: m.clock.Now().UTC()}
		created = true
		return u.Requests.CreateParticipant(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	if created {
		m.logger.InfoContext(ctx, "request participant added",
			slog.Int64("request_id", requestID),
			slog.Int64("user_id", userID),
			slog.String("role", string(role)),
		)
	}
	return p, nil
}

// ListLineItems returns the non-deleted line items of a request.
func (m *Manager) ListLineItems(ctx context.Context, requestID int64) ([]store.RequestLineItem, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListLineItems", trace.WithAttributes(attribute.Int64("request_id", requestID)))
	defer span.End()

	if _, err := m.repos.Requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	items, err := m.repos.Requests.ListLineItems(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.NoContent("request-line-items", requestID)
	}
	return items, nil
}

// ListParticipants returns the participants of a request.
func (m *Manager) ListParticipants(ctx context.Context, requestID int64) ([]store.RequestParticipant, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListParticipants", trace.WithAttributes(attribute.Int64("request_id", requestID)))
	defer span.End()

	if _, err := m.repos.Requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	ps, err := m.repos.Requests.ListParticipants(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, apperr.NoContent("request-participants", requestID)
	}
	return ps, nil
}

// SetStatus writes a request status on an open transaction without any
// transition check; callers decide whether the move is allowed.
func SetStatus(ctx context.Context, u *store.Unit, id int64, status store.RequestStatus, reason string, now time.Time) error {
	if err := u.Requests.UpdateStatus(ctx, id, status, reason, now); err != nil {
		return fmt.Errorf("setting request %d to %s: %w", id, status, err)
	}
	return nil
}

// open fails unless the request exists and can still take changes.
func open(ctx context.Context, u *store.Unit, requestID int64) error {
	r, err := u.Requests.GetByIDForUpdate(ctx, requestID)
	if err != nil {
		return err
	}
	if r.Status == store.RequestConverted {
		return apperr.Validation("requestId", "request %d is already converted", requestID)
	}
	return nil
}

func resolveRefs(ctx context.Context, c store.CatalogLookup, in NewLineItem) error {
	if in.ItemRefID != nil {
		if _, err := c.GetItem(ctx, *in.ItemRefID); err != nil {
			return err
		}
	}
	if in.UnitRefID != nil {
		if _, err := c.GetUnit(ctx, *in.UnitRefID); err != nil {
			return err
		}
	}
	if in.CategoryRefID != nil {
		if _, err := c.GetCategory(ctx, *in.CategoryRefID); err != nil {
			return err
		}
	}
	if in.BrandRefID != nil {
		if _, err := c.GetBrand(ctx, *in.BrandRefID); err != nil {
			return err
		}
	}
	return nil
}
