// Package lineitem is the auction line-item ledger. Rows are never edited
// in place: an update retires the current row and inserts its successor, so
// the full history of a demand stays queryable.
package lineitem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/event"
	"github.com/jensholdgaard/pregao/internal/store"
)

// NewLineItem are the inputs of Add.
type NewLineItem struct {
	AuctionID     int64           `json:"auctionId"`
	ItemID        int64           `json:"itemId"`
	UnitID        int64           `json:"unitId"`
	Quantity      decimal.Decimal `json:"quantity"`
	ParticipantID int64           `json:"participantId"`
}

// Manager handles line item operations.
type Manager struct {
	repos  *store.Repositories
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewManager returns a new line item Manager.
func NewManager(repos *store.Repositories, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		repos:  repos,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/pregao/internal/lineitem"),
		clock:  clk,
	}
}

// Add creates the first version of a demand for an item.
func (m *Manager) Add(ctx context.Context, in NewLineItem) (*store.LineItem, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Add",
		trace.WithAttributes(
			attribute.Int64("auction_id", in.AuctionID),
			attribute.Int64("item_id", in.ItemID),
			attribute.Int64("participant_id", in.ParticipantID),
		),
	)
	defer span.End()

	var li *store.LineItem
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		var err error
		li, err = Add(ctx, u, in, m.clock.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "line item added",
		slog.Int64("auction_id", li.AuctionID),
		slog.Int64("line_item_id", li.ID),
		slog.Int64("item_id", li.ItemID),
		slog.String("quantity", li.Quantity.String()),
	)
	return li, nil
}

// Update supersedes the line item id with a copy carrying the patch. Only
// the current, non-deleted version may be updated.
func (m *Manager) Update(ctx context.Context, id int64, patch store.LineItemPatch) (*store.LineItem, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Update", trace.WithAttributes(attribute.Int64("line_item_id", id)))
	defer span.End()

	if patch.Empty() {
		return nil, apperr.Validation("quantity", "an update needs a quantity or a unit")
	}

	var next *store.LineItem
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		now := m.clock.Now().UTC()
		old, err := u.LineItems.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if patch.UnitID != nil {
			if _, err := u.Catalog.GetUnit(ctx, *patch.UnitID); err != nil {
				return err
			}
		}
		next, err = Supersede(ctx, u, old, patch, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "line item superseded",
		slog.Int64("auction_id", next.AuctionID),
		slog.Int64("superseded_id", id),
		slog.Int64("line_item_id", next.ID),
	)
	return next, nil
}

// Get returns a line item version by id.
func (m *Manager) Get(ctx context.Context, id int64) (*store.LineItem, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get", trace.WithAttributes(attribute.Int64("line_item_id", id)))
	defer span.End()
	return m.repos.LineItems.GetByID(ctx, id)
}

// List returns the current, non-deleted line items of an auction.
func (m *Manager) List(ctx context.Context, auctionID int64) ([]store.LineItem, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List", trace.WithAttributes(attribute.Int64("auction_id", auctionID)))
	defer span.End()

	if _, err := m.repos.Auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	items, err := m.repos.LineItems.ListActive(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.NoContent("line-items", auctionID)
	}
	return items, nil
}

// Delete soft-deletes a line item. Deleting a deleted row returns it
// unchanged.
func (m *Manager) Delete(ctx context.Context, id int64) (*store.LineItem, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Delete", trace.WithAttributes(attribute.Int64("line_item_id", id)))
	defer span.End()

	var (
		li      *store.LineItem
		changed bool
	)
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		var err error
		li, err = u.LineItems.GetByIDForUpdate(ctx, id)
		if err != nil || li.Deleted {
			return err
		}
		now := m.clock.Now().UTC()
		if err := u.LineItems.SetFlags(ctx, id, li.CurrentVersion, true, now); err != nil {
			return err
		}
		li.Deleted = true
		li.UpdatedAt = now
		changed = true
		return u.Events.Append(ctx, event.New(li.AuctionID, event.LineItemDeleted, payload(li, nil), now))
	})
	if err != nil {
		return nil, err
	}

	if changed {
		m.logger.InfoContext(ctx, "line item deleted",
			slog.Int64("auction_id", li.AuctionID),
			slog.Int64("line_item_id", li.ID),
		)
	}
	return li, nil
}

// Add is Manager.Add on an open transaction.
func Add(ctx context.Context, u *store.Unit, in NewLineItem, now time.Time) (*store.LineItem, error) {
	if err := checkQuantity(in.Quantity); err != nil {
		return nil, err
	}
	if _, err := u.Auctions.GetByID(ctx, in.AuctionID); err != nil {
		return nil, err
	}
	creator, err := u.Participants.GetByID(ctx, in.ParticipantID)
	if err != nil {
		return nil, err
	}
	if creator.AuctionID != in.AuctionID {
		return nil, apperr.Validation("participantId", "participant %d is not enrolled in auction %d", creator.ID, in.AuctionID)
	}
	if !creator.IsBuyer() {
		return nil, apperr.Validation("participantId", "participant %d is a %s; only buyers add line items", creator.ID, creator.Role)
	}
	if _, err := u.Catalog.GetItem(ctx, in.ItemID); err != nil {
		return nil, err
	}
	if _, err := u.Catalog.GetUnit(ctx, in.UnitID); err != nil {
		return nil, err
	}

	existing, err := u.LineItems.FindActive(ctx, in.AuctionID, in.ItemID)
	switch {
	case err == nil:
		return nil, apperr.Conflict("line-item",
			"item %d already has line item %d in auction %d", in.ItemID, existing.ID, in.AuctionID).WithID(existing.ID)
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, fmt.Errorf("looking up active line item: %w", err)
	}

	li := &store.LineItem{
		AuctionID:      in.AuctionID,
		ItemID:         in.ItemID,
		CreatedBy:      creator.ID,
		UnitID:         in.UnitID,
		Quantity:       in.Quantity,
		CurrentVersion: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := u.LineItems.Create(ctx, li); err != nil {
		return nil, err
	}
	if err := u.Events.Append(ctx, event.New(li.AuctionID, event.LineItemAdded, payload(li, nil), now)); err != nil {
		return nil, fmt.Errorf("appending line item added event: %w", err)
	}
	return li, nil
}

// Supersede retires old and inserts its successor with patch applied. old
// must have been read with a row lock in the same transaction; a row that is
// no longer current or is deleted is a stale edit.
func Supersede(ctx context.Context, u *store.Unit, old *store.LineItem, patch store.LineItemPatch, now time.Time) (*store.LineItem, error) {
	if !old.Active() {
		return nil, apperr.Validation("lineItemId", "line item %d is not the current version", old.ID)
	}
	if patch.Quantity != nil {
		if err := checkQuantity(*patch.Quantity); err != nil {
			return nil, err
		}
	}

	if err := u.LineItems.SetFlags(ctx, old.ID, false, false, now); err != nil {
		return nil, err
	}
	next := old.Successor(patch, now)
	if err := u.LineItems.Create(ctx, &next); err != nil {
		return nil, err
	}
	if err := u.Events.Append(ctx, event.New(next.AuctionID, event.LineItemSuperseded, payload(&next, &old.ID), now)); err != nil {
		return nil, fmt.Errorf("appending line item superseded event: %w", err)
	}
	return &next, nil
}

func checkQuantity(q decimal.Decimal) error {
	if q.IsNegative() {
		return apperr.Validation("quantity", "quantity must be >= 0, got %s", q)
	}
	if !store.FitsScale(q, store.QuantityScale) {
		return apperr.Validation("quantity", "quantity %s has more than %d decimal places", q, store.QuantityScale)
	}
	return nil
}

func payload(li *store.LineItem, superseded *int64) event.LineItemData {
	return event.LineItemData{
		LineItemID:   li.ID,
		ItemID:       li.ItemID,
		UnitID:       li.UnitID,
		Quantity:     li.Quantity,
		SupersededID: superseded,
	}
}
