// Package conversion turns purchase requests into auction demand, either
// as a new auction or merged into an existing one. Every conversion runs in
// a single transaction: a failure on any request leaves nothing behind.
package conversion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/auction"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/event"
	"github.com/jensholdgaard/pregao/internal/lineitem"
	"github.com/jensholdgaard/pregao/internal/requests"
	"github.com/jensholdgaard/pregao/internal/roster"
	"github.com/jensholdgaard/pregao/internal/store"
)

// Manager runs request conversions.
type Manager struct {
	repos       *store.Repositories
	logger      *slog.Logger
	tracer      trace.Tracer
	clock       clock.Clock
	conversions metric.Int64Counter
}

// NewManager returns a new conversion Manager.
func NewManager(repos *store.Repositories, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Manager, error) {
	meter := mp.Meter("github.com/jensholdgaard/pregao/internal/conversion")
	conversions, err := meter.Int64Counter("pregao.conversions",
		metric.WithDescription("Committed request conversions."),
		metric.WithUnit("{conversion}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating conversions counter: %w", err)
	}
	return &Manager{
		repos:       repos,
		logger:      logger,
		tracer:      tp.Tracer("github.com/jensholdgaard/pregao/internal/conversion"),
		clock:       clk,
		conversions: conversions,
	}, nil
}

// Convert creates a PENDING auction out of the given requests. The creator
// is enrolled as buyer and owns the merged line items; every other request
// participant joins with the role it held in the requests.
func (m *Manager) Convert(ctx context.Context, creatorUserID int64, f auction.Fields, requestIDs []int64) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Convert",
		trace.WithAttributes(
			attribute.Int64("creator_user_id", creatorUserID),
			attribute.Int64Slice("request_ids", requestIDs),
		),
	)
	defer span.End()

	var a *store.Auction
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		now := m.clock.Now().UTC()
		ids, items, members, err := gather(ctx, u, requestIDs)
		if err != nil {
			return err
		}

		var buyer *store.Participant
		a, buyer, err = auction.Create(ctx, u, creatorUserID, f, now)
		if err != nil {
			return err
		}
		for _, it := range items {
			_, err := lineitem.Add(ctx, u, lineitem.NewLineItem{
				AuctionID:     a.ID,
				ItemID:        it.ItemID,
				UnitID:        it.UnitID,
				Quantity:      it.Quantity,
				ParticipantID: buyer.ID,
			}, now)
			if err != nil {
				return fmt.Errorf("adding item %d: %w", it.ItemID, err)
			}
		}
		if err := enroll(ctx, u, a, members, now); err != nil {
			return err
		}
		return finish(ctx, u, a.ID, ids, false, now)
	})
	if err != nil {
		return nil, err
	}

	m.conversions.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", "create")))
	m.logger.InfoContext(ctx, "requests converted",
		slog.Int64("auction_id", a.ID),
		slog.Any("request_ids", requestIDs),
	)
	return a, nil
}

// Extend merges the given requests into an existing PENDING or AUTHORIZED
// auction. A merged item that already has an active line item supersedes
// it with the summed quantity; the units must match. The auction keeps its
// pinned rule-set.
func (m *Manager) Extend(ctx context.Context, auctionID int64, requestIDs []int64) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Extend",
		trace.WithAttributes(
			attribute.Int64("auction_id", auctionID),
			attribute.Int64Slice("request_ids", requestIDs),
		),
	)
	defer span.End()

	var a *store.Auction
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		now := m.clock.Now().UTC()
		var err error
		a, err = u.Auctions.GetByIDForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != store.AuctionPending && a.Status != store.AuctionAuthorized {
			return apperr.Validation("auctionId", "auction %d is %s and takes no more demand", a.ID, a.Status)
		}

		ids, items, members, err := gather(ctx, u, requestIDs)
		if err != nil {
			return err
		}

		buyer, _, err := roster.Enroll(ctx, u, a.ID, a.CreatedBy, store.RoleBuyer, now)
		if err != nil {
			return fmt.Errorf("enrolling creator: %w", err)
		}
		for _, it := range items {
			if err := merge(ctx, u, a.ID, buyer.ID, it, now); err != nil {
				return err
			}
		}
		if err := enroll(ctx, u, a, members, now); err != nil {
			return err
		}
		return finish(ctx, u, a.ID, ids, true, now)
	})
	if err != nil {
		return nil, err
	}

	m.conversions.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", "extend")))
	m.logger.InfoContext(ctx, "requests merged into auction",
		slog.Int64("auction_id", a.ID),
		slog.Any("request_ids", requestIDs),
	)
	return a, nil
}

// List returns the conversion records of an auction.
func (m *Manager) List(ctx context.Context, auctionID int64) ([]store.Conversion, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List", trace.WithAttributes(attribute.Int64("auction_id", auctionID)))
	defer span.End()

	if _, err := m.repos.Auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	cs, err := m.repos.Conversions.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, apperr.NoContent("conversions", auctionID)
	}
	return cs, nil
}

// gather locks the requests in id order, refuses converted ones and unifies
// their line items and participants. Repeated ids count once.
func gather(ctx context.Context, u *store.Unit, requestIDs []int64) ([]int64, []Item, []Member, error) {
	if len(requestIDs) == 0 {
		return nil, nil, nil, apperr.Validation("requestIds", "at least one request is required")
	}
	ids := slices.Clone(requestIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var (
		items        []store.RequestLineItem
		participants []store.RequestParticipant
	)
	for _, id := range ids {
		r, err := u.Requests.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, nil, nil, err
		}
		if r.Status == store.RequestConverted {
			return nil, nil, nil, apperr.Validation("requestIds", "request %d is already converted", id)
		}
		lis, err := u.Requests.ListLineItems(ctx, id)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("listing line items of request %d: %w", id, err)
		}
		ps, err := u.Requests.ListParticipants(ctx, id)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("listing participants of request %d: %w", id, err)
		}
		items = append(items, lis...)
		participants = append(participants, ps...)
	}

	merged, members, err := Unify(items, participants)
	if err != nil {
		return nil, nil, nil, err
	}
	return ids, merged, members, nil
}

// merge folds it into the auction's active line item for the same catalog
// item, or adds it when there is none.
func merge(ctx context.Context, u *store.Unit, auctionID, buyerID int64, it Item, now time.Time) error {
	existing, err := u.LineItems.FindActive(ctx, auctionID, it.ItemID)
	switch {
	case apperr.KindOf(err) == apperr.KindNotFound:
		_, err := lineitem.Add(ctx, u, lineitem.NewLineItem{
			AuctionID:     auctionID,
			ItemID:        it.ItemID,
			UnitID:        it.UnitID,
			Quantity:      it.Quantity,
			ParticipantID: buyerID,
		}, now)
		if err != nil {
			return fmt.Errorf("adding item %d: %w", it.ItemID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("looking up active line item: %w", err)
	}

	old, err := u.LineItems.GetByIDForUpdate(ctx, existing.ID)
	if err != nil {
		return err
	}
	if old.UnitID != it.UnitID {
		return apperr.Validation("unitReferenceId",
			"unit inconsistency for item %d: auction uses unit %d, requests use unit %d", it.ItemID, old.UnitID, it.UnitID)
	}
	qty := old.Quantity.Add(it.Quantity)
	if _, err := lineitem.Supersede(ctx, u, old, store.LineItemPatch{Quantity: &qty}, now); err != nil {
		return fmt.Errorf("merging item %d: %w", it.ItemID, err)
	}
	return nil
}

// enroll adds the merged participants, skipping the auction creator who is
// already the buyer.
func enroll(ctx context.Context, u *store.Unit, a *store.Auction, members []Member, now time.Time) error {
	for _, mb := range members {
		if mb.UserID == a.CreatedBy {
			continue
		}
		if _, _, err := roster.Enroll(ctx, u, a.ID, mb.UserID, mb.Role, now); err != nil {
			return err
		}
	}
	return nil
}

// finish marks the requests converted and records where they went.
func finish(ctx context.Context, u *store.Unit, auctionID int64, ids []int64, extended bool, now time.Time) error {
	for _, id := range ids {
		if err := requests.SetStatus(ctx, u, id, store.RequestConverted, "", now); err != nil {
			return err
		}
		if err := u.Conversions.Create(ctx, &store.Conversion{AuctionID: auctionID, RequestID: id, CreatedAt: now}); err != nil {
			return err
		}
	}
	evt := event.New(auctionID, event.RequestsConverted, event.RequestsConvertedData{RequestIDs: ids, Extended: extended}, now)
	if err := u.Events.Append(ctx, evt); err != nil {
		return fmt.Errorf("appending requests converted event: %w", err)
	}
	return nil
}
