// Package bidding is the bid engine of the reverse auction. Lower values
// win. A bid on a line item that already has a winner must undercut it by
// at least the rule-set's minimum decrement, and a supplier may place only a
// limited number of bids per cooldown window.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/event"
	"github.com/jensholdgaard/pregao/internal/rules"
	"github.com/jensholdgaard/pregao/internal/store"
)

// Rejection reasons, used as the reason attribute of the rejected counter.
const (
	ReasonAuctionClosed     = "auction_closed"
	ReasonNotEnrolled       = "not_enrolled"
	ReasonNotSupplier       = "not_supplier"
	ReasonLineItemInactive  = "line_item_inactive"
	ReasonNotImproving      = "not_improving"
	ReasonInsufficientDelta = "insufficient_decrement"
	ReasonRateLimited       = "rate_limited"
	ReasonInvalidValue      = "invalid_value"
)

// Submission is a bid as sent by a supplier.
type Submission struct {
	AuctionID     int64           `json:"auctionId"`
	LineItemID    int64           `json:"lineItemId"`
	ParticipantID int64           `json:"participantId"`
	Value         decimal.Decimal `json:"value"`
	// BidAt is the client-declared time of the bid. Zero means now.
	BidAt time.Time `json:"bidAt"`
}

// Engine validates and records bids.
type Engine struct {
	repos    *store.Repositories
	defaults func() store.RuleSet
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock

	accepted metric.Int64Counter
	rejected metric.Int64Counter
}

// NewEngine returns a new Engine. defaults supplies the rule-set for
// auctions that pin none.
func NewEngine(repos *store.Repositories, defaults func() store.RuleSet, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Engine, error) {
	meter := mp.Meter("github.com/jensholdgaard/pregao/internal/bidding")
	accepted, err := meter.Int64Counter("pregao.bids.accepted",
		metric.WithDescription("Bids recorded by the engine."),
		metric.WithUnit("{bid}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating accepted counter: %w", err)
	}
	rejected, err := meter.Int64Counter("pregao.bids.rejected",
		metric.WithDescription("Bids refused by an admissibility rule."),
		metric.WithUnit("{bid}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	return &Engine{
		repos:    repos,
		defaults: defaults,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/pregao/internal/bidding"),
		clock:    clk,
		accepted: accepted,
		rejected: rejected,
	}, nil
}

// rejection is a refused bid together with the rule that refused it.
type rejection struct {
	reason string
	err    *apperr.Error
}

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

func reject(reason, field, format string, args ...any) error {
	return &rejection{reason: reason, err: apperr.Validation(field, format, args...)}
}

// Submit validates s and records it. Every check and the insert run in one
// transaction holding row locks on the participant and the line item, so
// concurrent bids on one line item, or by one supplier, are judged in
// commit order.
func (e *Engine) Submit(ctx context.Context, s Submission) (*store.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Submit",
		trace.WithAttributes(
			attribute.Int64("auction_id", s.AuctionID),
			attribute.Int64("line_item_id", s.LineItemID),
			attribute.Int64("participant_id", s.ParticipantID),
			attribute.String("value", s.Value.String()),
		),
	)
	defer span.End()

	var bid *store.Bid
	err := e.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		var err error
		bid, err = e.submit(ctx, u, s)
		return err
	})

	var rej *rejection
	switch {
	case errors.As(err, &rej):
		e.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rej.reason)))
		e.logger.InfoContext(ctx, "bid rejected",
			slog.Int64("auction_id", s.AuctionID),
			slog.Int64("line_item_id", s.LineItemID),
			slog.Int64("participant_id", s.ParticipantID),
			slog.String("value", s.Value.String()),
			slog.String("reason", rej.reason),
		)
		return nil, rej.err
	case err != nil:
		return nil, err
	}

	e.accepted.Add(ctx, 1)
	e.logger.InfoContext(ctx, "bid accepted",
		slog.Int64("auction_id", bid.AuctionID),
		slog.Int64("line_item_id", bid.LineItemID),
		slog.Int64("participant_id", bid.ParticipantID),
		slog.Int64("bid_id", bid.ID),
		slog.String("value", bid.Value.String()),
	)
	return bid, nil
}

func (e *Engine) submit(ctx context.Context, u *store.Unit, s Submission) (*store.Bid, error) {
	a, err := u.Auctions.GetByID(ctx, s.AuctionID)
	if err != nil {
		return nil, err
	}
	if a.Status == store.AuctionCanceled || a.Status == store.AuctionRejected {
		return nil, reject(ReasonAuctionClosed, "auctionId", "auction %d is %s", a.ID, a.Status)
	}

	// Lock order: participant, then line item.
	p, err := u.Participants.GetByIDForUpdate(ctx, s.ParticipantID)
	if err != nil {
		return nil, err
	}
	if p.AuctionID != a.ID {
		return nil, reject(ReasonNotEnrolled, "participantId", "participant %d is not enrolled in auction %d", p.ID, a.ID)
	}
	if p.Role != store.RoleSupplier {
		return nil, reject(ReasonNotSupplier, "participantId", "participant %d is a %s; only suppliers bid", p.ID, p.Role)
	}

	li, err := u.LineItems.GetByIDForUpdate(ctx, s.LineItemID)
	if err != nil {
		return nil, err
	}
	if li.AuctionID != a.ID || !li.Active() {
		return nil, reject(ReasonLineItemInactive, "lineItemId", "line item %d is not an active line item of auction %d", li.ID, a.ID)
	}

	rs, err := rules.Resolve(ctx, u, a, e.defaults())
	if err != nil {
		return nil, err
	}

	if err := priced(s.Value); err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	winner, err := u.Bids.LineItemWinner(ctx, a.ID, li.ID)
	switch {
	case err == nil:
		if err := improves(rs, winner, s); err != nil {
			return nil, err
		}
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, fmt.Errorf("reading winning bid: %w", err)
	}
	if err := withinWindow(ctx, u, rs, s, now); err != nil {
		return nil, err
	}

	bidAt := s.BidAt.UTC()
	if s.BidAt.IsZero() {
		bidAt = now
	}
	bid := &store.Bid{
		AuctionID:     a.ID,
		ParticipantID: p.ID,
		LineItemID:    li.ID,
		Value:         s.Value,
		BidAt:         bidAt,
		RegisteredAt:  now,
	}
	if err := u.Bids.Create(ctx, bid); err != nil {
		return nil, err
	}
	evt := event.New(a.ID, event.BidAccepted, event.BidAcceptedData{
		BidID:         bid.ID,
		LineItemID:    li.ID,
		ParticipantID: p.ID,
		Value:         bid.Value,
	}, now)
	if err := u.Events.Append(ctx, evt); err != nil {
		return nil, fmt.Errorf("appending bid accepted event: %w", err)
	}
	return bid, nil
}

// priced refuses values a money column cannot hold exactly.
func priced(v decimal.Decimal) error {
	if !store.FitsScale(v, store.MoneyScale) {
		return reject(ReasonInvalidValue, "value", "bid value %s has more than %d decimal places", v, store.MoneyScale)
	}
	return nil
}

// improves applies the rules that only bind once a line item has a winner:
// strict improvement and the minimum decrement.
func improves(rs store.RuleSet, winner *store.Bid, s Submission) error {
	if s.Value.GreaterThanOrEqual(winner.Value) {
		return reject(ReasonNotImproving, "value", "bid %s does not beat the winning bid %s", s.Value, winner.Value)
	}
	if diff := winner.Value.Sub(s.Value); diff.LessThan(rs.MinDecrement) {
		return reject(ReasonInsufficientDelta, "value",
			"bid %s improves the winning bid %s by %s; the minimum is %s", s.Value, winner.Value, diff, rs.MinDecrement)
	}
	return nil
}

// withinWindow is the rate limit. It binds on every bid, the first one on a
// line item included.
func withinWindow(ctx context.Context, u *store.Unit, rs store.RuleSet, s Submission, now time.Time) error {
	since := now.Add(-rs.Cooldown())
	n, err := u.Bids.CountSince(ctx, s.AuctionID, s.ParticipantID, since)
	if err != nil {
		return fmt.Errorf("counting recent bids: %w", err)
	}
	if n >= rs.MaxBidsPerWindow {
		return reject(ReasonRateLimited, "participantId",
			"participant %d placed %d bids in the last %d minutes; the limit is %d", s.ParticipantID, n, rs.CooldownMinutes, rs.MaxBidsPerWindow)
	}
	return nil
}

// LineItemWinner returns the winning bid of one line item across all of its
// versions. This is the scope Submit validates against.
func (e *Engine) LineItemWinner(ctx context.Context, auctionID, lineItemID int64) (*store.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.LineItemWinner",
		trace.WithAttributes(
			attribute.Int64("auction_id", auctionID),
			attribute.Int64("line_item_id", lineItemID),
		),
	)
	defer span.End()

	li, err := e.repos.LineItems.GetByID(ctx, lineItemID)
	if err != nil {
		return nil, err
	}
	if li.AuctionID != auctionID {
		return nil, apperr.NotFound("line-item", lineItemID)
	}
	return e.repos.Bids.LineItemWinner(ctx, auctionID, lineItemID)
}

// AuctionWinner returns the lowest bid across every line item of the
// auction, ordered like LineItemWinner.
func (e *Engine) AuctionWinner(ctx context.Context, auctionID int64) (*store.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.AuctionWinner", trace.WithAttributes(attribute.Int64("auction_id", auctionID)))
	defer span.End()

	if _, err := e.repos.Auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	return e.repos.Bids.AuctionWinner(ctx, auctionID)
}

// List returns the bids of an auction by registration time. An auction
// without bids yields an empty slice.
func (e *Engine) List(ctx context.Context, auctionID int64) ([]store.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.List", trace.WithAttributes(attribute.Int64("auction_id", auctionID)))
	defer span.End()

	if _, err := e.repos.Auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	bids, err := e.repos.Bids.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if bids == nil {
		bids = []store.Bid{}
	}
	return bids, nil
}
