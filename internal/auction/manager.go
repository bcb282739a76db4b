// Package auction handles the auction lifecycle: creation, lookups and the
// one-way status transitions out of PENDING.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/event"
	"github.com/jensholdgaard/pregao/internal/roster"
	"github.com/jensholdgaard/pregao/internal/rules"
	"github.com/jensholdgaard/pregao/internal/store"
)

// Fields are the caller-supplied attributes of a new auction.
type Fields struct {
	Description    string    `json:"description"`
	Info           string    `json:"info"`
	StartsAt       time.Time `json:"startsAt"`
	EndsAt         time.Time `json:"endsAt"`
	DemandOpensAt  time.Time `json:"demandOpensAt"`
	DemandClosesAt time.Time `json:"demandClosesAt"`
	// RuleSetID pins a specific rule-set. When nil the active one is pinned.
	RuleSetID *int64 `json:"ruleSetId"`
}

func (f Fields) validate() error {
	if strings.TrimSpace(f.Description) == "" {
		return apperr.Validation("description", "description is required")
	}
	if !f.StartsAt.Before(f.EndsAt) {
		return apperr.Validation("endsAt", "auction window must end after it starts")
	}
	if !f.DemandOpensAt.Before(f.DemandClosesAt) {
		return apperr.Validation("demandClosesAt", "demand window must close after it opens")
	}
	return nil
}

// Manager coordinates the auction lifecycle.
type Manager struct {
	repos  *store.Repositories
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewManager creates a new auction Manager.
func NewManager(repos *store.Repositories, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		repos:  repos,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/pregao/internal/auction"),
		clock:  clk,
	}
}

// Create opens a PENDING auction and enrolls its creator as buyer.
func (m *Manager) Create(ctx context.Context, creatorUserID int64, f Fields) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(attribute.Int64("creator_user_id", creatorUserID)),
	)
	defer span.End()

	var a *store.Auction
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		var err error
		a, _, err = Create(ctx, u, creatorUserID, f, m.clock.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "auction created",
		slog.Int64("auction_id", a.ID),
		slog.Int64("created_by", a.CreatedBy),
		slog.Any("rule_set_id", a.RuleSetID),
	)
	return a, nil
}

// Get returns an auction by id.
func (m *Manager) Get(ctx context.Context, id int64) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get", trace.WithAttributes(attribute.Int64("auction_id", id)))
	defer span.End()
	return m.repos.Auctions.GetByID(ctx, id)
}

// Authorize opens a PENDING auction to bidding.
func (m *Manager) Authorize(ctx context.Context, id int64) (*store.Auction, error) {
	return m.transition(ctx, id, store.AuctionAuthorized)
}

// Cancel ends a PENDING auction.
func (m *Manager) Cancel(ctx context.Context, id int64) (*store.Auction, error) {
	return m.transition(ctx, id, store.AuctionCanceled)
}

// Reject ends a PENDING auction.
func (m *Manager) Reject(ctx context.Context, id int64) (*store.Auction, error) {
	return m.transition(ctx, id, store.AuctionRejected)
}

func (m *Manager) transition(ctx context.Context, id int64, to store.AuctionStatus) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.transition",
		trace.WithAttributes(
			attribute.Int64("auction_id", id),
			attribute.String("to", string(to)),
		),
	)
	defer span.End()

	var (
		a    *store.Auction
		from store.AuctionStatus
	)
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		var err error
		a, err = u.Auctions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = a.Status
		if from != store.AuctionPending {
			return apperr.Validation("status", "auction %d is %s; only PENDING auctions can become %s", id, from, to)
		}

		now := m.clock.Now().UTC()
		if err := u.Auctions.UpdateStatus(ctx, id, to, now); err != nil {
			return err
		}
		a.Status = to
		a.UpdatedAt = now
		evt := event.New(id, event.AuctionStatusChanged, event.StatusChangedData{From: string(from), To: string(to)}, now)
		return u.Events.Append(ctx, evt)
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "auction status changed",
		slog.Int64("auction_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return a, nil
}

// Events returns the audit trail of an auction in the order it was written.
func (m *Manager) Events(ctx context.Context, id int64) ([]event.Event, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Events", trace.WithAttributes(attribute.Int64("auction_id", id)))
	defer span.End()

	if _, err := m.repos.Auctions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return m.repos.Events.ListByAuction(ctx, id)
}

// Create is Manager.Create on an open transaction. It returns the auction
// and the creator's buyer enrollment.
func Create(ctx context.Context, u *store.Unit, creatorUserID int64, f Fields, now time.Time) (*store.Auction, *store.Participant, error) {
	if err := f.validate(); err != nil {
		return nil, nil, err
	}
	if _, err := u.Users.GetByID(ctx, creatorUserID); err != nil {
		return nil, nil, err
	}
	ruleSetID, err := rules.Pin(ctx, u, f.RuleSetID)
	if err != nil {
		return nil, nil, err
	}

	a := &store.Auction{
		Description:    f.Description,
		Info:           f.Info,
		Status:         store.AuctionPending,
		CreatedBy:      creatorUserID,
		RuleSetID:      ruleSetID,
		StartsAt:       f.StartsAt.UTC(),
		EndsAt:         f.EndsAt.UTC(),
		DemandOpensAt:  f.DemandOpensAt.UTC(),
		DemandClosesAt: f.DemandClosesAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := u.Auctions.Create(ctx, a); err != nil {
		return nil, nil, err
	}
	evt := event.New(a.ID, event.AuctionCreated, event.AuctionCreatedData{CreatedBy: creatorUserID, RuleSetID: ruleSetID}, now)
	if err := u.Events.Append(ctx, evt); err != nil {
		return nil, nil, fmt.Errorf("appending auction created event: %w", err)
	}

	buyer, _, err := roster.Enroll(ctx, u, a.ID, creatorUserID, store.RoleBuyer, now)
	if err != nil {
		return nil, nil, fmt.Errorf("enrolling creator: %w", err)
	}
	return a, buyer, nil
}
