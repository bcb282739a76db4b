// Package roster manages who takes part in an auction and under which role.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/event"
	"github.com/jensholdgaard/pregao/internal/store"
)

// Manager handles auction participant enrollment.
type Manager struct {
	repos  *store.Repositories
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewManager returns a new roster Manager.
func NewManager(repos *store.Repositories, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		repos:  repos,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/pregao/internal/roster"),
		clock:  clk,
	}
}

// Add enrolls userID in an auction. Enrolling the same user again with the
// same role returns the existing participant; a different role is a
// Conflict.
func (m *Manager) Add(ctx context.Context, auctionID, userID int64, role store.Role) (*store.Participant, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Add",
		trace.WithAttributes(
			attribute.Int64("auction_id", auctionID),
			attribute.Int64("user_id", userID),
			attribute.String("role", string(role)),
		),
	)
	defer span.End()

	var (
		p       *store.Participant
		created bool
	)
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		var err error
		p, created, err = Enroll(ctx, u, auctionID, userID, role, m.clock.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		m.logger.InfoContext(ctx, "participant enrolled",
			slog.Int64("auction_id", auctionID),
			slog.Int64("participant_id", p.ID),
			slog.Int64("user_id", userID),
			slog.String("role", string(role)),
		)
	}
	return p, nil
}

// Get returns a participant by id.
func (m *Manager) Get(ctx context.Context, id int64) (*store.Participant, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get", trace.WithAttributes(attribute.Int64("participant_id", id)))
	defer span.End()
	return m.repos.Participants.GetByID(ctx, id)
}

// List returns the participants of an auction.
func (m *Manager) List(ctx context.Context, auctionID int64) ([]store.Participant, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List", trace.WithAttributes(attribute.Int64("auction_id", auctionID)))
	defer span.End()

	if _, err := m.repos.Auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	ps, err := m.repos.Participants.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, apperr.NoContent("participants", auctionID)
	}
	return ps, nil
}

// IsBuyer reports whether p holds the buyer role.
func IsBuyer(p *store.Participant) bool {
	return p != nil && p.IsBuyer()
}

// Enroll is Add on an open transaction. created is false when the user was
// already enrolled with the same role.
func Enroll(ctx context.Context, u *store.Unit, auctionID, userID int64, role store.Role, now time.Time) (p *store.Participant, created bool, err error) {
	if !role.Valid() {
		return nil, false, apperr.Validation("role", "unknown role %q", role)
	}
	if _, err := u.Auctions.GetByID(ctx, auctionID); err != nil {
		return nil, false, err
	}
	if _, err := u.Users.GetByID(ctx, userID); err != nil {
		return nil, false, err
	}

	existing, err := u.Participants.FindByAuctionUser(ctx, auctionID, userID)
	switch {
	case err == nil:
		if existing.Role != role {
			return nil, false, apperr.Conflict("participant",
				"user %d is enrolled in auction %d as %s, not %s", userID, auctionID, existing.Role, role).WithID(existing.ID)
		}
		return existing, false, nil
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, false, fmt.Errorf("looking up participant: %w", err)
	}

	p = &store.Participant{AuctionID: auctionID, UserID: userID, Role: role, CreatedAt: now}
	if err := u.Participants.Create(ctx, p); err != nil {
		return nil, false, err
	}
	evt := event.New(auctionID, event.ParticipantEnrolled, event.ParticipantEnrolledData{
		ParticipantID: p.ID,
		UserID:        userID,
		Role:          string(role),
	}, now)
	if err := u.Events.Append(ctx, evt); err != nil {
		return nil, false, fmt.Errorf("appending participant enrolled event: %w", err)
	}
	return p, true, nil
}
