package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/store"
	"github.com/jensholdgaard/pregao/internal/store/memory"
)

func TestInTx_CommitAndRollback(t *testing.T) {
	s := memory.New()
	repos := s.Repositories()
	ctx := context.Background()
	user := s.AddUser("Ana", "ana@example.com")

	err := repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		return u.Auctions.Create(ctx, &store.Auction{Description: "kept", CreatedBy: user.ID, Status: store.AuctionPending})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		if err := u.Auctions.Create(ctx, &store.Auction{Description: "dropped", CreatedBy: user.ID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repos.Auctions.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Description)

	_, err = repos.Auctions.GetByID(ctx, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestParticipants_UniquePerAuction(t *testing.T) {
	repos := memory.New().Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Participants.Create(ctx, &store.Participant{AuctionID: 1, UserID: 7, Role: store.RoleSupplier}))
	err := repos.Participants.Create(ctx, &store.Participant{AuctionID: 1, UserID: 7, Role: store.RoleBuyer})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, repos.Participants.Create(ctx, &store.Participant{AuctionID: 2, UserID: 7, Role: store.RoleBuyer}))
}

func TestLineItems_OneActivePerItem(t *testing.T) {
	repos := memory.New().Repositories()
	ctx := context.Background()

	li := &store.LineItem{AuctionID: 1, ItemID: 5, UnitID: 1, Quantity: decimal.NewFromInt(3), CurrentVersion: true}
	require.NoError(t, repos.LineItems.Create(ctx, li))

	dup := &store.LineItem{AuctionID: 1, ItemID: 5, UnitID: 1, Quantity: decimal.NewFromInt(1), CurrentVersion: true}
	assert.ErrorIs(t, repos.LineItems.Create(ctx, dup), apperr.ErrConflict)

	require.NoError(t, repos.LineItems.SetFlags(ctx, li.ID, false, false, time.Now()))
	require.NoError(t, repos.LineItems.Create(ctx, dup))

	active, err := repos.LineItems.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, dup.ID, active[0].ID)
}

func TestBids_WinnerOrdering(t *testing.T) {
	repos := memory.New().Repositories()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	bids := []store.Bid{
		{AuctionID: 1, LineItemID: 1, ParticipantID: 1, Value: decimal.RequireFromString("50"), BidAt: t0, RegisteredAt: t0.Add(time.Second)},
		{AuctionID: 1, LineItemID: 1, ParticipantID: 2, Value: decimal.RequireFromString("50"), BidAt: t0, RegisteredAt: t0},
		{AuctionID: 1, LineItemID: 2, ParticipantID: 1, Value: decimal.RequireFromString("40"), BidAt: t0, RegisteredAt: t0},
		{AuctionID: 2, LineItemID: 3, ParticipantID: 3, Value: decimal.RequireFromString("1"), BidAt: t0, RegisteredAt: t0},
	}
	for i := range bids {
		require.NoError(t, repos.Bids.Create(ctx, &bids[i]))
	}

	w, err := repos.Bids.LineItemWinner(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, bids[1].ID, w.ID, "earlier registration breaks the tie")

	w, err = repos.Bids.AuctionWinner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bids[2].ID, w.ID)

	_, err = repos.Bids.LineItemWinner(ctx, 1, 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	n, err := repos.Bids.CountSince(ctx, 1, 1, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRuleSets_Active(t *testing.T) {
	repos := memory.New().Repositories()
	ctx := context.Background()

	_, err := repos.RuleSets.GetActive(ctx)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	rs := &store.RuleSet{Active: true, MinDecrement: decimal.NewFromInt(2), CooldownMinutes: 30, MaxBidsPerWindow: 2}
	require.NoError(t, repos.RuleSets.Create(ctx, rs))
	assert.ErrorIs(t, repos.RuleSets.Create(ctx, &store.RuleSet{Active: true}), apperr.ErrConflict)

	got, err := repos.RuleSets.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, rs.ID, got.ID)
}
