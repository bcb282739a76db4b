package bidding_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/bidding"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/config"
	"github.com/jensholdgaard/pregao/internal/lineitem"
	"github.com/jensholdgaard/pregao/internal/rules"
	"github.com/jensholdgaard/pregao/internal/store"
	"github.com/jensholdgaard/pregao/internal/store/memory"
)

var t0 = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

type env struct {
	engine    *bidding.Engine
	repos     *store.Repositories
	mem       *memory.Store
	clk       *clock.Mock
	auction   *store.Auction
	buyer     int64
	suppliers []int64
	lineItem  int64
}

type options struct {
	status  store.AuctionStatus
	pinned  bool
	sellers int
	mp      metric.MeterProvider
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// setup builds an auction with one buyer, some suppliers and one line item.
// When pinned, the auction pins a rule-set with decrement 2, cooldown 30
// minutes and 2 bids per window; otherwise it falls back to the configured
// default of decrement 5, cooldown 10 minutes and 1 bid per window.
func setup(t require.TestingT, o options) env {
	ctx := context.Background()
	s := memory.New()
	repos := s.Repositories()

	if o.status == "" {
		o.status = store.AuctionAuthorized
	}
	if o.sellers == 0 {
		o.sellers = 2
	}
	if o.mp == nil {
		o.mp = metricnoop.NewMeterProvider()
	}

	buyerUser := s.AddUser("U1", "u1@example.com")
	item := s.AddItem("Item 7")
	kg := s.AddUnit("KG", "Quilograma")

	a := &store.Auction{Description: "Pregão 1", Status: o.status, CreatedBy: buyerUser.ID}
	if o.pinned {
		rs := &store.RuleSet{MinDecrement: dec("2"), CooldownMinutes: 30, MaxBidsPerWindow: 2}
		require.NoError(t, repos.RuleSets.Create(ctx, rs))
		a.RuleSetID = &rs.ID
	}
	require.NoError(t, repos.Auctions.Create(ctx, a))

	buyer := &store.Participant{AuctionID: a.ID, UserID: buyerUser.ID, Role: store.RoleBuyer}
	require.NoError(t, repos.Participants.Create(ctx, buyer))

	var suppliers []int64
	for i := 0; i < o.sellers; i++ {
		u := s.AddUser("supplier", "supplier@example.com")
		p := &store.Participant{AuctionID: a.ID, UserID: u.ID, Role: store.RoleSupplier}
		require.NoError(t, repos.Participants.Create(ctx, p))
		suppliers = append(suppliers, p.ID)
	}

	li := &store.LineItem{AuctionID: a.ID, ItemID: item.ID, CreatedBy: buyer.ID, UnitID: kg.ID, Quantity: decimal.NewFromInt(10), CurrentVersion: true}
	require.NoError(t, repos.LineItems.Create(ctx, li))

	defaults := config.RuleSetConfig{MinDecrement: 5, CooldownMinutes: 10, MaxBidsPerWindow: 1}
	clk := clock.NewMock(t0)
	engine, err := bidding.NewEngine(repos, func() store.RuleSet { return rules.FromConfig(defaults) },
		slog.Default(), noop.NewTracerProvider(), o.mp, clk)
	require.NoError(t, err)

	return env{engine: engine, repos: repos, mem: s, clk: clk, auction: a, buyer: buyer.ID, suppliers: suppliers, lineItem: li.ID}
}

func (e env) bid(participant int64, value string) (*store.Bid, error) {
	return e.engine.Submit(context.Background(), bidding.Submission{
		AuctionID:     e.auction.ID,
		LineItemID:    e.lineItem,
		ParticipantID: participant,
		Value:         dec(value),
		BidAt:         e.clk.Now(),
	})
}

func TestScenario(t *testing.T) {
	e := setup(t, options{pinned: true})
	u2, u3 := e.suppliers[0], e.suppliers[1]

	_, err := e.bid(u2, "100")
	require.NoError(t, err, "first bid sets the baseline")
	e.clk.Advance(time.Minute)

	_, err = e.bid(u3, "90")
	require.NoError(t, err)
	e.clk.Advance(time.Minute)

	_, err = e.bid(u2, "95")
	require.ErrorIs(t, err, apperr.ErrValidation)
	e.clk.Advance(time.Minute)

	accepted, err := e.bid(u2, "87")
	require.NoError(t, err)

	winner, err := e.engine.AuctionWinner(context.Background(), e.auction.ID)
	require.NoError(t, err)
	assert.Equal(t, accepted.ID, winner.ID)
	assert.Equal(t, u2, winner.ParticipantID)
	assert.True(t, winner.Value.Equal(dec("87")))

	bids, err := e.engine.List(context.Background(), e.auction.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	for i := 1; i < len(bids); i++ {
		assert.False(t, bids[i].RegisteredAt.Before(bids[i-1].RegisteredAt))
	}
}

func TestDecrementBoundary(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"100", false},
		{"100.01", false},
		{"99", false},
		{"98.01", false},
		{"98", true},
		{"97.99", true},
		{"1", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			e := setup(t, options{pinned: true})
			_, err := e.bid(e.suppliers[0], "100")
			require.NoError(t, err)

			_, err = e.bid(e.suppliers[1], tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrValidation)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	e := setup(t, options{pinned: true})
	s := e.suppliers[0]

	_, err := e.bid(s, "100")
	require.NoError(t, err)
	e.clk.Advance(time.Minute)
	_, err = e.bid(s, "90")
	require.NoError(t, err)
	e.clk.Advance(time.Minute)

	_, err = e.bid(s, "10")
	require.ErrorIs(t, err, apperr.ErrValidation, "third bid in the window")
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "participantId", ae.Field)

	// Another supplier is not affected.
	_, err = e.bid(e.suppliers[1], "80")
	require.NoError(t, err)

	e.clk.Advance(30 * time.Minute)
	_, err = e.bid(s, "70")
	require.NoError(t, err, "window elapsed")
}

func TestDefaultRuleSet(t *testing.T) {
	e := setup(t, options{})

	_, err := e.bid(e.suppliers[0], "100")
	require.NoError(t, err)
	_, err = e.bid(e.suppliers[1], "96")
	assert.ErrorIs(t, err, apperr.ErrValidation, "default decrement is 5")
	_, err = e.bid(e.suppliers[1], "95")
	require.NoError(t, err)
}

func TestSubmit_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("buyer cannot bid", func(t *testing.T) {
		e := setup(t, options{pinned: true})
		_, err := e.bid(e.buyer, "10")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("closed auctions", func(t *testing.T) {
		for _, st := range []store.AuctionStatus{store.AuctionCanceled, store.AuctionRejected} {
			e := setup(t, options{status: st})
			_, err := e.bid(e.suppliers[0], "10")
			assert.ErrorIs(t, err, apperr.ErrValidation, st)
		}
	})

	t.Run("pending auctions accept bids", func(t *testing.T) {
		e := setup(t, options{status: store.AuctionPending})
		_, err := e.bid(e.suppliers[0], "10")
		assert.NoError(t, err)
	})

	t.Run("deleted line item", func(t *testing.T) {
		e := setup(t, options{})
		require.NoError(t, e.repos.LineItems.SetFlags(ctx, e.lineItem, true, true, t0))
		_, err := e.bid(e.suppliers[0], "10")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("participant of another auction", func(t *testing.T) {
		e := setup(t, options{})
		stranger := &store.Participant{AuctionID: e.auction.ID + 1, UserID: 99, Role: store.RoleSupplier}
		require.NoError(t, e.repos.Participants.Create(ctx, stranger))
		_, err := e.bid(stranger.ID, "10")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("unknown references", func(t *testing.T) {
		e := setup(t, options{})
		_, err := e.engine.Submit(ctx, bidding.Submission{AuctionID: 999, LineItemID: e.lineItem, ParticipantID: e.suppliers[0], Value: dec("1")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = e.engine.Submit(ctx, bidding.Submission{AuctionID: e.auction.ID, LineItemID: 999, ParticipantID: e.suppliers[0], Value: dec("1")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = e.engine.Submit(ctx, bidding.Submission{AuctionID: e.auction.ID, LineItemID: e.lineItem, ParticipantID: 999, Value: dec("1")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestWinnerQueries(t *testing.T) {
	e := setup(t, options{pinned: true})
	ctx := context.Background()

	_, err := e.engine.LineItemWinner(ctx, e.auction.ID, e.lineItem)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.engine.AuctionWinner(ctx, e.auction.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	bids, err := e.engine.List(ctx, e.auction.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.NotNil(t, bids)

	_, err = e.engine.List(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	first, err := e.bid(e.suppliers[0], "50")
	require.NoError(t, err)
	w, err := e.engine.LineItemWinner(ctx, e.auction.ID, e.lineItem)
	require.NoError(t, err)
	assert.Equal(t, first.ID, w.ID)

	_, err = e.engine.LineItemWinner(ctx, e.auction.ID+1, e.lineItem)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentBidsSerialize(t *testing.T) {
	e := setup(t, options{pinned: true, sellers: 8})
	_, err := e.bid(e.suppliers[0], "100")
	require.NoError(t, err)

	var accepted atomic.Int32
	var g errgroup.Group
	for _, s := range e.suppliers[1:] {
		g.Go(func() error {
			_, err := e.bid(s, "90")
			switch {
			case err == nil:
				accepted.Add(1)
			case apperr.KindOf(err) != apperr.KindValidation:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), accepted.Load(), "only the first equal bid can beat the winner")
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e := setup(t, options{pinned: true, mp: mp})

	_, err := e.bid(e.suppliers[0], "100")
	require.NoError(t, err)
	_, err = e.bid(e.suppliers[1], "100")
	require.Error(t, err)
	_, err = e.bid(e.buyer, "10")
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, m.Name)
			for _, dp := range data.DataPoints {
				key := m.Name
				if reason, ok := dp.Attributes.Value("reason"); ok {
					key += "/" + reason.AsString()
				}
				sums[key] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), sums["pregao.bids.accepted"])
	assert.Equal(t, int64(1), sums["pregao.bids.rejected/"+bidding.ReasonNotImproving])
	assert.Equal(t, int64(1), sums["pregao.bids.rejected/"+bidding.ReasonNotSupplier])
}

func TestWinnerSurvivesSupersession(t *testing.T) {
	e := setup(t, options{pinned: true})
	ctx := context.Background()

	_, err := e.bid(e.suppliers[0], "100")
	require.NoError(t, err)
	e.clk.Advance(time.Minute)
	best, err := e.bid(e.suppliers[1], "90")
	require.NoError(t, err)

	ledger := lineitem.NewManager(e.repos, slog.Default(), noop.NewTracerProvider(), e.clk)
	qty := decimal.NewFromInt(11)
	next, err := ledger.Update(ctx, e.lineItem, store.LineItemPatch{Quantity: &qty})
	require.NoError(t, err)
	require.NotEqual(t, e.lineItem, next.ID)

	w, err := e.engine.LineItemWinner(ctx, e.auction.ID, next.ID)
	require.NoError(t, err)
	assert.Equal(t, best.ID, w.ID, "the new version inherits the competition")

	e.clk.Advance(time.Minute)
	e.lineItem = next.ID
	_, err = e.bid(e.suppliers[0], "500")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.bid(e.suppliers[0], "89")
	require.ErrorIs(t, err, apperr.ErrValidation, "decrement still applies")

	accepted, err := e.bid(e.suppliers[0], "88")
	require.NoError(t, err)
	for _, id := range []int64{best.LineItemID, next.ID} {
		w, err := e.engine.LineItemWinner(ctx, e.auction.ID, id)
		require.NoError(t, err)
		assert.Equal(t, accepted.ID, w.ID, "line item %d", id)
	}
	w, err = e.engine.AuctionWinner(ctx, e.auction.ID)
	require.NoError(t, err)
	assert.Equal(t, accepted.ID, w.ID)
}

func TestRateLimit_FirstBidOnLineItem(t *testing.T) {
	e := setup(t, options{})
	ctx := context.Background()

	_, err := e.bid(e.suppliers[0], "100")
	require.NoError(t, err)

	other := &store.LineItem{
		AuctionID: e.auction.ID, ItemID: e.mem.AddItem("Item 8").ID, CreatedBy: e.buyer,
		UnitID: 1, Quantity: decimal.NewFromInt(3), CurrentVersion: true,
	}
	require.NoError(t, e.repos.LineItems.Create(ctx, other))
	e.lineItem = other.ID

	_, err = e.bid(e.suppliers[0], "100")
	require.ErrorIs(t, err, apperr.ErrValidation, "default window allows one bid per 10 minutes")
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "participantId", ae.Field)

	e.clk.Advance(11 * time.Minute)
	_, err = e.bid(e.suppliers[0], "100")
	require.NoError(t, err)
}

func TestSubmit_ValueScale(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"99.99", true},
		{"99.990", true},
		{"99.996", false},
		{"0.001", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			e := setup(t, options{pinned: true})
			_, err := e.bid(e.suppliers[0], tt.value)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, apperr.KindValidation, ae.Kind)
			assert.Equal(t, "value", ae.Field)
		})
	}
}
