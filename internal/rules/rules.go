// Package rules is the bid rule registry. Rule-sets are immutable once
// stored; auctions pin one by id when they are created.
package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/config"
	"github.com/jensholdgaard/pregao/internal/store"
)

// Params are the inputs of a new rule-set.
type Params struct {
	MinDecrement     decimal.Decimal `json:"minDecrement"`
	CooldownMinutes  int             `json:"cooldownMinutes"`
	MaxBidsPerWindow int             `json:"maxBidsPerWindow"`
	// Active makes the new rule-set the one pinned by auctions created
	// without an explicit rule-set, deactivating any other.
	Active bool `json:"active"`
}

func (p Params) validate() error {
	if !p.MinDecrement.IsPositive() {
		return apperr.Validation("minDecrement", "minimum decrement must be > 0, got %s", p.MinDecrement)
	}
	if !store.FitsScale(p.MinDecrement, store.MoneyScale) {
		return apperr.Validation("minDecrement", "minimum decrement %s has more than %d decimal places", p.MinDecrement, store.MoneyScale)
	}
	if p.CooldownMinutes <= 0 {
		return apperr.Validation("cooldownMinutes", "cooldown must be > 0 minutes, got %d", p.CooldownMinutes)
	}
	if p.MaxBidsPerWindow <= 0 {
		return apperr.Validation("maxBidsPerWindow", "max bids per window must be > 0, got %d", p.MaxBidsPerWindow)
	}
	return nil
}

// Manager handles rule-set operations.
type Manager struct {
	repos    *store.Repositories
	defaults config.RuleSetConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewManager returns a new rule-set Manager. defaults is the policy applied
// to auctions that pin no rule-set.
func NewManager(repos *store.Repositories, defaults config.RuleSetConfig, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		repos:    repos,
		defaults: defaults,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/pregao/internal/rules"),
		clock:    clk,
	}
}

// Create stores a new rule-set.
func (m *Manager) Create(ctx context.Context, p Params) (*store.RuleSet, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(
			attribute.String("min_decrement", p.MinDecrement.String()),
			attribute.Int("cooldown_minutes", p.CooldownMinutes),
			attribute.Int("max_bids_per_window", p.MaxBidsPerWindow),
			attribute.Bool("active", p.Active),
		),
	)
	defer span.End()

	if err := p.validate(); err != nil {
		return nil, err
	}

	rs := &store.RuleSet{
		Active:           p.Active,
		MinDecrement:     p.MinDecrement,
		CooldownMinutes:  p.CooldownMinutes,
		MaxBidsPerWindow: p.MaxBidsPerWindow,
		CreatedAt:        m.clock.Now().UTC(),
	}
	err := m.repos.Tx.InTx(ctx, func(ctx context.Context, u *store.Unit) error {
		if rs.Active {
			if err := u.RuleSets.DeactivateAll(ctx); err != nil {
				return err
			}
		}
		return u.RuleSets.Create(ctx, rs)
	})
	if err != nil {
		return nil, fmt.Errorf("creating rule-set: %w", err)
	}

	m.logger.InfoContext(ctx, "rule-set created",
		slog.Int64("rule_set_id", rs.ID),
		slog.String("min_decrement", rs.MinDecrement.String()),
		slog.Bool("active", rs.Active),
	)
	return rs, nil
}

// Get returns a rule-set by id.
func (m *Manager) Get(ctx context.Context, id int64) (*store.RuleSet, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get", trace.WithAttributes(attribute.Int64("rule_set_id", id)))
	defer span.End()
	return m.repos.RuleSets.GetByID(ctx, id)
}

// Active returns the active rule-set.
func (m *Manager) Active(ctx context.Context) (*store.RuleSet, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Active")
	defer span.End()
	return m.repos.RuleSets.GetActive(ctx)
}

// List returns every rule-set, failing with NoContent when there are none.
func (m *Manager) List(ctx context.Context) ([]store.RuleSet, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List")
	defer span.End()

	rs, err := m.repos.RuleSets.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, apperr.NoContent("rule-sets", 0)
	}
	return rs, nil
}

// Default returns the configured fallback policy. Every call builds a new
// value; it is never stored and has id 0.
func (m *Manager) Default() store.RuleSet {
	return FromConfig(m.defaults)
}

// FromConfig converts a configured rule-set into a store.RuleSet value.
func FromConfig(c config.RuleSetConfig) store.RuleSet {
	return store.RuleSet{
		MinDecrement:     decimal.NewFromFloat(c.MinDecrement),
		CooldownMinutes:  c.CooldownMinutes,
		MaxBidsPerWindow: c.MaxBidsPerWindow,
	}
}

// Resolve returns the rule-set pinned by a, or def when a pins none. It runs
// on u so callers can use it inside their own transaction.
func Resolve(ctx context.Context, u *store.Unit, a *store.Auction, def store.RuleSet) (store.RuleSet, error) {
	if a.RuleSetID == nil {
		return def, nil
	}
	rs, err := u.RuleSets.GetByID(ctx, *a.RuleSetID)
	if err != nil {
		return store.RuleSet{}, fmt.Errorf("resolving rule-set of auction %d: %w", a.ID, err)
	}
	return *rs, nil
}

// Pin picks the rule-set id a new auction stores: requested when given (it
// must exist), otherwise the active rule-set, otherwise none.
func Pin(ctx context.Context, u *store.Unit, requested *int64) (*int64, error) {
	if requested != nil {
		rs, err := u.RuleSets.GetByID(ctx, *requested)
		if err != nil {
			return nil, err
		}
		return &rs.ID, nil
	}
	rs, err := u.RuleSets.GetActive(ctx)
	switch {
	case err == nil:
		return &rs.ID, nil
	case apperr.KindOf(err) == apperr.KindNotFound:
		return nil, nil
	default:
		return nil, err
	}
}
