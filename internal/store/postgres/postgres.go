// Package postgres provides the store.Driver backed by PostgreSQL through
// sqlx and lib/pq, instrumented with otelsql.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/pressly/goose/v3"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jensholdgaard/pregao/internal/config"
	"github.com/jensholdgaard/pregao/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("postgres", open)
}

func open(ctx context.Context, cfg config.DatabaseConfig) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewRepositories(db), nil
}

// NewRepositories wires every repository to db.
func NewRepositories(db *sqlx.DB) *store.Repositories {
	return &store.Repositories{
		Unit:    *newUnit(db),
		Tx:      &txRunner{db: db},
		Migrate: func(ctx context.Context) error { return Migrate(ctx, db) },
		Closer:  closerFunc(db.Close),
		Ping:    db.PingContext,
	}
}

func newUnit(q sqlx.ExtContext) *store.Unit {
	return &store.Unit{
		RuleSets:     &RuleSetRepo{db: q},
		Auctions:     &AuctionRepo{db: q},
		Participants: &ParticipantRepo{db: q},
		LineItems:    &LineItemRepo{db: q},
		Bids:         &BidRepo{db: q},
		Requests:     &RequestRepo{db: q},
		Conversions:  &ConversionRepo{db: q},
		Users:        &UserRepo{db: q},
		Catalog:      &CatalogRepo{db: q},
		Events:       &EventStore{db: q},
	}
}

// Connect opens and verifies a Postgres connection with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	sqlDB, err := otelsql.Open("postgres", cfg.DSN(),
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := sqlx.NewDb(sqlDB, "postgres")
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
