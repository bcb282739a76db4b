package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jensholdgaard/pregao/internal/store"
	"github.com/jensholdgaard/pregao/internal/store/postgres"
)

// newTestDB starts a Postgres container, applies the migrations, and returns
// a connected *sqlx.DB. The container is terminated when the test ends.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("pregao_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db
}

// fixture holds the rows most repository tests need.
type fixture struct {
	repos   *store.Repositories
	db      *sqlx.DB
	buyer   int64
	seller  int64
	item    int64
	item2   int64
	unit    int64
	auction *store.Auction
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{repos: postgres.NewRepositories(db), db: db}

	f.buyer = insertID(t, db, `INSERT INTO users (email, name) VALUES ('ana@example.com', 'Ana') RETURNING id`)
	f.seller = insertID(t, db, `INSERT INTO users (email, name) VALUES ('bruno@example.com', 'Bruno') RETURNING id`)
	f.unit = insertID(t, db, `INSERT INTO units (code, name) VALUES ('UN', 'Unidade') RETURNING id`)
	f.item = insertID(t, db, `INSERT INTO items (name) VALUES ('Papel A4') RETURNING id`)
	f.item2 = insertID(t, db, `INSERT INTO items (name) VALUES ('Caneta azul') RETURNING id`)

	now := time.Now().UTC().Truncate(time.Microsecond)
	f.auction = &store.Auction{
		Description:    "Material de escritório",
		Status:         store.AuctionPending,
		CreatedBy:      f.buyer,
		StartsAt:       now.Add(time.Hour),
		EndsAt:         now.Add(2 * time.Hour),
		DemandOpensAt:  now,
		DemandClosesAt: now.Add(30 * time.Minute),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.repos.Auctions.Create(context.Background(), f.auction); err != nil {
		t.Fatalf("creating auction: %v", err)
	}
	return f
}

func insertID(t *testing.T, db *sqlx.DB, query string) int64 {
	t.Helper()
	var id int64
	if err := db.QueryRowx(query).Scan(&id); err != nil {
		t.Fatalf("seeding %q: %v", query, err)
	}
	return id
}
