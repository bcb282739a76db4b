package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jensholdgaard/pregao/internal/apperr"
	"github.com/jensholdgaard/pregao/internal/store"
)

// txRunner implements store.TxRunner. Transactions run at READ COMMITTED;
// writers that must serialize take row locks with SELECT ... FOR UPDATE.
type txRunner struct {
	db *sqlx.DB
}

func (r *txRunner) InTx(ctx context.Context, fn func(ctx context.Context, u *store.Unit) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, newUnit(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("committing transaction: %w", err), "transaction")
	}
	return nil
}

// Postgres error codes this package translates.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapErr turns driver errors into apperr kinds. Anything it does not
// recognise is returned unchanged.
func mapErr(err error, resource string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return apperr.Conflict(resource, "%s already exists (%s)", resource, pqErr.Constraint)
		case codeSerializationFailure, codeDeadlockDetected:
			return apperr.Conflict(resource, "concurrent update on %s", resource).AsRetryable()
		}
	}
	return err
}

// notFound maps sql.ErrNoRows to an apperr NotFound for resource id.
func notFound(err error, resource string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(resource, id)
	}
	return err
}
