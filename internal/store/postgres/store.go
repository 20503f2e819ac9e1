// Package postgres implements store.Store on PostgreSQL. Serializable
// transactions stand in for the document store's optimistic per-document
// transactions: a conflicting transaction fails with a serialization error
// and is retried from the top.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lahjaprojekti/lahja-go/internal/store"
)

// DB is the common surface of a pool and a transaction handle.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const maxTxAttempts = 5

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RunTx runs fn in a serializable transaction, retrying on serialization
// conflicts up to maxTxAttempts before surfacing store.ErrTxRetryExhausted.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	const op = "postgres.Store.RunTx"

	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s:%w: %w", op, store.ErrTxRetryExhausted, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	const op = "postgres.Store.runOnce"

	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	defer pgtx.Rollback(ctx)

	if err := fn(ctx, &tx{db: pgtx}); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}
