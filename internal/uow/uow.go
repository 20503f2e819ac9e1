package uow

import (
	"context"

	"github.com/lahjaprojekti/lahja-go/internal/store"
)

// AfterCommit is a function that runs after a successful transaction commit.
// Change-event publication and cache invalidation go through these hooks so
// that nothing escapes a transaction that ends up retried or rolled back.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work.
type UoW struct {
	store store.Store
}

func NewUoW(s store.Store) *UoW {
	return &UoW{store: s}
}

// Do runs fn inside a transaction. After a successful commit, it executes
// all after-commit hooks. On retry the hook list is rebuilt from scratch.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx store.Tx, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
