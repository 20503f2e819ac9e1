// Package store defines the contract the core is written against: a
// document store with per-transaction serializability. A transaction that
// conflicts with a concurrent one is retried from the top by RunTx, so
// transaction functions must be side-effect free until commit.
package store

import (
	"context"
	"time"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
)

// Tx is the transaction capability handed to each unit of work. All reads
// observe a consistent snapshot; all writes commit atomically.
type Tx interface {
	GetSlot(ctx context.Context, id string) (*domain.Slot, error)
	PutSlot(ctx context.Context, s *domain.Slot) error
	DeleteSlot(ctx context.Context, id string) error
	// ListSlots returns slots in a region, all regions when region is empty,
	// filtered by status unless status is empty.
	ListSlots(ctx context.Context, region string, status domain.SlotStatus) ([]*domain.Slot, error)

	GetGift(ctx context.Context, id string) (*domain.Gift, error)
	PutGift(ctx context.Context, g *domain.Gift) error
	DeleteGift(ctx context.Context, id string) error
	ListGifts(ctx context.Context) ([]*domain.Gift, error)
	// ListGiftsBySlots returns every gift whose SlotID is one of slotIDs.
	ListGiftsBySlots(ctx context.Context, slotIDs []string) ([]*domain.Gift, error)
	// ListExpiredHolds returns gifts in creating status holding a slot whose
	// reservedUntil deadline is strictly before now.
	ListExpiredHolds(ctx context.Context, now time.Time) ([]*domain.Gift, error)

	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	// InsertReservation writes the write-once intent record. A duplicate id
	// fails with ErrConflict.
	InsertReservation(ctx context.Context, r *domain.Reservation) error
	// ListUnappliedReservations returns reservations whose gift exists but
	// does not record them as processed, in a deterministic order.
	ListUnappliedReservations(ctx context.Context) ([]*domain.Reservation, error)

	GetArtist(ctx context.Context, id string) (*domain.Artist, error)
	PutArtist(ctx context.Context, a *domain.Artist) error
	DeleteArtist(ctx context.Context, id string) error
	ListArtists(ctx context.Context) ([]*domain.Artist, error)

	GetAppState(ctx context.Context) (domain.AppState, error)
	PutAppState(ctx context.Context, s domain.AppState) error

	// PutMessageOnce creates the message unless one with the same id already
	// exists. Keying messages by change-event id makes creation exactly-once
	// under duplicate event delivery.
	PutMessageOnce(ctx context.Context, m *domain.Message) (created bool, err error)
	PutMessage(ctx context.Context, m *domain.Message) error
	// ListUnsentMessages returns unsent messages created at or before cutoff.
	ListUnsentMessages(ctx context.Context, cutoff time.Time) ([]*domain.Message, error)
}

// Store runs transactions. Implementations retry fn on optimistic conflicts;
// exhausting the retry budget surfaces ErrTxRetryExhausted.
type Store interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
