// Package allocator arbitrates reservation requests against slots. Each
// request is applied in a single transaction over the target slot, the gift
// and the gift's previous slot, so that for N concurrent requests on one
// available slot exactly one wins and every request is consumed exactly once.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lahjaprojekti/lahja-go/internal/clock"
	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	redisrepo "github.com/lahjaprojekti/lahja-go/internal/repository/redis"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/uow"
)

type Config struct {
	// ReservationPeriod is how long an unconfirmed hold lasts before the
	// expiry sweep reclaims it.
	ReservationPeriod time.Duration
}

type Service struct {
	uow     *uow.UoW
	bus     feed.Bus
	clock   clock.Clock
	limiter *redisrepo.SlidingWindowLimiter
	cfg     Config
}

func New(
	s store.Store,
	bus feed.Bus,
	clk clock.Clock,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Service {
	if cfg.ReservationPeriod <= 0 {
		cfg.ReservationPeriod = 5 * time.Minute
	}

	return &Service{
		uow:     uow.NewUoW(s),
		bus:     bus,
		clock:   clk,
		limiter: limiter,
		cfg:     cfg,
	}
}

// CreateRequest records a write-once reservation intent and publishes its
// creation event for the allocator to consume. A client-supplied id is
// honored so that a retried submission of the same intent is a no-op.
func (s *Service) CreateRequest(
	ctx context.Context,
	reservationID, giftID, slotID string,
	rlKey string,
) (string, error) {
	const op = "service.allocator.CreateRequest"

	if giftID == "" || slotID == "" {
		return "", fmt.Errorf("%s:%w", op, ErrBadRequest)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return "", fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return "", fmt.Errorf("%s:%w: retry in %s", op, ErrRateLimited, retry)
		}
	}

	if reservationID == "" {
		reservationID = uuid.New().String()
	}

	req := &domain.Reservation{ID: reservationID, GiftID: giftID, SlotID: slotID}

	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		if err := tx.InsertReservation(ctx, req); err != nil {
			if errors.Is(err, store.ErrConflict) {
				existing, getErr := tx.GetReservation(ctx, reservationID)
				if getErr == nil && existing.GiftID == giftID && existing.SlotID == slotID {
					// same intent retried, nothing to do
					return nil
				}
				return fmt.Errorf("%s:%w", op, ErrRequestConflict)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		ev, err := feed.NewEvent(feed.CollectionReservations, req.ID, feed.KindCreate, nil, req)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		after(func(ctx context.Context) {
			feed.PublishAll(ctx, s.bus, ev)
		})

		return nil
	})
	if err != nil {
		return "", err
	}

	return reservationID, nil
}

// ReconcilePending re-applies reservation requests the event pipeline
// missed: any committed request whose gift does not record it as processed
// is allocated again. Allocate is idempotent, so racing a late event
// delivery for the same request is harmless. Returns the number of requests
// applied.
func (s *Service) ReconcilePending(ctx context.Context) (int, error) {
	const op = "service.allocator.ReconcilePending"

	var pending []*domain.Reservation
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		var err error
		pending, err = tx.ListUnappliedReservations(ctx)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, req := range pending {
		if err := s.Allocate(ctx, *req); err != nil {
			return applied, fmt.Errorf("%s: reservation %s:%w", op, req.ID, err)
		}
		applied++
	}
	return applied, nil
}

// Allocate applies one reservation request. It is safe to invoke
// concurrently for requests targeting the same slot and idempotent under
// redelivery: the request id is recorded on the gift exactly once, win or
// lose.
func (s *Service) Allocate(ctx context.Context, req domain.Reservation) error {
	const op = "service.allocator.Allocate"

	var events []feed.Event

	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		gift, err := tx.GetGift(ctx, req.GiftID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// gift deleted before the request was processed; nothing to record
				return nil
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if gift.ProcessedReservationID == req.ID {
			// already applied
			return nil
		}

		slot, err := tx.GetSlot(ctx, req.SlotID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, err)
		}

		var prev *domain.Slot
		if gift.SlotID != "" && gift.SlotID != req.SlotID {
			prev, err = tx.GetSlot(ctx, gift.SlotID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		giftBefore := *gift
		gift.ProcessedReservationID = req.ID

		slotAvailable := slot != nil &&
			(slot.Status == domain.SlotAvailable || gift.SlotID == slot.ID)

		if slotAvailable {
			gift.SlotID = slot.ID
			gift.ReservedUntil = s.clock.Now().Add(s.cfg.ReservationPeriod).UnixMilli()

			if prev != nil {
				prevBefore := *prev
				prev.Status = domain.SlotAvailable
				if err := tx.PutSlot(ctx, prev); err != nil {
					return fmt.Errorf("%s:%w", op, err)
				}
				if err := feed.Stage(&events, feed.CollectionSlots, prev.ID, feed.KindUpdate, prevBefore, prev); err != nil {
					return fmt.Errorf("%s:%w", op, err)
				}
			}

			slotBefore := *slot
			slot.Status = domain.SlotReserved
			if err := tx.PutSlot(ctx, slot); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			if err := feed.Stage(&events, feed.CollectionSlots, slot.ID, feed.KindUpdate, slotBefore, slot); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		if err := tx.PutGift(ctx, gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := feed.Stage(&events, feed.CollectionGifts, gift.ID, feed.KindUpdate, giftBefore, gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			feed.PublishAll(ctx, s.bus, events...)
		})

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}
