// Package query serves reads. Slot listings are the hot path during an
// open reservation window, so they go through the Redis cache with
// singleflight loading; everything else reads the store directly.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
	redisx "github.com/lahjaprojekti/lahja-go/internal/redis"
	redisrepo "github.com/lahjaprojekti/lahja-go/internal/repository/redis"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/uow"
)

type Config struct {
	SlotsTTL time.Duration
}

type Service struct {
	uow   *uow.UoW
	cache *redisrepo.Cache
	cfg   Config
}

func New(s store.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.SlotsTTL <= 0 {
		cfg.SlotsTTL = 15 * time.Second
	}

	return &Service{
		uow:   uow.NewUoW(s),
		cache: cache,
		cfg:   cfg,
	}
}

// ListRegionSlots returns every slot in the region, from cache when
// possible.
func (s *Service) ListRegionSlots(ctx context.Context, region string) ([]*domain.Slot, error) {
	const op = "service.query.ListRegionSlots"

	load := func(ctx context.Context) ([]*domain.Slot, error) {
		var slots []*domain.Slot
		err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
			var err error
			slots, err = tx.ListSlots(ctx, region, "")
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return slots, nil
	}

	if s.cache == nil {
		return load(ctx)
	}

	return redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyRegionSlots(region), s.cfg.SlotsTTL, load)
}

func (s *Service) GetSlot(ctx context.Context, id string) (*domain.Slot, error) {
	const op = "service.query.GetSlot"

	var slot *domain.Slot
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		var err error
		slot, err = tx.GetSlot(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrSlotNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return slot, nil
}

func (s *Service) GetGift(ctx context.Context, id string) (*domain.Gift, error) {
	const op = "service.query.GetGift"

	var gift *domain.Gift
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		var err error
		gift, err = tx.GetGift(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrGiftNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return gift, nil
}

func (s *Service) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	const op = "service.query.GetReservation"

	var r *domain.Reservation
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		var err error
		r, err = tx.GetReservation(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return r, nil
}

func (s *Service) ListGifts(ctx context.Context) ([]*domain.Gift, error) {
	const op = "service.query.ListGifts"

	var gifts []*domain.Gift
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		var err error
		gifts, err = tx.ListGifts(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return gifts, nil
}

func (s *Service) ListArtists(ctx context.Context) ([]*domain.Artist, error) {
	const op = "service.query.ListArtists"

	var artists []*domain.Artist
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		var err error
		artists, err = tx.ListArtists(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return artists, nil
}

func (s *Service) GetAppState(ctx context.Context) (domain.AppState, error) {
	const op = "service.query.GetAppState"

	var state domain.AppState
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		var err error
		state, err = tx.GetAppState(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return state, nil
}
