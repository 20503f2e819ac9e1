// Package admin covers inventory and roster management: slot setup, artist
// upserts with window validation, and gift removal. Every write publishes
// its change event so the reactive handlers see admin edits the same way
// they see visitor-driven ones.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/uow"
)

type Service struct {
	uow *uow.UoW
	bus feed.Bus
}

func New(s store.Store, bus feed.Bus) *Service {
	return &Service{
		uow: uow.NewUoW(s),
		bus: bus,
	}
}

// CreateSlots batch-creates inventory. New slots start notAvailable unless
// a status is supplied; existing ids are rejected rather than overwritten.
func (s *Service) CreateSlots(ctx context.Context, slots []*domain.Slot) (int, error) {
	const op = "service.admin.CreateSlots"

	for _, slot := range slots {
		if slot.ID == "" || slot.Region == "" {
			return 0, fmt.Errorf("%s:%w", op, ErrInvalidSlot)
		}
		if err := slot.Moment().Validate(); err != nil {
			return 0, fmt.Errorf("%s:%w: %v", op, ErrInvalidSlot, err)
		}
		if slot.Status == "" {
			slot.Status = domain.SlotNotAvailable
		}
	}

	var events []feed.Event

	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		for _, slot := range slots {
			if _, err := tx.GetSlot(ctx, slot.ID); err == nil {
				return fmt.Errorf("%s:%w: %s", op, ErrSlotExists, slot.ID)
			} else if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, err)
			}

			if err := tx.PutSlot(ctx, slot); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			if err := feed.Stage(&events, feed.CollectionSlots, slot.ID, feed.KindCreate, nil, slot); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		after(s.publishAll(events))

		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(slots), nil
}

// UpdateSlot rewrites a slot document.
func (s *Service) UpdateSlot(ctx context.Context, slot *domain.Slot) error {
	const op = "service.admin.UpdateSlot"

	if err := slot.Moment().Validate(); err != nil {
		return fmt.Errorf("%s:%w: %v", op, ErrInvalidSlot, err)
	}

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		before, err := tx.GetSlot(ctx, slot.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSlotNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.PutSlot(ctx, slot); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := feed.Stage(&events, feed.CollectionSlots, slot.ID, feed.KindUpdate, before, slot); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(s.publishAll(events))

		return nil
	})
}

func (s *Service) DeleteSlot(ctx context.Context, id string) error {
	const op = "service.admin.DeleteSlot"

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		before, err := tx.GetSlot(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSlotNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.DeleteSlot(ctx, id); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := feed.Stage(&events, feed.CollectionSlots, id, feed.KindDelete, before, nil); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(s.publishAll(events))

		return nil
	})
}

// UpsertArtist writes an artist roster entry. Itinerary windows are
// user-edited; assignments are derived, so whatever the caller sent there
// is dropped and the redistribution engine rebuilds them.
func (s *Service) UpsertArtist(ctx context.Context, artist *domain.Artist) error {
	const op = "service.admin.UpsertArtist"

	if artist.ID == "" || artist.Name == "" {
		return fmt.Errorf("%s:%w", op, ErrInvalidArtist)
	}
	for i := range artist.Itineraries {
		it := &artist.Itineraries[i]
		if it.Region == "" {
			return fmt.Errorf("%s:%w: itinerary missing region", op, ErrInvalidArtist)
		}
		if err := it.From.Validate(); err != nil {
			return fmt.Errorf("%s:%w: %v", op, ErrInvalidArtist, err)
		}
		if err := it.To.Validate(); err != nil {
			return fmt.Errorf("%s:%w: %v", op, ErrInvalidArtist, err)
		}
		if !it.From.Before(it.To) {
			return fmt.Errorf("%s:%w: window %s..%s is empty", op, ErrInvalidArtist, it.From, it.To)
		}
		it.Assignments = nil
	}

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		before, err := tx.GetArtist(ctx, artist.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.PutArtist(ctx, artist); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		kind := feed.KindUpdate
		var beforeDoc any
		if before != nil {
			beforeDoc = before
		} else {
			kind = feed.KindCreate
		}
		if err := feed.Stage(&events, feed.CollectionArtists, artist.ID, kind, beforeDoc, artist); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(s.publishAll(events))

		return nil
	})
}

func (s *Service) DeleteArtist(ctx context.Context, id string) error {
	const op = "service.admin.DeleteArtist"

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		before, err := tx.GetArtist(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrArtistNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.DeleteArtist(ctx, id); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := feed.Stage(&events, feed.CollectionArtists, id, feed.KindDelete, before, nil); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(s.publishAll(events))

		return nil
	})
}

func (s *Service) publishAll(events []feed.Event) uow.AfterCommit {
	staged := append([]feed.Event(nil), events...)
	return func(ctx context.Context) {
		feed.PublishAll(ctx, s.bus, staged...)
	}
}
