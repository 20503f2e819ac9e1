// Package assign recomputes, per region, the assignment of confirmed gifts
// to artist itinerary windows whenever gifts, slots or itineraries change.
// Every recompute is a full rebuild from current state inside one
// transaction: the engine treats its own output as disposable, so manual
// data edits can never leave stale assignments behind.
package assign

import (
	"context"
	"fmt"
	"reflect"

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

// Redistribute rebuilds every itinerary assignment list in the region.
// Artists whose documents come out unchanged are not written, so running
// twice in a row is a no-op and publishes nothing.
func (s *Service) Redistribute(ctx context.Context, region string) error {
	const op = "service.assign.Redistribute"

	if region == "" {
		return fmt.Errorf("%s: empty region", op)
	}

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		artists, err := tx.ListArtists(ctx)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		slots, err := tx.ListSlots(ctx, region, domain.SlotReserved)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		slotIDs := make([]string, len(slots))
		for i, slot := range slots {
			slotIDs[i] = slot.ID
		}
		gifts, err := tx.ListGiftsBySlots(ctx, slotIDs)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		giftBySlot := make(map[string]*domain.Gift, len(gifts))
		for _, g := range gifts {
			if g.Status.Terminal() {
				continue
			}
			if _, taken := giftBySlot[g.SlotID]; !taken {
				giftBySlot[g.SlotID] = g
			}
		}

		befores := make([]*domain.Artist, len(artists))
		for i, a := range artists {
			befores[i] = copyArtist(a)
		}

		planRegion(region, artists, slots, giftBySlot)

		for i, a := range artists {
			if reflect.DeepEqual(befores[i].Itineraries, a.Itineraries) {
				continue
			}
			if err := tx.PutArtist(ctx, a); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			if err := feed.Stage(&events, feed.CollectionArtists, a.ID, feed.KindUpdate, befores[i], a); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		after(func(ctx context.Context) {
			feed.PublishAll(ctx, s.bus, events...)
		})

		return nil
	})
}

func copyArtist(a *domain.Artist) *domain.Artist {
	cp := *a
	cp.Itineraries = make([]domain.ArtistItinerary, len(a.Itineraries))
	for i, it := range a.Itineraries {
		itc := it
		itc.Assignments = append([]domain.Assignment(nil), it.Assignments...)
		cp.Itineraries[i] = itc
	}
	return &cp
}
