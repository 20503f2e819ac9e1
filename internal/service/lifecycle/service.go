// Package lifecycle enforces the gift status state machine and the slot
// side effects each transition requires, expires abandoned holds, and turns
// status transitions into outbound messages exactly once per change event.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lahjaprojekti/lahja-go/internal/clock"
	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	"github.com/lahjaprojekti/lahja-go/internal/notify"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/uow"
)

type Service struct {
	uow   *uow.UoW
	bus   feed.Bus
	clock clock.Clock
}

func New(s store.Store, bus feed.Bus, clk clock.Clock) *Service {
	return &Service{
		uow:   uow.NewUoW(s),
		bus:   bus,
		clock: clk,
	}
}

var validStatuses = map[domain.GiftStatus]bool{
	domain.GiftCreating:  true,
	domain.GiftPending:   true,
	domain.GiftConfirmed: true,
	domain.GiftRejected:  true,
	domain.GiftCancelled: true,
}

// CreateGift stores a new gift. The status is forced to creating regardless
// of what the caller supplied, and the allocator-owned fields start empty.
func (s *Service) CreateGift(ctx context.Context, g *domain.Gift) error {
	const op = "service.lifecycle.CreateGift"

	if g.ID == "" {
		return fmt.Errorf("%s:%w", op, ErrMissingGiftID)
	}

	gift := *g
	gift.Status = domain.GiftCreating
	gift.SlotID = ""
	gift.ReservedUntil = 0
	gift.ProcessedReservationID = ""
	if gift.CreatedAt.IsZero() {
		gift.CreatedAt = s.clock.Now()
	}

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		if _, err := tx.GetGift(ctx, gift.ID); err == nil {
			return fmt.Errorf("%s:%w", op, ErrGiftExists)
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.PutGift(ctx, &gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		ev, err := feed.NewEvent(feed.CollectionGifts, gift.ID, feed.KindCreate, nil, &gift)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		after(func(ctx context.Context) {
			feed.PublishAll(ctx, s.bus, ev)
		})

		return nil
	})
}

// UpdateGift applies an externally driven update: profile fields and status.
// The allocator-owned fields are preserved, and a transition into a terminal
// status releases the held slot in the same transaction.
func (s *Service) UpdateGift(ctx context.Context, upd *domain.Gift) (*domain.Gift, error) {
	const op = "service.lifecycle.UpdateGift"

	if !validStatuses[upd.Status] {
		return nil, fmt.Errorf("%s:%w: %q", op, ErrInvalidStatus, upd.Status)
	}

	var events []feed.Event
	var result *domain.Gift

	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		gift, err := tx.GetGift(ctx, upd.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrGiftNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		before := *gift
		gift.Status = upd.Status
		gift.FromName = upd.FromName
		gift.FromPhoneNumber = upd.FromPhoneNumber
		gift.FromLanguage = upd.FromLanguage
		gift.ToName = upd.ToName
		gift.ToAddress = upd.ToAddress
		gift.MessageText = upd.MessageText

		if gift.Status.Terminal() && gift.SlotID != "" {
			released := gift.SlotID
			gift.SlotID = ""
			gift.ReservedUntil = 0
			if err := s.releaseSlotIfUnclaimed(ctx, tx, released, gift.ID, &events); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		if err := tx.PutGift(ctx, gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := feed.Stage(&events, feed.CollectionGifts, gift.ID, feed.KindUpdate, &before, gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		result = gift
		after(s.publishAll(events))

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteGift removes a gift and releases its slot unless a different live
// gift has since claimed it.
func (s *Service) DeleteGift(ctx context.Context, id string) error {
	const op = "service.lifecycle.DeleteGift"

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		gift, err := tx.GetGift(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrGiftNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.DeleteGift(ctx, id); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if gift.SlotID != "" {
			if err := s.releaseSlotIfUnclaimed(ctx, tx, gift.SlotID, gift.ID, &events); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		if err := feed.Stage(&events, feed.CollectionGifts, gift.ID, feed.KindDelete, gift, nil); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(s.publishAll(events))

		return nil
	})
}

// HandleGiftCreated normalizes gifts written directly into the store with a
// status other than creating.
func (s *Service) HandleGiftCreated(ctx context.Context, ev feed.Event) error {
	const op = "service.lifecycle.HandleGiftCreated"

	var created domain.Gift
	if ok, err := ev.DecodeAfter(&created); err != nil || !ok {
		return err
	}
	if created.Status == domain.GiftCreating {
		return nil
	}

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		gift, err := tx.GetGift(ctx, ev.DocID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		if gift.Status == domain.GiftCreating {
			return nil
		}

		before := *gift
		gift.Status = domain.GiftCreating
		if err := tx.PutGift(ctx, gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := feed.Stage(&events, feed.CollectionGifts, gift.ID, feed.KindUpdate, &before, gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(s.publishAll(events))

		return nil
	})
}

// HandleGiftWritten reacts to a gift document change: it releases the slot
// when the gift moved into a terminal status outside UpdateGift, and creates
// the outbound message for the creating→pending and pending→confirmed
// transitions. The message document is keyed by the change-event id, so a
// redelivered event can never produce a second message.
func (s *Service) HandleGiftWritten(ctx context.Context, ev feed.Event) error {
	const op = "service.lifecycle.HandleGiftWritten"

	var before, afterDoc domain.Gift
	hadBefore, err := ev.DecodeBefore(&before)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	hadAfter, err := ev.DecodeAfter(&afterDoc)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	if !hadAfter {
		return nil
	}

	transition := !hadBefore || before.Status != afterDoc.Status

	var messageKey string
	if transition {
		switch {
		case hadBefore && before.Status == domain.GiftCreating && afterDoc.Status == domain.GiftPending:
			messageKey = domain.MessageKeyGiftPending
		case hadBefore && before.Status == domain.GiftPending && afterDoc.Status == domain.GiftConfirmed:
			messageKey = domain.MessageKeyGiftConfirmed
		}
	}

	releaseNeeded := transition && afterDoc.Status.Terminal() && hadBefore && before.SlotID != ""

	if messageKey == "" && !releaseNeeded {
		return nil
	}

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		if releaseNeeded {
			gift, err := tx.GetGift(ctx, ev.DocID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, err)
			}
			// fresh state decides, not the event snapshot
			if err == nil && gift.Status.Terminal() && gift.SlotID != "" {
				released := gift.SlotID
				gift.SlotID = ""
				gift.ReservedUntil = 0
				if err := tx.PutGift(ctx, gift); err != nil {
					return fmt.Errorf("%s:%w", op, err)
				}
				if err := s.releaseSlotIfUnclaimed(ctx, tx, released, gift.ID, &events); err != nil {
					return fmt.Errorf("%s:%w", op, err)
				}
			} else {
				if err := s.releaseSlotIfUnclaimed(ctx, tx, before.SlotID, ev.DocID, &events); err != nil {
					return fmt.Errorf("%s:%w", op, err)
				}
			}
		}

		if messageKey != "" && afterDoc.FromPhoneNumber != "" {
			msg := &domain.Message{
				ID:         ev.ID,
				Body:       notify.StatusMessageBody(messageKey, afterDoc.FromLanguage, afterDoc.ToName),
				ToNumber:   afterDoc.FromPhoneNumber,
				GiftID:     afterDoc.ID,
				MessageKey: messageKey,
				Sent:       false,
				CreatedAt:  s.clock.Now(),
			}
			if _, err := tx.PutMessageOnce(ctx, msg); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		after(s.publishAll(events))

		return nil
	})
}

// HandleGiftDeleted releases the deleted gift's slot unless another live
// gift has claimed it since. The guard reads fresh state inside the
// transaction rather than trusting the event snapshot.
func (s *Service) HandleGiftDeleted(ctx context.Context, ev feed.Event) error {
	const op = "service.lifecycle.HandleGiftDeleted"

	var before domain.Gift
	if ok, err := ev.DecodeBefore(&before); err != nil || !ok {
		return err
	}
	if before.SlotID == "" {
		return nil
	}

	var events []feed.Event

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]

		if err := s.releaseSlotIfUnclaimed(ctx, tx, before.SlotID, before.ID, &events); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(s.publishAll(events))

		return nil
	})
}

// ExpireStale reclaims abandoned in-progress reservations: every gift still
// in creating status whose hold deadline has passed loses its slot. Each
// gift is processed in its own transaction so one conflict cannot fail the
// whole sweep.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	const op = "service.lifecycle.ExpireStale"

	now := s.clock.Now()

	var ids []string
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		expired, err := tx.ListExpiredHolds(ctx, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		ids = ids[:0]
		for _, g := range expired {
			ids = append(ids, g.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		ok, err := s.expireOne(ctx, id, now)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}

	return released, nil
}

func (s *Service) expireOne(ctx context.Context, id string, now time.Time) (bool, error) {
	const op = "service.lifecycle.expireOne"

	var events []feed.Event
	expired := false

	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]
		expired = false

		gift, err := tx.GetGift(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		// revalidate against fresh state: the gift may have progressed or
		// refreshed its hold since the sweep listed it
		if gift.Status != domain.GiftCreating || gift.SlotID == "" || gift.ReservedUntil >= now.UnixMilli() {
			return nil
		}

		before := *gift
		released := gift.SlotID
		gift.SlotID = ""
		gift.ReservedUntil = 0

		if err := tx.PutGift(ctx, gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := s.releaseSlotIfUnclaimed(ctx, tx, released, gift.ID, &events); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := feed.Stage(&events, feed.CollectionGifts, gift.ID, feed.KindUpdate, &before, gift); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		expired = true
		after(s.publishAll(events))

		return nil
	})
	if err != nil {
		return false, err
	}

	return expired, nil
}

// SetAppState stores the global app state and publishes its change.
func (s *Service) SetAppState(ctx context.Context, state domain.AppState) error {
	const op = "service.lifecycle.SetAppState"

	switch state {
	case domain.AppStatePre, domain.AppStateOpen, domain.AppStatePaused, domain.AppStatePost:
	default:
		return fmt.Errorf("%s:%w: %q", op, ErrInvalidAppState, state)
	}

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		prev, err := tx.GetAppState(ctx)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := tx.PutAppState(ctx, state); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		ev, err := feed.NewEvent(feed.CollectionAppStates, "singleton", feed.KindUpdate,
			map[string]domain.AppState{"state": prev},
			map[string]domain.AppState{"state": state})
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		after(func(ctx context.Context) {
			feed.PublishAll(ctx, s.bus, ev)
		})

		return nil
	})
}

// ApplyAppState toggles bulk slot availability: open makes notAvailable
// slots available, every other state does the reverse. Slots already
// reserved are never touched.
func (s *Service) ApplyAppState(ctx context.Context, state domain.AppState) (int, error) {
	const op = "service.lifecycle.ApplyAppState"

	from, to := domain.SlotAvailable, domain.SlotNotAvailable
	if state == domain.AppStateOpen {
		from, to = domain.SlotNotAvailable, domain.SlotAvailable
	}

	var events []feed.Event
	changed := 0
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, after func(uow.AfterCommit)) error {
		events = events[:0]
		changed = 0
		slots, err := tx.ListSlots(ctx, "", from)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		for _, slot := range slots {
			before := *slot
			slot.Status = to
			if err := tx.PutSlot(ctx, slot); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			if err := feed.Stage(&events, feed.CollectionSlots, slot.ID, feed.KindUpdate, &before, slot); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			changed++
		}
		after(s.publishAll(events))
		return nil
	})
	if err != nil {
		return 0, err
	}

	return changed, nil
}

// releaseSlotIfUnclaimed flips a reserved slot back to available, but only
// when no live gift other than excludeGiftID still references it. A slot
// legitimately re-reserved by a fresher gift is left alone.
func (s *Service) releaseSlotIfUnclaimed(
	ctx context.Context,
	tx store.Tx,
	slotID, excludeGiftID string,
	events *[]feed.Event,
) error {
	slot, err := tx.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	claimants, err := tx.ListGiftsBySlots(ctx, []string{slotID})
	if err != nil {
		return err
	}
	for _, g := range claimants {
		if g.ID != excludeGiftID && !g.Status.Terminal() {
			return nil
		}
	}

	if slot.Status != domain.SlotReserved {
		return nil
	}

	before := *slot
	slot.Status = domain.SlotAvailable
	if err := tx.PutSlot(ctx, slot); err != nil {
		return err
	}
	return feed.Stage(events, feed.CollectionSlots, slot.ID, feed.KindUpdate, &before, slot)
}

func (s *Service) publishAll(events []feed.Event) uow.AfterCommit {
	staged := append([]feed.Event(nil), events...)
	return func(ctx context.Context) {
		feed.PublishAll(ctx, s.bus, staged...)
	}
}
