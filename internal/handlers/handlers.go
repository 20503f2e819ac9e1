// Package handlers wires the reactive surface: which document changes make
// which services run. All handlers are idempotent, so at-least-once delivery
// is safe.
package handlers

import (
	"context"
	"errors"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	redisrepo "github.com/lahjaprojekti/lahja-go/internal/repository/redis"
	"github.com/lahjaprojekti/lahja-go/internal/service"
	"github.com/lahjaprojekti/lahja-go/internal/service/query"
)

type Registry struct {
	svcs  *service.Services
	cache *redisrepo.Cache
}

func NewRegistry(svcs *service.Services, cache *redisrepo.Cache) *Registry {
	return &Registry{svcs: svcs, cache: cache}
}

// Bind attaches every handler to the router.
func (r *Registry) Bind(router *feed.Router) {
	router.OnCreate(feed.CollectionReservations, r.reservationCreated)

	router.OnCreate(feed.CollectionGifts, r.giftCreated)
	router.OnWrite(feed.CollectionGifts, r.giftWritten)
	router.OnDelete(feed.CollectionGifts, r.giftDeleted)

	router.OnWrite(feed.CollectionSlots, r.slotWritten)
	router.OnDelete(feed.CollectionSlots, r.slotDeleted)

	router.OnWrite(feed.CollectionArtists, r.artistWritten)
	router.OnDelete(feed.CollectionArtists, r.artistDeleted)

	router.OnWrite(feed.CollectionAppStates, r.appStateWritten)
}

func (r *Registry) reservationCreated(ctx context.Context, ev feed.Event) error {
	var req domain.Reservation
	if ok, err := ev.DecodeAfter(&req); err != nil || !ok {
		return err
	}
	return r.svcs.Allocator.Allocate(ctx, req)
}

func (r *Registry) giftCreated(ctx context.Context, ev feed.Event) error {
	return r.svcs.Lifecycle.HandleGiftCreated(ctx, ev)
}

// giftWritten runs the lifecycle reaction and then recomputes itineraries
// for any region the gift's slot touches. Confirmation changes the gift
// document only, so gift writes have to drive redistribution too.
func (r *Registry) giftWritten(ctx context.Context, ev feed.Event) error {
	if err := r.svcs.Lifecycle.HandleGiftWritten(ctx, ev); err != nil {
		return err
	}
	return r.redistributeGiftRegions(ctx, ev)
}

func (r *Registry) giftDeleted(ctx context.Context, ev feed.Event) error {
	if err := r.svcs.Lifecycle.HandleGiftDeleted(ctx, ev); err != nil {
		return err
	}
	return r.redistributeGiftRegions(ctx, ev)
}

func (r *Registry) redistributeGiftRegions(ctx context.Context, ev feed.Event) error {
	regions := map[string]bool{}

	var before, after domain.Gift
	hadBefore, err := ev.DecodeBefore(&before)
	if err != nil {
		return err
	}
	hadAfter, err := ev.DecodeAfter(&after)
	if err != nil {
		return err
	}

	if hadBefore && before.SlotID != "" {
		region, err := r.slotRegion(ctx, before.SlotID)
		if err != nil {
			return err
		}
		if region != "" {
			regions[region] = true
		}
	}
	if hadAfter && after.SlotID != "" {
		region, err := r.slotRegion(ctx, after.SlotID)
		if err != nil {
			return err
		}
		if region != "" {
			regions[region] = true
		}
	}

	return r.redistribute(ctx, regions)
}

func (r *Registry) slotRegion(ctx context.Context, slotID string) (string, error) {
	slot, err := r.svcs.Query.GetSlot(ctx, slotID)
	if errors.Is(err, query.ErrSlotNotFound) {
		return "", nil // slot gone, nothing to recompute there
	}
	if err != nil {
		return "", err
	}
	return slot.Region, nil
}

func (r *Registry) slotWritten(ctx context.Context, ev feed.Event) error {
	regions := map[string]bool{}

	var before, after domain.Slot
	if ok, err := ev.DecodeBefore(&before); err != nil {
		return err
	} else if ok {
		regions[before.Region] = true
	}
	if ok, err := ev.DecodeAfter(&after); err != nil {
		return err
	} else if ok {
		regions[after.Region] = true
	}

	r.invalidate(ctx, regions)

	return r.redistribute(ctx, regions)
}

func (r *Registry) slotDeleted(ctx context.Context, ev feed.Event) error {
	var before domain.Slot
	if ok, err := ev.DecodeBefore(&before); err != nil || !ok {
		return err
	}
	regions := map[string]bool{before.Region: true}
	r.invalidate(ctx, regions)
	return r.redistribute(ctx, regions)
}

// artistWritten recomputes itineraries only when a window actually changed.
// Redistribution writes assignments back onto artist documents, so reacting
// to assignment-only writes would loop forever.
func (r *Registry) artistWritten(ctx context.Context, ev feed.Event) error {
	var before, after domain.Artist
	hadBefore, err := ev.DecodeBefore(&before)
	if err != nil {
		return err
	}
	if _, err := ev.DecodeAfter(&after); err != nil {
		return err
	}

	regions := map[string]bool{}
	if !hadBefore {
		for _, it := range after.Itineraries {
			regions[it.Region] = true
		}
	} else if windowsChanged(before.Itineraries, after.Itineraries) {
		for _, it := range before.Itineraries {
			regions[it.Region] = true
		}
		for _, it := range after.Itineraries {
			regions[it.Region] = true
		}
	}

	return r.redistribute(ctx, regions)
}

func (r *Registry) artistDeleted(ctx context.Context, ev feed.Event) error {
	var before domain.Artist
	if ok, err := ev.DecodeBefore(&before); err != nil || !ok {
		return err
	}
	regions := map[string]bool{}
	for _, it := range before.Itineraries {
		regions[it.Region] = true
	}
	return r.redistribute(ctx, regions)
}

func (r *Registry) appStateWritten(ctx context.Context, ev feed.Event) error {
	var after struct {
		State domain.AppState `json:"state"`
	}
	if ok, err := ev.DecodeAfter(&after); err != nil || !ok {
		return err
	}
	_, err := r.svcs.Lifecycle.ApplyAppState(ctx, after.State)
	return err
}

func (r *Registry) invalidate(ctx context.Context, regions map[string]bool) {
	if r.cache == nil {
		return
	}
	for region := range regions {
		_ = r.cache.InvalidateRegion(ctx, region)
	}
}

func (r *Registry) redistribute(ctx context.Context, regions map[string]bool) error {
	for region := range regions {
		if region == "" {
			continue
		}
		if err := r.svcs.Assign.Redistribute(ctx, region); err != nil {
			return err
		}
	}
	return nil
}

func windowsChanged(before, after []domain.ArtistItinerary) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if !before[i].WindowEquals(after[i]) {
			return true
		}
	}
	return false
}
