package assign

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/store/memstore"
)

func window(region, fromTime, toTime string) domain.ArtistItinerary {
	return domain.ArtistItinerary{
		Region: region,
		From:   domain.Moment{Date: "20261205", Time: fromTime},
		To:     domain.Moment{Date: "20261205", Time: toTime},
	}
}

// seedReservedSlot stores a reserved slot plus the gift holding it.
func seedReservedSlot(t *testing.T, s store.Store, id, region, tm string, status domain.GiftStatus) {
	t.Helper()
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutSlot(ctx, &domain.Slot{ID: id, Region: region, Date: "20261205", Time: tm, Status: domain.SlotReserved}); err != nil {
			return err
		}
		return tx.PutGift(ctx, &domain.Gift{ID: "gift-" + id, Status: status, SlotID: id})
	})
	require.NoError(t, err)
}

func seedArtist(t *testing.T, s store.Store, a *domain.Artist) {
	t.Helper()
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.PutArtist(ctx, a)
	})
	require.NoError(t, err)
}

func loadArtist(t *testing.T, s store.Store, id string) *domain.Artist {
	t.Helper()
	var a *domain.Artist
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		a, err = tx.GetArtist(ctx, id)
		return err
	})
	require.NoError(t, err)
	return a
}

func assignedSlots(a *domain.Artist, region string) []string {
	var out []string
	for _, it := range a.Itineraries {
		if it.Region != region {
			continue
		}
		for _, as := range it.Assignments {
			out = append(out, as.SlotID)
		}
	}
	return out
}

func TestRedistribute_RoundRobinUnderFullOverlap(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svc := New(s, feed.NewMemoryBus())

	// three artists, identical all-day windows
	for _, id := range []string{"aino", "mikko", "sanni"} {
		a := &domain.Artist{ID: id, Name: id, Itineraries: []domain.ArtistItinerary{window("helsinki", "08:00", "20:00")}}
		seedArtist(t, s, a)
	}

	// eight confirmed deliveries, hourly
	for i := 0; i < 8; i++ {
		seedReservedSlot(t, s, fmt.Sprintf("slot-%d", i+1), "helsinki", fmt.Sprintf("%02d:00", 9+i), domain.GiftConfirmed)
	}

	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))

	assert.Equal(t, []string{"slot-1", "slot-4", "slot-7"}, assignedSlots(loadArtist(t, s, "aino"), "helsinki"))
	assert.Equal(t, []string{"slot-2", "slot-5", "slot-8"}, assignedSlots(loadArtist(t, s, "mikko"), "helsinki"))
	assert.Equal(t, []string{"slot-3", "slot-6"}, assignedSlots(loadArtist(t, s, "sanni"), "helsinki"))
}

func TestRedistribute_OnlyConfirmedGiftsCount(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svc := New(s, feed.NewMemoryBus())

	seedArtist(t, s, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{window("helsinki", "08:00", "20:00")}})

	seedReservedSlot(t, s, "confirmed", "helsinki", "10:00", domain.GiftConfirmed)
	seedReservedSlot(t, s, "pending", "helsinki", "11:00", domain.GiftPending)
	seedReservedSlot(t, s, "creating", "helsinki", "12:00", domain.GiftCreating)
	seedReservedSlot(t, s, "rejected", "helsinki", "13:00", domain.GiftRejected)

	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))

	assert.Equal(t, []string{"confirmed"}, assignedSlots(loadArtist(t, s, "aino"), "helsinki"))
}

func TestRedistribute_HalfOpenWindow(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svc := New(s, feed.NewMemoryBus())

	seedArtist(t, s, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{window("helsinki", "10:00", "12:00")}})

	seedReservedSlot(t, s, "at-start", "helsinki", "10:00", domain.GiftConfirmed)
	seedReservedSlot(t, s, "inside", "helsinki", "11:59", domain.GiftConfirmed)
	seedReservedSlot(t, s, "at-end", "helsinki", "12:00", domain.GiftConfirmed)

	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))

	assert.Equal(t, []string{"at-start", "inside"}, assignedSlots(loadArtist(t, s, "aino"), "helsinki"))
}

func TestRedistribute_GapTieBreakPrefersIdleArtist(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svc := New(s, feed.NewMemoryBus())

	// aino covers the morning only, mikko the whole day. The 11:00 slot is
	// aino-only; at 12:00 both are eligible and mikko has waited longer.
	seedArtist(t, s, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{window("helsinki", "08:00", "13:00")}})
	seedArtist(t, s, &domain.Artist{ID: "mikko", Name: "Mikko", Itineraries: []domain.ArtistItinerary{window("helsinki", "08:00", "20:00")}})

	seedReservedSlot(t, s, "s-09", "helsinki", "09:00", domain.GiftConfirmed)
	seedReservedSlot(t, s, "s-10", "helsinki", "10:00", domain.GiftConfirmed)
	seedReservedSlot(t, s, "s-11", "helsinki", "11:00", domain.GiftConfirmed)
	seedReservedSlot(t, s, "s-12", "helsinki", "12:00", domain.GiftConfirmed)

	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))

	// 09:00 aino (first in order), 10:00 mikko, 11:00 aino again, and at
	// 12:00 mikko has the larger gap (10:00 vs 11:00) despite being second
	// in iteration order
	assert.Equal(t, []string{"s-09", "s-11"}, assignedSlots(loadArtist(t, s, "aino"), "helsinki"))
	assert.Equal(t, []string{"s-10", "s-12"}, assignedSlots(loadArtist(t, s, "mikko"), "helsinki"))
}

func TestRedistribute_IdempotentRecompute(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	bus := feed.NewMemoryBus()
	svc := New(s, bus)

	seedArtist(t, s, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{window("helsinki", "08:00", "20:00")}})
	seedReservedSlot(t, s, "slot-1", "helsinki", "10:00", domain.GiftConfirmed)

	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))
	first := loadArtist(t, s, "aino")

	published := 0
	bus.Attach(func(ctx context.Context, ev feed.Event) { published++ })

	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))

	assert.Equal(t, first, loadArtist(t, s, "aino"))
	assert.Zero(t, published, "unchanged artists are not rewritten")
}

func TestRedistribute_OtherRegionsUntouched(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svc := New(s, feed.NewMemoryBus())

	seedArtist(t, s, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{
		window("helsinki", "08:00", "20:00"),
		window("tampere", "08:00", "20:00"),
	}})
	seedReservedSlot(t, s, "hel-1", "helsinki", "10:00", domain.GiftConfirmed)
	seedReservedSlot(t, s, "tre-1", "tampere", "10:00", domain.GiftConfirmed)

	require.NoError(t, svc.Redistribute(context.Background(), "tampere"))
	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))

	// drop the helsinki gift and recompute helsinki only
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteGift(ctx, "gift-hel-1")
	})
	require.NoError(t, err)
	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))

	a := loadArtist(t, s, "aino")
	assert.Empty(t, assignedSlots(a, "helsinki"))
	assert.Equal(t, []string{"tre-1"}, assignedSlots(a, "tampere"))
}

func TestRedistribute_NoEligibleWindowLeavesSlotUnassigned(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svc := New(s, feed.NewMemoryBus())

	seedArtist(t, s, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{window("helsinki", "08:00", "09:00")}})
	seedReservedSlot(t, s, "slot-1", "helsinki", "15:00", domain.GiftConfirmed)

	require.NoError(t, svc.Redistribute(context.Background(), "helsinki"))
	assert.Empty(t, assignedSlots(loadArtist(t, s, "aino"), "helsinki"))
}
