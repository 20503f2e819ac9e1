package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lahjaprojekti/lahja-go/internal/clock"
	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	"github.com/lahjaprojekti/lahja-go/internal/notify"
	"github.com/lahjaprojekti/lahja-go/internal/service"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/store/memstore"
)

var testNow = time.Date(2026, 12, 5, 12, 0, 0, 0, time.UTC)

// newWiredServices builds the full reactive pipeline on the in-memory
// store: events published by one service are dispatched synchronously to
// the handlers of the next.
func newWiredServices(t *testing.T, s store.Store) (*service.Services, *feed.MemoryBus) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := feed.NewMemoryBus()

	svcs := service.NewServices(
		s, bus, nil, nil,
		notify.NewLogSender(logger),
		clock.NewFixed(testNow),
		logger,
		service.Config{},
	)

	router := feed.NewRouter(logger)
	NewRegistry(svcs, nil).Bind(router)
	bus.Attach(router.Dispatch)

	return svcs, bus
}

func seed(t *testing.T, s store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.RunTx(context.Background(), fn))
}

func loadSlot(t *testing.T, s store.Store, id string) *domain.Slot {
	t.Helper()
	var slot *domain.Slot
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		slot, err = tx.GetSlot(ctx, id)
		return err
	})
	require.NoError(t, err)
	return slot
}

func loadGift(t *testing.T, s store.Store, id string) *domain.Gift {
	t.Helper()
	var gift *domain.Gift
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		gift, err = tx.GetGift(ctx, id)
		return err
	})
	require.NoError(t, err)
	return gift
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

func TestReservationRequestFlowsToAllocation(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svcs, _ := newWiredServices(t, s)

	seed(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutSlot(ctx, &domain.Slot{ID: "slot-1", Region: "helsinki", Date: "20261205", Time: "10:00", Status: domain.SlotAvailable}); err != nil {
			return err
		}
		return tx.PutGift(ctx, &domain.Gift{ID: "gift-1", Status: domain.GiftCreating})
	})

	// the HTTP layer only records the request; the slot is granted by the
	// allocation handler reacting to the create event
	_, err := svcs.Allocator.CreateRequest(context.Background(), "", "gift-1", "slot-1", "")
	require.NoError(t, err)

	assert.Equal(t, domain.SlotReserved, loadSlot(t, s, "slot-1").Status)
	assert.Equal(t, "slot-1", loadGift(t, s, "gift-1").SlotID)
}

func TestConfirmationDrivesRedistributionAndMessage(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svcs, _ := newWiredServices(t, s)

	seed(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutArtist(ctx, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{{
			Region: "helsinki",
			From:   domain.Moment{Date: "20261205", Time: "08:00"},
			To:     domain.Moment{Date: "20261205", Time: "20:00"},
		}}}); err != nil {
			return err
		}
		if err := tx.PutSlot(ctx, &domain.Slot{ID: "slot-1", Region: "helsinki", Date: "20261205", Time: "10:00", Status: domain.SlotReserved}); err != nil {
			return err
		}
		return tx.PutGift(ctx, &domain.Gift{ID: "gift-1", Status: domain.GiftCreating, SlotID: "slot-1", FromPhoneNumber: "0401234567", ToName: "Liisa"})
	})

	_, err := svcs.Lifecycle.UpdateGift(context.Background(), &domain.Gift{ID: "gift-1", Status: domain.GiftPending, FromPhoneNumber: "0401234567", ToName: "Liisa"})
	require.NoError(t, err)

	// pending gifts never appear on an itinerary
	assert.Empty(t, loadArtist(t, s, "aino").Itineraries[0].Assignments)

	_, err = svcs.Lifecycle.UpdateGift(context.Background(), &domain.Gift{ID: "gift-1", Status: domain.GiftConfirmed, FromPhoneNumber: "0401234567", ToName: "Liisa"})
	require.NoError(t, err)

	a := loadArtist(t, s, "aino")
	require.Len(t, a.Itineraries[0].Assignments, 1)
	assert.Equal(t, domain.Assignment{SlotID: "slot-1", GiftID: "gift-1"}, a.Itineraries[0].Assignments[0])

	// one message per transition, keyed by event id
	var msgs []*domain.Message
	seed(t, s, func(ctx context.Context, tx store.Tx) error {
		var err error
		msgs, err = tx.ListUnsentMessages(ctx, testNow.Add(time.Hour))
		return err
	})
	require.Len(t, msgs, 2)
	keys := []string{msgs[0].MessageKey, msgs[1].MessageKey}
	assert.ElementsMatch(t, []string{domain.MessageKeyGiftPending, domain.MessageKeyGiftConfirmed}, keys)
}

func TestCancellationFreesSlotAndItinerary(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svcs, _ := newWiredServices(t, s)

	seed(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutArtist(ctx, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{{
			Region: "helsinki",
			From:   domain.Moment{Date: "20261205", Time: "08:00"},
			To:     domain.Moment{Date: "20261205", Time: "20:00"},
		}}}); err != nil {
			return err
		}
		if err := tx.PutSlot(ctx, &domain.Slot{ID: "slot-1", Region: "helsinki", Date: "20261205", Time: "10:00", Status: domain.SlotReserved}); err != nil {
			return err
		}
		return tx.PutGift(ctx, &domain.Gift{ID: "gift-1", Status: domain.GiftConfirmed, SlotID: "slot-1"})
	})

	require.NoError(t, svcs.Assign.Redistribute(context.Background(), "helsinki"))
	require.Len(t, loadArtist(t, s, "aino").Itineraries[0].Assignments, 1)

	_, err := svcs.Lifecycle.UpdateGift(context.Background(), &domain.Gift{ID: "gift-1", Status: domain.GiftCancelled})
	require.NoError(t, err)

	assert.Equal(t, domain.SlotAvailable, loadSlot(t, s, "slot-1").Status)
	assert.Empty(t, loadArtist(t, s, "aino").Itineraries[0].Assignments)
}

func TestArtistAssignmentOnlyWriteIsIgnored(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	_, bus := newWiredServices(t, s)

	// the stored artist carries an assignment no reserved slot backs up; a
	// redistribution round would clear it and publish
	withAssignment := &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{{
		Region:      "helsinki",
		From:        domain.Moment{Date: "20261205", Time: "08:00"},
		To:          domain.Moment{Date: "20261205", Time: "20:00"},
		Assignments: []domain.Assignment{{SlotID: "slot-1", GiftID: "gift-1"}},
	}}}
	seed(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.PutArtist(ctx, withAssignment)
	})

	base := *withAssignment
	base.Itineraries = []domain.ArtistItinerary{withAssignment.Itineraries[0]}
	base.Itineraries[0].Assignments = nil

	published := 0
	bus.Attach(func(ctx context.Context, ev feed.Event) { published++ })

	// the redistribution engine writing assignments back must not trigger
	// another redistribution round
	ev, err := feed.NewEvent(feed.CollectionArtists, "aino", feed.KindUpdate, &base, withAssignment)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	assert.Equal(t, 1, published, "only the original event crosses the bus")
	require.Len(t, loadArtist(t, s, "aino").Itineraries[0].Assignments, 1)
}

func TestAppStateEventTogglesSlots(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svcs, _ := newWiredServices(t, s)

	seed(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutSlot(ctx, &domain.Slot{ID: "s1", Region: "helsinki", Date: "20261205", Time: "10:00", Status: domain.SlotNotAvailable}); err != nil {
			return err
		}
		return tx.PutSlot(ctx, &domain.Slot{ID: "s2", Region: "helsinki", Date: "20261205", Time: "11:00", Status: domain.SlotReserved})
	})

	require.NoError(t, svcs.Lifecycle.SetAppState(context.Background(), domain.AppStateOpen))

	assert.Equal(t, domain.SlotAvailable, loadSlot(t, s, "s1").Status)
	assert.Equal(t, domain.SlotReserved, loadSlot(t, s, "s2").Status)

	require.NoError(t, svcs.Lifecycle.SetAppState(context.Background(), domain.AppStatePost))

	assert.Equal(t, domain.SlotNotAvailable, loadSlot(t, s, "s1").Status)
	assert.Equal(t, domain.SlotReserved, loadSlot(t, s, "s2").Status)
}

func TestSlotDeleteTriggersRegionRecompute(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svcs, _ := newWiredServices(t, s)

	seed(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.PutArtist(ctx, &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{{
			Region: "helsinki",
			From:   domain.Moment{Date: "20261205", Time: "08:00"},
			To:     domain.Moment{Date: "20261205", Time: "20:00"},
		}}})
	})

	slots := []*domain.Slot{
		{ID: "slot-1", Region: "helsinki", Date: "20261205", Time: "10:00", Status: domain.SlotReserved},
	}
	seed(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutSlot(ctx, slots[0]); err != nil {
			return err
		}
		return tx.PutGift(ctx, &domain.Gift{ID: "gift-1", Status: domain.GiftConfirmed, SlotID: "slot-1"})
	})

	require.NoError(t, svcs.Assign.Redistribute(context.Background(), "helsinki"))
	require.Len(t, loadArtist(t, s, "aino").Itineraries[0].Assignments, 1)

	require.NoError(t, svcs.Admin.DeleteSlot(context.Background(), "slot-1"))
	assert.Empty(t, loadArtist(t, s, "aino").Itineraries[0].Assignments)
}

func TestMalformedSnapshotsSurfaceErrors(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	svcs, _ := newWiredServices(t, s)
	reg := NewRegistry(svcs, nil)

	broken := json.RawMessage(`{"region":`)

	t.Run("slot write with a broken snapshot", func(t *testing.T) {
		err := reg.slotWritten(context.Background(), feed.Event{
			Collection: feed.CollectionSlots, DocID: "s1", Kind: feed.KindUpdate,
			Before: broken,
		})
		assert.Error(t, err)
	})

	t.Run("gift snapshots feeding redistribution", func(t *testing.T) {
		err := reg.redistributeGiftRegions(context.Background(), feed.Event{
			Collection: feed.CollectionGifts, DocID: "g1", Kind: feed.KindUpdate,
			After: broken,
		})
		assert.Error(t, err)
	})

	t.Run("gift pointing at a deleted slot is not an error", func(t *testing.T) {
		ev, err := feed.NewEvent(feed.CollectionGifts, "g1", feed.KindUpdate,
			nil, &domain.Gift{ID: "g1", Status: domain.GiftConfirmed, SlotID: "slot-gone"})
		require.NoError(t, err)
		assert.NoError(t, reg.redistributeGiftRegions(context.Background(), ev))
	})
}
