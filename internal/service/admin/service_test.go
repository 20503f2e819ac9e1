package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/store/memstore"
)

func TestCreateSlots(t *testing.T) {
	t.Parallel()

	t.Run("defaults to notAvailable and publishes creates", func(t *testing.T) {
		t.Parallel()

		s := memstore.New()
		bus := feed.NewMemoryBus()
		svc := New(s, bus)

		var got []feed.Event
		bus.Attach(func(ctx context.Context, ev feed.Event) { got = append(got, ev) })

		n, err := svc.CreateSlots(context.Background(), []*domain.Slot{
			{ID: "s1", Region: "helsinki", Date: "20261205", Time: "10:00"},
			{ID: "s2", Region: "helsinki", Date: "20261205", Time: "11:00", Status: domain.SlotAvailable},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.Len(t, got, 2)
		assert.Equal(t, feed.KindCreate, got[0].Kind)

		err = s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			s1, err := tx.GetSlot(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, domain.SlotNotAvailable, s1.Status)

			s2, err := tx.GetSlot(ctx, "s2")
			require.NoError(t, err)
			assert.Equal(t, domain.SlotAvailable, s2.Status)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("rejects malformed moment", func(t *testing.T) {
		t.Parallel()

		svc := New(memstore.New(), feed.NewMemoryBus())
		_, err := svc.CreateSlots(context.Background(), []*domain.Slot{
			{ID: "s1", Region: "helsinki", Date: "2026-12-05", Time: "10:00"},
		})
		assert.ErrorIs(t, err, ErrInvalidSlot)
	})

	t.Run("rejects existing id without partial write", func(t *testing.T) {
		t.Parallel()

		s := memstore.New()
		svc := New(s, feed.NewMemoryBus())

		_, err := svc.CreateSlots(context.Background(), []*domain.Slot{
			{ID: "s1", Region: "helsinki", Date: "20261205", Time: "10:00"},
		})
		require.NoError(t, err)

		_, err = svc.CreateSlots(context.Background(), []*domain.Slot{
			{ID: "s2", Region: "helsinki", Date: "20261205", Time: "11:00"},
			{ID: "s1", Region: "helsinki", Date: "20261205", Time: "10:00"},
		})
		assert.ErrorIs(t, err, ErrSlotExists)

		err = s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_, err := tx.GetSlot(ctx, "s2")
			assert.ErrorIs(t, err, store.ErrNotFound, "batch is all or nothing")
			return nil
		})
		require.NoError(t, err)
	})
}

func TestUpsertArtist(t *testing.T) {
	t.Parallel()

	t.Run("drops caller-supplied assignments", func(t *testing.T) {
		t.Parallel()

		s := memstore.New()
		svc := New(s, feed.NewMemoryBus())

		err := svc.UpsertArtist(context.Background(), &domain.Artist{
			ID:   "aino",
			Name: "Aino",
			Itineraries: []domain.ArtistItinerary{{
				Region:      "helsinki",
				From:        domain.Moment{Date: "20261205", Time: "08:00"},
				To:          domain.Moment{Date: "20261205", Time: "20:00"},
				Assignments: []domain.Assignment{{SlotID: "forged", GiftID: "forged"}},
			}},
		})
		require.NoError(t, err)

		err = s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			a, err := tx.GetArtist(ctx, "aino")
			require.NoError(t, err)
			assert.Empty(t, a.Itineraries[0].Assignments)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("rejects empty window", func(t *testing.T) {
		t.Parallel()

		svc := New(memstore.New(), feed.NewMemoryBus())
		err := svc.UpsertArtist(context.Background(), &domain.Artist{
			ID:   "aino",
			Name: "Aino",
			Itineraries: []domain.ArtistItinerary{{
				Region: "helsinki",
				From:   domain.Moment{Date: "20261205", Time: "12:00"},
				To:     domain.Moment{Date: "20261205", Time: "12:00"},
			}},
		})
		assert.ErrorIs(t, err, ErrInvalidArtist)
	})

	t.Run("update publishes with before snapshot", func(t *testing.T) {
		t.Parallel()

		s := memstore.New()
		bus := feed.NewMemoryBus()
		svc := New(s, bus)

		artist := &domain.Artist{ID: "aino", Name: "Aino", Itineraries: []domain.ArtistItinerary{{
			Region: "helsinki",
			From:   domain.Moment{Date: "20261205", Time: "08:00"},
			To:     domain.Moment{Date: "20261205", Time: "20:00"},
		}}}
		require.NoError(t, svc.UpsertArtist(context.Background(), artist))

		var got []feed.Event
		bus.Attach(func(ctx context.Context, ev feed.Event) { got = append(got, ev) })

		artist.Name = "Aino K"
		require.NoError(t, svc.UpsertArtist(context.Background(), artist))

		require.Len(t, got, 1)
		assert.Equal(t, feed.KindUpdate, got[0].Kind)

		var before domain.Artist
		ok, err := got[0].DecodeBefore(&before)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Aino", before.Name)
	})
}

func TestDeleteArtist(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	bus := feed.NewMemoryBus()
	svc := New(s, bus)

	require.NoError(t, svc.UpsertArtist(context.Background(), &domain.Artist{ID: "aino", Name: "Aino"}))

	var got []feed.Event
	bus.Attach(func(ctx context.Context, ev feed.Event) { got = append(got, ev) })

	require.NoError(t, svc.DeleteArtist(context.Background(), "aino"))
	require.Len(t, got, 1)
	assert.Equal(t, feed.KindDelete, got[0].Kind)

	assert.ErrorIs(t, svc.DeleteArtist(context.Background(), "aino"), ErrArtistNotFound)
}
