package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMomentCompare(t *testing.T) {
	t.Parallel()

	a := Moment{Date: "20261205", Time: "10:00"}
	b := Moment{Date: "20261205", Time: "10:30"}
	c := Moment{Date: "20261206", Time: "09:00"}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.True(t, a.Before(c))
	assert.False(t, b.Before(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestMomentValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		m       Moment
		wantErr bool
	}{
		{"valid", Moment{Date: "20261205", Time: "10:00"}, false},
		{"midnight", Moment{Date: "20261205", Time: "00:00"}, false},
		{"last minute", Moment{Date: "20261231", Time: "23:59"}, false},
		{"short date", Moment{Date: "2026125", Time: "10:00"}, true},
		{"dashed date", Moment{Date: "2026-12-05", Time: "10:00"}, true},
		{"hour out of range", Moment{Date: "20261205", Time: "24:00"}, true},
		{"minute out of range", Moment{Date: "20261205", Time: "10:60"}, true},
		{"missing padding", Moment{Date: "20261205", Time: "9:00"}, true},
		{"empty", Moment{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestItineraryContains(t *testing.T) {
	t.Parallel()

	it := ArtistItinerary{
		Region: "helsinki",
		From:   Moment{Date: "20261205", Time: "10:00"},
		To:     Moment{Date: "20261205", Time: "14:00"},
	}

	assert.True(t, it.Contains(Moment{Date: "20261205", Time: "10:00"}), "window start is inside")
	assert.True(t, it.Contains(Moment{Date: "20261205", Time: "13:59"}))
	assert.False(t, it.Contains(Moment{Date: "20261205", Time: "14:00"}), "window end is outside")
	assert.False(t, it.Contains(Moment{Date: "20261205", Time: "09:59"}))
	assert.False(t, it.Contains(Moment{Date: "20261204", Time: "12:00"}))
}

func TestItineraryWindowEquals(t *testing.T) {
	t.Parallel()

	base := ArtistItinerary{
		Region: "helsinki",
		From:   Moment{Date: "20261205", Time: "10:00"},
		To:     Moment{Date: "20261205", Time: "14:00"},
	}

	same := base
	same.Assignments = []Assignment{{SlotID: "s1", GiftID: "g1"}}
	require.True(t, base.WindowEquals(same), "assignments must not affect window equality")

	moved := base
	moved.To = Moment{Date: "20261205", Time: "15:00"}
	assert.False(t, base.WindowEquals(moved))

	otherRegion := base
	otherRegion.Region = "tampere"
	assert.False(t, base.WindowEquals(otherRegion))
}

func TestGiftStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, GiftRejected.Terminal())
	assert.True(t, GiftCancelled.Terminal())
	assert.False(t, GiftCreating.Terminal())
	assert.False(t, GiftPending.Terminal())
	assert.False(t, GiftConfirmed.Terminal())
}
