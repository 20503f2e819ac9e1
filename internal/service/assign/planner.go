package assign

import (
	"sort"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
)

// candidate is a reserved slot paired with the confirmed gift claiming it.
type candidate struct {
	slot *domain.Slot
	gift *domain.Gift
}

// planRegion rebuilds the assignments of every itinerary in the region,
// in place. Assignments are a pure function of current slots, gifts and
// itinerary windows, so the previous assignments are discarded wholesale.
//
// Candidates are walked in delivery order (slot date, then time). For each
// one, every itinerary of the region whose half-open window [from, to)
// contains the slot moment is eligible; the winner is the one whose artist
// has gone longest without an assignment in this run (no assignment yet
// counts as an infinite gap), ties broken by artist then itinerary
// iteration order. That deprioritizes an artist who just received a slot
// whenever any other eligible artist has waited longer.
func planRegion(region string, artists []*domain.Artist, slots []*domain.Slot, giftBySlot map[string]*domain.Gift) {
	var candidates []candidate
	for _, slot := range slots {
		gift := giftBySlot[slot.ID]
		if gift == nil || gift.Status != domain.GiftConfirmed {
			continue
		}
		candidates = append(candidates, candidate{slot: slot, gift: gift})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].slot.Moment().Before(candidates[j].slot.Moment())
	})

	for _, a := range artists {
		for i := range a.Itineraries {
			if a.Itineraries[i].Region == region {
				a.Itineraries[i].Assignments = nil
			}
		}
	}

	// last assignment moment per artist in this run
	lastAssigned := make([]domain.Moment, len(artists))
	hasAssigned := make([]bool, len(artists))

	for _, c := range candidates {
		moment := c.slot.Moment()

		winArtist, winItin := -1, -1
		for ai, a := range artists {
			for ii := range a.Itineraries {
				it := &a.Itineraries[ii]
				if it.Region != region || !it.Contains(moment) {
					continue
				}
				if winArtist < 0 || longerIdle(lastAssigned, hasAssigned, ai, winArtist) {
					winArtist, winItin = ai, ii
				}
			}
		}

		if winArtist < 0 {
			// no window covers this slot; it stays unassigned this pass
			continue
		}

		it := &artists[winArtist].Itineraries[winItin]
		it.Assignments = append(it.Assignments, domain.Assignment{
			SlotID: c.slot.ID,
			GiftID: c.gift.ID,
		})
		lastAssigned[winArtist] = moment
		hasAssigned[winArtist] = true
	}
}

// longerIdle reports whether artist a has a strictly larger gap than the
// current winner w. Since candidates arrive in time order, a larger gap
// means an earlier (or absent) last assignment.
func longerIdle(last []domain.Moment, has []bool, a, w int) bool {
	if !has[a] {
		return has[w]
	}
	if !has[w] {
		return false
	}
	return last[a].Before(last[w])
}
