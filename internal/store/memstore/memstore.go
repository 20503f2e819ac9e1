// Package memstore is an in-memory store.Store. Transactions are serialized
// by a single mutex, which gives the same observable semantics as the
// Postgres implementation's serializable transactions: a concurrent
// conflicting transaction can never interleave.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/store"
)

type Store struct {
	mu sync.Mutex

	slots        map[string]*domain.Slot
	gifts        map[string]*domain.Gift
	reservations map[string]*domain.Reservation
	artists      map[string]*domain.Artist
	artistOrder  []string
	messages     map[string]*domain.Message
	appState     domain.AppState
}

func New() *Store {
	return &Store{
		slots:        make(map[string]*domain.Slot),
		gifts:        make(map[string]*domain.Gift),
		reservations: make(map[string]*domain.Reservation),
		artists:      make(map[string]*domain.Artist),
		messages:     make(map[string]*domain.Message),
		appState:     domain.AppStatePre,
	}
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:           s,
		putSlots:    make(map[string]*domain.Slot),
		delSlots:    make(map[string]bool),
		putGifts:    make(map[string]*domain.Gift),
		delGifts:    make(map[string]bool),
		putArtists:  make(map[string]*domain.Artist),
		delArtists:  make(map[string]bool),
		putResvs:    make(map[string]*domain.Reservation),
		putMessages: make(map[string]*domain.Message),
	}

	if err := fn(ctx, t); err != nil {
		return err
	}

	t.commit()
	return nil
}

type tx struct {
	s *Store

	putSlots    map[string]*domain.Slot
	delSlots    map[string]bool
	putGifts    map[string]*domain.Gift
	delGifts    map[string]bool
	putArtists  map[string]*domain.Artist
	delArtists  map[string]bool
	newArtists  []string
	putResvs    map[string]*domain.Reservation
	putMessages map[string]*domain.Message
	appState    *domain.AppState
}

func (t *tx) commit() {
	for id, v := range t.putSlots {
		t.s.slots[id] = v
	}
	for id := range t.delSlots {
		delete(t.s.slots, id)
	}
	for id, v := range t.putGifts {
		t.s.gifts[id] = v
	}
	for id := range t.delGifts {
		delete(t.s.gifts, id)
	}
	for _, id := range t.newArtists {
		t.s.artistOrder = append(t.s.artistOrder, id)
	}
	for id, v := range t.putArtists {
		t.s.artists[id] = v
	}
	for id := range t.delArtists {
		delete(t.s.artists, id)
		for i, aid := range t.s.artistOrder {
			if aid == id {
				t.s.artistOrder = append(t.s.artistOrder[:i], t.s.artistOrder[i+1:]...)
				break
			}
		}
	}
	for id, v := range t.putResvs {
		t.s.reservations[id] = v
	}
	for id, v := range t.putMessages {
		t.s.messages[id] = v
	}
	if t.appState != nil {
		t.s.appState = *t.appState
	}
}

// --- slots ---

func (t *tx) GetSlot(_ context.Context, id string) (*domain.Slot, error) {
	if t.delSlots[id] {
		return nil, store.ErrNotFound
	}
	if v, ok := t.putSlots[id]; ok {
		return copySlot(v), nil
	}
	if v, ok := t.s.slots[id]; ok {
		return copySlot(v), nil
	}
	return nil, store.ErrNotFound
}

func (t *tx) PutSlot(_ context.Context, s *domain.Slot) error {
	t.putSlots[s.ID] = copySlot(s)
	delete(t.delSlots, s.ID)
	return nil
}

func (t *tx) DeleteSlot(_ context.Context, id string) error {
	delete(t.putSlots, id)
	t.delSlots[id] = true
	return nil
}

func (t *tx) ListSlots(ctx context.Context, region string, status domain.SlotStatus) ([]*domain.Slot, error) {
	var out []*domain.Slot
	for _, id := range t.slotIDs() {
		v, err := t.GetSlot(ctx, id)
		if err != nil {
			continue
		}
		if region != "" && v.Region != region {
			continue
		}
		if status != "" && v.Status != status {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *tx) slotIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for id := range t.s.slots {
		seen[id] = true
		ids = append(ids, id)
	}
	for id := range t.putSlots {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// --- gifts ---

func (t *tx) GetGift(_ context.Context, id string) (*domain.Gift, error) {
	if t.delGifts[id] {
		return nil, store.ErrNotFound
	}
	if v, ok := t.putGifts[id]; ok {
		return copyGift(v), nil
	}
	if v, ok := t.s.gifts[id]; ok {
		return copyGift(v), nil
	}
	return nil, store.ErrNotFound
}

func (t *tx) PutGift(_ context.Context, g *domain.Gift) error {
	t.putGifts[g.ID] = copyGift(g)
	delete(t.delGifts, g.ID)
	return nil
}

func (t *tx) DeleteGift(_ context.Context, id string) error {
	delete(t.putGifts, id)
	t.delGifts[id] = true
	return nil
}

func (t *tx) ListGifts(ctx context.Context) ([]*domain.Gift, error) {
	var out []*domain.Gift
	for _, id := range t.giftIDs() {
		v, err := t.GetGift(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *tx) ListGiftsBySlots(ctx context.Context, slotIDs []string) ([]*domain.Gift, error) {
	want := make(map[string]bool, len(slotIDs))
	for _, id := range slotIDs {
		want[id] = true
	}

	all, err := t.ListGifts(ctx)
	if err != nil {
		return nil, err
	}

	var out []*domain.Gift
	for _, g := range all {
		if g.SlotID != "" && want[g.SlotID] {
			out = append(out, g)
		}
	}
	return out, nil
}

func (t *tx) ListExpiredHolds(ctx context.Context, now time.Time) ([]*domain.Gift, error) {
	all, err := t.ListGifts(ctx)
	if err != nil {
		return nil, err
	}

	var out []*domain.Gift
	for _, g := range all {
		if g.Status == domain.GiftCreating && g.SlotID != "" && g.ReservedUntil < now.UnixMilli() {
			out = append(out, g)
		}
	}
	return out, nil
}

func (t *tx) giftIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for id := range t.s.gifts {
		seen[id] = true
		ids = append(ids, id)
	}
	for id := range t.putGifts {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// --- reservations ---

func (t *tx) GetReservation(_ context.Context, id string) (*domain.Reservation, error) {
	if v, ok := t.putResvs[id]; ok {
		cp := *v
		return &cp, nil
	}
	if v, ok := t.s.reservations[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (t *tx) InsertReservation(_ context.Context, r *domain.Reservation) error {
	if _, ok := t.putResvs[r.ID]; ok {
		return store.ErrConflict
	}
	if _, ok := t.s.reservations[r.ID]; ok {
		return store.ErrConflict
	}
	cp := *r
	t.putResvs[r.ID] = &cp
	return nil
}

func (t *tx) ListUnappliedReservations(ctx context.Context) ([]*domain.Reservation, error) {
	seen := make(map[string]bool)
	var ids []string
	for id := range t.s.reservations {
		seen[id] = true
		ids = append(ids, id)
	}
	for id := range t.putResvs {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var out []*domain.Reservation
	for _, id := range ids {
		r, err := t.GetReservation(ctx, id)
		if err != nil {
			return nil, err
		}
		g, err := t.GetGift(ctx, r.GiftID)
		if err != nil {
			continue
		}
		if g.ProcessedReservationID != r.ID {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- artists ---

func (t *tx) GetArtist(_ context.Context, id string) (*domain.Artist, error) {
	if t.delArtists[id] {
		return nil, store.ErrNotFound
	}
	if v, ok := t.putArtists[id]; ok {
		return copyArtist(v), nil
	}
	if v, ok := t.s.artists[id]; ok {
		return copyArtist(v), nil
	}
	return nil, store.ErrNotFound
}

func (t *tx) PutArtist(_ context.Context, a *domain.Artist) error {
	if _, exists := t.s.artists[a.ID]; !exists {
		if _, staged := t.putArtists[a.ID]; !staged {
			t.newArtists = append(t.newArtists, a.ID)
		}
	}
	t.putArtists[a.ID] = copyArtist(a)
	delete(t.delArtists, a.ID)
	return nil
}

func (t *tx) DeleteArtist(_ context.Context, id string) error {
	delete(t.putArtists, id)
	t.delArtists[id] = true
	return nil
}

// ListArtists returns artists in creation order. The redistribution
// tie-break depends on this order being stable.
func (t *tx) ListArtists(ctx context.Context) ([]*domain.Artist, error) {
	order := make([]string, 0, len(t.s.artistOrder)+len(t.newArtists))
	order = append(order, t.s.artistOrder...)
	order = append(order, t.newArtists...)

	var out []*domain.Artist
	for _, id := range order {
		v, err := t.GetArtist(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// --- app state ---

func (t *tx) GetAppState(_ context.Context) (domain.AppState, error) {
	if t.appState != nil {
		return *t.appState, nil
	}
	return t.s.appState, nil
}

func (t *tx) PutAppState(_ context.Context, s domain.AppState) error {
	t.appState = &s
	return nil
}

// --- messages ---

func (t *tx) PutMessageOnce(_ context.Context, m *domain.Message) (bool, error) {
	if _, ok := t.putMessages[m.ID]; ok {
		return false, nil
	}
	if _, ok := t.s.messages[m.ID]; ok {
		return false, nil
	}
	cp := *m
	t.putMessages[m.ID] = &cp
	return true, nil
}

func (t *tx) PutMessage(_ context.Context, m *domain.Message) error {
	cp := *m
	t.putMessages[m.ID] = &cp
	return nil
}

func (t *tx) ListUnsentMessages(_ context.Context, cutoff time.Time) ([]*domain.Message, error) {
	merged := make(map[string]*domain.Message, len(t.s.messages))
	for id, m := range t.s.messages {
		merged[id] = m
	}
	for id, m := range t.putMessages {
		merged[id] = m
	}

	var out []*domain.Message
	for _, m := range merged {
		if !m.Sent && !m.CreatedAt.After(cutoff) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- copies ---

func copySlot(s *domain.Slot) *domain.Slot {
	cp := *s
	return &cp
}

func copyGift(g *domain.Gift) *domain.Gift {
	cp := *g
	return &cp
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
