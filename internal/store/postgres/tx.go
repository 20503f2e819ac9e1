package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lahjaprojekti/lahja-go/internal/domain"
)

// tx implements store.Tx on a single pgx transaction handle.
type tx struct {
	db DB
}

// --- slots ---

func (t *tx) GetSlot(ctx context.Context, id string) (*domain.Slot, error) {
	const op = "postgres.tx.GetSlot"

	s := domain.Slot{ID: id}
	if err := t.db.QueryRow(ctx,
		`SELECT region, date, time, status
       	 FROM slots
      	 WHERE id = $1`,
		id,
	).Scan(&s.Region, &s.Date, &s.Time, &s.Status); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (t *tx) PutSlot(ctx context.Context, s *domain.Slot) error {
	const op = "postgres.tx.PutSlot"

	if _, err := t.db.Exec(ctx,
		`INSERT INTO slots(id, region, date, time, status)
       	 VALUES ($1, $2, $3, $4, $5)
     	 ON CONFLICT (id) DO UPDATE
        	SET region = EXCLUDED.region,
            	date = EXCLUDED.date,
            	time = EXCLUDED.time,
            	status = EXCLUDED.status`,
		s.ID, s.Region, s.Date, s.Time, s.Status,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (t *tx) DeleteSlot(ctx context.Context, id string) error {
	const op = "postgres.tx.DeleteSlot"

	if _, err := t.db.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (t *tx) ListSlots(ctx context.Context, region string, status domain.SlotStatus) ([]*domain.Slot, error) {
	const op = "postgres.tx.ListSlots"

	q := `SELECT id, region, date, time, status FROM slots`
	var args []any
	switch {
	case region != "" && status != "":
		q += ` WHERE region = $1 AND status = $2`
		args = append(args, region, status)
	case region != "":
		q += ` WHERE region = $1`
		args = append(args, region)
	case status != "":
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY id`

	rows, err := t.db.Query(ctx, q, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []*domain.Slot
	for rows.Next() {
		var s domain.Slot
		if err := rows.Scan(&s.ID, &s.Region, &s.Date, &s.Time, &s.Status); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// --- gifts ---

const giftColumns = `id, status, slot_id, reserved_until, processed_reservation_id,
	from_name, from_phone_number, from_language, to_name, to_address, message, created_at`

func scanGift(row interface{ Scan(...any) error }) (*domain.Gift, error) {
	var g domain.Gift
	if err := row.Scan(
		&g.ID, &g.Status, &g.SlotID, &g.ReservedUntil, &g.ProcessedReservationID,
		&g.FromName, &g.FromPhoneNumber, &g.FromLanguage, &g.ToName, &g.ToAddress,
		&g.MessageText, &g.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}

func (t *tx) GetGift(ctx context.Context, id string) (*domain.Gift, error) {
	const op = "postgres.tx.GetGift"

	g, err := scanGift(t.db.QueryRow(ctx,
		`SELECT `+giftColumns+` FROM gifts WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return g, nil
}

func (t *tx) PutGift(ctx context.Context, g *domain.Gift) error {
	const op = "postgres.tx.PutGift"

	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := t.db.Exec(ctx,
		`INSERT INTO gifts(id, status, slot_id, reserved_until, processed_reservation_id,
                    	   from_name, from_phone_number, from_language, to_name, to_address,
                    	   message, created_at)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
     	 ON CONFLICT (id) DO UPDATE
        	SET status = EXCLUDED.status,
            	slot_id = EXCLUDED.slot_id,
            	reserved_until = EXCLUDED.reserved_until,
            	processed_reservation_id = EXCLUDED.processed_reservation_id,
            	from_name = EXCLUDED.from_name,
            	from_phone_number = EXCLUDED.from_phone_number,
            	from_language = EXCLUDED.from_language,
            	to_name = EXCLUDED.to_name,
            	to_address = EXCLUDED.to_address,
            	message = EXCLUDED.message`,
		g.ID, g.Status, g.SlotID, g.ReservedUntil, g.ProcessedReservationID,
		g.FromName, g.FromPhoneNumber, g.FromLanguage, g.ToName, g.ToAddress,
		g.MessageText, createdAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (t *tx) DeleteGift(ctx context.Context, id string) error {
	const op = "postgres.tx.DeleteGift"

	if _, err := t.db.Exec(ctx, `DELETE FROM gifts WHERE id = $1`, id); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (t *tx) ListGifts(ctx context.Context) ([]*domain.Gift, error) {
	const op = "postgres.tx.ListGifts"

	return t.queryGifts(ctx, op,
		`SELECT `+giftColumns+` FROM gifts ORDER BY id`)
}

func (t *tx) ListGiftsBySlots(ctx context.Context, slotIDs []string) ([]*domain.Gift, error) {
	const op = "postgres.tx.ListGiftsBySlots"

	if len(slotIDs) == 0 {
		return nil, nil
	}

	return t.queryGifts(ctx, op,
		`SELECT `+giftColumns+` FROM gifts WHERE slot_id = ANY($1) ORDER BY id`, slotIDs)
}

func (t *tx) ListExpiredHolds(ctx context.Context, now time.Time) ([]*domain.Gift, error) {
	const op = "postgres.tx.ListExpiredHolds"

	return t.queryGifts(ctx, op,
		`SELECT `+giftColumns+`
       	 FROM gifts
      	 WHERE status = 'creating' AND slot_id <> '' AND reserved_until < $1
      	 ORDER BY id`,
		now.UnixMilli())
}

func (t *tx) queryGifts(ctx context.Context, op, q string, args ...any) ([]*domain.Gift, error) {
	rows, err := t.db.Query(ctx, q, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []*domain.Gift
	for rows.Next() {
		g, err := scanGift(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// --- reservations ---

func (t *tx) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	const op = "postgres.tx.GetReservation"

	r := domain.Reservation{ID: id}
	if err := t.db.QueryRow(ctx,
		`SELECT gift_id, slot_id FROM reservations WHERE id = $1`, id,
	).Scan(&r.GiftID, &r.SlotID); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &r, nil
}

func (t *tx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	const op = "postgres.tx.InsertReservation"

	if _, err := t.db.Exec(ctx,
		`INSERT INTO reservations(id, gift_id, slot_id) VALUES ($1, $2, $3)`,
		r.ID, r.GiftID, r.SlotID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ListUnappliedReservations joins reservations against gifts to find
// committed requests the event pipeline has not applied yet.
func (t *tx) ListUnappliedReservations(ctx context.Context) ([]*domain.Reservation, error) {
	const op = "postgres.tx.ListUnappliedReservations"

	rows, err := t.db.Query(ctx,
		`SELECT r.id, r.gift_id, r.slot_id
       	 FROM reservations r
       	 JOIN gifts g ON g.id = r.gift_id
      	 WHERE g.processed_reservation_id <> r.id
      	 ORDER BY r.created_at, r.id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []*domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.GiftID, &r.SlotID); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// --- artists ---

func (t *tx) GetArtist(ctx context.Context, id string) (*domain.Artist, error) {
	const op = "postgres.tx.GetArtist"

	a := domain.Artist{ID: id}
	var raw []byte
	if err := t.db.QueryRow(ctx,
		`SELECT name, phone_number, itineraries FROM artists WHERE id = $1`, id,
	).Scan(&a.Name, &a.PhoneNumber, &raw); err != nil {
		return nil, wrapDBErr(op, err)
	}

	if err := json.Unmarshal(raw, &a.Itineraries); err != nil {
		return nil, fmt.Errorf("%s: decode itineraries: %w", op, err)
	}

	return &a, nil
}

func (t *tx) PutArtist(ctx context.Context, a *domain.Artist) error {
	const op = "postgres.tx.PutArtist"

	itineraries := a.Itineraries
	if itineraries == nil {
		itineraries = []domain.ArtistItinerary{}
	}
	raw, err := json.Marshal(itineraries)
	if err != nil {
		return fmt.Errorf("%s: encode itineraries: %w", op, err)
	}

	if _, err := t.db.Exec(ctx,
		`INSERT INTO artists(id, name, phone_number, itineraries)
       	 VALUES ($1, $2, $3, $4)
     	 ON CONFLICT (id) DO UPDATE
        	SET name = EXCLUDED.name,
            	phone_number = EXCLUDED.phone_number,
            	itineraries = EXCLUDED.itineraries`,
		a.ID, a.Name, a.PhoneNumber, raw,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (t *tx) DeleteArtist(ctx context.Context, id string) error {
	const op = "postgres.tx.DeleteArtist"

	if _, err := t.db.Exec(ctx, `DELETE FROM artists WHERE id = $1`, id); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ListArtists returns artists in creation order; the redistribution
// tie-break depends on this order being stable.
func (t *tx) ListArtists(ctx context.Context) ([]*domain.Artist, error) {
	const op = "postgres.tx.ListArtists"

	rows, err := t.db.Query(ctx,
		`SELECT id, name, phone_number, itineraries FROM artists ORDER BY position`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []*domain.Artist
	for rows.Next() {
		var a domain.Artist
		var raw []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.PhoneNumber, &raw); err != nil {
			return nil, wrapDBErr(op, err)
		}
		if err := json.Unmarshal(raw, &a.Itineraries); err != nil {
			return nil, fmt.Errorf("%s: decode itineraries: %w", op, err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// --- app state ---

func (t *tx) GetAppState(ctx context.Context) (domain.AppState, error) {
	const op = "postgres.tx.GetAppState"

	var s domain.AppState
	err := t.db.QueryRow(ctx,
		`SELECT state FROM app_states WHERE id = 'singleton'`).Scan(&s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AppStatePre, nil
		}
		return "", wrapDBErr(op, err)
	}

	return s, nil
}

func (t *tx) PutAppState(ctx context.Context, s domain.AppState) error {
	const op = "postgres.tx.PutAppState"

	if _, err := t.db.Exec(ctx,
		`INSERT INTO app_states(id, state) VALUES ('singleton', $1)
     	 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state`,
		s,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// --- messages ---

func (t *tx) PutMessageOnce(ctx context.Context, m *domain.Message) (bool, error) {
	const op = "postgres.tx.PutMessageOnce"

	tag, err := t.db.Exec(ctx,
		`INSERT INTO messages(id, body, to_number, gift_id, message_key, sent, created_at)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7)
     	 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Body, m.ToNumber, m.GiftID, m.MessageKey, m.Sent, m.CreatedAt,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (t *tx) PutMessage(ctx context.Context, m *domain.Message) error {
	const op = "postgres.tx.PutMessage"

	if _, err := t.db.Exec(ctx,
		`INSERT INTO messages(id, body, to_number, gift_id, message_key, sent, created_at)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7)
     	 ON CONFLICT (id) DO UPDATE
        	SET body = EXCLUDED.body,
            	to_number = EXCLUDED.to_number,
            	sent = EXCLUDED.sent`,
		m.ID, m.Body, m.ToNumber, m.GiftID, m.MessageKey, m.Sent, m.CreatedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (t *tx) ListUnsentMessages(ctx context.Context, cutoff time.Time) ([]*domain.Message, error) {
	const op = "postgres.tx.ListUnsentMessages"

	rows, err := t.db.Query(ctx,
		`SELECT id, body, to_number, gift_id, message_key, sent, created_at
       	 FROM messages
      	 WHERE NOT sent AND created_at <= $1
      	 ORDER BY created_at, id`,
		cutoff,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Body, &m.ToNumber, &m.GiftID, &m.MessageKey, &m.Sent, &m.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
