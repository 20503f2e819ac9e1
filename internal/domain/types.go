package domain

import "time"

type SlotStatus string

const (
	SlotNotAvailable SlotStatus = "notAvailable"
	SlotAvailable    SlotStatus = "available"
	SlotReserved     SlotStatus = "reserved"
)

type GiftStatus string

const (
	GiftCreating  GiftStatus = "creating"
	GiftPending   GiftStatus = "pending"
	GiftConfirmed GiftStatus = "confirmed"
	GiftRejected  GiftStatus = "rejected"
	GiftCancelled GiftStatus = "cancelled"
)

// Terminal reports whether the status ends a gift's claim on its slot.
func (s GiftStatus) Terminal() bool {
	return s == GiftRejected || s == GiftCancelled
}

type AppState string

const (
	AppStatePre    AppState = "pre"
	AppStateOpen   AppState = "open"
	AppStatePaused AppState = "paused"
	AppStatePost   AppState = "post"
)

// Slot is a bookable (region, date, time) unit of artist availability.
// At most one live gift may reference a slot at a time.
type Slot struct {
	ID     string     `json:"id"`
	Region string     `json:"region"`
	Date   string     `json:"date"` // YYYYMMDD
	Time   string     `json:"time"` // HH:MM
	Status SlotStatus `json:"status"`
}

func (s *Slot) Moment() Moment {
	return Moment{Date: s.Date, Time: s.Time}
}

// Gift is a performance request. The ID is client-generated so a giver can
// reconnect to an in-progress reservation.
type Gift struct {
	ID                     string     `json:"id"`
	Status                 GiftStatus `json:"status"`
	SlotID                 string     `json:"slotId,omitempty"`
	ReservedUntil          int64      `json:"reservedUntil,omitempty"` // epoch millis
	ProcessedReservationID string     `json:"processedReservationId,omitempty"`
	FromName               string     `json:"fromName,omitempty"`
	FromPhoneNumber        string     `json:"fromPhoneNumber,omitempty"`
	FromLanguage           string     `json:"fromLanguage,omitempty"`
	ToName                 string     `json:"toName,omitempty"`
	ToAddress              string     `json:"toAddress,omitempty"`
	MessageText            string     `json:"message,omitempty"`
	CreatedAt              time.Time  `json:"createdAt,omitempty"`
}

// Reservation is a write-once intent record arbitrated by the allocator.
type Reservation struct {
	ID     string `json:"id"`
	GiftID string `json:"giftId"`
	SlotID string `json:"slotId"`
}

type Assignment struct {
	SlotID string `json:"slotId"`
	GiftID string `json:"giftId"`
}

// ArtistItinerary is a time window within a region. The window bounds are
// user-edited; Assignments is a derived projection recomputed wholesale by
// the redistribution engine.
type ArtistItinerary struct {
	Region      string       `json:"region"`
	From        Moment       `json:"from"`
	To          Moment       `json:"to"`
	Assignments []Assignment `json:"assignments"`
}

// Contains reports whether m falls inside the half-open window [From, To).
func (it *ArtistItinerary) Contains(m Moment) bool {
	return it.From.Compare(m) <= 0 && m.Compare(it.To) < 0
}

// WindowEquals compares the user-edited parts of an itinerary, ignoring
// assignments.
func (it *ArtistItinerary) WindowEquals(other ArtistItinerary) bool {
	return it.Region == other.Region && it.From == other.From && it.To == other.To
}

type Artist struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	PhoneNumber string            `json:"phoneNumber,omitempty"`
	Itineraries []ArtistItinerary `json:"itineraries"`
}

// Message is an outbound SMS record. The ID is the triggering change-event
// id, which makes creation exactly-once under duplicate event delivery.
type Message struct {
	ID         string    `json:"id"`
	Body       string    `json:"message"`
	ToNumber   string    `json:"toNumber"`
	GiftID     string    `json:"giftId,omitempty"`
	MessageKey string    `json:"messageKey"`
	Sent       bool      `json:"sent"`
	CreatedAt  time.Time `json:"createdAt"`
}

const (
	MessageKeyGiftPending   = "giftPending"
	MessageKeyGiftConfirmed = "giftConfirmed"
)
