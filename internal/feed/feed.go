// Package feed models the document change notifications the core reacts to.
// Delivery is at-least-once; every handler is idempotent, keyed either by
// the event id or by recomputing from current state.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Store collections the core subscribes to.
const (
	CollectionSlots        = "slots"
	CollectionGifts        = "gifts"
	CollectionReservations = "reservations"
	CollectionArtists      = "artists"
	CollectionAppStates    = "appstates"
)

// Event is one document change. Before and After are JSON snapshots of the
// document around the change; Before is empty on create, After on delete.
type Event struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	DocID      string          `json:"docId"`
	Kind       Kind            `json:"kind"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	TsUnix     int64           `json:"ts_unix"`
}

// NewEvent builds an event with a fresh id, snapshotting before and after.
// Pass nil for the missing side of a create or delete.
func NewEvent(collection, docID string, kind Kind, before, after any) (Event, error) {
	ev := Event{
		ID:         uuid.New().String(),
		Collection: collection,
		DocID:      docID,
		Kind:       kind,
		TsUnix:     time.Now().Unix(),
	}

	var err error
	if before != nil {
		if ev.Before, err = json.Marshal(before); err != nil {
			return Event{}, fmt.Errorf("feed.NewEvent: encode before: %w", err)
		}
	}
	if after != nil {
		if ev.After, err = json.Marshal(after); err != nil {
			return Event{}, fmt.Errorf("feed.NewEvent: encode after: %w", err)
		}
	}

	return ev, nil
}

// DecodeBefore unmarshals the before snapshot into v, reporting whether a
// snapshot was present.
func (e Event) DecodeBefore(v any) (bool, error) {
	if len(e.Before) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(e.Before, v)
}

func (e Event) DecodeAfter(v any) (bool, error) {
	if len(e.After) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(e.After, v)
}

// Stage appends a new event to events, for services that collect the
// changes made inside a transaction and publish them after commit.
func Stage(events *[]Event, collection, docID string, kind Kind, before, after any) error {
	ev, err := NewEvent(collection, docID, kind, before, after)
	if err != nil {
		return err
	}
	*events = append(*events, ev)
	return nil
}

// PublishAll delivers staged events over bus. A failed publish is logged
// and does not stop the remaining events: the store stays the source of
// truth, and missed deliveries are recovered by the reconciliation sweep
// and the full-recompute handlers.
func PublishAll(ctx context.Context, bus Bus, events ...Event) {
	for _, ev := range events {
		if err := bus.Publish(ctx, ev); err != nil {
			slog.Error("publish change event",
				"collection", ev.Collection,
				"doc_id", ev.DocID,
				"kind", ev.Kind,
				"error", err)
		}
	}
}

// Subscriber consumes events delivered by a Bus.
type Subscriber func(ctx context.Context, ev Event)

// Bus transports events between writers and the subscribed handlers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe blocks, delivering events to fn until ctx is done.
	Subscribe(ctx context.Context, fn Subscriber) error
}
