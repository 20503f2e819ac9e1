package feed

import (
	"context"
	"log/slog"
)

type Handler func(ctx context.Context, ev Event) error

// Router dispatches events to handlers by collection, mirroring the
// onCreate/onWrite/onDelete trigger surface. A create event reaches both
// OnCreate and OnWrite handlers; an update only OnWrite; a delete only
// OnDelete.
type Router struct {
	logger  *slog.Logger
	creates map[string][]Handler
	writes  map[string][]Handler
	deletes map[string][]Handler
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		logger:  logger,
		creates: make(map[string][]Handler),
		writes:  make(map[string][]Handler),
		deletes: make(map[string][]Handler),
	}
}

func (r *Router) OnCreate(collection string, h Handler) {
	r.creates[collection] = append(r.creates[collection], h)
}

func (r *Router) OnWrite(collection string, h Handler) {
	r.writes[collection] = append(r.writes[collection], h)
}

func (r *Router) OnDelete(collection string, h Handler) {
	r.deletes[collection] = append(r.deletes[collection], h)
}

// Dispatch runs every matching handler. A handler failure is logged and does
// not stop the others: one event is one unit of work per handler, and a
// failed handler will see the event again on redelivery.
func (r *Router) Dispatch(ctx context.Context, ev Event) {
	var hs []Handler
	switch ev.Kind {
	case KindCreate:
		hs = append(hs, r.creates[ev.Collection]...)
		hs = append(hs, r.writes[ev.Collection]...)
	case KindUpdate:
		hs = append(hs, r.writes[ev.Collection]...)
	case KindDelete:
		hs = append(hs, r.deletes[ev.Collection]...)
	}

	for _, h := range hs {
		if err := h(ctx, ev); err != nil {
			r.logger.Error("event handler failed",
				"event_id", ev.ID,
				"collection", ev.Collection,
				"doc_id", ev.DocID,
				"kind", ev.Kind,
				"error", err,
			)
		}
	}
}
