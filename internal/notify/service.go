// Package notify owns the outbound SMS queue: message records are created
// by the lifecycle manager keyed by change-event id, and a periodic sweep
// here dispatches everything unsent through the external send capability.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lahjaprojekti/lahja-go/internal/clock"
	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/uow"
)

type Config struct {
	// Grace is how old a message record must be before the sweep picks it
	// up, batching near-simultaneous writes.
	Grace time.Duration
}

type Service struct {
	uow    *uow.UoW
	sender TextSender
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config
}

func New(s store.Store, sender TextSender, clk clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}

	return &Service{
		uow:    uow.NewUoW(s),
		sender: sender,
		clock:  clk,
		logger: logger,
		cfg:    cfg,
	}
}

// SendPending dispatches unsent messages older than the grace period. A
// delivery failure is logged and the record stays unsent for the next
// sweep; at-least-once delivery is acceptable because message creation is
// deduplicated upstream.
func (s *Service) SendPending(ctx context.Context) (int, error) {
	const op = "service.notify.SendPending"

	cutoff := s.clock.Now().Add(-s.cfg.Grace)

	var pending []*domain.Message
	err := s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		var err error
		pending, err = tx.ListUnsentMessages(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range pending {
		toNumber, err := NormalizePhone(msg.ToNumber)
		if err != nil {
			s.logger.Error("unsendable message, skipping", "message_id", msg.ID, "error", err)
			continue
		}

		if err := s.sender.Send(ctx, msg.Body, toNumber); err != nil {
			var de *DeliveryError
			if errors.As(err, &de) {
				s.logger.Error("message delivery failed", "message_id", msg.ID, "error", err)
				continue
			}
			return sent, fmt.Errorf("%s:%w", op, err)
		}

		if err := s.markSent(ctx, msg); err != nil {
			return sent, err
		}
		sent++
	}

	return sent, nil
}

func (s *Service) markSent(ctx context.Context, msg *domain.Message) error {
	const op = "service.notify.markSent"

	return s.uow.Do(ctx, func(ctx context.Context, tx store.Tx, _ func(uow.AfterCommit)) error {
		msg.Sent = true
		if err := tx.PutMessage(ctx, msg); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	})
}
