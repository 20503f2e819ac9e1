package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lahjaprojekti/lahja-go/internal/clock"
	"github.com/lahjaprojekti/lahja-go/internal/domain"
	"github.com/lahjaprojekti/lahja-go/internal/store"
	"github.com/lahjaprojekti/lahja-go/internal/store/memstore"
)

type fakeSender struct {
	sent    []string
	failFor map[string]bool
}

func (f *fakeSender) Send(_ context.Context, body, toNumber string) error {
	if f.failFor[toNumber] {
		return &DeliveryError{ToNumber: toNumber, Err: context.DeadlineExceeded}
	}
	f.sent = append(f.sent, toNumber)
	return nil
}

var testNow = time.Date(2026, 12, 5, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedMessage(t *testing.T, s store.Store, m *domain.Message) {
	t.Helper()
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.PutMessage(ctx, m)
	})
	require.NoError(t, err)
}

func unsent(t *testing.T, s store.Store) []*domain.Message {
	t.Helper()
	var msgs []*domain.Message
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		msgs, err = tx.ListUnsentMessages(ctx, testNow.Add(time.Hour))
		return err
	})
	require.NoError(t, err)
	return msgs
}

func TestSendPending(t *testing.T) {
	t.Parallel()

	t.Run("sends and marks", func(t *testing.T) {
		t.Parallel()

		s := memstore.New()
		sender := &fakeSender{}
		svc := New(s, sender, clock.NewFixed(testNow), discardLogger(), Config{Grace: 30 * time.Second})

		seedMessage(t, s, &domain.Message{ID: "m1", Body: "hei", ToNumber: "0401234567", CreatedAt: testNow.Add(-time.Minute)})

		n, err := svc.SendPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"+358401234567"}, sender.sent, "number normalized before dispatch")
		assert.Empty(t, unsent(t, s))
	})

	t.Run("grace keeps fresh messages queued", func(t *testing.T) {
		t.Parallel()

		s := memstore.New()
		sender := &fakeSender{}
		svc := New(s, sender, clock.NewFixed(testNow), discardLogger(), Config{Grace: 30 * time.Second})

		seedMessage(t, s, &domain.Message{ID: "old", Body: "hei", ToNumber: "0401234567", CreatedAt: testNow.Add(-time.Minute)})
		seedMessage(t, s, &domain.Message{ID: "fresh", Body: "hei", ToNumber: "0407654321", CreatedAt: testNow.Add(-10 * time.Second)})

		n, err := svc.SendPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		remaining := unsent(t, s)
		require.Len(t, remaining, 1)
		assert.Equal(t, "fresh", remaining[0].ID)
	})

	t.Run("delivery failure leaves message for next sweep", func(t *testing.T) {
		t.Parallel()

		s := memstore.New()
		sender := &fakeSender{failFor: map[string]bool{"+358401111111": true}}
		svc := New(s, sender, clock.NewFixed(testNow), discardLogger(), Config{Grace: 30 * time.Second})

		seedMessage(t, s, &domain.Message{ID: "bad", Body: "hei", ToNumber: "0401111111", CreatedAt: testNow.Add(-time.Minute)})
		seedMessage(t, s, &domain.Message{ID: "good", Body: "hei", ToNumber: "0402222222", CreatedAt: testNow.Add(-time.Minute)})

		n, err := svc.SendPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		remaining := unsent(t, s)
		require.Len(t, remaining, 1)
		assert.Equal(t, "bad", remaining[0].ID)
	})

	t.Run("unparseable number skipped", func(t *testing.T) {
		t.Parallel()

		s := memstore.New()
		sender := &fakeSender{}
		svc := New(s, sender, clock.NewFixed(testNow), discardLogger(), Config{Grace: 30 * time.Second})

		seedMessage(t, s, &domain.Message{ID: "junk", Body: "hei", ToNumber: "not-a-number", CreatedAt: testNow.Add(-time.Minute)})

		n, err := svc.SendPending(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, sender.sent)
	})
}
