// Package redisfeed is the Redis pub/sub implementation of feed.Bus, used
// when handlers run in a separate process from the writers.
package redisfeed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/lahjaprojekti/lahja-go/internal/feed"
	redisx "github.com/lahjaprojekti/lahja-go/internal/redis"
)

type Bus struct {
	rdb     *redis.Client
	channel string
}

func New(rdb *redis.Client) *Bus {
	return &Bus{
		rdb:     rdb,
		channel: redisx.ChannelDocsChanged(),
	}
}

func (b *Bus) Publish(ctx context.Context, ev feed.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *Bus) Subscribe(ctx context.Context, fn feed.Subscriber) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev feed.Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.Collection != "" {
				fn(ctx, ev)
			}
		}
	}
}
