package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/23skdu/field/internal/core"
)

// RedisBus carries notifications between daemons over Redis pub/sub, so a
// viewer connected to any node hears every publication tick.
type RedisBus struct {
	client redis.UniversalClient
	logger zerolog.Logger
}

func NewRedisBus(client redis.UniversalClient, logger zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, n core.Notification) error {
	payload, err := Encode(n)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel(n.Round), payload).Err()
}

// Relay forwards every round's notifications into dst until ctx is done.
func (b *RedisBus) Relay(ctx context.Context, dst Publisher) error {
	ps := b.client.PSubscribe(ctx, Channel("*"))
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n, err := Decode([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed notification")
				continue
			}
			if err := dst.Publish(ctx, n); err != nil {
				b.logger.Warn().Err(err).Msg("Relay publish failed")
			}
		}
	}
}
