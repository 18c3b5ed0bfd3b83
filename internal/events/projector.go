package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-shop-settlement/internal/dashboard"
	kafkax "github.com/ariefcatur/go-shop-settlement/internal/kafka"
	"github.com/ariefcatur/go-shop-settlement/internal/orders"
	"github.com/ariefcatur/go-shop-settlement/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Projector keeps the redis read caches honest: every order event drops the
// cached dashboard report and the cached tracker view of that order.
type Projector struct {
	Redis *redis.Client
	Name  string // dedup namespace, one per consumer group
	Log   zerolog.Logger
}

// Handle is installed as the consumer handler. Returning an error leaves the
// offset uncommitted so the message is redelivered.
func (p *Projector) Handle(ctx context.Context, m kafka.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// a malformed message will never decode; commit it away
		p.Log.Error().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("undecodable event skipped")
		return nil
	}

	var orderID string
	switch env.EventType {
	case orders.EventOrderPlaced:
		pl, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			p.Log.Error().Err(err).Str("event_id", env.EventID).Msg("undecodable payload skipped")
			return nil
		}
		orderID = pl.OrderID
	case orders.EventOrderStatusChanged:
		pl, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			p.Log.Error().Err(err).Str("event_id", env.EventID).Msg("undecodable payload skipped")
			return nil
		}
		orderID = pl.OrderID
	default:
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, p.Name, env.EventID)
	if seen, _ := redisx.Exists(ctx, p.Redis, dkey); seen {
		return nil
	}

	if err := dashboard.Invalidate(ctx, p.Redis); err != nil {
		return err
	}
	if err := p.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrder, orderID)).Err(); err != nil {
		return err
	}
	// marked only after the work succeeded, so a failure is retried
	if err := p.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err(); err != nil {
		p.Log.Warn().Err(err).Str("event_id", env.EventID).Msg("dedup mark failed")
	}

	p.Log.Info().Str("event_type", env.EventType).Str("order_id", orderID).Msg("read caches invalidated")
	return nil
}
