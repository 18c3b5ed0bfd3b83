// Package events turns committed order changes into kafka envelopes and
// projects them back into the redis read caches.
package events

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-shop-settlement/internal/kafka"
	"github.com/ariefcatur/go-shop-settlement/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Producer interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// Publisher implements orders.Notifier. Publish failures are logged, never returned.
type Publisher struct {
	placed  Producer
	changed Producer
	service string
	log     zerolog.Logger
}

func NewPublisher(placed, changed Producer, service string, log zerolog.Logger) *Publisher {
	return &Publisher{placed: placed, changed: changed, service: service, log: log}
}

func (p *Publisher) OrderPlaced(ctx context.Context, o orders.Order) {
	payload := orders.OrderPlacedPayload{
		OrderID:       o.ID,
		User:          o.User,
		Status:        o.Status,
		PaymentMethod: string(o.PaymentMethod),
		Total:         o.Total,
		ItemCount:     len(o.Items),
	}
	p.publish(ctx, p.placed, orders.EventOrderPlaced, o.ID, payload)
}

func (p *Publisher) StatusChanged(ctx context.Context, o orders.Order, from orders.Status) {
	payload := orders.OrderStatusChangedPayload{OrderID: o.ID, User: o.User, From: from, To: o.Status}
	p.publish(ctx, p.changed, orders.EventOrderStatusChanged, o.ID, payload)
}

func (p *Publisher) publish(ctx context.Context, to Producer, eventType, orderID string, payload any) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	err := to.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, ev.EventVersion)...)
	if err != nil {
		p.log.Error().Err(err).Str("event_type", eventType).Str("order_id", orderID).Msg("event dropped")
	}
}
