package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	kafkax "github.com/ariefcatur/go-shop-settlement/internal/kafka"
	"github.com/ariefcatur/go-shop-settlement/internal/orders"
	"github.com/ariefcatur/go-shop-settlement/internal/payment"
	"github.com/ariefcatur/go-shop-settlement/internal/redisx"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeProducer) Publish(key, value []byte, headers ...kafka.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, kafka.Message{Key: key, Value: value, Headers: headers})
	return nil
}

func testOrder() orders.Order {
	return orders.Order{
		ID:            "o-1",
		User:          "a@x.com",
		Items:         []orders.OrderItem{{ProductID: "P1", Size: "M", Quantity: 2, Price: decimal.NewFromInt(20)}},
		Total:         decimal.NewFromInt(40),
		Status:        orders.StatusPending,
		PaymentMethod: payment.MethodCOD,
	}
}

func TestPublisher_OrderPlaced(t *testing.T) {
	placed, changed := &fakeProducer{}, &fakeProducer{}
	p := NewPublisher(placed, changed, "settlement-api", zerolog.Nop())

	p.OrderPlaced(context.Background(), testOrder())

	require.Len(t, placed.msgs, 1)
	assert.Empty(t, changed.msgs)
	m := placed.msgs[0]
	assert.Equal(t, "o-1", string(m.Key))
	assert.Equal(t, orders.EventOrderPlaced, kafkax.Header(m, "x-event-type"))

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	assert.Equal(t, orders.EventOrderPlaced, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "settlement-api", env.Producer)
	assert.Equal(t, "o-1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	pl, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, pl.ItemCount)
	assert.True(t, decimal.NewFromInt(40).Equal(pl.Total))
}

func TestPublisher_StatusChanged(t *testing.T) {
	placed, changed := &fakeProducer{}, &fakeProducer{}
	p := NewPublisher(placed, changed, "settlement-api", zerolog.Nop())

	o := testOrder()
	o.Status = orders.StatusInTransit
	p.StatusChanged(context.Background(), o, orders.StatusPending)

	require.Len(t, changed.msgs, 1)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(changed.msgs[0].Value, &env))
	pl, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, pl.From)
	assert.Equal(t, orders.StatusInTransit, pl.To)
}

func TestPublisher_FailureIsSwallowed(t *testing.T) {
	p := NewPublisher(&fakeProducer{err: errors.New("full")}, &fakeProducer{}, "svc", zerolog.Nop())
	assert.NotPanics(t, func() { p.OrderPlaced(context.Background(), testOrder()) })
}

func envelopeMessage(t *testing.T, eventID, eventType string, payload any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(orders.Envelope{
		EventID:      eventID,
		EventType:    eventType,
		EventVersion: 1,
		Payload:      kafkax.MustMarshal(payload),
	})
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestProjector_InvalidatesReadCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	defer rdb.Close()
	ctx := context.Background()

	orderKey := fmt.Sprintf(redisx.KeyOrder, "o-1")
	require.NoError(t, mr.Set(redisx.KeyDashboard, "{}"))
	require.NoError(t, mr.Set(orderKey, "{}"))

	p := &Projector{Redis: rdb, Name: "projector", Log: zerolog.Nop()}
	msg := envelopeMessage(t, "ev-1", orders.EventOrderStatusChanged,
		orders.OrderStatusChangedPayload{OrderID: "o-1", From: orders.StatusPending, To: orders.StatusInTransit})

	require.NoError(t, p.Handle(ctx, msg))
	assert.False(t, mr.Exists(redisx.KeyDashboard))
	assert.False(t, mr.Exists(orderKey))
	assert.True(t, mr.Exists(fmt.Sprintf(redisx.KeyDedup, "projector", "ev-1")))
}

func TestProjector_DuplicateEventIsNoop(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	defer rdb.Close()
	ctx := context.Background()

	p := &Projector{Redis: rdb, Name: "projector", Log: zerolog.Nop()}
	msg := envelopeMessage(t, "ev-2", orders.EventOrderPlaced, orders.OrderPlacedPayload{OrderID: "o-2"})
	require.NoError(t, p.Handle(ctx, msg))

	// a report cached after the first delivery survives the redelivery
	require.NoError(t, mr.Set(redisx.KeyDashboard, "{}"))
	require.NoError(t, p.Handle(ctx, msg))
	assert.True(t, mr.Exists(redisx.KeyDashboard))
}

func TestProjector_SkipsGarbageAndUnknownTypes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	defer rdb.Close()
	require.NoError(t, mr.Set(redisx.KeyDashboard, "{}"))

	p := &Projector{Redis: rdb, Name: "projector", Log: zerolog.Nop()}
	assert.NoError(t, p.Handle(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.NoError(t, p.Handle(context.Background(), envelopeMessage(t, "ev-3", "SomethingElse", map[string]string{})))
	assert.True(t, mr.Exists(redisx.KeyDashboard))
}

func TestProjector_RedisDownIsRetried(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	defer rdb.Close()
	mr.Close()

	p := &Projector{Redis: rdb, Name: "projector", Log: zerolog.Nop()}
	msg := envelopeMessage(t, "ev-4", orders.EventOrderPlaced, orders.OrderPlacedPayload{OrderID: "o-4"})
	assert.Error(t, p.Handle(context.Background(), msg))
}
