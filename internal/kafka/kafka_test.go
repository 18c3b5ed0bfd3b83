package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "order.placed", 16, zerolog.Nop())
	p.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish([]byte("k"), []byte("v"), EventHeaders("OrderPlaced", 1)...))
	}
	p.Close()
	p.WaitClosed()

	assert.Len(t, w.msgs, 5)
	assert.True(t, w.closed)
	assert.Equal(t, "OrderPlaced", Header(w.msgs[0], "x-event-type"))
	assert.Equal(t, "1", Header(w.msgs[0], "x-event-version"))
}

func TestProducer_FullBufferDoesNotBlock(t *testing.T) {
	p := newProducer(&fakeWriter{}, "t", 1, zerolog.Nop())
	// not started, so the inbox fills
	require.NoError(t, p.Publish(nil, []byte("a")))
	assert.ErrorIs(t, p.Publish(nil, []byte("b")), ErrBufferFull)
}

func TestProducer_WriteErrorsAreAbsorbed(t *testing.T) {
	w := &fakeWriter{fail: true}
	p := newProducer(w, "t", 4, zerolog.Nop())
	p.Start()
	require.NoError(t, p.Publish(nil, []byte("a")))
	p.Close()
	p.WaitClosed()
	assert.Empty(t, w.msgs)
}

func TestProducer_PublishAfterCloseReturnsError(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "t", 4, zerolog.Nop())
	p.Start()
	require.NoError(t, p.Publish(nil, []byte("a")))
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.Publish(nil, []byte("late")), ErrClosed)
	p.WaitClosed()
	assert.Len(t, w.msgs, 1)
}

func TestProducer_ConcurrentPublishAndClose(t *testing.T) {
	p := newProducer(&fakeWriter{}, "t", 64, zerolog.Nop())
	p.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := p.Publish(nil, []byte("v"))
				if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrBufferFull) {
					t.Errorf("unexpected publish error: %v", err)
				}
			}
		}()
	}
	p.Close()
	wg.Wait()
	p.WaitClosed()
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		f.mu.Lock()
		if len(f.queue) > 0 {
			m := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return m, nil
		}
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{}
	for i := int64(0); i < 6; i++ {
		r.queue = append(r.queue, kafka.Message{Offset: i})
	}
	c := newConsumer(r, 3, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			if m.Offset%2 == 1 {
				return errors.New("poison")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []int64{0, 2, 4}, r.commits())
}
