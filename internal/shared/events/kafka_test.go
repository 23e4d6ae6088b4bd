package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// gatedWriter 在 gate 关闭前阻塞每次写入，模拟不可达的 broker
type gatedWriter struct {
	gate chan struct{}

	mu     sync.Mutex
	keys   []string
	closed bool
}

func (w *gatedWriter) WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error {
	select {
	case <-w.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		w.keys = append(w.keys, string(m.Key))
	}
	return nil
}

func (w *gatedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaPublishDoesNotWaitForBroker(t *testing.T) {
	w := &gatedWriter{gate: make(chan struct{})}
	p := newKafkaPublisher(w, zap.NewNop(), 8)

	start := time.Now()
	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, p.Publish(context.Background(), Event{Type: OrderStatusChanged, EntityID: id}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(w.gate)
	require.NoError(t, p.Close())
	assert.Equal(t, []string{"o1", "o2", "o3"}, w.keys)
	assert.True(t, w.closed)

	assert.ErrorIs(t, p.Publish(context.Background(), Event{EntityID: "o4"}), io.ErrClosedPipe)
	assert.NoError(t, p.Close())
}

func TestKafkaPublishQueueFull(t *testing.T) {
	w := &gatedWriter{gate: make(chan struct{})}
	p := newKafkaPublisher(w, zap.NewNop(), 1)
	p.timeout = time.Second

	var dropped error
	for i := 0; i < 4 && dropped == nil; i++ {
		dropped = p.Publish(context.Background(), Event{EntityID: "o1"})
	}
	assert.ErrorIs(t, dropped, ErrPublishQueueFull)

	close(w.gate)
	require.NoError(t, p.Close())
}

func TestKafkaWriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := &gatedWriter{gate: make(chan struct{})}
	p := newKafkaPublisher(w, zap.New(core), 4)
	p.timeout = 10 * time.Millisecond

	require.NoError(t, p.Publish(context.Background(), Event{EntityID: "o1"}))
	require.NoError(t, p.Close())
	assert.Equal(t, 1, logs.FilterMessage("Failed to write events").Len())
	assert.Empty(t, w.keys)
}

func TestNewWriterIsAsync(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := newWriter([]string{"localhost:9092"}, "production.events", zap.New(core))

	assert.True(t, w.Async)
	assert.LessOrEqual(t, w.BatchTimeout, 50*time.Millisecond)
	require.NotNil(t, w.Completion)

	w.Completion([]kafkaGo.Message{{Key: []byte("o1")}}, errors.New("broker down"))
	w.Completion([]kafkaGo.Message{{Key: []byte("o2")}}, nil)
	assert.Equal(t, 1, logs.FilterMessage("Kafka delivery failed").Len())
}
