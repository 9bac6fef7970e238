package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/reconcile"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"gotest.tools/v3/assert"
)

type mockWriter struct {
	m    sync.RWMutex
	msgs []kafkaGo.Message
	err  error
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error { return nil }

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func outOfStock(id string) reconcile.Notice {
	n, _ := reconcile.ClassifyCart(domain.StockChange{ProductID: id, Name: "Mug", OldStock: 3, NewStock: 0})
	return n
}

func TestNotify_OneMessagePerNotice(t *testing.T) {
	w := &mockWriter{}
	p := &NoticePublisher{writer: w, now: func() time.Time { return fixedNow }}

	err := p.Notify(context.Background(), outOfStock("P1"), outOfStock("P2"))

	assert.NilError(t, err)
	assert.Equal(t, len(w.msgs), 2)
	assert.Equal(t, string(w.msgs[0].Key), "P1")
	assert.Equal(t, string(w.msgs[1].Key), "P2")
	assert.Equal(t, w.msgs[0].Headers[0].Key, "notice_kind")
	assert.Equal(t, string(w.msgs[0].Headers[0].Value), string(reconcile.OutOfStock))

	var payload map[string]any
	assert.NilError(t, json.Unmarshal(w.msgs[0].Value, &payload))
	assert.Equal(t, payload["severity"], "critical")
	assert.Equal(t, payload["source"], "cart")
	assert.Equal(t, payload["emittedAt"], "2025-03-01T12:00:00Z")
}

func TestNotify_Empty(t *testing.T) {
	w := &mockWriter{err: errors.New("should not be called")}
	p := &NoticePublisher{writer: w, now: time.Now}

	assert.NilError(t, p.Notify(context.Background()))
}

func TestNotify_WriterError(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	p := &NoticePublisher{writer: w, now: time.Now}

	err := p.Notify(context.Background(), outOfStock("P1"))

	assert.ErrorContains(t, err, "leader not available")
}

func setupKafka(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestNoticePublisher_WritesToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	brokerAddr := setupKafka(t)
	createTopic(t, brokerAddr, DefaultTopic)
	time.Sleep(5 * time.Second)

	p := NewNoticePublisher(DefaultTopic, brokerAddr)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, p.Notify(ctx, outOfStock("P42")))

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    DefaultTopic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)

	assert.Equal(t, string(msg.Key), "P42")
	var notice reconcile.Notice
	assert.NilError(t, json.Unmarshal(msg.Value, &notice))
	assert.Equal(t, notice.Kind, reconcile.OutOfStock)
	assert.Equal(t, notice.Severity, reconcile.Critical)
}
