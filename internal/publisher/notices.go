package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/reconcile"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "storefront-stock-notices"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NoticePublisher forwards stock notices to Kafka, one message per notice
// keyed by product id so notices for a product stay ordered.
type NoticePublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewNoticePublisher(topic string, brokers ...string) *NoticePublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &NoticePublisher{writer: w, now: time.Now}
}

type noticeMessage struct {
	reconcile.Notice
	EmittedAt time.Time `json:"emittedAt"`
}

func (p *NoticePublisher) Notify(ctx context.Context, notices ...reconcile.Notice) error {
	if len(notices) == 0 {
		return nil
	}
	emitted := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(notices))
	for _, n := range notices {
		payload, err := json.Marshal(noticeMessage{Notice: n, EmittedAt: emitted})
		if err != nil {
			return fmt.Errorf("failed to marshal notice for %s: %w", n.ProductID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(n.ProductID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "notice_kind", Value: []byte(n.Kind)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d notices: %w", len(msgs), err)
	}
	return nil
}

func (p *NoticePublisher) Close() error {
	return p.writer.Close()
}
