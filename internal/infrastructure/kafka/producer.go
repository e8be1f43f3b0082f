package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/order-fulfillment/internal/outbox"
)

// Producer publishes outbox envelopes to one topic. Messages are keyed by
// aggregate id so all events of an order land on the same partition and
// keep their relative order; consumers de-duplicate on the envelope's
// event id.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, env outbox.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	key := env.AggregateID
	if key == "" {
		key = env.EventID.String()
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  env.OccurredAt,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
