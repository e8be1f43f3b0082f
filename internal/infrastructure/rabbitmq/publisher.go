package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/example/order-fulfillment/internal/outbox"
)

const (
	connectRetries = 5
	connectDelay   = 2 * time.Second
)

// Publisher delivers outbox envelopes to a durable topic exchange.
// Deliveries are persistent and carry the event id as MessageId, so any
// queue bound to the exchange can de-duplicate. Publish failures go
// straight back to the relay, which owns retries and backoff.
type Publisher struct {
	url      string
	exchange string
	logger   *logrus.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewPublisher(url, exchange string, logger *logrus.Logger) *Publisher {
	return &Publisher{url: url, exchange: exchange, logger: logger}
}

// Connect dials the broker and declares the exchange, retrying a few times
// so the binary survives a broker that is still starting up.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for i := 0; i < connectRetries; i++ {
		if err = p.connect(); err == nil {
			p.logger.WithField("exchange", p.exchange).Info("[RabbitMQ] connected")
			return nil
		}
		p.logger.WithError(err).Warnf("[RabbitMQ] connection failed (attempt %d/%d)", i+1, connectRetries)
		if i < connectRetries-1 {
			time.Sleep(connectDelay)
		}
	}
	return fmt.Errorf("connect to RabbitMQ: %w", err)
}

// connect must be called with the mutex held.
func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	err = channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return err
	}
	p.conn = conn
	p.channel = channel
	return nil
}

func (p *Publisher) Publish(ctx context.Context, env outbox.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return fmt.Errorf("reconnect to RabbitMQ: %w", err)
		}
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return p.channel.Publish(
		p.exchange,
		routingKey(env.EventType),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    env.EventID.String(),
			Timestamp:    env.OccurredAt,
			Headers: amqp.Table{
				"event_type":   env.EventType,
				"aggregate_id": env.AggregateID,
			},
		},
	)
}

// routingKey shapes keys like "fulfillment.orderconfirmed" so consumers
// can bind per event family with wildcards.
func routingKey(eventType string) string {
	return "fulfillment." + strings.ToLower(eventType)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var closeErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			closeErr = err
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		p.conn = nil
	}
	return closeErr
}
