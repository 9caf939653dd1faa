package broker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	// DriverAMQP selects the RabbitMQ driver.
	DriverAMQP = "amqp"
	// DriverPubSub selects the Google Cloud Pub/Sub driver.
	DriverPubSub = "pubsub"
)

// Delivery is one received message.
type Delivery interface {
	// Topic returns the topic the message was received on.
	Topic() string
	// ID returns the broker's identifier for the message, if any.
	ID() string
	// Body returns the raw message payload.
	Body() []byte
	// Ack acknowledges the message.
	Ack() error
	// Nack negatively acknowledges the message, requesting redelivery.
	Nack() error
}

// Consumer receives messages from a fixed set of topics.
type Consumer interface {
	// Receive blocks until a message arrives, the context ends or the
	// underlying connection fails.
	Receive(ctx context.Context) (Delivery, error)
	// Close stops consuming.
	Close() error
}

// Publisher sends messages to topics.
type Publisher interface {
	// Publish sends body to topic and waits for the broker to accept it.
	Publish(ctx context.Context, topic string, body []byte) error
	// Close flushes and releases the publisher.
	Close() error
}

// New connects the configured driver and subscribes to topics.
func New(ctx context.Context, cfg Config, topics []string, log *zap.Logger) (Consumer, Publisher, error) {
	switch cfg.Driver {
	case DriverAMQP:
		conn, err := DialAMQP(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		consumer, err := conn.Consume(topics)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return consumer, conn, nil
	case DriverPubSub:
		client, err := NewPubSubClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		consumer := client.Consume(topics)
		return consumer, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}

// LogPublisher logs messages instead of sending them.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher creates a publisher that writes every message to log.
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the message.
func (p *LogPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	p.log.Info("Publish", zap.String("topic", topic), zap.ByteString("body", body))
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
