package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"catalogue-ingester/core/failure"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPConnection is a RabbitMQ connection used for both consuming and
// publishing. Consuming and publishing use separate channels.
type AMQPConnection struct {
	log  *zap.Logger
	cfg  Config
	conn *amqp.Connection

	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool
}

// DialAMQP connects to the broker at cfg.URL.
func DialAMQP(cfg Config, log *zap.Logger) (*AMQPConnection, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", classifyAMQP(err))
	}

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", classifyAMQP(err))
	}

	if cfg.Exchange != "" {
		if err := pub.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, classifyAMQP(err))
		}
	}

	return &AMQPConnection{
		log:      log,
		cfg:      cfg,
		conn:     conn,
		pub:      pub,
		declared: make(map[string]bool),
	}, nil
}

// Consume subscribes to one durable queue per topic.
func (c *AMQPConnection) Consume(topics []string) (*AMQPConsumer, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consume channel: %w", classifyAMQP(err))
	}

	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set qos: %w", classifyAMQP(err))
	}

	delay := c.cfg.retryDelay()
	consumer := &AMQPConsumer{
		log:        c.log,
		ch:         ch,
		deliveries: make(chan *amqpDelivery),
		closed:     c.conn.NotifyClose(make(chan *amqp.Error, 1)),
		done:       make(chan struct{}),
		requeue:    delay <= 0,
	}

	for _, topic := range topics {
		if delay > 0 {
			if _, err := ch.QueueDeclare(retryQueue(topic), true, false, false, false, retryQueueArgs(topic, delay)); err != nil {
				_ = ch.Close()
				return nil, fmt.Errorf("failed to declare retry queue for %s: %w", topic, classifyAMQP(err))
			}
			c.log.Debug("Retry queue declared", zap.String("topic", topic), zap.Duration("delay", delay))
		}
		if err := c.declareQueue(ch, topic, queueArgs(topic, delay)); err != nil {
			_ = ch.Close()
			return nil, err
		}

		tag := c.cfg.Subscription + "-" + topic
		msgs, err := ch.Consume(topic, tag, false, false, false, false, nil)
		if err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("failed to consume %s: %w", topic, classifyAMQP(err))
		}

		consumer.wg.Add(1)
		go consumer.forward(topic, msgs)
	}

	return consumer, nil
}

// declareQueue declares a durable queue named topic and binds it to the
// configured exchange.
func (c *AMQPConnection) declareQueue(ch *amqp.Channel, topic string, args amqp.Table) error {
	if _, err := ch.QueueDeclare(topic, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, classifyAMQP(err))
	}
	if c.cfg.Exchange != "" {
		if err := ch.QueueBind(topic, topic, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", topic, classifyAMQP(err))
		}
	}
	return nil
}

func retryQueue(topic string) string { return topic + ".retry" }

// queueArgs returns the arguments of the consumed queue for topic. With a
// retry delay, rejected messages are dead-lettered to the retry queue.
func queueArgs(topic string, delay time.Duration) amqp.Table {
	if delay <= 0 {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": retryQueue(topic),
	}
}

// retryQueueArgs returns the arguments of the retry queue for topic.
// Messages expire after delay and are routed back to topic.
func retryQueueArgs(topic string, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": topic,
	}
}

// Publish sends body to topic as a persistent JSON message.
func (c *AMQPConnection) Publish(ctx context.Context, topic string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// With the default exchange the routing key is the queue name, so the
	// queue must exist or the message is silently dropped.
	if c.cfg.Exchange == "" && !c.declared[topic] {
		if err := c.declareQueue(c.pub, topic, nil); err != nil {
			return err
		}
		c.declared[topic] = true
	}

	err := c.pub.Publish(c.cfg.Exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, classifyAMQP(err))
	}
	return nil
}

// Close closes the connection and every channel opened on it.
func (c *AMQPConnection) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

// AMQPConsumer fans the per-queue delivery channels into one.
type AMQPConsumer struct {
	log        *zap.Logger
	ch         *amqp.Channel
	deliveries chan *amqpDelivery
	closed     chan *amqp.Error
	done       chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
	// requeue is false when rejected messages go through a retry queue.
	requeue bool
}

func (c *AMQPConsumer) forward(topic string, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()
	for msg := range msgs {
		select {
		case c.deliveries <- &amqpDelivery{topic: topic, msg: msg, requeue: c.requeue}:
		case <-c.done:
			// Unacked deliveries are requeued by the broker when the channel closes.
			return
		}
	}
	c.log.Debug("Delivery channel closed", zap.String("topic", topic))
}

// Receive returns the next delivery from any subscribed queue.
func (c *AMQPConsumer) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-c.deliveries:
		return d, nil
	case amqpErr, ok := <-c.closed:
		if !ok || amqpErr == nil {
			return nil, failure.BrokerTransient.New("amqp connection closed")
		}
		return nil, fmt.Errorf("amqp connection lost: %w", classifyAMQP(amqpErr))
	}
}

// Close cancels the consumers and closes the channel.
func (c *AMQPConsumer) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ch.Close()
		c.wg.Wait()
	})
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

type amqpDelivery struct {
	topic   string
	msg     amqp.Delivery
	requeue bool
}

func (d *amqpDelivery) Topic() string { return d.topic }
func (d *amqpDelivery) Body() []byte  { return d.msg.Body }

func (d *amqpDelivery) ID() string {
	if d.msg.MessageId != "" {
		return d.msg.MessageId
	}
	return strconv.FormatUint(d.msg.DeliveryTag, 10)
}

func (d *amqpDelivery) Ack() error {
	if err := d.msg.Ack(false); err != nil {
		return classifyAMQP(err)
	}
	return nil
}

func (d *amqpDelivery) Nack() error {
	if err := d.msg.Nack(false, d.requeue); err != nil {
		return classifyAMQP(err)
	}
	return nil
}

// classifyAMQP tags AMQP errors. A closed channel or connection, and any
// error the server flags as recoverable, is temporary.
func classifyAMQP(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, amqp.ErrClosed) {
		return failure.BrokerTransient.Wrap(err)
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		if amqpErr.Recover {
			return failure.BrokerTransient.Wrap(err)
		}
		return failure.BrokerPermanent.Wrap(err)
	}

	// Dial errors (refused, timeouts) are left to failure.Classify.
	return err
}
