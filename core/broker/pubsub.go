package broker

import (
	"context"
	"fmt"
	"sync"

	"catalogue-ingester/core/failure"

	"cloud.google.com/go/pubsub/v2"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PubSubClient is a Google Cloud Pub/Sub client used for both consuming
// and publishing.
type PubSubClient struct {
	log    *zap.Logger
	cfg    Config
	client *pubsub.Client

	mu         sync.RWMutex
	publishers map[string]*pubsub.Publisher
}

// NewPubSubClient creates a client for cfg.ProjectID.
func NewPubSubClient(ctx context.Context, cfg Config, log *zap.Logger) (*PubSubClient, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", classifyGRPC(err))
	}

	return &PubSubClient{
		log:        log,
		cfg:        cfg,
		client:     client,
		publishers: make(map[string]*pubsub.Publisher),
	}, nil
}

// Consume starts receiving from the subscription "<subscription>-<topic>"
// for every topic.
func (p *PubSubClient) Consume(topics []string) *PubSubConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := &PubSubConsumer{
		deliveries: make(chan *pubsubDelivery),
		errors:     make(chan error, len(topics)),
		cancel:     cancel,
	}

	for _, topic := range topics {
		sub := p.client.Subscriber(p.cfg.Subscription + "-" + topic)
		if p.cfg.Prefetch > 0 {
			sub.ReceiveSettings.MaxOutstandingMessages = p.cfg.Prefetch
		}

		consumer.wg.Add(1)
		go func(topic string) {
			defer consumer.wg.Done()
			err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
				consumer.dispatch(ctx, topic, msg)
			})
			if err != nil && ctx.Err() == nil {
				p.log.Error("Subscription stopped", zap.String("topic", topic), zap.Error(err))
				consumer.errors <- fmt.Errorf("subscription for %s stopped: %w", topic, classifyGRPC(err))
			}
		}(topic)
	}

	return consumer
}

// Publish sends body to topic and waits for the server to accept it.
func (p *PubSubClient) Publish(ctx context.Context, topic string, body []byte) error {
	publisher := p.publisher(topic)
	result := publisher.Publish(ctx, &pubsub.Message{Data: body})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, classifyGRPC(err))
	}
	return nil
}

// publisher returns the cached publisher for topic, creating it if necessary.
func (p *PubSubClient) publisher(topic string) *pubsub.Publisher {
	p.mu.RLock()
	if publisher, ok := p.publishers[topic]; ok {
		p.mu.RUnlock()
		return publisher
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have created it while we waited for the write lock.
	if publisher, ok := p.publishers[topic]; ok {
		return publisher
	}

	publisher := p.client.Publisher(topic)
	p.publishers[topic] = publisher
	return publisher
}

// Close flushes the publishers and closes the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for topic, publisher := range p.publishers {
		publisher.Stop()
		delete(p.publishers, topic)
	}
	p.mu.Unlock()

	return errs.Wrap(p.client.Close())
}

// PubSubConsumer turns the callback-driven subscriptions into a pull API.
// The callback for a message blocks until the message is settled.
type PubSubConsumer struct {
	deliveries chan *pubsubDelivery
	errors     chan error
	cancel     context.CancelFunc
	once       sync.Once
	wg         sync.WaitGroup
}

func (c *PubSubConsumer) dispatch(ctx context.Context, topic string, msg *pubsub.Message) {
	d := &pubsubDelivery{topic: topic, msg: msg, settled: make(chan struct{})}
	select {
	case c.deliveries <- d:
	case <-ctx.Done():
		msg.Nack()
		return
	}

	select {
	case <-d.settled:
	case <-ctx.Done():
		// Shutting down with the message in flight. Nack is a no-op if the
		// message was settled concurrently.
		msg.Nack()
	}
}

// Receive returns the next delivery from any subscription.
func (c *PubSubConsumer) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-c.deliveries:
		return d, nil
	case err := <-c.errors:
		return nil, err
	}
}

// Close stops every subscription and waits for the receivers to return.
func (c *PubSubConsumer) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

type pubsubDelivery struct {
	topic   string
	msg     *pubsub.Message
	once    sync.Once
	settled chan struct{}
}

func (d *pubsubDelivery) Topic() string { return d.topic }
func (d *pubsubDelivery) ID() string    { return d.msg.ID }
func (d *pubsubDelivery) Body() []byte  { return d.msg.Data }

func (d *pubsubDelivery) Ack() error {
	d.once.Do(func() {
		d.msg.Ack()
		close(d.settled)
	})
	return nil
}

func (d *pubsubDelivery) Nack() error {
	d.once.Do(func() {
		d.msg.Nack()
		close(d.settled)
	})
	return nil
}

// classifyGRPC tags Pub/Sub errors by their gRPC status code.
func classifyGRPC(err error) error {
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return failure.BrokerTransient.Wrap(err)
	case codes.NotFound, codes.PermissionDenied, codes.InvalidArgument, codes.FailedPrecondition, codes.Unauthenticated:
		return failure.BrokerPermanent.Wrap(err)
	default:
		return err
	}
}
