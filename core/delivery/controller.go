package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"catalogue-ingester/core/broker"
	"catalogue-ingester/core/failure"
	"catalogue-ingester/core/logger"
	"catalogue-ingester/core/reconcile"

	"go.uber.org/zap"
)

// Reconciler processes one change batch. *reconcile.Reconciler satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context, batch *reconcile.ChangeBatch) (*reconcile.Outcome, error)
}

// FailureRecorder keeps an audit trail of failed keys.
type FailureRecorder interface {
	Record(ctx context.Context, topic string, batch *reconcile.ChangeBatch, outcome *reconcile.Outcome) error
}

// Options controls a Controller.
type Options struct {
	// Policy is PolicyAbort or PolicyDeadLetter. Empty means PolicyAbort.
	Policy string

	// FailureTopic receives failure reports under PolicyDeadLetter.
	FailureTopic string

	// Recorder, if set, receives every batch with failed keys.
	Recorder FailureRecorder
}

// Controller is the consumption loop.
type Controller struct {
	consumer  broker.Consumer
	publisher broker.Publisher
	routes    map[string]Reconciler
	opts      Options
	stats     *Stats
	log       *zap.Logger
}

// NewController creates a Controller. routes maps each consumed topic to the
// Reconciler bound to its handler.
func NewController(consumer broker.Consumer, publisher broker.Publisher, routes map[string]Reconciler, opts Options, log *zap.Logger) (*Controller, error) {
	policy, err := normalizePolicy(opts.Policy)
	if err != nil {
		return nil, err
	}
	opts.Policy = policy

	if policy == PolicyDeadLetter && opts.FailureTopic == "" {
		return nil, fmt.Errorf("policy %s requires a failure topic", PolicyDeadLetter)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("no topics routed")
	}

	return &Controller{
		consumer:  consumer,
		publisher: publisher,
		routes:    routes,
		opts:      opts,
		stats:     &Stats{},
		log:       log,
	}, nil
}

// Stats returns the controller counters.
func (c *Controller) Stats() *Stats {
	return c.stats
}

// Run receives and handles messages until ctx is cancelled, the consumer
// fails or a permanent failure aborts the loop. Cancellation is not an error.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("Consumer started", zap.Strings("topics", c.topics()), zap.String("policy", c.opts.Policy))

	for {
		d, err := c.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to receive message: %w", err)
		}

		// The in-flight batch is always finished and settled.
		if err := c.Handle(context.WithoutCancel(ctx), d); err != nil {
			return err
		}
	}
}

// Handle processes one delivery and settles it. It returns
// ErrPermanentFailure when the loop must stop.
func (c *Controller) Handle(ctx context.Context, d broker.Delivery) error {
	c.stats.received.Add(1)
	topic := d.Topic()
	log := logger.WithBatch(c.log, d.ID(), topic)

	// 1. Route and decode
	route, ok := c.routes[topic]
	if !ok {
		log.Error("No reconciler for topic")
		return c.settle(ctx, log, d, d.ID(), Decide(false, true, c.opts.Policy), d.Body())
	}

	batch, err := reconcile.DecodeChangeBatch(d.Body())
	if err != nil {
		log.Error("Undecodable message", zap.Error(err))
		return c.settle(ctx, log, d, d.ID(), Decide(false, true, c.opts.Policy), d.Body())
	}

	batchID := batch.ID
	if batchID == "" {
		batchID = d.ID()
	}
	log = logger.WithBatch(c.log, batchID, topic)
	log.Info("Batch received", zap.String("bucket", batch.BucketName), zap.Int("keys", batch.Len()))

	// 2. Reconcile
	outcome, publishErr := route.Reconcile(ctx, batch)
	if publishErr != nil {
		log.Error("Outbound message not published", zap.Error(publishErr))
	}
	c.count(outcome)

	temporary := outcome.HasFailures(failure.Temporary) || publishErr != nil
	permanent := outcome.HasFailures(failure.Permanent)

	// 3. Report failures
	var report []byte
	if temporary || permanent {
		report, err = json.Marshal(outcome.FailureReport(batch))
		if err != nil {
			return fmt.Errorf("failed to encode failure report: %w", err)
		}
		log.Warn("Batch has failures", zap.ByteString("report", report))

		if c.opts.Recorder != nil {
			if err := c.opts.Recorder.Record(ctx, topic, batch, outcome); err != nil {
				log.Error("Failed to record failures", zap.Error(err))
			}
		}
	}

	// 4. Settle
	return c.settle(ctx, log, d, batchID, Decide(temporary, permanent, c.opts.Policy), report)
}

// settle publishes the dead letter if required and acks or nacks d.
func (c *Controller) settle(ctx context.Context, log *zap.Logger, d broker.Delivery, batchID string, v Verdict, report []byte) error {
	if v.DeadLetter {
		if err := c.publisher.Publish(ctx, c.opts.FailureTopic, report); err != nil {
			log.Error("Failed to publish failure report", zap.String("failure_topic", c.opts.FailureTopic), zap.Error(err))
			// Keep the message so the report is not lost.
			v = Verdict{}
		}
	}

	var err error
	if v.Ack {
		err = d.Ack()
	} else {
		err = d.Nack()
	}
	if err != nil {
		// The broker redelivers unsettled messages; nothing else to do.
		log.Warn("Failed to settle message", zap.String("verdict", v.String()), zap.Error(err))
	}

	c.stats.settled(batchID, d.Topic(), v)
	log.Info("Message settled", zap.String("verdict", v.String()))

	if v.Abort {
		return fmt.Errorf("batch %s on %s: %w", batchID, d.Topic(), ErrPermanentFailure)
	}
	return nil
}

func (c *Controller) count(outcome *reconcile.Outcome) {
	s := outcome.Summary()
	c.stats.appliedKeys.Add(int64(s.Added + s.Updated + s.Deleted))
	c.stats.skippedKeys.Add(int64(s.Skipped))
	c.stats.temporaryKeys.Add(int64(s.Temporary))
	c.stats.permanentKeys.Add(int64(s.Permanent))
}

func (c *Controller) topics() []string {
	topics := make([]string, 0, len(c.routes))
	for topic := range c.routes {
		topics = append(topics, topic)
	}
	return topics
}

// IsPermanentFailure reports whether err stopped the loop because of a
// permanent failure.
func IsPermanentFailure(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}
