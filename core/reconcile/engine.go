package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"catalogue-ingester/core/failure"
	"catalogue-ingester/core/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options controls a Reconciler.
type Options struct {
	// OutputBucket is where actions without a bucket write and the bucket
	// named in outbound messages.
	OutputBucket string

	// OutputTopic receives the outbound change message. Empty disables it.
	OutputTopic string

	// Workers bounds how many keys are processed at once. Values below 1
	// mean sequential processing.
	Workers int
}

// Reconciler processes change batches with one Handler.
type Reconciler struct {
	handler   Handler
	store     storage.ObjectStore
	publisher Publisher
	executor  *Executor
	opts      Options
	log       *zap.Logger
}

// NewReconciler creates a Reconciler. store is used both to fetch inbound
// objects and to apply actions; publisher receives MessageEmit actions and
// the outbound change message.
func NewReconciler(handler Handler, store storage.ObjectStore, publisher Publisher, opts Options, log *zap.Logger) *Reconciler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Reconciler{
		handler:   handler,
		store:     store,
		publisher: publisher,
		executor:  NewExecutor(store, publisher, opts.OutputBucket, log),
		opts:      opts,
		log:       log,
	}
}

// pendingKey is a key of one pass that transformed successfully.
type pendingKey struct {
	key  string
	path string
}

// Reconcile processes every key of batch and publishes the outbound change
// message. Key failures are recorded in the returned Outcome, never returned
// as errors. The error is non-nil only when the outbound message could not
// be published; the Outcome is valid either way.
func (r *Reconciler) Reconcile(ctx context.Context, batch *ChangeBatch) (*Outcome, error) {
	outcome := NewOutcome()

	// 1. Added, then updated, then deleted
	for _, ct := range ChangeTypes {
		r.runPass(ctx, batch, ct, outcome)
	}

	summary := outcome.Summary()
	r.log.Info("Batch reconciled",
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("deleted", summary.Deleted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("temporary_failures", summary.Temporary),
		zap.Int("permanent_failures", summary.Permanent))

	// 2. Emit what actually changed
	if r.opts.OutputTopic == "" || !outcome.HasApplied() {
		return outcome, nil
	}

	body, err := json.Marshal(outcome.OutboundBatch(batch, r.opts.OutputBucket))
	if err != nil {
		return outcome, fmt.Errorf("failed to encode outbound batch: %w", err)
	}
	if err := r.publisher.Publish(ctx, r.opts.OutputTopic, body); err != nil {
		return outcome, fmt.Errorf("failed to publish outbound batch: %w", err)
	}

	return outcome, nil
}

// runPass processes the keys of one change type on a bounded worker pool and
// returns once all of them are recorded.
func (r *Reconciler) runPass(ctx context.Context, batch *ChangeBatch, ct ChangeType, outcome *Outcome) {
	pending := r.prepare(batch, ct, outcome)
	if len(pending) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for _, p := range pending {
		g.Go(func() error {
			r.processKey(ctx, batch, ct, p.key, p.path, outcome)
			return nil
		})
	}
	_ = g.Wait()
}

// prepare transforms the keys of one change type. Duplicate keys are dropped
// and keys that fail to transform are recorded immediately. TransformKey is
// injective for a fixed source and target, so the remaining keys have
// distinct output keys and may run concurrently.
func (r *Reconciler) prepare(batch *ChangeBatch, ct ChangeType, outcome *Outcome) []pendingKey {
	keys := batch.Keys(ct)
	pending := make([]pendingKey, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))

	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		path, err := TransformKey(key, batch.Source, batch.Target)
		if err != nil {
			r.fail(outcome, ct, key, err)
			continue
		}
		pending = append(pending, pendingKey{key: key, path: path})
	}
	return pending
}

// processKey runs fetch, handler and executor for one key and records
// exactly one outcome for it.
func (r *Reconciler) processKey(ctx context.Context, batch *ChangeBatch, ct ChangeType, key, path string, outcome *Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(outcome, ct, key, failure.HandlerUnclassified.New("panic: %v", p))
		}
	}()

	var actions []Action
	var err error
	if ct == Deleted {
		actions, err = r.handler.OnDelete(ctx, path, batch.Source, batch.Target)
	} else {
		var body []byte
		body, err = r.store.Fetch(ctx, batch.BucketName, key)
		if err != nil {
			r.fail(outcome, ct, key, err)
			return
		}
		actions, err = r.handler.OnUpdate(ctx, body, path, batch.Source, batch.Target)
	}
	if err != nil {
		r.fail(outcome, ct, key, err)
		return
	}

	if len(actions) == 0 {
		r.log.Debug("No action needed", zap.String("key", key), zap.String("change_type", string(ct)))
		outcome.RecordSkipped(ct, key)
		return
	}

	if err := r.executor.Execute(ctx, actions); err != nil {
		r.fail(outcome, ct, key, err)
		return
	}

	entries := appliedEntries(ct, path, actions)
	if ce := r.log.Check(zap.DebugLevel, "Key applied"); ce != nil {
		descriptions := make([]string, len(actions))
		for i, action := range actions {
			descriptions[i] = describe(action)
		}
		ce.Write(
			zap.String("key", key),
			zap.String("path", path),
			zap.String("change_type", string(ct)),
			zap.Strings("actions", descriptions))
	}
	for _, e := range entries {
		outcome.RecordApplied(e.changeType, e.path)
	}
}

func (r *Reconciler) fail(outcome *Outcome, ct ChangeType, key string, err error) {
	class := failure.Classify(err)
	r.log.Error("Key failed",
		zap.String("key", key),
		zap.String("change_type", string(ct)),
		zap.String("class", string(class)),
		zap.Error(err))
	outcome.RecordFailure(class, ct, key, err.Error())
}
