package reconcile

import (
	"context"
	"fmt"

	"catalogue-ingester/core/failure"
	"catalogue-ingester/core/storage"

	"go.uber.org/zap"
)

// Publisher sends a message body to a topic. broker.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// Executor applies the actions returned for one key.
type Executor struct {
	store        storage.ObjectStore
	publisher    Publisher
	outputBucket string
	log          *zap.Logger
}

// NewExecutor creates an Executor writing to outputBucket by default.
func NewExecutor(store storage.ObjectStore, publisher Publisher, outputBucket string, log *zap.Logger) *Executor {
	return &Executor{
		store:        store,
		publisher:    publisher,
		outputBucket: outputBucket,
		log:          log,
	}
}

// Execute runs actions in order and stops at the first one that fails.
// Actions that already ran are not rolled back.
func (e *Executor) Execute(ctx context.Context, actions []Action) error {
	for i, action := range actions {
		if err := e.apply(ctx, action); err != nil {
			if i > 0 {
				e.log.Warn("Action failed after earlier actions were applied",
					zap.Int("applied", i),
					zap.Int("total", len(actions)),
					zap.Error(err))
			}
			return err
		}
	}
	return nil
}

func (e *Executor) apply(ctx context.Context, action Action) error {
	switch a := action.(type) {
	case StorageWrite:
		return e.store.Put(ctx, e.bucket(a.Bucket), a.Key, a.Body, contentType(a.ContentType), a.CacheControl)

	case StorageDelete:
		return e.store.Delete(ctx, e.bucket(a.Bucket), a.Key)

	case ChangeEmit:
		if a.Body == nil {
			return e.store.Delete(ctx, e.outputBucket, a.Path)
		}
		return e.store.Put(ctx, e.outputBucket, a.Path, a.Body, contentType(a.ContentType), "")

	case MessageEmit:
		return e.publisher.Publish(ctx, a.Topic, a.Body)

	case Failure:
		reason := a.Reason
		if a.Key != "" {
			reason = a.Key + ": " + reason
		}
		if a.Permanent {
			return failure.HandlerValidation.New("%s", reason)
		}
		return failure.HandlerTransient.New("%s", reason)

	default:
		return failure.HandlerUnclassified.New("unknown action %T", action)
	}
}

func (e *Executor) bucket(bucket string) string {
	if bucket == "" {
		return e.outputBucket
	}
	return bucket
}

func contentType(ct string) string {
	if ct == "" {
		return DefaultContentType
	}
	return ct
}

// appliedEntry is one outbound key produced by a successful key.
type appliedEntry struct {
	changeType ChangeType
	path       string
}

// appliedEntries returns what a successful key contributes to the outbound
// batch. Every ChangeEmit is reported at its own path, under Deleted when it
// has no body and under changeType otherwise. A key without any ChangeEmit is
// reported at its transformed path.
func appliedEntries(changeType ChangeType, path string, actions []Action) []appliedEntry {
	var entries []appliedEntry
	for _, action := range actions {
		emit, ok := action.(ChangeEmit)
		if !ok {
			continue
		}
		ct := changeType
		if emit.Body == nil {
			ct = Deleted
		}
		entries = append(entries, appliedEntry{changeType: ct, path: emit.Path})
	}
	if len(entries) == 0 {
		entries = append(entries, appliedEntry{changeType: changeType, path: path})
	}
	return entries
}

// describe is used in logs.
func describe(action Action) string {
	switch a := action.(type) {
	case StorageWrite:
		return fmt.Sprintf("write %s", a.Key)
	case StorageDelete:
		return fmt.Sprintf("delete %s", a.Key)
	case ChangeEmit:
		if a.Body == nil {
			return fmt.Sprintf("emit delete %s", a.Path)
		}
		return fmt.Sprintf("emit %s", a.Path)
	case MessageEmit:
		return fmt.Sprintf("message %s", a.Topic)
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("%T", action)
	}
}
