package reconcile

import "context"

// Handler turns one changed key into actions. Implementations must not
// perform side effects themselves; everything they want done is returned
// as actions. An empty slice means no action is needed.
//
// Errors should carry a failure class (see failure.Validation and
// failure.Retryable); untagged errors are treated as permanent.
type Handler interface {
	// OnUpdate is called for added and updated keys with the object body.
	OnUpdate(ctx context.Context, body []byte, path, source, target string) ([]Action, error)

	// OnDelete is called for deleted keys.
	OnDelete(ctx context.Context, path, source, target string) ([]Action, error)
}
