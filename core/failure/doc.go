// Package failure classifies processing errors as temporary or permanent.
//
// Every error raised while fetching an object, running a per-key handler or
// applying an action ends up in exactly one of two classes:
//
//   - Temporary: the condition may clear on its own (throttling, timeouts,
//     5xx responses, dropped connections). The message is redelivered.
//   - Permanent: retrying cannot help (access denied, missing objects,
//     malformed keys or documents, handler bugs).
//
// # Error Classes
//
// The taxonomy is expressed as zeebo/errs classes. Adapters at the edges of
// the system (core/storage, core/broker) translate their library errors into
// these classes, so Classify never needs to know about minio or AMQP types.
//
//	err := failure.StorageTransient.Wrap(err)
//	failure.Classify(err) // failure.Temporary
//
// Errors that carry no class are matched against a small set of well known
// transient conditions (deadlines, net timeouts, connection resets). Anything
// else is permanent.
package failure
