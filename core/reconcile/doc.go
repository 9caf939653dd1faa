// Package reconcile applies catalogue change batches.
//
// A ChangeBatch lists keys that were added, updated or deleted under a
// source prefix. The Reconciler maps every key to the target prefix, asks a
// Handler what to do about it and executes the returned actions, recording
// the result of every key in an Outcome.
//
// # Architecture
//
// 1. TransformKey: maps an input key under Source to an output key under Target.
//
// 2. Handler: the pluggable, side-effect-free collaborator that turns one key
//    into an ordered list of actions (StorageWrite, StorageDelete, ChangeEmit,
//    MessageEmit, Failure).
//
// 3. Executor: applies the actions of one key in order, stopping at the first
//    failure. There is no rollback; redelivery repeats the writes, so handlers
//    must produce the same body for the same input.
//
// 4. Reconciler: runs the added, updated and deleted passes on a bounded
//    worker pool and publishes one outbound ChangeBatch of the applied keys.
//
// # Outcome
//
// Every inbound key ends up in exactly one place: an applied bucket (by its
// transformed key), the skipped set (the handler returned no actions) or one
// failure bucket (by its original key and failure class).
//
// # Usage Example
//
//	r := reconcile.NewReconciler(handler, store, publisher, reconcile.Options{
//	    OutputBucket: "catalogue-population",
//	    OutputTopic:  "annotations",
//	    Workers:      4,
//	}, log)
//
//	outcome, err := r.Reconcile(ctx, batch)
package reconcile
