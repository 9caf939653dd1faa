// Package delivery runs the broker consumption loop.
//
// The Controller receives one change message at a time, routes it by topic
// to a Reconciler, and decides from the resulting Outcome whether to
// acknowledge, negatively acknowledge or stop the process.
//
// # Decision Rule
//
//   - No failures: acknowledge.
//   - Only temporary failures: negatively acknowledge, so the broker
//     redelivers the whole batch.
//   - Any permanent failure with PolicyAbort: negatively acknowledge and
//     return ErrPermanentFailure from Run. A supervisor is expected to
//     restart the process.
//   - Any permanent failure with PolicyDeadLetter: publish the failure report
//     to the failure topic, then acknowledge (or negatively acknowledge when
//     temporary failures are also present).
//
// A failed outbound publish counts as a temporary failure. A message that
// cannot be decoded or arrives on a topic without a route is a permanent
// failure of the whole message.
//
// The batch in flight when the context is cancelled is finished and settled
// before Run returns.
package delivery
