// Package engine abstracts the backing agent process behind a message
// stream. An Engine starts a run for a prompt and returns a Stream that
// yields typed messages until the run finishes.
//
// Invariants:
//   - Next returns io.EOF exactly once, after the final message.
//   - A stream emits at most one KindSessionHandle message, before any
//     assistant content.
//   - Interrupt is safe to call concurrently with Next and at most ends
//     the stream early; it never corrupts queued messages.
//   - Engines never write to shared state owned by callers; usage and
//     tool correlation stay with the consumer of the stream.
package engine
