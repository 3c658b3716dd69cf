// Package runner drives one session's runs against an engine and
// translates the engine's message stream into bus events.
//
// Invariants:
//   - At most one run per session is in flight; a second Run returns
//     ErrAlreadyRunning.
//   - Every run ends with exactly one session_end event, after usage has
//     been synced onto the session record.
//   - Interrupt is cooperative: it cancels the run context and asks the
//     stream to stop, then the run winds down through the normal
//     terminal path with reason interrupted.
package runner
