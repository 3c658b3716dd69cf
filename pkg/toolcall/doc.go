// Package toolcall correlates asynchronous tool start and end notifications.
//
// Invariants:
// - At most one live call per tool-use id.
// - Resolve never fails; a missing id degrades to the "unknown" sentinel.
// - Calls whose end never arrives are reclaimed by the orphan sweep.
package toolcall
