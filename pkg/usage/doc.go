// Package usage accumulates token counts and cost for a single session run.
//
// Invariants:
// - Update overwrites totals; the engine reports cumulative usage, not deltas.
// - Stats falls back to a pricing-table estimate when no cost was reported.
// - The tracker is owned by one runner; the mutex only covers terminal
//   sync racing a concurrent stats read.
package usage
