// Package session holds the authoritative table of agent sessions.
//
// Invariants:
// - The table never exceeds its configured capacity.
// - Eviction only reclaims completed or error sessions, oldest first;
//   interrupted sessions stay resumable and are never evicted.
// - Status and usage mutation goes through Session methods; the runner is
//   the only writer for a given session.
package session
