// Package bus fans session events out to live listeners.
//
// Invariants:
// - Publish never blocks on a slow or dead sink; each subscription has a
//   bounded queue with drop-oldest overflow.
// - Each subscriber observes events in emission order.
// - A failing sink detaches only its own subscription.
package bus
