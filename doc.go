// Package oldgen implements a concurrent non-moving mark-and-sweep
// collector for the oldest generation of a multi-generational managed
// runtime.
//
// Objects in the region this package manages are never relocated once
// allocated. Liveness is tracked per block with a per-segment mark
// bitmap; marking runs concurrently with mutator threads, and a short
// stop-the-world synchronization separates marking from sweeping while
// draining per-mutator write-barrier queues (the "update remembered
// set", or URS).
//
// The package does not implement object layout decoding, the younger
// generations' moving collector, or finalizer/thread scheduling itself;
// those are external collaborators reached through the HeapOracle,
// Pauser, Scavenger and BlockAllocator interfaces.
package oldgen
