package oldgen

import "go.uber.org/atomic"

// segStack is a lock-free (Treiber) stack of *Segment, intrusive on
// Segment.link. It realizes spec.md §3's "All list heads mutated via
// compare-and-swap" for the free/active/filled/sweep lists.
//
// This is grounded on the teacher's lfstack.go, generalized from a
// pointer-packed uint64 (needed there to dodge the host GC's own write
// barrier on the head word) to a plain atomic.Pointer[Segment]; a Go
// pointer field needs no packing trick.
type segStack struct {
	head atomic.Pointer[Segment]
}

// push installs seg as the new head, linking the previous head as
// seg.link. Safe for concurrent use by multiple pushers.
func (s *segStack) push(seg *Segment) {
	for {
		old := s.head.Load()
		seg.link.Store(old)
		if s.head.CompareAndSwap(old, seg) {
			return
		}
	}
}

// pop removes and returns the current head, or nil if the stack is
// empty. Safe for concurrent use by multiple poppers.
func (s *segStack) pop() *Segment {
	for {
		old := s.head.Load()
		if old == nil {
			return nil
		}
		next := old.link.Load()
		if s.head.CompareAndSwap(old, next) {
			old.link.Store(nil)
			return old
		}
	}
}

// detachAll atomically removes every segment from the stack and
// returns the old head, leaving the stack empty. Used by prepareSweep
// to splice filled onto sweep_list (spec.md §4.8) under a single CAS.
func (s *segStack) detachAll() *Segment {
	for {
		old := s.head.Load()
		if s.head.CompareAndSwap(old, nil) {
			return old
		}
	}
}

// eachSegment walks the chain starting at head via Segment.link. It is only
// safe to call on a chain no longer reachable from any concurrently
// mutated stack (e.g. the result of detachAll).
func eachSegment(head *Segment, fn func(*Segment)) {
	for seg := head; seg != nil; {
		next := seg.link.Load()
		fn(seg)
		seg = next
	}
}

// isEmpty reports whether the stack currently has no elements. This is
// inherently racy against concurrent push/pop and is intended only for
// diagnostics and tests.
func (s *segStack) isEmpty() bool {
	return s.head.Load() == nil
}
