package oldgen

import "go.uber.org/atomic"

// Stack dirty-word flag bits (spec.md §4.4).
const (
	flagMutatorMarking   uint32 = 1 << iota // mutator's write barrier is marking this stack
	flagCollectorMarking                    // the collector is marking this stack
)

// Stack is a mutable stack object participating in the two-bit
// dirtiness handshake of spec.md §4.4: both the mutator's write
// barrier and the collector may want to mark a stack, and only one may
// proceed at a time.
type Stack struct {
	Addr  uintptr
	dirty atomic.Uint32
}

// NewStack constructs a Stack with a clear dirty word.
func NewStack(addr uintptr) *Stack {
	return &Stack{Addr: addr}
}

func (s *Stack) needsMarking() bool {
	return s.dirty.Load()&(flagMutatorMarking|flagCollectorMarking) == 0
}

// mutatorBeginMark implements "Mutator attempts a write" (spec.md
// §4.4): if the stack needs marking, CAS in MUTATOR_MARKING. If the CAS
// observes COLLECTOR_MARKING already set, busy-wait until isMarked
// reports the collector has finished tracing *this stack* — the
// object's segment mark bit, set by markStackObject right after it
// enqueues the stack's children — matching GHC's
// needs_upd_rem_set_mark polling the object's mark bit rather than
// waiting for next-cycle cleanup. spin is called between polls so
// tests can inject a bounded spin count instead of looping forever.
func (s *Stack) mutatorBeginMark(isMarked func() bool, spin func()) {
	for {
		old := s.dirty.Load()
		if old&(flagMutatorMarking|flagCollectorMarking) != 0 {
			if old&flagCollectorMarking != 0 {
				if isMarked != nil && isMarked() {
					return
				}
				if spin != nil {
					spin()
				}
				continue
			}
			// Another mutator write already claimed marking; done.
			return
		}
		if s.dirty.CAS(old, old|flagMutatorMarking) {
			return
		}
	}
}

// collectorBeginMark implements "Collector reaches a stack" (spec.md
// §4.4): CAS in COLLECTOR_MARKING. Returns false (skip this stack) if
// MUTATOR_MARKING was already set.
func (s *Stack) collectorBeginMark() bool {
	for {
		old := s.dirty.Load()
		if old&flagMutatorMarking != 0 {
			return false
		}
		if old&flagCollectorMarking != 0 {
			return false
		}
		if s.dirty.CAS(old, old|flagCollectorMarking) {
			return true
		}
	}
}

// ClearForNextCycle resets the dirty word so the stack can be
// re-claimed by either side of the handshake next cycle (spec.md §2
// step 1, "prepare"). This package has no registry of live stacks —
// unlike segments, stacks are mutator-owned objects the HeapOracle
// decodes on demand — so the owning runtime is responsible for calling
// this once per live stack between one cycle's sweep and the next
// prepare, the same way it refreshes Capability.Roots. Mid-cycle
// completion of a collector's mark is signaled separately, via the
// stack's segment mark bit (see stackMarked) — this reset is never a
// substitute for that.
func (s *Stack) ClearForNextCycle() {
	s.dirty.Store(0)
}

// stackMarked reports whether the collector has finished tracing s for
// the current cycle: the segment mark bit markStackObject sets right
// after enqueueing the stack's children (spec.md §4.3's ordering rule,
// §4.4's needs_upd_rem_set_mark). A stack the oracle can no longer
// resolve, or one backed by a large object or static closure, is
// treated as done rather than livelocking the mutator.
func (gc *GC) stackMarked(s *Stack) bool {
	desc, ok := gc.oracle.Resolve(s.Addr)
	if !ok {
		return true
	}
	if desc.Segment != nil {
		return desc.Segment.IsMarked(desc.BlockIndex, gc.currentEpoch())
	}
	return true
}
