package oldgen

import "go.uber.org/atomic"

// WriteBarrier implements the operations exposed to generated mutator
// code (spec.md §4.5, §6): push_closure, push_thunk, push_tso,
// push_stack. Enabled is the fast-path inline check (DESIGN NOTES §9,
// "Write barrier inlining"): the first line of every Push method, the
// same shape the teacher's writebarrierptr uses.
type WriteBarrier struct {
	Enabled atomic.Bool
	gc      *GC
}

func newWriteBarrier(gc *GC) *WriteBarrier {
	return &WriteBarrier{gc: gc}
}

// nonMovingOrStatic reports whether p should be recorded by the
// barrier at all: it must lie in the non-moving region, or be a static
// closure (spec.md §4.5: "If p does not lie in the non-moving region
// (and is not static), no-op").
func (wb *WriteBarrier) nonMovingOrStatic(p uintptr) bool {
	if p == 0 {
		return false
	}
	if !wb.gc.oracle.IsHeapAllocated(p) {
		return false
	}
	desc, ok := wb.gc.oracle.Resolve(p)
	if !ok {
		return false
	}
	return desc.Static || desc.Segment != nil || desc.Large != nil
}

// PushClosure implements push_closure(cap, p, origin_slot) (spec.md
// §4.5). origin is kept only if both the slot and p reside in the
// non-moving region (the selector optimization requires pointer
// stability); otherwise it is nulled.
func (wb *WriteBarrier) PushClosure(cap *Capability, p, originSlot uintptr) {
	if !wb.Enabled.Load() {
		return
	}
	if !wb.nonMovingOrStatic(p) {
		return
	}
	origin := originSlot
	if origin != 0 && !(wb.gc.oracle.IsHeapAllocated(originSlot) && wb.gc.oracle.IsHeapAllocated(p)) {
		origin = 0
	}
	cap.urs.push(queueEntry{kind: entryClosure, p: p, origin: origin})
}

// PushClosureReg is the _reg variant: the generated code only has a
// thread-local register table, from which the capability is recovered
// internally (spec.md §6). regToCapability is the recovery hook.
func (wb *WriteBarrier) PushClosureReg(regToCapability func() *Capability, p, originSlot uintptr) {
	wb.PushClosure(regToCapability(), p, originSlot)
}

// PushThunk implements push_thunk(cap, thunk): pushes each pointer
// field of the old thunk, so the barrier records what it used to refer
// to. For AP variants, the application's function and payload are
// pushed (spec.md §4.5).
func (wb *WriteBarrier) PushThunk(cap *Capability, thunk HeapObject) {
	if !wb.Enabled.Load() {
		return
	}
	switch thunk.Kind {
	case KindPAP:
		wb.PushClosure(cap, thunk.Fun, 0)
		for _, f := range thunk.Payload {
			wb.PushClosure(cap, f, 0)
		}
	default:
		if thunk.SRT != nil {
			wb.PushClosure(cap, *thunk.SRT, 0)
		}
		for _, f := range thunk.Fields {
			wb.PushClosure(cap, f, 0)
		}
	}
}

// PushTSO implements push_tso(cap, tso) (spec.md §4.5): it pushes the
// thread's closure unless isAliveForBarrier already reports it alive.
// Repeated calls while the closure is not yet alive push it again.
func (wb *WriteBarrier) PushTSO(cap *Capability, tso *Thread) {
	if !wb.Enabled.Load() {
		return
	}
	if !wb.gc.isAliveForBarrier(tso.Closure) {
		wb.PushClosure(cap, tso.Closure, 0)
	}
}

// PushStack implements push_stack(cap, stack): a full snapshot, gated
// on needs_mark(object) and the two-bit handshake of spec.md §4.4.
func (wb *WriteBarrier) PushStack(cap *Capability, stack *Stack, fields []uintptr) {
	if !wb.Enabled.Load() {
		return
	}
	if stack.dirty.Load()&flagMutatorMarking != 0 {
		// A previous write already claimed this stack's mark. If only
		// the collector has claimed it, mutatorBeginMark busy-waits
		// until the collector has set the stack's mark bit.
		return
	}
	stack.mutatorBeginMark(func() bool { return wb.gc.stackMarked(stack) }, nil)
	for _, f := range fields {
		wb.PushClosure(cap, f, 0)
	}
}

// isAliveForBarrier is a best-effort liveness check used only to avoid
// redundant pushes; it never needs to be exact, since an unnecessary
// push is harmless and a missed one is prevented by the barrier being
// enabled throughout mark.
func (gc *GC) isAliveForBarrier(p uintptr) bool {
	return gc.IsAlive(p)
}
