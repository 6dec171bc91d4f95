package oldgen

import "go.uber.org/zap"

// mark drains queue until empty, including stealing from the global
// URS chain on NULL_ENTRY (spec.md §4.3). It is idempotent and safe to
// call while mutators run, provided the write barrier is active
// (spec.md §4.3 contract) — that invariant is the caller's
// responsibility (runCycle enables the barrier before the first mark).
func (gc *GC) mark(q *MarkQueue) {
	for {
		entry, ok := q.pop()
		if !ok {
			return
		}
		switch entry.kind {
		case entryClosure:
			gc.markClosure(q, entry.p, entry.origin)
		case entryArray:
			gc.markArrayChunk(q, entry.arr, entry.start)
		}
	}
}

// markClosure implements the CLOSURE{p, origin} drain-loop arm of
// spec.md §4.3.
func (gc *GC) markClosure(q *MarkQueue, p, origin uintptr) {
	if p == 0 {
		return
	}
	if !gc.oracle.IsHeapAllocated(p) {
		return
	}

	desc, ok := gc.oracle.Resolve(p)
	if !ok {
		fatalf(gc.log, "oldgen: mark: pointer %#x claims non-moving but descriptor disagrees", p)
	}

	if desc.YoungGen {
		// Untagged pointer resident in a younger generation: the
		// snapshot did not include it (spec.md §4.3).
		return
	}

	if desc.Static {
		if q.dedupStatic(p) {
			return
		}
		obj := gc.oracle.Object(p)
		gc.enqueueChildren(q, obj)
		return
	}

	if desc.Large != nil {
		gc.markLargeObject(q, desc.Large, p)
		return
	}

	seg, idx := desc.Segment, desc.BlockIndex
	epoch := gc.currentEpoch()

	if seg.IsPostSnapshot(idx) {
		// Post-snapshot: allocated after the mark snapshot, implicitly
		// live, must not be traced (spec.md §3 invariant 3, §4.3).
		return
	}
	if seg.IsMarked(idx, epoch) {
		return
	}

	obj := gc.oracle.Object(p)

	if obj.Kind == KindWhiteHole {
		// Transient state: spin-observe until a real info table
		// appears, then retry traversal of the same object (spec.md
		// §4.3).
		for obj.Kind == KindWhiteHole {
			obj = gc.oracle.Object(p)
		}
	}

	if obj.Kind == KindStack {
		gc.markStackObject(q, obj, seg, idx, epoch)
		return
	}

	// Ordering rule: enqueue children, *then* set the bit (spec.md
	// §4.3 "Ordering rule", load-bearing for the stack/mutator
	// handshake of §4.4).
	gc.enqueueChildren(q, obj)
	seg.Mark(idx, epoch)
	if gc.metrics != nil {
		gc.metrics.BytesMarked.Add(float64(uintptr(1) << seg.blockSizeLog2))
	}
}

// markStackObject applies the two-bit handshake of spec.md §4.4 before
// enqueuing a stack's children, and only sets the bit after they are
// all enqueued, per both §4.3's ordering rule and §4.4's explicit
// restatement of it.
func (gc *GC) markStackObject(q *MarkQueue, obj HeapObject, seg *Segment, idx int, epoch MarkEpoch) {
	if obj.Stack != nil {
		if !obj.Stack.collectorBeginMark() {
			// Mutator already owns marking this stack; rely on it to
			// finish (spec.md §4.4). The final pre-sweep sync
			// guarantees completion before sweep.
			return
		}
	}
	gc.enqueueChildren(q, obj)
	seg.Mark(idx, epoch)
	if gc.metrics != nil {
		gc.metrics.BytesMarked.Add(float64(uintptr(1) << seg.blockSizeLog2))
	}
}

// markArrayChunk implements the ARRAY{a, start} drain-loop arm: push at
// most MarkArrayChunkLength slots, re-enqueuing the remainder first so
// work stays bounded per entry (spec.md §4.3).
func (gc *GC) markArrayChunk(q *MarkQueue, arr PointerArray, start int) {
	n := arr.Len()
	end := start + MarkArrayChunkLength
	if end < n {
		q.PushArray(arr, end)
	} else {
		end = n
	}
	for i := start; i < end; i++ {
		q.PushClosure(arr.At(i), 0)
	}
}

// markLargeObject implements spec.md §3 invariant 4 and §4.7: the
// MARKED transition happens under large_objects_mutex, and a
// not-yet-marked large object has its children enqueued exactly once.
func (gc *GC) markLargeObject(q *MarkQueue, lo *LargeObject, addr uintptr) {
	gc.heap.largeObjectsMutex.Lock()
	alreadyMarked := lo.IsMarked()
	if !alreadyMarked {
		lo.setFlag(largeFlagMarked, true)
		gc.heap.largeMarked.push(lo)
	}
	gc.heap.largeObjectsMutex.Unlock()

	if alreadyMarked {
		return
	}
	if gc.metrics != nil {
		gc.metrics.BytesMarked.Add(float64(lo.Bytes))
	}
	obj := gc.oracle.Object(addr)
	gc.enqueueChildren(q, obj)
}

// enqueueChildren is the closed, exhaustively-matched dispatch switch
// realizing spec.md §4.3's type-dispatch policy table (DESIGN NOTES §9,
// "Polymorphic object traversal"). Pinned blocks and white holes never
// reach here (the former is excluded by construction; the latter is
// resolved by the spin-retry in markClosure before this is called).
func (gc *GC) enqueueChildren(q *MarkQueue, obj HeapObject) {
	switch obj.Kind {
	case KindConstructor, KindBlockingQueue:
		for _, f := range obj.Fields {
			q.PushClosure(f, obj.Addr)
		}

	case KindThunk:
		if obj.SRT != nil {
			q.PushClosure(*obj.SRT, obj.Addr)
		}
		for _, f := range obj.Fields {
			q.PushClosure(f, obj.Addr)
		}

	case KindArrayPtrs:
		if obj.Array == nil {
			return
		}
		n := obj.Array.Len()
		if n <= MarkArrayChunkLength {
			for i := 0; i < n; i++ {
				q.PushClosure(obj.Array.At(i), obj.Addr)
			}
			return
		}
		q.PushArray(obj.Array, 0)

	case KindSmallArrayPtrs:
		if obj.Array == nil {
			return
		}
		for i := 0; i < obj.Array.Len(); i++ {
			q.PushClosure(obj.Array.At(i), obj.Addr)
		}

	case KindIndirection:
		if obj.Indirectee != 0 {
			q.PushClosure(obj.Indirectee, obj.Addr)
		}

	case KindPAP:
		q.PushClosure(obj.Fun, obj.Addr)
		for i, f := range obj.Payload {
			if i < len(obj.PayloadIsPtr) && obj.PayloadIsPtr[i] {
				q.PushClosure(f, obj.Addr)
			}
		}

	case KindByteCode:
		for _, f := range obj.Instructions {
			q.PushClosure(f, obj.Addr)
		}
		for _, f := range obj.Literals {
			q.PushClosure(f, obj.Addr)
		}
		for _, f := range obj.Ptrs {
			q.PushClosure(f, obj.Addr)
		}

	case KindTRec:
		if obj.PrevChunk != 0 {
			q.PushClosure(obj.PrevChunk, obj.Addr)
		}
		for _, e := range obj.TRecEntries {
			q.PushClosure(e.TVar, obj.Addr)
			q.PushClosure(e.ExpectedValue, obj.Addr)
			q.PushClosure(e.NewValue, obj.Addr)
		}

	case KindStack:
		gc.enqueueStackFrames(q, obj)

	case KindSelector:
		if obj.Selectee != 0 {
			q.PushClosure(obj.Selectee, obj.Addr)
		}

	case KindStaticClosure:
		for _, f := range obj.Fields {
			q.PushClosure(f, 0)
		}

	case KindPinned:
		// Never traced: cannot contain pointers into the non-moving
		// region by construction (spec.md §4.3).

	default:
		fatalf(gc.log, "oldgen: mark: unrecognized object kind %d at %#x", obj.Kind, obj.Addr)
	}
}

// enqueueStackFrames walks a stack's frames, enqueuing each frame's
// pointer-valued payload words per its tag (spec.md §4.3: "walk frames
// as a state machine keyed by frame tag"). The frame-shape-to-bitmap
// decoding itself is the HeapOracle's concern; this package only needs
// each frame's already-decoded pointer fields.
func (gc *GC) enqueueStackFrames(q *MarkQueue, obj HeapObject) {
	for _, frame := range obj.Frames {
		switch frame.Tag {
		case FrameUpdate, FrameCatch, FrameRetSmall, FrameRetBig,
			FrameRetBCO, FrameRetFun, FrameRetStop, FrameRetAtomically:
			for _, f := range frame.Fields {
				q.PushClosure(f, obj.Addr)
			}
		default:
			fatalf(gc.log, "oldgen: mark: unrecognized stack frame tag %d", frame.Tag)
		}
	}
}

// shade marks addr directly through markClosure, enqueuing its children
// on q, without requiring the caller to know its kind up front or to
// run a full mark() loop. No production code calls it: production code
// reaches markClosure only via the queue drain, and shade is a one-shot
// entry point for callers such as tests.
func shade(gc *GC, q *MarkQueue, addr uintptr, log *zap.Logger) {
	gc.markClosure(q, addr, 0)
}
