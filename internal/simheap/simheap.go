// Package simheap is a toy mutator/heap simulator used by cmd/oldgendemo
// to drive oldgen end to end without a real runtime behind it. It plays
// the part every external collaborator interface in oldgen assumes
// exists: a HeapOracle that decodes objects and resolves pointers to
// block descriptors, a Pauser that logs pause requests (the demo runs no
// concurrent mutators, so there is nothing to stop), a
// BlockAllocator backed by plain Go memory, and a Scavenger that just
// counts the segments it was told about.
package simheap

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"oldgen"
)

type object struct {
	kind   oldgen.ObjectKind
	fields []uintptr
	seg    *oldgen.Segment
	idx    int
	large  *oldgen.LargeObject
}

// Heap owns every simulated object and implements oldgen.HeapOracle,
// oldgen.Pauser, oldgen.BlockAllocator, and oldgen.Scavenger. Addresses
// it hands out are opaque monotonically increasing handles, not real
// memory addresses; oldgen.Segment.BlockAddr offsets are local to their
// segment and would collide across segments, so the oracle keeps its
// own address space instead, exactly as a real block_descriptor(p)
// lookup (built from a page table) would.
type Heap struct {
	log *zap.Logger

	mu     sync.Mutex
	nextID uintptr
	byAddr map[uintptr]*object

	pauseWG sync.WaitGroup
	paused  bool

	dirtyNotifications int
}

// New constructs an empty simulated heap.
func New(log *zap.Logger) *Heap {
	return &Heap{
		log:    log,
		byAddr: make(map[uintptr]*object),
	}
}

func (h *Heap) register(o *object) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	addr := h.nextID
	h.byAddr[addr] = o
	return addr
}

// NewConstructor allocates a KindConstructor object with the given
// pointer fields through gc, registers it in the oracle's table, and
// returns its handle.
func (h *Heap) NewConstructor(gc *oldgen.GC, cap *oldgen.Capability, fields ...uintptr) uintptr {
	seg, idx := gc.AllocateRaw(cap, 1+len(fields))
	return h.register(&object{kind: oldgen.KindConstructor, fields: fields, seg: seg, idx: idx})
}

// NewThunk allocates a KindThunk object with no SRT, for demo simplicity.
func (h *Heap) NewThunk(gc *oldgen.GC, cap *oldgen.Capability, fields ...uintptr) uintptr {
	seg, idx := gc.AllocateRaw(cap, 1+len(fields))
	return h.register(&object{kind: oldgen.KindThunk, fields: fields, seg: seg, idx: idx})
}

// NewLargeObject registers a descriptor-only large object (spec.md
// §4.1: large-object allocation is external to the core) with gc and
// the oracle, with the given pointer fields for the mark engine to
// traverse as a constructor.
func (h *Heap) NewLargeObject(gc *oldgen.GC, bytes uintptr, fields ...uintptr) uintptr {
	lo := &oldgen.LargeObject{Addr: 0, Bytes: bytes}
	gc.RegisterLargeObject(lo)
	return h.register(&object{kind: oldgen.KindConstructor, fields: fields, large: lo})
}

// IsHeapAllocated implements oldgen.HeapOracle.
func (h *Heap) IsHeapAllocated(p uintptr) bool {
	if p == 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.byAddr[p]
	return ok
}

// Resolve implements oldgen.HeapOracle.
func (h *Heap) Resolve(p uintptr) (oldgen.BlockDescriptor, bool) {
	h.mu.Lock()
	o, ok := h.byAddr[p]
	h.mu.Unlock()
	if !ok {
		return oldgen.BlockDescriptor{}, false
	}
	if o.large != nil {
		return oldgen.BlockDescriptor{Large: o.large}, true
	}
	return oldgen.BlockDescriptor{Segment: o.seg, BlockIndex: o.idx}, true
}

// Object implements oldgen.HeapOracle.
func (h *Heap) Object(p uintptr) oldgen.HeapObject {
	h.mu.Lock()
	o, ok := h.byAddr[p]
	h.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("simheap: Object called on unknown address %d", p))
	}
	return oldgen.HeapObject{Addr: p, Kind: o.kind, Fields: o.fields}
}

// Drop removes an object from the oracle's table, simulating the
// mutator losing its last reference. It does not touch the collector;
// the object only actually disappears once a cycle sweeps the
// now-unreachable block.
func (h *Heap) Drop(p uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byAddr, p)
}

// Live reports how many objects the oracle currently knows about,
// independent of what the collector has or hasn't swept yet.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byAddr)
}

// Addresses returns a snapshot of every handle the oracle currently
// knows about, for callers that need to re-check liveness against the
// collector (e.g. after a cycle completes).
func (h *Heap) Addresses() []uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	addrs := make([]uintptr, 0, len(h.byAddr))
	for addr := range h.byAddr {
		addrs = append(addrs, addr)
	}
	return addrs
}

// StopAllMutators implements oldgen.Pauser. This demo has no real
// mutator goroutines allocating concurrently, so there is nothing to
// actually suspend; it only logs the pause reason.
func (h *Heap) StopAllMutators(reason string) {
	h.log.Debug("simheap: mutators stopped", zap.String("reason", reason))
	h.paused = true
}

// ReleaseAllMutators implements oldgen.Pauser.
func (h *Heap) ReleaseAllMutators() {
	h.paused = false
	h.log.Debug("simheap: mutators released")
}

// AllocSegmentGroup implements oldgen.BlockAllocator using plain heap
// memory; there is no real aligned address space to manage here.
func (h *Heap) AllocSegmentGroup(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// FreeSegmentGroup implements oldgen.BlockAllocator. Go's own GC
// reclaims the backing array; there is nothing further to release.
func (h *Heap) FreeSegmentGroup(storage []byte) {}

// NotifyDirty implements oldgen.Scavenger by counting calls, so the
// demo can report how many times the allocator handed a block to a
// previously-clean segment.
func (h *Heap) NotifyDirty(seg *oldgen.Segment) {
	h.mu.Lock()
	h.dirtyNotifications++
	h.mu.Unlock()
}

// DirtyNotifications reports how many times NotifyDirty fired.
func (h *Heap) DirtyNotifications() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirtyNotifications
}
