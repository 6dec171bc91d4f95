package oldgen

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Pool is a size-classed allocator pool: one current segment per
// capability, plus shared active/filled lock-free stacks (spec.md §3,
// "Allocator pool"). This is grounded on mcache.go's per-P mCache_Refill
// shape, generalized from a single global mcentral to the explicit
// active/filled/free chain spec.md describes.
type Pool struct {
	sizeClass     int
	blockSizeLog2 uint8
	blockCount    int

	current []atomic.Pointer[Segment] // one per capability
	active  segStack
	filled  segStack

	heap *Heap
}

// newPool constructs an empty pool for the given size class.
func newPool(heap *Heap, sizeClass int, blockSizeLog2 uint8, blockCount, numCaps int) *Pool {
	return &Pool{
		sizeClass:     sizeClass,
		blockSizeLog2: blockSizeLog2,
		blockCount:    blockCount,
		current:       make([]atomic.Pointer[Segment], numCaps),
		heap:          heap,
	}
}

// grow extends current to serve n additional capabilities (spec.md §6,
// AddCapabilities).
func (p *Pool) grow(n int) {
	p.current = append(p.current, make([]atomic.Pointer[Segment], n)...)
}

// Allocate implements spec.md §4.1: compute the block in the
// capability's current segment, advance next_free, and roll over to a
// fresh current segment when full.
//
// Allocation is wait-free in the fast path (current segment has room)
// and lock-free against other capabilities, matching the spec's
// guarantee.
func (p *Pool) Allocate(cap *Capability, log *zap.Logger) (*Segment, int) {
	for {
		cur := p.current[cap.id].Load()
		if cur == nil {
			cur = p.installFreshCurrent(cap, log)
		}

		idx := cur.nextFree.Load()
		if idx >= int64(cur.blockCount) {
			// Raced with another goroutine already rolling this
			// current segment over; retry against the new one.
			p.current[cap.id].CompareAndSwap(cur, nil)
			continue
		}
		// Advance next_free to the next block whose bitmap cell is zero,
		// so a reused PARTIAL segment never hands out a block still
		// holding a marked object.
		next := idx + 1
		for next < int64(cur.blockCount) && cur.bitmap[next] != byte(epochUnmarked) {
			next++
		}
		if !cur.nextFree.CompareAndSwap(idx, next) {
			continue
		}

		if idx == 0 {
			p.heap.scavenger().NotifyDirty(cur)
		}

		if next >= int64(cur.blockCount) {
			// This segment is now full: hand it to filled and install a
			// fresh current for the next allocation.
			p.current[cap.id].CompareAndSwap(cur, nil)
			cur.onList = listFilled
			p.filled.push(cur)
		}
		return cur, int(idx)
	}
}

// installFreshCurrent pops a segment off active, then free, then asks
// the block allocator for a new group, and installs it as current for
// cap. This is the three-step fallback in spec.md §4.1.
//
// Only a segment that came from the free list or the block allocator
// gets next_free reset to 0: an active segment already has next_free
// positioned at the first unmarked block by sweep's PARTIAL
// classification (spec.md §4.8), and zeroing it would let the mutator
// allocate over blocks still holding live data.
func (p *Pool) installFreshCurrent(cap *Capability, log *zap.Logger) *Segment {
	for {
		seg := p.active.pop()
		if seg == nil {
			seg = p.heap.takeFreeSegment(p.blockSizeLog2, p.blockCount, log)
			seg.nextFree.Store(0)
		}
		seg.onList = listCurrent
		if p.current[cap.id].CompareAndSwap(nil, seg) {
			return seg
		}
		// Someone else installed a current first; put this one back on
		// active rather than leak it.
		seg.onList = listActive
		p.active.push(seg)
		if existing := p.current[cap.id].Load(); existing != nil {
			return existing
		}
	}
}
