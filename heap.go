package oldgen

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Heap is the process-wide non-moving heap state (spec.md §3, "Heap
// state"): the size-classed pools, the bounded global free segment
// pool, the transient sweep list, and the large-object live/marked
// lists. It is grounded on mheap.go's central-allocator role, adapted
// to the segment/pool vocabulary spec.md uses instead of mspan/mcentral.
type Heap struct {
	pools []*Pool

	free      segStack
	nFree     atomic.Int64
	maxFree   int64
	sweepList segStack

	largeLive         largeObjectSet
	largeMarked       largeObjectSet
	largeObjectsMutex sync.Mutex

	storageLock sync.Mutex
	blockAlloc  BlockAllocator
	scav        Scavenger

	segmentSize int
	minLog2     uint
	log         *zap.Logger
}

func newHeap(cfg *Config, numCaps int) *Heap {
	h := &Heap{
		maxFree:     cfg.MaxFree,
		blockAlloc:  cfg.BlockAllocator,
		scav:        cfg.Scavenger,
		segmentSize: cfg.SegmentSize,
		minLog2:     cfg.MinLog2,
		log:         cfg.Logger,
	}
	h.pools = make([]*Pool, cfg.NumSizeClasses)
	for sc := 0; sc < cfg.NumSizeClasses; sc++ {
		log2 := uint8(cfg.MinLog2) + uint8(sc)
		blockCount := h.segmentSize / (1 << log2)
		h.pools[sc] = newPool(h, sc, log2, blockCount, numCaps)
	}
	return h
}

func (h *Heap) scavenger() Scavenger { return h.scav }

// grow extends every pool's per-capability current-segment array to
// serve n additional capabilities (spec.md §6, AddCapabilities; caller
// holds the storage lock and guarantees no GC/mutators run).
func (h *Heap) grow(n int) {
	for _, p := range h.pools {
		p.grow(n)
	}
}

// sizeClassFor computes ceil(log2(bytes)) - MIN_LOG2 (spec.md §4.1),
// returning ok=false if the object is outside the segmented allocator's
// range (a large object, handled externally).
func (h *Heap) sizeClassFor(bytes int) (int, bool) {
	log2 := ceilLog2(bytes)
	if log2 < int(h.minLog2) {
		log2 = int(h.minLog2)
	}
	sc := log2 - int(h.minLog2)
	if sc < 0 || sc >= len(h.pools) {
		return 0, false
	}
	return sc, true
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	log2 := 0
	v := n - 1
	for v > 0 {
		v >>= 1
		log2++
	}
	return log2
}

// Allocate implements the allocate(cap, word_size) operation of
// spec.md §4.1. The returned pointer's block_index equals the prior
// next_free, and the size class is asserted to be in range: out-of-
// range requests are a programming error here (oversize objects are
// the BlockAllocator/large-object collaborator's problem, not this
// method's).
func (h *Heap) Allocate(cap *Capability, wordSize, wordBytes int) (*Segment, int) {
	sc, ok := h.sizeClassFor(wordSize * wordBytes)
	if !ok {
		fatalf(h.log, "oldgen: allocate: word size %d out of segmented-allocator range", wordSize)
	}
	return h.pools[sc].Allocate(cap, h.log)
}

// takeFreeSegment pops a segment off the global free list, or requests
// a fresh aligned group from the block allocator under the storage
// lock if the free list is empty. Failure to obtain storage is fatal
// (spec.md §4.1 "Failure", §7.2).
func (h *Heap) takeFreeSegment(blockSizeLog2 uint8, blockCount int, log *zap.Logger) *Segment {
	if seg := h.free.pop(); seg != nil {
		h.nFree.Dec()
		seg.blockSizeLog2 = blockSizeLog2
		seg.blockCount = blockCount
		if len(seg.bitmap) != blockCount {
			seg.bitmap = make([]byte, blockCount)
		}
		return seg
	}

	h.storageLock.Lock()
	defer h.storageLock.Unlock()
	storage, err := h.blockAlloc.AllocSegmentGroup(h.segmentSize)
	if err != nil {
		fatal(log, "oldgen: block allocator exhausted", zap.Error(err))
	}
	return NewSegment(storage, blockSizeLog2, blockCount)
}

// releaseFreeSegment pushes seg onto the global free list, spilling to
// the block allocator once the free list exceeds maxFree (spec.md
// §4.8, FREE classification).
func (h *Heap) releaseFreeSegment(seg *Segment) {
	if h.nFree.Load() >= h.maxFree {
		h.storageLock.Lock()
		h.blockAlloc.FreeSegmentGroup(seg.blocks)
		h.storageLock.Unlock()
		return
	}
	seg.onList = listFree
	h.free.push(seg)
	h.nFree.Inc()
}
