package oldgen

import (
	"go.uber.org/atomic"
)

// segmentList identifies which of the five mutually-exclusive lists a
// segment currently belongs to (spec.md §3 invariant 1). It exists
// purely for assertions and diagnostics; the lists themselves are
// plain Treiber stacks (see lockfree.go).
type segmentList uint8

const (
	listNone segmentList = iota
	listFree
	listActive
	listFilled
	listSweep
	listCurrent
)

// Segment is a SEGMENT_SIZE-aligned region holding SEGMENT_BLOCKS blocks
// of one size class, a per-block mark bitmap, and list-membership
// bookkeeping (spec.md §3, "Segment").
//
// A real allocator backs Blocks with the actual aligned memory region
// returned by the BlockAllocator collaborator; this package only needs
// to reason about indices into it, so Blocks is modeled as a byte slice
// the caller owns and Segment never reallocates.
type Segment struct {
	link     atomic.Pointer[Segment] // intrusive next-pointer for list membership
	todoLink atomic.Pointer[Segment] // scavenger todo-list link; nil = not on todo list

	blockSizeLog2 uint8
	blockCount    int

	nextFree     atomic.Int64 // index of first free block during mutator allocation
	nextFreeSnap int64        // next_free at the moment the mark snapshot was taken

	bitmap []byte // one byte per block; cell == current epoch means marked
	blocks []byte // block storage, len == blockCount << blockSizeLog2

	onList segmentList // which list this segment is on; mutated only by the owner of that transition
}

// NewSegment allocates the in-process bookkeeping for one segment over
// the given backing storage. blockSizeLog2 determines the size class;
// storage must be exactly blockCount << blockSizeLog2 bytes.
func NewSegment(storage []byte, blockSizeLog2 uint8, blockCount int) *Segment {
	return &Segment{
		blockSizeLog2: blockSizeLog2,
		blockCount:    blockCount,
		bitmap:        make([]byte, blockCount),
		blocks:        storage,
		onList:        listNone,
	}
}

// BlockCount reports the number of blocks in the segment.
func (s *Segment) BlockCount() int { return s.blockCount }

// BlockAddr returns the starting address (as an offset into s.blocks)
// of block i. Real callers have a real address space; tests operate on
// offsets directly, which is isomorphic for the purposes of this core.
func (s *Segment) BlockAddr(i int) uintptr {
	return uintptr(i) << s.blockSizeLog2
}

// BlockIndex computes block_index(p) for a pointer known to lie within
// this segment: (p & (SEGMENT_SIZE-1)) >> block_size_log2, specialized
// here to the offset representation BlockAddr uses.
func (s *Segment) BlockIndex(offset uintptr) int {
	return int(offset >> s.blockSizeLog2)
}

// IsMarked reports whether block i's bitmap cell equals the given
// epoch (spec.md §4.2).
func (s *Segment) IsMarked(i int, epoch MarkEpoch) bool {
	return s.bitmap[i] == byte(epoch)
}

// Mark sets block i's bitmap cell to epoch.
func (s *Segment) Mark(i int, epoch MarkEpoch) {
	s.bitmap[i] = byte(epoch)
}

// ClearBitmap zeroes every cell. Required at prepare for filled
// segments only (spec.md §4.2); active/current segments never need it
// because of epoch rotation.
func (s *Segment) ClearBitmap() {
	for i := range s.bitmap {
		s.bitmap[i] = byte(epochUnmarked)
	}
}

// NextFreeSnapshot captures next_free into next_free_snap, the
// operation "prepare" performs on every segment (spec.md §2 step 1).
func (s *Segment) NextFreeSnapshot() {
	s.nextFreeSnap = s.nextFree.Load()
}

// IsPostSnapshot reports whether block index i was allocated after the
// mark snapshot was taken and is therefore implicitly live (spec.md §3
// invariant 3, §4.7).
func (s *Segment) IsPostSnapshot(i int) bool {
	return int64(i) >= s.nextFreeSnap
}

// IsLiveAt reports liveness of block i under the given epoch per
// spec.md §3 invariant 3: post-snapshot, or marked this cycle.
func (s *Segment) IsLiveAt(i int, epoch MarkEpoch) bool {
	return s.IsPostSnapshot(i) || s.IsMarked(i, epoch)
}

// classification is the result of scanning a segment's bitmap during
// sweep (spec.md §4.8).
type classification uint8

const (
	classFree classification = iota
	classPartial
	classFilled
)

// classify scans the bitmap once and returns the sweep classification
// plus, for PARTIAL, the first unmarked index (which becomes the new
// next_free/next_free_snap per spec.md §4.8).
func (s *Segment) classify(epoch MarkEpoch) (classification, int) {
	anyMarked := false
	anyUnmarked := false
	firstUnmarked := -1
	for i := 0; i < s.blockCount; i++ {
		if s.IsMarked(i, epoch) {
			anyMarked = true
		} else {
			anyUnmarked = true
			if firstUnmarked == -1 {
				firstUnmarked = i
			}
		}
	}
	switch {
	case !anyMarked:
		return classFree, 0
	case anyMarked && anyUnmarked:
		return classPartial, firstUnmarked
	default:
		return classFilled, 0
	}
}
