package oldgen

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, blockCount, numCaps int) (*Pool, *fakeOracle) {
	t.Helper()
	oracle := newFakeOracle()
	cfg := testConfig(oracle)
	h := newHeap(cfg, numCaps)
	pool := newPool(h, 0, 4, blockCount, numCaps)
	h.pools = []*Pool{pool}
	return pool, oracle
}

func TestPoolAllocateFillsAndRollsOver(t *testing.T) {
	pool, _ := newTestPool(t, 4, 1)
	cap := newCapability(0, newGlobalURS())

	var segs []*Segment
	var idxs []int
	for i := 0; i < 4; i++ {
		seg, idx := pool.Allocate(cap, zap.NewNop())
		segs = append(segs, seg)
		idxs = append(idxs, idx)
	}

	require.Equal(t, []int{0, 1, 2, 3}, idxs)
	for i := 1; i < 4; i++ {
		require.Same(t, segs[0], segs[i], "all four blocks come from the same segment until it fills")
	}
	require.Equal(t, listFilled, segs[0].onList)

	// A fifth allocation must land in a fresh segment.
	seg5, idx5 := pool.Allocate(cap, zap.NewNop())
	require.NotSame(t, segs[0], seg5)
	require.Equal(t, 0, idx5)
}

func TestPoolReusesPartialActiveSegmentWithoutResettingNextFree(t *testing.T) {
	// Regression test: installFreshCurrent must not zero next_free for a
	// segment coming from the active list, since sweep's PARTIAL
	// classification already positioned next_free at the first unmarked
	// block (spec.md §4.8). Zeroing it would let the mutator allocate
	// back over blocks that are still live.
	pool, _ := newTestPool(t, 4, 1)

	seg := newTestSegment(4)
	seg.blockSizeLog2 = pool.blockSizeLog2
	seg.nextFree.Store(2) // blocks 0,1 live; 2,3 free, as sweep would leave it
	seg.onList = listActive
	pool.active.push(seg)

	cap := newCapability(0, newGlobalURS())
	got, idx := pool.Allocate(cap, zap.NewNop())

	require.Same(t, seg, got)
	require.Equal(t, 2, idx, "allocation must resume at next_free, not overwrite blocks 0/1")
}

func TestPoolInstallFreshCurrentZerosNextFreeForFreeListSegment(t *testing.T) {
	pool, _ := newTestPool(t, 4, 1)

	seg := newTestSegment(4)
	seg.blockSizeLog2 = pool.blockSizeLog2
	seg.nextFree.Store(4) // as FREE classification would leave a stale segment
	pool.heap.free.push(seg)
	pool.heap.nFree.Store(1)

	cap := newCapability(0, newGlobalURS())
	got, idx := pool.Allocate(cap, zap.NewNop())

	require.Same(t, seg, got)
	require.Equal(t, 0, idx, "a segment taken from the free list must start allocating at block 0")
}
