package oldgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAliveNilPointerIsAlive(t *testing.T) {
	oracle := newFakeOracle()
	gc := newTestGC(t, oracle)
	require.True(t, gc.IsAlive(0))
}

func TestIsAliveNonHeapPointerIsAlive(t *testing.T) {
	oracle := newFakeOracle()
	gc := newTestGC(t, oracle)
	require.True(t, gc.IsAlive(0xfeed), "never registered with the oracle: treated as a non-heap/static pointer")
}

func TestIsAliveStaticIsAlwaysAlive(t *testing.T) {
	oracle := newFakeOracle()
	gc := newTestGC(t, oracle)
	oracle.putStatic(1, &fakeObject{kind: KindStaticClosure})
	require.True(t, gc.IsAlive(1))
}

func TestIsAliveLargeObjectFollowsSweepingAndMarkedFlags(t *testing.T) {
	oracle := newFakeOracle()
	gc := newTestGC(t, oracle)

	notSweeping := &LargeObject{}
	oracle.put(1, BlockDescriptor{Large: notSweeping}, &fakeObject{kind: KindConstructor})
	require.True(t, gc.IsAlive(1), "objects outside the current sweep snapshot are alive")

	sweepingUnmarked := &LargeObject{}
	sweepingUnmarked.setSweeping(true)
	oracle.put(2, BlockDescriptor{Large: sweepingUnmarked}, &fakeObject{kind: KindConstructor})
	require.False(t, gc.IsAlive(2), "in-snapshot and never marked: dead")

	sweepingMarked := &LargeObject{}
	sweepingMarked.setSweeping(true)
	sweepingMarked.setFlag(largeFlagMarked, true)
	oracle.put(3, BlockDescriptor{Large: sweepingMarked}, &fakeObject{kind: KindConstructor})
	require.True(t, gc.IsAlive(3))
}

func TestIsAliveSegmentFollowsIsLiveAt(t *testing.T) {
	oracle := newFakeOracle()
	gc := newTestGC(t, oracle)
	seg := preSnapshotSegment(2)

	p := heapAddr(oracle, seg, 0, 1, &fakeObject{kind: KindConstructor})
	require.False(t, gc.IsAlive(p))

	seg.Mark(0, gc.currentEpoch())
	require.True(t, gc.IsAlive(p))
}

func TestPrepareSweepMovesFilledSegmentsToSweepList(t *testing.T) {
	pool, oracle := newTestPool(t, 4, 1)
	gc := newTestGC(t, oracle)
	gc.heap = pool.heap

	seg := newTestSegment(4)
	seg.blockSizeLog2 = pool.blockSizeLog2
	seg.onList = listFilled
	pool.filled.push(seg)

	gc.prepareSweep()

	require.Equal(t, listSweep, seg.onList)
	require.True(t, pool.filled.isEmpty())
}

func TestSweepClassifiesFreeSegment(t *testing.T) {
	pool, oracle := newTestPool(t, 4, 1)
	gc := newTestGC(t, oracle)
	gc.heap = pool.heap

	seg := newTestSegment(4)
	seg.blockSizeLog2 = pool.blockSizeLog2
	seg.onList = listSweep
	// Nothing marked: classify() looks only at the bitmap, so the
	// segment is fully dead.
	gc.heap.sweepList.push(seg)

	gc.sweep()

	require.Equal(t, 1, int(gc.heap.nFree.Load()))
}

func TestSweepClassifiesPartialSegmentAndResetsNextFree(t *testing.T) {
	pool, oracle := newTestPool(t, 4, 1)
	gc := newTestGC(t, oracle)
	gc.heap = pool.heap

	seg := newTestSegment(4)
	seg.blockSizeLog2 = pool.blockSizeLog2
	seg.onList = listSweep
	seg.Mark(0, gc.currentEpoch())
	seg.Mark(1, gc.currentEpoch())
	gc.heap.sweepList.push(seg)

	gc.sweep()

	require.Equal(t, listActive, seg.onList)
	require.Equal(t, int64(2), seg.nextFree.Load())
	require.Equal(t, int64(2), seg.nextFreeSnap)
}

func TestSweepClassifiesFilledSegment(t *testing.T) {
	pool, oracle := newTestPool(t, 2, 1)
	gc := newTestGC(t, oracle)
	gc.heap = pool.heap

	seg := newTestSegment(2)
	seg.blockSizeLog2 = pool.blockSizeLog2
	seg.onList = listSweep
	seg.Mark(0, gc.currentEpoch())
	seg.Mark(1, gc.currentEpoch())
	gc.heap.sweepList.push(seg)

	gc.sweep()

	require.Equal(t, listFilled, seg.onList)
}

func TestSweepLargeObjectsSwapsLiveForMarkedAndClearsFlags(t *testing.T) {
	oracle := newFakeOracle()
	gc := newTestGC(t, oracle)

	lo := &LargeObject{}
	lo.setSweeping(true)
	lo.setFlag(largeFlagMarked, true)
	gc.heap.largeMarked.push(lo)

	stale := &LargeObject{}
	gc.heap.largeLive.push(stale)

	gc.sweepLargeObjects()

	require.Equal(t, 1, gc.heap.largeLive.count())
	require.Equal(t, 0, gc.heap.largeMarked.count())
	require.False(t, lo.IsMarked())
	require.False(t, lo.IsSweeping())
}

func TestSweepMutListsDropsDeadEntries(t *testing.T) {
	oracle := newFakeOracle()
	gc := newTestGC(t, oracle)
	seg := preSnapshotSegment(2)

	live := heapAddr(oracle, seg, 0, 1, &fakeObject{kind: KindConstructor})
	seg.Mark(0, gc.currentEpoch())
	dead := heapAddr(oracle, seg, 1, 2, &fakeObject{kind: KindConstructor})

	ml := &MutationList{Entries: []MutationEntry{{Ptr: live}, {Ptr: dead}}}
	gc.sweepMutLists([]*MutationList{ml})

	require.Len(t, ml.Entries, 1)
	require.Equal(t, live, ml.Entries[0].Ptr)
}

func TestSweepStableNameTableMarksDeadReferents(t *testing.T) {
	oracle := newFakeOracle()
	gc := newTestGC(t, oracle)
	seg := preSnapshotSegment(2)

	live := heapAddr(oracle, seg, 0, 1, &fakeObject{kind: KindConstructor})
	seg.Mark(0, gc.currentEpoch())
	dead := heapAddr(oracle, seg, 1, 2, &fakeObject{kind: KindConstructor})

	entries := []*StableNameEntry{{Referent: live}, {Referent: dead}}
	gc.sweepStableNameTable(entries)

	require.True(t, entries[0].Live)
	require.False(t, entries[1].Live)
}
