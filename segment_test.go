package oldgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSegment(blockCount int) *Segment {
	return NewSegment(make([]byte, blockCount*16), 4, blockCount)
}

func TestSegmentBlockCount(t *testing.T) {
	seg := newTestSegment(6)
	require.Equal(t, 6, seg.BlockCount())
}

func TestSegmentBlockAddrRoundTrip(t *testing.T) {
	seg := newTestSegment(8)
	for i := 0; i < 8; i++ {
		addr := seg.BlockAddr(i)
		require.Equal(t, i, seg.BlockIndex(addr))
	}
}

func TestSegmentMarkAndEpochRotation(t *testing.T) {
	seg := newTestSegment(4)
	epoch := startEpoch

	seg.Mark(0, epoch)
	require.True(t, seg.IsMarked(0, epoch))
	require.False(t, seg.IsMarked(1, epoch))

	next := epoch.next()
	require.False(t, seg.IsMarked(0, next), "a mark from the prior epoch must not read as marked this cycle")
}

func TestSegmentClearBitmap(t *testing.T) {
	seg := newTestSegment(4)
	seg.Mark(0, startEpoch)
	seg.Mark(2, startEpoch)
	seg.ClearBitmap()
	for i := 0; i < 4; i++ {
		require.False(t, seg.IsMarked(i, startEpoch))
	}
}

func TestSegmentIsLiveAtPostSnapshot(t *testing.T) {
	seg := newTestSegment(4)
	seg.nextFree.Store(2)
	seg.NextFreeSnapshot() // next_free_snap == 2

	epoch := startEpoch
	require.True(t, seg.IsLiveAt(2, epoch), "block 2 was allocated at/after the snapshot, implicitly live")
	require.True(t, seg.IsLiveAt(3, epoch))
	require.False(t, seg.IsLiveAt(0, epoch), "block 0 predates the snapshot and is unmarked")

	seg.Mark(0, epoch)
	require.True(t, seg.IsLiveAt(0, epoch))
}

func TestSegmentClassifyFree(t *testing.T) {
	seg := newTestSegment(4)
	// Nothing marked, next_free_snap still zero value: classify() only
	// looks at the bitmap, so an all-unmarked segment is FREE regardless
	// of next_free_snap.
	class, _ := seg.classify(startEpoch)
	require.Equal(t, classFree, class)
}

func TestSegmentClassifyPartialAndFilled(t *testing.T) {
	seg := newTestSegment(4)
	seg.Mark(0, startEpoch)
	seg.Mark(1, startEpoch)
	class, first := seg.classify(startEpoch)
	require.Equal(t, classPartial, class)
	require.Equal(t, 2, first)

	seg.Mark(2, startEpoch)
	seg.Mark(3, startEpoch)
	class, _ = seg.classify(startEpoch)
	require.Equal(t, classFilled, class)
}
