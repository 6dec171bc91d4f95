package oldgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// runCollectAndWait drives a full asynchronous cycle the way a real
// caller would: Collect kicks off the mark worker, WaitUntilFinished
// blocks until it (and the flush/sweep it triggers) has completed.
func runCollectAndWait(t *testing.T, gc *GC) {
	t.Helper()
	require.NoError(t, gc.Collect())
	gc.WaitUntilFinished()
}

func TestIntegrationFullyDeadSegmentIsReclaimed(t *testing.T) {
	oracle := newFakeOracle()
	cfg := testConfig(oracle)
	gc := Init(cfg, 1)
	cap := gc.Capabilities()[0]

	var seg *Segment
	for i := 0; i < 16; i++ { // exactly one size-class-0 segment's worth of blocks
		s, idx := gc.AllocateRaw(cap, 1)
		addr := s.BlockAddr(idx)
		oracle.put(addr, BlockDescriptor{Segment: s, BlockIndex: idx}, &fakeObject{kind: KindConstructor})
		seg = s
	}
	require.Equal(t, listFilled, seg.onList, "16 allocations must exactly fill a 16-block segment")

	runCollectAndWait(t, gc)

	require.Equal(t, listFree, seg.onList, "a segment with nothing reachable must be reclaimed whole")
}

func TestIntegrationRootedSurvivorKeepsSegmentPartialAndIsReused(t *testing.T) {
	oracle := newFakeOracle()
	cfg := testConfig(oracle)
	gc := Init(cfg, 1)
	cap := gc.Capabilities()[0]

	var seg *Segment
	var survivor uintptr
	for i := 0; i < 16; i++ {
		s, idx := gc.AllocateRaw(cap, 1)
		addr := s.BlockAddr(idx)
		oracle.put(addr, BlockDescriptor{Segment: s, BlockIndex: idx}, &fakeObject{kind: KindConstructor})
		seg = s
		if i == 0 {
			survivor = addr
		}
	}
	cap.Roots = []uintptr{survivor}

	runCollectAndWait(t, gc)

	require.Equal(t, listActive, seg.onList, "one surviving block keeps the segment partial")
	require.True(t, gc.IsAlive(survivor))

	s2, idx2 := gc.AllocateRaw(cap, 1)
	require.Same(t, seg, s2, "the partial segment must be reused before a fresh one is taken")
	require.Equal(t, 1, idx2, "allocation resumes at the first reclaimed block, not block 0")
}

func TestIntegrationPostSnapshotAllocationIsImplicitlyLive(t *testing.T) {
	oracle := newFakeOracle()
	cfg := testConfig(oracle)
	gc := Init(cfg, 1)
	cap := gc.Capabilities()[0]

	gc.prepare() // takes the mark snapshot directly, without a full async cycle

	seg, idx := gc.AllocateRaw(cap, 1)
	addr := seg.BlockAddr(idx)
	oracle.put(addr, BlockDescriptor{Segment: seg, BlockIndex: idx}, &fakeObject{kind: KindConstructor})

	require.True(t, gc.IsAlive(addr), "an allocation made after the snapshot was taken must be live by construction")
	require.False(t, seg.IsMarked(idx, gc.currentEpoch()), "it must be live without ever being traced")
}

func TestIntegrationDeadWeakKeyEndsUpOnDeadList(t *testing.T) {
	oracle := newFakeOracle()
	cfg := testConfig(oracle)
	gc := Init(cfg, 1)
	cap := gc.Capabilities()[0]
	_ = cap

	seg := preSnapshotSegment(4)
	key := heapAddr(oracle, seg, 0, 1, &fakeObject{kind: KindConstructor}) // never rooted
	value := heapAddr(oracle, seg, 1, 2, &fakeObject{kind: KindConstructor})
	finalizer := heapAddr(oracle, seg, 2, 3, &fakeObject{kind: KindConstructor})
	w := &Weak{Key: key, Value: value, Finalizer: finalizer}
	gc.SeedWeaksAndThreads([]*Weak{w}, nil)

	runCollectAndWait(t, gc)

	dead := gc.DeadWeaks()
	require.Len(t, dead, 1)
	require.Same(t, w, dead[0])
	require.True(t, seg.IsMarked(2, gc.currentEpoch()), "the finalizer is still traced even though the key died")
	require.False(t, seg.IsMarked(1, gc.currentEpoch()), "the value is never traced when the key never becomes live")
}

func TestIntegrationLiveWeakKeyPromotesValue(t *testing.T) {
	oracle := newFakeOracle()
	cfg := testConfig(oracle)
	gc := Init(cfg, 1)
	cap := gc.Capabilities()[0]

	seg := preSnapshotSegment(4)
	key := heapAddr(oracle, seg, 0, 1, &fakeObject{kind: KindConstructor})
	value := heapAddr(oracle, seg, 1, 2, &fakeObject{kind: KindConstructor})
	w := &Weak{Key: key, Value: value}
	gc.SeedWeaksAndThreads([]*Weak{w}, nil)
	cap.Roots = []uintptr{key}

	runCollectAndWait(t, gc)

	require.Empty(t, gc.DeadWeaks())
	require.True(t, gc.IsAlive(value))
}

func TestIntegrationArrayChunkingTracesEveryElement(t *testing.T) {
	oracle := newFakeOracle()
	cfg := testConfig(oracle)
	gc := Init(cfg, 1)
	cap := gc.Capabilities()[0]

	n := MarkArrayChunkLength*2 + 3
	seg := preSnapshotSegment(n + 1)

	children := make([]uintptr, n)
	for i := 0; i < n; i++ {
		children[i] = heapAddr(oracle, seg, i+1, uintptr(i+2), &fakeObject{kind: KindConstructor})
	}
	arr := &sliceArray{vals: children}
	root := heapAddr(oracle, seg, 0, 1, &fakeObject{kind: KindArrayPtrs, array: arr})
	cap.Roots = []uintptr{root}

	runCollectAndWait(t, gc)

	require.True(t, seg.IsMarked(0, gc.currentEpoch()))
	for i := 0; i < n; i++ {
		require.True(t, seg.IsMarked(i+1, gc.currentEpoch()), "element %d must be traced across a chunked array walk", i)
	}
}

func TestIntegrationStackHandshakeTracesFieldsAndClaimsMark(t *testing.T) {
	oracle := newFakeOracle()
	cfg := testConfig(oracle)
	gc := Init(cfg, 1)
	cap := gc.Capabilities()[0]

	seg := preSnapshotSegment(2)
	stack := NewStack(1)
	child := heapAddr(oracle, seg, 1, 2, &fakeObject{kind: KindConstructor})
	stackObj := &fakeObject{kind: KindStack, stack: stack, frames: []StackFrame{{Tag: FrameUpdate, Fields: []uintptr{child}}}}
	stackAddr := heapAddr(oracle, seg, 0, 1, stackObj)
	cap.Roots = []uintptr{stackAddr}

	runCollectAndWait(t, gc)

	require.True(t, seg.IsMarked(0, gc.currentEpoch()))
	require.True(t, seg.IsMarked(1, gc.currentEpoch()))
	require.False(t, stack.needsMarking(), "the collector claims the stack's mark for the duration of the cycle")
}
