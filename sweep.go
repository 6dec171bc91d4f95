package oldgen

import "go.uber.org/zap"

// IsAlive implements the is_alive(p) predicate of spec.md §4.7, exposed
// to collaborators (minor GC, stable-table sweeping) per spec.md §6.
func (gc *GC) IsAlive(p uintptr) bool {
	if p == 0 {
		return true
	}
	if !gc.oracle.IsHeapAllocated(p) {
		// Static and non-heap pointers: alive (spec.md §4.7).
		return true
	}
	desc, ok := gc.oracle.Resolve(p)
	if !ok {
		return true
	}
	return gc.isAliveDescriptor(desc)
}

func (gc *GC) isAliveLocked(p uintptr) bool { return gc.IsAlive(p) }

func (gc *GC) isAliveDescriptor(desc BlockDescriptor) bool {
	if desc.Static {
		return true
	}
	if desc.Large != nil {
		// Alive iff not in snapshot (SWEEPING not set) OR MARKED set
		// (spec.md §4.7).
		return !desc.Large.IsSweeping() || desc.Large.IsMarked()
	}
	if desc.Segment != nil {
		epoch := gc.currentEpoch()
		return desc.Segment.IsLiveAt(desc.BlockIndex, epoch)
	}
	return true
}

// prepareSweep implements spec.md §4.8: splice every pool's filled
// list onto the global sweep_list, using CAS to detach atomically.
func (gc *GC) prepareSweep() {
	gc.logSweep("prepare_sweep")
	for _, pool := range gc.heap.pools {
		head := pool.filled.detachAll()
		eachSegment(head, func(seg *Segment) {
			seg.onList = listSweep
			gc.heap.sweepList.push(seg)
		})
	}
}

// sweep implements spec.md §4.8: for each segment on sweep_list, scan
// its bitmap and reclassify it as FREE, PARTIAL, or FILLED.
func (gc *GC) sweep() {
	gc.logSweep("sweep")
	epoch := gc.currentEpoch()
	head := gc.heap.sweepList.detachAll()

	// Segments are reclassified into per-pool active/filled or the
	// shared free list; since every segment in a pool shares that
	// pool's size class, look the pool up by block size.
	poolByLog2 := make(map[uint8]*Pool, len(gc.heap.pools))
	for _, p := range gc.heap.pools {
		poolByLog2[p.blockSizeLog2] = p
	}

	eachSegment(head, func(seg *Segment) {
		class, firstUnmarked := seg.classify(epoch)
		pool := poolByLog2[seg.blockSizeLog2]
		switch class {
		case classFree:
			seg.ClearBitmap()
			gc.heap.releaseFreeSegment(seg)
			if gc.metrics != nil {
				gc.metrics.SegmentsFree.Inc()
			}
		case classPartial:
			seg.nextFree.Store(int64(firstUnmarked))
			seg.nextFreeSnap = int64(firstUnmarked)
			seg.onList = listActive
			if pool != nil {
				pool.active.push(seg)
			}
			if gc.metrics != nil {
				gc.metrics.SegmentsPartial.Inc()
			}
		case classFilled:
			seg.onList = listFilled
			if pool != nil {
				pool.filled.push(seg)
			}
			if gc.metrics != nil {
				gc.metrics.SegmentsFilled.Inc()
			}
		}
	})
}

// sweepLargeObjects implements spec.md §4.8: replace the live-snapshot
// list with the marked list and clear the marked list, resetting the
// survivors' MARKED and SWEEPING flags for the next cycle.
func (gc *GC) sweepLargeObjects() {
	gc.heap.largeObjectsMutex.Lock()
	defer gc.heap.largeObjectsMutex.Unlock()

	gc.heap.largeLive = gc.heap.largeMarked
	gc.heap.largeMarked = largeObjectSet{}

	gc.heap.largeLive.each(func(lo *LargeObject) {
		lo.setFlag(largeFlagMarked, false)
		lo.setSweeping(false)
	})
}

// MutationEntry is one record on a capability's mutation list: a
// pointer the young-generation scavenger needs to re-check each minor
// collection (spec.md §4.8, sweep_mut_lists).
type MutationEntry struct {
	Ptr uintptr
}

// MutationList is the per-capability list sweepMutLists rewrites.
type MutationList struct {
	Entries []MutationEntry
}

// sweepMutLists implements spec.md §4.8: for each capability, allocate
// a new mutation list, walk the old one, and copy entries pointing to
// live objects into the new one; discard the rest.
func (gc *GC) sweepMutLists(lists []*MutationList) {
	for _, ml := range lists {
		if ml == nil {
			continue
		}
		kept := ml.Entries[:0:0]
		for _, e := range ml.Entries {
			if gc.IsAlive(e.Ptr) {
				kept = append(kept, e)
			}
		}
		ml.Entries = kept
	}
}

// StableNameEntry is one entry of the stable-name table (spec.md §4.8,
// sweep_stable_name_table).
type StableNameEntry struct {
	Referent uintptr
	Live     bool
}

// sweepStableNameTable sets each entry's Live flag to whether its
// referent is alive. It does not remove entries from the table: an
// entry with a dead referent stays in place with Live set to false.
func (gc *GC) sweepStableNameTable(table []*StableNameEntry) {
	for _, e := range table {
		if e == nil {
			continue
		}
		e.Live = gc.IsAlive(e.Referent)
	}
}

func (gc *GC) logSweep(msg string, fields ...zap.Field) {
	gc.log.Debug(msg, fields...)
}
