package oldgen

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// prepare implements spec.md §2 step 1: clear bitmaps in the snapshot
// set, rotate the mark epoch, snapshot next_free on each segment, and
// steal the large-object list from the young generation.
//
// Only filled segments need an explicit bitmap clear (spec.md §4.2);
// active and current segments were written only by the collector since
// the last sweep, so epoch rotation alone keeps their stale cells from
// being misread as "marked this cycle".
func (gc *GC) prepare() {
	gc.epochMu.Lock()
	gc.epoch = gc.epoch.next()
	gc.epochMu.Unlock()

	for _, pool := range gc.heap.pools {
		eachSegment(pool.filled.head.Load(), func(seg *Segment) {
			seg.ClearBitmap()
			seg.NextFreeSnapshot()
		})
		eachSegment(pool.active.head.Load(), func(seg *Segment) {
			seg.NextFreeSnapshot()
		})
		for i := range pool.current {
			if cur := pool.current[i].Load(); cur != nil {
				cur.NextFreeSnapshot()
			}
		}
	}

	gc.stealLargeObjectList()
}

// stealLargeObjectList marks every currently-live large object as
// in-snapshot (SWEEPING set), so anything the young generation adds
// afterward is implicitly live (spec.md §2 step 1, §3 invariant 4).
func (gc *GC) stealLargeObjectList() {
	gc.heap.largeObjectsMutex.Lock()
	defer gc.heap.largeObjectsMutex.Unlock()
	gc.heap.largeLive.each(func(lo *LargeObject) {
		lo.setSweeping(true)
		lo.setFlag(largeFlagMarked, false)
	})
}

// Collect implements spec.md §6's collect(): entry point, kicks off
// one major cycle, no-op if another cycle is active or the system is
// shutting down (spec.md §6, §7.3). The cycle runs on a single-task
// errgroup, matching "a single dedicated mark worker executes the
// concurrent mark loop" (spec.md §5): errgroup.Wait is what a
// background supervisor goroutine blocks on, while Collect itself
// returns immediately.
func (gc *GC) Collect() error {
	if gc.SchedStateNow() == SchedShuttingDown {
		return ErrShuttingDown
	}

	gc.cycleMu.Lock()
	if gc.collecting {
		gc.cycleMu.Unlock()
		return ErrCollectInProgress
	}
	gc.collecting = true
	gc.eg = &errgroup.Group{}
	gc.cycleMu.Unlock()

	gc.markThreadActive.Store(true)
	gc.eg.Go(gc.runCycle)

	go gc.awaitCycle()

	return nil
}

// awaitCycle blocks on the mark worker's errgroup and performs the
// bookkeeping Collect's caller would otherwise have to do synchronously:
// clearing the in-progress flag and waking anyone blocked in
// WaitUntilFinished.
func (gc *GC) awaitCycle() {
	err := gc.eg.Wait()
	if err != nil && gc.log != nil {
		gc.log.Info("oldgen: cycle ended early", zap.Error(err))
	}

	gc.cycleMu.Lock()
	gc.collecting = false
	gc.cycleMu.Unlock()

	gc.markThreadActive.Store(false)
	gc.concurrentCollFinishedLock.Lock()
	gc.concurrentCollFinished.Broadcast()
	gc.concurrentCollFinishedLock.Unlock()
}

// runCycle runs prepare → seed → concurrent mark → final sync → sweep
// (spec.md §2's five numbered steps). On a mid-cycle transition to
// ShuttingDown, the decision recorded in DESIGN.md applies: the mark
// worker still runs and drains, but skips the final flush and sweep,
// returning ErrShuttingDown instead (spec.md §7.3: "invariants are
// explicitly relaxed... the next start-up must assume all lists are
// empty").
func (gc *GC) runCycle() error {
	gc.prepare()

	q := NewMarkQueue(gc.globalURS)
	gc.pauser.StopAllMutators(rootScanReason)
	gc.seedRoots(q)
	gc.pauser.ReleaseAllMutators()

	gc.wb.Enabled.Store(true)

	var markTimer *prometheus.Timer
	if gc.metrics != nil {
		markTimer = prometheus.NewTimer(gc.metrics.MarkCycleSeconds)
	}

	gc.mark(q)

	if gc.SchedStateNow() == SchedShuttingDown {
		gc.wb.Enabled.Store(false)
		return ErrShuttingDown
	}

	gc.flushURS(q)

	if markTimer != nil {
		markTimer.ObserveDuration()
	}

	gc.prepareSweep()
	gc.sweep()
	gc.sweepLargeObjects()

	if gc.metrics != nil {
		gc.metrics.Cycles.Inc()
	}
	return nil
}
