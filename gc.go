package oldgen

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SchedState mirrors the process-level scheduler state spec.md §5's
// "Cancellation / shutdown" paragraph reacts to.
type SchedState int32

const (
	SchedRunning SchedState = iota
	SchedShuttingDown
)

// GC is the single process-wide NonMovingGc value (DESIGN NOTES §9:
// "Encapsulate them in a single NonMovingGc value owned by the runtime
// and pass references explicitly rather than relying on globals"). It
// owns the heap, the mark epoch, the write-barrier flag, and the mark
// worker handle.
type GC struct {
	cfg    *Config
	heap   *Heap
	oracle HeapOracle
	pauser Pauser
	log    *zap.Logger
	metrics *Metrics

	epochMu sync.Mutex
	epoch   MarkEpoch

	wb        *WriteBarrier
	globalURS *globalURS

	capsMu sync.RWMutex
	caps   []*Capability

	schedState atomic.Int32

	// cycleMu guards the "another cycle active" check (spec.md §6,
	// Collect is a no-op if another cycle is active).
	cycleMu    sync.Mutex
	collecting bool

	// concurrentCollFinished publishes the mark worker's completion,
	// guarded by concurrentCollFinishedLock — the direct translation of
	// spec.md §5's named condition variable and its guard lock.
	concurrentCollFinishedLock sync.Mutex
	concurrentCollFinished     *sync.Cond
	markThreadActive           atomic.Bool

	roots  rootSources
	weaks  *weakList
	threads *threadList

	flushMu    sync.Mutex
	flushCond  *sync.Cond
	flushCount int

	eg *errgroup.Group
}

// rootSources holds the collaborator callbacks that produce each root
// category spec.md §2 step 2 and §5 name: static closures, per-capability
// root sets (read directly off gc.caps), scheduler roots, the stable
// pointer table, and the weak list (seeded separately via
// SeedWeaksAndThreads).
type rootSources struct {
	staticClosures     func() []uintptr
	schedulerRoots     func() []uintptr
	stablePointerTable func() []uintptr
}

// Init constructs a GC ready to serve Allocate/Collect calls, per
// spec.md §6's init()/exit() pair. numCaps is the initial capability
// count; AddCapabilities grows it later.
func Init(cfg *Config, numCaps int) *GC {
	gc := &GC{
		cfg:       cfg,
		oracle:    cfg.Oracle,
		pauser:    cfg.Pauser,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		epoch:     startEpoch,
		globalURS: newGlobalURS(),
		weaks:     newWeakList(),
		threads:   newThreadList(),
	}
	gc.heap = newHeap(cfg, numCaps)
	gc.wb = newWriteBarrier(gc)
	gc.concurrentCollFinished = sync.NewCond(&gc.concurrentCollFinishedLock)
	gc.flushCond = sync.NewCond(&gc.flushMu)

	gc.caps = make([]*Capability, numCaps)
	for i := range gc.caps {
		gc.caps[i] = newCapability(i, gc.globalURS)
	}
	return gc
}

// Close releases resources Init created. There is no persisted state
// (spec.md §6), so it only sets the scheduler state to ShuttingDown and
// wakes anyone waiting on the mark worker.
func (gc *GC) Close() {
	gc.schedState.Store(int32(SchedShuttingDown))
	gc.concurrentCollFinishedLock.Lock()
	gc.concurrentCollFinished.Broadcast()
	gc.concurrentCollFinishedLock.Unlock()
}

// SetRootSources installs the callbacks Collect uses to seed static,
// scheduler, and stable-pointer-table roots (spec.md §2 step 2).
func (gc *GC) SetRootSources(staticClosures, schedulerRoots, stablePointerTable func() []uintptr) {
	gc.roots = rootSources{
		staticClosures:     staticClosures,
		schedulerRoots:     schedulerRoots,
		stablePointerTable: stablePointerTable,
	}
}

// SeedWeaksAndThreads installs the weak pointers and threads live at
// the start of the next cycle (spec.md §4.6).
func (gc *GC) SeedWeaksAndThreads(weaks []*Weak, threads []*Thread) {
	gc.weaks.seed(weaks)
	gc.threads.seed(threads)
}

// AddCapabilities grows the per-capability current-segment arrays
// (spec.md §6). The caller must hold the storage lock and guarantee no
// GC/mutators run, per the contract in the spec.
func (gc *GC) AddCapabilities(n int) {
	gc.capsMu.Lock()
	defer gc.capsMu.Unlock()

	gc.heap.grow(n)
	base := len(gc.caps)
	for i := 0; i < n; i++ {
		gc.caps = append(gc.caps, newCapability(base+i, gc.globalURS))
	}
}

// Capabilities returns the current capability slice. Callers must not
// retain it across an AddCapabilities call.
func (gc *GC) Capabilities() []*Capability {
	gc.capsMu.RLock()
	defer gc.capsMu.RUnlock()
	return gc.caps
}

// Allocate implements spec.md §6's allocate(cap, words).
func (gc *GC) Allocate(cap *Capability, words int) uintptr {
	seg, idx := gc.heap.Allocate(cap, words, 8)
	return seg.BlockAddr(idx)
}

// AllocateRaw returns the segment and block index backing a fresh
// allocation rather than a flattened address. Real block_descriptor(p)
// lookups are built out of band from page/segment tables the oracle
// owns (spec.md §1); oracles that build such a table need the segment
// identity at allocation time, which the flattened address in Allocate
// discards.
func (gc *GC) AllocateRaw(cap *Capability, words int) (*Segment, int) {
	return gc.heap.Allocate(cap, words, 8)
}

// RegisterLargeObject adds a large object to the live snapshot list.
// Large-object allocation itself is external to this package (spec.md
// §4.1, "oversize objects are large objects, handled externally"); this
// is the hook that lets the allocator hand a fresh descriptor to the
// collector once it exists.
func (gc *GC) RegisterLargeObject(lo *LargeObject) {
	gc.heap.largeObjectsMutex.Lock()
	defer gc.heap.largeObjectsMutex.Unlock()
	gc.heap.largeLive.push(lo)
}

// SchedStateNow reports the current scheduler state.
func (gc *GC) SchedStateNow() SchedState {
	return SchedState(gc.schedState.Load())
}

// SetSchedState transitions the scheduler state (spec.md §5, §7.3).
func (gc *GC) SetSchedState(s SchedState) {
	gc.schedState.Store(int32(s))
}

// WaitUntilFinished blocks until any in-flight concurrent cycle drains
// (spec.md §6).
func (gc *GC) WaitUntilFinished() {
	gc.concurrentCollFinishedLock.Lock()
	defer gc.concurrentCollFinishedLock.Unlock()
	for gc.markThreadActive.Load() {
		gc.concurrentCollFinished.Wait()
	}
}

// currentEpoch returns the epoch in force for the cycle currently
// running (or the last completed one).
func (gc *GC) currentEpoch() MarkEpoch {
	gc.epochMu.Lock()
	defer gc.epochMu.Unlock()
	return gc.epoch
}

// WriteBarrierEnabled is the public boolean spec.md §6 exposes so
// generated mutator code may elide the barrier when false.
func (gc *GC) WriteBarrierEnabled() bool {
	return gc.wb.Enabled.Load()
}

// WriteBarrier returns the push_closure/push_thunk/push_tso/push_stack
// surface spec.md §4.5 and §6 expose to generated mutator code.
func (gc *GC) WriteBarrier() *WriteBarrier {
	return gc.wb
}
