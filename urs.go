package oldgen

import "sync"

// globalURS is the process-wide chain update remembered sets are
// spliced onto once a per-capability block fills (spec.md §3, "Update
// remembered set (per mutator)"; §4.5). Protected by a short critical
// section, matching spec.md §5's "URS splice: short critical section
// under urs_lock".
type globalURS struct {
	mu   sync.Mutex
	head *queueBlock
}

func newGlobalURS() *globalURS { return &globalURS{} }

// splice prepends a block (or chain of blocks, linked via .next) to the
// global URS under the lock. The acquire-release discipline of the
// mutex is what makes an URS entry observable to the mark worker before
// the mutator returns from the overwrite (spec.md §5, ordering
// guarantees).
func (g *globalURS) splice(b *queueBlock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b.next.Store(g.head)
	g.head = b
}

// steal atomically detaches the entire global chain and returns it, or
// nil if empty. Called by MarkQueue.pop on NULL_ENTRY (spec.md §4.3)
// and by the flush protocol's final drain (spec.md §4.5 step 4).
func (g *globalURS) steal() *queueBlock {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.head
	g.head = nil
	return h
}

func (g *globalURS) isEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.head == nil
}

// mutatorURS is the per-capability write-barrier accumulator (spec.md
// §3, "Update remembered set (per mutator)"). When it fills, the
// current block is spliced into the global chain and a fresh block
// replaces it (spec.md §4.5).
type mutatorURS struct {
	mu      sync.Mutex
	current *queueBlock
	global  *globalURS

	// ursSyncd is read/written only under the flush protocol's
	// coordination (flush.go); it is not an atomic because every access
	// happens either from the owning capability during a write-barrier
	// call, or from the mark worker during the stop-the-world flush
	// window, never both concurrently.
	ursSyncd bool
}

func newMutatorURS(global *globalURS) *mutatorURS {
	return &mutatorURS{current: newQueueBlock(true), global: global}
}

// push appends an entry, splicing the full block to global and
// allocating a fresh one if necessary (spec.md §4.5).
func (u *mutatorURS) push(e queueEntry) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current.full() {
		u.global.splice(u.current)
		u.current = newQueueBlock(true)
	}
	u.current.push(e)
}

// flush splices whatever is currently accumulated (even if not full)
// into the global chain and marks urs_syncd, per spec.md §4.5 step 2.
// Called only from the flush protocol with mutators stopped.
func (u *mutatorURS) flush() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current.head > 0 {
		u.global.splice(u.current)
		u.current = newQueueBlock(true)
	}
	u.ursSyncd = true
}

func (u *mutatorURS) resetSync() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ursSyncd = false
}
