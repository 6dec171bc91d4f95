package oldgen

import "sync"

// Weak is a key/value pair plus finalizer, per spec.md §4.6. Once the
// key is found live, Value, Finalizer and CFinalizers are marked
// (tidyWeaks). For a weak whose key stays dead, finalPostFixpoint marks
// Finalizer, and Value as well when CFinalizers is non-empty.
type Weak struct {
	Key         uintptr
	Value       uintptr
	Finalizer   uintptr
	CFinalizers []uintptr // C finalizers; a non-empty list keeps Value marked when the key is dead (spec.md §4.6)

	next *Weak
}

// Thread represents a runnable-but-reachable-only-via-the-scheduler
// thread object (spec.md §4.6). Closure is the thread's own closure,
// whose liveness gates whether the thread moves to the live list or is
// resurrected.
type Thread struct {
	Closure uintptr
	next    *Thread
}

// weakList holds the old/new generation lists spec.md §4.6 walks:
// old_weak_ptrs is scanned each fixpoint round, survivors move to
// weak_ptrs, and anything left over after the final round is dead.
type weakList struct {
	mu          sync.Mutex
	oldWeakPtrs *Weak
	weakPtrs    *Weak
	dead        *Weak
}

func newWeakList() *weakList { return &weakList{} }

// seed installs the weak pointers live at cycle start as old_weak_ptrs
// and clears weak_ptrs/dead for the new cycle.
func (w *weakList) seed(weaks []*Weak) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.oldWeakPtrs = nil
	for _, wk := range weaks {
		wk.next = w.oldWeakPtrs
		w.oldWeakPtrs = wk
	}
	w.weakPtrs = nil
	w.dead = nil
}

// threadList is the analogous old_threads/threads pair of spec.md §4.6.
type threadList struct {
	mu         sync.Mutex
	oldThreads *Thread
	threads    *Thread
}

func newThreadList() *threadList { return &threadList{} }

func (t *threadList) seed(threads []*Thread) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.oldThreads = nil
	for _, th := range threads {
		th.next = t.oldThreads
		t.oldThreads = th
	}
	t.threads = nil
}

// fixpoint runs the repeat-until-stable loop of spec.md §4.6: mark to
// empty, tidy threads, tidy weaks, loop while progress was made. rounds
// is returned for the FixpointRounds metric.
func (gc *GC) fixpoint(q *MarkQueue) (rounds int) {
	for {
		rounds++
		gc.mark(q)

		progress := gc.tidyThreads(q)
		if gc.tidyWeaks(q) {
			progress = true
		}
		if !progress {
			return rounds
		}
	}
}

// tidyThreads implements spec.md §4.6 step 2: move live threads from
// old_threads to threads. Returns whether any move happened (counts as
// progress since newly-live threads can themselves keep other objects
// alive, requiring another mark pass).
func (gc *GC) tidyThreads(q *MarkQueue) bool {
	gc.threads.mu.Lock()
	defer gc.threads.mu.Unlock()

	progress := false
	var stillOld *Thread
	for th := gc.threads.oldThreads; th != nil; {
		next := th.next
		if gc.isAliveLocked(th.Closure) {
			th.next = gc.threads.threads
			gc.threads.threads = th
			progress = true
		} else {
			th.next = stillOld
			stillOld = th
		}
		th = next
	}
	gc.threads.oldThreads = stillOld
	return progress
}

// tidyWeaks implements spec.md §4.6 step 3: for each weak on
// old_weak_ptrs, if its key is live, mark value/finalizer/c-finalizers
// and move it to weak_ptrs. Any move is progress, per the spec's "If
// any weak moved, report progress."
func (gc *GC) tidyWeaks(q *MarkQueue) bool {
	gc.weaks.mu.Lock()
	defer gc.weaks.mu.Unlock()

	progress := false
	var stillOld *Weak
	for wk := gc.weaks.oldWeakPtrs; wk != nil; {
		next := wk.next
		if gc.isAliveLocked(wk.Key) {
			gc.markClosure(q, wk.Value, 0)
			if wk.Finalizer != 0 {
				gc.markClosure(q, wk.Finalizer, 0)
			}
			for _, cf := range wk.CFinalizers {
				gc.markClosure(q, cf, 0)
			}
			wk.next = gc.weaks.weakPtrs
			gc.weaks.weakPtrs = wk
			progress = true
		} else {
			wk.next = stillOld
			stillOld = wk
		}
		wk = next
	}
	gc.weaks.oldWeakPtrs = stillOld
	return progress
}

// finalPostFixpoint implements spec.md §4.6's "Final post-fixpoint":
// resurrect everything left on old_threads, drain once more, then push
// dead weaks onto the global dead-weak list, still marking their
// finalizer (and value, if they carry C finalizers) so finalizers can
// run on objects whose key is no longer live.
func (gc *GC) finalPostFixpoint(q *MarkQueue) {
	gc.threads.mu.Lock()
	for th := gc.threads.oldThreads; th != nil; th = th.next {
		q.PushClosure(th.Closure, 0)
	}
	gc.threads.oldThreads = nil
	gc.threads.mu.Unlock()

	gc.mark(q)

	gc.weaks.mu.Lock()
	defer gc.weaks.mu.Unlock()
	for wk := gc.weaks.oldWeakPtrs; wk != nil; {
		next := wk.next
		if wk.Finalizer != 0 {
			gc.markClosure(q, wk.Finalizer, 0)
		}
		if len(wk.CFinalizers) > 0 && wk.Value != 0 {
			gc.markClosure(q, wk.Value, 0)
		}
		wk.next = gc.weaks.dead
		gc.weaks.dead = wk
		wk = next
	}
	gc.weaks.oldWeakPtrs = nil
}

// DeadWeaks returns (and detaches) the dead-weak list accumulated by
// the most recently completed cycle, for the caller to run finalizers
// against. Dispatch capability selection is round-robin by weak index
// (DESIGN.md open-question decision 3).
func (gc *GC) DeadWeaks() []*Weak {
	gc.weaks.mu.Lock()
	defer gc.weaks.mu.Unlock()
	var out []*Weak
	for wk := gc.weaks.dead; wk != nil; wk = wk.next {
		out = append(out, wk)
	}
	gc.weaks.dead = nil
	return out
}

// FinalizerCapability returns which capability index should run the
// i-th dead weak's finalizer, round-robin across the registered
// capabilities.
func (gc *GC) FinalizerCapability(i int) int {
	n := len(gc.caps)
	if n == 0 {
		return 0
	}
	return i % n
}
