package oldgen

import "go.uber.org/atomic"

// entryKind distinguishes the mark-queue entry variants of spec.md §3:
// CLOSURE{p, origin}, ARRAY{array, start_index}, NULL_ENTRY.
type entryKind uint8

const (
	entryNull entryKind = iota
	entryClosure
	entryArray
)

type queueEntry struct {
	kind   entryKind
	p      uintptr
	origin uintptr
	arr    PointerArray
	start  int
}

// blockEntries is the number of entries per queue block. Chosen to
// keep one block a convenient allocation unit; the spec does not fix
// this value.
const blockEntries = 512

// queueBlock is the block-backed storage both the mark queue and the
// per-mutator update remembered set use (spec.md §3: "Has the same
// block layout as a mark queue but with a flag is_upd_rem_set = true").
type queueBlock struct {
	entries     [blockEntries]queueEntry
	head        int // number of entries currently populated
	next        atomic.Pointer[queueBlock]
	isUpdRemSet bool
}

func newQueueBlock(isURS bool) *queueBlock {
	return &queueBlock{isUpdRemSet: isURS}
}

func (b *queueBlock) full() bool { return b.head >= blockEntries }

func (b *queueBlock) push(e queueEntry) {
	b.entries[b.head] = e
	b.head++
}

// MarkQueue is the FIFO of traversal entries the mark engine drains
// (spec.md §3, "Mark queue"). Only the single concurrent mark worker
// ever touches a MarkQueue directly (spec.md: "the spec permits one
// concurrent mark worker"), so no internal locking is needed beyond
// what stealing from the global URS requires.
type MarkQueue struct {
	blocks []*queueBlock // chain of blocks still to drain, oldest first
	pos    int           // index of current block in blocks
	idx    int           // index of next entry to pop within blocks[pos]

	markedObjects map[uintptr]struct{} // dedup hash set for static closures

	urs *globalURS
}

// NewMarkQueue constructs an empty queue backed by the given global URS
// (for the NULL_ENTRY → steal-global-chain behavior).
func NewMarkQueue(urs *globalURS) *MarkQueue {
	return &MarkQueue{
		markedObjects: make(map[uintptr]struct{}),
		urs:           urs,
	}
}

func (q *MarkQueue) ensureTail() *queueBlock {
	if len(q.blocks) == 0 || q.blocks[len(q.blocks)-1].full() {
		q.blocks = append(q.blocks, newQueueBlock(false))
	}
	return q.blocks[len(q.blocks)-1]
}

// PushClosure enqueues a CLOSURE{p, origin} entry.
func (q *MarkQueue) PushClosure(p, origin uintptr) {
	q.ensureTail().push(queueEntry{kind: entryClosure, p: p, origin: origin})
}

// PushArray enqueues an ARRAY{array, start} entry.
func (q *MarkQueue) PushArray(arr PointerArray, start int) {
	q.ensureTail().push(queueEntry{kind: entryArray, arr: arr, start: start})
}

// dedupStatic reports whether addr was already seen this cycle,
// recording it if not. Static closures have no bitmap cell, so the
// mark engine uses this hash set in their place (spec.md §4.3).
func (q *MarkQueue) dedupStatic(addr uintptr) (alreadySeen bool) {
	if _, ok := q.markedObjects[addr]; ok {
		return true
	}
	q.markedObjects[addr] = struct{}{}
	return false
}

// pop implements the NULL_ENTRY behavior of spec.md §4.3: if the
// current chain is exhausted, try to adopt the global URS chain and
// continue; only report empty (ok=false) once that also yields
// nothing.
func (q *MarkQueue) pop() (queueEntry, bool) {
	for {
		if q.pos < len(q.blocks) {
			b := q.blocks[q.pos]
			if q.idx < b.head {
				e := b.entries[q.idx]
				q.idx++
				return e, true
			}
			q.pos++
			q.idx = 0
			continue
		}
		// Chain exhausted: NULL_ENTRY. Try to steal the global URS.
		if stolen := q.urs.steal(); stolen != nil {
			q.adopt(stolen)
			continue
		}
		return queueEntry{}, false
	}
}

// adopt appends a chain of URS blocks (linked via queueBlock.next) to
// the queue's own block list, continuing the drain.
func (q *MarkQueue) adopt(chain *queueBlock) {
	for b := chain; b != nil; {
		next := b.next.Load()
		q.blocks = append(q.blocks, b)
		b = next
	}
}

// empty reports whether the local chain (ignoring the global URS) has
// been fully drained. Used by tests asserting the idempotence law
// (spec.md §8: "calling mark(queue) on an empty queue is a no-op").
func (q *MarkQueue) empty() bool {
	if q.pos < len(q.blocks) && q.idx < q.blocks[q.pos].head {
		return false
	}
	for i := q.pos + 1; i < len(q.blocks); i++ {
		if q.blocks[i].head > 0 {
			return false
		}
	}
	return true
}
