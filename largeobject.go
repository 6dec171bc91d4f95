package oldgen

import "go.uber.org/atomic"

// largeObjFlags bits, stored in a LargeObject's flags word (spec.md §3,
// "Large object lists"; §3 invariant 4).
const (
	largeFlagSweeping uint32 = 1 << iota // in-snapshot: present when the current cycle's sweep began
	largeFlagMarked                      // marked this cycle
)

// LargeObject is the descriptor for an object too big for the
// segmented allocator (spec.md glossary, "Large object"). Its mark bit
// lives in the descriptor's flags rather than a bitmap, since a bitmap
// would cost too much for objects this size (spec.md §3).
type LargeObject struct {
	Addr  uintptr
	Bytes uintptr

	flags atomic.Uint32
	link  atomic.Pointer[LargeObject]
}

// IsSweeping reports the SWEEPING flag: whether this descriptor is
// considered in-snapshot for the current cycle (spec.md §3 invariant 4).
func (l *LargeObject) IsSweeping() bool {
	return l.flags.Load()&largeFlagSweeping != 0
}

// IsMarked reports the MARKED flag.
func (l *LargeObject) IsMarked() bool {
	return l.flags.Load()&largeFlagMarked != 0
}

func (l *LargeObject) setSweeping(v bool) { l.setFlag(largeFlagSweeping, v) }

func (l *LargeObject) setFlag(bit uint32, v bool) {
	for {
		old := l.flags.Load()
		var next uint32
		if v {
			next = old | bit
		} else {
			next = old &^ bit
		}
		if old == next || l.flags.CAS(old, next) {
			return
		}
	}
}

// largeObjectSet is a singly-linked, mutex-guarded list of large
// objects (spec.md §5: "Large-object list mutation: large_objects_mutex").
// The transition MARKED ∉ flags → MARKED ∈ flags must happen under this
// mutex (spec.md §3 invariant 4); markLargeObject (markengine.go) is the one
// caller that performs it.
type largeObjectSet struct {
	head *LargeObject
}

func (s *largeObjectSet) push(l *LargeObject) {
	l.link.Store(s.head)
	s.head = l
}

func (s *largeObjectSet) each(fn func(*LargeObject)) {
	for l := s.head; l != nil; l = l.link.Load() {
		fn(l)
	}
}

func (s *largeObjectSet) count() int {
	n := 0
	s.each(func(*LargeObject) { n++ })
	return n
}
