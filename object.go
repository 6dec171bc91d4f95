package oldgen

// ObjectKind is the runtime type tag the mark engine dispatches on. It
// realizes the "type-dispatch policy" table of spec.md §4.3 as a
// closed, exhaustively-matched enum rather than a shape spec — decoding
// the actual object layout (info tables, SRTs, bitmaps) remains the
// HeapOracle collaborator's job (spec.md §1); this package only needs
// to know which family an object belongs to and which of its words are
// pointers.
type ObjectKind uint8

const (
	// KindConstructor covers constructors, primitives, and weak
	// pointers: every pointer field is enqueued by index.
	KindConstructor ObjectKind = iota
	// KindThunk covers thunks and functions: the SRT (if non-nil) is
	// enqueued first, then pointer fields.
	KindThunk
	// KindArrayPtrs is a (possibly large) array of pointers, traversed
	// via chunked ARRAY mark-queue entries.
	KindArrayPtrs
	// KindSmallArrayPtrs is a small array of pointers, enumerated
	// inline rather than chunked.
	KindSmallArrayPtrs
	// KindIndirection covers indirections, black holes, and mutable
	// variables: a single indirectee/value field is enqueued.
	KindIndirection
	// KindBlockingQueue enqueues all four pointer fields: black hole,
	// owner, queue, link.
	KindBlockingQueue
	// KindPAP is a partial or general application: fun is enqueued,
	// then the payload is traversed under fun's argument bitmap.
	KindPAP
	// KindByteCode enqueues instructions, literals, and ptrs.
	KindByteCode
	// KindTRec is a transactional record: prev_chunk is enqueued, then
	// each entry's (tvar, expected_value, new_value).
	KindTRec
	// KindStack walks frames as a state machine keyed by frame tag.
	KindStack
	// KindSelector is a selector thunk; only the selectee is enqueued
	// (the selector optimization itself is not required, spec.md §4.3).
	KindSelector
	// KindWhiteHole is the transient state of an object under
	// construction; the mark engine spins until a real kind appears.
	KindWhiteHole
	// KindStaticClosure is deduplicated via a hash set rather than a
	// bitmap, since static closures have no bitmap cell.
	KindStaticClosure
	// KindPinned is never traced: pinned blocks attached to a
	// capability cannot contain pointers into the non-moving region by
	// construction (spec.md §4.3).
	KindPinned
)

// PointerArray abstracts a (possibly huge) array of pointer-valued
// slots so KindArrayPtrs never has to materialize the whole array as a
// Go slice; it is traversed in CHUNK-sized pieces (spec.md §4.3).
type PointerArray interface {
	Addr() uintptr
	Len() int
	At(i int) uintptr
}

// FrameTag identifies a stack frame's shape in spec.md §4.3's
// frame-tag state machine.
type FrameTag uint8

const (
	FrameUpdate FrameTag = iota
	FrameCatch
	FrameRetSmall
	FrameRetBig
	FrameRetBCO
	FrameRetFun
	FrameRetStop
	FrameRetAtomically
)

// StackFrame is one frame of a KindStack object's payload: a tag plus
// the frame's pointer-valued words, per that frame shape's payload
// bitmap (decoded by the HeapOracle, not this package).
type StackFrame struct {
	Tag    FrameTag
	Fields []uintptr
}

// TRecEntry is one entry of a KindTRec transactional record: the tvar
// plus the expected and new values (spec.md §4.3).
type TRecEntry struct {
	TVar          uintptr
	ExpectedValue uintptr
	NewValue      uintptr
}

// HeapObject is the tagged-union view of a heap object the mark engine
// consumes. Exactly the fields relevant to Kind are populated; this is
// the idiomatic Go realization of DESIGN NOTES §9's "tagged variant",
// flattened into one struct instead of an interface hierarchy so the
// dispatch switch in markengine.go stays a single, exhaustive,
// allocation-free match.
type HeapObject struct {
	Addr uintptr
	Kind ObjectKind

	// KindConstructor, KindBlockingQueue: pointer fields enqueued by
	// index. BlockingQueue fields must be exactly [blackHole, owner,
	// queue, link].
	Fields []uintptr

	// KindThunk: SRT is nil if the thunk/function has none.
	SRT *uintptr

	// KindArrayPtrs, KindSmallArrayPtrs.
	Array PointerArray

	// KindIndirection: the indirectee or value.
	Indirectee uintptr

	// KindPAP: the function, plus the payload and a parallel bitmap
	// (true = pointer word) of the same length.
	Fun           uintptr
	Payload       []uintptr
	PayloadIsPtr  []bool

	// KindByteCode.
	Instructions []uintptr
	Literals     []uintptr
	Ptrs         []uintptr

	// KindTRec.
	PrevChunk   uintptr
	TRecEntries []TRecEntry

	// KindStack: the stack object itself, so the mark engine can run
	// the two-bit dirtiness handshake (spec.md §4.4) in addition to
	// walking Frames.
	Stack  *Stack
	Frames []StackFrame

	// KindSelector.
	Selectee uintptr
}
