package oldgen

import (
	"sync"
)

// fakeObject is one entry in a fakeOracle's table: enough to answer
// HeapOracle.Object for the object kinds the test suite exercises.
type fakeObject struct {
	kind   ObjectKind
	fields []uintptr
	array  PointerArray
	stack  *Stack
	frames []StackFrame
}

// fakeOracle is a minimal in-memory HeapOracle/BlockAllocator/Pauser/
// Scavenger for white-box tests: addresses are opaque handles the test
// mints itself, resolved against segments/large objects the test wires
// in directly.
type fakeOracle struct {
	mu      sync.Mutex
	objects map[uintptr]*fakeObject
	descs   map[uintptr]BlockDescriptor
	statics map[uintptr]bool

	pauseCount int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		objects: make(map[uintptr]*fakeObject),
		descs:   make(map[uintptr]BlockDescriptor),
		statics: make(map[uintptr]bool),
	}
}

func (f *fakeOracle) put(addr uintptr, desc BlockDescriptor, obj *fakeObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descs[addr] = desc
	f.objects[addr] = obj
}

func (f *fakeOracle) putStatic(addr uintptr, obj *fakeObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descs[addr] = BlockDescriptor{Static: true}
	f.objects[addr] = obj
	f.statics[addr] = true
}

func (f *fakeOracle) IsHeapAllocated(p uintptr) bool {
	if p == 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.descs[p]
	return ok
}

func (f *fakeOracle) Resolve(p uintptr) (BlockDescriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.descs[p]
	return d, ok
}

func (f *fakeOracle) Object(p uintptr) HeapObject {
	f.mu.Lock()
	o, ok := f.objects[p]
	f.mu.Unlock()
	if !ok {
		return HeapObject{Addr: p, Kind: KindConstructor}
	}
	return HeapObject{
		Addr:   p,
		Kind:   o.kind,
		Fields: o.fields,
		Array:  o.array,
		Stack:  o.stack,
		Frames: o.frames,
	}
}

func (f *fakeOracle) StopAllMutators(reason string) {
	f.mu.Lock()
	f.pauseCount++
	f.mu.Unlock()
}

func (f *fakeOracle) ReleaseAllMutators() {}

func (f *fakeOracle) AllocSegmentGroup(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (f *fakeOracle) FreeSegmentGroup(storage []byte) {}

func (f *fakeOracle) NotifyDirty(seg *Segment) {}

// sliceArray is a trivial PointerArray backed by a Go slice, for
// KindArrayPtrs/KindSmallArrayPtrs tests.
type sliceArray struct {
	addr uintptr
	vals []uintptr
}

func (a *sliceArray) Addr() uintptr    { return a.addr }
func (a *sliceArray) Len() int         { return len(a.vals) }
func (a *sliceArray) At(i int) uintptr { return a.vals[i] }

// testConfig builds a Config wired to a fresh fakeOracle, with small
// tunables so tests can fill segments without allocating megabytes.
func testConfig(oracle *fakeOracle, opts ...Option) *Config {
	base := []Option{
		WithSegmentSize(256),
		WithMinLog2(4),
		WithAllocaCount(4),
		WithNumSizeClasses(4),
	}
	return NewConfig(oracle, oracle, oracle, append(base, opts...)...)
}
