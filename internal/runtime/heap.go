// Package runtime implements the execution substrate compiled programs
// assume: a bump-accounted, doubling heap collected by a copying
// collector, a bounded argument stack, a trampoline that turns tail
// calls into loop iterations instead of Go call-stack growth, and the
// primitive procedure library.
package runtime

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MattsPoche/sly-sub000/internal/value"
)

// defaultHeapCapacity is the initial number of object slots the heap
// permits before a collection is forced.
const defaultHeapCapacity = 4096

// Heap is a copying collector over the Go-object graph reachable from a
// RootSource. Since each Scheme heap object already lives in its own Go
// allocation (value.Value.Obj), "copying" here means allocating a fresh
// Go object per live value and retargeting Obj to it — the semantic
// equivalent of Cheney's semispace flip without literally relocating
// bytes in a flat array, since Go's allocator already plays that role.
// live tracks capacity consumption so Reserve can still decide when a
// collection or a capacity doubling is due.
type Heap struct {
	live     int
	capacity int

	log         *zap.Logger
	generation  uuid.UUID
	collections int
}

// NewHeap creates a heap with defaultHeapCapacity object slots, logging
// collection stats through log.
func NewHeap(log *zap.Logger) *Heap {
	return NewHeapWithCapacity(defaultHeapCapacity, log)
}

// NewHeapWithCapacity is NewHeap with an explicit initial capacity,
// letting internal/pipeline honor RuntimeConfig.HeapCapacity.
func NewHeapWithCapacity(capacity int, log *zap.Logger) *Heap {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = defaultHeapCapacity
	}
	return &Heap{capacity: capacity, log: log, generation: uuid.New()}
}

// RootSource exposes every Value the collector must treat as a GC root:
// the live slice of the argument stack plus any global bindings.
type RootSource interface {
	GCRoots() []*value.Value
}

// Reserve accounts for n new object allocations about to happen,
// triggering a collection (and possibly doubling capacity) first if the
// heap is full. Callers allocate the actual Go objects themselves
// immediately afterward; Reserve only governs the collection trigger.
func (h *Heap) Reserve(n int, roots RootSource) {
	if h.live+n > h.capacity {
		h.collect(roots)
		for h.live+n > h.capacity {
			h.capacity *= 2
		}
	}
	h.live += n
}

// collect performs one copying pass: every root is replaced by a freshly
// allocated copy of the object graph it points into, and the live count
// is reset to the number of distinct objects actually reachable — the
// same effect Cheney's algorithm achieves by only ever retaining the
// to-space's occupancy.
func (h *Heap) collect(roots RootSource) {
	h.generation = uuid.New()
	h.collections++
	before := h.live

	forwarded := make(map[interface{}]*value.Value)
	for _, r := range roots.GCRoots() {
		*r = h.copyObject(*r, forwarded)
	}

	h.live = len(forwarded)
	h.log.Debug("gc collection",
		zap.String("generation", h.generation.String()),
		zap.Int("count", h.collections),
		zap.Int("live_before", before),
		zap.Int("live_after", h.live),
	)
}

// copyObject copies v's heap payload exactly once per object identity
// (tracked in forwarded, keyed by the old payload pointer — Cheney's
// forwarding pointer, stored out-of-line since Go pointers can't be
// overwritten in place to redirect old references).
func (h *Heap) copyObject(v value.Value, forwarded map[interface{}]*value.Value) value.Value {
	if v.Obj == nil {
		return v
	}
	if fv, ok := forwarded[v.Obj]; ok {
		return *fv
	}

	nv := v // placeholder; replaced below before recursing so cycles terminate
	forwarded[v.Obj] = &nv

	switch obj := v.Obj.(type) {
	case *value.PairObj:
		p := &value.PairObj{Car: obj.Car, Cdr: obj.Cdr}
		nv.Obj = p
		p.Car = h.copyObject(p.Car, forwarded)
		p.Cdr = h.copyObject(p.Cdr, forwarded)
	case *value.VectorObj:
		elems := make([]value.Value, len(obj.Elems))
		copy(elems, obj.Elems)
		nv.Obj = &value.VectorObj{Elems: elems}
		for i := range elems {
			elems[i] = h.copyObject(elems[i], forwarded)
		}
	case *value.RecordObj:
		fields := make([]value.Value, len(obj.Fields))
		copy(fields, obj.Fields)
		nv.Obj = &value.RecordObj{Meta: obj.Meta, Fields: fields}
		for i := range fields {
			fields[i] = h.copyObject(fields[i], forwarded)
		}
	case *value.BoxObj:
		b := &value.BoxObj{V: obj.V}
		nv.Obj = b
		b.V = h.copyObject(b.V, forwarded)
	case *value.ClosureObj:
		free := make([]value.Value, len(obj.FreeVars))
		copy(free, obj.FreeVars)
		nv.Obj = &value.ClosureObj{Code: obj.Code, FreeVars: free, Label: obj.Label}
		for i := range free {
			free[i] = h.copyObject(free[i], forwarded)
		}
	case *value.StringObj:
		nv.Obj = &value.StringObj{Buf: obj.Buf, Offset: obj.Offset, Length: obj.Length}
	default:
		// Symbols, interned function values, and byte-vectors are
		// treated as immutable: the pointer is retained as-is.
	}
	return nv
}

// Stats reports heap occupancy for diagnostics and tests.
func (h *Heap) Stats() string {
	return fmt.Sprintf("heap: %d/%d slots live, %d collections, generation %s",
		h.live, h.capacity, h.collections, h.generation)
}
