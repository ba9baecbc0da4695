// Package handle implements the kernel's handle registry: the single
// indirection every syscall argument goes through to reach a live kernel
// object, grounded on eventloop/registry.go's ring-buffer + map design.
// The teacher's registry tracks promises with weak.Pointer so a promise
// settling or getting garbage collected quietly drops its slot; a kernel
// object's lifetime is explicit instead (an object lives until Free is
// called), so Registry holds strong references in a free-list-backed slab
// rather than weak pointers. It keeps the monotonic id counter but has no
// ring of ids and no compaction pass: freed indices go on a free list and
// are reused before the counter grows.
package handle

import (
	"sort"
	"sync"
)

// Handle is an opaque kernel object reference, analogous to a POSIX file
// descriptor or the spec's k_handle_id. It packs a slot index in its low
// indexBits bits and a generation counter in the remaining high bits, the
// same generational-index scheme slotmap-style slab allocators use: a
// handle observed before a Free, then compared against a reused index
// after a later Alloc, differs in its generation bits and so is correctly
// rejected by Get rather than silently aliasing the new occupant. Handle 0
// and 1 are reserved (the idle thread and the init thread respectively,
// spec §3.A) and always carry generation 0; Alloc never returns them.
type Handle uint32

const (
	indexBits = 24
	indexMask = 1<<indexBits - 1
)

// IdleThreadHandle and InitThreadHandle are reserved well-known handles
// assigned during scheduler bring-up, never recycled by Free.
const (
	IdleThreadHandle Handle = 0
	InitThreadHandle Handle = 1
	firstDynamic     uint32 = 2
)

func makeHandle(index, generation uint32) Handle {
	return Handle(generation<<indexBits | index&indexMask)
}

func splitHandle(h Handle) (index, generation uint32) {
	v := uint32(h)
	return v & indexMask, v >> indexBits
}

// Registry is a strong-reference slab allocator for kernel objects, keyed
// by Handle. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	slots     map[uint32]any    // index -> live object
	gens      map[uint32]uint32 // index -> current generation, kept across frees
	freeList  []uint32
	nextIndex uint32
}

// New creates an empty Registry with the reserved handles pre-accounted for.
func New() *Registry {
	return &Registry{
		slots:     make(map[uint32]any, 64),
		gens:      make(map[uint32]uint32, 64),
		nextIndex: firstDynamic,
	}
}

// Alloc reserves a fresh handle for obj and returns it, reusing a freed slot
// if one is available before growing the monotonic counter, the same
// free-list-before-growth policy the teacher's compaction pass aims to
// approximate for promise IDs, made exact here since kernel objects are
// always explicitly freed. A reused index's generation is bumped by Free,
// so the new Handle's value differs from any handle a caller was still
// holding onto for the slot's previous occupant.
func (r *Registry) Alloc(obj any) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.freeList); n > 0 {
		idx = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
	} else {
		idx = r.nextIndex
		r.nextIndex++
	}
	r.slots[idx] = obj
	return makeHandle(idx, r.gens[idx])
}

// Set installs obj at a reserved well-known handle (IdleThreadHandle or
// InitThreadHandle), bypassing allocation. Panics if h is not reserved, to
// catch accidental misuse early.
func (r *Registry) Set(h Handle, obj any) {
	idx, _ := splitHandle(h)
	if idx >= firstDynamic {
		panic("handle: Set is only for reserved handles")
	}
	r.mu.Lock()
	r.slots[idx] = obj
	r.mu.Unlock()
}

// Get resolves h to its object. The bool result is false if h is
// unassigned, has been freed, or is a stale handle whose slot was freed and
// reused since h was obtained (detected via the generation mismatch),
// mirroring a stale/unknown file descriptor lookup.
func (r *Registry) Get(h Handle) (any, bool) {
	idx, generation := splitHandle(h)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gens[idx] != generation {
		return nil, false
	}
	obj, ok := r.slots[idx]
	return obj, ok
}

// Free releases h back to the free list and bumps its slot's generation, so
// any other Handle value still referring to the old occupant's index will
// be rejected by a later Get instead of resolving to whatever Alloc
// installs there next. Reserved handles cannot be freed. Returns false if h
// was not assigned, or if h's generation is stale (a losing racer in a
// concurrent double-free, per spec §4.A's invariant that the loser gets
// InvalidArg-equivalent failure).
func (r *Registry) Free(h Handle) bool {
	idx, generation := splitHandle(h)
	if idx < firstDynamic {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[idx] != generation {
		return false
	}
	if _, ok := r.slots[idx]; !ok {
		return false
	}
	delete(r.slots, idx)
	r.gens[idx] = generation + 1
	r.freeList = append(r.freeList, idx)
	return true
}

// Len reports the number of currently assigned handles, reserved handles
// included once set.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Each calls fn for every currently assigned handle, in unspecified order.
// fn must not call back into the Registry: Each holds the read lock for
// its whole duration, including every call to fn.
func (r *Registry) Each(fn func(Handle, any)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for idx, obj := range r.slots {
		fn(makeHandle(idx, r.gens[idx]), obj)
	}
}

// GetNext implements spec §4.A's get_next(prev, filter): it walks assigned
// handles in ascending index order, starting strictly after prev's index,
// and returns the first one for which filter reports true (a nil filter
// matches everything). prev's generation bits are ignored — only its index
// bounds the scan, so a stale or already-freed prev still resumes iteration
// from the right position. Pass Handle(0) to start from the beginning;
// since the scan is strictly after prev, index 0 (IdleThreadHandle) is
// never returned.
// Returns ok=false once there are no more matching handles.
func (r *Registry) GetNext(prev Handle, filter func(Handle, any) bool) (h Handle, ref any, ok bool) {
	prevIdx, _ := splitHandle(prev)

	r.mu.RLock()
	defer r.mu.RUnlock()

	indices := make([]uint32, 0, len(r.slots))
	for idx := range r.slots {
		if idx > prevIdx {
			indices = append(indices, idx)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	for _, idx := range indices {
		obj := r.slots[idx]
		candidate := makeHandle(idx, r.gens[idx])
		if filter == nil || filter(candidate, obj) {
			return candidate, obj, true
		}
	}
	return 0, nil, false
}
