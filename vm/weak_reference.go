package vm

import (
	"cmp"
	"fmt"
	"slices"
)

// ---------------------------------------------------------------------------
// WeakRef: A reference that doesn't prevent garbage collection
// ---------------------------------------------------------------------------

// WeakRef holds a weak reference to a heap object.
// When the target is reclaimed by a collection, the reference becomes nil.
// Optionally supports finalization callbacks.
type WeakRef struct {
	id        uint32
	target    Ref       // NilRef once the target has been reclaimed
	finalizer func(Ref) // Optional callback when target is reclaimed
	registry  *WeakRegistry
}

// NewWeakRef creates a weak reference to a live object and registers it
// with the VM so the collector clears it when the target dies.
func (vm *VM) NewWeakRef(target Ref) (*WeakRef, error) {
	if !vm.IsLive(target) {
		return nil, fmt.Errorf("weak ref to %s: %w", target, ErrStaleRef)
	}
	wr := &WeakRef{
		id:       vm.weakRefs.nextID(),
		target:   target,
		registry: vm.weakRefs,
	}
	vm.weakRefs.register(wr)
	return wr, nil
}

// ID returns the unique identifier for this weak reference.
func (wr *WeakRef) ID() uint32 {
	return wr.id
}

// Get returns the target, or false if it has been reclaimed.
func (wr *WeakRef) Get() (Ref, bool) {
	return wr.target, !wr.target.IsNil()
}

// IsAlive returns true if the target has not been reclaimed.
func (wr *WeakRef) IsAlive() bool {
	return !wr.target.IsNil()
}

// Clear drops the target and returns the old one.
func (wr *WeakRef) Clear() Ref {
	old := wr.target
	wr.target = NilRef
	return old
}

// SetFinalizer sets a callback invoked after the collection that reclaims
// the target. The callback receives the now-stale handle.
func (wr *WeakRef) SetFinalizer(fn func(Ref)) {
	wr.finalizer = fn
}

// Finalizer returns the finalization callback, if any.
func (wr *WeakRef) Finalizer() func(Ref) {
	return wr.finalizer
}

// Release unregisters the weak reference. A released reference is never
// cleared or finalized by the collector.
func (wr *WeakRef) Release() {
	if wr.registry != nil {
		wr.registry.Unregister(wr)
		wr.registry = nil
	}
}

// ---------------------------------------------------------------------------
// WeakRegistry: Tracks all weak references in a VM
// ---------------------------------------------------------------------------

// WeakRegistry manages the weak references of one VM.
type WeakRegistry struct {
	refs   map[uint32]*WeakRef
	lastID uint32
}

// NewWeakRegistry creates an empty registry.
func NewWeakRegistry() *WeakRegistry {
	return &WeakRegistry{
		refs: make(map[uint32]*WeakRef),
	}
}

func (r *WeakRegistry) nextID() uint32 {
	r.lastID++
	return r.lastID
}

func (r *WeakRegistry) register(wr *WeakRef) {
	r.refs[wr.id] = wr
}

// Unregister removes a weak reference from the registry.
func (r *WeakRegistry) Unregister(wr *WeakRef) {
	delete(r.refs, wr.id)
}

// Lookup finds a weak reference by ID.
func (r *WeakRegistry) Lookup(id uint32) *WeakRef {
	return r.refs[id]
}

// Count returns the number of registered weak references.
func (r *WeakRegistry) Count() int {
	return len(r.refs)
}

// finalization is a finalizer call queued by a collection.
type finalization struct {
	fn     func(Ref) // nil when the weak ref has no finalizer
	target Ref
}

// processGC clears weak references whose targets are in dead and returns
// one entry per cleared reference, in ID order. The caller runs the
// finalizers once the heap is consistent again.
func (r *WeakRegistry) processGC(dead []Ref) []finalization {
	if len(dead) == 0 || len(r.refs) == 0 {
		return nil
	}

	reclaimed := make(map[Ref]struct{}, len(dead))
	for _, ref := range dead {
		reclaimed[ref] = struct{}{}
	}

	var cleared []*WeakRef
	for _, wr := range r.refs {
		if _, ok := reclaimed[wr.target]; ok {
			cleared = append(cleared, wr)
		}
	}
	slices.SortFunc(cleared, func(a, b *WeakRef) int {
		return cmp.Compare(a.id, b.id)
	})

	queued := make([]finalization, len(cleared))
	for i, wr := range cleared {
		queued[i] = finalization{fn: wr.finalizer, target: wr.Clear()}
	}
	return queued
}

// WeakRefs returns the VM's weak reference registry.
func (vm *VM) WeakRefs() *WeakRegistry {
	return vm.weakRefs
}
