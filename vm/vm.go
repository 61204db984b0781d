package vm

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// DefaultInitialThreshold is the heap size at which the first collection
// is triggered.
const DefaultInitialThreshold = 10

// DefaultGrowthFactor multiplies the live object count after a collection
// to produce the next threshold.
const DefaultGrowthFactor = 2

var (
	// ErrStackUnderflow is returned when popping more roots than were pushed.
	ErrStackUnderflow = errors.New("vm: root stack underflow")

	// ErrStaleRef is returned when a handle names an object that has been
	// reclaimed, or was never allocated.
	ErrStaleRef = errors.New("vm: stale object reference")

	// ErrNotPair is returned when a pair operation is applied to an Int.
	ErrNotPair = errors.New("vm: object is not a pair")
)

// slot is one arena cell. A slot is live while it holds an allocated
// object; once swept it joins the free list with a bumped generation.
type slot struct {
	obj  Object
	gen  uint32
	live bool
}

// VM owns a root stack and the heap arena that the collector manages.
//
// A VM is not safe for concurrent use. Separate VMs share no state.
type VM struct {
	id string

	// Heap arena
	slots []slot
	free  []uint32 // reclaimed slot indices, reused LIFO
	live  int      // number of live slots

	// Root set
	stack []Ref

	// Collection policy
	heapMax int
	growth  int

	weakRefs  *WeakRegistry
	observers []func(*GCStats)

	collections uint64
	lastStats   *GCStats
	work        []Ref // mark work-list, reused across collections

	pinned     []Value // values being placed by Allocate, marked as roots
	finalizers []finalization
	finalizing bool

	log commonlog.Logger
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithInitialThreshold sets the heap size that triggers the first
// collection. Negative values are treated as zero.
func WithInitialThreshold(n int) Option {
	return func(vm *VM) {
		if n < 0 {
			n = 0
		}
		vm.heapMax = n
	}
}

// WithGrowthFactor sets the multiplier applied to the live count after
// each collection. Values below 1 are treated as 1.
func WithGrowthFactor(n int) Option {
	return func(vm *VM) {
		if n < 1 {
			n = 1
		}
		vm.growth = n
	}
}

// WithLogger replaces the default "babygc.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) {
		if log != nil {
			vm.log = log
		}
	}
}

// New creates an empty VM.
func New(opts ...Option) *VM {
	vm := &VM{
		id:       uuid.New().String(),
		heapMax:  DefaultInitialThreshold,
		growth:   DefaultGrowthFactor,
		weakRefs: NewWeakRegistry(),
		log:      commonlog.GetLogger("babygc.vm"),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// ID returns the unique identifier of this VM.
func (vm *VM) ID() string {
	return vm.id
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Allocate places v on the heap and pushes the new object onto the root
// stack.
//
// If the heap has reached the threshold a full collection runs first. The
// references held by v are treated as roots until v is placed, so a pair
// whose operands were just popped keeps them alive. Finalizers queued by
// that collection run after the new object is on the stack.
//
// Panics if v is invalid or is a Pair naming a dead object.
func (vm *VM) Allocate(v Value) Ref {
	switch v.kind {
	case KindInt:
	case KindPair:
		if !vm.IsLive(v.head) || !vm.IsLive(v.tail) {
			panic(fmt.Sprintf("VM.Allocate: pair references dead object (%s, %s)", v.head, v.tail))
		}
	default:
		panic("VM.Allocate: invalid value")
	}

	if vm.live >= vm.heapMax {
		vm.pinned = append(vm.pinned, v)
		vm.collect(TriggerThreshold)
		vm.pinned = vm.pinned[:len(vm.pinned)-1]
	}

	ref := vm.place(v)
	vm.stack = append(vm.stack, ref)
	vm.runFinalizers()
	return ref
}

// PushInt allocates an Int and pushes it as a root.
func (vm *VM) PushInt(n uint32) Ref {
	return vm.Allocate(IntValue(n))
}

// MakePair pops the tail and then the head from the root stack, allocates
// Pair(head, tail) and pushes it. The stack is left untouched if it holds
// fewer than two roots.
func (vm *VM) MakePair() (Ref, error) {
	if len(vm.stack) < 2 {
		return NilRef, fmt.Errorf("make pair with %d roots: %w", len(vm.stack), ErrStackUnderflow)
	}
	tail := vm.MustPop()
	head := vm.MustPop()
	return vm.Allocate(PairValue(head, tail)), nil
}

// place stores v in a free slot without checking the threshold.
func (vm *VM) place(v Value) Ref {
	var idx uint32
	if n := len(vm.free); n > 0 {
		idx = vm.free[n-1]
		vm.free = vm.free[:n-1]
	} else {
		idx = uint32(len(vm.slots))
		vm.slots = append(vm.slots, slot{gen: 1})
	}

	s := &vm.slots[idx]
	s.obj = NewObject(v)
	s.live = true
	vm.live++
	return makeRef(idx, s.gen)
}

// release tombstones a slot and returns it to the free list.
func (vm *VM) release(idx uint32) {
	s := &vm.slots[idx]
	s.obj = Object{}
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	vm.free = append(vm.free, idx)
	vm.live--
}

// ---------------------------------------------------------------------------
// Root stack
// ---------------------------------------------------------------------------

// Push roots an existing live object again.
func (vm *VM) Push(ref Ref) error {
	if !vm.IsLive(ref) {
		return fmt.Errorf("push %s: %w", ref, ErrStaleRef)
	}
	vm.stack = append(vm.stack, ref)
	return nil
}

// Pop removes and returns the most recently pushed root. The object is not
// freed; it stays on the heap until a collection finds it unreachable.
func (vm *VM) Pop() (Ref, error) {
	n := len(vm.stack)
	if n == 0 {
		return NilRef, ErrStackUnderflow
	}
	ref := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return ref, nil
}

// MustPop is like Pop but panics on an empty stack.
func (vm *VM) MustPop() Ref {
	ref, err := vm.Pop()
	if err != nil {
		panic("VM.MustPop: " + err.Error())
	}
	return ref
}

// StackDepth returns the number of roots.
func (vm *VM) StackDepth() int {
	return len(vm.stack)
}

// Roots returns a copy of the root stack, bottom first.
func (vm *VM) Roots() []Ref {
	roots := make([]Ref, len(vm.stack))
	copy(roots, vm.stack)
	return roots
}

// ---------------------------------------------------------------------------
// Object access
// ---------------------------------------------------------------------------

// resolve returns the slot named by ref, or nil if ref is stale.
func (vm *VM) resolve(ref Ref) *slot {
	idx := ref.Index()
	if ref.IsNil() || int(idx) >= len(vm.slots) {
		return nil
	}
	s := &vm.slots[idx]
	if !s.live || s.gen != ref.Gen() {
		return nil
	}
	return s
}

// IsLive returns true if ref names an object still on the heap.
func (vm *VM) IsLive(ref Ref) bool {
	return vm.resolve(ref) != nil
}

// Lookup returns the value of the object named by ref.
func (vm *VM) Lookup(ref Ref) (Value, bool) {
	s := vm.resolve(ref)
	if s == nil {
		return Value{}, false
	}
	return s.obj.value, true
}

// SetHead repoints the head of a pair.
func (vm *VM) SetHead(pair, target Ref) error {
	obj, err := vm.pairForUpdate(pair, target)
	if err != nil {
		return fmt.Errorf("set head: %w", err)
	}
	obj.setHead(target)
	return nil
}

// SetTail repoints the tail of a pair.
func (vm *VM) SetTail(pair, target Ref) error {
	obj, err := vm.pairForUpdate(pair, target)
	if err != nil {
		return fmt.Errorf("set tail: %w", err)
	}
	obj.setTail(target)
	return nil
}

func (vm *VM) pairForUpdate(pair, target Ref) (*Object, error) {
	s := vm.resolve(pair)
	if s == nil {
		return nil, fmt.Errorf("pair %s: %w", pair, ErrStaleRef)
	}
	if !s.obj.value.IsPair() {
		return nil, fmt.Errorf("%s: %w", pair, ErrNotPair)
	}
	if !vm.IsLive(target) {
		return nil, fmt.Errorf("target %s: %w", target, ErrStaleRef)
	}
	return &s.obj, nil
}

// ForEachObject calls fn for every live heap object in slot order.
func (vm *VM) ForEachObject(fn func(ref Ref, v Value)) {
	for i := range vm.slots {
		s := &vm.slots[i]
		if s.live {
			fn(makeRef(uint32(i), s.gen), s.obj.value)
		}
	}
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// HeapSize returns the number of objects allocated and not yet swept.
func (vm *VM) HeapSize() int {
	return vm.live
}

// Threshold returns the heap size at which the next allocation collects.
func (vm *VM) Threshold() int {
	return vm.heapMax
}

// GrowthFactor returns the threshold multiplier.
func (vm *VM) GrowthFactor() int {
	return vm.growth
}

// Collections returns the number of collections performed.
func (vm *VM) Collections() uint64 {
	return vm.collections
}

// LastStats returns statistics from the most recent collection, or nil if
// none has run yet.
func (vm *VM) LastStats() *GCStats {
	return vm.lastStats
}

// OnCollect registers fn to be called after every collection.
func (vm *VM) OnCollect(fn func(*GCStats)) {
	vm.observers = append(vm.observers, fn)
}
