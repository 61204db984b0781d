package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Collector: mark-and-sweep over the heap arena
// ---------------------------------------------------------------------------

// Trigger records why a collection ran.
type Trigger uint8

const (
	// TriggerThreshold means an allocation found the heap at its threshold.
	TriggerThreshold Trigger = iota
	// TriggerExplicit means the host called Collect.
	TriggerExplicit
)

func (t Trigger) String() string {
	switch t {
	case TriggerThreshold:
		return "threshold"
	case TriggerExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// GCStats holds statistics from a single collection.
type GCStats struct {
	Cycle       uint64
	Trigger     Trigger
	HeapBefore  int // heap size when the collection started
	Marked      int // objects reached from the roots
	Swept       int // objects reclaimed
	Live        int // heap size after the sweep
	Threshold   int // threshold for the next collection
	WeakCleared int
	Duration    time.Duration
	Timestamp   time.Time
}

// Collect performs a full mark-and-sweep immediately and returns its
// statistics. Finalizers of cleared weak references run before it returns.
func (vm *VM) Collect() *GCStats {
	stats := vm.collect(TriggerExplicit)
	vm.runFinalizers()
	return stats
}

// collect runs one cycle. Values pinned by an in-progress Allocate are
// marked as roots in addition to the stack. Finalizers are queued, not run.
func (vm *VM) collect(trigger Trigger) *GCStats {
	start := time.Now()
	stats := &GCStats{
		Cycle:      vm.collections + 1,
		Trigger:    trigger,
		HeapBefore: vm.live,
		Timestamp:  start,
	}

	stats.Marked = vm.mark()
	dead := vm.sweep()
	stats.Swept = len(dead)
	stats.Live = vm.live

	vm.heapMax = vm.growth * vm.live
	stats.Threshold = vm.heapMax

	queued := vm.weakRefs.processGC(dead)
	stats.WeakCleared = len(queued)
	vm.finalizers = append(vm.finalizers, queued...)
	stats.Duration = time.Since(start)

	vm.collections++
	vm.lastStats = stats

	vm.log.Debugf("gc %s cycle=%d trigger=%s before=%d marked=%d swept=%d live=%d threshold=%d",
		vm.id, stats.Cycle, stats.Trigger, stats.HeapBefore, stats.Marked, stats.Swept, stats.Live, stats.Threshold)

	for _, fn := range vm.observers {
		fn(stats)
	}
	return stats
}

// mark flags every object reachable from the roots and returns how many
// objects it flagged. Traversal uses an explicit work-list so deep chains
// cannot exhaust the goroutine stack. An object is flagged before its
// children are queued, so cycles terminate.
func (vm *VM) mark() int {
	work := vm.work[:0]

	// Queue in reverse so the bottom root, and each head, is visited first.
	for _, v := range vm.pinned {
		if v.kind == KindPair {
			work = append(work, v.tail, v.head)
		}
	}
	for i := len(vm.stack) - 1; i >= 0; i-- {
		work = append(work, vm.stack[i])
	}

	marked := 0
	for len(work) > 0 {
		ref := work[len(work)-1]
		work = work[:len(work)-1]

		s := vm.resolve(ref)
		if s == nil || s.obj.marked {
			continue
		}
		s.obj.marked = true
		marked++

		if s.obj.value.kind == KindPair {
			work = append(work, s.obj.value.tail, s.obj.value.head)
		}
	}

	vm.work = work[:0]
	return marked
}

// sweep reclaims every unmarked object, clears the mark bit on survivors,
// and returns the handles of the reclaimed objects.
func (vm *VM) sweep() []Ref {
	var dead []Ref
	for i := range vm.slots {
		s := &vm.slots[i]
		if !s.live {
			continue
		}
		if s.obj.marked {
			s.obj.marked = false
			continue
		}
		dead = append(dead, makeRef(uint32(i), s.gen))
		vm.release(uint32(i))
	}
	return dead
}

// runFinalizers drains the finalizer queue. Finalizers may allocate or
// collect; anything they queue is drained by the same loop.
func (vm *VM) runFinalizers() {
	if vm.finalizing {
		return
	}
	vm.finalizing = true
	defer func() { vm.finalizing = false }()

	for len(vm.finalizers) > 0 {
		f := vm.finalizers[0]
		vm.finalizers = vm.finalizers[1:]
		if f.fn != nil {
			f.fn(f.target)
		}
	}
}
