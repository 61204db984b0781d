package vm

// Object is a heap cell: a Value plus the collector's mark bit.
//
// Objects live in the VM's arena and are never moved. The mark bit is set
// during the mark phase and cleared again before the collection returns,
// so it is false for every object observed outside of Collect.
type Object struct {
	value  Value
	marked bool
}

// NewObject creates an unmarked Object holding v.
func NewObject(v Value) Object {
	return Object{value: v}
}

// Value returns the object's payload.
func (obj *Object) Value() Value {
	return obj.value
}

// Marked reports the object's mark bit.
func (obj *Object) Marked() bool {
	return obj.marked
}

// ---------------------------------------------------------------------------
// Child iteration
// ---------------------------------------------------------------------------

// Children returns the references held by the object: none for an Int,
// exactly [head, tail] for a Pair.
// This allocates; use ForEachChild for allocation-free iteration.
func (obj *Object) Children() []Ref {
	if obj.value.kind != KindPair {
		return nil
	}
	return []Ref{obj.value.head, obj.value.tail}
}

// ForEachChild calls fn for each outgoing reference, head before tail.
func (obj *Object) ForEachChild(fn func(Ref)) {
	if obj.value.kind != KindPair {
		return
	}
	fn(obj.value.head)
	fn(obj.value.tail)
}

func (obj *Object) setHead(r Ref) {
	obj.value.head = r
}

func (obj *Object) setTail(r Ref) {
	obj.value.tail = r
}
