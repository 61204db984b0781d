package vm

import "fmt"

// Ref is a handle to a heap object.
//
// A Ref packs an arena slot index and the slot's generation into 64 bits:
//   - low 32 bits: slot index
//   - high 32 bits: slot generation
//
// Generations start at 1, so the zero Ref (NilRef) never names an object.
// When the collector reclaims a slot it bumps the generation, which turns
// every outstanding Ref to the old occupant stale.
type Ref uint64

// NilRef is the zero handle. It never resolves to a heap object.
const NilRef Ref = 0

const (
	refIndexMask uint64 = 0x00000000FFFFFFFF
	refGenShift         = 32
)

func makeRef(index, gen uint32) Ref {
	return Ref(uint64(gen)<<refGenShift | uint64(index))
}

// Index returns the arena slot index encoded in r.
func (r Ref) Index() uint32 {
	return uint32(uint64(r) & refIndexMask)
}

// Gen returns the slot generation encoded in r.
func (r Ref) Gen() uint32 {
	return uint32(uint64(r) >> refGenShift)
}

// IsNil returns true if r is the zero handle.
func (r Ref) IsNil() bool {
	return r == NilRef
}

func (r Ref) String() string {
	if r.IsNil() {
		return "#nil"
	}
	return fmt.Sprintf("#%d.%d", r.Index(), r.Gen())
}

// ---------------------------------------------------------------------------
// Value: tagged union of Int and Pair
// ---------------------------------------------------------------------------

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindPair
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindPair:
		return "Pair"
	default:
		return "Invalid"
	}
}

// Value is the payload of a heap object: either a leaf integer or a pair
// of references to other heap objects. The zero Value is invalid.
type Value struct {
	kind Kind
	n    uint32
	head Ref
	tail Ref
}

// IntValue creates a leaf Value holding n.
func IntValue(n uint32) Value {
	return Value{kind: KindInt, n: n}
}

// PairValue creates a Value referencing head and tail.
func PairValue(head, tail Ref) Value {
	return Value{kind: KindPair, head: head, tail: tail}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind {
	return v.kind
}

// IsInt returns true if v is a leaf integer.
func (v Value) IsInt() bool {
	return v.kind == KindInt
}

// IsPair returns true if v is a pair.
func (v Value) IsPair() bool {
	return v.kind == KindPair
}

// Int returns the integer payload.
// Panics if v is not an Int.
func (v Value) Int() uint32 {
	if v.kind != KindInt {
		panic("Value.Int: not an integer")
	}
	return v.n
}

// Head returns the first reference of a pair.
// Panics if v is not a Pair.
func (v Value) Head() Ref {
	if v.kind != KindPair {
		panic("Value.Head: not a pair")
	}
	return v.head
}

// Tail returns the second reference of a pair.
// Panics if v is not a Pair.
func (v Value) Tail() Ref {
	if v.kind != KindPair {
		panic("Value.Tail: not a pair")
	}
	return v.tail
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("Int(%d)", v.n)
	case KindPair:
		return fmt.Sprintf("Pair(%s, %s)", v.head, v.tail)
	default:
		return "Invalid"
	}
}
