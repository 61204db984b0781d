package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Inspector renders heap objects for debugging.
type Inspector struct {
	vm       *VM
	MaxDepth int
}

// DefaultMaxDepth is the default nesting depth rendered by Format.
const DefaultMaxDepth = 8

// NewInspector creates a new Inspector attached to the given VM.
func NewInspector(vm *VM) *Inspector {
	return &Inspector{vm: vm, MaxDepth: DefaultMaxDepth}
}

// Format renders the object named by ref. Ints print as decimals and pairs
// as (head . tail). A pair already being printed on the current path shows
// as #<cycle>, a reclaimed object as #<dead>, and anything nested deeper
// than MaxDepth as (...).
func (i *Inspector) Format(ref Ref) string {
	var sb strings.Builder
	i.format(&sb, ref, i.MaxDepth, make(map[Ref]bool))
	return sb.String()
}

func (i *Inspector) format(sb *strings.Builder, ref Ref, depth int, path map[Ref]bool) {
	v, ok := i.vm.Lookup(ref)
	if !ok {
		sb.WriteString("#<dead>")
		return
	}

	switch v.Kind() {
	case KindInt:
		sb.WriteString(strconv.FormatUint(uint64(v.Int()), 10))
	case KindPair:
		if path[ref] {
			sb.WriteString("#<cycle>")
			return
		}
		if depth <= 0 {
			sb.WriteString("(...)")
			return
		}
		path[ref] = true
		sb.WriteByte('(')
		i.format(sb, v.Head(), depth-1, path)
		sb.WriteString(" . ")
		i.format(sb, v.Tail(), depth-1, path)
		sb.WriteByte(')')
		delete(path, ref)
	}
}

// Dump renders the root stack, top first, one root per line.
func (i *Inspector) Dump() string {
	var sb strings.Builder
	roots := i.vm.Roots()
	for n := len(roots) - 1; n >= 0; n-- {
		fmt.Fprintf(&sb, "[%d] %s = %s\n", n, roots[n], i.Format(roots[n]))
	}
	return sb.String()
}
