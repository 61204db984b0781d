package vm

import (
	"strings"
	"testing"
)

func TestInspectorFormatInt(t *testing.T) {
	vm := New()
	r := vm.PushInt(42)

	if got := NewInspector(vm).Format(r); got != "42" {
		t.Errorf("Format = %q, want 42", got)
	}
}

func TestInspectorFormatNested(t *testing.T) {
	vm := New()
	vm.PushInt(1)
	vm.PushInt(2)
	vm.MakePair()
	vm.PushInt(3)
	outer, _ := vm.MakePair()

	if got := NewInspector(vm).Format(outer); got != "((1 . 2) . 3)" {
		t.Errorf("Format = %q, want ((1 . 2) . 3)", got)
	}
}

func TestInspectorFormatCycle(t *testing.T) {
	vm := New()
	vm.PushInt(1)
	vm.PushInt(2)
	a, _ := vm.MakePair()
	vm.SetTail(a, a)

	if got := NewInspector(vm).Format(a); got != "(1 . #<cycle>)" {
		t.Errorf("Format = %q, want (1 . #<cycle>)", got)
	}
}

func TestInspectorFormatSharedIsNotCycle(t *testing.T) {
	vm := New()
	x := vm.PushInt(5)
	vm.Push(x)
	p, _ := vm.MakePair()

	if got := NewInspector(vm).Format(p); got != "(5 . 5)" {
		t.Errorf("Format = %q, want (5 . 5)", got)
	}

	// Sharing a pair in both fields is not a cycle either.
	vm.Push(p)
	q, _ := vm.MakePair()
	if got := NewInspector(vm).Format(q); got != "((5 . 5) . (5 . 5))" {
		t.Errorf("Format = %q", got)
	}
}

func TestInspectorFormatDeadAndDepth(t *testing.T) {
	vm := New()
	r := vm.PushInt(1)
	vm.MustPop()
	vm.Collect()

	insp := NewInspector(vm)
	if got := insp.Format(r); got != "#<dead>" {
		t.Errorf("Format(dead) = %q, want #<dead>", got)
	}

	vm.PushInt(1)
	vm.PushInt(2)
	p, _ := vm.MakePair()
	insp.MaxDepth = 0
	if got := insp.Format(p); got != "(...)" {
		t.Errorf("Format at depth 0 = %q, want (...)", got)
	}
}

func TestInspectorDump(t *testing.T) {
	vm := New()
	vm.PushInt(1)
	vm.PushInt(2)

	lines := strings.Split(strings.TrimSpace(NewInspector(vm).Dump()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Dump has %d lines, want 2:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if !strings.HasPrefix(lines[0], "[1] ") || !strings.HasSuffix(lines[0], "= 2") {
		t.Errorf("top line = %q, want root [1] = 2", lines[0])
	}
	if !strings.HasSuffix(lines[1], "= 1") {
		t.Errorf("bottom line = %q, want = 1", lines[1])
	}
}
