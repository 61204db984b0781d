package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/babygc/vm"
)

// OpKind is one host action against the VM.
type OpKind int

const (
	OpInt OpKind = iota
	OpPair
	OpPop
	OpSetHead
	OpSetTail
	OpCollect
	OpDump
	OpStats
)

// Op is a parsed script token. N is the Int payload; I and J are root
// positions counted from the bottom of the stack.
type Op struct {
	Kind OpKind
	N    uint32
	I, J int
}

// ParseOps parses script tokens:
//
//	int:N      push an Int
//	pair       combine the top two roots
//	pop        drop the top root
//	head:I:J   set the head of root I to root J
//	tail:I:J   set the tail of root I to root J
//	gc         collect now
//	dump       print the root stack
//	stats      print heap size, threshold and collection count
func ParseOps(tokens []string) ([]Op, error) {
	ops := make([]Op, 0, len(tokens))
	for _, tok := range tokens {
		op, err := parseOp(tok)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// ParseScript reads whitespace-separated tokens from r. Text after '#' on
// a line is ignored.
func ParseScript(r io.Reader) ([]Op, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return ParseOps(tokens)
}

func parseOp(tok string) (Op, error) {
	parts := strings.Split(tok, ":")
	switch parts[0] {
	case "int":
		if len(parts) != 2 {
			return Op{}, fmt.Errorf("%q: want int:N", tok)
		}
		n, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return Op{}, fmt.Errorf("%q: %w", tok, err)
		}
		return Op{Kind: OpInt, N: uint32(n)}, nil

	case "head", "tail":
		if len(parts) != 3 {
			return Op{}, fmt.Errorf("%q: want %s:I:J", tok, parts[0])
		}
		i, err := strconv.Atoi(parts[1])
		if err != nil {
			return Op{}, fmt.Errorf("%q: %w", tok, err)
		}
		j, err := strconv.Atoi(parts[2])
		if err != nil {
			return Op{}, fmt.Errorf("%q: %w", tok, err)
		}
		kind := OpSetHead
		if parts[0] == "tail" {
			kind = OpSetTail
		}
		return Op{Kind: kind, I: i, J: j}, nil
	}

	if len(parts) != 1 {
		return Op{}, fmt.Errorf("unknown op %q", tok)
	}
	switch tok {
	case "pair":
		return Op{Kind: OpPair}, nil
	case "pop":
		return Op{Kind: OpPop}, nil
	case "gc":
		return Op{Kind: OpCollect}, nil
	case "dump":
		return Op{Kind: OpDump}, nil
	case "stats":
		return Op{Kind: OpStats}, nil
	}
	return Op{}, fmt.Errorf("unknown op %q", tok)
}

// Run applies ops to v in order, writing dump and stats output to out.
func Run(v *vm.VM, ops []Op, out io.Writer) error {
	insp := vm.NewInspector(v)

	for n, op := range ops {
		var err error
		switch op.Kind {
		case OpInt:
			v.PushInt(op.N)
		case OpPair:
			_, err = v.MakePair()
		case OpPop:
			_, err = v.Pop()
		case OpSetHead, OpSetTail:
			err = setField(v, op)
		case OpCollect:
			s := v.Collect()
			fmt.Fprintf(out, "gc: swept %d, live %d, threshold %d\n", s.Swept, s.Live, s.Threshold)
		case OpDump:
			fmt.Fprint(out, insp.Dump())
		case OpStats:
			fmt.Fprintf(out, "heap %d, threshold %d, roots %d, collections %d\n",
				v.HeapSize(), v.Threshold(), v.StackDepth(), v.Collections())
		}
		if err != nil {
			return fmt.Errorf("op %d: %w", n+1, err)
		}
	}
	return nil
}

func setField(v *vm.VM, op Op) error {
	roots := v.Roots()
	if op.I < 0 || op.I >= len(roots) || op.J < 0 || op.J >= len(roots) {
		return fmt.Errorf("root index out of range (stack depth %d)", len(roots))
	}
	if op.Kind == OpSetHead {
		return v.SetHead(roots[op.I], roots[op.J])
	}
	return v.SetTail(roots[op.I], roots[op.J])
}
