package vm

import (
	"bytes"
	"errors"
	"testing"
)

func TestImageRoundTrip(t *testing.T) {
	src := New(WithGrowthFactor(3))
	a := buildPair(t, src, 1, 2)
	b := buildPair(t, src, 3, 4)
	src.SetTail(a, b)
	src.SetTail(b, a)
	src.PushInt(7)
	src.Collect()

	var buf bytes.Buffer
	if err := src.SaveImage(&buf); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}

	dst, err := LoadImage(&buf)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}

	if dst.HeapSize() != src.HeapSize() {
		t.Errorf("HeapSize() = %d, want %d", dst.HeapSize(), src.HeapSize())
	}
	if dst.Threshold() != src.Threshold() {
		t.Errorf("Threshold() = %d, want %d", dst.Threshold(), src.Threshold())
	}
	if dst.GrowthFactor() != 3 {
		t.Errorf("GrowthFactor() = %d, want 3", dst.GrowthFactor())
	}
	if dst.StackDepth() != src.StackDepth() {
		t.Fatalf("StackDepth() = %d, want %d", dst.StackDepth(), src.StackDepth())
	}
	if dst.ID() == src.ID() {
		t.Error("restored VM should get its own ID")
	}

	// The graph shape, cycle included, survives the round trip.
	srcInsp, dstInsp := NewInspector(src), NewInspector(dst)
	srcRoots, dstRoots := src.Roots(), dst.Roots()
	for i := range srcRoots {
		want := srcInsp.Format(srcRoots[i])
		if got := dstInsp.Format(dstRoots[i]); got != want {
			t.Errorf("root %d = %q, want %q", i, got, want)
		}
	}

	// The restored heap collects like the source VM.
	dst.MustPop()
	dst.MustPop()
	dst.MustPop()
	dst.Collect()
	if dst.HeapSize() != 0 {
		t.Errorf("HeapSize() after dropping all roots = %d, want 0", dst.HeapSize())
	}
}

func TestImageIncludesUnsweptGarbage(t *testing.T) {
	src := New()
	src.PushInt(1)
	src.PushInt(2)
	src.MustPop()

	img := src.Capture()
	if len(img.Objects) != 2 {
		t.Errorf("Objects = %d, want 2", len(img.Objects))
	}
	if len(img.Stack) != 1 || img.Stack[0] != 0 {
		t.Errorf("Stack = %v, want [0]", img.Stack)
	}
}

func TestImageDenseAfterSweep(t *testing.T) {
	src := New()
	src.PushInt(1)
	src.MustPop()
	src.PushInt(2)
	src.Collect() // slot 0 reclaimed, slot 1 survives

	img := src.Capture()
	if len(img.Objects) != 1 || img.Objects[0].Int != 2 {
		t.Fatalf("Objects = %+v, want one Int(2)", img.Objects)
	}
	if img.Stack[0] != 0 {
		t.Errorf("Stack[0] = %d, want dense index 0", img.Stack[0])
	}
}

func TestRestoreOptionsOverrideImage(t *testing.T) {
	src := New()
	src.PushInt(1)
	data, err := src.MarshalImage()
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}

	dst, err := UnmarshalImage(data, WithInitialThreshold(50))
	if err != nil {
		t.Fatalf("UnmarshalImage: %v", err)
	}
	if dst.Threshold() != 50 {
		t.Errorf("Threshold() = %d, want 50", dst.Threshold())
	}
}

func TestRestoreRejectsBadImages(t *testing.T) {
	tests := []struct {
		name string
		img  Image
	}{
		{"version", Image{Version: 99}},
		{"threshold", Image{Version: ImageVersion, Threshold: -1}},
		{"kind", Image{Version: ImageVersion, Objects: []ImageObject{{Kind: KindInvalid}}}},
		{"pair range", Image{Version: ImageVersion, Objects: []ImageObject{{Kind: KindPair, Head: 0, Tail: 5}}}},
		{"root range", Image{Version: ImageVersion, Objects: []ImageObject{{Kind: KindInt}}, Stack: []uint32{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Restore(&tt.img)
			if !errors.Is(err, ErrBadImage) {
				t.Errorf("Restore: err = %v, want ErrBadImage", err)
			}
		})
	}
}

func TestUnmarshalImageGarbage(t *testing.T) {
	if _, err := UnmarshalImage([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("UnmarshalImage should fail on garbage input")
	}
}
