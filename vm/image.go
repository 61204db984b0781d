package vm

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Heap images: CBOR snapshots of a VM's heap and roots
// ---------------------------------------------------------------------------

// ImageVersion is the format version written by SaveImage.
const ImageVersion = 1

// ErrBadImage is returned for images that cannot be restored.
var ErrBadImage = errors.New("vm: bad heap image")

// Image is the serialized form of a VM. Objects are stored densely in
// slot order; pair fields and stack entries index into Objects.
type Image struct {
	Version      int           `cbor:"1,keyasint"`
	CollectorID  string        `cbor:"2,keyasint"`
	Threshold    int           `cbor:"3,keyasint"`
	GrowthFactor int           `cbor:"4,keyasint"`
	Objects      []ImageObject `cbor:"5,keyasint"`
	Stack        []uint32      `cbor:"6,keyasint"`
}

// ImageObject is one heap object in an Image.
type ImageObject struct {
	Kind Kind   `cbor:"1,keyasint"`
	Int  uint32 `cbor:"2,keyasint,omitempty"`
	Head uint32 `cbor:"3,keyasint,omitempty"`
	Tail uint32 `cbor:"4,keyasint,omitempty"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// Capture builds an Image of the VM's current heap. Objects that are
// unreachable but not yet swept are included.
func (vm *VM) Capture() *Image {
	img := &Image{
		Version:      ImageVersion,
		CollectorID:  vm.id,
		Threshold:    vm.heapMax,
		GrowthFactor: vm.growth,
		Objects:      make([]ImageObject, 0, vm.live),
		Stack:        make([]uint32, len(vm.stack)),
	}

	dense := make(map[Ref]uint32, vm.live)
	vm.ForEachObject(func(ref Ref, _ Value) {
		dense[ref] = uint32(len(dense))
	})

	vm.ForEachObject(func(ref Ref, v Value) {
		obj := ImageObject{Kind: v.kind}
		switch v.kind {
		case KindInt:
			obj.Int = v.n
		case KindPair:
			obj.Head = dense[v.head]
			obj.Tail = dense[v.tail]
		}
		img.Objects = append(img.Objects, obj)
	})

	for i, ref := range vm.stack {
		img.Stack[i] = dense[ref]
	}
	return img
}

// Restore builds a new VM from img. The image's threshold and growth
// factor are applied before opts, so options override them.
func Restore(img *Image, opts ...Option) (*VM, error) {
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadImage, img.Version, ImageVersion)
	}
	if img.Threshold < 0 {
		return nil, fmt.Errorf("%w: negative threshold %d", ErrBadImage, img.Threshold)
	}

	base := []Option{WithInitialThreshold(img.Threshold)}
	if img.GrowthFactor > 0 {
		base = append(base, WithGrowthFactor(img.GrowthFactor))
	}
	vm := New(append(base, opts...)...)

	n := uint32(len(img.Objects))
	for i, obj := range img.Objects {
		var v Value
		switch obj.Kind {
		case KindInt:
			v = IntValue(obj.Int)
		case KindPair:
			if obj.Head >= n || obj.Tail >= n {
				return nil, fmt.Errorf("%w: object %d references out of range", ErrBadImage, i)
			}
			// Fresh arena: dense index i lands in slot i with generation 1.
			v = PairValue(makeRef(obj.Head, 1), makeRef(obj.Tail, 1))
		default:
			return nil, fmt.Errorf("%w: object %d has kind %d", ErrBadImage, i, obj.Kind)
		}
		vm.place(v)
	}

	for i, idx := range img.Stack {
		if idx >= n {
			return nil, fmt.Errorf("%w: root %d references out of range", ErrBadImage, i)
		}
		vm.stack = append(vm.stack, makeRef(idx, 1))
	}

	vm.log.Infof("restored %d objects and %d roots from image of %s", n, len(vm.stack), img.CollectorID)
	return vm, nil
}

// MarshalImage serializes the VM's heap to CBOR bytes.
func (vm *VM) MarshalImage() ([]byte, error) {
	return imageEncMode.Marshal(vm.Capture())
}

// UnmarshalImage decodes CBOR bytes and restores a VM from them.
func UnmarshalImage(data []byte, opts ...Option) (*VM, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	return Restore(&img, opts...)
}

// SaveImage writes the VM's heap image to w.
func (vm *VM) SaveImage(w io.Writer) error {
	data, err := vm.MarshalImage()
	if err != nil {
		return fmt.Errorf("vm: marshal image: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// LoadImage reads a heap image from r and restores a VM from it.
func LoadImage(r io.Reader, opts ...Option) (*VM, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vm: read image: %w", err)
	}
	return UnmarshalImage(data, opts...)
}
