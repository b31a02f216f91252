package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// DataType identifies the element type of a tensor or image.
type DataType uint8

const (
	Float32 DataType = iota
	Float16
)

// Size returns the byte size of one element.
func (d DataType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		return 0
	}
}

func (d DataType) String() string {
	switch d {
	case Float32:
		return "f32"
	case Float16:
		return "f16"
	default:
		return "invalid"
	}
}

// Layout describes how the elements of a tensor are ordered in memory.
type Layout uint8

const (
	// X is a flat 1-D layout (bias vectors, scalars).
	X Layout = iota
	// CHW is the planar image/feature-map layout used by the network.
	CHW
	// HWC is the interleaved-channel layout of host-side images.
	HWC
	// OIHW is the convolution weight layout.
	OIHW
)

func (l Layout) String() string {
	switch l {
	case X:
		return "x"
	case CHW:
		return "chw"
	case HWC:
		return "hwc"
	case OIHW:
		return "oihw"
	default:
		return "invalid"
	}
}

// Desc is an immutable shape/layout/datatype descriptor. Dims are ordered
// outermost first (e.g. N,C,H,W for CHW).
type Desc struct {
	Dims     []int
	Layout   Layout
	DataType DataType
}

// Rank returns the number of dimensions.
func (d Desc) Rank() int { return len(d.Dims) }

// NumElements returns the total element count.
func (d Desc) NumElements() int {
	n := 1
	for _, dim := range d.Dims {
		n *= dim
	}
	return n
}

// ByteSize returns the total byte size of a densely packed tensor.
func (d Desc) ByteSize() int { return d.NumElements() * d.DataType.Size() }

// Validate checks the descriptor for internal consistency.
func (d Desc) Validate() error {
	if d.DataType.Size() == 0 {
		return fmt.Errorf("invalid datatype %d", d.DataType)
	}
	if len(d.Dims) == 0 || len(d.Dims) > 4 {
		return fmt.Errorf("invalid rank %d", len(d.Dims))
	}
	for _, dim := range d.Dims {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension %d", dim)
		}
	}
	var wantRank int
	switch d.Layout {
	case X:
		wantRank = 1
	case CHW, HWC:
		wantRank = 3
	case OIHW:
		wantRank = 4
	default:
		return fmt.Errorf("invalid layout %d", d.Layout)
	}
	// CHW descriptors may carry a leading batch dimension.
	if d.Layout == CHW && len(d.Dims) == 4 {
		wantRank = 4
	}
	if len(d.Dims) != wantRank {
		return fmt.Errorf("layout %s expects rank %d, got %d", d.Layout, wantRank, len(d.Dims))
	}
	return nil
}

func (d Desc) String() string {
	return fmt.Sprintf("%v/%s/%s", d.Dims, d.Layout, d.DataType)
}

// HalfToFloats widens a raw little-endian f16 payload to f32.
func HalfToFloats(src []byte) []float32 {
	out := make([]float32, len(src)/2)
	for i := range out {
		bits := uint16(src[2*i]) | uint16(src[2*i+1])<<8
		out[i] = float16.Frombits(bits).Float32()
	}
	return out
}

// FloatsToHalf narrows f32 values to a raw little-endian f16 payload.
func FloatsToHalf(src []float32) []byte {
	out := make([]byte, len(src)*2)
	for i, v := range src {
		bits := float16.Fromfloat32(v).Bits()
		out[2*i] = byte(bits)
		out[2*i+1] = byte(bits >> 8)
	}
	return out
}
