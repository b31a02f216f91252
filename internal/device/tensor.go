package device

import (
	"unsafe"

	"github.com/wuyize25/oidn/internal/tensor"
)

// Tensor is a typed view of a buffer region: a descriptor plus a byte
// offset. Several tensors may alias sub-regions of one buffer.
type Tensor struct {
	buf        *Buffer
	desc       tensor.Desc
	byteOffset int
}

// NewTensorView wraps a region of an existing buffer. The view borrows
// the buffer reference held by the caller.
func NewTensorView(buf *Buffer, desc tensor.Desc, byteOffset int) (*Tensor, error) {
	if buf == nil {
		return nil, Errorf(CodeInvalidArgument, "tensor view of nil buffer")
	}
	if err := desc.Validate(); err != nil {
		return nil, Errorf(CodeInvalidArgument, "invalid tensor descriptor: %v", err)
	}
	if byteOffset < 0 || byteOffset+desc.ByteSize() > buf.ByteSize() {
		return nil, Errorf(CodeInvalidArgument,
			"tensor view [%d, %d) exceeds buffer of %d bytes",
			byteOffset, byteOffset+desc.ByteSize(), buf.ByteSize())
	}
	return &Tensor{buf: buf, desc: desc, byteOffset: byteOffset}, nil
}

func (t *Tensor) Desc() tensor.Desc { return t.desc }
func (t *Tensor) Buffer() *Buffer   { return t.buf }
func (t *Tensor) ByteOffset() int   { return t.byteOffset }

// Release drops the underlying buffer reference.
func (t *Tensor) Release() { t.buf.Release() }

// bytes returns the backend-side view of the tensor's region.
func (t *Tensor) bytes() []byte {
	return t.buf.bytes()[t.byteOffset : t.byteOffset+t.desc.ByteSize()]
}

// Floats reinterprets the region as f32 elements. Only valid for Float32
// tensors; kernels check the datatype at bind time.
func (t *Tensor) Floats() []float32 {
	b := t.bytes()
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), t.desc.NumElements())
}

// WriteFloats fills a tensor from host data, staging through the backend
// side so it works for any storage class.
func WriteFloats(t *Tensor, data []float32) error {
	if t.desc.DataType != tensor.Float32 {
		return Errorf(CodeInvalidArgument, "tensor datatype is %s, want f32", t.desc.DataType)
	}
	if len(data) != t.desc.NumElements() {
		return Errorf(CodeInvalidArgument,
			"data length %d does not match tensor with %d elements", len(data), t.desc.NumElements())
	}
	copy(t.Floats(), data)
	return nil
}

// ReadFloats copies a tensor's elements out to host data.
func ReadFloats(t *Tensor) ([]float32, error) {
	if t.desc.DataType != tensor.Float32 {
		return nil, Errorf(CodeInvalidArgument, "tensor datatype is %s, want f32", t.desc.DataType)
	}
	out := make([]float32, t.desc.NumElements())
	copy(out, t.Floats())
	return out, nil
}
