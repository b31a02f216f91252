package device

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/cpuid/v2"
	"github.com/rs/zerolog/log"

	"github.com/wuyize25/oidn/internal/tensor"
)

// CPU capability tiers, derived from the detected SIMD level. Higher
// tiers unlock wider kernel catalog entries.
const (
	CapabilityScalar = 0
	CapabilitySSE42  = 1
	CapabilityAVX2   = 2
	CapabilityAVX512 = 3
)

// ensure interface compliance
var _ Device = (*CPUDevice)(nil)

// CPUDevice runs kernels on the host across a worker pool. It supports
// all three storage classes; device-class buffers live in host memory but
// honor the mapping restriction so callers exercise the staging path they
// would need on a discrete accelerator.
type CPUDevice struct {
	errorState

	engine     *Engine
	capability int
	alloc      memory.Allocator

	refs      atomic.Int32
	maxBytes  int64
	allocated atomic.Int64
	buffers   atomic.Int64
}

// CPUOption configures a CPU device at construction.
type CPUOption func(*CPUDevice)

// WithMaxMemory caps the total bytes the device will allocate; further
// requests fail with OutOfMemory. Zero means unlimited.
func WithMaxMemory(bytes int64) CPUOption {
	return func(d *CPUDevice) { d.maxBytes = bytes }
}

// WithWorkers overrides the kernel-execution parallelism.
func WithWorkers(n int) CPUOption {
	return func(d *CPUDevice) { d.engine.workers = n }
}

// WithCapability overrides the detected capability tier. Intended for
// tests pinning kernel selection.
func WithCapability(c int) CPUOption {
	return func(d *CPUDevice) { d.capability = c }
}

func NewCPUDevice(opts ...CPUOption) *CPUDevice {
	d := &CPUDevice{
		capability: detectCapability(),
		alloc:      memory.NewGoAllocator(),
	}
	d.refs.Store(1)
	d.engine = newEngine(d, 0)
	for _, opt := range opts {
		opt(d)
	}
	log.Debug().
		Int("capability", d.capability).
		Int("workers", d.engine.workers).
		Msg("CPU device initialized")
	return d
}

// WithAllocator substitutes the backing allocator. Tests use a checked
// allocator to assert buffers are not leaked.
func WithAllocator(alloc memory.Allocator) CPUOption {
	return func(d *CPUDevice) { d.alloc = alloc }
}

func detectCapability() int {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return CapabilityAVX512
	case cpuid.CPU.Supports(cpuid.AVX2):
		return CapabilityAVX2
	case cpuid.CPU.Supports(cpuid.SSE42):
		return CapabilitySSE42
	default:
		return CapabilityScalar
	}
}

func (d *CPUDevice) Type() Type      { return TypeCPU }
func (d *CPUDevice) Name() string    { return "CPU (" + cpuid.CPU.BrandName + ")" }
func (d *CPUDevice) Capability() int { return d.capability }
func (d *CPUDevice) Engine() *Engine { return d.engine }

func (d *CPUDevice) Allocate(byteSize int, storage Storage) (*Buffer, error) {
	if byteSize <= 0 {
		return nil, Errorf(CodeInvalidArgument, "invalid buffer size %d", byteSize)
	}
	switch storage {
	case StorageHost, StorageDevice, StorageManaged:
	default:
		return nil, Errorf(CodeUnsupportedHardware, "storage class %d not supported", storage)
	}
	if d.maxBytes > 0 && d.allocated.Load()+int64(byteSize) > d.maxBytes {
		return nil, Errorf(CodeOutOfMemory,
			"allocation of %d bytes exceeds device limit of %d bytes", byteSize, d.maxBytes)
	}

	b := &Buffer{
		dev:      d,
		data:     d.alloc.Allocate(byteSize),
		byteSize: byteSize,
		storage:  storage,
	}
	b.refs.Store(1)

	d.allocated.Add(int64(byteSize))
	d.buffers.Add(1)
	allocatedBytes.Add(float64(byteSize))
	liveBuffers.Inc()
	return b, nil
}

func (d *CPUDevice) Free(b *Buffer) {
	if b == nil || b.data == nil {
		return
	}
	d.allocated.Add(-int64(len(b.data)))
	d.buffers.Add(-1)
	allocatedBytes.Sub(float64(len(b.data)))
	liveBuffers.Dec()
	d.alloc.Free(b.data)
	b.data = nil
}

func (d *CPUDevice) Copy(dst, src *Buffer, byteSize int) error {
	if dst == nil || src == nil {
		return Errorf(CodeInvalidArgument, "copy with nil buffer")
	}
	if byteSize < 0 || byteSize > len(dst.data) || byteSize > len(src.data) {
		return Errorf(CodeInvalidArgument,
			"copy of %d bytes out of bounds (dst %d, src %d)", byteSize, len(dst.data), len(src.data))
	}
	// All storage classes are host memory on this backend, so every
	// direction degenerates to a plain synchronous copy.
	copy(dst.data[:byteSize], src.data[:byteSize])
	return nil
}

func (d *CPUDevice) NewTensor(desc tensor.Desc, storage Storage) (*Tensor, error) {
	if err := desc.Validate(); err != nil {
		return nil, Errorf(CodeInvalidArgument, "invalid tensor descriptor: %v", err)
	}
	buf, err := d.Allocate(desc.ByteSize(), storage)
	if err != nil {
		return nil, err
	}
	return &Tensor{buf: buf, desc: desc}, nil
}

func (d *CPUDevice) Wait() error { return d.engine.Wait() }

func (d *CPUDevice) Error() error { return d.takeError() }

func (d *CPUDevice) SetErrorFunc(fn func(code Code, msg string)) { d.setErrorFunc(fn) }

func (d *CPUDevice) Retain() { d.refs.Add(1) }

func (d *CPUDevice) Release() {
	if d.refs.Add(-1) == 0 {
		d.engine.shutdown()
	}
}

func (d *CPUDevice) AllocatedBytes() int64 { return d.allocated.Load() }
func (d *CPUDevice) LiveBuffers() int64    { return d.buffers.Load() }
