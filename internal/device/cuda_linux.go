//go:build linux && cuda

package device

/*
#cgo LDFLAGS: -L. -loidn_cuda -lcudart
#include "cuda_bridge.h"
#include <stdlib.h>
*/
import "C"
import (
	"sync/atomic"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"

	"github.com/wuyize25/oidn/internal/tensor"
)

// ensure interface compliance
var _ Device = (*CUDADevice)(nil)

// CUDADevice manages device memory and synchronization through the CUDA
// bridge library. Convolution kernels for this backend register catalog
// entries from cuda_kernels.go once the bridge ships them; until then op
// construction reports UnsupportedHardware through kernel selection.
type CUDADevice struct {
	errorState

	ctx        C.OidnCudaContextRef
	engine     *Engine
	capability int
	hostAlloc  memory.Allocator

	refs      atomic.Int32
	allocated atomic.Int64
	buffers   atomic.Int64
}

func NewCUDADevice() (Device, error) {
	ctx := C.OidnCuda_Init()
	if ctx == nil {
		return nil, Errorf(CodeUnsupportedHardware, "no usable CUDA device")
	}
	d := &CUDADevice{
		ctx:        ctx,
		capability: int(C.OidnCuda_ComputeCapability(ctx)),
		hostAlloc:  memory.NewGoAllocator(),
	}
	d.refs.Store(1)
	d.engine = newEngine(d, 1)
	log.Debug().Int("capability", d.capability).Msg("CUDA device initialized")
	return d, nil
}

func (d *CUDADevice) Type() Type      { return TypeCUDA }
func (d *CUDADevice) Name() string    { return "CUDA" }
func (d *CUDADevice) Capability() int { return d.capability }
func (d *CUDADevice) Engine() *Engine { return d.engine }

func (d *CUDADevice) Allocate(byteSize int, storage Storage) (*Buffer, error) {
	if byteSize <= 0 {
		return nil, Errorf(CodeInvalidArgument, "invalid buffer size %d", byteSize)
	}
	b := &Buffer{dev: d, byteSize: byteSize, storage: storage}
	b.refs.Store(1)
	switch storage {
	case StorageHost:
		b.data = d.hostAlloc.Allocate(byteSize)
	case StorageDevice, StorageManaged:
		ptr := C.OidnCuda_Alloc(d.ctx, C.size_t(byteSize), C.int(storage == StorageManaged))
		if ptr == nil {
			return nil, Errorf(CodeOutOfMemory, "CUDA allocation of %d bytes failed", byteSize)
		}
		b.handle = uintptr(ptr)
		if storage == StorageManaged {
			b.data = unsafe.Slice((*byte)(ptr), byteSize)
		}
	default:
		return nil, Errorf(CodeUnsupportedHardware, "storage class %d not supported", storage)
	}
	d.allocated.Add(int64(byteSize))
	d.buffers.Add(1)
	allocatedBytes.Add(float64(byteSize))
	liveBuffers.Inc()
	return b, nil
}

func (d *CUDADevice) Free(b *Buffer) {
	if b == nil {
		return
	}
	switch b.storage {
	case StorageHost:
		if b.data != nil {
			d.allocated.Add(-int64(b.byteSize))
			allocatedBytes.Sub(float64(b.byteSize))
			d.hostAlloc.Free(b.data)
			b.data = nil
		}
	case StorageDevice, StorageManaged:
		if b.handle != 0 {
			C.OidnCuda_Free(d.ctx, unsafe.Pointer(b.handle))
			d.allocated.Add(-int64(b.byteSize))
			allocatedBytes.Sub(float64(b.byteSize))
			b.handle = 0
			b.data = nil
		}
	}
	d.buffers.Add(-1)
	liveBuffers.Dec()
}

func (d *CUDADevice) Copy(dst, src *Buffer, byteSize int) error {
	if dst == nil || src == nil {
		return Errorf(CodeInvalidArgument, "copy with nil buffer")
	}
	rc := C.OidnCuda_Memcpy(d.ctx,
		unsafe.Pointer(dst.handle), unsafe.Pointer(ptrOf(dst)),
		unsafe.Pointer(src.handle), unsafe.Pointer(ptrOf(src)),
		C.size_t(byteSize))
	if rc != 0 {
		return Errorf(CodeUnknown, "CUDA memcpy failed with code %d", int(rc))
	}
	return nil
}

func ptrOf(b *Buffer) uintptr {
	if len(b.data) > 0 {
		return uintptr(unsafe.Pointer(&b.data[0]))
	}
	return 0
}

func (d *CUDADevice) NewTensor(desc tensor.Desc, storage Storage) (*Tensor, error) {
	if err := desc.Validate(); err != nil {
		return nil, Errorf(CodeInvalidArgument, "invalid tensor descriptor: %v", err)
	}
	buf, err := d.Allocate(desc.ByteSize(), storage)
	if err != nil {
		return nil, err
	}
	return &Tensor{buf: buf, desc: desc}, nil
}

func (d *CUDADevice) Wait() error {
	if err := d.engine.Wait(); err != nil {
		return err
	}
	if rc := C.OidnCuda_Synchronize(d.ctx); rc != 0 {
		d.recordAsyncError(Errorf(CodeUnknown, "CUDA synchronize failed with code %d", int(rc)))
	}
	return d.stickyError()
}

func (d *CUDADevice) Error() error { return d.takeError() }

func (d *CUDADevice) SetErrorFunc(fn func(code Code, msg string)) { d.setErrorFunc(fn) }

func (d *CUDADevice) Retain() { d.refs.Add(1) }

func (d *CUDADevice) Release() {
	if d.refs.Add(-1) == 0 {
		d.engine.shutdown()
		C.OidnCuda_Destroy(d.ctx)
	}
}

func (d *CUDADevice) AllocatedBytes() int64 { return d.allocated.Load() }
func (d *CUDADevice) LiveBuffers() int64    { return d.buffers.Load() }
