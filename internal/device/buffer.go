package device

import "sync/atomic"

// Buffer is a contiguous memory region with a fixed storage class.
// Buffers are reference counted: they start with one reference and are
// returned to the owning device's allocator when the count drops to zero.
type Buffer struct {
	dev      Device
	data     []byte
	byteSize int
	storage  Storage
	refs     atomic.Int32

	// handle is a backend-private allocation handle for storage that has
	// no host-visible region (data == nil), e.g. CUDA device memory.
	handle uintptr
}

// ByteSize returns the size of the region.
func (b *Buffer) ByteSize() int { return b.byteSize }

// Storage returns the storage class, fixed at allocation.
func (b *Buffer) Storage() Storage { return b.storage }

// Device returns the owning device.
func (b *Buffer) Device() Device { return b.dev }

// Retain increments the reference count.
func (b *Buffer) Retain() { b.refs.Add(1) }

// Release decrements the reference count and frees the buffer when it
// reaches zero. Releasing past zero is a programming error.
func (b *Buffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.dev.Free(b)
	}
}

// Map returns a host pointer to the region. Device-class buffers cannot
// be mapped; callers must copy through a host or managed staging buffer.
func (b *Buffer) Map() ([]byte, error) {
	if b.storage == StorageDevice {
		return nil, Errorf(CodeInvalidOperation,
			"cannot map device buffer, copy through a host staging buffer")
	}
	return b.data, nil
}

// Unmap ends a mapping started by Map.
func (b *Buffer) Unmap() {}

// bytes is the backend-side accessor used by kernels, which execute in
// the device's own context and may touch any storage class.
func (b *Buffer) bytes() []byte { return b.data }
