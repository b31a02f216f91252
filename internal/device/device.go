package device

import (
	"sync"

	"github.com/wuyize25/oidn/internal/tensor"
)

// Type identifies a device backend family.
type Type int

const (
	// TypeDefault selects the best available backend automatically.
	TypeDefault Type = iota
	TypeCPU
	TypeCUDA
)

func (t Type) String() string {
	switch t {
	case TypeDefault:
		return "default"
	case TypeCPU:
		return "cpu"
	case TypeCUDA:
		return "cuda"
	default:
		return "invalid"
	}
}

// Device is one accelerator instance. It owns the execution queue and is
// the allocator for all buffers bound to it. Ops and tensors created for
// a device hold a weak back-reference and must not outlive it.
//
// Allocation and free calls are not internally serialized; concurrent
// allocator use must be coordinated by the caller.
type Device interface {
	Type() Type
	Name() string

	// Capability is a monotonic hardware-generation identifier used only
	// for kernel eligibility comparisons.
	Capability() int

	// Engine returns the device's execution queue.
	Engine() *Engine

	Allocate(byteSize int, storage Storage) (*Buffer, error)
	Free(b *Buffer)

	// Copy transfers byteSize bytes between buffers; the direction is
	// inferred from the storage classes of dst and src.
	Copy(dst, src *Buffer, byteSize int) error

	// NewTensor allocates a fresh buffer sized for desc and wraps it.
	NewTensor(desc tensor.Desc, storage Storage) (*Tensor, error)

	// Wait blocks until all enqueued work has completed and reports
	// (without clearing) any captured asynchronous error.
	Wait() error

	// Error drains the sticky error slot: it returns the captured error,
	// if any, and clears the slot so further errors can be captured.
	Error() error

	// SetErrorFunc registers a callback invoked whenever the error slot
	// becomes set.
	SetErrorFunc(fn func(code Code, msg string))

	Retain()
	Release()

	// Allocation statistics.
	AllocatedBytes() int64
	LiveBuffers() int64
}

// New creates a device of the requested type. TypeDefault currently
// resolves to the CPU backend; GPU backends are compiled in behind build
// tags and report UnsupportedHardware when absent.
func New(t Type) (Device, error) {
	switch t {
	case TypeDefault, TypeCPU:
		return NewCPUDevice(), nil
	case TypeCUDA:
		return NewCUDADevice()
	default:
		return nil, Errorf(CodeInvalidArgument, "invalid device type %d", t)
	}
}

// errorState is the sticky per-device error slot shared by all backends.
// The first captured error is kept until drained; later errors are
// dropped until the slot is cleared.
type errorState struct {
	mu       sync.Mutex
	err      error
	callback func(code Code, msg string)
}

func (s *errorState) recordAsyncError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	cb := s.callback
	s.mu.Unlock()

	asyncErrors.Inc()
	if cb != nil {
		cb(CodeOf(err), err.Error())
	}
}

func (s *errorState) stickyError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// takeError drains the slot.
func (s *errorState) takeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

func (s *errorState) setErrorFunc(fn func(code Code, msg string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
}
