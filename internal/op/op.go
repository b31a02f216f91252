// Package op implements the shared tensor-operation lifecycle and the
// concrete primitives of the denoising network. Every op follows the
// same contract: construct from a descriptor via a New* factory on a
// device, bind tensor arguments, Finalize to validate and bind execution
// state, then Run to enqueue work on the device's queue.
package op

import "github.com/wuyize25/oidn/internal/device"

// Op is a configured, lifecycle-managed tensor primitive.
type Op interface {
	Name() string

	// Finalize validates the bound arguments and scratch against the
	// descriptor and binds backend execution state. It may be called
	// again to re-validate after rebinding arguments.
	Finalize() error

	// Run enqueues the op's work and returns immediately. It fails with
	// InvalidOperation before a successful Finalize. Arguments may be
	// rebound between Finalize and Run; Run re-validates only that
	// required arguments are non-nil.
	Run() error
}

// baseOp carries the lifecycle state machine shared by all ops.
type baseOp struct {
	dev       device.Device
	finalized bool
}

func (b *baseOp) markFinalized() { b.finalized = true }

// invalidate drops back to the created state after an argument change
// that needs re-validation. Currently unused by the re-validating ops
// but kept for kernels that bind persistent plans.
func (b *baseOp) invalidate() { b.finalized = false }

func (b *baseOp) requireFinalized(name string) error {
	if !b.finalized {
		return device.Errorf(device.CodeInvalidOperation, "%s: run before finalize", name)
	}
	return nil
}

func (b *baseOp) requireBound(name, role string, t *device.Tensor) error {
	if t == nil {
		return device.Errorf(device.CodeInvalidOperation, "%s: %s tensor not bound", name, role)
	}
	return nil
}
