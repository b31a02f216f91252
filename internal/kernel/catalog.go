// Package kernel holds the static convolution kernel catalog and the
// cost-based selector that binds a problem instance to the best eligible
// specialized implementation for a device.
package kernel

import (
	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

// Activation is a post-op fused into a convolution kernel.
type Activation uint8

const (
	ActivationNone Activation = iota
	ActivationReLU
)

// ConvParams fixes a convolution problem: shapes, strides, padding,
// element type and fused activation. Derived deterministically from an
// op descriptor at construction time.
type ConvParams struct {
	N, IC, IH, IW    int // input batch, channels, spatial
	OC, KH, KW       int // output channels, kernel spatial
	StrideH, StrideW int
	PadH, PadW       int
	DataType         tensor.DataType
	Activation       Activation
}

// OutH returns the output height.
func (p ConvParams) OutH() int { return (p.IH+2*p.PadH-p.KH)/p.StrideH + 1 }

// OutW returns the output width.
func (p ConvParams) OutW() int { return (p.IW+2*p.PadW-p.KW)/p.StrideW + 1 }

// Problem returns the canonical matrix-multiply-equivalent dimensions:
// M is output spatial x batch, N is output channels, K is input channels
// x kernel area.
func (p ConvParams) Problem() ConvProblem {
	return ConvProblem{
		M:        p.N * p.OutH() * p.OutW(),
		N:        p.OC,
		K:        p.IC * p.KH * p.KW,
		DataType: p.DataType,
	}
}

// ConvProblem is the selector's view of a convolution instance.
type ConvProblem struct {
	M, N, K  int
	DataType tensor.DataType
}

// ConvArgs are the tensor arguments bound to a convolution kernel. Bias
// is optional; Scratch must satisfy the kernel's scratch requirement.
type ConvArgs struct {
	Src, Weight, Bias, Dst *device.Tensor
	Scratch                *device.Tensor
}

// Conv is an instantiated convolution kernel. Argument validation
// happens at bind (finalize) time via Validate; Run enqueues exactly one
// unit of work on the owning device's queue.
type Conv interface {
	// ScratchByteSize reports the device-side workspace the kernel
	// needs, valid as soon as the kernel is instantiated.
	ScratchByteSize() int

	// Validate checks the bound arguments against the kernel's compiled
	// expectations (datatype, layout, shapes, scratch size).
	Validate(args ConvArgs) error

	// Run enqueues the convolution. The arguments are re-read on every
	// call, so rebinding between runs is legal.
	Run(args ConvArgs) error
}

// Entry is one static catalog record: a factory for a kernel variant
// compiled for a datatype, a minimum hardware capability and a
// threadblock/tile shape. The catalog is process-wide constant state.
type Entry struct {
	Name                   string
	DataType               tensor.DataType
	MinCapability          int
	BlockM, BlockN, BlockK int
	Factory                func(dev device.Device, p ConvParams) (Conv, error)
}

// BlockVolume returns the total tile volume, used as the final
// tie-breaker during selection.
func (e *Entry) BlockVolume() int { return e.BlockM * e.BlockN * e.BlockK }
