package op

import (
	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/kernel"
	"github.com/wuyize25/oidn/internal/tensor"
)

// ConvDesc fixes the shapes and parameters of a convolution at
// construction. Bias is optional: a zero-value descriptor means no bias.
type ConvDesc struct {
	Input  tensor.Desc // CHW, rank 3 or 4 (leading batch)
	Weight tensor.Desc // OIHW
	Bias   tensor.Desc // X [OC], optional

	StrideH, StrideW int // default 1
	PadH, PadW       int

	Activation kernel.Activation
}

func (d ConvDesc) hasBias() bool { return len(d.Bias.Dims) != 0 }

// Conv is a 2-D convolution bound to one kernel catalog entry, picked at
// construction and fixed for the op's lifetime.
type Conv struct {
	baseOp
	desc   ConvDesc
	params kernel.ConvParams
	impl   kernel.Conv

	// KernelName identifies the selected catalog entry.
	KernelName string

	src, weight, bias, dst, scratch *device.Tensor
}

// NewConv validates the descriptor, runs kernel selection for the
// device's capability and instantiates the chosen kernel. Fails with
// UnsupportedHardware if no catalog entry is eligible.
func NewConv(dev device.Device, desc ConvDesc) (*Conv, error) {
	params, err := convParams(desc)
	if err != nil {
		return nil, err
	}
	impl, name, err := kernel.SelectConv(dev, params)
	if err != nil {
		return nil, err
	}
	return &Conv{
		baseOp:     baseOp{dev: dev},
		desc:       desc,
		params:     params,
		impl:       impl,
		KernelName: name,
	}, nil
}

func convParams(desc ConvDesc) (kernel.ConvParams, error) {
	var p kernel.ConvParams
	if err := desc.Input.Validate(); err != nil {
		return p, device.Errorf(device.CodeInvalidArgument, "conv input: %v", err)
	}
	if err := desc.Weight.Validate(); err != nil {
		return p, device.Errorf(device.CodeInvalidArgument, "conv weight: %v", err)
	}
	if desc.Input.Layout != tensor.CHW {
		return p, device.Errorf(device.CodeInvalidArgument,
			"conv input layout %s, want chw", desc.Input.Layout)
	}
	if desc.Weight.Layout != tensor.OIHW {
		return p, device.Errorf(device.CodeInvalidArgument,
			"conv weight layout %s, want oihw", desc.Weight.Layout)
	}
	if desc.Input.DataType != desc.Weight.DataType {
		return p, device.Errorf(device.CodeInvalidArgument,
			"conv input datatype %s does not match weight datatype %s",
			desc.Input.DataType, desc.Weight.DataType)
	}

	in := desc.Input.Dims
	p.N = 1
	if len(in) == 4 {
		p.N, in = in[0], in[1:]
	}
	p.IC, p.IH, p.IW = in[0], in[1], in[2]
	w := desc.Weight.Dims
	p.OC, p.KH, p.KW = w[0], w[2], w[3]
	if w[1] != p.IC {
		return p, device.Errorf(device.CodeInvalidArgument,
			"conv weight expects %d input channels, input has %d", w[1], p.IC)
	}

	p.StrideH, p.StrideW = desc.StrideH, desc.StrideW
	if p.StrideH == 0 {
		p.StrideH = 1
	}
	if p.StrideW == 0 {
		p.StrideW = 1
	}
	if p.StrideH < 0 || p.StrideW < 0 || desc.PadH < 0 || desc.PadW < 0 {
		return p, device.Errorf(device.CodeInvalidArgument, "conv stride/padding out of range")
	}
	p.PadH, p.PadW = desc.PadH, desc.PadW
	p.DataType = desc.Input.DataType
	p.Activation = desc.Activation

	if p.OutH() <= 0 || p.OutW() <= 0 {
		return p, device.Errorf(device.CodeInvalidArgument,
			"conv output extent %dx%d is empty", p.OutH(), p.OutW())
	}
	if desc.hasBias() {
		if desc.Bias.Layout != tensor.X || desc.Bias.NumElements() != p.OC {
			return p, device.Errorf(device.CodeInvalidArgument,
				"conv bias must be a flat vector of %d elements", p.OC)
		}
	}
	return p, nil
}

func (c *Conv) Name() string { return "conv" }

// OutputDesc returns the descriptor Run will produce, matching the
// input's rank.
func (c *Conv) OutputDesc() tensor.Desc {
	dims := []int{c.params.OC, c.params.OutH(), c.params.OutW()}
	if len(c.desc.Input.Dims) == 4 {
		dims = append([]int{c.params.N}, dims...)
	}
	return tensor.Desc{Dims: dims, Layout: tensor.CHW, DataType: c.params.DataType}
}

func (c *Conv) SetSrc(t *device.Tensor)    { c.src = t }
func (c *Conv) SetWeight(t *device.Tensor) { c.weight = t }
func (c *Conv) SetBias(t *device.Tensor)   { c.bias = t }
func (c *Conv) SetDst(t *device.Tensor)    { c.dst = t }

// ScratchByteSize reports the workspace the selected kernel needs. Valid
// from construction, independent of Finalize.
func (c *Conv) ScratchByteSize() int { return c.impl.ScratchByteSize() }

// SetScratch binds caller-allocated scratch. An undersized or missing
// scratch fails at Finalize, not at Run.
func (c *Conv) SetScratch(t *device.Tensor) { c.scratch = t }

func (c *Conv) args() kernel.ConvArgs {
	return kernel.ConvArgs{
		Src: c.src, Weight: c.weight, Bias: c.bias, Dst: c.dst, Scratch: c.scratch,
	}
}

func (c *Conv) Finalize() error {
	if err := c.requireBound("conv", "src", c.src); err != nil {
		return err
	}
	if err := c.requireBound("conv", "dst", c.dst); err != nil {
		return err
	}
	if err := c.requireBound("conv", "weight", c.weight); err != nil {
		return err
	}
	if c.desc.hasBias() {
		if err := c.requireBound("conv", "bias", c.bias); err != nil {
			return err
		}
	}
	if err := c.impl.Validate(c.args()); err != nil {
		return err
	}
	c.markFinalized()
	return nil
}

func (c *Conv) Run() error {
	if err := c.requireFinalized("conv"); err != nil {
		return err
	}
	for role, t := range map[string]*device.Tensor{
		"src": c.src, "weight": c.weight, "dst": c.dst, "scratch": c.scratch,
	} {
		if err := c.requireBound("conv", role, t); err != nil {
			return err
		}
	}
	return c.impl.Run(c.args())
}
