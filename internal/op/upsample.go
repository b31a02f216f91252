package op

import (
	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

// UpsampleDesc fixes the input shape of a 2x nearest-neighbor upsample.
type UpsampleDesc struct {
	Src tensor.Desc // CHW, rank 3 or 4
}

// Upsample doubles the spatial resolution of a feature map by
// replicating each element into a 2x2 block.
type Upsample struct {
	baseOp
	desc     UpsampleDesc
	n, c     int
	h, w     int
	src, dst *device.Tensor
}

func NewUpsample(dev device.Device, desc UpsampleDesc) (*Upsample, error) {
	if err := desc.Src.Validate(); err != nil {
		return nil, device.Errorf(device.CodeInvalidArgument, "upsample input: %v", err)
	}
	if desc.Src.Layout != tensor.CHW {
		return nil, device.Errorf(device.CodeInvalidArgument,
			"upsample input layout %s, want chw", desc.Src.Layout)
	}
	if desc.Src.DataType != tensor.Float32 {
		return nil, device.Errorf(device.CodeUnsupportedHardware,
			"upsample compiled for f32, input is %s", desc.Src.DataType)
	}
	dims := desc.Src.Dims
	n := 1
	if len(dims) == 4 {
		n, dims = dims[0], dims[1:]
	}
	return &Upsample{
		baseOp: baseOp{dev: dev},
		desc:   desc,
		n:      n, c: dims[0], h: dims[1], w: dims[2],
	}, nil
}

func (u *Upsample) Name() string { return "upsample" }

func (u *Upsample) OutputDesc() tensor.Desc {
	dims := []int{u.c, u.h * 2, u.w * 2}
	if len(u.desc.Src.Dims) == 4 {
		dims = append([]int{u.n}, dims...)
	}
	return tensor.Desc{Dims: dims, Layout: tensor.CHW, DataType: tensor.Float32}
}

func (u *Upsample) SetSrc(t *device.Tensor) { u.src = t }
func (u *Upsample) SetDst(t *device.Tensor) { u.dst = t }

func (u *Upsample) Finalize() error {
	if err := u.requireBound("upsample", "src", u.src); err != nil {
		return err
	}
	if err := u.requireBound("upsample", "dst", u.dst); err != nil {
		return err
	}
	if err := matchDesc("upsample", "src", u.src.Desc(), u.desc.Src); err != nil {
		return err
	}
	if err := matchDesc("upsample", "dst", u.dst.Desc(), u.OutputDesc()); err != nil {
		return err
	}
	u.markFinalized()
	return nil
}

func (u *Upsample) Run() error {
	if err := u.requireFinalized("upsample"); err != nil {
		return err
	}
	if err := u.requireBound("upsample", "src", u.src); err != nil {
		return err
	}
	if err := u.requireBound("upsample", "dst", u.dst); err != nil {
		return err
	}

	src, dst := u.src.Floats(), u.dst.Floats()
	oh, ow := u.h*2, u.w*2
	return u.dev.Engine().RunKernelAsync(device.Dim3(u.n*u.c, oh, ow), func(it device.WorkItem) {
		plane := it.ID(0)
		oy, ox := it.ID(1), it.ID(2)
		dst[plane*oh*ow+oy*ow+ox] = src[plane*u.h*u.w+(oy/2)*u.w+ox/2]
	})
}
