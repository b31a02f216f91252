package op

import (
	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

// PoolDesc fixes the input shape of a 2x2 stride-2 max pool.
type PoolDesc struct {
	Src tensor.Desc // CHW, rank 3 or 4, even spatial extents
}

// Pool halves the spatial resolution of a feature map, keeping the
// maximum of each 2x2 window.
type Pool struct {
	baseOp
	desc     PoolDesc
	n, c     int
	h, w     int
	src, dst *device.Tensor
}

func NewPool(dev device.Device, desc PoolDesc) (*Pool, error) {
	if err := desc.Src.Validate(); err != nil {
		return nil, device.Errorf(device.CodeInvalidArgument, "pool input: %v", err)
	}
	if desc.Src.Layout != tensor.CHW {
		return nil, device.Errorf(device.CodeInvalidArgument,
			"pool input layout %s, want chw", desc.Src.Layout)
	}
	if desc.Src.DataType != tensor.Float32 {
		return nil, device.Errorf(device.CodeUnsupportedHardware,
			"pool compiled for f32, input is %s", desc.Src.DataType)
	}
	dims := desc.Src.Dims
	n := 1
	if len(dims) == 4 {
		n, dims = dims[0], dims[1:]
	}
	if dims[1]%2 != 0 || dims[2]%2 != 0 {
		return nil, device.Errorf(device.CodeInvalidArgument,
			"pool input extent %dx%d must be even", dims[1], dims[2])
	}
	return &Pool{
		baseOp: baseOp{dev: dev},
		desc:   desc,
		n:      n, c: dims[0], h: dims[1], w: dims[2],
	}, nil
}

func (p *Pool) Name() string { return "pool" }

func (p *Pool) OutputDesc() tensor.Desc {
	dims := []int{p.c, p.h / 2, p.w / 2}
	if len(p.desc.Src.Dims) == 4 {
		dims = append([]int{p.n}, dims...)
	}
	return tensor.Desc{Dims: dims, Layout: tensor.CHW, DataType: tensor.Float32}
}

func (p *Pool) SetSrc(t *device.Tensor) { p.src = t }
func (p *Pool) SetDst(t *device.Tensor) { p.dst = t }

func (p *Pool) Finalize() error {
	if err := p.requireBound("pool", "src", p.src); err != nil {
		return err
	}
	if err := p.requireBound("pool", "dst", p.dst); err != nil {
		return err
	}
	if err := matchDesc("pool", "src", p.src.Desc(), p.desc.Src); err != nil {
		return err
	}
	if err := matchDesc("pool", "dst", p.dst.Desc(), p.OutputDesc()); err != nil {
		return err
	}
	p.markFinalized()
	return nil
}

func (p *Pool) Run() error {
	if err := p.requireFinalized("pool"); err != nil {
		return err
	}
	if err := p.requireBound("pool", "src", p.src); err != nil {
		return err
	}
	if err := p.requireBound("pool", "dst", p.dst); err != nil {
		return err
	}

	src, dst := p.src.Floats(), p.dst.Floats()
	oh, ow := p.h/2, p.w/2
	return p.dev.Engine().RunKernelAsync(device.Dim3(p.n*p.c, oh, ow), func(it device.WorkItem) {
		plane := it.ID(0)
		oy, ox := it.ID(1), it.ID(2)
		in := src[plane*p.h*p.w:]
		i0 := (2*oy)*p.w + 2*ox
		i1 := i0 + p.w
		v := in[i0]
		if in[i0+1] > v {
			v = in[i0+1]
		}
		if in[i1] > v {
			v = in[i1]
		}
		if in[i1+1] > v {
			v = in[i1+1]
		}
		dst[plane*oh*ow+oy*ow+ox] = v
	})
}

// matchDesc checks a bound tensor against the descriptor-derived
// expectation at finalize time.
func matchDesc(opName, role string, got, want tensor.Desc) error {
	if got.DataType != want.DataType {
		return device.Errorf(device.CodeInvalidArgument,
			"%s: %s datatype %s, want %s", opName, role, got.DataType, want.DataType)
	}
	if got.Layout != want.Layout {
		return device.Errorf(device.CodeInvalidArgument,
			"%s: %s layout %s, want %s", opName, role, got.Layout, want.Layout)
	}
	if got.NumElements() != want.NumElements() {
		return device.Errorf(device.CodeInvalidArgument,
			"%s: %s has %d elements, want %d", opName, role, got.NumElements(), want.NumElements())
	}
	return nil
}
