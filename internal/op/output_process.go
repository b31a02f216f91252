package op

import (
	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

// OutputProcessDesc fixes the conversion from the network's planar
// output tensor back to an interleaved host image, undoing the input
// transfer function and exposure scale.
type OutputProcessDesc struct {
	Src tensor.Desc // CHW tensor with at least as many channels as Dst
	Dst tensor.Desc // HWC image
	HDR bool
}

// OutputProcess denormalizes the network output into an image.
type OutputProcess struct {
	baseOp
	desc       OutputProcessDesc
	tf         transferFunc
	h, w       int
	srcC, dstC int
	scale      float32
	src, dst   *device.Tensor
}

func NewOutputProcess(dev device.Device, desc OutputProcessDesc) (*OutputProcess, error) {
	if err := validateImagePair(desc.Dst, desc.Src); err != nil {
		return nil, err
	}
	if desc.Src.Dims[0] < desc.Dst.Dims[2] {
		return nil, device.Errorf(device.CodeInvalidArgument,
			"output process: source has %d channels, destination needs %d",
			desc.Src.Dims[0], desc.Dst.Dims[2])
	}
	return &OutputProcess{
		baseOp: baseOp{dev: dev},
		desc:   desc,
		tf:     newTransferFunc(desc.HDR),
		h:      desc.Dst.Dims[0], w: desc.Dst.Dims[1],
		srcC: desc.Src.Dims[0], dstC: desc.Dst.Dims[2],
		scale: 1,
	}, nil
}

func (o *OutputProcess) Name() string { return "output_process" }

// SetInputScale sets the exposure scale to undo; must match the scale
// given to the paired InputProcess.
func (o *OutputProcess) SetInputScale(s float32) { o.scale = s }

func (o *OutputProcess) SetSrc(t *device.Tensor) { o.src = t }
func (o *OutputProcess) SetDst(t *device.Tensor) { o.dst = t }

func (o *OutputProcess) Finalize() error {
	if err := o.requireBound("output_process", "src", o.src); err != nil {
		return err
	}
	if err := o.requireBound("output_process", "dst", o.dst); err != nil {
		return err
	}
	if err := matchDesc("output_process", "src", o.src.Desc(), o.desc.Src); err != nil {
		return err
	}
	if err := matchDesc("output_process", "dst", o.dst.Desc(), o.desc.Dst); err != nil {
		return err
	}
	o.markFinalized()
	return nil
}

func (o *OutputProcess) Run() error {
	if err := o.requireFinalized("output_process"); err != nil {
		return err
	}
	if err := o.requireBound("output_process", "src", o.src); err != nil {
		return err
	}
	if err := o.requireBound("output_process", "dst", o.dst); err != nil {
		return err
	}

	src, dst := o.src.Floats(), o.dst.Floats()
	h, w := o.h, o.w
	invScale := 1 / o.scale
	return o.dev.Engine().RunKernelAsync(device.Dim2(h, w), func(it device.WorkItem) {
		y, x := it.ID(0), it.ID(1)
		pixel := dst[(y*w+x)*o.dstC:]
		for c := 0; c < o.dstC; c++ {
			pixel[c] = o.tf.inverse(src[c*h*w+y*w+x]) * invScale
		}
	})
}
