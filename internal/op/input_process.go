package op

import (
	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

// InputProcessDesc fixes the conversion from an interleaved host image
// to the planar network tensor: transfer function, scale and channel
// padding are applied in one pass.
type InputProcessDesc struct {
	Src tensor.Desc // HWC image
	Dst tensor.Desc // CHW tensor with at least as many channels as Src
	HDR bool
}

// InputProcess converts and normalizes an input image for the network.
type InputProcess struct {
	baseOp
	desc       InputProcessDesc
	tf         transferFunc
	h, w       int
	srcC, dstC int
	scale      float32
	src, dst   *device.Tensor
}

func NewInputProcess(dev device.Device, desc InputProcessDesc) (*InputProcess, error) {
	if err := validateImagePair(desc.Src, desc.Dst); err != nil {
		return nil, err
	}
	if desc.Dst.Dims[0] < desc.Src.Dims[2] {
		return nil, device.Errorf(device.CodeInvalidArgument,
			"input process: destination has %d channels, source has %d",
			desc.Dst.Dims[0], desc.Src.Dims[2])
	}
	return &InputProcess{
		baseOp: baseOp{dev: dev},
		desc:   desc,
		tf:     newTransferFunc(desc.HDR),
		h:      desc.Src.Dims[0], w: desc.Src.Dims[1],
		srcC: desc.Src.Dims[2], dstC: desc.Dst.Dims[0],
		scale: 1,
	}, nil
}

func validateImagePair(src, dst tensor.Desc) error {
	if err := src.Validate(); err != nil {
		return device.Errorf(device.CodeInvalidArgument, "image source: %v", err)
	}
	if err := dst.Validate(); err != nil {
		return device.Errorf(device.CodeInvalidArgument, "image destination: %v", err)
	}
	if src.Layout != tensor.HWC {
		return device.Errorf(device.CodeInvalidArgument, "image layout %s, want hwc", src.Layout)
	}
	if dst.Layout != tensor.CHW || len(dst.Dims) != 3 {
		return device.Errorf(device.CodeInvalidArgument, "network tensor must be rank-3 chw")
	}
	if src.DataType != tensor.Float32 || dst.DataType != tensor.Float32 {
		return device.Errorf(device.CodeUnsupportedHardware, "image processing compiled for f32")
	}
	if dst.Dims[1] != src.Dims[0] || dst.Dims[2] != src.Dims[1] {
		return device.Errorf(device.CodeInvalidArgument,
			"image %dx%d does not match tensor %dx%d",
			src.Dims[0], src.Dims[1], dst.Dims[1], dst.Dims[2])
	}
	return nil
}

func (ip *InputProcess) Name() string { return "input_process" }

// SetInputScale sets the exposure scale applied before the transfer
// function, typically the autoexposure result.
func (ip *InputProcess) SetInputScale(s float32) { ip.scale = s }

func (ip *InputProcess) SetSrc(t *device.Tensor) { ip.src = t }
func (ip *InputProcess) SetDst(t *device.Tensor) { ip.dst = t }

func (ip *InputProcess) Finalize() error {
	if err := ip.requireBound("input_process", "src", ip.src); err != nil {
		return err
	}
	if err := ip.requireBound("input_process", "dst", ip.dst); err != nil {
		return err
	}
	if err := matchDesc("input_process", "src", ip.src.Desc(), ip.desc.Src); err != nil {
		return err
	}
	if err := matchDesc("input_process", "dst", ip.dst.Desc(), ip.desc.Dst); err != nil {
		return err
	}
	ip.markFinalized()
	return nil
}

func (ip *InputProcess) Run() error {
	if err := ip.requireFinalized("input_process"); err != nil {
		return err
	}
	if err := ip.requireBound("input_process", "src", ip.src); err != nil {
		return err
	}
	if err := ip.requireBound("input_process", "dst", ip.dst); err != nil {
		return err
	}

	src, dst := ip.src.Floats(), ip.dst.Floats()
	h, w := ip.h, ip.w
	scale := ip.scale
	return ip.dev.Engine().RunKernelAsync(device.Dim2(h, w), func(it device.WorkItem) {
		y, x := it.ID(0), it.ID(1)
		pixel := src[(y*w+x)*ip.srcC:]
		for c := 0; c < ip.dstC; c++ {
			var v float32
			if c < ip.srcC {
				v = ip.tf.forward(pixel[c] * scale)
			}
			dst[c*h*w+y*w+x] = v
		}
	})
}
