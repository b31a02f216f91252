package op

import (
	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

// ImageCopy copies one interleaved image into another of the same shape.
// Unlike the other ops it takes no descriptor: shapes are validated from
// the bound tensors at finalize time.
type ImageCopy struct {
	baseOp
	src, dst *device.Tensor
}

func NewImageCopy(dev device.Device) *ImageCopy {
	return &ImageCopy{baseOp: baseOp{dev: dev}}
}

func (ic *ImageCopy) Name() string { return "image_copy" }

func (ic *ImageCopy) SetSrc(t *device.Tensor) { ic.src = t }
func (ic *ImageCopy) SetDst(t *device.Tensor) { ic.dst = t }

func (ic *ImageCopy) Finalize() error {
	if err := ic.requireBound("image_copy", "src", ic.src); err != nil {
		return err
	}
	if err := ic.requireBound("image_copy", "dst", ic.dst); err != nil {
		return err
	}
	src := ic.src.Desc()
	if src.Layout != tensor.HWC {
		return device.Errorf(device.CodeInvalidArgument,
			"image_copy source layout %s, want hwc", src.Layout)
	}
	if src.DataType != tensor.Float32 {
		return device.Errorf(device.CodeUnsupportedHardware,
			"image_copy compiled for f32, source is %s", src.DataType)
	}
	if err := matchDesc("image_copy", "dst", ic.dst.Desc(), src); err != nil {
		return err
	}
	ic.markFinalized()
	return nil
}

func (ic *ImageCopy) Run() error {
	if err := ic.requireFinalized("image_copy"); err != nil {
		return err
	}
	if err := ic.requireBound("image_copy", "src", ic.src); err != nil {
		return err
	}
	if err := ic.requireBound("image_copy", "dst", ic.dst); err != nil {
		return err
	}

	d := ic.src.Desc()
	h, w, c := d.Dims[0], d.Dims[1], d.Dims[2]
	src, dst := ic.src.Floats(), ic.dst.Floats()
	return ic.dev.Engine().RunKernelAsync(device.Dim2(h, w), func(it device.WorkItem) {
		off := (it.ID(0)*w + it.ID(1)) * c
		copy(dst[off:off+c], src[off:off+c])
	})
}
