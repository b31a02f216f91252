package op

import (
	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/simd"
	"github.com/wuyize25/oidn/internal/tensor"
)

const (
	// autoexposureKey is the middle-gray target of the exposure estimate.
	autoexposureKey = 0.18
	// maxBinSize is the downsampling bin extent in pixels.
	maxBinSize = 16
	lumEps     = 1e-8
)

// AutoexposureDesc fixes the shape of the image whose exposure is
// estimated.
type AutoexposureDesc struct {
	Src tensor.Desc // HWC image, at least 3 channels
}

// Autoexposure reduces an HDR image to a single exposure scale: the
// image is downsampled into coarse bins, and the scale is the key value
// over the geometric mean of the bin luminances.
type Autoexposure struct {
	baseOp
	desc     AutoexposureDesc
	h, w, c  int
	src, dst *device.Tensor // dst is a single-element tensor
}

func NewAutoexposure(dev device.Device, desc AutoexposureDesc) (*Autoexposure, error) {
	if err := desc.Src.Validate(); err != nil {
		return nil, device.Errorf(device.CodeInvalidArgument, "autoexposure input: %v", err)
	}
	if desc.Src.Layout != tensor.HWC || desc.Src.Dims[2] < 3 {
		return nil, device.Errorf(device.CodeInvalidArgument,
			"autoexposure input must be an hwc image with at least 3 channels")
	}
	if desc.Src.DataType != tensor.Float32 {
		return nil, device.Errorf(device.CodeUnsupportedHardware,
			"autoexposure compiled for f32, input is %s", desc.Src.DataType)
	}
	return &Autoexposure{
		baseOp: baseOp{dev: dev},
		desc:   desc,
		h:      desc.Src.Dims[0], w: desc.Src.Dims[1], c: desc.Src.Dims[2],
	}, nil
}

func (a *Autoexposure) Name() string { return "autoexposure" }

// OutputDesc describes the single-element result tensor.
func (a *Autoexposure) OutputDesc() tensor.Desc {
	return tensor.Desc{Dims: []int{1}, Layout: tensor.X, DataType: tensor.Float32}
}

func (a *Autoexposure) SetSrc(t *device.Tensor) { a.src = t }
func (a *Autoexposure) SetDst(t *device.Tensor) { a.dst = t }

func (a *Autoexposure) Finalize() error {
	if err := a.requireBound("autoexposure", "src", a.src); err != nil {
		return err
	}
	if err := a.requireBound("autoexposure", "dst", a.dst); err != nil {
		return err
	}
	if err := matchDesc("autoexposure", "src", a.src.Desc(), a.desc.Src); err != nil {
		return err
	}
	if err := matchDesc("autoexposure", "dst", a.dst.Desc(), a.OutputDesc()); err != nil {
		return err
	}
	a.markFinalized()
	return nil
}

func (a *Autoexposure) Run() error {
	if err := a.requireFinalized("autoexposure"); err != nil {
		return err
	}
	if err := a.requireBound("autoexposure", "src", a.src); err != nil {
		return err
	}
	if err := a.requireBound("autoexposure", "dst", a.dst); err != nil {
		return err
	}

	src, dst := a.src.Floats(), a.dst.Floats()
	return a.dev.Engine().RunHostFuncAsync(func() error {
		dst[0] = a.estimate(src)
		return nil
	})
}

func (a *Autoexposure) estimate(src []float32) float32 {
	binsH := (a.h + maxBinSize - 1) / maxBinSize
	binsW := (a.w + maxBinSize - 1) / maxBinSize

	var sumLog float64
	var count int
	for by := 0; by < binsH; by++ {
		for bx := 0; bx < binsW; bx++ {
			y0, y1 := by*maxBinSize, min((by+1)*maxBinSize, a.h)
			x0, x1 := bx*maxBinSize, min((bx+1)*maxBinSize, a.w)

			var sum float64
			for y := y0; y < y1; y++ {
				row := src[(y*a.w)*a.c:]
				for x := x0; x < x1; x++ {
					p := row[x*a.c:]
					sum += float64(luminance(p[0], p[1], p[2]))
				}
			}
			l := sum / float64((y1-y0)*(x1-x0))
			if l > lumEps {
				sumLog += simd.LogFast(l)
				count++
			}
		}
	}
	if count == 0 {
		return 1
	}
	return float32(autoexposureKey / simd.ExpFast(sumLog/float64(count)))
}

func luminance(r, g, b float32) float32 {
	return 0.212671*r + 0.715160*g + 0.072169*b
}
