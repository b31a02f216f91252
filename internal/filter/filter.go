// Package filter composes the tensor primitives into the fixed-topology
// denoising pipeline and drives it end to end: image upload, exposure
// estimation, the encoder/decoder network and image download.
package filter

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/kernel"
	"github.com/wuyize25/oidn/internal/op"
	"github.com/wuyize25/oidn/internal/tensor"
	"github.com/wuyize25/oidn/internal/weights"
)

var tracer = otel.Tracer("oidn-filter")

// Network channel widths. The input is padded from 3 to alignedC
// channels before the first convolution.
const (
	alignedC = 4
	encC     = 8
)

// ProgressFunc reports completion in [0, 1]. Returning false cancels the
// filter before the next stage is enqueued; in-flight work still drains.
type ProgressFunc func(done float64) bool

// Filter is a denoising filter instance bound to one device.
type Filter struct {
	dev   device.Device
	arch  *weights.Archive
	arena *tensorArena

	hdr      bool
	width    int
	height   int
	input    []float32 // HWC, 3 channels
	output   []float32
	progress ProgressFunc

	committed bool

	// pipeline state, rebuilt on Commit
	srcImage, dstImage *device.Tensor
	aeResult, scratch  *device.Tensor
	weightTensors      []*device.Tensor
	autoexposure       *op.Autoexposure
	inputProc          *op.InputProcess
	outputProc         *op.OutputProcess
	stages             []stage
}

type stage struct {
	name string
	run  func() error
}

// New creates a filter using the given weights archive.
func New(dev device.Device, arch *weights.Archive) *Filter {
	return &Filter{dev: dev, arch: arch, arena: newTensorArena(dev)}
}

// SetHDR selects the HDR transfer function and enables autoexposure.
func (f *Filter) SetHDR(hdr bool) { f.hdr = hdr; f.committed = false }

// SetProgressFunc registers a progress callback.
func (f *Filter) SetProgressFunc(fn ProgressFunc) { f.progress = fn }

// SetImage binds the input image (interleaved RGB, row-major).
func (f *Filter) SetImage(data []float32, width, height int) {
	f.input = data
	f.width, f.height = width, height
	f.committed = false
}

// SetOutputImage binds the output image buffer, same shape as the input.
func (f *Filter) SetOutputImage(data []float32) { f.output = data }

// Release frees all device resources held by the filter.
func (f *Filter) Release() {
	f.releaseWeights()
	f.arena.Release()
	f.committed = false
}

func (f *Filter) releaseWeights() {
	for _, t := range f.weightTensors {
		t.Release()
	}
	f.weightTensors = nil
}

// Commit builds the op pipeline for the bound image shape. Required
// before Execute; changing the image shape or HDR mode invalidates the
// previous commit.
func (f *Filter) Commit() error {
	if f.input == nil || f.width <= 0 || f.height <= 0 {
		return device.Errorf(device.CodeInvalidOperation, "filter: no input image bound")
	}
	if len(f.input) != f.width*f.height*3 {
		return device.Errorf(device.CodeInvalidArgument,
			"filter: input image has %d elements, want %d", len(f.input), f.width*f.height*3)
	}
	if f.width%2 != 0 || f.height%2 != 0 {
		return device.Errorf(device.CodeInvalidArgument,
			"filter: image extent %dx%d must be even", f.width, f.height)
	}

	f.releaseWeights()
	f.arena.Recycle()
	f.stages = nil
	w, h := f.width, f.height

	imageDesc := tensor.Desc{Dims: []int{h, w, 3}, Layout: tensor.HWC, DataType: tensor.Float32}
	var err error
	if f.srcImage, err = f.arena.Get(imageDesc, device.StorageHost); err != nil {
		return err
	}
	if f.dstImage, err = f.arena.Get(imageDesc, device.StorageHost); err != nil {
		return err
	}

	// Network activations, ping-ponged through device memory.
	tIn, err := f.arena.Get(chwDesc(alignedC, h, w), device.StorageDevice)
	if err != nil {
		return err
	}
	tEnc, err := f.arena.Get(chwDesc(encC, h, w), device.StorageDevice)
	if err != nil {
		return err
	}
	tPool, err := f.arena.Get(chwDesc(encC, h/2, w/2), device.StorageDevice)
	if err != nil {
		return err
	}
	tMid, err := f.arena.Get(chwDesc(encC, h/2, w/2), device.StorageDevice)
	if err != nil {
		return err
	}
	tUp, err := f.arena.Get(chwDesc(encC, h, w), device.StorageDevice)
	if err != nil {
		return err
	}
	tOut, err := f.arena.Get(chwDesc(3, h, w), device.StorageDevice)
	if err != nil {
		return err
	}

	// Autoexposure result slot.
	if f.hdr {
		ae, err := op.NewAutoexposure(f.dev, op.AutoexposureDesc{Src: imageDesc})
		if err != nil {
			return err
		}
		if f.aeResult, err = f.arena.Get(ae.OutputDesc(), device.StorageHost); err != nil {
			return err
		}
		ae.SetSrc(f.srcImage)
		ae.SetDst(f.aeResult)
		if err := ae.Finalize(); err != nil {
			return err
		}
		f.autoexposure = ae
	} else {
		f.autoexposure = nil
	}

	ip, err := op.NewInputProcess(f.dev, op.InputProcessDesc{
		Src: imageDesc, Dst: tIn.Desc(), HDR: f.hdr,
	})
	if err != nil {
		return err
	}
	ip.SetSrc(f.srcImage)
	ip.SetDst(tIn)
	f.inputProc = ip

	conv1, err := f.buildConv("conv1", tIn, tEnc, kernel.ActivationReLU)
	if err != nil {
		return err
	}
	pool, err := op.NewPool(f.dev, op.PoolDesc{Src: tEnc.Desc()})
	if err != nil {
		return err
	}
	pool.SetSrc(tEnc)
	pool.SetDst(tPool)

	conv2, err := f.buildConv("conv2", tPool, tMid, kernel.ActivationReLU)
	if err != nil {
		return err
	}
	up, err := op.NewUpsample(f.dev, op.UpsampleDesc{Src: tMid.Desc()})
	if err != nil {
		return err
	}
	up.SetSrc(tMid)
	up.SetDst(tUp)

	conv3, err := f.buildConv("conv3", tUp, tOut, kernel.ActivationNone)
	if err != nil {
		return err
	}

	outp, err := op.NewOutputProcess(f.dev, op.OutputProcessDesc{
		Src: tOut.Desc(), Dst: imageDesc, HDR: f.hdr,
	})
	if err != nil {
		return err
	}
	outp.SetSrc(tOut)
	outp.SetDst(f.dstImage)
	f.outputProc = outp

	// One shared scratch sized for the largest conv requirement.
	convs := []*op.Conv{conv1, conv2, conv3}
	maxScratch := 0
	for _, c := range convs {
		if s := c.ScratchByteSize(); s > maxScratch {
			maxScratch = s
		}
	}
	scratchDesc := tensor.Desc{
		Dims: []int{(maxScratch + 3) / 4}, Layout: tensor.X, DataType: tensor.Float32,
	}
	if f.scratch, err = f.arena.Get(scratchDesc, device.StorageDevice); err != nil {
		return err
	}

	ordered := []op.Op{ip, conv1, pool, conv2, up, conv3, outp}
	for _, o := range ordered {
		if c, ok := o.(*op.Conv); ok {
			c.SetScratch(f.scratch)
		}
		if err := o.Finalize(); err != nil {
			return err
		}
		o := o
		f.stages = append(f.stages, stage{name: o.Name(), run: o.Run})
	}

	f.committed = true
	log.Debug().
		Int("width", w).Int("height", h).Bool("hdr", f.hdr).
		Str("conv1", conv1.KernelName).
		Msg("filter committed")
	return nil
}

func (f *Filter) buildConv(name string, src, dst *device.Tensor, act kernel.Activation) (*op.Conv, error) {
	wt, err := f.arch.Upload(f.dev, name+".weight", device.StorageDevice)
	if err != nil {
		return nil, err
	}
	f.weightTensors = append(f.weightTensors, wt)
	bias, err := f.arch.Upload(f.dev, name+".bias", device.StorageDevice)
	if err != nil {
		return nil, err
	}
	f.weightTensors = append(f.weightTensors, bias)
	c, err := op.NewConv(f.dev, op.ConvDesc{
		Input:      src.Desc(),
		Weight:     wt.Desc(),
		Bias:       bias.Desc(),
		PadH:       1,
		PadW:       1,
		Activation: act,
	})
	if err != nil {
		return nil, err
	}
	c.SetSrc(src)
	c.SetWeight(wt)
	c.SetBias(bias)
	c.SetDst(dst)
	return c, nil
}

func chwDesc(c, h, w int) tensor.Desc {
	return tensor.Desc{Dims: []int{c, h, w}, Layout: tensor.CHW, DataType: tensor.Float32}
}

// Execute runs the committed pipeline and blocks until the output image
// is ready. Cancellation via ctx or the progress callback takes effect
// between stages; enqueued work always drains.
func (f *Filter) Execute(ctx context.Context) error {
	if !f.committed {
		return device.Errorf(device.CodeInvalidOperation, "filter: execute before commit")
	}
	_, span := tracer.Start(ctx, "filter.Execute")
	span.SetAttributes(
		attribute.Int("image.width", f.width),
		attribute.Int("image.height", f.height),
		attribute.Bool("filter.hdr", f.hdr),
	)
	defer span.End()

	if err := device.WriteFloats(f.srcImage, f.input); err != nil {
		return err
	}

	scale := float32(1)
	if f.autoexposure != nil {
		if err := f.autoexposure.Run(); err != nil {
			return err
		}
		if err := f.dev.Wait(); err != nil {
			return err
		}
		scale = f.aeResult.Floats()[0]
	}
	f.inputProc.SetInputScale(scale)
	f.outputProc.SetInputScale(scale)

	total := len(f.stages) + 1
	for i, st := range f.stages {
		if err := f.checkCancel(ctx, float64(i)/float64(total)); err != nil {
			// Enqueued stages may still read srcImage and the
			// intermediate tensors; drain before handing them back.
			_ = f.dev.Wait()
			span.RecordError(err)
			return err
		}
		log.Trace().Str("stage", st.name).Msg("enqueueing filter stage")
		if err := st.run(); err != nil {
			return err
		}
	}
	if err := f.dev.Wait(); err != nil {
		return err
	}
	if err := f.checkCancel(ctx, 1); err != nil {
		span.RecordError(err)
		return err
	}

	if f.output != nil {
		out, err := device.ReadFloats(f.dstImage)
		if err != nil {
			return err
		}
		copy(f.output, out)
	}
	return nil
}

func (f *Filter) checkCancel(ctx context.Context, done float64) error {
	if ctx.Err() != nil {
		return device.Errorf(device.CodeCancelled, "filter execution cancelled: %v", ctx.Err())
	}
	if f.progress != nil && !f.progress(done) {
		return device.Errorf(device.CodeCancelled, "filter execution cancelled by progress callback")
	}
	return nil
}
