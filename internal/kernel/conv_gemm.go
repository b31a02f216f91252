package kernel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/simd"
	"github.com/wuyize25/oidn/internal/tensor"
)

// numWorkers defines the default parallelism for the im2col pass.
var numWorkers = runtime.NumCPU()

// gemmConv lowers a convolution to im2col followed by a single-precision
// GEMM. The tile shape governs scratch padding and selection cost; the
// GEMM itself is dispatched through the registered blas32 implementation
// (pure Go by default, system BLAS with the cgo netlib build).
type gemmConv struct {
	dev        device.Device
	p          ConvParams
	name       string
	bm, bn, bk int
}

func newGemmConv(dev device.Device, p ConvParams, name string, bm, bn, bk int) (Conv, error) {
	if p.DataType != tensor.Float32 {
		return nil, device.Errorf(device.CodeUnsupportedHardware,
			"%s compiled for f32, problem is %s", name, p.DataType)
	}
	return &gemmConv{dev: dev, p: p, name: name, bm: bm, bn: bn, bk: bk}, nil
}

func (k *gemmConv) ScratchByteSize() int {
	p := k.p.Problem()
	return int(roundUp(p.M, k.bm)*roundUp(p.K, k.bk)) * k.p.DataType.Size()
}

func (k *gemmConv) Validate(args ConvArgs) error {
	p := k.p
	if err := k.checkTensor("src", args.Src, tensor.CHW, p.N*p.IC*p.IH*p.IW); err != nil {
		return err
	}
	if err := k.checkTensor("weight", args.Weight, tensor.OIHW, p.OC*p.IC*p.KH*p.KW); err != nil {
		return err
	}
	if args.Bias != nil {
		if err := k.checkTensor("bias", args.Bias, tensor.X, p.OC); err != nil {
			return err
		}
	}
	if err := k.checkTensor("dst", args.Dst, tensor.CHW, p.N*p.OC*p.OutH()*p.OutW()); err != nil {
		return err
	}
	if args.Scratch == nil {
		return device.Errorf(device.CodeInvalidArgument,
			"%s requires %d bytes of scratch, none bound", k.name, k.ScratchByteSize())
	}
	if got := args.Scratch.Desc().ByteSize(); got < k.ScratchByteSize() {
		return device.Errorf(device.CodeInvalidArgument,
			"%s requires %d bytes of scratch, got %d", k.name, k.ScratchByteSize(), got)
	}
	return nil
}

func (k *gemmConv) checkTensor(role string, t *device.Tensor, layout tensor.Layout, elems int) error {
	if t == nil {
		return device.Errorf(device.CodeInvalidOperation, "%s: %s tensor not bound", k.name, role)
	}
	d := t.Desc()
	if d.DataType != k.p.DataType {
		return device.Errorf(device.CodeInvalidArgument,
			"%s: %s datatype %s does not match kernel datatype %s", k.name, role, d.DataType, k.p.DataType)
	}
	if d.Layout != layout {
		return device.Errorf(device.CodeInvalidArgument,
			"%s: %s layout %s, want %s", k.name, role, d.Layout, layout)
	}
	if d.NumElements() != elems {
		return device.Errorf(device.CodeInvalidArgument,
			"%s: %s has %d elements, want %d", k.name, role, d.NumElements(), elems)
	}
	return nil
}

func (k *gemmConv) Run(args ConvArgs) error {
	return k.dev.Engine().RunHostFuncAsync(func() error {
		k.exec(args)
		return nil
	})
}

func (k *gemmConv) exec(args ConvArgs) {
	p := k.p
	oh, ow := p.OutH(), p.OutW()
	spatial := oh * ow
	kdim := p.IC * p.KH * p.KW
	m := p.N * spatial

	src := args.Src.Floats()
	weight := args.Weight.Floats()
	dst := args.Dst.Floats()
	col := args.Scratch.Floats()
	var bias []float32
	if args.Bias != nil {
		bias = args.Bias.Floats()
	}

	// Lower the input to a (M x K) patch matrix.
	parallelFor(m, func(row int) {
		n := row / spatial
		r := row % spatial
		oy, ox := r/ow, r%ow
		out := col[row*kdim : (row+1)*kdim]
		idx := 0
		for ic := 0; ic < p.IC; ic++ {
			plane := src[(n*p.IC+ic)*p.IH*p.IW:]
			for ky := 0; ky < p.KH; ky++ {
				iy := oy*p.StrideH - p.PadH + ky
				for kx := 0; kx < p.KW; kx++ {
					ix := ox*p.StrideW - p.PadW + kx
					if iy < 0 || iy >= p.IH || ix < 0 || ix >= p.IW {
						out[idx] = 0
					} else {
						out[idx] = plane[iy*p.IW+ix]
					}
					idx++
				}
			}
		}
	})

	// One GEMM per batch image keeps the output in planar layout:
	// C(OC x spatial) = W(OC x K) * col_n(spatial x K)^T.
	for n := 0; n < p.N; n++ {
		a := blas32.General{Rows: p.OC, Cols: kdim, Stride: kdim, Data: weight}
		b := blas32.General{Rows: spatial, Cols: kdim, Stride: kdim,
			Data: col[n*spatial*kdim : (n+1)*spatial*kdim]}
		c := blas32.General{Rows: p.OC, Cols: spatial, Stride: spatial,
			Data: dst[n*p.OC*spatial : (n+1)*p.OC*spatial]}
		blas32.Gemm(blas.NoTrans, blas.Trans, 1, a, b, 0, c)
	}

	if bias == nil && p.Activation == ActivationNone {
		return
	}
	parallelFor(p.N*p.OC, func(i int) {
		row := dst[i*spatial : (i+1)*spatial]
		if bias != nil {
			b := bias[i%p.OC]
			for j := range row {
				row[j] += b
			}
		}
		if p.Activation == ActivationReLU {
			simd.ReLU(row)
		}
	})
}

// parallelFor spreads n independent iterations across the worker pool.
func parallelFor(n int, fn func(i int)) {
	workers := numWorkers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	var next atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= n {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
}
