package op

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

func hwc(dims ...int) tensor.Desc {
	return tensor.Desc{Dims: dims, Layout: tensor.HWC, DataType: tensor.Float32}
}

func TestInputProcessPadsChannels(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	ip, err := NewInputProcess(dev, InputProcessDesc{
		Src: hwc(2, 2, 3),
		Dst: chw(4, 2, 2),
	})
	require.NoError(t, err)

	src := makeTensor(t, dev, hwc(2, 2, 3), []float32{
		0.1, 0.2, 0.3, 0.4, 0.5, 0.6,
		0.7, 0.8, 0.9, 1.5, -0.5, 0.0,
	})
	dst := makeTensor(t, dev, chw(4, 2, 2), nil)
	ip.SetSrc(src)
	ip.SetDst(dst)
	require.NoError(t, ip.Finalize())
	require.NoError(t, ip.Run())
	require.NoError(t, dev.Wait())

	out := dst.Floats()
	// HWC to planar CHW, LDR values clamped to [0, 1].
	assert.Equal(t, []float32{0.1, 0.4, 0.7, 1}, out[0:4], "red plane")
	assert.Equal(t, []float32{0.2, 0.5, 0.8, 0}, out[4:8], "green plane")
	assert.Equal(t, []float32{0.3, 0.6, 0.9, 0}, out[8:12], "blue plane")
	assert.Equal(t, []float32{0, 0, 0, 0}, out[12:16], "padding plane")
}

func TestInputProcessRejectsNarrowDst(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	_, err := NewInputProcess(dev, InputProcessDesc{
		Src: hwc(2, 2, 3),
		Dst: chw(2, 2, 2),
	})
	assert.Equal(t, device.CodeInvalidArgument, device.CodeOf(err))
}

func roundTrip(t *testing.T, hdr bool, scale float32, pix []float32) []float32 {
	t.Helper()
	dev := device.NewCPUDevice()
	defer dev.Release()

	img := hwc(2, 2, 3)
	net := chw(3, 2, 2)

	ip, err := NewInputProcess(dev, InputProcessDesc{Src: img, Dst: net, HDR: hdr})
	require.NoError(t, err)
	outp, err := NewOutputProcess(dev, OutputProcessDesc{Src: net, Dst: img, HDR: hdr})
	require.NoError(t, err)
	ip.SetInputScale(scale)
	outp.SetInputScale(scale)

	src := makeTensor(t, dev, img, pix)
	mid := makeTensor(t, dev, net, nil)
	out := makeTensor(t, dev, img, nil)
	ip.SetSrc(src)
	ip.SetDst(mid)
	outp.SetSrc(mid)
	outp.SetDst(out)
	require.NoError(t, ip.Finalize())
	require.NoError(t, outp.Finalize())
	require.NoError(t, ip.Run())
	require.NoError(t, outp.Run())
	require.NoError(t, dev.Wait())
	return out.Floats()
}

func TestProcessRoundTripLDR(t *testing.T) {
	pix := []float32{0, 0.25, 0.5, 0.75, 1, 0.1, 0.9, 0.33, 0.66, 0.2, 0.4, 0.8}
	got := roundTrip(t, false, 1, pix)
	for i := range pix {
		assert.InDelta(t, pix[i], got[i], 1e-6, "element %d", i)
	}
}

func TestProcessRoundTripHDR(t *testing.T) {
	pix := []float32{0, 0.5, 2, 10, 100, 1000, 5000, 0.01, 3, 7, 42, 250}
	got := roundTrip(t, true, 0.25, pix)
	for i := range pix {
		// Relative tolerance: the log curve loses precision at the top.
		tol := 1e-3 * float64(pix[i])
		if tol < 1e-4 {
			tol = 1e-4
		}
		assert.InDelta(t, pix[i], got[i], tol, "element %d", i)
	}
}

func TestTransferFuncHDRBounds(t *testing.T) {
	tf := newTransferFunc(true)
	assert.Equal(t, float32(0), tf.forward(-5))
	assert.InDelta(t, 1, tf.forward(hdrMax), 1e-6)
	assert.InDelta(t, 1, tf.forward(hdrMax*10), 1e-6)
	assert.Equal(t, float32(0), tf.inverse(-1))
}

func TestAutoexposureUniformImage(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	// A uniform mid-gray image: scale must bring it to the key value.
	const h, w = 33, 47
	pix := make([]float32, h*w*3)
	for i := range pix {
		pix[i] = 0.5
	}
	desc := hwc(h, w, 3)
	ae, err := NewAutoexposure(dev, AutoexposureDesc{Src: desc})
	require.NoError(t, err)

	src := makeTensor(t, dev, desc, pix)
	dst := makeTensor(t, dev, ae.OutputDesc(), nil)
	ae.SetSrc(src)
	ae.SetDst(dst)
	require.NoError(t, ae.Finalize())
	require.NoError(t, ae.Run())
	require.NoError(t, dev.Wait())

	got := dst.Floats()[0]
	want := float32(0.18 / 0.5)
	assert.InDelta(t, want, got, float64(want)*0.02)
}

func TestAutoexposureScalesInversely(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	rng := rand.New(rand.NewSource(3))
	const h, w = 32, 32
	pix := make([]float32, h*w*3)
	for i := range pix {
		pix[i] = rng.Float32() * 4
	}
	desc := hwc(h, w, 3)

	run := func(img []float32) float32 {
		ae, err := NewAutoexposure(dev, AutoexposureDesc{Src: desc})
		require.NoError(t, err)
		src := makeTensor(t, dev, desc, img)
		dst := makeTensor(t, dev, ae.OutputDesc(), nil)
		ae.SetSrc(src)
		ae.SetDst(dst)
		require.NoError(t, ae.Finalize())
		require.NoError(t, ae.Run())
		require.NoError(t, dev.Wait())
		return dst.Floats()[0]
	}

	base := run(pix)
	brighter := make([]float32, len(pix))
	for i, v := range pix {
		brighter[i] = v * 8
	}
	// Scaling the exposure by 8 must divide the result by 8, the
	// log-average being multiplicative.
	assert.InDelta(t, base/8, run(brighter), float64(base)*0.02)
}

func TestAutoexposureBlackImage(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	desc := hwc(8, 8, 3)
	ae, err := NewAutoexposure(dev, AutoexposureDesc{Src: desc})
	require.NoError(t, err)
	ae.SetSrc(makeTensor(t, dev, desc, nil))
	dst := makeTensor(t, dev, ae.OutputDesc(), nil)
	ae.SetDst(dst)
	require.NoError(t, ae.Finalize())
	require.NoError(t, ae.Run())
	require.NoError(t, dev.Wait())

	// No bin clears the luminance floor: the scale defaults to 1.
	assert.Equal(t, float32(1), dst.Floats()[0])
}
