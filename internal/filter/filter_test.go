package filter

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuyize25/oidn/internal/device"
)

func grayImage(w, h int, v float32) []float32 {
	pix := make([]float32, w*h*3)
	for i := range pix {
		pix[i] = v
	}
	return pix
}

func TestFilterEndToEnd(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	const w, h = 16, 12
	f := New(dev, RandomWeights(1))
	defer f.Release()

	f.SetImage(grayImage(w, h, 0.5), w, h)
	out := make([]float32, w*h*3)
	f.SetOutputImage(out)
	require.NoError(t, f.Commit())
	require.NoError(t, f.Execute(context.Background()))
	assert.NoError(t, dev.Error())

	finite := false
	for _, v := range out {
		require.False(t, math.IsNaN(float64(v)), "output contains NaN")
		if v != 0 {
			finite = true
		}
	}
	assert.True(t, finite, "output is all zero")
}

func TestFilterHDR(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	const w, h = 16, 16
	f := New(dev, RandomWeights(2))
	defer f.Release()
	f.SetHDR(true)

	f.SetImage(grayImage(w, h, 4), w, h)
	out := make([]float32, w*h*3)
	f.SetOutputImage(out)
	require.NoError(t, f.Commit())
	require.NoError(t, f.Execute(context.Background()))
	for _, v := range out {
		require.False(t, math.IsNaN(float64(v)))
	}
}

func TestFilterProgressAndCancel(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	const w, h = 8, 8
	f := New(dev, RandomWeights(3))
	defer f.Release()

	var reports []float64
	f.SetProgressFunc(func(done float64) bool {
		reports = append(reports, done)
		return true
	})
	f.SetImage(grayImage(w, h, 0.5), w, h)
	require.NoError(t, f.Commit())
	require.NoError(t, f.Execute(context.Background()))

	require.NotEmpty(t, reports)
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i], reports[i-1])
	}
	assert.Equal(t, 1.0, reports[len(reports)-1])

	// A refusing callback cancels the run. Execute drains the stages
	// already enqueued before returning, so the filter's buffers are
	// free to reuse immediately.
	calls := 0
	f.SetProgressFunc(func(done float64) bool {
		calls++
		return calls <= 3
	})
	err := f.Execute(context.Background())
	assert.Equal(t, device.CodeCancelled, device.CodeOf(err))

	f.SetProgressFunc(nil)
	require.NoError(t, f.Execute(context.Background()))
}

func TestFilterContextCancel(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	const w, h = 8, 8
	f := New(dev, RandomWeights(4))
	defer f.Release()
	f.SetImage(grayImage(w, h, 0.5), w, h)
	require.NoError(t, f.Commit())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.Execute(ctx)
	assert.Equal(t, device.CodeCancelled, device.CodeOf(err))

	// The device stays usable after a cancelled run.
	require.NoError(t, f.Execute(context.Background()))
}

func TestFilterRequiresCommit(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	f := New(dev, RandomWeights(5))
	defer f.Release()
	err := f.Execute(context.Background())
	assert.Equal(t, device.CodeInvalidOperation, device.CodeOf(err))
}

func TestFilterRejectsOddExtent(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	f := New(dev, RandomWeights(6))
	defer f.Release()
	f.SetImage(grayImage(7, 6, 0.5), 7, 6)
	err := f.Commit()
	assert.Equal(t, device.CodeInvalidArgument, device.CodeOf(err))
}

func TestFilterRecommitReusesBuffers(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	const w, h = 8, 8
	f := New(dev, RandomWeights(7))
	defer f.Release()
	f.SetImage(grayImage(w, h, 0.5), w, h)
	require.NoError(t, f.Commit())
	allocated := dev.AllocatedBytes()

	// Committing again at the same shape must not grow the footprint.
	f.SetImage(grayImage(w, h, 0.25), w, h)
	require.NoError(t, f.Commit())
	assert.Equal(t, allocated, dev.AllocatedBytes())

	require.NoError(t, f.Execute(context.Background()))
}

func TestRandomWeightsTopology(t *testing.T) {
	arch := RandomWeights(9)
	for _, name := range []string{
		"conv1.weight", "conv1.bias",
		"conv2.weight", "conv2.bias",
		"conv3.weight", "conv3.bias",
	} {
		_, err := arch.Desc(name)
		require.NoError(t, err, name)
	}
	d, err := arch.Desc("conv3.weight")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 8, 3, 3}, d.Dims)
}
