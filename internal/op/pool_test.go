package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuyize25/oidn/internal/device"
)

func TestPool(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	// 1 channel, 4x4 input laid out so each 2x2 window has a distinct max.
	src := []float32{
		1, 2, 0, 3,
		4, 0, 1, 1,
		0, 5, 2, 2,
		1, 1, 0, 9,
	}
	p, err := NewPool(dev, PoolDesc{Src: chw(1, 4, 4)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, p.OutputDesc().Dims)

	in := makeTensor(t, dev, chw(1, 4, 4), src)
	out := makeTensor(t, dev, p.OutputDesc(), nil)
	p.SetSrc(in)
	p.SetDst(out)
	require.NoError(t, p.Finalize())
	require.NoError(t, p.Run())
	require.NoError(t, dev.Wait())

	assert.Equal(t, []float32{4, 3, 5, 9}, out.Floats())
}

func TestPoolOddExtentRejected(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	_, err := NewPool(dev, PoolDesc{Src: chw(1, 3, 4)})
	assert.Equal(t, device.CodeInvalidArgument, device.CodeOf(err))
}

func TestPoolBatched(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	p, err := NewPool(dev, PoolDesc{Src: chw(2, 1, 2, 2)})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1, 1}, p.OutputDesc().Dims)

	in := makeTensor(t, dev, chw(2, 1, 2, 2), []float32{1, 2, 3, 4, -1, -2, -3, -4})
	out := makeTensor(t, dev, p.OutputDesc(), nil)
	p.SetSrc(in)
	p.SetDst(out)
	require.NoError(t, p.Finalize())
	require.NoError(t, p.Run())
	require.NoError(t, dev.Wait())

	assert.Equal(t, []float32{4, -1}, out.Floats())
}

func TestUpsample(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	u, err := NewUpsample(dev, UpsampleDesc{Src: chw(1, 2, 2)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 4}, u.OutputDesc().Dims)

	in := makeTensor(t, dev, chw(1, 2, 2), []float32{1, 2, 3, 4})
	out := makeTensor(t, dev, u.OutputDesc(), nil)
	u.SetSrc(in)
	u.SetDst(out)
	require.NoError(t, u.Finalize())
	require.NoError(t, u.Run())
	require.NoError(t, dev.Wait())

	assert.Equal(t, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, out.Floats())
}

func TestUpsampleInvertsPoolShape(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	p, err := NewPool(dev, PoolDesc{Src: chw(3, 8, 6)})
	require.NoError(t, err)
	u, err := NewUpsample(dev, UpsampleDesc{Src: p.OutputDesc()})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 8, 6}, u.OutputDesc().Dims)
}

func TestImageCopy(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	desc := hwc(2, 2, 3)
	src := makeTensor(t, dev, desc, []float32{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	})
	dst := makeTensor(t, dev, desc, nil)

	ic := NewImageCopy(dev)
	ic.SetSrc(src)
	ic.SetDst(dst)
	require.NoError(t, ic.Finalize())
	require.NoError(t, ic.Run())
	require.NoError(t, dev.Wait())

	assert.Equal(t, src.Floats(), dst.Floats())
}

func TestImageCopyShapeMismatch(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	ic := NewImageCopy(dev)
	ic.SetSrc(makeTensor(t, dev, hwc(2, 2, 3), nil))
	ic.SetDst(makeTensor(t, dev, hwc(2, 4, 3), nil))
	err := ic.Finalize()
	assert.Equal(t, device.CodeInvalidArgument, device.CodeOf(err))
}
