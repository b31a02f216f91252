package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuyize25/oidn/internal/device"
)

func TestArenaReusesRecycledTensors(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	a := newTensorArena(dev)
	defer a.Release()

	desc := chwDesc(4, 8, 8)
	first, err := a.Get(desc, device.StorageDevice)
	require.NoError(t, err)
	buf := first.Buffer()

	a.Recycle()

	second, err := a.Get(desc, device.StorageDevice)
	require.NoError(t, err)
	assert.Same(t, buf, second.Buffer())
}

func TestArenaKeepsStorageClassesApart(t *testing.T) {
	dev := device.NewCPUDevice()
	defer dev.Release()

	a := newTensorArena(dev)
	defer a.Release()

	desc := chwDesc(4, 8, 8)
	devT, err := a.Get(desc, device.StorageDevice)
	require.NoError(t, err)

	a.Recycle()

	// Same byte size, different storage class: the recycled device
	// buffer must not be handed out for a host request.
	hostT, err := a.Get(desc, device.StorageHost)
	require.NoError(t, err)
	assert.Equal(t, device.StorageHost, hostT.Buffer().Storage())
	assert.NotSame(t, devT.Buffer(), hostT.Buffer())
}
