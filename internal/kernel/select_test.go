package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

func entry(name string, minCap, bm, bn, bk int) Entry {
	return Entry{
		Name:          name,
		DataType:      tensor.Float32,
		MinCapability: minCap,
		BlockM:        bm, BlockN: bn, BlockK: bk,
	}
}

func TestSelectPrefersHigherCapability(t *testing.T) {
	catalog := []Entry{
		entry("scalar", 0, 4, 4, 16),
		entry("avx2", 2, 8, 8, 64),
	}
	p := ConvProblem{M: 100, N: 8, K: 36, DataType: tensor.Float32}

	// The avx2 entry has larger tiles, hence larger padded cost on this
	// small problem, but it still wins on capability.
	got, err := Select(catalog, p, 2)
	require.NoError(t, err)
	assert.Equal(t, "avx2", got.Name)

	// On a scalar device only the scalar entry is eligible.
	got, err = Select(catalog, p, 0)
	require.NoError(t, err)
	assert.Equal(t, "scalar", got.Name)
}

func TestSelectLowestPaddedCost(t *testing.T) {
	catalog := []Entry{
		entry("wide", 2, 8, 8, 64),
		entry("tall", 2, 16, 8, 64),
	}

	// M=8: the tall entry pads M to 16, doubling its cost.
	p := ConvProblem{M: 8, N: 8, K: 64, DataType: tensor.Float32}
	got, err := Select(catalog, p, 3)
	require.NoError(t, err)
	assert.Equal(t, "wide", got.Name)

	// M=16: both pad to the same cost; the tall entry has the larger
	// block volume and takes the tie-break.
	p.M = 16
	got, err = Select(catalog, p, 3)
	require.NoError(t, err)
	assert.Equal(t, "tall", got.Name)
}

func TestSelectOrderIndependent(t *testing.T) {
	a := entry("a", 2, 8, 8, 64)
	b := entry("b", 2, 16, 8, 64)
	p := ConvProblem{M: 16, N: 8, K: 64, DataType: tensor.Float32}

	got1, err := Select([]Entry{a, b}, p, 2)
	require.NoError(t, err)
	got2, err := Select([]Entry{b, a}, p, 2)
	require.NoError(t, err)
	assert.Equal(t, got1.Name, got2.Name)
}

func TestSelectFiltersByDataType(t *testing.T) {
	f16 := entry("half", 0, 8, 8, 32)
	f16.DataType = tensor.Float16
	catalog := []Entry{f16, entry("single", 0, 8, 8, 32)}

	got, err := Select(catalog, ConvProblem{M: 8, N: 8, K: 32, DataType: tensor.Float16}, 3)
	require.NoError(t, err)
	assert.Equal(t, "half", got.Name)
}

func TestSelectNoEligibleEntry(t *testing.T) {
	catalog := []Entry{entry("avx512", 3, 16, 16, 64)}
	p := ConvProblem{M: 64, N: 16, K: 64, DataType: tensor.Float32}

	_, err := Select(catalog, p, 1)
	require.Error(t, err)
	assert.Equal(t, device.CodeUnsupportedHardware, device.CodeOf(err))
}

func TestDefaultCatalogCoversAllTiers(t *testing.T) {
	p := ConvProblem{M: 1024, N: 8, K: 36, DataType: tensor.Float32}
	for c := device.CapabilityScalar; c <= device.CapabilityAVX512; c++ {
		got, err := Select(DefaultCatalog(), p, c)
		require.NoError(t, err, "capability %d", c)
		assert.LessOrEqual(t, got.MinCapability, c)
	}
}
