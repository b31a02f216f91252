package kernel

import (
	"sync"

	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

var (
	catalogOnce sync.Once
	catalog     []Entry
)

// DefaultCatalog returns the process-wide kernel table, built once at
// first use. CPU variants are keyed to SIMD capability tiers; wider
// tiers carry larger tile shapes. Two AVX2 variants with different tile
// aspect ratios let the cost model pick by problem shape.
func DefaultCatalog() []Entry {
	catalogOnce.Do(func() {
		catalog = []Entry{
			gemmEntry("gemm_f32_4x4x16", device.CapabilityScalar, 4, 4, 16),
			gemmEntry("gemm_f32_8x8x32", device.CapabilitySSE42, 8, 8, 32),
			gemmEntry("gemm_f32_8x8x64", device.CapabilityAVX2, 8, 8, 64),
			gemmEntry("gemm_f32_16x8x64", device.CapabilityAVX2, 16, 8, 64),
			gemmEntry("gemm_f32_16x16x64", device.CapabilityAVX512, 16, 16, 64),
		}
	})
	return catalog
}

func gemmEntry(name string, minCap, bm, bn, bk int) Entry {
	return Entry{
		Name:          name,
		DataType:      tensor.Float32,
		MinCapability: minCap,
		BlockM:        bm,
		BlockN:        bn,
		BlockK:        bk,
		Factory: func(dev device.Device, p ConvParams) (Conv, error) {
			return newGemmConv(dev, p, name, bm, bn, bk)
		},
	}
}
