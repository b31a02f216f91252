package filter

import (
	"math"
	"math/rand"

	"github.com/wuyize25/oidn/internal/tensor"
	"github.com/wuyize25/oidn/internal/weights"
)

// RandomWeights builds an archive for the filter topology with
// He-initialized weights and zero biases. Useful for benchmarks and
// tests where trained weights are not needed.
func RandomWeights(seed int64) *weights.Archive {
	rng := rand.New(rand.NewSource(seed))
	arch := weights.NewArchive()
	addConv(arch, rng, "conv1", alignedC, encC)
	addConv(arch, rng, "conv2", encC, encC)
	addConv(arch, rng, "conv3", encC, 3)
	return arch
}

func addConv(arch *weights.Archive, rng *rand.Rand, name string, ic, oc int) {
	fanIn := ic * 3 * 3
	std := math.Sqrt(2 / float64(fanIn))
	w := make([]float32, oc*fanIn)
	for i := range w {
		w[i] = float32(rng.NormFloat64() * std)
	}
	wDesc := tensor.Desc{Dims: []int{oc, ic, 3, 3}, Layout: tensor.OIHW, DataType: tensor.Float32}
	bDesc := tensor.Desc{Dims: []int{oc}, Layout: tensor.X, DataType: tensor.Float32}
	// shapes are statically valid here
	_ = arch.Add(name+".weight", wDesc, w)
	_ = arch.Add(name+".bias", bDesc, make([]float32, oc))
}
