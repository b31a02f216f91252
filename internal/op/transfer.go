package op

import "math"

// hdrMax is the largest input value the HDR transfer curve normalizes
// against (half-float max, matching the network's training range).
const hdrMax = 65504.0

// transferFunc maps image values into the [0, 1] range the network was
// trained on. HDR inputs go through a normalized log curve; LDR inputs
// are clamped only.
type transferFunc struct {
	hdr  bool
	norm float32
}

func newTransferFunc(hdr bool) transferFunc {
	return transferFunc{hdr: hdr, norm: float32(1 / math.Log1p(hdrMax))}
}

func (t transferFunc) forward(x float32) float32 {
	if !t.hdr {
		return clamp01(x)
	}
	if x < 0 {
		x = 0
	} else if x > hdrMax {
		x = hdrMax
	}
	return float32(math.Log1p(float64(x))) * t.norm
}

func (t transferFunc) inverse(y float32) float32 {
	if !t.hdr {
		return clamp01(y)
	}
	if y < 0 {
		y = 0
	}
	return float32(math.Expm1(float64(y / t.norm)))
}

func clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
