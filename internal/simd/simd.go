package simd

// ExpFast is a fast approximation of exp(x)
// Uses the identity exp(x) = 2^(x/ln2) and a polynomial approximation
func ExpFast(x float64) float64 {
	// Clamp to avoid overflow
	if x > 88 {
		return 1e38
	}
	if x < -88 {
		return 0
	}

	// exp(x) = 2^(x * log2(e))
	// log2(e) ≈ 1.4426950408889634
	const log2e = 1.4426950408889634

	t := x * log2e
	k := int(t)
	if t < 0 {
		k--
	}

	// Fractional part in [0, 1)
	f := t - float64(k)

	// Polynomial approximation for 2^f where f in [0, 1)
	p := 1.0 + f*(0.6931471805599453+f*(0.24022650695910072+f*0.05550410866482157))

	// Multiply by 2^k using bit manipulation
	if k >= 0 && k < 1024 {
		return p * float64(uint64(1)<<k)
	}
	if k < 0 && k > -1024 {
		return p / float64(uint64(1)<<(-k))
	}
	return p
}

// LogFast is a fast approximation of the natural logarithm for positive x
func LogFast(x float64) float64 {
	if x <= 0 {
		return -708 // ln of the smallest normal float64, saturation value
	}

	// Decompose x = m * 2^e with m in [1, 2)
	e := 0
	for x >= 2 {
		x *= 0.5
		e++
	}
	for x < 1 {
		x *= 2
		e--
	}

	// ln(m) via atanh identity: ln(m) = 2*atanh((m-1)/(m+1)),
	// truncated series over s = (m-1)/(m+1)
	s := (x - 1) / (x + 1)
	s2 := s * s
	lnm := 2 * s * (1 + s2*(1.0/3+s2*(1.0/5+s2/7)))

	// ln(2) ≈ 0.6931471805599453
	return lnm + float64(e)*0.6931471805599453
}

// VecAdd performs dst += src for float32 vectors
func VecAdd(dst, src []float32) {
	// Unrolled loop for better pipelining
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i]
		dst[i+1] += src[i+1]
		dst[i+2] += src[i+2]
		dst[i+3] += src[i+3]
	}
	// Handle remainder
	for ; i < len(dst); i++ {
		dst[i] += src[i]
	}
}

// VecScale performs dst *= scale for float32 vectors
func VecScale(dst []float32, scale float32) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] *= scale
		dst[i+1] *= scale
		dst[i+2] *= scale
		dst[i+3] *= scale
	}
	for ; i < len(dst); i++ {
		dst[i] *= scale
	}
}

// ReLU applies max(0, x) in-place
func ReLU(dst []float32) {
	for i, v := range dst {
		if v < 0 {
			dst[i] = 0
		}
	}
}
