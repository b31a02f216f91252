//go:build !cuda

package device

// NewCUDADevice reports UnsupportedHardware on builds without the cuda
// tag. The real backend lives in cuda_linux.go and needs the
// liboidn_cuda bridge library on the link path.
func NewCUDADevice() (Device, error) {
	return nil, Errorf(CodeUnsupportedHardware,
		"CUDA backend not compiled in, build with -tags cuda on Linux")
}
