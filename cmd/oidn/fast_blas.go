//go:build cgo

package main

// Included only when cgo is enabled: registers the netlib BLAS
// implementation (Accelerate on macOS, OpenBLAS on Linux) for the GEMM
// convolution kernels.

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/netlib/blas/netlib"
)

func init() {
	blas32.Use(netlib.Implementation{})
	log.Debug().Msg("CGO/BLAS acceleration enabled (netlib)")
}
