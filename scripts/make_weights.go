//go:build ignore

package main

import (
	"flag"
	"log"

	"github.com/wuyize25/oidn/internal/filter"
)

func main() {
	out := flag.String("out", "weights.bin", "Output archive path")
	seed := flag.Int64("seed", 42, "RNG seed")
	flag.Parse()

	arch := filter.RandomWeights(*seed)
	if err := arch.Save(*out); err != nil {
		log.Fatalf("Failed to save archive: %v", err)
	}
	log.Printf("Wrote %d tensors to %s", len(arch.Tensors), *out)
}
