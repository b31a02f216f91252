//go:build ignore

package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"sort"

	"github.com/wuyize25/oidn/internal/weights"
)

// TensorDump summarizes one archive tensor for verification
type TensorDump struct {
	Name     string    `json:"name"`
	Dims     []int     `json:"dims"`
	FirstFew []float32 `json:"first_few"`
	LastFew  []float32 `json:"last_few"`
	Sum      float32   `json:"sum"`
}

func main() {
	archivePath := flag.String("weights", "weights.bin", "Path to weights archive")
	flag.Parse()

	arch, err := weights.Load(*archivePath)
	if err != nil {
		log.Fatalf("Failed to load archive: %v", err)
	}

	names := make([]string, 0, len(arch.Tensors))
	for name := range arch.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	dumps := make([]TensorDump, 0, len(names))
	for _, name := range names {
		desc, err := arch.Desc(name)
		if err != nil {
			log.Fatalf("Bad tensor %s: %v", name, err)
		}
		data, err := arch.Floats(name)
		if err != nil {
			log.Fatalf("Failed to decode %s: %v", name, err)
		}
		var sum float32
		for _, v := range data {
			sum += v
		}
		d := TensorDump{
			Name: name,
			Dims: desc.Dims,
			Sum:  sum,
		}
		if len(data) > 5 {
			d.FirstFew = data[:5]
			d.LastFew = data[len(data)-5:]
		} else {
			d.FirstFew = data
		}
		dumps = append(dumps, d)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dumps); err != nil {
		log.Fatalf("Failed to encode dump: %v", err)
	}
}
