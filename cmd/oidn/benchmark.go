package main

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wuyize25/oidn/internal/filter"
)

func benchmarkCommand() *cli.Command {
	return &cli.Command{
		Name:  "benchmark",
		Usage: "Measure filter throughput on synthetic images",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Value: 1920, Usage: "Image width (must be even)"},
			&cli.IntFlag{Name: "height", Value: 1080, Usage: "Image height (must be even)"},
			&cli.IntFlag{Name: "iters", Value: 10, Usage: "Timed iterations"},
			&cli.BoolFlag{Name: "hdr", Usage: "Benchmark the HDR pipeline"},
		},
		Action: runBenchmark,
	}
}

func runBenchmark(c *cli.Context) error {
	w, h := c.Int("width"), c.Int("height")
	iters := c.Int("iters")

	rng := rand.New(rand.NewSource(42))
	pix := make([]float32, w*h*3)
	for i := range pix {
		pix[i] = rng.Float32()
	}

	dev, err := newDevice(c)
	if err != nil {
		return err
	}
	defer dev.Release()

	f := filter.New(dev, filter.RandomWeights(42))
	defer f.Release()
	f.SetHDR(c.Bool("hdr"))
	f.SetImage(pix, w, h)
	if err := f.Commit(); err != nil {
		return err
	}

	// Warm-up pass, not timed.
	if err := f.Execute(c.Context); err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < iters; i++ {
		if err := f.Execute(c.Context); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	perIter := elapsed / time.Duration(iters)
	pixelsPerSec := int64(float64(w*h*iters) / elapsed.Seconds())
	p := message.NewPrinter(language.English)
	p.Printf("%d iterations of %dx%d in %v\n", iters, w, h, elapsed.Round(time.Millisecond))
	p.Printf("%v per image, %v pixels/s\n", perIter.Round(time.Microsecond), pixelsPerSec)

	log.Info().
		Int("iters", iters).
		Dur("elapsed", elapsed).
		Int64("pixels_per_sec", pixelsPerSec).
		Msg("Benchmark complete")
	return nil
}
