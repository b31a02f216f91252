package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/wuyize25/oidn/internal/filter"
	"github.com/wuyize25/oidn/internal/weights"
)

func denoiseCommand() *cli.Command {
	return &cli.Command{
		Name:  "denoise",
		Usage: "Denoise a PFM image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "Input image `FILE` (color PFM)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "Output image `FILE`"},
			&cli.StringFlag{Name: "weights", Aliases: []string{"w"}, Usage: "Weights archive `FILE` (random weights if omitted)"},
			&cli.BoolFlag{Name: "hdr", Usage: "Treat the input as HDR"},
		},
		Action: runDenoise,
	}
}

func runDenoise(c *cli.Context) error {
	pix, w, h, err := readPFM(c.String("input"))
	if err != nil {
		return err
	}

	arch := filter.RandomWeights(0)
	if path := c.String("weights"); path != "" {
		if arch, err = weights.Load(path); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("No weights archive given, using random weights")
	}

	dev, err := newDevice(c)
	if err != nil {
		return err
	}
	defer dev.Release()

	f := filter.New(dev, arch)
	defer f.Release()
	f.SetHDR(c.Bool("hdr"))
	f.SetImage(pix, w, h)
	out := make([]float32, len(pix))
	f.SetOutputImage(out)
	f.SetProgressFunc(func(done float64) bool {
		log.Debug().Float64("progress", done).Msg("Denoising")
		return true
	})
	if err := f.Commit(); err != nil {
		return err
	}

	start := time.Now()
	if err := f.Execute(c.Context); err != nil {
		return err
	}
	log.Info().
		Int("width", w).Int("height", h).
		Dur("elapsed", time.Since(start)).
		Msg("Denoised image")

	return writePFM(c.String("output"), out, w, h)
}
