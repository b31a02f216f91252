package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/wuyize25/oidn/internal/config"
	"github.com/wuyize25/oidn/internal/device"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	app := &cli.App{
		Name:  "oidn",
		Usage: "Image denoising on the tensor execution core",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"OIDN_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "otel",
				Usage: "Enable OpenTelemetry tracing (stdout)",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("otel") {
				shutdown, err := initTracer()
				if err != nil {
					return err
				}
				c.App.After = func(*cli.Context) error {
					return shutdown(context.Background())
				}
			}
			return nil
		},
		Commands: []*cli.Command{
			denoiseCommand(),
			benchmarkCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// newDevice builds the device described by the config file, or a default
// CPU device when no config is given.
func newDevice(c *cli.Context) (device.Device, error) {
	path := c.String("config")
	if path == "" {
		return device.NewCPUDevice(), nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if v := cfg.Logger.Verbosity; v != "" {
		level, err := zerolog.ParseLevel(v)
		if err != nil {
			return nil, err
		}
		zerolog.SetGlobalLevel(level)
	}
	switch cfg.Device.Type {
	case "", "cpu":
		var opts []device.CPUOption
		if cfg.Device.Threads > 0 {
			opts = append(opts, device.WithWorkers(cfg.Device.Threads))
		}
		if max := cfg.MaxMemoryBytes(); max > 0 {
			opts = append(opts, device.WithMaxMemory(max))
		}
		return device.NewCPUDevice(opts...), nil
	case "cuda":
		return device.NewCUDADevice()
	default:
		return nil, device.Errorf(device.CodeInvalidArgument, "unknown device type %q", cfg.Device.Type)
	}
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("oidn"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
