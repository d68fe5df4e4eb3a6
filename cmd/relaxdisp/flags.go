package main

import (
	"context"
	"os"
	"runtime"

	"github.com/samcharles93/relaxdisp/internal/logger"
	"github.com/urfave/cli/v3"
)

var (
	modelName      string
	r1Fit          bool
	recalcTau      bool
	expmWorkers    int
	workers        int
	maxEvaluations int
	simulations    int
	seed           int64
	jsonOutput     bool
	logLevel       string
	logFormat      string
	debug          bool
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "dispersion model used for clusters that do not name one",
			Destination: &modelName,
		},
		&cli.BoolFlag{
			Name:        "r1-fit",
			Usage:       "fit R1 per field instead of reading it from the dataset",
			Destination: &r1Fit,
		},
		&cli.BoolFlag{
			Name:        "recalc-tau",
			Usage:       "recompute the CPMG delay from the integer pulse count",
			Value:       true,
			Destination: &recalcTau,
		},
		&cli.IntFlag{
			Name:        "expm-workers",
			Usage:       "goroutines used for matrix exponentials in numeric models",
			Value:       1,
			Destination: &expmWorkers,
		},
	}
}

func fitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "workers",
			Aliases:     []string{"j"},
			Usage:       "clusters fitted at once",
			Value:       runtime.GOMAXPROCS(0),
			Destination: &workers,
		},
		&cli.IntFlag{
			Name:        "max-evals",
			Usage:       "target function evaluations per minimisation",
			Value:       20000,
			Destination: &maxEvaluations,
		},
		&cli.IntFlag{
			Name:        "simulations",
			Aliases:     []string{"mc"},
			Usage:       "Monte-Carlo simulations for error estimation (0 disables)",
			Destination: &simulations,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "Monte-Carlo noise seed",
			Value:       1,
			Destination: &seed,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print results as JSON",
			Destination: &jsonOutput,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text); pretty on a terminal by default",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// withLogger builds the logger selected by the logging flags and stores it
// in ctx.
func withLogger(ctx context.Context) (context.Context, error) {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	format := logger.FormatText
	if stderrIsTTY() {
		format = logger.FormatPretty
	}
	if logFormat != "" {
		f, err := logger.ParseFormat(logFormat)
		if err != nil {
			return ctx, cli.Exit(err.Error(), 1)
		}
		format = f
	}
	log, err := logger.NewFormat(os.Stderr, format, level)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
