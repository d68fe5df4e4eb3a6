package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/samcharles93/relaxdisp/internal/api"
	"github.com/samcharles93/relaxdisp/internal/fit"
	"github.com/samcharles93/relaxdisp/internal/logger"
	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxJobs     int
		rateLimit   float64
		burst       int
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the evaluation and fitting REST API",
		Flags: withFlags(
			[]cli.Flag{
				&cli.StringFlag{
					Name:        "addr",
					Usage:       "listen address",
					Value:       "127.0.0.1:8080",
					Destination: &addr,
				},
				&cli.DurationFlag{
					Name:        "read-timeout",
					Usage:       "read header timeout",
					Value:       30 * time.Second,
					Destination: &readTimeout,
				},
				&cli.IntFlag{
					Name:        "max-jobs",
					Usage:       "fits running at once; further fits wait queued",
					Value:       2,
					Destination: &maxJobs,
				},
				&cli.FloatFlag{
					Name:        "rate-limit",
					Usage:       "evaluate and fit requests per second (0 disables)",
					Destination: &rateLimit,
				},
				&cli.IntFlag{
					Name:        "burst",
					Usage:       "requests allowed above the rate limit at once",
					Value:       10,
					Destination: &burst,
				},
				&cli.IntFlag{
					Name:        "expm-workers",
					Usage:       "goroutines used for matrix exponentials in numeric models",
					Value:       1,
					Destination: &expmWorkers,
				},
			},
			fitFlags(), loggingFlags(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			if cfg.ExpmWorkers != nil && !cmd.IsSet("expm-workers") {
				expmWorkers = *cfg.ExpmWorkers
			}
			applyFitConfig(cmd, cfg)
			applyLoggingConfig(cmd, cfg)
			applyServeConfig(cmd, cfg, &addr, &maxJobs, &rateLimit)
			ctx, err := withLogger(ctx)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)

			server := api.NewServer(api.NewFitStore(), api.Config{
				Fit: fit.Settings{
					MaxEvaluations: maxEvaluations,
					Simulations:    simulations,
					Seed:           uint64(seed),
					Workers:        workers,
				},
				MaxJobs:     maxJobs,
				ExpmWorkers: expmWorkers,
				RateLimit:   rateLimit,
				Burst:       burst,
			}, log)
			defer server.Shutdown()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "max_jobs", maxJobs, "rate_limit", rateLimit)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
