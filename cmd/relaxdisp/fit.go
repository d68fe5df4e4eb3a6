package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/fit"
	"github.com/samcharles93/relaxdisp/internal/logger"
	"github.com/urfave/cli/v3"
)

type fitReport struct {
	RunID   string        `json:"run_id"`
	Dataset string        `json:"dataset"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Results []*fit.Result `json:"results"`
}

func fitCmd() *cli.Command {
	return &cli.Command{
		Name:      "fit",
		Usage:     "Fit every cluster of a dataset and optionally estimate errors",
		ArgsUsage: "<dataset.json|dataset.yaml>",
		Flags:     withFlags(modelFlags(), fitFlags(), paramFlags(), outputFlags(), loggingFlags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)
			applyFitConfig(cmd, cfg)
			applyLoggingConfig(cmd, cfg)
			ctx, err := withLogger(ctx)
			if err != nil {
				return err
			}
			path, err := datasetArg(cmd)
			if err != nil {
				return err
			}
			if simulations == 1 || simulations < 0 {
				return cli.Exit("error: --simulations must be 0 or at least 2", 1)
			}
			params, err := parseParams(cmd.StringSlice("param"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			runID := uuid.NewString()
			log := logger.FromContext(ctx).With("run", runID)
			ctx = logger.WithContext(ctx, log)

			f, clusters, err := loadClusters(ctx, path, params)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			problems := make([]fit.Problem, len(clusters))
			for i, c := range clusters {
				problems[i] = c.problem
			}
			settings := fit.Settings{
				MaxEvaluations: maxEvaluations,
				Simulations:    simulations,
				Seed:           uint64(seed),
				Workers:        workers,
			}
			log.Info("fitting dataset", "path", f.Path(), "clusters", len(problems), "workers", workers, "simulations", simulations)

			start := time.Now()
			results, err := fit.Clusters(ctx, problems, settings)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			report := fitReport{RunID: runID, Dataset: f.Path(), Elapsed: time.Since(start), Results: results}
			if jsonOutput {
				return writeJSON(os.Stdout, report)
			}
			layouts := make([]dispersion.Layout, len(clusters))
			for i, c := range clusters {
				layouts[i] = c.ev.Layout()
			}
			writeFitReport(os.Stdout, report, layouts)
			return nil
		},
	}
}

// writeFitReport prints one section per cluster with parameters in layout
// order.
func writeFitReport(w io.Writer, report fitReport, layouts []dispersion.Layout) {
	for i, r := range report.Results {
		_, _ = fmt.Fprintf(w, "%s  %s  chi2=%.6g  evaluations=%d  status=%s  (%s)\n",
			r.Name, r.Model, r.Chi2, r.Evaluations, r.Status, r.Elapsed.Round(time.Millisecond))
		for _, b := range layouts[i].Blocks() {
			values := r.Params[b.Name]
			errs := r.Errors[b.Name]
			parts := make([]string, len(values))
			for k, v := range values {
				if k < len(errs) {
					parts[k] = fmt.Sprintf("%.6g ± %.3g", v, errs[k])
				} else {
					parts[k] = fmt.Sprintf("%.6g", v)
				}
			}
			_, _ = fmt.Fprintf(w, "  %-10s %s\n", b.Name, strings.Join(parts, ", "))
		}
	}
	_, _ = fmt.Fprintf(w, "\nrun %s: %d cluster(s) in %s\n", report.RunID, len(report.Results), report.Elapsed.Round(time.Millisecond))
}
