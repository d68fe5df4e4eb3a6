package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

type evalReport struct {
	Cluster   string               `json:"cluster"`
	Model     string               `json:"model"`
	Chi2      float64              `json:"chi2"`
	NumParams int                  `json:"num_params"`
	FitPoints int                  `json:"fit_points"`
	Params    map[string][]float64 `json:"params"`
	BackCalc  [][][][][]float64    `json:"back_calc"`
	Memory    uint64               `json:"tensor_bytes"`
}

func evalCmd() *cli.Command {
	return &cli.Command{
		Name:      "eval",
		Usage:     "Evaluate chi-squared of every cluster at the given parameters",
		ArgsUsage: "<dataset.json|dataset.yaml>",
		Flags:     withFlags(modelFlags(), paramFlags(), outputFlags(), loggingFlags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)
			applyLoggingConfig(cmd, cfg)
			ctx, err := withLogger(ctx)
			if err != nil {
				return err
			}
			path, err := datasetArg(cmd)
			if err != nil {
				return err
			}
			params, err := parseParams(cmd.StringSlice("param"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			_, clusters, err := loadClusters(ctx, path, params)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			reports, err := evaluateClusters(clusters)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if jsonOutput {
				return writeJSON(os.Stdout, reports)
			}
			writeEvalTable(os.Stdout, reports)
			return nil
		},
	}
}

func evaluateClusters(clusters []cluster) ([]evalReport, error) {
	out := make([]evalReport, len(clusters))
	for i, c := range clusters {
		values, err := c.ev.Layout().Unpack(c.problem.Start)
		if err != nil {
			return nil, err
		}
		x, err := c.ev.Encode(values)
		if err != nil {
			return nil, err
		}
		chi2, err := c.ev.Evaluate(x)
		if err != nil {
			return nil, err
		}
		out[i] = evalReport{
			Cluster:   c.problem.Name,
			Model:     c.problem.Model.String(),
			Chi2:      chi2,
			NumParams: c.ev.NumParams(),
			FitPoints: c.problem.Data.FitPoints(),
			Params:    values,
			BackCalc:  c.ev.BackCalc(),
			Memory:    c.problem.Data.Shape().Memory(),
		}
	}
	return out, nil
}

func writeEvalTable(w io.Writer, reports []evalReport) {
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%-16s %-26s chi2=%-14.6g params=%-4d points=%-5d %s/tensor\n",
			r.Cluster, r.Model, r.Chi2, r.NumParams, r.FitPoints, humanize.Bytes(r.Memory))
	}
}
