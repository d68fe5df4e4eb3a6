package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samcharles93/relaxdisp/internal/dataset"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/fit"
	"github.com/samcharles93/relaxdisp/internal/logger"
	"github.com/urfave/cli/v3"
)

// recalcTauSet is true when --recalc-tau or the config file overrides the
// dataset's own setting.
var recalcTauSet bool

func paramFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "param",
			Aliases: []string{"p"},
			Usage:   "parameter value as name=value, applied to every entry of the block (repeatable)",
		},
	}
}

// cluster is one dataset cluster ready for evaluation or fitting.
type cluster struct {
	problem fit.Problem
	ev      *dispersion.Evaluator
}

// loadClusters reads the dataset at path and builds an evaluator for every
// cluster. The start vector of each problem is the model default with the
// --param overrides applied.
func loadClusters(ctx context.Context, path string, params map[string]float64) (*dataset.File, []cluster, error) {
	log := logger.FromContext(ctx)
	f, err := dataset.Load(path)
	if err != nil {
		return nil, nil, err
	}
	prep := f.PrepareOptions()
	if recalcTauSet {
		prep = append(prep, dispersion.WithRecalcTau(recalcTau))
	}
	opts := []dispersion.Option{
		dispersion.WithR1Fit(r1Fit),
		dispersion.WithExpmWorkers(expmWorkers),
	}

	var out []cluster
	for _, c := range f.Clusters() {
		name := c.Model
		if name == "" {
			name = modelName
		}
		if name == "" {
			return nil, nil, fmt.Errorf("cluster %q names no model; pass --model", c.Name)
		}
		m, err := dispersion.Lookup(name)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster %q: %w", c.Name, err)
		}
		d, err := dispersion.Prepare(c.Input, prep...)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster %q: %w", c.Name, err)
		}
		ev, err := dispersion.NewModel(d, m, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster %q: %w", c.Name, err)
		}
		start, err := fit.DefaultStart(ev.Layout(), params)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster %q: %w", c.Name, err)
		}
		log.Debug("cluster prepared",
			"cluster", c.Name,
			"model", m.String(),
			"shape", d.Shape().String(),
			"points", d.FitPoints(),
			"params", ev.NumParams(),
			"tensor_memory", humanize.Bytes(d.Shape().Memory()),
		)
		out = append(out, cluster{
			problem: fit.Problem{Name: c.Name, Data: d, Model: m, Options: opts, Start: start},
			ev:      ev,
		})
	}
	return f, out, nil
}

// parseParams turns name=value pairs into a map.
func parseParams(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q (want name=value)", p)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %q: %w", p, err)
		}
		out[name] = v
	}
	return out, nil
}

// datasetArg returns the single positional dataset path.
func datasetArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", cli.Exit("error: expected exactly one dataset path", 1)
	}
	return cmd.Args().First(), nil
}
