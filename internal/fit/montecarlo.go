package fit

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/logger"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MonteCarlo estimates parameter errors around a fitted result. Each
// simulation adds Gaussian noise, scaled by the measurement errors, to the
// back-calculated values at best.X and refits from best. The returned map
// holds the standard deviation of every parameter over the simulations.
func MonteCarlo(ctx context.Context, p Problem, best *Result, s Settings) (map[string][]float64, error) {
	s = s.withDefaults()
	if s.Simulations < 2 {
		return nil, fmt.Errorf("monte carlo needs at least 2 simulations, got %d", s.Simulations)
	}
	ev, err := dispersion.NewModel(p.Data, p.Model, p.Options...)
	if err != nil {
		return nil, err
	}
	ev.BackCalculate(best.X)
	back := ev.BackCalcTensor()
	sigma := p.Data.Errors()
	start := ev.Physical(best.X)

	log := logger.FromContext(ctx).With("cluster", p.Name, "model", p.Model.String())
	sims := make([][]float64, s.Simulations)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.SimWorkers)
	for i := range sims {
		g.Go(func() error {
			noise := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(s.Seed, uint64(i))}
			values := back.Clone()
			for k, sd := range sigma.Data {
				if sd > 0 && !math.IsInf(sd, 0) {
					values.Data[k] += sd * noise.Rand()
				}
			}
			simData, err := p.Data.WithValues(values)
			if err != nil {
				return err
			}
			sim := p
			sim.Data = simData
			sim.Start = start
			r, err := Minimize(gctx, sim, s)
			if err != nil {
				return fmt.Errorf("simulation %d: %w", i, err)
			}
			phys := ev.Physical(r.X)
			if floats.HasNaN(phys) {
				log.Warn("discarding simulation with NaN parameters", "simulation", i)
				return nil
			}
			sims[i] = phys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sims = slices.DeleteFunc(sims, func(x []float64) bool { return x == nil })
	if len(sims) < 2 {
		return nil, fmt.Errorf("only %d of %d simulations converged to finite parameters", len(sims), s.Simulations)
	}
	sd := make([]float64, len(start))
	col := make([]float64, len(sims))
	for j := range sd {
		for k, x := range sims {
			col[k] = x[j]
		}
		sd[j] = stat.StdDev(col, nil)
	}
	log.Info("monte carlo complete", "simulations", len(sims))
	return ev.Layout().Unpack(sd)
}
