package fit

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/relaxdisp/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Run minimises p and, when s.Simulations is set, attaches Monte-Carlo
// errors.
func Run(ctx context.Context, p Problem, s Settings) (*Result, error) {
	start := time.Now()
	r, err := Minimize(ctx, p, s)
	if err != nil {
		return nil, err
	}
	if s.Simulations > 0 {
		r.Errors, err = MonteCarlo(ctx, p, r, s)
		if err != nil {
			return nil, err
		}
		r.Simulations = s.Simulations
	}
	r.Elapsed = time.Since(start)
	return r, nil
}

// Clusters fits every problem with at most s.Workers fits in flight. Each
// fit owns its evaluators; the prepared data is shared read-only. Results
// are returned in input order. The first failure cancels the rest.
func Clusters(ctx context.Context, problems []Problem, s Settings) ([]*Result, error) {
	s = s.withDefaults()
	log := logger.FromContext(ctx)
	out := make([]*Result, len(problems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for i, p := range problems {
		g.Go(func() error {
			r, err := Run(gctx, p, s)
			if err != nil {
				return fmt.Errorf("cluster %q: %w", p.Name, err)
			}
			log.Info("cluster fitted",
				"cluster", p.Name,
				"model", r.Model,
				"chi2", r.Chi2,
				"evaluations", r.Evaluations,
				"elapsed", r.Elapsed,
			)
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
