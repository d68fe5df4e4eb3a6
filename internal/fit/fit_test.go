package fit

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/logger"
)

var testNus = []float64{50, 100, 200, 300, 500, 700, 1000}

func quiet() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

// twoFieldInput is one 15N spin measured at 600 and 800 MHz.
func twoFieldInput() dispersion.Input {
	curve := func() dispersion.Curve {
		n := len(testNus)
		errs := make([]float64, n)
		for i := range errs {
			errs[i] = 0.5
		}
		return dispersion.Curve{RelaxTime: 0.04, Points: testNus, Values: make([]float64, n), Errors: errs}
	}
	return dispersion.Input{
		ExpTypes: []dispersion.ExpType{dispersion.ExpCPMGSQ},
		Fields:   []dispersion.Field{{ProtonHz: 600e6}, {ProtonHz: 800e6}},
		Spins:    []dispersion.Spin{{Name: "N1", Isotope: "15N"}},
		Curves:   [][][][]dispersion.Curve{{{{curve()}, {curve()}}}},
	}
}

// synthetic returns data whose values are the model evaluated at truth.
func synthetic(t *testing.T, model string, truth map[string][]float64) (*dispersion.Data, dispersion.Model) {
	t.Helper()
	d, err := dispersion.Prepare(twoFieldInput())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	ev, err := dispersion.New(d, model)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	x, err := ev.Encode(truth)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ev.BackCalculate(x)
	synth, err := d.WithValues(ev.BackCalcTensor())
	if err != nil {
		t.Fatalf("WithValues: %v", err)
	}
	return synth, ev.Model()
}

var lm63Truth = map[string][]float64{
	"r2":     {12, 14},
	"phi_ex": {0.3},
	"kex":    {1500},
}

func lm63Problem(t *testing.T) Problem {
	t.Helper()
	d, m := synthetic(t, "LM63", lm63Truth)
	return Problem{Name: "res1", Data: d, Model: m, Start: []float64{10, 10, 0.5, 1000}}
}

func TestMinimizeRecoversLM63(t *testing.T) {
	t.Parallel()
	r, err := Minimize(quiet(), lm63Problem(t), Settings{})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if r.Chi2 > 1e-6 {
		t.Fatalf("chi2=%g after %d evaluations (%s)", r.Chi2, r.Evaluations, r.Status)
	}
	for name, want := range lm63Truth {
		for i, w := range want {
			got := r.Params[name][i]
			if math.Abs(got-w) > 0.02*w {
				t.Fatalf("%s[%d]=%g want %g", name, i, got, w)
			}
		}
	}
	if r.Model != "LM63" || r.Name != "res1" || r.Evaluations == 0 {
		t.Fatalf("result metadata %+v", r)
	}
}

func TestMinimizeRecoversCR72(t *testing.T) {
	t.Parallel()
	truth := map[string][]float64{
		"r2":  {8, 9},
		"dw":  {2},
		"pA":  {0.95},
		"kex": {500},
	}
	d, m := synthetic(t, "CR72", truth)
	for name, start := range map[string][]float64{
		"near":    {9, 10, 2.2, 0.93, 600},
		"default": nil,
	} {
		r, err := Minimize(quiet(), Problem{Name: "res2", Data: d, Model: m, Start: start}, Settings{})
		if err != nil {
			t.Fatalf("%s: Minimize: %v", name, err)
		}
		if r.Chi2 > 1e-8 {
			t.Fatalf("%s: chi2=%g after %d evaluations (%s)", name, r.Chi2, r.Evaluations, r.Status)
		}
		for p, want := range truth {
			for i, w := range want {
				if got := r.Params[p][i]; math.Abs(got-w) > 1e-3*w {
					t.Fatalf("%s: %s[%d]=%.9g want %g", name, p, i, got, w)
				}
			}
		}
	}
}

func TestMonteCarloIsReproducible(t *testing.T) {
	t.Parallel()
	p := lm63Problem(t)
	best, err := Minimize(quiet(), p, Settings{})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	var runs []map[string][]float64
	for _, workers := range []int{1, 3} {
		sd, err := MonteCarlo(quiet(), p, best, Settings{Simulations: 6, Seed: 42, SimWorkers: workers})
		if err != nil {
			t.Fatalf("MonteCarlo: %v", err)
		}
		runs = append(runs, sd)
	}
	for name, sd := range runs[0] {
		for i, v := range sd {
			if !(v > 0) || math.IsInf(v, 0) {
				t.Fatalf("%s[%d] error estimate %g", name, i, v)
			}
		}
		if !slices.Equal(sd, runs[1][name]) {
			t.Fatalf("%s: errors depend on worker count: %v vs %v", name, sd, runs[1][name])
		}
	}
	if _, err := MonteCarlo(quiet(), p, best, Settings{Simulations: 1}); err == nil {
		t.Fatal("a single simulation was accepted")
	}
}

func TestClustersKeepOrder(t *testing.T) {
	t.Parallel()
	slow := lm63Problem(t)
	slow.Name = "slow"
	fastTruth := map[string][]float64{"r2": {8, 9}, "phi_ex": {0.2}, "kex": {4000}}
	d, m := synthetic(t, "LM63", fastTruth)
	fast := Problem{Name: "fast", Data: d, Model: m, Start: []float64{10, 10, 0.3, 3000}}

	rs, err := Clusters(quiet(), []Problem{slow, fast}, Settings{Workers: 2, Simulations: 3, Seed: 1})
	if err != nil {
		t.Fatalf("Clusters: %v", err)
	}
	if rs[0].Name != "slow" || rs[1].Name != "fast" {
		t.Fatalf("order lost: %s, %s", rs[0].Name, rs[1].Name)
	}
	if rs[1].Simulations != 3 || rs[1].Errors["kex"] == nil {
		t.Fatalf("Monte-Carlo errors missing: %+v", rs[1])
	}
}

func TestClustersReportsFailingCluster(t *testing.T) {
	t.Parallel()
	good := lm63Problem(t)
	bad := good
	bad.Name = "needs-r1rho"
	m, err := dispersion.Lookup("TP02")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	bad.Model = m
	_, err = Clusters(quiet(), []Problem{good, bad}, Settings{Workers: 2})
	if !errors.Is(err, dispersion.ErrInvalidModel) {
		t.Fatalf("expected ErrInvalidModel, got %v", err)
	}
	if !strings.Contains(err.Error(), "needs-r1rho") {
		t.Fatalf("error does not name the cluster: %v", err)
	}
}

func TestMinimizeHonoursCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(quiet())
	cancel()
	if _, err := Minimize(ctx, lm63Problem(t), Settings{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBounds(t *testing.T) {
	t.Parallel()
	d, err := dispersion.Prepare(twoFieldInput())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	ev, err := dispersion.New(d, "CR72")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b := DefaultBounds(ev.Layout())
	if len(b) != ev.NumParams() {
		t.Fatalf("bounds length %d want %d", len(b), ev.NumParams())
	}
	// r2 ×2, dw, pA, kex
	x := []float64{10, 250, -1, 0.4, 1000}
	if got, want := b.Violation(x), 50+1+0.1; math.Abs(got-want) > 1e-12 {
		t.Fatalf("violation %g want %g", got, want)
	}
	b.Clamp(x)
	if !slices.Equal(x, []float64{10, 200, 0, 0.5, 1000}) {
		t.Fatalf("clamped %v", x)
	}

	start, err := DefaultStart(ev.Layout(), map[string]float64{"kex": 500})
	if err != nil {
		t.Fatalf("DefaultStart: %v", err)
	}
	if !slices.Equal(start, []float64{10, 10, 1, 0.9, 500}) {
		t.Fatalf("start %v", start)
	}
	if b.Violation(start) != 0 {
		t.Fatal("default start is outside the bounds")
	}
}

func TestPenaltyOutsideBounds(t *testing.T) {
	t.Parallel()
	p := lm63Problem(t)
	ev, err := dispersion.NewModel(p.Data, p.Model)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	f := objective(ev, DefaultBounds(ev.Layout()))
	inside := f([]float64{12, 14, 0.3, 1500})
	outside := f([]float64{12, 14, 0.3, -5})
	if inside > 1e-12 || outside < boundPenalty {
		t.Fatalf("inside=%g outside=%g", inside, outside)
	}
}
