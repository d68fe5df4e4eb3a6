package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/samcharles93/relaxdisp/internal/dataset"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/fit"
	"github.com/samcharles93/relaxdisp/internal/logger"
	"github.com/urfave/cli/v3"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", `
model: CR72
recalc_tau: false
max_evaluations: 500
simulations: 50
seed: 7
log_format: json
server_address: 0.0.0.0:9000
rate_limit: 2.5
`)
	cfg := readConfig(path)
	if cfg.Model != "CR72" || cfg.LogFormat != "json" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RecalcTau == nil || *cfg.RecalcTau {
		t.Fatalf("recalc_tau not read: %v", cfg.RecalcTau)
	}
	if cfg.MaxEvaluations == nil || *cfg.MaxEvaluations != 500 || cfg.Seed == nil || *cfg.Seed != 7 {
		t.Fatalf("fit settings not read: %+v", cfg)
	}
	if cfg.RateLimit == nil || *cfg.RateLimit != 2.5 {
		t.Fatalf("rate_limit not read: %v", cfg.RateLimit)
	}
	if cfg.Workers != nil || cfg.R1Fit != nil {
		t.Fatalf("unset fields should stay nil: %+v", cfg)
	}

	if got := readConfig(filepath.Join(t.TempDir(), "missing.yaml")); got.Model != "" {
		t.Fatalf("missing file should give zero config: %+v", got)
	}
	if got := readConfig(writeFile(t, "bad.yaml", "model: [")); got.Model != "" {
		t.Fatalf("malformed file should give zero config: %+v", got)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	five, sims := 5, 20
	cfg := Config{Model: "CR72", MaxEvaluations: &five, Simulations: &sims, LogLevel: "warn"}
	cmd := &cli.Command{
		Name:  "t",
		Flags: withFlags(modelFlags(), fitFlags(), loggingFlags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, cfg)
			applyFitConfig(c, cfg)
			applyLoggingConfig(c, cfg)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"t", "--model", "LM63", "--mc", "3"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if modelName != "LM63" {
		t.Fatalf("flag should win over config: model=%q", modelName)
	}
	if simulations != 3 {
		t.Fatalf("flag alias should win over config: simulations=%d", simulations)
	}
	if maxEvaluations != 5 || logLevel != "warn" {
		t.Fatalf("config should fill unset flags: max-evals=%d log-level=%q", maxEvaluations, logLevel)
	}
	if recalcTauSet || !recalcTau {
		t.Fatalf("recalc-tau should keep its dataset default: set=%v value=%v", recalcTauSet, recalcTau)
	}
}

func TestParseParams(t *testing.T) {
	t.Parallel()
	got, err := parseParams([]string{"kex=1500", " pA = 0.9 "})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if got["kex"] != 1500 || got["pA"] != 0.9 {
		t.Fatalf("parsed %v", got)
	}
	for _, bad := range []string{"kex", "=1", "kex=fast"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Fatalf("%q should be rejected", bad)
		}
	}
	if got, err := parseParams(nil); err != nil || got != nil {
		t.Fatalf("empty input: %v %v", got, err)
	}
}

func testDataset(t *testing.T, model string) string {
	t.Helper()
	nus := []float64{50, 100, 200, 400, 800}
	curve := func() dispersion.Curve {
		errs := make([]float64, len(nus))
		vals := make([]float64, len(nus))
		for i := range nus {
			errs[i] = 0.5
			vals[i] = 12 + 4/float64(i+1)
		}
		return dispersion.Curve{RelaxTime: 0.04, Points: nus, Values: vals, Errors: errs}
	}
	c := dataset.Cluster{
		Name:  "res12",
		Model: model,
		Input: dispersion.Input{
			ExpTypes: []dispersion.ExpType{dispersion.ExpCPMGSQ},
			Fields:   []dispersion.Field{{ProtonHz: 600e6}},
			Spins:    []dispersion.Spin{{Name: "N12", Isotope: "15N"}},
			Curves:   [][][][]dispersion.Curve{{{{curve()}}}},
		},
	}
	b, err := json.Marshal(map[string]any{"recalc_tau": true, "clusters": []dataset.Cluster{c}})
	if err != nil {
		t.Fatalf("marshal dataset: %v", err)
	}
	return writeFile(t, "data.json", string(b))
}

func TestLoadClustersAndEvaluate(t *testing.T) {
	ctx := logger.WithContext(context.Background(), logger.Discard())
	modelName = "LM63"
	r1Fit, recalcTauSet, expmWorkers = false, false, 1
	_, clusters, err := loadClusters(ctx, testDataset(t, ""), map[string]float64{"kex": 2500})
	if err != nil {
		t.Fatalf("loadClusters: %v", err)
	}
	if len(clusters) != 1 || clusters[0].problem.Name != "res12" {
		t.Fatalf("clusters %+v", clusters)
	}
	reports, err := evaluateClusters(clusters)
	if err != nil {
		t.Fatalf("evaluateClusters: %v", err)
	}
	r := reports[0]
	if r.Model != "LM63" || r.NumParams != 3 || r.FitPoints != 5 || r.Chi2 <= 0 {
		t.Fatalf("report %+v", r)
	}
	if r.Params["kex"][0] != 2500 {
		t.Fatalf("start override not applied: %v", r.Params)
	}

	var buf bytes.Buffer
	writeEvalTable(&buf, reports)
	if !strings.Contains(buf.String(), "res12") || !strings.Contains(buf.String(), "LM63") {
		t.Fatalf("table %q", buf.String())
	}
}

func TestLoadClustersNeedsModel(t *testing.T) {
	ctx := logger.WithContext(context.Background(), logger.Discard())
	modelName = ""
	if _, _, err := loadClusters(ctx, testDataset(t, ""), nil); err == nil || !strings.Contains(err.Error(), "--model") {
		t.Fatalf("expected missing model error, got %v", err)
	}
	// A model named by the cluster wins over the flag.
	modelName = "No Rex"
	_, clusters, err := loadClusters(ctx, testDataset(t, "CR72"), nil)
	if err != nil {
		t.Fatalf("loadClusters: %v", err)
	}
	if got := clusters[0].problem.Model.String(); got != "CR72" {
		t.Fatalf("model %q", got)
	}
}

func TestWriteFitReport(t *testing.T) {
	t.Parallel()
	d, err := dispersion.Prepare(dispersion.Input{
		ExpTypes: []dispersion.ExpType{dispersion.ExpCPMGSQ},
		Fields:   []dispersion.Field{{ProtonHz: 600e6}},
		Spins:    []dispersion.Spin{{Name: "N1", Isotope: "15N"}},
		Curves: [][][][]dispersion.Curve{{{{
			{RelaxTime: 0.04, Points: []float64{100, 200}, Values: []float64{14, 13}, Errors: []float64{0.5, 0.5}},
		}}}},
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	ev, err := dispersion.New(d, "LM63")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report := fitReport{
		RunID:   "run-1",
		Elapsed: 1500 * time.Millisecond,
		Results: []*fit.Result{{
			Name:   "res1",
			Model:  "LM63",
			Chi2:   0.25,
			Status: "FunctionConvergence",
			Params: map[string][]float64{"r2": {12.5}, "phi_ex": {0.3}, "kex": {1500}},
			Errors: map[string][]float64{"r2": {0.1}, "phi_ex": {0.02}, "kex": {40}},
		}},
	}
	var buf bytes.Buffer
	writeFitReport(&buf, report, []dispersion.Layout{ev.Layout()})
	out := buf.String()
	for _, want := range []string{"res1  LM63  chi2=0.25", "kex        1500 ± 40", "run run-1: 1 cluster(s) in 1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "r2") > strings.Index(out, "kex") {
		t.Fatalf("parameters not in layout order:\n%s", out)
	}
}
