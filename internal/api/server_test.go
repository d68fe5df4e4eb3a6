package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/logger"
)

var testNus = []float64{50, 100, 200, 400, 600, 800, 1000}

func newTestServer(cfg Config) (*Server, *echo.Echo) {
	server := NewServer(NewFitStore(), cfg, logger.Discard())
	e := echo.New()
	server.Register(e)
	return server, e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error ResponseError `json:"error"`
}

// cpmgInput is one 15N spin at 600 and 800 MHz.
func cpmgInput() dispersion.Input {
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

// syntheticInput fills cpmgInput with the LM63 curve at known parameters.
func syntheticInput(t *testing.T) dispersion.Input {
	t.Helper()
	in := cpmgInput()
	d, err := dispersion.Prepare(in)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	ev, err := dispersion.New(d, "LM63")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	x, err := ev.Encode(map[string][]float64{"r2": {12, 14}, "phi_ex": {0.3}, "kex": {1500}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ev.BackCalculate(x)
	back := ev.BackCalc()
	for m := range in.Fields {
		in.Curves[0][0][m][0].Values = back[0][0][m][0]
	}
	return in
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(Config{})
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	if h := decode[HealthResponse](t, rec); h.Status != "ok" || h.Version.Version == "" {
		t.Fatalf("health %+v", h)
	}
}

func TestModels(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(Config{})
	rec := doJSON(t, e, http.MethodGet, "/v1/models", "")
	list := decode[ModelList](t, rec)
	if list.Object != "list" || len(list.Data) != len(dispersion.Models()) {
		t.Fatalf("model list %+v", list)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/models/CR72", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get CR72: %d %s", rec.Code, rec.Body.String())
	}
	if info := decode[dispersion.Info](t, rec); info.Name != "CR72" || info.Sites != 2 {
		t.Fatalf("CR72 info %+v", info)
	}
	if rec := doJSON(t, e, http.MethodGet, "/v1/models/CR99", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown model: %d", rec.Code)
	}
}

func TestEvaluateMatchesEvaluator(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(Config{})
	in := syntheticInput(t)
	body := mustMarshal(t, EvaluateRequest{
		Model:  "CR72",
		Data:   in,
		Params: map[string][]float64{"r2": {11}, "dw": {1.5}, "pA": {0.93}, "kex": {900}},
	})
	rec := doJSON(t, e, http.MethodPost, "/v1/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	got := decode[EvaluateResponse](t, rec)

	d, err := dispersion.Prepare(in)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	ev, err := dispersion.New(d, "CR72")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want, err := ev.Evaluate([]float64{11, 11, 1.5, 0.93, 900})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Chi2 != want {
		t.Fatalf("chi2 %g want %g", got.Chi2, want)
	}
	if got.NumParams != 5 || got.FitPoints != 2*len(testNus) || !strings.HasPrefix(got.ID, "eval_") {
		t.Fatalf("response metadata %+v", got)
	}
	if n := len(got.BackCalc[0][0]); n != 2 || len(got.BackCalc[0][0][1][0]) != len(testNus) {
		t.Fatalf("back_calc layout %v", got.BackCalc)
	}
	if len(got.Params["r2"]) != 2 {
		t.Fatalf("r2 not broadcast: %v", got.Params)
	}
}

func TestEvaluateErrors(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(Config{})
	in := cpmgInput()
	empty := in
	empty.ExpTypes = nil
	cases := []struct {
		name      string
		body      string
		code      string
		param     string
		wantHTTP  int
		checkType bool
	}{
		{"both params and x", mustMarshal(t, EvaluateRequest{Model: "CR72", Data: in, Params: map[string][]float64{"r2": {1}}, X: []float64{1}}), "", "params", 400, true},
		{"short vector", mustMarshal(t, EvaluateRequest{Model: "CR72", Data: in, X: []float64{1, 2}}), "parameter_count", "x", 400, true},
		{"unknown model", mustMarshal(t, EvaluateRequest{Model: "CR99", Data: in, X: []float64{1}}), "invalid_model", "model", 400, true},
		{"wrong experiment class", mustMarshal(t, EvaluateRequest{Model: "TP02", Data: in, X: []float64{1}}), "invalid_model", "model", 400, true},
		{"bad shape", mustMarshal(t, EvaluateRequest{Model: "CR72", Data: empty, X: []float64{1}}), "invalid_shape", "", 400, true},
		{"unknown block", mustMarshal(t, EvaluateRequest{Model: "CR72", Data: in, Params: map[string][]float64{"tex": {1}}}), "", "params", 400, true},
		{"unknown field", `{"model": "CR72", "colour": "red"}`, "", "", 400, false},
		{"empty body", ``, "", "", 400, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, e, http.MethodPost, "/v1/evaluate", tc.body)
			if rec.Code != tc.wantHTTP {
				t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
			}
			eb := decode[errorBody](t, rec)
			if eb.Error.Type != "invalid_request_error" || eb.Error.Message == "" {
				t.Fatalf("error body %+v", eb)
			}
			if !tc.checkType {
				return
			}
			if eb.Error.Code != tc.code {
				t.Fatalf("code %q want %q", eb.Error.Code, tc.code)
			}
			if tc.param != "" && eb.Error.Param != tc.param {
				t.Fatalf("param %q want %q", eb.Error.Param, tc.param)
			}
		})
	}
}

func TestSynchronousFit(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(Config{})
	body := mustMarshal(t, FitRequest{
		Model: "LM63",
		Name:  "res1",
		Data:  syntheticInput(t),
		Start: map[string]float64{"phi_ex": 0.5, "kex": 1000},
	})
	rec := doJSON(t, e, http.MethodPost, "/v1/fit", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	job := decode[FitJob](t, rec)
	if job.Status != StatusCompleted || job.Result == nil || job.CompletedAt == nil {
		t.Fatalf("job %+v", job)
	}
	if job.Result.Chi2 > 1e-3 {
		t.Fatalf("chi2 %g", job.Result.Chi2)
	}
	if !strings.HasPrefix(job.ID, "fit_") || job.Name != "res1" || job.Model != "LM63" {
		t.Fatalf("job metadata %+v", job)
	}
}

func TestFitRejectsBadRequests(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(Config{})
	cases := map[string]FitRequest{
		"one simulation": {Model: "LM63", Data: cpmgInput(), Simulations: 1},
		"unknown start":  {Model: "LM63", Data: cpmgInput(), Start: map[string]float64{"pA": 0.9}},
		"wrong model":    {Model: "DPL94", Data: cpmgInput()},
	}
	for name, req := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/fit", mustMarshal(t, req))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d body=%s", name, rec.Code, rec.Body.String())
		}
	}
}

func TestBackgroundFitLifecycle(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(Config{})
	body := mustMarshal(t, FitRequest{
		Model:      "LM63",
		Data:       syntheticInput(t),
		Start:      map[string]float64{"phi_ex": 0.5, "kex": 1000},
		Background: true,
	})
	rec := doJSON(t, e, http.MethodPost, "/v1/fit", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	job := decode[FitJob](t, rec)
	if job.Status != StatusQueued || !job.Background {
		t.Fatalf("created job %+v", job)
	}

	deadline := time.Now().Add(30 * time.Second)
	for !job.finished() {
		if time.Now().After(deadline) {
			t.Fatalf("fit did not finish: %+v", job)
		}
		time.Sleep(10 * time.Millisecond)
		job = decode[FitJob](t, doJSON(t, e, http.MethodGet, "/v1/fit/"+job.ID, ""))
	}
	if job.Status != StatusCompleted || job.Result == nil {
		t.Fatalf("finished job %+v", job)
	}

	list := decode[FitJobList](t, doJSON(t, e, http.MethodGet, "/v1/fit", ""))
	if len(list.Data) != 1 || list.Data[0].ID != job.ID {
		t.Fatalf("list %+v", list)
	}
	if rec := doJSON(t, e, http.MethodDelete, "/v1/fit/"+job.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodGet, "/v1/fit/"+job.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted job still served: %d", rec.Code)
	}
}

func TestCancelQueuedFit(t *testing.T) {
	t.Parallel()
	server, e := newTestServer(Config{MaxJobs: 1})
	// Hold the only job slot so the fit stays queued.
	if err := server.jobs.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	body := mustMarshal(t, FitRequest{Model: "LM63", Data: syntheticInput(t), Background: true})
	job := decode[FitJob](t, doJSON(t, e, http.MethodPost, "/v1/fit", body))

	cancelled := decode[FitJob](t, doJSON(t, e, http.MethodPost, "/v1/fit/"+job.ID+"/cancel", ""))
	if cancelled.Status != StatusCancelled || cancelled.CompletedAt == nil {
		t.Fatalf("cancelled job %+v", cancelled)
	}
	server.jobs.Release(1)

	time.Sleep(20 * time.Millisecond)
	again := decode[FitJob](t, doJSON(t, e, http.MethodGet, "/v1/fit/"+job.ID, ""))
	if again.Status != StatusCancelled || again.Result != nil {
		t.Fatalf("cancelled job changed: %+v", again)
	}
	if rec := doJSON(t, e, http.MethodPost, "/v1/fit/fit_missing/cancel", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown: %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	_, e := newTestServer(Config{RateLimit: 0.001, Burst: 1})
	body := mustMarshal(t, EvaluateRequest{Model: "CR72", Data: cpmgInput(), X: []float64{10, 10, 1, 0.9, 1000}})
	if rec := doJSON(t, e, http.MethodPost, "/v1/evaluate", body); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d %s", rec.Code, rec.Body.String())
	}
	rec := doJSON(t, e, http.MethodPost, "/v1/evaluate", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
	if eb := decode[errorBody](t, rec); eb.Error.Type != "rate_limit_error" {
		t.Fatalf("error body %+v", eb)
	}
	// Read-only endpoints are not limited.
	if rec := doJSON(t, e, http.MethodGet, "/v1/models", ""); rec.Code != http.StatusOK {
		t.Fatalf("models limited: %d", rec.Code)
	}
}

func TestRecalcTauDefaultsToTrue(t *testing.T) {
	t.Parallel()
	server, e := newTestServer(Config{})
	// Frequencies that do not divide the relaxation delay, so tau depends on
	// the recalculation setting.
	in := cpmgInput()
	for m := range in.Fields {
		c := &in.Curves[0][0][m][0]
		c.Points = []float64{75, 110, 330}
		c.Values = []float64{14, 13, 12}
		c.Errors = []float64{0.5, 0.5, 0.5}
	}
	const nsModel = "NS CPMG 2-site 3D"
	params := map[string][]float64{"r2": {11}, "dw": {1.5}, "pA": {0.93}, "kex": {900}}
	x := []float64{11, 11, 1.5, 0.93, 900}

	local := func(opts ...dispersion.PrepareOption) float64 {
		d, err := dispersion.Prepare(in, opts...)
		if err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		ev, err := dispersion.New(d, nsModel)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		chi2, err := ev.Evaluate(x)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		return chi2
	}
	recalc, nominal := local(), local(dispersion.WithRecalcTau(false))
	if recalc == nominal {
		t.Fatalf("tau setting has no effect on chi2 %g", recalc)
	}

	off := false
	for _, tc := range []struct {
		name string
		flag *bool
		want float64
	}{
		{"omitted", nil, recalc},
		{"false", &off, nominal},
	} {
		body := mustMarshal(t, EvaluateRequest{Model: nsModel, Data: in, Params: params, RecalcTau: tc.flag})
		if tc.flag == nil && strings.Contains(body, "recalc_tau") {
			t.Fatalf("omitted flag was serialised: %s", body)
		}
		rec := doJSON(t, e, http.MethodPost, "/v1/evaluate", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body=%s", tc.name, rec.Code, rec.Body.String())
		}
		if got := decode[EvaluateResponse](t, rec).Chi2; got != tc.want {
			t.Fatalf("%s: chi2 %g want %g", tc.name, got, tc.want)
		}

		p, err := server.problem(&FitRequest{Model: nsModel, Data: in, RecalcTau: tc.flag})
		if err != nil {
			t.Fatalf("%s: problem: %v", tc.name, err)
		}
		if p.Data.RecalcTau() != (tc.flag == nil) {
			t.Fatalf("%s: fit data recalc_tau=%v", tc.name, p.Data.RecalcTau())
		}
	}
}
