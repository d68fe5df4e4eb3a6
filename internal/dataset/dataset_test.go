package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/relaxdisp/internal/dispersion"
)

const sampleJSON = `{
  "recalc_tau": true,
  "clusters": [
    {
      "name": "res12",
      "model": "CR72",
      "exp_types": ["SQ CPMG"],
      "fields": [{"proton_hz": 600e6}, {"proton_hz": 800e6}],
      "spins": [{"name": "N12", "isotope": "15N"}],
      "curves": [[[
        [{"relax_time": 0.04, "points": [50, 100, 200], "values": [12.1, 11.4, 10.2], "errors": [0.2, 0.2, 0.2]}],
        [{"relax_time": 0.04, "points": [50, 100], "values": [13.0, 12.2], "errors": [0.3, 0.3]}]
      ]]]
    }
  ]
}`

const sampleYAML = `
recalc_tau: true
clusters:
  - name: res12
    model: CR72
    exp_types: [SQ CPMG]
    fields:
      - proton_hz: 600000000
      - proton_hz: 800000000
    spins:
      - name: N12
        isotope: 15N
    curves:
      - - - - relax_time: 0.04
              points: [50, 100, 200]
              values: [12.1, 11.4, 10.2]
              errors: [0.2, 0.2, 0.2]
          - - relax_time: 0.04
              points: [50, 100]
              values: [13.0, 12.2]
              errors: [0.3, 0.3]
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJSONAndYAMLAgree(t *testing.T) {
	t.Parallel()
	var shapes []string
	for _, tc := range []struct{ name, body string }{
		{"data.json", sampleJSON},
		{"data.yaml", sampleYAML},
	} {
		f, err := Load(writeFile(t, tc.name, tc.body))
		if err != nil {
			t.Fatalf("Load(%s): %v", tc.name, err)
		}
		if !f.RecalcTau() {
			t.Fatalf("%s: recalc_tau not read", tc.name)
		}
		cs := f.Clusters()
		if len(cs) != 1 || cs[0].Name != "res12" || cs[0].Model != "CR72" {
			t.Fatalf("%s: clusters %+v", tc.name, cs)
		}
		if cs[0].ExpTypes[0] != dispersion.ExpCPMGSQ {
			t.Fatalf("%s: exp type %v", tc.name, cs[0].ExpTypes[0])
		}
		data, err := f.Prepare()
		if err != nil {
			t.Fatalf("%s: Prepare: %v", tc.name, err)
		}
		if got := data[0].ActivePoints(); got != 5 {
			t.Fatalf("%s: active points %d want 5", tc.name, got)
		}
		shapes = append(shapes, data[0].Shape().String())
	}
	if shapes[0] != shapes[1] {
		t.Fatalf("JSON shape %s differs from YAML shape %s", shapes[0], shapes[1])
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		format Format
		body   string
	}{
		{"no clusters", FormatJSON, `{"clusters": []}`},
		{"unknown field", FormatJSON, `{"clusters": [{"name": "a", "colour": "red"}]}`},
		{"unknown yaml field", FormatYAML, "clusters:\n  - name: a\n    colour: red\n"},
		{"duplicate names", FormatJSON, `{"clusters": [{"name": "a"}, {"name": "a"}]}`},
		{"bad model", FormatJSON, `{"clusters": [{"name": "a", "model": "CR99"}]}`},
		{"bad exp type", FormatJSON, `{"clusters": [{"name": "a", "exp_types": ["TQ CPMG"]}]}`},
		{"zero gamma", FormatYAML, "isotopes: {2H: 0}\nclusters:\n  - name: a\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.body), tc.format)
			if !errors.Is(err, ErrInvalidFile) {
				t.Fatalf("expected ErrInvalidFile, got %v", err)
			}
		})
	}
}

func TestUnnamedClustersAreNumbered(t *testing.T) {
	t.Parallel()
	f, err := Parse([]byte(`{"clusters": [{}, {"name": "x"}]}`), FormatJSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := f.Cluster("cluster-1"); !ok {
		t.Fatalf("first cluster not named: %+v", f.Clusters())
	}
	if _, ok := f.Cluster("x"); !ok {
		t.Fatal("named cluster lost")
	}
}

func TestFormatOf(t *testing.T) {
	t.Parallel()
	for path, want := range map[string]Format{"a.json": FormatJSON, "b.YML": FormatYAML, "c.yaml": FormatYAML} {
		got, err := FormatOf(path)
		if err != nil || got != want {
			t.Fatalf("FormatOf(%q) = %q, %v", path, got, err)
		}
	}
	if _, err := Load(writeFile(t, "data.csv", "x")); !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("csv accepted: %v", err)
	}
}

func TestIsotopeOverride(t *testing.T) {
	t.Parallel()
	body := strings.Replace(sampleJSON, `"recalc_tau": true,`, `"isotopes": {"15N": -2.8e7},`, 1)
	f, err := Parse([]byte(body), FormatJSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := f.Registry()
	if g, _ := r.Gamma("15N"); g != -2.8e7 {
		t.Fatalf("15N gamma %g", g)
	}
	if _, err := r.Gamma("13C"); err != nil {
		t.Fatalf("default isotopes dropped: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestRecalcTauDefault(t *testing.T) {
	t.Parallel()
	omitted := strings.Replace(sampleJSON, `"recalc_tau": true,`, ``, 1)
	disabled := strings.Replace(sampleJSON, `"recalc_tau": true,`, `"recalc_tau": false,`, 1)
	omittedYAML := strings.Replace(sampleYAML, "recalc_tau: true\n", "", 1)
	for _, tc := range []struct {
		name   string
		format Format
		body   string
		want   bool
	}{
		{"json omitted", FormatJSON, omitted, true},
		{"yaml omitted", FormatYAML, omittedYAML, true},
		{"json false", FormatJSON, disabled, false},
	} {
		f, err := Parse([]byte(tc.body), tc.format)
		if err != nil {
			t.Fatalf("%s: Parse: %v", tc.name, err)
		}
		if f.RecalcTau() != tc.want {
			t.Fatalf("%s: RecalcTau()=%v want %v", tc.name, f.RecalcTau(), tc.want)
		}
		data, err := f.Prepare()
		if err != nil {
			t.Fatalf("%s: Prepare: %v", tc.name, err)
		}
		if data[0].RecalcTau() != tc.want {
			t.Fatalf("%s: prepared recalc_tau=%v want %v", tc.name, data[0].RecalcTau(), tc.want)
		}
	}

	f, err := New(false, nil, Cluster{Name: "a"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.RecalcTau() {
		t.Fatal("explicit false lost")
	}
}
