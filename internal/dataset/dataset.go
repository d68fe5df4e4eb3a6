// Package dataset reads relaxation-dispersion measurement files. A file holds
// one or more spin clusters, each of which is prepared and fitted
// independently.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/nucleus"
	"gopkg.in/yaml.v3"
)

// ErrInvalidFile is the sentinel wrapped by every validation failure.
var ErrInvalidFile = errors.New("invalid dataset file")

// Format is the on-disk encoding of a dataset.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unsupported extension %q", ErrInvalidFile, filepath.Ext(path))
	}
}

// document is the on-disk layout of a dataset.
type document struct {
	// RecalcTau recomputes the CPMG tau from the relaxation time and
	// frequency instead of using 1/(4ν). Absent means true.
	RecalcTau *bool `json:"recalc_tau,omitempty" yaml:"recalc_tau,omitempty"`
	// Isotopes extends the default gyromagnetic ratio table.
	Isotopes map[string]float64 `json:"isotopes,omitempty" yaml:"isotopes,omitempty"`
	Clusters []Cluster          `json:"clusters" yaml:"clusters"`
}

// File is a parsed and validated dataset.
type File struct {
	doc  document
	path string
}

// Cluster is one group of spins that share global exchange parameters.
type Cluster struct {
	Name string `json:"name" yaml:"name"`
	// Model is an optional per-cluster default model name.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	dispersion.Input `yaml:",inline"`
}

// Load reads and validates the dataset at path.
func Load(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.path = path
	return f, nil
}

// Parse decodes data in the given format and validates it.
func Parse(data []byte, format Format) (*File, error) {
	var doc document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidFile, format)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &File{doc: doc}, nil
}

// New wraps clusters built in memory into a validated File.
func New(recalcTau bool, isotopes map[string]float64, clusters ...Cluster) (*File, error) {
	doc := document{RecalcTau: &recalcTau, Isotopes: isotopes, Clusters: clusters}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &File{doc: doc}, nil
}

func (doc *document) validate() error {
	if len(doc.Clusters) == 0 {
		return fmt.Errorf("%w: no clusters", ErrInvalidFile)
	}
	seen := make(map[string]int, len(doc.Clusters))
	for i := range doc.Clusters {
		c := &doc.Clusters[i]
		if c.Name == "" {
			c.Name = fmt.Sprintf("cluster-%d", i+1)
		}
		if j, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: clusters %d and %d are both named %q", ErrInvalidFile, j, i, c.Name)
		}
		seen[c.Name] = i
		if c.Model != "" {
			if _, err := dispersion.Lookup(c.Model); err != nil {
				return fmt.Errorf("%w: cluster %q: %v", ErrInvalidFile, c.Name, err)
			}
		}
	}
	for iso, g := range doc.Isotopes {
		if g == 0 {
			return fmt.Errorf("%w: isotope %q has a zero gyromagnetic ratio", ErrInvalidFile, iso)
		}
	}
	return nil
}

// RecalcTau reports whether CPMG tau is recomputed during preparation.
func (f *File) RecalcTau() bool { return f.doc.RecalcTau == nil || *f.doc.RecalcTau }

// Path is the file the dataset was loaded from, empty after Parse.
func (f *File) Path() string { return f.path }

// Clusters returns the clusters in file order.
func (f *File) Clusters() []Cluster { return slices.Clone(f.doc.Clusters) }

// Cluster returns the cluster with the given name.
func (f *File) Cluster(name string) (Cluster, bool) {
	for _, c := range f.doc.Clusters {
		if c.Name == name {
			return c, true
		}
	}
	return Cluster{}, false
}

// Registry is the default isotope table extended by the file's entries.
func (f *File) Registry() nucleus.Registry {
	if len(f.doc.Isotopes) == 0 {
		return nucleus.Default()
	}
	ratios := map[string]float64{}
	def := nucleus.Default()
	for _, iso := range def.Isotopes() {
		g, _ := def.Gamma(iso)
		ratios[iso] = g
	}
	for iso, g := range f.doc.Isotopes {
		ratios[iso] = g
	}
	return nucleus.NewRegistry(ratios)
}

// PrepareOptions are the dispersion preparation settings carried by the file.
func (f *File) PrepareOptions() []dispersion.PrepareOption {
	return []dispersion.PrepareOption{
		dispersion.WithRecalcTau(f.RecalcTau()),
		dispersion.WithIsotopes(f.Registry()),
	}
}

// Prepare builds the evaluator data of every cluster in file order.
func (f *File) Prepare() ([]*dispersion.Data, error) {
	opts := f.PrepareOptions()
	out := make([]*dispersion.Data, len(f.doc.Clusters))
	for i, c := range f.doc.Clusters {
		d, err := dispersion.Prepare(c.Input, opts...)
		if err != nil {
			return nil, fmt.Errorf("cluster %q: %w", c.Name, err)
		}
		out[i] = d
	}
	return out, nil
}
