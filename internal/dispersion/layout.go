package dispersion

import (
	"fmt"
	"slices"

	"github.com/samcharles93/relaxdisp/internal/tensor"
)

type blockKind int

const (
	kindSpinField blockKind = iota // one value per (spin, field)
	kindRate                       // one value per (spin, experiment, field)
	kindSpin                       // one value per spin
	kindGlobal                     // one scalar
)

func paramKind(name string) blockKind {
	switch name {
	case "r1":
		return kindSpinField
	case "r2", "r2a", "r2b":
		return kindRate
	case "phi_ex", "phi_ex_B", "phi_ex_C", "dw", "dw_AB", "dw_BC", "dwH", "dwH_AB", "dwH_BC":
		return kindSpin
	default:
		return kindGlobal
	}
}

// Block is one named partition of the parameter vector, [Start, End).
type Block struct {
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Len is the number of parameters in the block.
func (b Block) Len() int { return b.End - b.Start }

// Layout partitions the flat parameter vector of one model into blocks. Rate
// blocks are ordered spin-major: index si·NE·NM + ei·NM + mi. R1 blocks are
// indexed si·NM + mi.
type Layout struct {
	blocks     []Block
	ne, ns, nm int
}

func newLayout(v *variant, s tensor.Shape, r1Fit bool) Layout {
	l := Layout{ne: s.NE, ns: s.NS, nm: s.NM}
	end := 0
	add := func(name string) {
		n := l.blockSize(paramKind(name))
		l.blocks = append(l.blocks, Block{Name: name, Start: end, End: end + n})
		end += n
	}
	if r1Fit {
		add("r1")
	}
	for _, kind := range []blockKind{kindRate, kindSpin, kindGlobal} {
		for _, name := range v.params {
			if paramKind(name) == kind {
				add(name)
			}
		}
	}
	return l
}

func (l Layout) blockSize(k blockKind) int {
	switch k {
	case kindSpinField:
		return l.ns * l.nm
	case kindRate:
		return l.ns * l.ne * l.nm
	case kindSpin:
		return l.ns
	default:
		return 1
	}
}

// Len is the total number of parameters.
func (l Layout) Len() int {
	if len(l.blocks) == 0 {
		return 0
	}
	return l.blocks[len(l.blocks)-1].End
}

// Blocks returns the partition in vector order.
func (l Layout) Blocks() []Block { return slices.Clone(l.blocks) }

// Ends returns the strictly increasing end index of every block.
func (l Layout) Ends() []int {
	out := make([]int, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = b.End
	}
	return out
}

// Block looks up a block by parameter name.
func (l Layout) Block(name string) (Block, bool) {
	for _, b := range l.blocks {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// RateIndex returns the offset within a rate block of (spin, experiment,
// field).
func (l Layout) RateIndex(si, ei, mi int) int {
	return si*l.ne*l.nm + ei*l.nm + mi
}

// R1Index returns the offset within the R1 block of (spin, field).
func (l Layout) R1Index(si, mi int) int {
	return si*l.nm + mi
}

// Pack builds a parameter vector from per-block values. Every block must be
// present with exactly its length.
func (l Layout) Pack(values map[string][]float64) ([]float64, error) {
	out := make([]float64, l.Len())
	for _, b := range l.blocks {
		v, ok := values[b.Name]
		if !ok {
			return nil, fmt.Errorf("missing parameter block %q", b.Name)
		}
		if len(v) != b.Len() {
			return nil, fmt.Errorf("parameter block %q has %d values, want %d", b.Name, len(v), b.Len())
		}
		copy(out[b.Start:b.End], v)
	}
	if len(values) != len(l.blocks) {
		for name := range values {
			if _, ok := l.Block(name); !ok {
				return nil, fmt.Errorf("unknown parameter block %q", name)
			}
		}
	}
	return out, nil
}

// Unpack splits a parameter vector into per-block copies.
func (l Layout) Unpack(x []float64) (map[string][]float64, error) {
	if len(x) != l.Len() {
		return nil, &ParameterCountError{Got: len(x), Want: l.Len()}
	}
	out := make(map[string][]float64, len(l.blocks))
	for _, b := range l.blocks {
		out[b.Name] = slices.Clone(x[b.Start:b.End])
	}
	return out, nil
}

// Uniform builds a parameter vector from one scalar per block, repeated over
// every spin, experiment and field the block spans.
func (l Layout) Uniform(values map[string]float64) ([]float64, error) {
	blocks := make(map[string][]float64, len(values))
	for name, v := range values {
		b, ok := l.Block(name)
		if !ok {
			return nil, fmt.Errorf("unknown parameter block %q", name)
		}
		vals := make([]float64, b.Len())
		for i := range vals {
			vals[i] = v
		}
		blocks[name] = vals
	}
	return l.Pack(blocks)
}
