package tensor

import (
	"math/rand"
)

// Mat represents a small dense row‑major matrix of float64 values.
//
// R and C represent the number of rows and columns respectively.  Stride is the
// number of elements between the starts of two consecutive rows (for row‑major
// matrices this is equal to C).  Data holds the flattened matrix values.
//
// Mat is sized for Bloch–McConnell generators (a handful of rows), so the
// kernels below are plain loops.
type Mat struct {
	R, C   int
	Stride int
	Data   []float64
}

// NewMat allocates a new matrix with the given number of rows and columns.
// The underlying slice is zero initialised.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic(errNegativeDim)
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float64, r*c),
	}
}

// NewMatFromData wraps data as an r×c matrix without copying.
func NewMatFromData(r, c int, data []float64) Mat {
	if r < 0 || c < 0 {
		panic(errNegativeDim)
	}
	if len(data) < r*c {
		panic(errDataTooShort)
	}
	return Mat{R: r, C: c, Stride: c, Data: data}
}

// Row returns a view of row i.
func (m *Mat) Row(i int) []float64 {
	off := i * m.Stride
	return m.Data[off : off+m.C]
}

func (m *Mat) At(i, j int) float64 { return m.Data[i*m.Stride+j] }

func (m *Mat) Set(i, j int, v float64) { m.Data[i*m.Stride+j] = v }

// Zero clears every element.
func (m *Mat) Zero() {
	for i := 0; i < m.R; i++ {
		clear(m.Row(i))
	}
}

// SetIdentity overwrites a square matrix with the identity.
func (m *Mat) SetIdentity() {
	m.Zero()
	for i := 0; i < m.R; i++ {
		m.Data[i*m.Stride+i] = 1
	}
}

// CopyFrom copies src into m. Shapes must match.
func (m *Mat) CopyFrom(src *Mat) {
	if m.R != src.R || m.C != src.C {
		panic(errShapeMismatch)
	}
	for i := 0; i < m.R; i++ {
		copy(m.Row(i), src.Row(i))
	}
}

// Scale multiplies every element by f.
func (m *Mat) Scale(f float64) {
	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		for j := range row {
			row[j] *= f
		}
	}
}

// MatMul computes dst = a * b. dst must not alias a or b.
func MatMul(dst, a, b *Mat) {
	if a.C != b.R || dst.R != a.R || dst.C != b.C {
		panic(errShapeMismatch)
	}
	for i := 0; i < a.R; i++ {
		out := dst.Row(i)
		clear(out)
		ar := a.Row(i)
		for k, av := range ar {
			if av == 0 {
				continue
			}
			br := b.Row(k)
			for j, bv := range br {
				out[j] += av * bv
			}
		}
	}
}

// MatVec computes dst = w * x.
func MatVec(dst []float64, w *Mat, x []float64) {
	if len(dst) < w.R || len(x) < w.C {
		panic(errShapeMismatch)
	}
	for i := 0; i < w.R; i++ {
		row := w.Row(i)
		var sum float64
		for j, v := range row {
			sum += v * x[j]
		}
		dst[i] = sum
	}
}

// PowScratch holds the temporaries used by Pow so repeated calls do not
// allocate.
type PowScratch struct {
	base, tmp Mat
}

func (s *PowScratch) ensure(n int) {
	if s.base.R != n {
		s.base = NewMat(n, n)
		s.tmp = NewMat(n, n)
	}
}

// Pow computes dst = a^k for a square matrix by repeated squaring. k == 0
// yields the identity. dst must not alias a.
func (s *PowScratch) Pow(dst, a *Mat, k int) {
	if a.R != a.C || dst.R != a.R || dst.C != a.C {
		panic(errShapeMismatch)
	}
	if k < 0 {
		panic(errNegativePower)
	}
	s.ensure(a.R)
	dst.SetIdentity()
	if k == 0 {
		return
	}
	s.base.CopyFrom(a)
	for {
		if k&1 == 1 {
			MatMul(&s.tmp, dst, &s.base)
			dst.CopyFrom(&s.tmp)
		}
		k >>= 1
		if k == 0 {
			return
		}
		MatMul(&s.tmp, &s.base, &s.base)
		s.base.CopyFrom(&s.tmp)
	}
}

// FillRand fills the matrix with reproducible pseudo‑random values in
// (-scale, scale).
func FillRand(m *Mat, seed int64, scale float64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float64()*2 - 1) * scale
	}
}

var (
	errNegativeDim   = fmtError("negative dimension for matrix")
	errDataTooShort  = fmtError("data shorter than matrix")
	errShapeMismatch = fmtError("matrix shape mismatch")
	errNegativePower = fmtError("negative matrix power")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
