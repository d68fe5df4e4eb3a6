package tensor

import (
	"math"
	"math/cmplx"
)

// CMat is the complex counterpart of Mat, used for the single-quantum
// transverse propagators where chemical-shift evolution enters as an
// imaginary rate.
type CMat struct {
	R, C   int
	Stride int
	Data   []complex128
}

// NewCMat allocates a zeroed r×c complex matrix.
func NewCMat(r, c int) CMat {
	if r < 0 || c < 0 {
		panic(errNegativeDim)
	}
	return CMat{R: r, C: c, Stride: c, Data: make([]complex128, r*c)}
}

func (m *CMat) Row(i int) []complex128 {
	off := i * m.Stride
	return m.Data[off : off+m.C]
}

func (m *CMat) At(i, j int) complex128 { return m.Data[i*m.Stride+j] }

func (m *CMat) Set(i, j int, v complex128) { m.Data[i*m.Stride+j] = v }

func (m *CMat) Zero() {
	for i := 0; i < m.R; i++ {
		clear(m.Row(i))
	}
}

func (m *CMat) SetIdentity() {
	m.Zero()
	for i := 0; i < m.R; i++ {
		m.Data[i*m.Stride+i] = 1
	}
}

func (m *CMat) CopyFrom(src *CMat) {
	if m.R != src.R || m.C != src.C {
		panic(errShapeMismatch)
	}
	for i := 0; i < m.R; i++ {
		copy(m.Row(i), src.Row(i))
	}
}

// Scale multiplies every element by f.
func (m *CMat) Scale(f complex128) {
	for i := range m.Data {
		m.Data[i] *= f
	}
}

// ConjTo writes the element-wise complex conjugate of src into m.
func (m *CMat) ConjTo(src *CMat) {
	if m.R != src.R || m.C != src.C {
		panic(errShapeMismatch)
	}
	for i := 0; i < m.R; i++ {
		dr, sr := m.Row(i), src.Row(i)
		for j, v := range sr {
			dr[j] = cmplx.Conj(v)
		}
	}
}

// CMatMul computes dst = a * b. dst must not alias a or b.
func CMatMul(dst, a, b *CMat) {
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

// CMatMulChain computes dst = ms[0] * ms[1] * ... using tmp as scratch.
func CMatMulChain(dst, tmp *CMat, ms ...*CMat) {
	if len(ms) == 0 {
		dst.SetIdentity()
		return
	}
	dst.CopyFrom(ms[0])
	for _, m := range ms[1:] {
		CMatMul(tmp, dst, m)
		dst.CopyFrom(tmp)
	}
}

// CMatVec computes dst = w * x.
func CMatVec(dst []complex128, w *CMat, x []complex128) {
	if len(dst) < w.R || len(x) < w.C {
		panic(errShapeMismatch)
	}
	for i := 0; i < w.R; i++ {
		row := w.Row(i)
		var sum complex128
		for j, v := range row {
			sum += v * x[j]
		}
		dst[i] = sum
	}
}

// CPowScratch holds the temporaries used by Pow.
type CPowScratch struct {
	base, tmp CMat
}

func (s *CPowScratch) ensure(n int) {
	if s.base.R != n {
		s.base = NewCMat(n, n)
		s.tmp = NewCMat(n, n)
	}
}

// Pow computes dst = a^k by repeated squaring. dst must not alias a.
func (s *CPowScratch) Pow(dst, a *CMat, k int) {
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
			CMatMul(&s.tmp, dst, &s.base)
			dst.CopyFrom(&s.tmp)
		}
		k >>= 1
		if k == 0 {
			return
		}
		CMatMul(&s.tmp, &s.base, &s.base)
		s.base.CopyFrom(&s.tmp)
	}
}

// CInverse writes the inverse of the square matrix a into dst using LU
// decomposition with partial pivoting. It returns false when a pivot falls
// below tol times the largest absolute entry of a; dst is then unspecified.
// lu is scratch of the same size as a.
func CInverse(dst, lu, a *CMat, tol float64) bool {
	n := a.R
	if a.C != n || dst.R != n || dst.C != n || lu.R != n || lu.C != n {
		panic(errShapeMismatch)
	}
	lu.CopyFrom(a)
	dst.SetIdentity()

	var scale float64
	for _, v := range a.Data[:n*a.Stride] {
		scale = math.Max(scale, cmplx.Abs(v))
	}
	if scale == 0 {
		return false
	}
	limit := tol * scale

	for col := 0; col < n; col++ {
		piv := col
		best := cmplx.Abs(lu.At(col, col))
		for r := col + 1; r < n; r++ {
			if v := cmplx.Abs(lu.At(r, col)); v > best {
				piv, best = r, v
			}
		}
		if best <= limit {
			return false
		}
		if piv != col {
			swapRows(lu, piv, col)
			swapRows(dst, piv, col)
		}
		inv := 1 / lu.At(col, col)
		lr, dr := lu.Row(col), dst.Row(col)
		for j := range lr {
			lr[j] *= inv
			dr[j] *= inv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := lu.At(r, col)
			if f == 0 {
				continue
			}
			rr, rd := lu.Row(r), dst.Row(r)
			for j := range rr {
				rr[j] -= f * lr[j]
				rd[j] -= f * dr[j]
			}
		}
	}
	return true
}

func swapRows(m *CMat, a, b int) {
	ra, rb := m.Row(a), m.Row(b)
	for j := range ra {
		ra[j], rb[j] = rb[j], ra[j]
	}
}
