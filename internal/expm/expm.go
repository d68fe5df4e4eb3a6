// Package expm computes matrix exponentials of the small Bloch–McConnell
// generators used by the numeric dispersion models.
package expm

import (
	"math"
	"math/cmplx"

	"github.com/samcharles93/relaxdisp/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// condTol is the relative pivot threshold below which the eigenvector matrix
// is treated as singular and the Padé path is used instead.
const condTol = 1e-10

// maxEntry bounds the magnitude of generator entries accepted for
// factorisation. Larger or non-finite inputs yield a NaN exponential.
const maxEntry = 1e15

// Workspace holds the gonum factorisations and buffers for exponentiating
// n×n matrices. A Workspace is not safe for concurrent use.
type Workspace struct {
	n int

	buf  []float64
	a    *mat.Dense
	out  *mat.Dense
	eig  mat.Eigen
	vals []complex128
	vecs mat.CDense

	v, vinv, lu tensor.CMat

	// realified complex input and output, 2n×2n
	re, reOut tensor.Mat
	sub       *Workspace
}

// NewWorkspace allocates a workspace for n×n matrices.
func NewWorkspace(n int) *Workspace {
	if n <= 0 {
		panic("expm: non-positive matrix size")
	}
	buf := make([]float64, n*n)
	return &Workspace{
		n:    n,
		buf:  buf,
		a:    mat.NewDense(n, n, buf),
		out:  mat.NewDense(n, n, nil),
		vals: make([]complex128, n),
		v:    tensor.NewCMat(n, n),
		vinv: tensor.NewCMat(n, n),
		lu:   tensor.NewCMat(n, n),
	}
}

// Size returns the matrix dimension the workspace was built for.
func (w *Workspace) Size() int { return w.n }

// Real writes exp(a) into dst using the eigendecomposition a = V·Λ·V⁻¹ and
// returns the real part of V·exp(Λ)·V⁻¹. Defective or ill-conditioned
// generators fall back to Padé approximation.
func (w *Workspace) Real(dst, a *tensor.Mat) {
	if !w.load(a) {
		fillNaN(dst)
		return
	}
	if !w.eig.Factorize(w.a, mat.EigenRight) {
		w.pade(dst)
		return
	}
	w.eig.Values(w.vals)
	w.eig.VectorsTo(&w.vecs)
	n := w.n
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w.v.Set(i, j, w.vecs.At(i, j))
		}
	}
	if !tensor.CInverse(&w.vinv, &w.lu, &w.v, condTol) {
		w.pade(dst)
		return
	}
	for k := range w.vals {
		w.vals[k] = cmplx.Exp(w.vals[k])
	}
	for i := 0; i < n; i++ {
		vr := w.v.Row(i)
		out := dst.Row(i)
		for j := 0; j < n; j++ {
			var sum complex128
			for k, ev := range w.vals {
				sum += vr[k] * ev * w.vinv.At(k, j)
			}
			v := real(sum)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				w.pade(dst)
				return
			}
			out[j] = v
		}
	}
}

// Pade writes exp(a) into dst using gonum's scaling-and-squaring Padé
// approximant.
func (w *Workspace) Pade(dst, a *tensor.Mat) {
	if !w.load(a) {
		fillNaN(dst)
		return
	}
	w.pade(dst)
}

// load copies a into the gonum buffer and reports whether every entry is
// finite and within maxEntry.
func (w *Workspace) load(a *tensor.Mat) bool {
	if a.R != w.n || a.C != w.n {
		panic("expm: matrix size does not match workspace")
	}
	ok := true
	for i := 0; i < w.n; i++ {
		row := a.Row(i)
		for _, v := range row {
			if !(math.Abs(v) <= maxEntry) {
				ok = false
			}
		}
		copy(w.buf[i*w.n:(i+1)*w.n], row)
	}
	return ok
}

func fillNaN(dst *tensor.Mat) {
	for i := 0; i < dst.R; i++ {
		row := dst.Row(i)
		for j := range row {
			row[j] = math.NaN()
		}
	}
}

func (w *Workspace) pade(dst *tensor.Mat) {
	w.out.Exp(w.a)
	for i := 0; i < w.n; i++ {
		row := dst.Row(i)
		for j := range row {
			row[j] = w.out.At(i, j)
		}
	}
}

// Complex writes exp(a) for a complex n×n matrix by exponentiating the real
// 2n×2n matrix [[A, -B], [B, A]] where a = A + iB. 2×2 inputs use the
// closed form.
func (w *Workspace) Complex(dst, a *tensor.CMat) {
	n := w.n
	if a.R != n || a.C != n {
		panic("expm: matrix size does not match workspace")
	}
	if !complexBounded(a) {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				dst.Set(i, j, cmplx.NaN())
			}
		}
		return
	}
	if n == 2 {
		Complex2(dst, a)
		return
	}
	if w.sub == nil {
		w.sub = NewWorkspace(2 * n)
		w.re = tensor.NewMat(2*n, 2*n)
		w.reOut = tensor.NewMat(2*n, 2*n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := a.At(i, j)
			w.re.Set(i, j, real(v))
			w.re.Set(i, j+n, -imag(v))
			w.re.Set(i+n, j, imag(v))
			w.re.Set(i+n, j+n, real(v))
		}
	}
	w.sub.Real(&w.reOut, &w.re)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dst.Set(i, j, complex(w.reOut.At(i, j), w.reOut.At(i+n, j)))
		}
	}
}

func complexBounded(a *tensor.CMat) bool {
	for i := 0; i < a.R; i++ {
		for j := 0; j < a.C; j++ {
			v := a.At(i, j)
			if !(math.Abs(real(v)) <= maxEntry && math.Abs(imag(v)) <= maxEntry) {
				return false
			}
		}
	}
	return true
}

// Complex2 writes exp(a) for a 2×2 complex matrix.
func Complex2(dst, a *tensor.CMat) {
	e := Exp2([4]complex128{a.At(0, 0), a.At(0, 1), a.At(1, 0), a.At(1, 1)})
	dst.Set(0, 0, e[0])
	dst.Set(0, 1, e[1])
	dst.Set(1, 0, e[2])
	dst.Set(1, 1, e[3])
}

// Exp2 is the closed-form exponential of the row-major 2×2 complex matrix a:
// exp(a) = e^m (cosh(δ)·I + sinh(δ)/δ·(a − m·I)), with m the half trace and
// δ² = ((a00 − a11)/2)² + a01·a10. The hyperbolic terms are formed from
// e^(m±δ) so that large opposing m and δ do not overflow.
func Exp2(a [4]complex128) [4]complex128 {
	p, q, r, s := a[0], a[1], a[2], a[3]
	m := (p + s) / 2
	h := (p - s) / 2
	delta := cmplx.Sqrt(h*h + q*r)

	ePos, eNeg := cmplx.Exp(m+delta), cmplx.Exp(m-delta)
	c := (ePos + eNeg) / 2
	var sh complex128 // e^m·sinh(δ)/δ
	if cmplx.Abs(delta) < 1e-4 {
		d2 := delta * delta
		sh = cmplx.Exp(m) * (1 + d2/6 + d2*d2/120)
	} else {
		sh = (ePos - eNeg) / (2 * delta)
	}
	return [4]complex128{
		c + sh*h,
		sh * q,
		sh * r,
		c - sh*h,
	}
}
