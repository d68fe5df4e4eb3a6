package dispersion

import (
	"github.com/samcharles93/relaxdisp/internal/expm"
	"github.com/samcharles93/relaxdisp/internal/tensor"
)

// scratch is the per-evaluator workspace of the numeric models.
type scratch struct {
	workers int
	batches map[int]*expm.Batch

	idx     []int
	real    []float64
	realOut []float64
	cplx    []complex128
	cplxOut []complex128

	pow   tensor.PowScratch
	cpow  tensor.CPowScratch
	mats  []tensor.Mat
	cms   []tensor.CMat
	chain tensor.CMat
	cvec  []complex128
}

func newScratch(workers int) *scratch {
	return &scratch{workers: max(workers, 1), batches: make(map[int]*expm.Batch)}
}

func (s *scratch) batch(n int) *expm.Batch {
	b, ok := s.batches[n]
	if !ok {
		b = expm.NewBatch(n, s.workers)
		s.batches[n] = b
	}
	return b
}

// realBuffers returns zeroed input and output slices for count n×n real
// matrices.
func (s *scratch) realBuffers(count, n int) (src, dst []float64) {
	size := count * n * n
	if cap(s.real) < size {
		s.real = make([]float64, size)
		s.realOut = make([]float64, size)
	}
	src, dst = s.real[:size], s.realOut[:size]
	clear(src)
	return src, dst
}

func (s *scratch) complexBuffers(count, n int) (src, dst []complex128) {
	size := count * n * n
	if cap(s.cplx) < size {
		s.cplx = make([]complex128, size)
		s.cplxOut = make([]complex128, size)
	}
	src, dst = s.cplx[:size], s.cplxOut[:size]
	clear(src)
	return src, dst
}

// numericEntries collects the active entries that need a propagator. Entries
// for which skip returns true get their value from the caller instead.
func (s *scratch) numericEntries(d *Data, skip func(i int) bool) []int {
	s.idx = s.idx[:0]
	for i, a := range d.active.Data {
		if a && !skip(i) {
			s.idx = append(s.idx, i)
		}
	}
	return s.idx
}

func realMat(buf []float64, k, n int) tensor.Mat {
	return tensor.NewMatFromData(n, n, buf[k*n*n:(k+1)*n*n])
}

func complexMat(buf []complex128, k, n int) tensor.CMat {
	return tensor.CMat{R: n, C: n, Stride: n, Data: buf[k*n*n : (k+1)*n*n]}
}

// realMats returns count reusable n×n real matrices.
func (s *scratch) realMats(count, n int) []tensor.Mat {
	if len(s.mats) < count || s.mats[0].R != n {
		s.mats = make([]tensor.Mat, count)
		for k := range s.mats {
			s.mats[k] = tensor.NewMat(n, n)
		}
	}
	return s.mats[:count]
}

// cmats returns three reusable n×n complex matrices.
func (s *scratch) cmats(n int) (a, b, c *tensor.CMat) {
	ms := s.complexMats(3, n)
	return &ms[0], &ms[1], &ms[2]
}

func (s *scratch) complexMats(count, n int) []tensor.CMat {
	if len(s.cms) < count || s.cms[0].R != n {
		s.cms = make([]tensor.CMat, count)
		for k := range s.cms {
			s.cms[k] = tensor.NewCMat(n, n)
		}
	}
	return s.cms[:count]
}

func (s *scratch) vec(n int) []complex128 {
	if cap(s.cvec) < n {
		s.cvec = make([]complex128, n)
	}
	return s.cvec[:n]
}
