package tensor

import "fmt"

// Shape is the extent of the dispersion index space: experiment type, spin,
// field, offset and dispersion point. Tensors are laid out row-major in
// exactly that order, so the O×D block belonging to one (experiment, spin,
// field) triple is contiguous.
type Shape struct {
	NE, NS, NM, NO, ND int
}

// Size returns the number of elements in a tensor of this shape.
func (s Shape) Size() int {
	return s.NE * s.NS * s.NM * s.NO * s.ND
}

// Valid reports whether every axis is non-empty.
func (s Shape) Valid() bool {
	return s.NE > 0 && s.NS > 0 && s.NM > 0 && s.NO > 0 && s.ND > 0
}

// Index returns the flat offset of element (e, si, m, o, d).
func (s Shape) Index(e, si, m, o, d int) int {
	return (((e*s.NS+si)*s.NM+m)*s.NO+o)*s.ND + d
}

// BlockIndex returns the flat offset of the first element of the O×D block
// for (e, si, m).
func (s Shape) BlockIndex(e, si, m int) int {
	return ((e*s.NS+si)*s.NM + m) * s.NO * s.ND
}

// BlockLen is the length of one O×D block.
func (s Shape) BlockLen() int { return s.NO * s.ND }

// Coords is the inverse of Index.
func (s Shape) Coords(i int) (e, si, m, o, d int) {
	d = i % s.ND
	i /= s.ND
	o = i % s.NO
	i /= s.NO
	m = i % s.NM
	i /= s.NM
	si = i % s.NS
	e = i / s.NS
	return
}

// Memory is the footprint in bytes of one float64 tensor of this shape.
func (s Shape) Memory() uint64 {
	return uint64(s.Size()) * 8
}

func (s Shape) String() string {
	return fmt.Sprintf("(E=%d, S=%d, M=%d, O=%d, D=%d)", s.NE, s.NS, s.NM, s.NO, s.ND)
}
