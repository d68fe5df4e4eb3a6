package tensor

// Tensor is a dense float64 array over a Shape.
type Tensor struct {
	Shape Shape
	Data  []float64
}

// NewTensor allocates a zero-filled tensor.
func NewTensor(s Shape) Tensor {
	if s.NE < 0 || s.NS < 0 || s.NM < 0 || s.NO < 0 || s.ND < 0 {
		panic(errNegativeDim)
	}
	return Tensor{Shape: s, Data: make([]float64, s.Size())}
}

// Full allocates a tensor with every element set to v.
func Full(s Shape, v float64) Tensor {
	t := NewTensor(s)
	t.Fill(v)
	return t
}

func (t Tensor) At(e, si, m, o, d int) float64 {
	return t.Data[t.Shape.Index(e, si, m, o, d)]
}

func (t Tensor) Set(e, si, m, o, d int, v float64) {
	t.Data[t.Shape.Index(e, si, m, o, d)] = v
}

// Point returns a view of the dispersion axis at (e, si, m, o).
func (t Tensor) Point(e, si, m, o int) []float64 {
	off := t.Shape.Index(e, si, m, o, 0)
	return t.Data[off : off+t.Shape.ND]
}

// Block returns a view of the O×D block at (e, si, m).
func (t Tensor) Block(e, si, m int) []float64 {
	off := t.Shape.BlockIndex(e, si, m)
	return t.Data[off : off+t.Shape.BlockLen()]
}

// Fill sets every element to v.
func (t Tensor) Fill(v float64) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// FillBlock broadcasts v over the O×D block at (e, si, m).
func (t Tensor) FillBlock(e, si, m int, v float64) {
	b := t.Block(e, si, m)
	for i := range b {
		b[i] = v
	}
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	out := Tensor{Shape: t.Shape, Data: make([]float64, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

// Mask is a boolean array over a Shape.
type Mask struct {
	Shape Shape
	Data  []bool
}

// NewMask allocates an all-false mask.
func NewMask(s Shape) Mask {
	if s.NE < 0 || s.NS < 0 || s.NM < 0 || s.NO < 0 || s.ND < 0 {
		panic(errNegativeDim)
	}
	return Mask{Shape: s, Data: make([]bool, s.Size())}
}

func (m Mask) At(e, si, mi, o, d int) bool {
	return m.Data[m.Shape.Index(e, si, mi, o, d)]
}

func (m Mask) Set(e, si, mi, o, d int, v bool) {
	m.Data[m.Shape.Index(e, si, mi, o, d)] = v
}

// Count returns the number of true entries.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}
