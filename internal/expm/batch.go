package expm

import (
	"runtime"
	"sync"

	"github.com/samcharles93/relaxdisp/internal/tensor"
)

type batchTask struct {
	run  func()
	done chan struct{}
}

type batchPool struct {
	size      int
	tasks     chan batchTask
	doneSlots chan chan struct{}
}

var expmWorkPool *batchPool

var expmPoolOnce sync.Once

func getBatchPool() *batchPool {
	expmPoolOnce.Do(func() {
		expmWorkPool = newBatchPool()
	})
	return expmWorkPool
}

func newBatchPool() *batchPool {
	size := max(runtime.GOMAXPROCS(0), 1)
	p := &batchPool{
		size:      size,
		tasks:     make(chan batchTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, 1)
	}
	for i := 0; i < size; i++ {
		go func() {
			for task := range p.tasks {
				task.run()
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// Batch exponentiates many n×n matrices stored back to back in one slice.
// With Workers <= 1 it runs on the caller's goroutine; otherwise the batch is
// split into contiguous chunks executed on a shared worker pool.
type Batch struct {
	n       int
	workers int
	ws      []*Workspace
	views   []chunkView
}

type chunkView struct {
	src, dst   tensor.Mat
	csrc, cdst tensor.CMat
}

// NewBatch returns a batch exponentiator for n×n matrices.
func NewBatch(n, workers int) *Batch {
	workers = max(workers, 1)
	b := &Batch{n: n, workers: workers}
	b.ws = make([]*Workspace, workers)
	b.views = make([]chunkView, workers)
	for i := range b.ws {
		b.ws[i] = NewWorkspace(n)
	}
	return b
}

// Size is the matrix dimension.
func (b *Batch) Size() int { return b.n }

// Real writes exp(src[k]) into dst[k] for every matrix in the batch. Both
// slices hold count·n·n elements in row-major order.
func (b *Batch) Real(dst, src []float64) {
	nn := b.n * b.n
	if len(src)%nn != 0 || len(dst) < len(src) {
		panic("expm: batch length mismatch")
	}
	count := len(src) / nn
	b.each(count, func(w int, rs, re int) {
		v := &b.views[w]
		for k := rs; k < re; k++ {
			v.src = tensor.NewMatFromData(b.n, b.n, src[k*nn:(k+1)*nn])
			v.dst = tensor.NewMatFromData(b.n, b.n, dst[k*nn:(k+1)*nn])
			b.ws[w].Real(&v.dst, &v.src)
		}
	})
}

// Complex is the complex-valued counterpart of Real.
func (b *Batch) Complex(dst, src []complex128) {
	nn := b.n * b.n
	if len(src)%nn != 0 || len(dst) < len(src) {
		panic("expm: batch length mismatch")
	}
	count := len(src) / nn
	b.each(count, func(w int, rs, re int) {
		v := &b.views[w]
		for k := rs; k < re; k++ {
			v.csrc = tensor.CMat{R: b.n, C: b.n, Stride: b.n, Data: src[k*nn : (k+1)*nn]}
			v.cdst = tensor.CMat{R: b.n, C: b.n, Stride: b.n, Data: dst[k*nn : (k+1)*nn]}
			b.ws[w].Complex(&v.cdst, &v.csrc)
		}
	})
}

func (b *Batch) each(count int, fn func(w, rs, re int)) {
	if count == 0 {
		return
	}
	if b.workers <= 1 || count == 1 {
		fn(0, 0, count)
		return
	}

	pool := getBatchPool()
	workers := min(b.workers, count, pool.size)
	chunk := (count + workers - 1) / workers
	done := <-pool.doneSlots

	active := 0
	for i := 0; i < workers; i++ {
		rs := i * chunk
		re := min(rs+chunk, count)
		if rs >= re {
			break
		}
		active++
		w := i
		pool.tasks <- batchTask{
			run:  func() { fn(w, rs, re) },
			done: done,
		}
	}

	for i := 0; i < active; i++ {
		<-done
	}
	pool.doneSlots <- done
}
