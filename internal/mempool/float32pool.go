// Package mempool pools float32 buffers used for per-image input tensors.
package mempool

import (
	"sync"
)

const classStep = 1024

// Float32Pool hands out []float32 buffers bucketed by size class.
// The zero value is ready to use and safe for concurrent use.
type Float32Pool struct {
	classes sync.Map // size class (int) -> *sync.Pool
}

var defaultPool Float32Pool

// sizeClass rounds n up to the next multiple of classStep (minimum classStep).
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return ((n + classStep - 1) / classStep) * classStep
}

func (p *Float32Pool) poolFor(cls int) *sync.Pool {
	v, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]float32, cls)
		return &buf
	}})
	return v.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// Get returns a buffer of length n. When zero is true every element is 0,
// otherwise contents are unspecified.
func (p *Float32Pool) Get(n int, zero bool) []float32 {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	bp, ok := p.poolFor(cls).Get().(*[]float32)
	if !ok || cap(*bp) < cls {
		buf := make([]float32, cls)
		bp = &buf
	}
	buf := (*bp)[:n]
	if zero {
		clear(buf)
	}
	return buf
}

// Put returns a buffer obtained from Get. Nil and foreign undersized slices
// are ignored.
func (p *Float32Pool) Put(buf []float32) {
	if cap(buf) < classStep {
		return
	}
	// floor to the class the capacity fully covers so Get never sees a short buffer
	cls := (cap(buf) / classStep) * classStep
	full := buf[:cls]
	p.poolFor(cls).Put(&full)
}

// GetFloat32 takes a zeroed buffer of length n from the shared pool.
func GetFloat32(n int) []float32 {
	return defaultPool.Get(n, true)
}

// PutFloat32 returns a buffer to the shared pool.
func PutFloat32(buf []float32) {
	defaultPool.Put(buf)
}
