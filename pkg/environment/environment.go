// Package environment adapts the classification and control domains to the
// core.LearningEnvironment contract.
package environment

import (
	"math/rand/v2"

	"github.com/boristopalov/tangle/pkg/core"
)

// Buffer is a fixed-size row-major grid exposed to policies as a data source.
// It is owned by one environment instance and overwritten in place.
type Buffer struct {
	rows int
	cols int
	data []float64
}

var _ core.DataSource = (*Buffer)(nil)

func NewBuffer(rows, cols int) *Buffer {
	return &Buffer{
		rows: rows,
		cols: cols,
		data: make([]float64, rows*cols),
	}
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) At(i int) float64 {
	return b.data[i]
}

func (b *Buffer) Dims() (rows, cols int) {
	return b.rows, b.cols
}

// Load copies src into the buffer. src must hold exactly Len() values.
func (b *Buffer) Load(src []float64) {
	copy(b.data, src)
}

func (b *Buffer) Set(i int, v float64) {
	b.data[i] = v
}

func (b *Buffer) clone() *Buffer {
	c := &Buffer{rows: b.rows, cols: b.cols, data: make([]float64, len(b.data))}
	copy(c.data, b.data)
	return c
}

// generator is a seedable random source whose full state can be duplicated
type generator struct {
	src *rand.PCG
	rng *rand.Rand
}

func newGenerator(seed1, seed2 uint64) generator {
	src := rand.NewPCG(seed1, seed2)
	return generator{src: src, rng: rand.New(src)}
}

func (g generator) clone() generator {
	src := *g.src
	return generator{src: &src, rng: rand.New(&src)}
}
