// Package accumulator holds the dense Mean / SecondMoment / TallyCount
// storage shared by every estimator.
//
// Data is kept in a flat buffer described by a shape and row-major strides
// (last axis fastest). A rank-0 accumulator has a single cell.
package accumulator

import (
	"errors"
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNormalized is returned for any mutation after Normalize.
	ErrNormalized = errors.New("accumulator already normalized")

	// ErrShapeMismatch is returned when merging accumulators of different
	// shape or value kind.
	ErrShapeMismatch = errors.New("accumulator shape mismatch")
)

// Accumulator is the raw and, after Normalize, physical state of one
// estimator.
type Accumulator struct {
	shape   []int
	strides []int
	size    int

	isComplex bool
	mean      []float64
	cmean     []complex128

	// secondMoment is nil when second-moment tracking is disabled
	secondMoment []float64

	// per-photon scratch for the second moment
	scratch  []complex128
	touched  []int
	inPhoton []bool

	tallyCount int64
	normalized bool
}

// New allocates a zeroed accumulator. An empty shape gives a scalar.
func New(shape []int, complexValued, trackSecondMoment bool) *Accumulator {
	a := &Accumulator{
		shape:     append([]int(nil), shape...),
		strides:   make([]int, len(shape)),
		isComplex: complexValued,
	}
	a.size = 1
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] < 0 {
			panic(fmt.Sprintf("accumulator: negative dimension %d", shape[i]))
		}
		a.strides[i] = a.size
		a.size *= shape[i]
	}

	if complexValued {
		a.cmean = make([]complex128, a.size)
	} else {
		a.mean = make([]float64, a.size)
	}
	if trackSecondMoment {
		a.secondMoment = make([]float64, a.size)
		a.scratch = make([]complex128, a.size)
		a.inPhoton = make([]bool, a.size)
	}
	return a
}

// Shape returns the per-axis bin counts.
func (a *Accumulator) Shape() []int { return append([]int(nil), a.shape...) }

// Strides returns the row-major strides matching Shape.
func (a *Accumulator) Strides() []int { return append([]int(nil), a.strides...) }

// Size is the number of cells.
func (a *Accumulator) Size() int { return a.size }

// IsComplex reports whether Mean is complex valued.
func (a *Accumulator) IsComplex() bool { return a.isComplex }

// TracksSecondMoment reports whether a second moment is being kept.
func (a *Accumulator) TracksSecondMoment() bool { return a.secondMoment != nil }

// TallyCount is the number of accepted events.
func (a *Accumulator) TallyCount() int64 { return a.tallyCount }

// Normalized reports whether Normalize has run.
func (a *Accumulator) Normalized() bool { return a.normalized }

// Mean returns the real mean buffer (nil for complex accumulators). The
// slice aliases internal storage and must be treated as read-only.
func (a *Accumulator) Mean() []float64 { return a.mean }

// ComplexMean returns the complex mean buffer (nil for real accumulators).
func (a *Accumulator) ComplexMean() []complex128 { return a.cmean }

// SecondMoment returns the second-moment buffer, nil when disabled.
func (a *Accumulator) SecondMoment() []float64 { return a.secondMoment }

// Index converts per-axis indices to a flat offset. It panics when the
// number of indices does not match the rank or an index is out of bounds.
func (a *Accumulator) Index(idx ...int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("accumulator: %d indices for rank %d", len(idx), len(a.shape)))
	}
	flat := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			panic(fmt.Sprintf("accumulator: index %d out of range [0,%d) on axis %d", v, a.shape[i], i))
		}
		flat += v * a.strides[i]
	}
	return flat
}

// Unravel converts a flat offset back to per-axis indices.
func (a *Accumulator) Unravel(flat int) []int {
	idx := make([]int, len(a.shape))
	for i, s := range a.strides {
		idx[i] = flat / s
		flat %= s
	}
	return idx
}

// Add adds a real contribution to cell flat.
func (a *Accumulator) Add(flat int, w float64) error {
	if a.normalized {
		return ErrNormalized
	}
	if a.isComplex {
		a.cmean[flat] += complex(w, 0)
	} else {
		a.mean[flat] += w
	}
	a.record(flat, complex(w, 0))
	return nil
}

// AddComplex adds a complex contribution to cell flat. Real accumulators
// only receive the real part.
func (a *Accumulator) AddComplex(flat int, w complex128) error {
	if a.normalized {
		return ErrNormalized
	}
	if a.isComplex {
		a.cmean[flat] += w
	} else {
		a.mean[flat] += real(w)
	}
	a.record(flat, w)
	return nil
}

func (a *Accumulator) record(flat int, w complex128) {
	if a.secondMoment == nil {
		return
	}
	if !a.inPhoton[flat] {
		a.inPhoton[flat] = true
		a.touched = append(a.touched, flat)
	}
	a.scratch[flat] += w
}

// Increment counts one accepted event.
func (a *Accumulator) Increment() {
	a.tallyCount++
}

// EndPhoton folds the contributions of the current photon into the second
// moment: each touched cell receives |Σw|². For a single real or complex
// event of weight w this is w², since cos²+sin² = 1.
func (a *Accumulator) EndPhoton() {
	if a.secondMoment == nil {
		return
	}
	for _, flat := range a.touched {
		v := cmplx.Abs(a.scratch[flat])
		a.secondMoment[flat] += v * v
		a.scratch[flat] = 0
		a.inPhoton[flat] = false
	}
	a.touched = a.touched[:0]
}

// Sum returns the sum of the real mean buffer, or of the real parts for a
// complex accumulator.
func (a *Accumulator) Sum() float64 {
	if !a.isComplex {
		return floats.Sum(a.mean)
	}
	s := 0.0
	for _, v := range a.cmean {
		s += real(v)
	}
	return s
}

// Compatible reports whether b has the same shape, value kind and second
// moment setting as a.
func (a *Accumulator) Compatible(b *Accumulator) bool {
	if a.isComplex != b.isComplex || len(a.shape) != len(b.shape) {
		return false
	}
	if (a.secondMoment == nil) != (b.secondMoment == nil) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

// Merge adds the raw sums of b into a. Neither side may be normalized and b
// must be compatible with a.
func (a *Accumulator) Merge(b *Accumulator) error {
	if a.normalized || b.normalized {
		return ErrNormalized
	}
	if !a.Compatible(b) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.shape, b.shape)
	}
	if a.isComplex {
		for i, v := range b.cmean {
			a.cmean[i] += v
		}
	} else {
		floats.Add(a.mean, b.mean)
	}
	if a.secondMoment != nil {
		floats.Add(a.secondMoment, b.secondMoment)
	}
	a.tallyCount += b.tallyCount
	return nil
}

// Normalize divides every cell's mean by n·J(cell) and its second moment by
// n·J(cell)². jacobian may be nil, meaning J = 1 everywhere. It may only
// run once.
func (a *Accumulator) Normalize(n int64, jacobian func(flat int) float64) error {
	if a.normalized {
		return ErrNormalized
	}
	if n <= 0 {
		return fmt.Errorf("normalize: photon count must be positive, got %d", n)
	}
	for flat := 0; flat < a.size; flat++ {
		j := 1.0
		if jacobian != nil {
			j = jacobian(flat)
		}
		norm := float64(n) * j
		if a.isComplex {
			a.cmean[flat] /= complex(norm, 0)
		} else {
			a.mean[flat] /= norm
		}
		if a.secondMoment != nil {
			a.secondMoment[flat] /= norm * j
		}
	}
	a.normalized = true
	return nil
}
