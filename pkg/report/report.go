// Package report exposes the normalized detector results of a run as
// read-only values.
package report

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/VirtualPhotonics/VTS-sub001/pkg/accumulator"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/binning"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/controller"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/detector"
)

// Report is the outcome of one run.
type Report struct {
	RunID      uuid.UUID
	NumPhotons int64
	Results    []*Result
}

// Result is a snapshot of one normalized tensor. Data is row-major with the
// last axis fastest.
type Result struct {
	Name      string
	TallyType detector.TallyType
	AxisNames []string
	Axes      []binning.Axis
	Shape     []int

	// Mean is set for real results, ComplexMean for complex ones
	Mean        []float64
	ComplexMean []complex128

	// SecondMoment is nil when it was not tracked
	SecondMoment []float64

	TallyCount int64
	NumPhotons int64

	// Auxiliary holds extra tensors such as FractionalMT
	Auxiliary map[string]*Result
}

// Collect snapshots every detector of a normalized controller.
func Collect(c *controller.Controller, numPhotons int64) (*Report, error) {
	r := &Report{RunID: uuid.New(), NumPhotons: numPhotons}
	for _, d := range c.Detectors() {
		res, err := newResult(d.Name(), d.TallyType(), d.AxisNames(), d.Accumulator(), numPhotons)
		if err != nil {
			return nil, err
		}
		res.Axes = d.AxisRanges()
		if aux, ok := d.(detector.Auxiliary); ok {
			names := make([]string, 0, len(aux.Auxiliary()))
			for name := range aux.Auxiliary() {
				names = append(names, name)
			}
			sort.Strings(names)
			res.Auxiliary = make(map[string]*Result, len(names))
			for _, name := range names {
				a, err := newResult(d.Name()+"."+name, d.TallyType(), nil, aux.Auxiliary()[name], numPhotons)
				if err != nil {
					return nil, err
				}
				res.Auxiliary[name] = a
			}
		}
		r.Results = append(r.Results, res)
	}
	return r, nil
}

func newResult(name string, tt detector.TallyType, axes []string, acc *accumulator.Accumulator, n int64) (*Result, error) {
	if !acc.Normalized() {
		return nil, fmt.Errorf("detector %q (%s): results are not normalized", name, tt)
	}
	res := &Result{
		Name:       name,
		TallyType:  tt,
		AxisNames:  append([]string(nil), axes...),
		Shape:      acc.Shape(),
		TallyCount: acc.TallyCount(),
		NumPhotons: n,
	}
	if acc.IsComplex() {
		res.ComplexMean = append([]complex128(nil), acc.ComplexMean()...)
	} else {
		res.Mean = append([]float64(nil), acc.Mean()...)
	}
	if sm := acc.SecondMoment(); sm != nil {
		res.SecondMoment = append([]float64(nil), sm...)
	}
	return res, nil
}

// Result returns the named result.
func (r *Report) Result(name string) (*Result, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return nil, false
}

// IsComplex reports whether the result holds complex values.
func (r *Result) IsComplex() bool { return r.ComplexMean != nil }

// Rank is the number of axes.
func (r *Result) Rank() int { return len(r.Shape) }

// Size is the number of cells.
func (r *Result) Size() int {
	if r.IsComplex() {
		return len(r.ComplexMean)
	}
	return len(r.Mean)
}

func (r *Result) index(idx []int) (int, error) {
	if len(idx) != len(r.Shape) {
		return 0, fmt.Errorf("%s: %d indices for rank %d", r.Name, len(idx), len(r.Shape))
	}
	flat := 0
	for i, v := range idx {
		if v < 0 || v >= r.Shape[i] {
			return 0, fmt.Errorf("%s: index %d out of range [0,%d) on axis %d", r.Name, v, r.Shape[i], i)
		}
		flat = flat*r.Shape[i] + v
	}
	return flat, nil
}

// At returns the real mean at idx; for complex results the real part.
func (r *Result) At(idx ...int) (float64, error) {
	flat, err := r.index(idx)
	if err != nil {
		return 0, err
	}
	if r.IsComplex() {
		return real(r.ComplexMean[flat]), nil
	}
	return r.Mean[flat], nil
}

// ComplexAt returns the mean at idx as a complex number.
func (r *Result) ComplexAt(idx ...int) (complex128, error) {
	flat, err := r.index(idx)
	if err != nil {
		return 0, err
	}
	if r.IsComplex() {
		return r.ComplexMean[flat], nil
	}
	return complex(r.Mean[flat], 0), nil
}

// Total is the sum over all cells of the real mean.
func (r *Result) Total() float64 {
	if !r.IsComplex() {
		return floats.Sum(r.Mean)
	}
	s := 0.0
	for _, v := range r.ComplexMean {
		s += real(v)
	}
	return s
}

// StandardError returns sqrt((SM − |Mean|²)/N) per cell, or nil when the
// second moment was not tracked. Negative variances from rounding are
// clamped to zero.
func (r *Result) StandardError() []float64 {
	if r.SecondMoment == nil || r.NumPhotons <= 0 {
		return nil
	}
	se := make([]float64, len(r.SecondMoment))
	for i, sm := range r.SecondMoment {
		var m float64
		if r.IsComplex() {
			m = cmplx.Abs(r.ComplexMean[i])
		} else {
			m = r.Mean[i]
		}
		v := sm - m*m
		if v < 0 {
			v = 0
		}
		se[i] = stat.StdErr(math.Sqrt(v), float64(r.NumPhotons))
	}
	return se
}

// Dense returns a rank-2 real result as a matrix, rows indexing the first
// axis.
func (r *Result) Dense() (*mat.Dense, error) {
	if r.Rank() != 2 {
		return nil, fmt.Errorf("%s: Dense needs a rank-2 result, got rank %d", r.Name, r.Rank())
	}
	if r.IsComplex() {
		return nil, fmt.Errorf("%s: Dense needs a real result", r.Name)
	}
	return mat.NewDense(r.Shape[0], r.Shape[1], append([]float64(nil), r.Mean...)), nil
}
