package report

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/VirtualPhotonics/VTS-sub001/pkg/binning"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/detector"
)

// FrequencyResponse converts a real result whose last axis is time into
// the temporal-frequency domain:
//
//	R(f) = Σ_j R(t_j)·Δt·exp(-i2π·f·t_j)
//
// with t_j the bin centers. The last axis becomes an omega axis of n/2+1
// frequencies from 0 to the Nyquist frequency, in GHz for times in ns.
func FrequencyResponse(res *Result) (*Result, error) {
	last := res.Rank() - 1
	if last < 0 || len(res.AxisNames) != res.Rank() || res.AxisNames[last] != detector.AxisTime {
		return nil, fmt.Errorf("%s: last axis is not time", res.Name)
	}
	if res.IsComplex() {
		return nil, fmt.Errorf("%s: result is already complex", res.Name)
	}
	if len(res.Axes) != res.Rank() {
		return nil, fmt.Errorf("%s: missing axis ranges", res.Name)
	}

	timeAxis := res.Axes[last]
	n := res.Shape[last]
	dt := timeAxis.Delta()
	t0 := timeAxis.Center(0)

	fft := fourier.NewFFT(n)
	nf := n/2 + 1
	freqs := make([]float64, nf)
	shift := make([]complex128, nf)
	for k := range freqs {
		freqs[k] = fft.Freq(k) / dt
		shift[k] = complex(dt, 0) * cmplx.Exp(complex(0, -2*math.Pi*freqs[k]*t0))
	}

	rows := len(res.Mean) / n
	out := &Result{
		Name:        res.Name + "." + detector.AxisOmega,
		TallyType:   res.TallyType,
		AxisNames:   append(append([]string(nil), res.AxisNames[:last]...), detector.AxisOmega),
		Axes:        append(append([]binning.Axis(nil), res.Axes[:last]...), binning.NewAxis(0, freqs[nf-1], nf)),
		Shape:       append(append([]int(nil), res.Shape[:last]...), nf),
		ComplexMean: make([]complex128, rows*nf),
		TallyCount:  res.TallyCount,
		NumPhotons:  res.NumPhotons,
	}
	coeff := make([]complex128, nf)
	for r := 0; r < rows; r++ {
		fft.Coefficients(coeff, res.Mean[r*n:(r+1)*n])
		for k, c := range coeff {
			out.ComplexMean[r*nf+k] = c * shift[k]
		}
	}
	return out, nil
}
