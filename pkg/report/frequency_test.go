package report

import (
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/VirtualPhotonics/VTS-sub001/pkg/binning"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/detector"
)

func TestFrequencyResponse(t *testing.T) {
	// dt = 0.25 ns, bin centers at 0.125 + 0.25j
	res := &Result{
		Name:      "ROfRhoAndTime",
		TallyType: detector.ROfRhoAndTime,
		AxisNames: []string{detector.AxisRho, detector.AxisTime},
		Axes:      []binning.Axis{binning.NewAxis(0, 1, 3), binning.NewAxis(0, 1, 5)},
		Shape:     []int{2, 4},
		Mean: []float64{
			2, 0, 0, 0,
			1, 1, 1, 1,
		},
		NumPhotons: 10,
	}
	out, err := FrequencyResponse(res)
	if err != nil {
		t.Fatal(err)
	}
	if out.Shape[0] != 2 || out.Shape[1] != 3 {
		t.Fatalf("Expected shape [2 3], got %v", out.Shape)
	}
	if out.AxisNames[1] != detector.AxisOmega || out.Axes[1] != binning.NewAxis(0, 2, 3) {
		t.Errorf("Unexpected frequency axis %v %+v", out.AxisNames, out.Axes[1])
	}

	// delta in the first bin: 2·dt·exp(-i2π·f·t0) with f = 0, 1, 2 GHz
	for k := 0; k < 3; k++ {
		got, err := out.ComplexAt(0, k)
		if err != nil {
			t.Fatal(err)
		}
		want := 0.5 * cmplx.Exp(complex(0, -2*math.Pi*float64(k)*0.125))
		if cmplx.Abs(got-want) > 1e-12 {
			t.Errorf("k=%d: expected %v, got %v", k, want, got)
		}
	}

	// the zero frequency is the time integral
	dc, _ := out.ComplexAt(1, 0)
	if !scalar.EqualWithinAbs(real(dc), 1, 1e-12) || !scalar.EqualWithinAbs(imag(dc), 0, 1e-12) {
		t.Errorf("Expected DC value 1, got %v", dc)
	}
}

func TestFrequencyResponseErrors(t *testing.T) {
	noTime := &Result{
		Name:      "ROfRho",
		AxisNames: []string{detector.AxisRho},
		Axes:      []binning.Axis{binning.NewAxis(0, 1, 3)},
		Shape:     []int{2},
		Mean:      []float64{1, 2},
	}
	if _, err := FrequencyResponse(noTime); err == nil {
		t.Error("Expected error for a result without a time axis")
	}

	complexRes := &Result{
		Name:        "ROfFxAndTime",
		AxisNames:   []string{detector.AxisFx, detector.AxisTime},
		Axes:        []binning.Axis{binning.NewAxis(0, 1, 2), binning.NewAxis(0, 1, 3)},
		Shape:       []int{2, 2},
		ComplexMean: make([]complex128, 4),
	}
	if _, err := FrequencyResponse(complexRes); err == nil {
		t.Error("Expected error for a complex result")
	}
}
