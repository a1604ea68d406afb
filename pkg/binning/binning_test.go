package binning

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestWhichBin(t *testing.T) {
	tests := []struct {
		value float64
		want  int
	}{
		{0.05, 0},
		{0.0, 0},
		{0.15, 1},
		{9.95, 99},
		{10.0, OutOfRange},
		{-0.01, OutOfRange},
		{math.NaN(), OutOfRange},
		{math.Inf(1), OutOfRange},
	}
	for _, tt := range tests {
		if got := WhichBin(tt.value, 100, 0.1, 0); got != tt.want {
			t.Errorf("WhichBin(%g) = %d, want %d", tt.value, got, tt.want)
		}
	}

	if got := WhichBin(1, 0, 0.1, 0); got != OutOfRange {
		t.Errorf("Expected OutOfRange for an empty axis, got %d", got)
	}
}

func TestAxis(t *testing.T) {
	a := NewAxis(0, 10, 101)
	if a.Bins() != 100 {
		t.Errorf("Expected 100 bins, got %d", a.Bins())
	}
	if !scalar.EqualWithinAbsOrRel(a.Delta(), 0.1, 1e-15, 1e-15) {
		t.Errorf("Expected delta 0.1, got %g", a.Delta())
	}
	if !scalar.EqualWithinAbsOrRel(a.Center(0), 0.05, 1e-15, 1e-15) {
		t.Errorf("Expected first center 0.05, got %g", a.Center(0))
	}
	if got := a.Bin(0.05); got != 0 {
		t.Errorf("Expected bin 0, got %d", got)
	}

	nodes := NewAxis(0, 0.5, 6).Nodes()
	if !floats.EqualApprox(nodes, []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5}, 1e-12) {
		t.Errorf("Unexpected nodes %v", nodes)
	}
	if nodes := NewAxis(0.2, 0.2, 1).Nodes(); len(nodes) != 1 || nodes[0] != 0.2 {
		t.Errorf("Unexpected single node %v", nodes)
	}

	if err := NewAxis(0, 1, 1).ValidateBinned(); err == nil {
		t.Error("Expected error for an axis with no bins")
	}
	if err := NewAxis(1, 0, 5).ValidateBinned(); err == nil {
		t.Error("Expected error for a reversed axis")
	}
	if err := NewAxis(0, 0, 1).ValidateSample(); err != nil {
		t.Errorf("Single sample node should be valid: %v", err)
	}
	if err := NewAxis(0, 1, 0).ValidateSample(); err == nil {
		t.Error("Expected error for an empty sample axis")
	}
}

func TestCoordinates(t *testing.T) {
	if got := Rho(r3.Vec{X: 3, Y: 4, Z: 7}); got != 5 {
		t.Errorf("Rho = %g, want 5", got)
	}

	up := r3.Vec{Z: -1}
	if got := ExitAngle(up, true); got != 0 {
		t.Errorf("Normal exit through top should have angle 0, got %g", got)
	}
	if got := ExitAngle(r3.Vec{Z: 1}, false); got != 0 {
		t.Errorf("Normal exit through bottom should have angle 0, got %g", got)
	}
	if got := PolarAngle(up); !scalar.EqualWithinAbs(got, math.Pi, 1e-15) {
		t.Errorf("PolarAngle(-z) = %g, want π", got)
	}
	// slightly out of [-1, 1] from round-off
	if got := PolarAngle(r3.Vec{Z: 1 + 1e-16}); got != 0 {
		t.Errorf("Expected clamped angle 0, got %g", got)
	}

	if got := AzimuthalAngle(r3.Vec{X: 0, Y: -1}); !scalar.EqualWithinAbs(got, 1.5*math.Pi, 1e-15) {
		t.Errorf("AzimuthalAngle = %g, want 3π/2", got)
	}
}

func TestJacobians(t *testing.T) {
	rho := NewAxis(0, 10, 101)
	want := 2 * math.Pi * 0.05 * 0.1
	if got := RadialJacobian(rho, 0); !scalar.EqualWithinRel(got, want, 1e-12) {
		t.Errorf("RadialJacobian = %g, want %g", got, want)
	}

	theta := NewAxis(0, math.Pi/2, 3)
	want = 2 * math.Pi * math.Sin(math.Pi/8) * math.Pi / 4
	if got := PolarJacobian(theta, 0); !scalar.EqualWithinRel(got, want, 1e-12) {
		t.Errorf("PolarJacobian = %g, want %g", got, want)
	}
	if got := SolidAngleJacobian(theta, 0); !scalar.EqualWithinRel(got, want/(2*math.Pi), 1e-12) {
		t.Errorf("SolidAngleJacobian = %g", got)
	}

	// the polar rings of a hemisphere add up to 2π to within the midpoint rule error
	fine := NewAxis(0, math.Pi/2, 1001)
	total := 0.0
	for i := 0; i < fine.Bins(); i++ {
		total += PolarJacobian(fine, i)
	}
	if !scalar.EqualWithinRel(total, 2*math.Pi, 1e-5) {
		t.Errorf("Hemisphere solid angle = %g, want 2π", total)
	}

	x := NewAxis(-1, 1, 5)
	if got := LinearJacobian(x, 2); got != 0.5 {
		t.Errorf("LinearJacobian = %g, want 0.5", got)
	}
	if got := UnitJacobian(x, 3); got != 1 {
		t.Errorf("UnitJacobian = %g, want 1", got)
	}
}
