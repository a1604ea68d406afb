// Package binning maps physical coordinates to bin indices and provides the
// geometric Jacobians used to turn raw tallies into physical quantities.
package binning

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// OutOfRange is returned by WhichBin for values outside the binned domain.
const OutOfRange = -1

// Axis is an evenly spaced range of Count nodes from Start to Stop. Used as
// a binned axis it has Count-1 bins; used as a sample axis (spatial or
// temporal frequencies) its Count nodes are the sample values.
type Axis struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Count int     `yaml:"count"`
}

// NewAxis is a convenience constructor.
func NewAxis(start, stop float64, count int) Axis {
	return Axis{Start: start, Stop: stop, Count: count}
}

// Delta is the node spacing.
func (a Axis) Delta() float64 {
	if a.Count < 2 {
		return 0
	}
	return (a.Stop - a.Start) / float64(a.Count-1)
}

// Bins is the number of bins of a binned axis.
func (a Axis) Bins() int {
	if a.Count < 2 {
		return 0
	}
	return a.Count - 1
}

// Center returns the midpoint of bin i.
func (a Axis) Center(i int) float64 {
	return a.Start + (float64(i)+0.5)*a.Delta()
}

// Nodes returns the Count node values.
func (a Axis) Nodes() []float64 {
	switch {
	case a.Count <= 0:
		return nil
	case a.Count == 1:
		return []float64{a.Start}
	}
	return floats.Span(make([]float64, a.Count), a.Start, a.Stop)
}

// ValidateBinned checks that the axis describes at least one bin of
// positive width.
func (a Axis) ValidateBinned() error {
	if a.Count < 2 {
		return fmt.Errorf("axis needs at least 2 nodes, got %d", a.Count)
	}
	if !(a.Stop > a.Start) {
		return fmt.Errorf("axis stop %g must exceed start %g", a.Stop, a.Start)
	}
	return nil
}

// ValidateSample checks that the axis has at least one sample node.
func (a Axis) ValidateSample() error {
	if a.Count < 1 {
		return fmt.Errorf("sample axis needs at least 1 node, got %d", a.Count)
	}
	if a.Count > 1 && a.Stop < a.Start {
		return fmt.Errorf("sample axis stop %g is below start %g", a.Stop, a.Start)
	}
	return nil
}

// WhichBin returns floor((value-start)/delta), or OutOfRange when that index
// falls outside [0, binCount).
func WhichBin(value float64, binCount int, delta, start float64) int {
	if delta <= 0 || binCount <= 0 {
		return OutOfRange
	}
	f := math.Floor((value - start) / delta)
	if math.IsNaN(f) || f < 0 || f >= float64(binCount) {
		return OutOfRange
	}
	return int(f)
}

// Bin locates value on a binned axis.
func (a Axis) Bin(value float64) int {
	return WhichBin(value, a.Bins(), a.Delta(), a.Start)
}

// Rho is the radial distance of pos from the z axis.
func Rho(pos r3.Vec) float64 {
	return math.Hypot(pos.X, pos.Y)
}

// PolarAngle is the angle between dir and +z, in [0, π].
func PolarAngle(dir r3.Vec) float64 {
	return math.Acos(clampCos(dir.Z))
}

// ExitAngle is the angle between dir and the outward surface normal: -z for
// photons leaving through the top surface, +z through the bottom. The result
// lies in [0, π/2] for a photon that actually exits.
func ExitAngle(dir r3.Vec, top bool) float64 {
	if top {
		return math.Acos(clampCos(-dir.Z))
	}
	return math.Acos(clampCos(dir.Z))
}

// AzimuthalAngle is the angle of dir in the x-y plane, in [0, 2π).
func AzimuthalAngle(dir r3.Vec) float64 {
	phi := math.Atan2(dir.Y, dir.X)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	return phi
}

func clampCos(c float64) float64 {
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

// Jacobian returns the geometric measure of bin i of an axis.
type Jacobian func(a Axis, i int) float64

// RadialJacobian is the annulus area 2π·ρ·Δρ.
func RadialJacobian(a Axis, i int) float64 {
	return 2 * math.Pi * a.Center(i) * a.Delta()
}

// PolarJacobian is the solid angle 2π·sinθ·Δθ of a polar ring.
func PolarJacobian(a Axis, i int) float64 {
	return 2 * math.Pi * math.Sin(a.Center(i)) * a.Delta()
}

// SolidAngleJacobian is sinθ·Δθ, for use together with an azimuthal axis.
func SolidAngleJacobian(a Axis, i int) float64 {
	return math.Sin(a.Center(i)) * a.Delta()
}

// LinearJacobian is the bin width, for Cartesian, time and azimuth axes.
func LinearJacobian(a Axis, i int) float64 {
	return a.Delta()
}

// UnitJacobian is used for sample and categorical axes.
func UnitJacobian(Axis, int) float64 {
	return 1
}
