// Package tissue declares what the detectors need from the tissue geometry
// and provides a planar multi-layer implementation.
package tissue

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/weighting"
)

// Tissue is the geometry and optics collaborator of the detectors.
type Tissue interface {
	// Regions returns the ordered region optical properties.
	Regions() []models.OpticalProperties

	// RegionIndex returns the index of the region containing pos.
	RegionIndex(pos r3.Vec) int

	// AbsorptionWeighting is the weighting policy the kernel ran with.
	AbsorptionWeighting() weighting.Type
}

// Layer is one planar slab between ZStart and ZStop.
type Layer struct {
	ZStart float64                  `yaml:"zStart"`
	ZStop  float64                  `yaml:"zStop"`
	Ops    models.OpticalProperties `yaml:"ops"`
}

// MultiLayer is a stack of planar layers. Region 0 is the ambient medium
// above z = ZStart of the first layer, the last region the ambient medium
// below the last layer.
type MultiLayer struct {
	regions   []models.OpticalProperties
	bounds    []float64
	weighting weighting.Type
}

// NewMultiLayer validates the layer stack. Layers must be contiguous and
// ordered by depth; above and below are the ambient media.
func NewMultiLayer(above models.OpticalProperties, layers []Layer, below models.OpticalProperties, w weighting.Type) (*MultiLayer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("tissue needs at least one layer")
	}
	t := &MultiLayer{weighting: w}
	t.regions = append(t.regions, above)
	t.bounds = append(t.bounds, layers[0].ZStart)
	for i, l := range layers {
		if !(l.ZStop > l.ZStart) {
			return nil, fmt.Errorf("layer %d: zStop %g must exceed zStart %g", i, l.ZStop, l.ZStart)
		}
		if i > 0 && l.ZStart != layers[i-1].ZStop {
			return nil, fmt.Errorf("layer %d: starts at %g but layer %d stops at %g", i, l.ZStart, i-1, layers[i-1].ZStop)
		}
		if l.Ops.Mua < 0 || l.Ops.Mus < 0 {
			return nil, fmt.Errorf("layer %d: negative optical coefficients", i)
		}
		t.regions = append(t.regions, l.Ops)
		t.bounds = append(t.bounds, l.ZStop)
	}
	t.regions = append(t.regions, below)
	return t, nil
}

// Regions implements Tissue.
func (t *MultiLayer) Regions() []models.OpticalProperties {
	return t.regions
}

// RegionIndex implements Tissue. Points on a boundary belong to the region
// below it, except the top surface which belongs to the first layer.
func (t *MultiLayer) RegionIndex(pos r3.Vec) int {
	if pos.Z < t.bounds[0] {
		return 0
	}
	for i := 1; i < len(t.bounds); i++ {
		if pos.Z < t.bounds[i] {
			return i
		}
	}
	return len(t.regions) - 1
}

// AbsorptionWeighting implements Tissue.
func (t *MultiLayer) AbsorptionWeighting() weighting.Type {
	return t.weighting
}

// WithinNumericalAperture reports whether a photon travelling along dir in
// a medium of refractive index n falls inside a detector of numerical
// aperture na at a plane normal to z: n·sinθ ≤ na.
func WithinNumericalAperture(dir r3.Vec, n, na float64) bool {
	cos := math.Abs(dir.Z) / r3.Norm(dir)
	if cos > 1 {
		cos = 1
	}
	sin := math.Sqrt(1 - cos*cos)
	return n*sin <= na
}
