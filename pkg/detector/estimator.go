package detector

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/accumulator"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/binning"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
)

// coordFunc extracts one axis coordinate from a state point.
type coordFunc func(sp models.StatePoint) float64

type axisKind int

const (
	// binned axes locate a coordinate in one of Count-1 bins
	binned axisKind = iota
	// sample axes spread one event over all Count nodes as exp(-i2π·f·coord)
	sample
	// categorical axes are indexed directly by the detector
	categorical
)

// axisSpec declares one axis of a variant.
type axisSpec struct {
	name     string
	kind     axisKind
	coord    coordFunc
	jacobian binning.Jacobian
}

type axis struct {
	axisSpec
	rng   binning.Axis
	size  int
	nodes []float64
}

func rhoCoord(sp models.StatePoint) float64  { return binning.Rho(sp.Position) }
func xCoord(sp models.StatePoint) float64    { return sp.Position.X }
func yCoord(sp models.StatePoint) float64    { return sp.Position.Y }
func zCoord(sp models.StatePoint) float64    { return sp.Position.Z }
func timeCoord(sp models.StatePoint) float64 { return sp.TotalTime }

func polarCoord(sp models.StatePoint) float64     { return binning.PolarAngle(sp.Direction) }
func azimuthalCoord(sp models.StatePoint) float64 { return binning.AzimuthalAngle(sp.Direction) }

func exitAngleCoord(top bool) coordFunc {
	return func(sp models.StatePoint) float64 { return binning.ExitAngle(sp.Direction, top) }
}

var (
	rhoAxis   = axisSpec{AxisRho, binned, rhoCoord, binning.RadialJacobian}
	timeAxis  = axisSpec{AxisTime, binned, timeCoord, binning.LinearJacobian}
	xAxis     = axisSpec{AxisX, binned, xCoord, binning.LinearJacobian}
	yAxis     = axisSpec{AxisY, binned, yCoord, binning.LinearJacobian}
	zAxis     = axisSpec{AxisZ, binned, zCoord, binning.LinearJacobian}
	fxAxis    = axisSpec{AxisFx, sample, xCoord, binning.UnitJacobian}
	omegaAxis = axisSpec{AxisOmega, sample, timeCoord, binning.UnitJacobian}

	// direction of travel inside the tissue, over the full sphere
	radianceAngleAxis = axisSpec{AxisAngle, binned, polarCoord, binning.PolarJacobian}
	thetaAxis         = axisSpec{AxisTheta, binned, polarCoord, binning.SolidAngleJacobian}
	phiAxis           = axisSpec{AxisPhi, binned, azimuthalCoord, binning.LinearJacobian}

	// histogram axes without a geometric measure
	mtAxis           = axisSpec{AxisMT, binned, nil, binning.UnitJacobian}
	fractionalMTAxis = axisSpec{AxisFractionalMT, binned, nil, binning.UnitJacobian}
	subregionAxis    = axisSpec{AxisSubregion, categorical, nil, binning.UnitJacobian}
)

func exitAngleAxis(top bool) axisSpec {
	return axisSpec{AxisAngle, binned, exitAngleCoord(top), binning.PolarJacobian}
}

// resolveAxes looks every spec up in the input and validates it.
func resolveAxes(in Input, specs []axisSpec) ([]axis, error) {
	axes := make([]axis, 0, len(specs))
	samples := 0
	for _, s := range specs {
		a := axis{axisSpec: s}
		if s.kind == categorical {
			axes = append(axes, a)
			continue
		}
		rng, ok := in.Axes[s.name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingAxis, s.name)
		}
		a.rng = rng
		switch s.kind {
		case binned:
			if err := rng.ValidateBinned(); err != nil {
				return nil, fmt.Errorf("%w: axis %q: %v", ErrInvalidInput, s.name, err)
			}
			a.size = rng.Bins()
		case sample:
			if err := rng.ValidateSample(); err != nil {
				return nil, fmt.Errorf("%w: axis %q: %v", ErrInvalidInput, s.name, err)
			}
			samples++
			a.size = rng.Count
			a.nodes = rng.Nodes()
		}
		axes = append(axes, a)
	}
	if samples > 1 {
		return nil, fmt.Errorf("%w: more than one frequency axis", ErrInvalidInput)
	}
	return axes, nil
}

// base is the generic N-axis estimator shared by all variants: an ordered
// axis list, one accumulator shaped by it and the product Jacobian.
type base struct {
	name      string
	tallyType TallyType
	axes      []axis
	strides   []int
	sampleIdx int
	acc       *accumulator.Accumulator
}

func newBase(in Input, axes []axis) *base {
	b := &base{
		name:      in.DetectorName(),
		tallyType: in.TallyType,
		axes:      axes,
		sampleIdx: -1,
	}
	shape := make([]int, len(axes))
	for i, a := range axes {
		shape[i] = a.size
		if a.kind == sample {
			b.sampleIdx = i
		}
	}
	b.acc = accumulator.New(shape, b.sampleIdx >= 0, in.TallySecondMoment)
	b.strides = b.acc.Strides()
	return b
}

// sizeCategorical sets the length of the named categorical axis.
func sizeCategorical(axes []axis, name string, size int) {
	for i := range axes {
		if axes[i].name == name && axes[i].kind == categorical {
			axes[i].size = size
		}
	}
}

func (b *base) Name() string                          { return b.name }
func (b *base) TallyType() TallyType                  { return b.tallyType }
func (b *base) Accumulator() *accumulator.Accumulator { return b.acc }

func (b *base) AxisNames() []string {
	names := make([]string, len(b.axes))
	for i, a := range b.axes {
		names[i] = a.name
	}
	return names
}

func (b *base) AxisRanges() []binning.Axis {
	ranges := make([]binning.Axis, len(b.axes))
	for i, a := range b.axes {
		ranges[i] = a.rng
	}
	return ranges
}

// locate returns the flat offset of sp over the binned axes; sample and
// categorical axes contribute index 0.
func (b *base) locate(sp models.StatePoint) (int, bool) {
	flat := 0
	for i, a := range b.axes {
		if a.kind != binned || a.coord == nil {
			continue
		}
		idx := a.rng.Bin(a.coord(sp))
		if idx == binning.OutOfRange {
			return 0, false
		}
		flat += idx * b.strides[i]
	}
	return flat, true
}

// deposit adds w at flat, spreading it over the frequency axis when the
// estimator has one.
func (b *base) deposit(sp models.StatePoint, flat int, w float64) error {
	if b.sampleIdx < 0 {
		return b.acc.Add(flat, w)
	}
	a := b.axes[b.sampleIdx]
	c := a.coord(sp)
	stride := b.strides[b.sampleIdx]
	for j, f := range a.nodes {
		phase := -2 * math.Pi * f * c
		if err := b.acc.AddComplex(flat+j*stride, complex(w*math.Cos(phase), w*math.Sin(phase))); err != nil {
			return err
		}
	}
	return nil
}

// jacobian is the product of the per-axis Jacobians at a flat offset.
func (b *base) jacobian(flat int) float64 {
	j := 1.0
	for i, a := range b.axes {
		idx := (flat / b.strides[i]) % a.size
		j *= a.jacobian(a.rng, idx)
	}
	return j
}

func (b *base) Normalize(numPhotons int64) error {
	if err := b.acc.Normalize(numPhotons, b.jacobian); err != nil {
		return fmt.Errorf("detector %q: %w", b.name, err)
	}
	return nil
}

func (b *base) Merge(other Detector) error {
	if other.TallyType() != b.tallyType || other.Name() != b.name {
		return fmt.Errorf("detector %q (%s): cannot merge %q (%s)", b.name, b.tallyType, other.Name(), other.TallyType())
	}
	if err := b.acc.Merge(other.Accumulator()); err != nil {
		return fmt.Errorf("detector %q: %w", b.name, err)
	}
	return nil
}

// surface selects the tissue boundary a terminal detector watches.
type surface int

const (
	top surface = iota
	bottom
)

func (s surface) flag() models.PhotonState {
	if s == top {
		return models.ExitedTop
	}
	return models.ExitedBottom
}

// aperture is the numerical-aperture admission test of fiber-like
// detectors.
type aperture struct {
	enabled     bool
	na          float64
	finalRegion int
	tissue      tissue.Tissue
}

func newAperture(in Input, t tissue.Tissue, s surface) (aperture, error) {
	regions := len(t.Regions())
	ap := aperture{tissue: t, finalRegion: 0}
	if s == bottom {
		ap.finalRegion = regions - 1
	}
	if in.FinalTissueRegionIndex != nil {
		ap.finalRegion = *in.FinalTissueRegionIndex
	}
	if ap.finalRegion < 0 || ap.finalRegion >= regions {
		return ap, fmt.Errorf("%w: final tissue region %d outside [0,%d)", ErrInvalidInput, ap.finalRegion, regions)
	}
	if in.NumericalAperture != nil {
		if *in.NumericalAperture < 0 {
			return ap, fmt.Errorf("%w: negative numerical aperture %g", ErrInvalidInput, *in.NumericalAperture)
		}
		ap.enabled = true
		ap.na = *in.NumericalAperture
	}
	return ap, nil
}

// admits applies the aperture test. When the photon already occupies the
// final region the terminal direction and that region's index are used;
// otherwise the direction before the last crossing and the index of the
// prior (final tissue) region.
func (ap aperture) admits(p *models.Photon) bool {
	if !ap.enabled {
		return true
	}
	regions := ap.tissue.Regions()
	cur := p.Terminal()
	if regionAhead(ap.tissue, cur) == ap.finalRegion {
		return tissue.WithinNumericalAperture(cur.Direction, regions[ap.finalRegion].N, ap.na)
	}
	return tissue.WithinNumericalAperture(p.Previous().Direction, regions[ap.finalRegion].N, ap.na)
}

// regionAhead is the region a photon at sp is moving into, which resolves
// points lying exactly on a boundary.
func regionAhead(t tissue.Tissue, sp models.StatePoint) int {
	const nudge = 1e-9
	return t.RegionIndex(r3.Add(sp.Position, r3.Scale(nudge, sp.Direction)))
}

// terminalEstimator is the generic single-event detector.
type terminalEstimator struct {
	*base
	surface  surface
	aperture aperture

	// weight is the contribution of an admitted photon
	weight func(p *models.Photon) (float64, error)
}

func terminalWeight(p *models.Photon) (float64, error) {
	return p.Terminal().Weight, nil
}

func (d *terminalEstimator) ContainsPoint(sp models.StatePoint) bool {
	return sp.State.Has(d.surface.flag())
}

func (d *terminalEstimator) Tally(p *models.Photon) error {
	if d.acc.Normalized() {
		return accumulator.ErrNormalized
	}
	if !d.aperture.admits(p) {
		return nil
	}
	sp := p.Terminal()
	flat, ok := d.locate(sp)
	if !ok {
		return nil
	}
	w, err := d.weight(p)
	if err != nil {
		return err
	}
	if err := d.deposit(sp, flat, w); err != nil {
		return err
	}
	d.acc.Increment()
	d.acc.EndPhoton()
	return nil
}

// terminalSpec declares a terminal variant.
type terminalSpec struct {
	tallyType TallyType
	surface   surface
	axes      []axisSpec
}

func (s terminalSpec) build(in Input, t tissue.Tissue) (*terminalEstimator, error) {
	axes, err := resolveAxes(in, s.axes)
	if err != nil {
		return nil, err
	}
	ap, err := newAperture(in, t, s.surface)
	if err != nil {
		return nil, err
	}
	return &terminalEstimator{
		base:     newBase(in, axes),
		surface:  s.surface,
		aperture: ap,
		weight:   terminalWeight,
	}, nil
}

func (s terminalSpec) construct(in Input, t tissue.Tissue) (Detector, error) {
	return s.build(in, t)
}
