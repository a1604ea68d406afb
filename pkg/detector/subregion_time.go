package detector

import (
	"fmt"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/accumulator"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/binning"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
)

// SpeedOfLight in vacuum, in mm/ns.
const SpeedOfLight = 299.792458

// subregionTimeEstimator bins reflected photons by exit radius and by the
// time they spent in each tissue region: Mean[rho, subregion, time].
type subregionTimeEstimator struct {
	*base
	aperture aperture
	regions  []models.OpticalProperties
	rho      binning.Axis
	time     binning.Axis
}

func (d *subregionTimeEstimator) ContainsPoint(sp models.StatePoint) bool {
	return sp.State.Has(models.ExitedTop)
}

func (d *subregionTimeEstimator) Tally(p *models.Photon) error {
	if d.acc.Normalized() {
		return accumulator.ErrNormalized
	}
	if len(p.Collisions) != len(d.regions) {
		return fmt.Errorf("%w: collision info has %d regions, tissue has %d", ErrInvalidInput, len(p.Collisions), len(d.regions))
	}
	if !d.aperture.admits(p) {
		return nil
	}
	sp := p.Terminal()
	ir := d.rho.Bin(binning.Rho(sp.Position))
	if ir == binning.OutOfRange {
		return nil
	}
	tallied := false
	for isr, c := range p.Collisions {
		if c.PathLength <= 0 {
			continue
		}
		it := d.time.Bin(c.PathLength * d.regions[isr].N / SpeedOfLight)
		if it == binning.OutOfRange {
			continue
		}
		if err := d.acc.Add(d.acc.Index(ir, isr, it), sp.Weight); err != nil {
			return err
		}
		tallied = true
	}
	if tallied {
		d.acc.Increment()
		d.acc.EndPhoton()
	}
	return nil
}

func newSubregionTimeEstimator(in Input, t tissue.Tissue) (Detector, error) {
	axes, err := resolveAxes(in, []axisSpec{rhoAxis, subregionAxis, timeAxis})
	if err != nil {
		return nil, err
	}
	sizeCategorical(axes, AxisSubregion, len(t.Regions()))
	ap, err := newAperture(in, t, top)
	if err != nil {
		return nil, err
	}
	return &subregionTimeEstimator{
		base:     newBase(in, axes),
		aperture: ap,
		regions:  t.Regions(),
		rho:      axes[0].rng,
		time:     axes[2].rng,
	}, nil
}

func init() {
	Register(ReflectedTimeOfRhoAndSubregionHist, newSubregionTimeEstimator)
}
