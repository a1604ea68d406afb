package detector

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/accumulator"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/binning"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/weighting"
)

// FractionalMT is the name of the auxiliary tensor of the momentum-transfer
// detectors.
const FractionalMT = "FractionalMT"

// MomentumTransfer sums 1 − cosθ over the real collisions of a trajectory,
// where θ is the angle between the directions before and after the
// collision. It returns the total and the share of every tissue region.
// Pseudo-collisions are skipped.
func MomentumTransfer(history []models.StatePoint, t tissue.Tissue) (float64, []float64) {
	perRegion := make([]float64, len(t.Regions()))
	total := 0.0
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		if !weighting.IsRealCollision(prev, cur) {
			continue
		}
		mt := 1 - r3.Dot(r3.Unit(prev.Direction), r3.Unit(cur.Direction))
		r := t.RegionIndex(cur.Position)
		if r >= 0 && r < len(perRegion) {
			perRegion[r] += mt
		}
		total += mt
	}
	return total, perRegion
}

// mtEstimator is the momentum-transfer histogram Mean[rho, mt] of exiting
// photons, with the fraction of the total transferred in every region kept
// in FractionalMT[rho, mt, subregion, fraction].
type mtEstimator struct {
	*base
	surface  surface
	aperture aperture
	tissue   tissue.Tissue

	rho, mt, frac binning.Axis
	fractional    *accumulator.Accumulator
}

func (d *mtEstimator) ContainsPoint(sp models.StatePoint) bool {
	return sp.State.Has(d.surface.flag())
}

// fractionIndex maps a fraction in [0,1] to its cell: 0 for exactly 0, the
// last cell for exactly 1, the bins of the fractional axis in between.
func (d *mtEstimator) fractionIndex(f float64) int {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return d.frac.Count
	}
	i := d.frac.Bin(f)
	if i == binning.OutOfRange {
		return binning.OutOfRange
	}
	return i + 1
}

func (d *mtEstimator) Tally(p *models.Photon) error {
	if d.acc.Normalized() {
		return accumulator.ErrNormalized
	}
	if !d.aperture.admits(p) {
		return nil
	}
	sp := p.Terminal()
	ir := d.rho.Bin(binning.Rho(sp.Position))
	if ir == binning.OutOfRange {
		return nil
	}
	total, perRegion := MomentumTransfer(p.History, d.tissue)
	if total <= 0 {
		return nil
	}
	imt := d.mt.Bin(total)
	if imt == binning.OutOfRange {
		return nil
	}
	if err := d.acc.Add(d.acc.Index(ir, imt), sp.Weight); err != nil {
		return err
	}
	for isr, mt := range perRegion {
		ifrac := d.fractionIndex(mt / total)
		if ifrac == binning.OutOfRange {
			continue
		}
		if err := d.fractional.Add(d.fractional.Index(ir, imt, isr, ifrac), sp.Weight); err != nil {
			return err
		}
	}
	d.acc.Increment()
	d.acc.EndPhoton()
	d.fractional.Increment()
	d.fractional.EndPhoton()
	return nil
}

func (d *mtEstimator) Auxiliary() map[string]*accumulator.Accumulator {
	return map[string]*accumulator.Accumulator{FractionalMT: d.fractional}
}

func (d *mtEstimator) Normalize(numPhotons int64) error {
	if err := d.base.Normalize(numPhotons); err != nil {
		return err
	}
	stride := d.fractional.Strides()[0]
	err := d.fractional.Normalize(numPhotons, func(flat int) float64 {
		return binning.RadialJacobian(d.rho, flat/stride)
	})
	if err != nil {
		return fmt.Errorf("detector %q: %s: %w", d.name, FractionalMT, err)
	}
	return nil
}

func (d *mtEstimator) Merge(other Detector) error {
	o, ok := other.(*mtEstimator)
	if !ok {
		return fmt.Errorf("detector %q (%s): cannot merge %T", d.name, d.tallyType, other)
	}
	if err := d.base.Merge(other); err != nil {
		return err
	}
	if err := d.fractional.Merge(o.fractional); err != nil {
		return fmt.Errorf("detector %q: %s: %w", d.name, FractionalMT, err)
	}
	return nil
}

func newMTEstimator(s surface) Constructor {
	return func(in Input, t tissue.Tissue) (Detector, error) {
		// analog photons keep their weight, so no collision counts as real
		if t.AbsorptionWeighting() == weighting.Analog {
			return nil, fmt.Errorf("%w: momentum transfer with %s weighting", weighting.ErrUnsupported, weighting.Analog)
		}
		axes, err := resolveAxes(in, []axisSpec{rhoAxis, mtAxis, fractionalMTAxis})
		if err != nil {
			return nil, err
		}
		if frac := axes[2].rng; frac.Start > 0 || frac.Stop < 1 {
			return nil, fmt.Errorf("%w: axis %q must cover [0,1], got [%g,%g]", ErrInvalidInput, AxisFractionalMT, frac.Start, frac.Stop)
		}
		ap, err := newAperture(in, t, s)
		if err != nil {
			return nil, err
		}
		d := &mtEstimator{
			base:     newBase(in, axes[:2]),
			surface:  s,
			aperture: ap,
			tissue:   t,
			rho:      axes[0].rng,
			mt:       axes[1].rng,
			frac:     axes[2].rng,
		}
		d.fractional = accumulator.New([]int{
			axes[0].size, axes[1].size, len(t.Regions()), d.frac.Count + 1,
		}, false, false)
		return d, nil
	}
}

func init() {
	Register(ReflectedMTOfRhoAndSubregionHist, newMTEstimator(top))
	Register(TransmittedMTOfRhoAndSubregionHist, newMTEstimator(bottom))
}
