package detector

import (
	"fmt"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/accumulator"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/weighting"
)

// quantity selects what a volumetric detector reports per absorbed weight.
type quantity int

const (
	absorption quantity = iota
	fluence
)

// historyEstimator attributes the weight absorbed on each step to the
// collision point. Fluence and radiance divide by the local μa.
type historyEstimator struct {
	*base
	quantity  quantity
	regions   []models.OpticalProperties
	weighting weighting.Type
}

// event is the point the step prev->cur is binned at: the collision
// position and time with the direction the photon travelled along.
func event(prev, cur models.StatePoint) models.StatePoint {
	return models.StatePoint{
		Position:  cur.Position,
		Direction: prev.Direction,
		Weight:    cur.Weight,
		TotalTime: cur.TotalTime,
		State:     cur.State,
	}
}

func (d *historyEstimator) Tally(prev, cur models.StatePoint, region int) error {
	if d.acc.Normalized() {
		return accumulator.ErrNormalized
	}
	if region < 0 || region >= len(d.regions) {
		return fmt.Errorf("%w: region %d outside [0,%d)", ErrInvalidInput, region, len(d.regions))
	}
	op := d.regions[region]
	w, err := weighting.Absorbed(d.weighting, op, prev, cur)
	if err != nil {
		return err
	}
	if w == 0 {
		return nil
	}
	if d.quantity == fluence {
		w /= op.Mua
	}
	sp := event(prev, cur)
	flat, ok := d.locate(sp)
	if !ok {
		return nil
	}
	if err := d.deposit(sp, flat, w); err != nil {
		return err
	}
	d.acc.Increment()
	return nil
}

func (d *historyEstimator) EndPhoton() {
	d.acc.EndPhoton()
}

type historySpec struct {
	tallyType TallyType
	quantity  quantity
	axes      []axisSpec
}

var historySpecs = []historySpec{
	{ATotal, absorption, nil},
	{AOfRhoAndZ, absorption, []axisSpec{rhoAxis, zAxis}},
	{AOfXAndYAndZ, absorption, []axisSpec{xAxis, yAxis, zAxis}},
	{FluenceOfRhoAndZ, fluence, []axisSpec{rhoAxis, zAxis}},
	{FluenceOfRhoAndZAndTime, fluence, []axisSpec{rhoAxis, zAxis, timeAxis}},
	{FluenceOfXAndYAndZ, fluence, []axisSpec{xAxis, yAxis, zAxis}},
	{RadianceOfRhoAndZAndAngle, fluence, []axisSpec{rhoAxis, zAxis, radianceAngleAxis}},
	{RadianceOfXAndYAndZAndThetaAndPhi, fluence, []axisSpec{xAxis, yAxis, zAxis, thetaAxis, phiAxis}},
}

func (s historySpec) construct(in Input, t tissue.Tissue) (Detector, error) {
	axes, err := resolveAxes(in, s.axes)
	if err != nil {
		return nil, err
	}
	return &historyEstimator{
		base:      newBase(in, axes),
		quantity:  s.quantity,
		regions:   t.Regions(),
		weighting: t.AbsorptionWeighting(),
	}, nil
}

func init() {
	for _, s := range historySpecs {
		Register(s.tallyType, s.construct)
	}
}
