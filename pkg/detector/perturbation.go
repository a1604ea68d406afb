package detector

import (
	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/perturbation"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
)

// pMC and dMC detectors are reflectance detectors whose contribution is the
// exit weight times the perturbation factor (pMC) or its derivative (dMC)
// computed from the photon's collision record.

type perturbationSpec struct {
	terminalSpec

	// derivative is the dMC parameter; nil for pMC
	derivative *perturbation.Parameter
}

func derivativeOf(p perturbation.Parameter) *perturbation.Parameter { return &p }

var perturbationSpecs = []perturbationSpec{
	{terminalSpec{PMCROfRho, top, []axisSpec{rhoAxis}}, nil},
	{terminalSpec{PMCROfRhoAndTime, top, []axisSpec{rhoAxis, timeAxis}}, nil},
	{terminalSpec{PMCROfFx, top, []axisSpec{fxAxis}}, nil},
	{terminalSpec{DMCdROfRhodMua, top, []axisSpec{rhoAxis}}, derivativeOf(perturbation.Mua)},
	{terminalSpec{DMCdROfRhodMus, top, []axisSpec{rhoAxis}}, derivativeOf(perturbation.Mus)},
}

// newEngine builds the perturbation engine of in. Reference properties
// default to the tissue's, perturbed properties to the reference ones.
func newEngine(in Input, t tissue.Tissue) (*perturbation.Engine, error) {
	reference := in.ReferenceOps
	if len(reference) == 0 {
		reference = t.Regions()
	}
	perturbed := in.PerturbedOps
	if len(perturbed) == 0 {
		perturbed = reference
	}
	return perturbation.New(reference, perturbed, in.PerturbedRegionsIndices, t.AbsorptionWeighting())
}

func (s perturbationSpec) construct(in Input, t tissue.Tissue) (Detector, error) {
	e, err := newEngine(in, t)
	if err != nil {
		return nil, err
	}
	d, err := s.build(in, t)
	if err != nil {
		return nil, err
	}
	if s.derivative == nil {
		d.weight = func(p *models.Photon) (float64, error) {
			f, err := e.Factor(p.Collisions)
			if err != nil {
				return 0, err
			}
			return p.Terminal().Weight * f, nil
		}
		return d, nil
	}
	param := *s.derivative
	d.weight = func(p *models.Photon) (float64, error) {
		f, err := e.Derivative(p.Collisions, param)
		if err != nil {
			return 0, err
		}
		return p.Terminal().Weight * f, nil
	}
	return d, nil
}

func init() {
	for _, s := range perturbationSpecs {
		Register(s.tallyType, s.construct)
	}
}
