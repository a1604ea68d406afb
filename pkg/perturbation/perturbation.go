// Package perturbation implements perturbation Monte Carlo (pMC) and its
// derivative variant (dMC): analytic reweighting of recorded per-region
// collision statistics to a different set of optical properties.
package perturbation

import (
	"errors"
	"fmt"
	"math"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/weighting"
)

// Parameter selects the optical property a derivative is taken against.
type Parameter int

const (
	Mua Parameter = iota
	Mus
)

func (p Parameter) String() string {
	switch p {
	case Mua:
		return "Mua"
	case Mus:
		return "Mus"
	default:
		return fmt.Sprintf("Parameter(%d)", int(p))
	}
}

var (
	// ErrInvalidRegion is returned when a perturbed region cannot be reweighted.
	ErrInvalidRegion = errors.New("invalid perturbed region")

	// ErrInvalidInput is returned for property lists or collision records
	// that do not match the engine's region layout.
	ErrInvalidInput = errors.New("invalid perturbation input")
)

// Engine reweights one photon's collision record from reference to
// perturbed optical properties.
type Engine struct {
	reference []models.OpticalProperties
	perturbed []models.OpticalProperties
	regions   []int
	weighting weighting.Type
}

// New validates the configuration. Every perturbed region must exist in
// both property lists and have a positive reference scattering coefficient.
func New(reference, perturbed []models.OpticalProperties, regions []int, w weighting.Type) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if len(reference) != len(perturbed) {
		return nil, fmt.Errorf("%w: reference has %d regions, perturbed has %d", ErrInvalidInput, len(reference), len(perturbed))
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: no perturbed regions given", ErrInvalidRegion)
	}
	seen := make(map[int]bool, len(regions))
	for _, r := range regions {
		if r < 0 || r >= len(reference) {
			return nil, fmt.Errorf("%w: index %d outside [0,%d)", ErrInvalidRegion, r, len(reference))
		}
		if seen[r] {
			return nil, fmt.Errorf("%w: index %d listed twice", ErrInvalidRegion, r)
		}
		seen[r] = true
		if !(reference[r].Mus > 0) {
			return nil, fmt.Errorf("%w: region %d has reference mus %g", ErrInvalidRegion, r, reference[r].Mus)
		}
	}
	return &Engine{
		reference: append([]models.OpticalProperties(nil), reference...),
		perturbed: append([]models.OpticalProperties(nil), perturbed...),
		regions:   append([]int(nil), regions...),
		weighting: w,
	}, nil
}

// Regions returns the perturbed region indices.
func (e *Engine) Regions() []int { return append([]int(nil), e.regions...) }

// Factor returns the pMC weight factor: the product over perturbed regions
// of each region's reweighting term.
func (e *Engine) Factor(c models.CollisionInfo) (float64, error) {
	if err := e.check(c); err != nil {
		return 0, err
	}
	factor := 1.0
	for _, r := range e.regions {
		factor *= e.regionFactor(r, c[r].NumberOfCollisions, c[r].PathLength)
	}
	return factor, nil
}

// Derivative returns the dMC factor: the derivative of Factor with respect
// to p, with every perturbed region's p moving together.
func (e *Engine) Derivative(c models.CollisionInfo, p Parameter) (float64, error) {
	if err := e.check(c); err != nil {
		return 0, err
	}
	n := len(e.regions)
	f := make([]float64, n)
	df := make([]float64, n)
	for i, r := range e.regions {
		k, l := c[r].NumberOfCollisions, c[r].PathLength
		f[i] = e.regionFactor(r, k, l)
		switch p {
		case Mua:
			df[i] = -l * f[i]
		case Mus:
			df[i] = -l * f[i]
			if k > 0 {
				df[i] += float64(k) / e.reference[r].Mus * e.regionFactor(r, k-1, l)
			}
		default:
			return 0, fmt.Errorf("%w: unknown derivative parameter %s", ErrInvalidInput, p)
		}
	}

	// product rule over the perturbed regions
	total := 0.0
	for i := range e.regions {
		term := df[i]
		for j := range e.regions {
			if j != i {
				term *= f[j]
			}
		}
		total += term
	}
	return total, nil
}

func (e *Engine) check(c models.CollisionInfo) error {
	if e.weighting == weighting.Analog {
		return fmt.Errorf("%w: perturbation with %s weighting", weighting.ErrUnsupported, e.weighting)
	}
	for _, r := range e.regions {
		if r >= len(c) {
			return fmt.Errorf("%w: collision info has %d regions, need region %d", ErrInvalidInput, len(c), r)
		}
	}
	return nil
}

// regionFactor evaluates the reweighting term of one region for k
// collisions and path length l.
//
//	Discrete:   (μs'/μs)^k · exp(-(μt' - μt)·l)
//	Continuous: (μs'/μs)^k · exp(-(μs' - μs)·l) · exp(-(μa' - μa)·l)
func (e *Engine) regionFactor(r int, k int64, l float64) float64 {
	ref, pert := e.reference[r], e.perturbed[r]
	ratio := pert.Mus / ref.Mus
	if e.weighting == weighting.Continuous {
		return StablePower(ratio, pert.Mus-ref.Mus, l, k) * math.Exp(-(pert.Mua-ref.Mua)*l)
	}
	return StablePower(ratio, pert.Mut()-ref.Mut(), l, k)
}

// StablePower returns ratio^k · exp(-delta·l) evaluated as
// (ratio · exp(-delta·l/k))^k so the per-collision term stays near unity for
// large k. For k = 0 it is exp(-delta·l).
func StablePower(ratio, delta, l float64, k int64) float64 {
	if k == 0 {
		return math.Exp(-delta * l)
	}
	fk := float64(k)
	return math.Pow(ratio*math.Exp(-delta*l/fk), fk)
}
