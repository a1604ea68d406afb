// Package detector implements the Monte Carlo estimators ("detectors" or
// "tallies") that turn photon records into binned, normalized physical
// quantities.
//
// Two trigger kinds exist. A TerminationDetector is called once per photon
// with its complete record and usually only looks at the terminal point. A
// HistoryDetector is called once per consecutive pair of trajectory points
// and EndPhoton is called when the photon's trajectory has been folded.
//
// Detectors are built from an Input by New, which looks the tally type up
// in a registry. Variants register themselves from this package's init
// functions; Register can add more.
package detector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/accumulator"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/binning"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
)

// TallyType names an estimator variant.
type TallyType string

const (
	RDiffuse       TallyType = "RDiffuse"
	ROfRho         TallyType = "ROfRho"
	ROfAngle       TallyType = "ROfAngle"
	ROfRhoAndTime  TallyType = "ROfRhoAndTime"
	ROfRhoAndAngle TallyType = "ROfRhoAndAngle"
	ROfXAndY       TallyType = "ROfXAndY"
	ROfRhoAndOmega TallyType = "ROfRhoAndOmega"
	ROfFx          TallyType = "ROfFx"
	ROfFxAndTime   TallyType = "ROfFxAndTime"
	TDiffuse       TallyType = "TDiffuse"
	TOfRho         TallyType = "TOfRho"
	TOfAngle       TallyType = "TOfAngle"
	TOfRhoAndAngle TallyType = "TOfRhoAndAngle"
	TOfXAndY       TallyType = "TOfXAndY"
	TOfFx          TallyType = "TOfFx"

	PMCROfRho        TallyType = "pMCROfRho"
	PMCROfRhoAndTime TallyType = "pMCROfRhoAndTime"
	PMCROfFx         TallyType = "pMCROfFx"
	DMCdROfRhodMua   TallyType = "dMCdROfRhodMua"
	DMCdROfRhodMus   TallyType = "dMCdROfRhodMus"

	ReflectedMTOfRhoAndSubregionHist   TallyType = "ReflectedMTOfRhoAndSubregionHist"
	TransmittedMTOfRhoAndSubregionHist TallyType = "TransmittedMTOfRhoAndSubregionHist"
	ReflectedTimeOfRhoAndSubregionHist TallyType = "ReflectedTimeOfRhoAndSubregionHist"

	ATotal                            TallyType = "ATotal"
	AOfRhoAndZ                        TallyType = "AOfRhoAndZ"
	AOfXAndYAndZ                      TallyType = "AOfXAndYAndZ"
	FluenceOfRhoAndZ                  TallyType = "FluenceOfRhoAndZ"
	FluenceOfRhoAndZAndTime           TallyType = "FluenceOfRhoAndZAndTime"
	FluenceOfXAndYAndZ                TallyType = "FluenceOfXAndYAndZ"
	RadianceOfRhoAndZAndAngle         TallyType = "RadianceOfRhoAndZAndAngle"
	RadianceOfXAndYAndZAndThetaAndPhi TallyType = "RadianceOfXAndYAndZAndThetaAndPhi"
)

// Axis names used as keys of Input.Axes.
const (
	AxisRho          = "rho"
	AxisAngle        = "angle"
	AxisTime         = "time"
	AxisX            = "x"
	AxisY            = "y"
	AxisZ            = "z"
	AxisTheta        = "theta"
	AxisPhi          = "phi"
	AxisFx           = "fx"
	AxisOmega        = "omega"
	AxisMT           = "mt"
	AxisFractionalMT = "fractionalMT"
	AxisSubregion    = "subregion"
)

var (
	// ErrUnknownTallyType is returned by New for an unregistered tally type.
	ErrUnknownTallyType = errors.New("unknown tally type")

	// ErrMissingAxis is returned when a required binning axis is absent.
	ErrMissingAxis = errors.New("missing binning axis")

	// ErrInvalidInput is returned for any other invalid detector input.
	ErrInvalidInput = errors.New("invalid detector input")
)

// Input is the configuration record of one detector.
type Input struct {
	TallyType TallyType `yaml:"tallyType"`

	// Name identifies the detector in reports; defaults to the tally type
	Name string `yaml:"name,omitempty"`

	TallySecondMoment bool `yaml:"tallySecondMoment"`

	// Axes maps axis names (rho, time, fx, ...) to ranges
	Axes map[string]binning.Axis `yaml:"axes,omitempty"`

	// NumericalAperture restricts admission; nil means unrestricted
	NumericalAperture *float64 `yaml:"numericalAperture,omitempty"`

	// FinalTissueRegionIndex is the region the aperture sits in. Defaults to
	// the top ambient region for reflectance and the bottom one for
	// transmittance.
	FinalTissueRegionIndex *int `yaml:"finalTissueRegionIndex,omitempty"`

	// ReferenceOps defaults to the tissue's region properties
	ReferenceOps            []models.OpticalProperties `yaml:"referenceOps,omitempty"`
	PerturbedOps            []models.OpticalProperties `yaml:"perturbedOps,omitempty"`
	PerturbedRegionsIndices []int                      `yaml:"perturbedRegionsIndices,omitempty"`
}

// DetectorName returns the configured name or the tally type.
func (in Input) DetectorName() string {
	if in.Name != "" {
		return in.Name
	}
	return string(in.TallyType)
}

// Detector is the common surface of every estimator.
type Detector interface {
	Name() string
	TallyType() TallyType

	// AxisNames lists the axes in storage order (row-major, last fastest).
	AxisNames() []string

	// AxisRanges returns the ranges of AxisNames; categorical axes have a
	// zero range.
	AxisRanges() []binning.Axis

	// Accumulator exposes Mean, SecondMoment and TallyCount.
	Accumulator() *accumulator.Accumulator

	// Normalize converts raw sums to physical units. It runs once.
	Normalize(numPhotons int64) error

	// Merge adds the raw sums of a detector built from the same input.
	Merge(other Detector) error
}

// TerminationDetector tallies once per photon.
type TerminationDetector interface {
	Detector

	// ContainsPoint decides whether the terminal point belongs to this
	// detector; it is evaluated before Tally.
	ContainsPoint(sp models.StatePoint) bool

	Tally(p *models.Photon) error
}

// HistoryDetector tallies every consecutive pair of trajectory points.
type HistoryDetector interface {
	Detector

	// Tally attributes the step prev->cur, with cur in region.
	Tally(prev, cur models.StatePoint, region int) error

	// EndPhoton closes the current photon's contributions.
	EndPhoton()
}

// Auxiliary is implemented by detectors that keep extra tensors next to
// their main accumulator.
type Auxiliary interface {
	Auxiliary() map[string]*accumulator.Accumulator
}

// Constructor builds a detector from its input.
type Constructor func(in Input, t tissue.Tissue) (Detector, error)

var (
	registryMu sync.RWMutex
	registry   = map[TallyType]Constructor{}
)

// Register adds a constructor for tt, replacing any previous one.
func Register(tt TallyType, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tt] = c
}

// Registered returns the registered tally types in sorted order.
func Registered() []TallyType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]TallyType, 0, len(registry))
	for tt := range registry {
		types = append(types, tt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// New builds the detector described by in. Every error names the detector.
func New(in Input, t tissue.Tissue) (Detector, error) {
	registryMu.RLock()
	c, ok := registry[in.TallyType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("detector %q: %w: %q", in.DetectorName(), ErrUnknownTallyType, in.TallyType)
	}
	if t == nil {
		return nil, fmt.Errorf("detector %q (%s): %w: no tissue", in.DetectorName(), in.TallyType, ErrInvalidInput)
	}
	if err := t.AbsorptionWeighting().Validate(); err != nil {
		return nil, fmt.Errorf("detector %q (%s): %w", in.DetectorName(), in.TallyType, err)
	}
	d, err := c(in, t)
	if err != nil {
		return nil, fmt.Errorf("detector %q (%s): %w", in.DetectorName(), in.TallyType, err)
	}
	return d, nil
}
