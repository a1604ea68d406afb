package models

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// OpticalProperties holds the optical properties of a single tissue region.
// Units follow the transport kernel: mm^-1 for the coefficients.
type OpticalProperties struct {
	// Mua is the absorption coefficient
	Mua float64 `yaml:"mua"`

	// Mus is the scattering coefficient
	Mus float64 `yaml:"mus"`

	// G is the scattering anisotropy
	G float64 `yaml:"g"`

	// N is the refractive index
	N float64 `yaml:"n"`
}

// Mut returns the total attenuation coefficient mua+mus.
func (op OpticalProperties) Mut() float64 {
	return op.Mua + op.Mus
}

// PhotonState is a bitmask describing the boundary/absorption state of a
// photon at one state point.
type PhotonState uint32

const (
	Alive PhotonState = 1 << iota
	// ExitedTop marks a photon leaving through the top tissue surface
	ExitedTop
	// ExitedBottom marks a photon leaving through the bottom tissue surface
	ExitedBottom
	Absorbed
	KilledOverMaximumPathLength
	KilledOverMaximumCollisions
	KilledRussianRoulette
	// PseudoBoundary marks a crossing between two internal tissue regions
	PseudoBoundary
)

var stateNames = []struct {
	flag PhotonState
	name string
}{
	{Alive, "Alive"},
	{ExitedTop, "ExitedTop"},
	{ExitedBottom, "ExitedBottom"},
	{Absorbed, "Absorbed"},
	{KilledOverMaximumPathLength, "KilledOverMaximumPathLength"},
	{KilledOverMaximumCollisions, "KilledOverMaximumCollisions"},
	{KilledRussianRoulette, "KilledRussianRoulette"},
	{PseudoBoundary, "PseudoBoundary"},
}

// Has reports whether every bit of flag is set in s.
func (s PhotonState) Has(flag PhotonState) bool {
	return s&flag == flag
}

// String returns the set flags joined with "|".
func (s PhotonState) String() string {
	if s == 0 {
		return "None"
	}
	var parts []string
	for _, sn := range stateNames {
		if s.Has(sn.flag) {
			parts = append(parts, sn.name)
		}
	}
	if len(parts) == 0 {
		return strconv.FormatUint(uint64(s), 10)
	}
	return strings.Join(parts, "|")
}

// ParsePhotonState parses a "|"-separated list of flag names.
func ParsePhotonState(text string) (PhotonState, error) {
	var s PhotonState
	for _, part := range strings.Split(text, "|") {
		part = strings.TrimSpace(part)
		if part == "" || part == "None" {
			continue
		}
		found := false
		for _, sn := range stateNames {
			if strings.EqualFold(sn.name, part) {
				s |= sn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown photon state %q", part)
		}
	}
	return s, nil
}

// MarshalYAML implements yaml.Marshaler.
func (s PhotonState) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML accepts either a flag expression ("ExitedTop|Absorbed"),
// a sequence of flag names or a raw integer mask.
func (s *PhotonState) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		parsed, err := ParsePhotonState(strings.Join(names, "|"))
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	case yaml.ScalarNode:
		if n, err := strconv.ParseUint(value.Value, 10, 32); err == nil {
			*s = PhotonState(n)
			return nil
		}
		parsed, err := ParsePhotonState(value.Value)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	default:
		return fmt.Errorf("line %d: photon state must be a scalar or a sequence", value.Line)
	}
}

// StatePoint is one point of a photon trajectory as produced by the
// transport kernel.
type StatePoint struct {
	// Position of the photon
	Position r3.Vec `yaml:"position"`

	// Direction is the unit propagation direction after this point
	Direction r3.Vec `yaml:"direction"`

	// Weight in [0, 1]
	Weight float64 `yaml:"weight"`

	// TotalTime is the elapsed time since launch in ns
	TotalTime float64 `yaml:"totalTime"`

	// State holds the boundary/absorption flags
	State PhotonState `yaml:"state"`
}

// SubRegionCollisionInfo holds the collision statistics of one photon in a
// single tissue region, accumulated over its whole trajectory.
type SubRegionCollisionInfo struct {
	NumberOfCollisions int64   `yaml:"numberOfCollisions"`
	PathLength         float64 `yaml:"pathLength"`
}

// CollisionInfo has one entry per tissue region, indexed like the tissue
// region list.
type CollisionInfo []SubRegionCollisionInfo

// Photon is the complete record of one launched photon: its ordered
// trajectory (pseudo-collisions included) and per-region collision info.
type Photon struct {
	// History is the ordered trajectory; the last point is the terminal point
	History []StatePoint `yaml:"history"`

	// Collisions may be nil when no perturbation detector is active
	Collisions CollisionInfo `yaml:"collisions,omitempty"`
}

// Terminal returns the exit or absorption point of the photon.
func (p *Photon) Terminal() StatePoint {
	if len(p.History) == 0 {
		return StatePoint{}
	}
	return p.History[len(p.History)-1]
}

// Previous returns the point preceding the terminal point, or the terminal
// point itself for single-point histories.
func (p *Photon) Previous() StatePoint {
	if len(p.History) < 2 {
		return p.Terminal()
	}
	return p.History[len(p.History)-2]
}
