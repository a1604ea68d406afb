// Package weighting implements the absorption-weighting policies used by the
// absorption, fluence and radiance estimators.
package weighting

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
)

// Type selects how absorbed weight is attributed along a trajectory.
type Type int

const (
	// Analog samples absorption as a discrete termination event
	Analog Type = iota
	// Discrete (DAW) deposits a fraction of the weight at every real collision
	Discrete
	// Continuous (CAW) integrates absorption along each sub-step
	Continuous
)

var (
	// ErrUnknownType is returned for a weighting type that does not exist.
	ErrUnknownType = errors.New("unknown absorption weighting type")

	// ErrUnsupported is returned when an estimator has no implementation for
	// the requested weighting type.
	ErrUnsupported = errors.New("absorption weighting type not supported")
)

var typeNames = map[Type]string{
	Analog:     "Analog",
	Discrete:   "Discrete",
	Continuous: "Continuous",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Validate returns ErrUnknownType for values outside the enumeration.
func (t Type) Validate() error {
	if _, ok := typeNames[t]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return nil
}

// ParseType parses a weighting type name. The short forms "DAW" and "CAW"
// are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "analog":
		return Analog, nil
	case "discrete", "daw":
		return Discrete, nil
	case "continuous", "caw":
		return Continuous, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// MarshalYAML implements yaml.Marshaler.
func (t Type) MarshalYAML() (interface{}, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Type) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = parsed
	return nil
}

// IsRealCollision reports whether the step prev->cur was a real collision.
// Pseudo-collisions (boundary crossings) leave the weight unchanged.
func IsRealCollision(prev, cur models.StatePoint) bool {
	return prev.Weight != cur.Weight
}

// Absorbed returns the weight absorbed during the step prev->cur in a region
// with optical properties op.
func Absorbed(t Type, op models.OpticalProperties, prev, cur models.StatePoint) (float64, error) {
	switch t {
	case Analog:
		if !cur.State.Has(models.Absorbed) {
			return 0, nil
		}
		return prev.Weight * albedoComplement(op), nil
	case Discrete:
		if !IsRealCollision(prev, cur) {
			return 0, nil
		}
		return prev.Weight * albedoComplement(op), nil
	case Continuous:
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
}

// albedoComplement is mua/(mua+mus), zero for a non-interacting region.
func albedoComplement(op models.OpticalProperties) float64 {
	mut := op.Mut()
	if mut == 0 {
		return 0
	}
	return op.Mua / mut
}
