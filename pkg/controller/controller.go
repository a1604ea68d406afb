// Package controller owns the detectors of one run and dispatches photon
// records to them. It does no numeric work of its own.
package controller

import (
	"fmt"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/detector"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
)

// Controller partitions its detectors by trigger kind. A Controller is not
// safe for concurrent use; parallel runs give every worker its own.
type Controller struct {
	tissue    tissue.Tissue
	detectors []detector.Detector
	terminal  []detector.TerminationDetector
	history   []detector.HistoryDetector
	byName    map[string]detector.Detector
}

// New builds every detector of inputs through the detector factory. Any
// construction failure aborts; detector names must be unique.
func New(inputs []detector.Input, t tissue.Tissue) (*Controller, error) {
	detectors := make([]detector.Detector, 0, len(inputs))
	for _, in := range inputs {
		d, err := detector.New(in, t)
		if err != nil {
			return nil, err
		}
		detectors = append(detectors, d)
	}
	return NewFromDetectors(detectors, t)
}

// NewFromDetectors wraps already built detectors.
func NewFromDetectors(detectors []detector.Detector, t tissue.Tissue) (*Controller, error) {
	c := &Controller{
		tissue: t,
		byName: make(map[string]detector.Detector, len(detectors)),
	}
	for _, d := range detectors {
		if _, dup := c.byName[d.Name()]; dup {
			return nil, fmt.Errorf("detector %q (%s): duplicate detector name", d.Name(), d.TallyType())
		}
		c.byName[d.Name()] = d
		c.detectors = append(c.detectors, d)

		switch v := d.(type) {
		case detector.TerminationDetector:
			c.terminal = append(c.terminal, v)
		case detector.HistoryDetector:
			c.history = append(c.history, v)
		default:
			return nil, fmt.Errorf("detector %q (%s): no trigger kind", d.Name(), d.TallyType())
		}
	}
	return c, nil
}

// Detectors returns the owned detectors in configuration order.
func (c *Controller) Detectors() []detector.Detector {
	return append([]detector.Detector(nil), c.detectors...)
}

// Detector looks a detector up by name.
func (c *Controller) Detector(name string) (detector.Detector, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// HasHistoryDetectors reports whether trajectories need to be replayed.
func (c *Controller) HasHistoryDetectors() bool { return len(c.history) > 0 }

// TerminationTally passes the photon to every terminal detector whose
// ContainsPoint accepts its terminal point.
func (c *Controller) TerminationTally(p *models.Photon) error {
	if len(p.History) == 0 {
		return nil
	}
	sp := p.Terminal()
	for _, d := range c.terminal {
		if !d.ContainsPoint(sp) {
			continue
		}
		if err := d.Tally(p); err != nil {
			return fmt.Errorf("detector %q: %w", d.Name(), err)
		}
	}
	return nil
}

// HistoryTally folds over the trajectory, handing every consecutive pair to
// every history detector. The first point only seeds the fold. The photon
// is closed on every detector even when one of them fails, so the steps
// tallied before the failure stay consistent in Mean and SecondMoment.
func (c *Controller) HistoryTally(p *models.Photon) error {
	if len(c.history) == 0 || len(p.History) == 0 {
		return nil
	}
	defer func() {
		for _, d := range c.history {
			d.EndPhoton()
		}
	}()
	prev := p.History[0]
	for _, cur := range p.History[1:] {
		region := c.tissue.RegionIndex(cur.Position)
		for _, d := range c.history {
			if err := d.Tally(prev, cur, region); err != nil {
				return fmt.Errorf("detector %q: %w", d.Name(), err)
			}
		}
		prev = cur
	}
	return nil
}

// Tally runs both dispatch sets for one photon.
func (c *Controller) Tally(p *models.Photon) error {
	if err := c.TerminationTally(p); err != nil {
		return err
	}
	return c.HistoryTally(p)
}

// NormalizeDetectors normalizes every detector with the number of launched
// photons.
func (c *Controller) NormalizeDetectors(numPhotons int64) error {
	for _, d := range c.detectors {
		if err := d.Normalize(numPhotons); err != nil {
			return err
		}
	}
	return nil
}

// Merge adds the raw sums of other, which must own detectors of the same
// names and types.
func (c *Controller) Merge(other *Controller) error {
	if len(other.detectors) != len(c.detectors) {
		return fmt.Errorf("cannot merge controllers with %d and %d detectors", len(c.detectors), len(other.detectors))
	}
	for _, d := range c.detectors {
		o, ok := other.byName[d.Name()]
		if !ok {
			return fmt.Errorf("detector %q: missing from merged controller", d.Name())
		}
		if err := d.Merge(o); err != nil {
			return err
		}
	}
	return nil
}
