package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/detector"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/weighting"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	tis, err := cfg.BuildTissue()
	if err != nil {
		t.Fatal(err)
	}
	if len(tis.Regions()) != 3 {
		t.Errorf("Expected 3 regions, got %d", len(tis.Regions()))
	}
	for _, in := range cfg.Detectors {
		if _, err := detector.New(in, tis); err != nil {
			t.Errorf("Default detector %s: %v", in.TallyType, err)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Detectors) != len(DefaultConfig().Detectors) {
		t.Error("Missing file should yield the default configuration")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultConfig()
	if cfg.Tissue.AbsorptionWeighting != weighting.Discrete {
		t.Errorf("Weighting lost in round trip: %v", cfg.Tissue.AbsorptionWeighting)
	}
	if len(cfg.Detectors) != len(def.Detectors) {
		t.Fatalf("Expected %d detectors, got %d", len(def.Detectors), len(cfg.Detectors))
	}
	rho := cfg.Detectors[1].Axes[detector.AxisRho]
	if rho != def.Detectors[1].Axes[detector.AxisRho] {
		t.Errorf("Axis lost in round trip: %+v", rho)
	}
	if cfg.Tissue.Layers[0].Ops != def.Tissue.Layers[0].Ops {
		t.Errorf("Layer properties lost in round trip: %+v", cfg.Tissue.Layers[0].Ops)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
processing:
  numCores: 2
  numPhotons: 1000
tissue:
  absorptionWeighting: CAW
  above: {mua: 0, mus: 1e-10, g: 1, n: 1}
  below: {mua: 0, mus: 1e-10, g: 1, n: 1}
  layers:
    - zStart: 0
      zStop: 5
      ops: {mua: 0.1, mus: 10, g: 0.9, n: 1.33}
detectors:
  - tallyType: ROfRho
    name: fiber
    numericalAperture: 0.22
    axes:
      rho: {start: 0, stop: 2, count: 21}
  - tallyType: pMCROfRho
    axes:
      rho: {start: 0, stop: 2, count: 21}
    perturbedRegionsIndices: [1]
    perturbedOps:
      - {mua: 0, mus: 1e-10, g: 1, n: 1}
      - {mua: 0.2, mus: 10, g: 0.9, n: 1.33}
      - {mua: 0, mus: 1e-10, g: 1, n: 1}
output:
  verbose: false
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Processing.NumCores != 2 || cfg.Processing.NumPhotons != 1000 {
		t.Errorf("Unexpected processing section %+v", cfg.Processing)
	}
	if cfg.Tissue.AbsorptionWeighting != weighting.Continuous {
		t.Errorf("Expected Continuous weighting, got %v", cfg.Tissue.AbsorptionWeighting)
	}
	if len(cfg.Detectors) != 2 {
		t.Fatalf("Expected the detector list to be replaced, got %d", len(cfg.Detectors))
	}
	fiber := cfg.Detectors[0]
	if fiber.DetectorName() != "fiber" || fiber.NumericalAperture == nil || *fiber.NumericalAperture != 0.22 {
		t.Errorf("Unexpected fiber detector %+v", fiber)
	}
	if cfg.Output.Verbose {
		t.Error("Expected verbose to be overridden")
	}

	tis, err := cfg.BuildTissue()
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range cfg.Detectors {
		if _, err := detector.New(in, tis); err != nil {
			t.Errorf("%s: %v", in.DetectorName(), err)
		}
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	os.WriteFile(unknown, []byte("detectors:\n  - tallyType: ROfMoon\n"), 0644)
	if _, err := LoadConfig(unknown); !errors.Is(err, detector.ErrUnknownTallyType) {
		t.Errorf("Expected ErrUnknownTallyType, got %v", err)
	}

	badWeighting := filepath.Join(dir, "weighting.yaml")
	os.WriteFile(badWeighting, []byte("tissue:\n  absorptionWeighting: Quantum\n"), 0644)
	if _, err := LoadConfig(badWeighting); !errors.Is(err, weighting.ErrUnknownType) {
		t.Errorf("Expected ErrUnknownType, got %v", err)
	}
}

func TestHistoriesRoundTrip(t *testing.T) {
	photons := []*models.Photon{
		{
			History: []models.StatePoint{
				{Direction: r3.Vec{Z: 1}, Weight: 1, State: models.Alive},
				{Position: r3.Vec{X: 0.4, Y: -0.3}, Direction: r3.Vec{Z: -1}, Weight: 0.7, TotalTime: 0.02, State: models.ExitedTop},
			},
			Collisions: models.CollisionInfo{{}, {NumberOfCollisions: 4, PathLength: 2.5}, {}},
		},
		{
			History: []models.StatePoint{
				{Direction: r3.Vec{Z: 1}, Weight: 1, State: models.Alive},
				{Position: r3.Vec{Z: 5}, Direction: r3.Vec{Z: 1}, Weight: 1, State: models.ExitedBottom},
			},
		},
	}
	path := filepath.Join(t.TempDir(), "histories.yaml")
	if err := SaveHistories(photons, path); err != nil {
		t.Fatal(err)
	}

	// append a second document
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("---\n- history:\n    - {position: {x: 0, y: 0, z: 0}, direction: {x: 0, y: 0, z: 1}, weight: 1, state: Alive}\n")
	f.Close()

	loaded, err := LoadHistories(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Expected 3 photons, got %d", len(loaded))
	}
	if got := loaded[0].Terminal(); got != photons[0].Terminal() {
		t.Errorf("Terminal point changed: %+v vs %+v", got, photons[0].Terminal())
	}
	if loaded[0].Collisions[1] != photons[0].Collisions[1] {
		t.Errorf("Collision info changed: %+v", loaded[0].Collisions[1])
	}
	if loaded[1].Terminal().State != models.ExitedBottom {
		t.Errorf("Unexpected state %v", loaded[1].Terminal().State)
	}

	if _, err := LoadHistories(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing histories file")
	}
}
