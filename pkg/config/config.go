// Package config provides configuration loading and management for mcdetect.
// It handles loading configuration and recorded photon histories from YAML
// files and provides default values.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/binning"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/detector"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/weighting"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel tallying
		NumCores int `yaml:"numCores"`

		// NumPhotons is the number of launched photons; 0 means the number
		// of recorded histories
		NumPhotons int64 `yaml:"numPhotons"`
	} `yaml:"processing"`

	// Tissue the histories were simulated in
	Tissue struct {
		// AbsorptionWeighting is Analog, Discrete or Continuous
		AbsorptionWeighting weighting.Type `yaml:"absorptionWeighting"`

		// Above and Below are the ambient media
		Above  models.OpticalProperties `yaml:"above"`
		Layers []tissue.Layer           `yaml:"layers"`
		Below  models.OpticalProperties `yaml:"below"`
	} `yaml:"tissue"`

	// Detectors to tally
	Detectors []detector.Input `yaml:"detectors"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// MapDir is where rank-2 and rank-3 results are rendered
		MapDir string `yaml:"mapDir"`

		// MapScale enlarges maps and adds a caption; 0 writes one pixel per bin
		MapScale int `yaml:"mapScale"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.NumPhotons = 0

	// Semi-infinite-like slab in air
	air := models.OpticalProperties{Mua: 0, Mus: 1e-10, G: 1, N: 1}
	cfg.Tissue.AbsorptionWeighting = weighting.Discrete
	cfg.Tissue.Above = air
	cfg.Tissue.Layers = []tissue.Layer{
		{ZStart: 0, ZStop: 100, Ops: models.OpticalProperties{Mua: 0.01, Mus: 1, G: 0.8, N: 1.4}},
	}
	cfg.Tissue.Below = air

	// Set default detectors
	rho := binning.NewAxis(0, 10, 101)
	cfg.Detectors = []detector.Input{
		{TallyType: detector.RDiffuse, TallySecondMoment: true},
		{TallyType: detector.ROfRho, TallySecondMoment: true, Axes: map[string]binning.Axis{detector.AxisRho: rho}},
		{TallyType: detector.ROfRhoAndTime, Axes: map[string]binning.Axis{
			detector.AxisRho: rho, detector.AxisTime: binning.NewAxis(0, 1, 101),
		}},
		{TallyType: detector.TDiffuse},
		{TallyType: detector.ATotal},
		{TallyType: detector.FluenceOfRhoAndZ, Axes: map[string]binning.Axis{
			detector.AxisRho: rho, detector.AxisZ: binning.NewAxis(0, 10, 101),
		}},
	}

	// Set default output parameters
	cfg.Output.Verbose = true
	cfg.Output.MapDir = "maps"
	cfg.Output.MapScale = 8

	return cfg
}

// Validate checks what can be checked without building the detectors.
func (cfg *Config) Validate() error {
	if err := cfg.Tissue.AbsorptionWeighting.Validate(); err != nil {
		return err
	}
	if cfg.Output.MapScale < 0 {
		return fmt.Errorf("mapScale must be non-negative, got %d", cfg.Output.MapScale)
	}
	if cfg.Processing.NumPhotons < 0 {
		return fmt.Errorf("numPhotons must be non-negative, got %d", cfg.Processing.NumPhotons)
	}
	registered := make(map[detector.TallyType]bool)
	for _, tt := range detector.Registered() {
		registered[tt] = true
	}
	for _, in := range cfg.Detectors {
		if !registered[in.TallyType] {
			return fmt.Errorf("detector %q: %w: %q", in.DetectorName(), detector.ErrUnknownTallyType, in.TallyType)
		}
	}
	return nil
}

// BuildTissue builds the multi-layer tissue described by the configuration.
func (cfg *Config) BuildTissue() (*tissue.MultiLayer, error) {
	return tissue.NewMultiLayer(cfg.Tissue.Above, cfg.Tissue.Layers, cfg.Tissue.Below, cfg.Tissue.AbsorptionWeighting)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// LoadHistories reads recorded photons from a YAML file. The file holds one
// or more documents, each a sequence of photon records.
func LoadHistories(path string) ([]*models.Photon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening histories file: %w", err)
	}
	defer f.Close()

	var photons []*models.Photon
	dec := yaml.NewDecoder(f)
	for doc := 0; ; doc++ {
		var batch []*models.Photon
		err := dec.Decode(&batch)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing histories document %d: %w", doc, err)
		}
		photons = append(photons, batch...)
	}
	return photons, nil
}

// SaveHistories writes photons as a single YAML document.
func SaveHistories(photons []*models.Photon, path string) error {
	data, err := yaml.Marshal(photons)
	if err != nil {
		return fmt.Errorf("error marshaling histories: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing histories file: %w", err)
	}
	return nil
}
