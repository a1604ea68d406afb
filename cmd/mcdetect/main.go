package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/VirtualPhotonics/VTS-sub001/pkg/config"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/detector"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/report"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/simulation"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "mcdetect.yaml", "YAML configuration file (defaults are used when missing)")
	historiesPath := flag.String("histories", "", "YAML file of recorded photon histories")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	writeMaps := flag.Bool("maps", false, "Render rank-2 and rank-3 results as PNG maps")
	initConfig := flag.Bool("init", false, "Write a default configuration file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Validate inputs
	if *historiesPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}

	tis, err := cfg.BuildTissue()
	if err != nil {
		log.Fatalf("Invalid tissue: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("MONTE CARLO DETECTOR TALLIES FROM RECORDED PHOTON HISTORIES")
	fmt.Println("================================")

	photons, err := config.LoadHistories(*historiesPath)
	if err != nil {
		log.Fatalf("Failed to load histories: %v", err)
	}
	fmt.Printf("Loaded %d photon histories from %s\n", len(photons), *historiesPath)

	params := &simulation.Params{
		NumCores:   cfg.Processing.NumCores,
		NumPhotons: cfg.Processing.NumPhotons,
		Verbose:    cfg.Output.Verbose,
		Detectors:  cfg.Detectors,
	}
	runner, err := simulation.NewRunner(params, tis)
	if err != nil {
		log.Fatalf("Invalid detector configuration: %v", err)
	}

	startTime := time.Now()
	merged, err := runner.Run(photons)
	if err != nil {
		log.Fatalf("Tally failed: %v", err)
	}
	processingTime := time.Since(startTime)

	rep, err := report.Collect(merged, runner.NormalizationCount(len(photons)))
	if err != nil {
		log.Fatalf("Failed to collect results: %v", err)
	}

	fmt.Printf("\nRun %s completed in %.2f seconds (N = %d)\n\n", rep.RunID, processingTime.Seconds(), rep.NumPhotons)
	fmt.Printf("%-36s %-34s %-16s %10s %14s\n", "Detector", "Tally type", "Shape", "Count", "Total")
	for _, res := range rep.Results {
		fmt.Printf("%-36s %-34s %-16v %10d %14.6g\n", res.Name, res.TallyType, res.Shape, res.TallyCount, res.Total())
		if se := res.StandardError(); len(se) == 1 {
			fmt.Printf("%-36s standard error %.6g\n", "", se[0])
		}
		if res.Rank() > 0 && res.AxisNames[res.Rank()-1] == detector.AxisTime && !res.IsComplex() {
			freq, err := report.FrequencyResponse(res)
			if err != nil {
				log.Printf("Warning: %v", err)
				continue
			}
			axis := freq.Axes[freq.Rank()-1]
			fmt.Printf("%-36s frequency response: %d frequencies up to %.4g GHz\n", "", axis.Count, axis.Stop)
		}
	}

	if *writeMaps {
		fmt.Printf("\nRendering maps to: %s\n", cfg.Output.MapDir)
		for _, res := range rep.Results {
			if res.IsComplex() || (res.Rank() != 2 && res.Rank() != 3) {
				continue
			}
			viewer, err := visualization.NewViewer(res)
			if err != nil {
				log.Printf("Warning: %v", err)
				continue
			}
			viewer.SetScale(cfg.Output.MapScale)
			files, err := viewer.Save(cfg.Output.MapDir)
			if err != nil {
				log.Printf("Warning: Failed to render %s: %v", res.Name, err)
				continue
			}
			fmt.Printf("- %s: %d image(s)\n", res.Name, len(files))
		}
	}
}
