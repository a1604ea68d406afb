// Package simulation replays recorded photon histories through a detector
// set in parallel.
//
// Every worker owns a private controller over a contiguous batch of photons.
// Raw sums are merged into one controller once every batch is done, and
// normalization runs exactly once on the merged result.
package simulation

import (
	"fmt"
	"runtime"

	"github.com/VirtualPhotonics/VTS-sub001/internal/models"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/controller"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/detector"
	"github.com/VirtualPhotonics/VTS-sub001/pkg/tissue"
)

// Params holds the run parameters.
type Params struct {
	// NumCores is the number of worker goroutines. Values below 1 use
	// runtime.NumCPU().
	NumCores int

	// NumPhotons is the number of launched photons used for normalization.
	// Zero means the number of replayed records; a larger value accounts
	// for launched photons that produced no record.
	NumPhotons int64

	// Verbose prints progress to standard output
	Verbose bool

	// Detectors configures the detector set of every worker
	Detectors []detector.Input
}

// Runner runs one detector configuration against one tissue.
type Runner struct {
	params *Params
	tissue tissue.Tissue
}

// NewRunner creates a runner. The detector inputs are validated by building
// one controller up front so configuration errors surface before any work.
func NewRunner(params *Params, t tissue.Tissue) (*Runner, error) {
	if params == nil {
		return nil, fmt.Errorf("simulation: nil parameters")
	}
	if _, err := controller.New(params.Detectors, t); err != nil {
		return nil, err
	}
	return &Runner{params: params, tissue: t}, nil
}

// numWorkers caps the configured core count at the number of photons.
func (r *Runner) numWorkers(numPhotons int) int {
	n := r.params.NumCores
	if n < 1 {
		n = runtime.NumCPU()
	}
	if n > numPhotons {
		n = numPhotons
	}
	if n < 1 {
		n = 1
	}
	return n
}

// batch returns the bounds of worker i's contiguous share of n photons.
func batch(i, workers, n int) (int, int) {
	size := n / workers
	extra := n % workers
	start := i*size + min(i, extra)
	end := start + size
	if i < extra {
		end++
	}
	return start, end
}

// NormalizationCount is the photon count N that Run normalizes with after
// replaying numRecords histories.
func (r *Runner) NormalizationCount(numRecords int) int64 {
	n := int64(numRecords)
	if r.params.NumPhotons > n {
		n = r.params.NumPhotons
	}
	return n
}

// Run tallies photons and returns the merged, normalized controller.
func (r *Runner) Run(photons []*models.Photon) (*controller.Controller, error) {
	if r.params.Verbose {
		fmt.Println("Step 1: Tallying photon histories...")
	}
	merged, err := r.tallyInParallel(photons)
	if err != nil {
		return nil, err
	}

	n := r.NormalizationCount(len(photons))
	if n == 0 {
		return nil, fmt.Errorf("simulation: no photons to normalize by")
	}
	if r.params.Verbose {
		fmt.Printf("Step 2: Normalizing %d detectors with N = %d...\n", len(merged.Detectors()), n)
	}
	if err := merged.NormalizeDetectors(n); err != nil {
		return nil, fmt.Errorf("failed to normalize detectors: %w", err)
	}
	return merged, nil
}

// tallyInParallel runs one private controller per batch and merges their
// raw sums in batch order.
func (r *Runner) tallyInParallel(photons []*models.Photon) (*controller.Controller, error) {
	workers := r.numWorkers(len(photons))

	type batchResult struct {
		idx int
		c   *controller.Controller
		err error
	}
	resultChan := make(chan batchResult)

	for i := 0; i < workers; i++ {
		start, end := batch(i, workers, len(photons))
		go func(idx int, records []*models.Photon) {
			c, err := controller.New(r.params.Detectors, r.tissue)
			if err == nil {
				for _, p := range records {
					if err = c.Tally(p); err != nil {
						break
					}
				}
			}
			resultChan <- batchResult{idx: idx, c: c, err: err}
		}(i, photons[start:end])
	}

	results := make([]*controller.Controller, workers)
	var firstErr error
	for completed := 0; completed < workers; completed++ {
		res := <-resultChan
		if res.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("batch %d failed: %w", res.idx, res.err)
		}
		results[res.idx] = res.c
		if r.params.Verbose {
			progress := float64(completed+1) / float64(workers) * 100
			fmt.Printf("\rTallying batches: %.1f%% complete", progress)
		}
	}
	if r.params.Verbose {
		fmt.Println()
	}
	if firstErr != nil {
		return nil, firstErr
	}

	merged := results[0]
	for _, c := range results[1:] {
		if err := merged.Merge(c); err != nil {
			return nil, fmt.Errorf("failed to merge batches: %w", err)
		}
	}
	return merged, nil
}
