package sim

import (
	"context"
	"fmt"
	"sync"
)

// Factory builds the simulator for one ensemble member. Each member must
// own its engine and loop; nothing is shared between runs.
type Factory func(ctx context.Context, run int) (*Simulator, error)

type Ensemble struct {
	factory Factory
	numRuns int
}

func NewEnsemble(factory Factory, numRuns int) *Ensemble {
	return &Ensemble{factory: factory, numRuns: numRuns}
}

// RunAll executes every member concurrently and returns results and errors
// in member order. A failed member may still carry a partial result.
func (e *Ensemble) RunAll(ctx context.Context, cfg Config) ([]*Result, []error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			s, err := e.factory(ctx, idx)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = s.Run(ctx, cfg)
		}(i)
	}

	wg.Wait()
	return results, errs
}

// Run is RunAll that fails on the first member error.
func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results, errs := e.RunAll(ctx, cfg)
	for i, err := range errs {
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i, err)
		}
	}
	return results, nil
}
