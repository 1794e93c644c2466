package runner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunScenarios runs every scenario concurrently, each starting after its
// StartTime offset. Results are returned in the order of scenarios. A
// scenario whose start offset had not elapsed when ctx was cancelled
// reports an empty Result, and ctx's error is returned.
func RunScenarios(ctx context.Context, scenarios []Scenario, opt Options) ([]Result, error) {
	results := make([]Result, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)

	for i, sc := range scenarios {
		i, sc := i, sc
		results[i] = Result{Scenario: sc.Name}
		g.Go(func() error {
			if sc.StartTime > 0 {
				timer := time.NewTimer(sc.StartTime)
				defer timer.Stop()
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-timer.C:
				}
			}
			scOpt := opt
			if scOpt.PoissonSampler == nil {
				scOpt.RandomSeed = opt.RandomSeed + int64(i)
			}
			results[i] = New(sc, scOpt).Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
