package attack

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// RunAll runs one attack per objective, at most concurrency at a time (no
// limit when concurrency < 1). Runs are independent: a failing run does not
// stop the others. Results are in objective order; the returned error joins
// the errors of every failed run.
func (o *Orchestrator) RunAll(ctx context.Context, objectives []string, maxTurns, concurrency int) ([]*Result, error) {
	results := make([]*Result, len(objectives))
	errs := make([]error, len(objectives))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, objective := range objectives {
		g.Go(func() error {
			results[i], errs[i] = o.Run(ctx, objective, maxTurns)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
