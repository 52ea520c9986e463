package strategy

import (
	"context"
	"log/slog"

	"github.com/chiquitav2/infraweave/pkg/logger"
)

// DefaultWorkers bounds the parallel strategy's pool when the configuration
// does not say otherwise.
const DefaultWorkers = 4

func init() {
	MustRegister("parallel", func(opts Options) Strategy {
		workers := opts.Workers
		if workers <= 0 {
			workers = DefaultWorkers
		}
		return &Parallel{workers: workers, logger: opts.Logger}
	})
}

// Parallel executes independent tasks concurrently on a bounded worker pool.
// All tasks run to completion regardless of sibling failures; a failed batch
// reports every failure in one aggregate error while successful siblings
// keep their results. A task blocking in a readiness poll occupies only its
// own worker.
type Parallel struct {
	workers int
	logger  *logger.Logger
}

func (p *Parallel) Name() string { return "parallel" }

func (p *Parallel) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	results := make([]Result, len(tasks))
	resultCh := make(chan Result, len(tasks))
	sem := make(chan struct{}, p.workers)

	for i, task := range tasks {
		i, task := i, task
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()

			value, err := task.Run(ctx)
			resultCh <- Result{Index: i, Name: task.Name, Value: value, Err: err}
		}()
	}

	var failures []Result
	for range tasks {
		res := <-resultCh
		results[res.Index] = res
		if res.Err != nil {
			failures = append(failures, res)
		}
	}

	if len(failures) > 0 {
		// Stable order for the aggregate: batch position, not completion.
		ordered := make([]Result, 0, len(failures))
		for _, res := range results {
			if res.Err != nil {
				ordered = append(ordered, res)
			}
		}
		p.logger.Debug("parallel batch finished with failures",
			slog.Int("failed", len(ordered)),
			slog.Int("total", len(tasks)))
		return results, &BatchError{Failures: ordered}
	}
	return results, nil
}
