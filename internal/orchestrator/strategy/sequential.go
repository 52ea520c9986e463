package strategy

import (
	"context"
	"log/slog"

	"github.com/chiquitav2/infraweave/pkg/logger"
)

func init() {
	MustRegister("sequential", func(opts Options) Strategy {
		return &Sequential{logger: opts.Logger}
	})
}

// Sequential executes tasks in submission order and fails fast: the first
// error aborts the rest of the batch. The failing command's own compensation
// has already run inside its Perform by the time the error reaches here.
type Sequential struct {
	logger *logger.Logger
}

func (s *Sequential) Name() string { return "sequential" }

func (s *Sequential) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	results := make([]Result, len(tasks))

	for i, task := range tasks {
		results[i] = Result{Index: i, Name: task.Name}

		if err := ctx.Err(); err != nil {
			results[i].Err = err
			s.skipRemaining(results, tasks, i+1)
			return results, err
		}

		value, err := task.Run(ctx)
		results[i].Value = value
		results[i].Err = err

		if err != nil {
			s.logger.Debug("batch aborted",
				slog.String("command", task.Name),
				slog.Int("position", i),
				slog.Int("skipped", len(tasks)-i-1))
			s.skipRemaining(results, tasks, i+1)
			return results, err
		}
	}
	return results, nil
}

func (s *Sequential) skipRemaining(results []Result, tasks []Task, from int) {
	for i := from; i < len(tasks); i++ {
		results[i] = Result{Index: i, Name: tasks[i].Name, Err: ErrSkipped}
	}
}
