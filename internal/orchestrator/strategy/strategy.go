// Package strategy decides how a batch of independent lifecycle commands is
// executed: sequentially with fail-fast semantics, or concurrently on a
// bounded worker pool. Strategies never compensate: each command carries its
// own compensation and has already run it by the time its error surfaces
// here.
package strategy

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

// ErrSkipped marks batch positions that were never started because an
// earlier command failed under fail-fast execution.
var ErrSkipped = stderrors.New("command skipped: earlier command in batch failed")

// Task is one unit of a batch: a named thunk around a command's Perform.
type Task struct {
	Name string
	Run  func(ctx context.Context) (any, error)
}

// Result is the outcome of one task. Results correspond 1:1 by position to
// the submitted tasks regardless of execution order.
type Result struct {
	Index int
	Name  string
	Value any
	Err   error
}

// Strategy runs a batch of tasks.
type Strategy interface {
	Name() string
	Run(ctx context.Context, tasks []Task) ([]Result, error)
}

// Options configures strategy construction.
type Options struct {
	// Workers bounds concurrent task execution for strategies that run
	// tasks in parallel. Zero means the strategy default.
	Workers int
	Logger  *logger.Logger
}

// Factory builds a strategy.
type Factory func(opts Options) Strategy

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a strategy factory under a name.
func Register(name string, factory Factory) error {
	if factory == nil {
		return errors.NewConfigError("strategy", fmt.Sprintf("nil factory for %q", name), nil)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return errors.NewConfigError("strategy", fmt.Sprintf("strategy %q already registered", name), nil)
	}
	registry[name] = factory
	return nil
}

// MustRegister is Register, panicking on error. For package init use.
func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// New instantiates the strategy registered under name. An unknown name is a
// configuration error.
func New(name string, opts Options) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.NewConfigError("strategy", fmt.Sprintf("unknown strategy %q", name), nil)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return factory(opts), nil
}

// BatchError aggregates the failures of a concurrently executed batch.
// Successful siblings are not rolled back; compensation is purely
// per-command.
type BatchError struct {
	Failures []Result
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("batch: command %q failed: %v", e.Failures[0].Name, e.Failures[0].Err)
	}
	return fmt.Sprintf("batch: %d commands failed, first (%q): %v",
		len(e.Failures), e.Failures[0].Name, e.Failures[0].Err)
}

// Unwrap exposes every failure for errors.Is/As matching.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
