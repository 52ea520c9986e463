// Package processor is the execution core of the orchestrator: it turns
// abstract lifecycle intents into ordered, compensatable operations against
// the service composer and the cloud handler. Commands are built through the
// Processor's factory methods, bound to the collaborators at execution time,
// and dispatched in batches through a pluggable execution strategy.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/chiquitav2/infraweave/internal/orchestrator/broker"
	"github.com/chiquitav2/infraweave/internal/orchestrator/eventlog"
	"github.com/chiquitav2/infraweave/internal/orchestrator/resolution"
	"github.com/chiquitav2/infraweave/internal/orchestrator/strategy"
	"github.com/chiquitav2/infraweave/internal/orchestrator/synch"
	"github.com/chiquitav2/infraweave/internal/shared/models"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

const (
	// DefaultPollDelay is the pause between readiness polls.
	DefaultPollDelay = 10 * time.Second

	// DefaultCreateTimeout bounds node creation when the resolved
	// definition does not set its own timeout.
	DefaultCreateTimeout = 10 * time.Minute
)

// Command is one independently executable unit of lifecycle work. Commands
// are single-shot: a command is discarded after one Perform and holds no
// state shared across calls. Each command runs its own compensation before
// returning a failure.
type Command interface {
	Name() string
	Perform(ctx context.Context, p *Processor) (any, error)
}

// Config wires a Processor to its collaborators.
type Config struct {
	Composer ServiceComposer
	Cloud    CloudHandler
	UserData UserDataStore
	Broker   broker.Broker

	// Events defaults to a no-op log.
	Events eventlog.Log

	// Resolver defaults to the registry-backed resolution service.
	Resolver Resolver

	// Strategy defaults to sequential execution.
	Strategy strategy.Strategy

	PollDelay            time.Duration
	DefaultCreateTimeout time.Duration

	Logger *logger.Logger
}

// Processor executes lifecycle command batches. It is stateless across calls
// apart from its injected collaborators and configuration; it holds no
// per-node state.
type Processor struct {
	composer ServiceComposer
	cloud    CloudHandler
	userData UserDataStore
	broker   broker.Broker
	events   eventlog.Log
	resolver Resolver
	strategy strategy.Strategy

	pollDelay            time.Duration
	defaultCreateTimeout time.Duration

	logger *logger.Logger
}

// New creates a Processor. Composer, Cloud, UserData and Broker are
// required.
func New(cfg Config) (*Processor, error) {
	switch {
	case cfg.Composer == nil:
		return nil, fmt.Errorf("processor: service composer is required")
	case cfg.Cloud == nil:
		return nil, fmt.Errorf("processor: cloud handler is required")
	case cfg.UserData == nil:
		return nil, fmt.Errorf("processor: user data store is required")
	case cfg.Broker == nil:
		return nil, fmt.Errorf("processor: information broker is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("processor")

	events := cfg.Events
	if events == nil {
		events = eventlog.Noop{}
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = resolution.NewService(resolution.Deps{Broker: cfg.Broker, Logger: log})
	}

	strat := cfg.Strategy
	if strat == nil {
		var err error
		strat, err = strategy.New("sequential", strategy.Options{Logger: log})
		if err != nil {
			return nil, err
		}
	}

	pollDelay := cfg.PollDelay
	if pollDelay <= 0 {
		pollDelay = DefaultPollDelay
	}
	createTimeout := cfg.DefaultCreateTimeout
	if createTimeout <= 0 {
		createTimeout = DefaultCreateTimeout
	}

	return &Processor{
		composer:             cfg.Composer,
		cloud:                cfg.Cloud,
		userData:             cfg.UserData,
		broker:               cfg.Broker,
		events:               events,
		resolver:             resolver,
		strategy:             strat,
		pollDelay:            pollDelay,
		defaultCreateTimeout: createTimeout,
		logger:               log,
	}, nil
}

// CreateInfrastructure returns a command that materializes an empty
// infrastructure record under the given pre-generated id.
func (p *Processor) CreateInfrastructure(infraID models.InfraID) Command {
	return &CreateInfrastructure{InfraID: infraID}
}

// CreateNode returns a command that creates one node from its description.
func (p *Processor) CreateNode(desc *models.NodeDescription) Command {
	return &CreateNode{Description: desc}
}

// DropNode returns a command that tears down one node instance.
func (p *Processor) DropNode(instance *models.InstanceData) Command {
	return &DropNode{Instance: instance}
}

// DropInfrastructure returns a command that removes an infrastructure
// record.
func (p *Processor) DropInfrastructure(infraID models.InfraID) Command {
	return &DropInfrastructure{InfraID: infraID}
}

// PushInstructions binds the processor to a batch of commands and executes
// it through the configured strategy. Results correspond to commands by
// position; the returned error is the strategy's batch outcome (first error
// under sequential execution, an aggregate under parallel execution).
func (p *Processor) PushInstructions(ctx context.Context, commands ...Command) ([]strategy.Result, error) {
	tasks := make([]strategy.Task, len(commands))
	for i, cmd := range commands {
		cmd := cmd
		tasks[i] = strategy.Task{
			Name: cmd.Name(),
			Run: func(ctx context.Context) (any, error) {
				return cmd.Perform(ctx, p)
			},
		}
	}
	return p.strategy.Run(ctx, tasks)
}

func (p *Processor) synchDeps() synch.Deps {
	return synch.Deps{Broker: p.broker, Logger: p.logger}
}
