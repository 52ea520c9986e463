// Package synch blocks node creation until the node's readiness strategy
// reports ready or the creation timeout fires. Strategies are pluggable and
// selected per node by the tag found in the resolved definition's
// synchronization configuration.
package synch

import (
	"context"
	"fmt"
	"sync"

	"github.com/chiquitav2/infraweave/internal/orchestrator/broker"
	"github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/internal/shared/models"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

// DefaultProtocol is used when a resolved definition does not pick a
// strategy: the node counts as ready as soon as the information broker
// reports basic network reachability.
const DefaultProtocol = "reachability"

// Strategy decides whether a freshly created node is usable. Implementations
// must treat internal probe failures as "not yet ready" rather than
// returning an error; a returned error is logged and counted as not ready,
// so only the caller-imposed deadline ends the poll loop.
type Strategy interface {
	IsReady(ctx context.Context) (bool, error)
}

// Deps bundles the collaborators a strategy may consult.
type Deps struct {
	Broker broker.Broker
	Logger *logger.Logger
}

// Factory builds a strategy bound to one node. cfg is the per-node
// synchronization configuration from the resolved definition.
type Factory func(deps Deps, instance *models.InstanceData, cfg map[string]any) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a strategy factory under a tag. Registering a tag twice is
// an error.
func Register(tag string, factory Factory) error {
	if factory == nil {
		return errors.NewConfigError("synch.protocol", fmt.Sprintf("nil factory for tag %q", tag), nil)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[tag]; exists {
		return errors.NewConfigError("synch.protocol", fmt.Sprintf("strategy %q already registered", tag), nil)
	}
	registry[tag] = factory
	return nil
}

// MustRegister is Register, panicking on error. For package init use.
func MustRegister(tag string, factory Factory) {
	if err := Register(tag, factory); err != nil {
		panic(err)
	}
}

// New instantiates the strategy registered under tag. An unknown tag is a
// configuration error, reported immediately and never retried.
func New(tag string, deps Deps, instance *models.InstanceData, cfg map[string]any) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[tag]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.NewConfigError("synch.protocol", fmt.Sprintf("unknown strategy tag %q", tag), nil)
	}
	return factory(deps, instance, cfg)
}

// Protocols returns the registered strategy tags.
func Protocols() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	return tags
}
