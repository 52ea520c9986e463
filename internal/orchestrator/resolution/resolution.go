// Package resolution turns abstract node descriptions into resolved node
// definitions the backends can act on. Resolvers are pluggable, registered
// under the implementation type tag carried by the node definition the
// information broker serves for the node's type.
package resolution

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/chiquitav2/infraweave/internal/orchestrator/broker"
	"github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/internal/shared/models"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

// DefaultImplementation is assumed when a node definition does not name its
// implementation type.
const DefaultImplementation = "cloudinit"

// Request carries everything a resolver needs for one node.
type Request struct {
	NodeID      string
	Description *models.NodeDescription

	// Definition is the raw node definition served by the information
	// broker for the node's type.
	Definition map[string]any

	// DefaultTimeout applies when the definition sets no create timeout.
	DefaultTimeout time.Duration
}

// Resolver produces a resolved node definition. Resolution is a pure
// function of the request plus broker lookups; it is performed once per node
// and its failures are fatal for that node, never retried.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (*models.ResolvedNodeDefinition, error)
}

// Deps bundles the collaborators available to resolvers.
type Deps struct {
	Broker broker.Broker
	Logger *logger.Logger
}

// Factory builds a resolver.
type Factory func(deps Deps) Resolver

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a resolver factory under an implementation tag.
func Register(tag string, factory Factory) error {
	if factory == nil {
		return errors.NewConfigError("resolution.implementation", fmt.Sprintf("nil factory for tag %q", tag), nil)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[tag]; exists {
		return errors.NewConfigError("resolution.implementation", fmt.Sprintf("resolver %q already registered", tag), nil)
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

// ResolveNode resolves one node description: it fetches the node definition
// for the description's type from the broker, dispatches to the resolver
// registered for the definition's implementation type, and classifies any
// failure as a resolution error.
func ResolveNode(ctx context.Context, deps Deps, nodeID string, desc *models.NodeDescription, defaultTimeout time.Duration) (*models.ResolvedNodeDefinition, error) {
	raw, err := deps.Broker.Lookup(ctx, broker.KeyNodeDefinition, broker.Query{
		InfraID:  desc.InfraID,
		NodeID:   nodeID,
		NodeType: desc.Type,
	})
	if err != nil {
		return nil, &errors.ResolutionError{NodeID: nodeID, Type: desc.Type, Err: err}
	}

	def, ok := raw.(map[string]any)
	if !ok {
		return nil, &errors.ResolutionError{
			NodeID: nodeID,
			Type:   desc.Type,
			Err:    fmt.Errorf("node definition is %T, expected map", raw),
		}
	}

	tag, _ := def["implementation_type"].(string)
	if tag == "" {
		tag = DefaultImplementation
	}

	registryMu.RLock()
	factory, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, &errors.ResolutionError{
			NodeID: nodeID,
			Type:   desc.Type,
			Err:    fmt.Errorf("no resolver for implementation %q", tag),
		}
	}

	resolved, err := factory(deps).Resolve(ctx, Request{
		NodeID:         nodeID,
		Description:    desc,
		Definition:     def,
		DefaultTimeout: defaultTimeout,
	})
	if err != nil {
		var re *errors.ResolutionError
		if stderrors.As(err, &re) {
			return nil, err
		}
		return nil, &errors.ResolutionError{NodeID: nodeID, Type: desc.Type, Err: err}
	}
	return resolved, nil
}
