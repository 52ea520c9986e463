// Package composer provides a process-local service composer: it tracks
// which nodes belong to which infrastructure. Real deployments point the
// processor at an external composer service; this implementation backs local
// runs and the test suite, and doubles as the reference for the contract's
// membership semantics.
package composer

import (
	"context"
	"fmt"
	"sync"

	"github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// InMemory tracks infrastructure membership in process memory. Safe for
// concurrent use; the parallel execution strategy registers nodes from
// multiple workers.
type InMemory struct {
	mu      sync.RWMutex
	members map[models.InfraID]map[string]*models.ResolvedNodeDefinition
}

// NewInMemory creates an empty composer.
func NewInMemory() *InMemory {
	return &InMemory{
		members: make(map[models.InfraID]map[string]*models.ResolvedNodeDefinition),
	}
}

// CreateInfrastructure materializes an empty infrastructure record.
// Creating an existing infrastructure is a no-op.
func (c *InMemory) CreateInfrastructure(_ context.Context, infraID models.InfraID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[infraID]; !ok {
		c.members[infraID] = make(map[string]*models.ResolvedNodeDefinition)
	}
	return nil
}

// DropInfrastructure removes the infrastructure record.
func (c *InMemory) DropInfrastructure(_ context.Context, infraID models.InfraID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[infraID]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrInfraNotFound, infraID)
	}
	delete(c.members, infraID)
	return nil
}

// RegisterNode adds a resolved node to its infrastructure's membership.
func (c *InMemory) RegisterNode(_ context.Context, def *models.ResolvedNodeDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	infraID := def.Description.InfraID
	nodes, ok := c.members[infraID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrInfraNotFound, infraID)
	}
	nodes[def.NodeID] = def
	return nil
}

// DropNode removes a node from its infrastructure's membership. Dropping a
// node that was never registered reports ErrNodeNotFound; compensation
// callers treat that as already-done.
func (c *InMemory) DropNode(_ context.Context, instance *models.InstanceData) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nodes, ok := c.members[instance.InfraID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrInfraNotFound, instance.InfraID)
	}
	if _, ok := nodes[instance.NodeID]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrNodeNotFound, instance.NodeID)
	}
	delete(nodes, instance.NodeID)
	return nil
}

// Membership returns the node ids registered under an infrastructure.
func (c *InMemory) Membership(_ context.Context, infraID models.InfraID) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	nodes, ok := c.members[infraID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrInfraNotFound, infraID)
	}
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	return ids, nil
}
