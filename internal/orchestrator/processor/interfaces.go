package processor

import (
	"context"
	"time"

	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// ServiceComposer is the external system tracking configuration and topology
// membership of nodes within an infrastructure. Calls are synchronous and
// may block; implementations honor ctx.
type ServiceComposer interface {
	CreateInfrastructure(ctx context.Context, infraID models.InfraID) error
	DropInfrastructure(ctx context.Context, infraID models.InfraID) error
	RegisterNode(ctx context.Context, def *models.ResolvedNodeDefinition) error
	DropNode(ctx context.Context, instance *models.InstanceData) error
}

// CloudHandler is the external system that provisions and destroys compute
// resources. CreateNode returns the provisioning system's instance id.
type CloudHandler interface {
	CreateNode(ctx context.Context, def *models.ResolvedNodeDefinition) (string, error)
	DropNode(ctx context.Context, instance *models.InstanceData) error
}

// UserDataStore persists instance records of nodes whose provisioning has
// started.
type UserDataStore interface {
	RegisterStartedNode(ctx context.Context, infraID models.InfraID, nodeName string, instance *models.InstanceData) error
}

// Resolver enriches an abstract node description into a resolved node
// definition. Resolution failures are fatal for the node and not retried.
type Resolver interface {
	Resolve(ctx context.Context, nodeID string, desc *models.NodeDescription, defaultTimeout time.Duration) (*models.ResolvedNodeDefinition, error)
}
