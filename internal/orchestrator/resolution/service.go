package resolution

import (
	"context"
	"time"

	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// Service is the registry-backed resolution collaborator handed to the
// processor.
type Service struct {
	deps Deps
}

// NewService creates a resolution service over the given collaborators.
func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

// Resolve resolves one node description via the registered resolvers.
func (s *Service) Resolve(ctx context.Context, nodeID string, desc *models.NodeDescription, defaultTimeout time.Duration) (*models.ResolvedNodeDefinition, error) {
	return ResolveNode(ctx, s.deps, nodeID, desc, defaultTimeout)
}
