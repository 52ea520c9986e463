package processor

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/chiquitav2/infraweave/internal/orchestrator/synch"
	apperrors "github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/internal/shared/models"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

// CreateInfrastructure materializes an empty infrastructure record in the
// service composer. Failure or cancellation rolls the record back before the
// error is returned.
type CreateInfrastructure struct {
	InfraID models.InfraID
}

func (c *CreateInfrastructure) Name() string { return "create_infrastructure" }

// Perform creates the infrastructure and returns its id.
func (c *CreateInfrastructure) Perform(ctx context.Context, p *Processor) (any, error) {
	log := p.logger.With("infra_id", string(c.InfraID))
	log.InfoContext(ctx, "creating infrastructure")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.composer.CreateInfrastructure(ctx, c.InfraID); err != nil {
		c.undo(ctx, p)
		if isCancellation(err) {
			return nil, err
		}
		return nil, apperrors.NewInfrastructureCreationError(c.InfraID, err)
	}
	if err := ctx.Err(); err != nil {
		c.undo(ctx, p)
		return nil, err
	}

	p.events.InfrastructureCreated(ctx, c.InfraID)
	log.InfoContext(ctx, "infrastructure created")
	return c.InfraID, nil
}

// undo removes the possibly half-created infrastructure record. Rollback
// errors are logged and discarded so the triggering error propagates.
func (c *CreateInfrastructure) undo(ctx context.Context, p *Processor) {
	ctx = context.WithoutCancel(ctx)
	p.logger.WarnContext(ctx, "rolling back infrastructure creation",
		"infra_id", string(c.InfraID))
	if _, err := (&DropInfrastructure{InfraID: c.InfraID}).Perform(ctx, p); err != nil {
		p.logger.ErrorCtx(ctx, "infrastructure rollback failed", err,
			"infra_id", string(c.InfraID))
	}
}

// CreateNode drives one node through the full creation flow: resolution,
// composer registration, cloud instantiation, persistence and readiness
// synchronization. Any failure or cancellation along the way tears the node
// back down before the error is returned; the accumulated instance data is
// attached to the error so the caller sees exactly how far creation got.
type CreateNode struct {
	Description *models.NodeDescription
}

func (c *CreateNode) Name() string { return "create_node" }

// Perform creates the node and returns its *models.InstanceData.
func (c *CreateNode) Perform(ctx context.Context, p *Processor) (any, error) {
	instance := &models.InstanceData{
		NodeID:      uuid.NewString(),
		InfraID:     c.Description.InfraID,
		UserID:      c.Description.UserID,
		Description: c.Description,
		CreatedAt:   time.Now().UTC(),
	}
	log := p.logger.WithNode(string(instance.InfraID), instance.NodeID).
		With("node_name", c.Description.Name)
	log.InfoContext(ctx, "creating node", "node_type", c.Description.Type)

	result, err := c.perform(ctx, p, instance, log)
	if err != nil {
		if !isCancellation(err) {
			err = apperrors.NewNodeCreationError(instance, err)
		}
		c.undo(ctx, p, instance, log)
		return nil, err
	}
	return result, nil
}

func (c *CreateNode) perform(ctx context.Context, p *Processor, instance *models.InstanceData, log *logger.Logger) (*models.InstanceData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := p.resolver.Resolve(ctx, instance.NodeID, c.Description, p.defaultCreateTimeout)
	if err != nil {
		return nil, err
	}
	instance.Resolved = resolved
	instance.BackendID = resolved.BackendID
	log.InfoContext(ctx, "node resolved", "backend_id", resolved.BackendID)

	if err := p.composer.RegisterNode(ctx, resolved); err != nil {
		return nil, err
	}

	instanceID, err := p.cloud.CreateNode(ctx, resolved)
	if err != nil {
		return nil, err
	}
	instance.InstanceID = instanceID
	log.InfoContext(ctx, "node instantiated", "instance_id", instanceID)

	if err := p.userData.RegisterStartedNode(ctx, instance.InfraID, c.Description.Name, instance); err != nil {
		return nil, err
	}

	if err := synch.WaitForNode(ctx, p.synchDeps(), instance, p.pollDelay, resolved.CreateTimeout); err != nil {
		return nil, err
	}

	p.events.NodeCreated(ctx, instance)
	log.InfoContext(ctx, "node ready")
	return instance, nil
}

// undo tears down whatever creation reached. It runs even when ctx is
// already cancelled; rollback errors are logged and discarded.
func (c *CreateNode) undo(ctx context.Context, p *Processor, instance *models.InstanceData, log *logger.Logger) {
	ctx = context.WithoutCancel(ctx)
	log.WarnContext(ctx, "rolling back node creation", "instance_id", instance.InstanceID)
	if _, err := (&DropNode{Instance: instance}).Perform(ctx, p); err != nil {
		log.ErrorCtx(ctx, "node rollback failed", err)
	}
}

// DropNode tears down one node: the compute resource first, then the
// composer registration. It tolerates partially created instances, so it
// doubles as the compensation for CreateNode.
type DropNode struct {
	Instance *models.InstanceData
}

func (c *DropNode) Name() string { return "drop_node" }

// Perform destroys the node and returns its node id.
func (c *DropNode) Perform(ctx context.Context, p *Processor) (any, error) {
	instance := c.Instance
	log := p.logger.WithNode(string(instance.InfraID), instance.NodeID)
	log.InfoContext(ctx, "dropping node", "instance_id", instance.InstanceID)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A node that never reached the cloud handler has nothing to destroy
	// there.
	if instance.InstanceID != "" {
		if err := p.cloud.DropNode(ctx, instance); err != nil {
			if isCancellation(err) {
				return nil, err
			}
			return nil, apperrors.NewMinorError(instance.InfraID, instance, err)
		}
	}

	if err := p.composer.DropNode(ctx, instance); err != nil &&
		!stderrors.Is(err, apperrors.ErrNodeNotFound) &&
		!stderrors.Is(err, apperrors.ErrInfraNotFound) {
		if isCancellation(err) {
			return nil, err
		}
		return nil, apperrors.NewMinorError(instance.InfraID, instance, err)
	}

	p.events.NodeDeleted(ctx, instance)
	log.InfoContext(ctx, "node dropped")
	return instance.NodeID, nil
}

// DropInfrastructure removes the infrastructure record from the service
// composer. Nodes are expected to have been dropped beforehand; the composer
// decides whether a non-empty infrastructure may be removed.
type DropInfrastructure struct {
	InfraID models.InfraID
}

func (c *DropInfrastructure) Name() string { return "drop_infrastructure" }

// Perform removes the infrastructure record and returns its id.
func (c *DropInfrastructure) Perform(ctx context.Context, p *Processor) (any, error) {
	log := p.logger.With("infra_id", string(c.InfraID))
	log.InfoContext(ctx, "dropping infrastructure")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.composer.DropInfrastructure(ctx, c.InfraID); err != nil &&
		!stderrors.Is(err, apperrors.ErrInfraNotFound) {
		if isCancellation(err) {
			return nil, err
		}
		return nil, apperrors.NewMinorError(c.InfraID, nil, err)
	}

	p.events.InfrastructureDeleted(ctx, c.InfraID)
	log.InfoContext(ctx, "infrastructure dropped")
	return c.InfraID, nil
}

// isCancellation reports whether err is context cancellation or deadline
// expiry, which propagate unclassified.
func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
