// Package eventlog emits lifecycle notifications for infrastructures and
// nodes. Notifications are fire-and-forget: a failing sink must never abort
// the orchestration operation it describes, so implementations log delivery
// problems and move on.
package eventlog

import (
	"context"
	"time"

	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// Event type names fired on the bus.
const (
	EventInfrastructureCreated = "infrastructure.created"
	EventInfrastructureDeleted = "infrastructure.deleted"
	EventNodeCreated           = "node.created"
	EventNodeDeleted           = "node.deleted"
)

// InfrastructureEvent is the payload of infrastructure lifecycle events.
type InfrastructureEvent struct {
	InfraID   models.InfraID `json:"infra_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// NodeEvent is the payload of node lifecycle events.
type NodeEvent struct {
	InfraID    models.InfraID `json:"infra_id"`
	NodeID     string         `json:"node_id"`
	NodeName   string         `json:"node_name,omitempty"`
	InstanceID string         `json:"instance_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Log records lifecycle events.
type Log interface {
	InfrastructureCreated(ctx context.Context, infraID models.InfraID)
	InfrastructureDeleted(ctx context.Context, infraID models.InfraID)
	NodeCreated(ctx context.Context, instance *models.InstanceData)
	NodeDeleted(ctx context.Context, instance *models.InstanceData)
}

// Noop is a Log that records nothing.
type Noop struct{}

func (Noop) InfrastructureCreated(context.Context, models.InfraID) {}
func (Noop) InfrastructureDeleted(context.Context, models.InfraID) {}
func (Noop) NodeCreated(context.Context, *models.InstanceData)     {}
func (Noop) NodeDeleted(context.Context, *models.InstanceData)     {}

func nodeEvent(instance *models.InstanceData) NodeEvent {
	ev := NodeEvent{Timestamp: time.Now()}
	if instance != nil {
		ev.InfraID = instance.InfraID
		ev.NodeID = instance.NodeID
		ev.NodeName = instance.NodeName()
		ev.InstanceID = instance.InstanceID
	}
	return ev
}
