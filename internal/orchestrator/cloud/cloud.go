// Package cloud contains the cloud handler backends: the adapters that turn
// resolved node definitions into running compute resources. The processor
// talks to a single handler; the Dispatcher fans out to the backend named by
// each definition.
package cloud

import (
	"context"
	"fmt"

	"github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// Handler provisions and destroys compute resources for one backend.
type Handler interface {
	CreateNode(ctx context.Context, def *models.ResolvedNodeDefinition) (string, error)
	DropNode(ctx context.Context, instance *models.InstanceData) error
}

// Dispatcher routes cloud handler calls to the backend named by the resolved
// node definition. It implements Handler itself, so the processor sees one
// handler regardless of how many backends are configured.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher creates a dispatcher over a fixed backend set.
func NewDispatcher(handlers map[string]Handler) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler, len(handlers))}
	for id, h := range handlers {
		d.handlers[id] = h
	}
	return d
}

func (d *Dispatcher) handler(backendID string) (Handler, error) {
	h, ok := d.handlers[backendID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownBackend, backendID)
	}
	return h, nil
}

// CreateNode dispatches to the definition's backend.
func (d *Dispatcher) CreateNode(ctx context.Context, def *models.ResolvedNodeDefinition) (string, error) {
	h, err := d.handler(def.BackendID)
	if err != nil {
		return "", err
	}
	return h.CreateNode(ctx, def)
}

// DropNode dispatches to the backend that created the instance.
func (d *Dispatcher) DropNode(ctx context.Context, instance *models.InstanceData) error {
	h, err := d.handler(instance.BackendID)
	if err != nil {
		return err
	}
	return h.DropNode(ctx, instance)
}
