package eventlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/gookit/event"

	"github.com/chiquitav2/infraweave/internal/shared/models"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

// Bus is a Log that fires lifecycle events on a gookit event manager so that
// in-process subscribers (audit sinks, progress reporters) can react.
type Bus struct {
	bus    *event.Manager
	logger *logger.Logger
}

// NewBus creates an event log backed by a dedicated event manager.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		bus:    event.NewManager("infraweave"),
		logger: log.WithComponent("eventlog"),
	}
}

// Subscribe registers a listener for one of the lifecycle event names.
func (b *Bus) Subscribe(name string, listener event.Listener) {
	b.bus.On(name, listener, event.Normal)
}

// ExtractPayload safely extracts and casts an event payload.
func ExtractPayload[T any](e event.Event) (T, bool) {
	var zero T
	payload := e.Get("payload")
	if payload == nil {
		return zero, false
	}
	typed, ok := payload.(T)
	return typed, ok
}

func (b *Bus) InfrastructureCreated(ctx context.Context, infraID models.InfraID) {
	b.fire(ctx, EventInfrastructureCreated, InfrastructureEvent{
		InfraID:   infraID,
		Timestamp: time.Now(),
	})
}

func (b *Bus) InfrastructureDeleted(ctx context.Context, infraID models.InfraID) {
	b.fire(ctx, EventInfrastructureDeleted, InfrastructureEvent{
		InfraID:   infraID,
		Timestamp: time.Now(),
	})
}

func (b *Bus) NodeCreated(ctx context.Context, instance *models.InstanceData) {
	b.fire(ctx, EventNodeCreated, nodeEvent(instance))
}

func (b *Bus) NodeDeleted(ctx context.Context, instance *models.InstanceData) {
	b.fire(ctx, EventNodeDeleted, nodeEvent(instance))
}

// fire publishes the payload and swallows delivery errors. The operation the
// event describes has already happened; the log must not fail it.
func (b *Bus) fire(ctx context.Context, name string, payload any) {
	err, _ := b.bus.Fire(name, event.M{"payload": payload})
	if err != nil {
		b.logger.WarnContext(ctx, "event delivery failed",
			slog.String("event", name),
			slog.String("error", err.Error()))
	}
}
