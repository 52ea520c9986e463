// Package errors defines the orchestration error taxonomy of the
// infrastructure processor.
//
// Errors raised by the command set fall into two classes: pre-classified
// orchestration errors (the types below), which are passed through command
// boundaries untouched, and everything else, which each command wraps exactly
// once into the type matching its operation. Compensation-time errors are
// never represented here at all; they are logged and discarded so the caller
// always observes the error that triggered compensation.
package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// Sentinel errors for common conditions.
var (
	ErrInfraNotFound  = errors.New("infrastructure not found")
	ErrNodeNotFound   = errors.New("node not found")
	ErrUnknownBackend = errors.New("unknown backend")
)

// ProcessorError marks pre-classified orchestration errors. Commands check
// for it before wrapping, so an error is categorized at most once on its way
// up.
type ProcessorError interface {
	error
	processorError()
}

// IsProcessorError reports whether err is (or wraps) a pre-classified
// orchestration error.
func IsProcessorError(err error) bool {
	var pe ProcessorError
	return errors.As(err, &pe)
}

// InfrastructureCreationError is fatal for one infrastructure's creation.
type InfrastructureCreationError struct {
	InfraID models.InfraID
	Err     error
}

func (e *InfrastructureCreationError) Error() string {
	return fmt.Sprintf("creating infrastructure %s: %v", e.InfraID, e.Err)
}

func (e *InfrastructureCreationError) Unwrap() error   { return e.Err }
func (e *InfrastructureCreationError) processorError() {}

// NewInfrastructureCreationError classifies err as an infrastructure
// creation failure unless it already carries an orchestration class.
func NewInfrastructureCreationError(infraID models.InfraID, err error) error {
	if IsProcessorError(err) {
		return err
	}
	return &InfrastructureCreationError{InfraID: infraID, Err: err}
}

// NodeCreationError is fatal for one node's creation. Instance carries
// whatever fields were populated before the failure; fields not yet reached
// are zero, never fabricated.
type NodeCreationError struct {
	Instance *models.InstanceData
	Err      error
}

func (e *NodeCreationError) Error() string {
	if e.Instance != nil {
		return fmt.Sprintf("creating node %s/%s: %v",
			e.Instance.InfraID, e.Instance.NodeID, e.Err)
	}
	return fmt.Sprintf("creating node: %v", e.Err)
}

func (e *NodeCreationError) Unwrap() error   { return e.Err }
func (e *NodeCreationError) processorError() {}

// NewNodeCreationError classifies err as a node creation failure unless it
// already carries an orchestration class. A pre-existing NodeCreationError
// missing its instance data is amended in place, matching the point where
// the data became known.
func NewNodeCreationError(instance *models.InstanceData, err error) error {
	var nce *NodeCreationError
	if errors.As(err, &nce) {
		if nce.Instance == nil {
			nce.Instance = instance
		}
		return err
	}
	if IsProcessorError(err) {
		return err
	}
	return &NodeCreationError{Instance: instance, Err: err}
}

// NodeCreationTimeoutError is raised by the synchronization engine when a
// node never reports ready within its creation timeout. It is a
// node-creation-class failure and triggers compensation like any other.
type NodeCreationTimeoutError struct {
	Instance *models.InstanceData
	Timeout  time.Duration
}

func (e *NodeCreationTimeoutError) Error() string {
	return fmt.Sprintf("node %s/%s not ready after %v",
		e.Instance.InfraID, e.Instance.NodeID, e.Timeout)
}

func (e *NodeCreationTimeoutError) processorError() {}

// IsTimeout reports whether err is a node creation timeout.
func IsTimeout(err error) bool {
	var te *NodeCreationTimeoutError
	return errors.As(err, &te)
}

// MinorError is raised by the drop operations. "Minor" signals that a single
// node or infrastructure teardown failure should not abort a larger batch
// teardown.
type MinorError struct {
	InfraID  models.InfraID
	Instance *models.InstanceData // nil for infrastructure-level drops
	Err      error
}

func (e *MinorError) Error() string {
	if e.Instance != nil {
		return fmt.Sprintf("dropping node %s/%s: %v",
			e.InfraID, e.Instance.NodeID, e.Err)
	}
	return fmt.Sprintf("dropping infrastructure %s: %v", e.InfraID, e.Err)
}

func (e *MinorError) Unwrap() error   { return e.Err }
func (e *MinorError) processorError() {}

// NewMinorError classifies err as a teardown failure unless it already
// carries an orchestration class.
func NewMinorError(infraID models.InfraID, instance *models.InstanceData, err error) error {
	if IsProcessorError(err) {
		return err
	}
	return &MinorError{InfraID: infraID, Instance: instance, Err: err}
}

// ResolutionError is raised when a node description cannot be resolved into
// a concrete definition. Resolution failures are fatal for the node and are
// not retried.
type ResolutionError struct {
	NodeID string
	Type   string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving node %s (type %q): %v", e.NodeID, e.Type, e.Err)
}

func (e *ResolutionError) Unwrap() error   { return e.Err }
func (e *ResolutionError) processorError() {}

// ConfigError reports a configuration problem, such as an unknown strategy
// tag. It is reported immediately and never retried.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error [%s]: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("config error [%s]: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error   { return e.Err }
func (e *ConfigError) processorError() {}

// NewConfigError creates a new configuration error.
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}
