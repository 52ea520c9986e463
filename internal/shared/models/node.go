// Package models defines the data records that flow through the
// infrastructure processor: abstract node descriptions, their resolved
// definitions, and the instance data accumulated while a node is created.
package models

import (
	"time"
)

// InfraID identifies one infrastructure instance. It is pre-generated by the
// upstream planner; the processor assumes nothing about its structure.
type InfraID string

// AttrSynchStrategy is the NodeDescription attribute holding the
// per-node synchronization strategy configuration.
const AttrSynchStrategy = "synch_strategy"

// NodeDescription is the abstract, caller-provided description of a node to
// be created. The processor never mutates it.
type NodeDescription struct {
	Name       string         `json:"name"`
	InfraID    InfraID        `json:"infra_id"`
	UserID     string         `json:"user_id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Attr returns a named attribute, or nil if the description carries none.
func (d *NodeDescription) Attr(key string) any {
	if d == nil || d.Attributes == nil {
		return nil
	}
	return d.Attributes[key]
}

// ResolvedNodeDefinition is the node description enriched by the resolution
// step with everything the backends need to instantiate the node. It is
// produced once per node and immutable afterwards.
type ResolvedNodeDefinition struct {
	NodeID      string           `json:"node_id"`
	BackendID   string           `json:"backend_id"`
	Description *NodeDescription `json:"node_description"`

	// AuthData and ComposerData carry per-backend credentials and service
	// composer bookkeeping, opaque to the processor.
	AuthData     map[string]any `json:"auth_data,omitempty"`
	ComposerData map[string]any `json:"composer_data,omitempty"`

	// Context is the rendered contextualisation payload (e.g. cloud-init)
	// handed to the cloud handler verbatim.
	Context string `json:"context,omitempty"`

	// SynchStrategy configures the readiness check for this node. The
	// "protocol" key selects the registered strategy; the rest is
	// strategy-specific.
	SynchStrategy map[string]any `json:"synch_strategy,omitempty"`

	CreateTimeout time.Duration `json:"create_timeout"`
}

// SynchProtocol returns the configured synchronization strategy tag, or the
// empty string when the definition does not choose one.
func (r *ResolvedNodeDefinition) SynchProtocol() string {
	if r == nil || r.SynchStrategy == nil {
		return ""
	}
	proto, _ := r.SynchStrategy["protocol"].(string)
	return proto
}

// InstanceData is the record built up while a node is created and persisted
// once provisioning has started. It is owned exclusively by the creating
// command until it is handed to the user data store; fields not yet reached
// in the creation flow stay zero.
type InstanceData struct {
	NodeID      string                  `json:"node_id"`
	InfraID     InfraID                 `json:"infra_id"`
	UserID      string                  `json:"user_id"`
	Description *NodeDescription        `json:"node_description"`
	Resolved    *ResolvedNodeDefinition `json:"resolved_node_definition,omitempty"`
	BackendID   string                  `json:"backend_id,omitempty"`

	// InstanceID is the provisioning system's identifier for the compute
	// resource, set after the cloud handler call succeeds.
	InstanceID string `json:"instance_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NodeName returns the node's descriptive name; safe to call on a partially
// populated record.
func (d *InstanceData) NodeName() string {
	if d == nil || d.Description == nil {
		return ""
	}
	return d.Description.Name
}
