// Package broker defines the information broker contract: read-only keyed
// lookups about node and infrastructure state. The broker is an external
// collaborator; the processor and the synchronization strategies depend on
// it only through the interface here.
package broker

import (
	"context"
	"fmt"

	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// Well-known lookup keys.
const (
	KeyNodeDefinition = "node.definition"
	KeyNodeAddress    = "node.resource.address"
	KeyNodeReachable  = "synch.node_reachable"
	KeyBackendAuth    = "backends.auth_data"
	KeyComposerAux    = "service_composer.aux_data"
)

// Query scopes a lookup to a node or infrastructure.
type Query struct {
	InfraID models.InfraID
	NodeID  string

	// NodeType scopes definition lookups to a node implementation type.
	NodeType string
}

// Broker answers keyed queries about node and infrastructure state.
type Broker interface {
	Lookup(ctx context.Context, key string, q Query) (any, error)
}

// LookupString performs a lookup and asserts a string result.
func LookupString(ctx context.Context, b Broker, key string, q Query) (string, error) {
	v, err := b.Lookup(ctx, key, q)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("broker key %q: expected string, got %T", key, v)
	}
	return s, nil
}

// LookupBool performs a lookup and asserts a bool result. A missing value
// reads as false without error, so reachability probes stay quiet while a
// node is still booting.
func LookupBool(ctx context.Context, b Broker, key string, q Query) (bool, error) {
	v, err := b.Lookup(ctx, key, q)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	bv, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("broker key %q: expected bool, got %T", key, v)
	}
	return bv, nil
}
