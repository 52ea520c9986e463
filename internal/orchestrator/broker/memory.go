package broker

import (
	"context"
	"fmt"
	"sync"
)

// InMemory is a Broker backed by a process-local map. It serves local and
// test deployments where no external information service is wired in.
type InMemory struct {
	mu     sync.RWMutex
	global map[string]any
	scoped map[string]any
}

// NewInMemory creates an empty in-memory broker.
func NewInMemory() *InMemory {
	return &InMemory{
		global: make(map[string]any),
		scoped: make(map[string]any),
	}
}

// Set stores a value for key regardless of query scope.
func (b *InMemory) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global[key] = value
}

// SetScoped stores a value for key under a specific query scope, taking
// precedence over Set for matching queries.
func (b *InMemory) SetScoped(key string, q Query, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scoped[scopedKey(key, q)] = value
}

// Lookup implements Broker. The most specific entry wins: an exact scope
// match, then a node-type-only match, then the global value. A key present
// nowhere is an error.
func (b *InMemory) Lookup(_ context.Context, key string, q Query) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if v, ok := b.scoped[scopedKey(key, q)]; ok {
		return v, nil
	}
	if q.NodeType != "" {
		if v, ok := b.scoped[scopedKey(key, Query{NodeType: q.NodeType})]; ok {
			return v, nil
		}
	}
	if v, ok := b.global[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("broker: no value for key %q", key)
}

func scopedKey(key string, q Query) string {
	return fmt.Sprintf("%s|%s|%s|%s", key, q.InfraID, q.NodeID, q.NodeType)
}
