package broker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPrecedence(t *testing.T) {
	b := NewInMemory()
	ctx := context.Background()
	q := Query{InfraID: "infra-1", NodeID: "n-1", NodeType: "worker"}

	_, err := b.Lookup(ctx, KeyNodeDefinition, q)
	require.Error(t, err)

	b.Set(KeyNodeDefinition, "global")
	v, err := b.Lookup(ctx, KeyNodeDefinition, q)
	require.NoError(t, err)
	assert.Equal(t, "global", v)

	b.SetScoped(KeyNodeDefinition, Query{NodeType: "worker"}, "typed")
	v, err = b.Lookup(ctx, KeyNodeDefinition, q)
	require.NoError(t, err)
	assert.Equal(t, "typed", v)

	b.SetScoped(KeyNodeDefinition, q, "exact")
	v, err = b.Lookup(ctx, KeyNodeDefinition, q)
	require.NoError(t, err)
	assert.Equal(t, "exact", v)

	// Other node types still see the global value.
	v, err = b.Lookup(ctx, KeyNodeDefinition, Query{NodeType: "frontend"})
	require.NoError(t, err)
	assert.Equal(t, "global", v)
}

func TestLookupBool(t *testing.T) {
	b := NewInMemory()
	ctx := context.Background()
	q := Query{InfraID: "infra-1", NodeID: "n-1"}

	_, err := LookupBool(ctx, b, KeyNodeReachable, q)
	assert.Error(t, err)

	b.Set(KeyNodeReachable, nil)
	v, err := LookupBool(ctx, b, KeyNodeReachable, q)
	require.NoError(t, err)
	assert.False(t, v)

	b.SetScoped(KeyNodeReachable, q, true)
	v, err = LookupBool(ctx, b, KeyNodeReachable, q)
	require.NoError(t, err)
	assert.True(t, v)

	b.Set(KeyNodeAddress, "10.0.0.5")
	s, err := LookupString(ctx, b, KeyNodeAddress, q)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", s)

	_, err = LookupString(ctx, b, KeyNodeReachable, q)
	assert.Error(t, err)
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "definitions.yaml")
	yaml := `
node_types:
  worker:
    backend_id: hetzner
    implementation_type: cloudinit
    create_timeout: 5m
  frontend:
    backend_id: hetzner
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	b := NewInMemory()
	require.NoError(t, LoadDefinitions(path, b))

	v, err := b.Lookup(context.Background(), KeyNodeDefinition,
		Query{InfraID: "infra-1", NodeID: "n-1", NodeType: "worker"})
	require.NoError(t, err)
	def, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hetzner", def["backend_id"])
	assert.Equal(t, "5m", def["create_timeout"])

	_, err = b.Lookup(context.Background(), KeyNodeDefinition,
		Query{NodeType: "database"})
	assert.Error(t, err)
}

func TestLoadDefinitionsErrors(t *testing.T) {
	b := NewInMemory()

	err := LoadDefinitions("/no/such/file.yaml", b)
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("other: {}\n"), 0644))
	err = LoadDefinitions(path, b)
	assert.ErrorContains(t, err, "no node_types")
}
