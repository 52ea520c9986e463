package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiquitav2/infraweave/internal/orchestrator/broker"
	"github.com/chiquitav2/infraweave/internal/orchestrator/composer"
	"github.com/chiquitav2/infraweave/internal/orchestrator/strategy"
	apperrors "github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/internal/shared/models"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

// fakeCloud records instantiations and teardowns in memory.
type fakeCloud struct {
	mu         sync.Mutex
	nextID     int
	created    []string
	dropped    []string
	createErr  error
	dropErr    error
	createHook func()
}

func (f *fakeCloud) CreateNode(_ context.Context, def *models.ResolvedNodeDefinition) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createHook != nil {
		f.createHook()
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("i-%04d", f.nextID)
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeCloud) DropNode(_ context.Context, instance *models.InstanceData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropErr != nil {
		return f.dropErr
	}
	f.dropped = append(f.dropped, instance.InstanceID)
	return nil
}

func (f *fakeCloud) droppedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dropped...)
}

// fakeUserData records started-node registrations.
type fakeUserData struct {
	mu      sync.Mutex
	started map[string]*models.InstanceData
	err     error
}

func newFakeUserData() *fakeUserData {
	return &fakeUserData{started: make(map[string]*models.InstanceData)}
}

func (f *fakeUserData) RegisterStartedNode(_ context.Context, _ models.InfraID, _ string, instance *models.InstanceData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.started[instance.NodeID] = instance
	return nil
}

func (f *fakeUserData) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

type testEnv struct {
	processor *Processor
	composer  *composer.InMemory
	broker    *broker.InMemory
	cloud     *fakeCloud
	userData  *fakeUserData
}

// newTestEnv wires a processor over in-memory collaborators. The broker
// serves a resolvable node definition for every type and reports every node
// reachable, so creation succeeds unless a test breaks something on purpose.
func newTestEnv(t *testing.T, mutate func(cfg *Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		composer: composer.NewInMemory(),
		broker:   broker.NewInMemory(),
		cloud:    &fakeCloud{},
		userData: newFakeUserData(),
	}
	env.broker.Set(broker.KeyNodeDefinition, map[string]any{
		"backend_id":     "test-backend",
		"create_timeout": "2s",
	})
	env.broker.Set(broker.KeyNodeReachable, true)

	cfg := Config{
		Composer:  env.composer,
		Cloud:     env.cloud,
		UserData:  env.userData,
		Broker:    env.broker,
		PollDelay: 5 * time.Millisecond,
		Logger:    logger.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := New(cfg)
	require.NoError(t, err)
	env.processor = p
	return env
}

func nodeDesc(infraID models.InfraID, name string) *models.NodeDescription {
	return &models.NodeDescription{
		Name:    name,
		InfraID: infraID,
		UserID:  "user-1",
		Type:    "worker",
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{
		Composer: composer.NewInMemory(),
		Cloud:    &fakeCloud{},
		UserData: newFakeUserData(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")
}

func TestCreateAndDropInfrastructure(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	infraID := models.InfraID("infra-1")

	results, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, infraID, results[0].Value)

	members, err := env.composer.Membership(ctx, infraID)
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = env.processor.PushInstructions(ctx, env.processor.DropInfrastructure(infraID))
	require.NoError(t, err)

	_, err = env.composer.Membership(ctx, infraID)
	assert.ErrorIs(t, err, apperrors.ErrInfraNotFound)
}

func TestDropInfrastructureMissingIsTolerated(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.processor.PushInstructions(context.Background(),
		env.processor.DropInfrastructure("never-created"))
	require.NoError(t, err)
}

func TestCreateNode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	infraID := models.InfraID("infra-1")

	_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)

	results, err := env.processor.PushInstructions(ctx,
		env.processor.CreateNode(nodeDesc(infraID, "worker-0")))
	require.NoError(t, err)
	require.Len(t, results, 1)

	instance, ok := results[0].Value.(*models.InstanceData)
	require.True(t, ok)
	assert.NotEmpty(t, instance.NodeID)
	assert.Equal(t, infraID, instance.InfraID)
	assert.Equal(t, "test-backend", instance.BackendID)
	assert.NotEmpty(t, instance.InstanceID)
	require.NotNil(t, instance.Resolved)
	assert.Equal(t, 2*time.Second, instance.Resolved.CreateTimeout)

	members, err := env.composer.Membership(ctx, infraID)
	require.NoError(t, err)
	assert.Equal(t, []string{instance.NodeID}, members)
	assert.Equal(t, 1, env.userData.count())
}

func TestCreateNodeCloudFailureCompensates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	infraID := models.InfraID("infra-1")

	_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)

	env.cloud.createErr = fmt.Errorf("quota exceeded")

	_, err = env.processor.PushInstructions(ctx,
		env.processor.CreateNode(nodeDesc(infraID, "worker-0")))
	require.Error(t, err)

	var nce *apperrors.NodeCreationError
	require.ErrorAs(t, err, &nce)
	require.NotNil(t, nce.Instance)
	assert.NotNil(t, nce.Instance.Resolved)
	assert.Empty(t, nce.Instance.InstanceID)
	assert.ErrorContains(t, err, "quota exceeded")

	// The composer registration made before the cloud call is rolled back;
	// nothing reached the cloud, so nothing is destroyed there.
	members, merr := env.composer.Membership(ctx, infraID)
	require.NoError(t, merr)
	assert.Empty(t, members)
	assert.Empty(t, env.cloud.droppedIDs())
	assert.Equal(t, 0, env.userData.count())
}

func TestCreateNodeResolutionFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	infraID := models.InfraID("infra-1")

	_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)

	// Definitions lacking a backend cannot resolve; the failure keeps its
	// resolution class all the way up.
	env.broker.Set(broker.KeyNodeDefinition, map[string]any{})

	_, err = env.processor.PushInstructions(ctx,
		env.processor.CreateNode(nodeDesc(infraID, "worker-0")))
	require.Error(t, err)

	var re *apperrors.ResolutionError
	assert.ErrorAs(t, err, &re)
	var nce *apperrors.NodeCreationError
	assert.False(t, stderrors.As(err, &nce), "resolution errors must not be re-wrapped")
}

func TestCreateNodeTimeoutCompensates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	infraID := models.InfraID("infra-1")

	_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)

	env.broker.Set(broker.KeyNodeReachable, false)
	env.broker.Set(broker.KeyNodeDefinition, map[string]any{
		"backend_id":     "test-backend",
		"create_timeout": "30ms",
	})

	_, err = env.processor.PushInstructions(ctx,
		env.processor.CreateNode(nodeDesc(infraID, "worker-0")))
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))

	// The instance reached the cloud before timing out, so compensation
	// destroys it and removes the registration.
	require.Len(t, env.cloud.droppedIDs(), 1)
	assert.Equal(t, "i-0001", env.cloud.droppedIDs()[0])
	members, merr := env.composer.Membership(ctx, infraID)
	require.NoError(t, merr)
	assert.Empty(t, members)
}

func TestCreateNodeCancellationCompensates(t *testing.T) {
	env := newTestEnv(t, nil)
	infraID := models.InfraID("infra-1")

	_, err := env.processor.PushInstructions(context.Background(),
		env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)

	// Never ready, generous timeout: the node would sit in the readiness
	// loop until the caller gives up.
	env.broker.Set(broker.KeyNodeReachable, false)

	ctx, cancel := context.WithCancel(context.Background())
	env.cloud.createHook = func() {
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
	}
	defer cancel()

	_, err = env.processor.PushInstructions(ctx,
		env.processor.CreateNode(nodeDesc(infraID, "worker-0")))
	require.ErrorIs(t, err, context.Canceled)

	// Compensation still runs after cancellation.
	require.Len(t, env.cloud.droppedIDs(), 1)
	members, merr := env.composer.Membership(context.Background(), infraID)
	require.NoError(t, merr)
	assert.Empty(t, members)
}

// cancellingComposer simulates composer calls interrupted by cancellation:
// it cancels the caller's context and surfaces ctx.Err(), the way a real
// composer client honoring ctx would.
type cancellingComposer struct {
	*composer.InMemory
	cancel context.CancelFunc
}

func (c *cancellingComposer) CreateInfrastructure(ctx context.Context, _ models.InfraID) error {
	c.cancel()
	return ctx.Err()
}

func (c *cancellingComposer) DropInfrastructure(ctx context.Context, _ models.InfraID) error {
	c.cancel()
	return ctx.Err()
}

func TestCreateInfrastructureCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv(t, func(cfg *Config) {
		cfg.Composer = &cancellingComposer{InMemory: composer.NewInMemory(), cancel: cancel}
	})

	_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure("infra-1"))
	require.ErrorIs(t, err, context.Canceled)

	var ice *apperrors.InfrastructureCreationError
	assert.False(t, stderrors.As(err, &ice), "cancellation must not be reclassified")
}

func TestDropInfrastructureCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv(t, func(cfg *Config) {
		cfg.Composer = &cancellingComposer{InMemory: composer.NewInMemory(), cancel: cancel}
	})

	_, err := env.processor.PushInstructions(ctx, env.processor.DropInfrastructure("infra-1"))
	require.ErrorIs(t, err, context.Canceled)

	var me *apperrors.MinorError
	assert.False(t, stderrors.As(err, &me), "cancellation must not be reclassified")
}

func TestDropNodeCancellationPropagates(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cloud.dropErr = context.Canceled

	instance := &models.InstanceData{
		NodeID:      "n-1",
		InfraID:     "infra-1",
		InstanceID:  "i-9999",
		Description: nodeDesc("infra-1", "worker-0"),
	}

	_, err := env.processor.PushInstructions(context.Background(),
		env.processor.DropNode(instance))
	require.ErrorIs(t, err, context.Canceled)

	var me *apperrors.MinorError
	assert.False(t, stderrors.As(err, &me), "cancellation must not be reclassified")
}

func TestDropNodeRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	infraID := models.InfraID("infra-1")

	_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)

	results, err := env.processor.PushInstructions(ctx,
		env.processor.CreateNode(nodeDesc(infraID, "worker-0")))
	require.NoError(t, err)
	instance := results[0].Value.(*models.InstanceData)

	results, err = env.processor.PushInstructions(ctx, env.processor.DropNode(instance))
	require.NoError(t, err)
	assert.Equal(t, instance.NodeID, results[0].Value)

	assert.Equal(t, []string{instance.InstanceID}, env.cloud.droppedIDs())
	members, merr := env.composer.Membership(ctx, infraID)
	require.NoError(t, merr)
	assert.Empty(t, members)
}

func TestDropNodePartialInstance(t *testing.T) {
	env := newTestEnv(t, nil)

	// An instance that never reached the cloud handler and was never
	// registered: drop is a no-op, not an error.
	instance := &models.InstanceData{
		NodeID:      "n-unregistered",
		InfraID:     "infra-x",
		Description: nodeDesc("infra-x", "ghost"),
	}

	_, err := env.processor.PushInstructions(context.Background(),
		env.processor.DropNode(instance))
	require.NoError(t, err)
	assert.Empty(t, env.cloud.droppedIDs())
}

func TestFiveNodesDistinctIdentities(t *testing.T) {
	for _, tag := range []string{"sequential", "parallel"} {
		t.Run(tag, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *Config) {
				strat, err := strategy.New(tag, strategy.Options{Workers: 3, Logger: logger.NewNop()})
				require.NoError(t, err)
				cfg.Strategy = strat
			})
			ctx := context.Background()
			infraID := models.InfraID("infra-1")

			_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
			require.NoError(t, err)

			commands := make([]Command, 5)
			for i := range commands {
				commands[i] = env.processor.CreateNode(nodeDesc(infraID, fmt.Sprintf("worker-%d", i)))
			}

			results, err := env.processor.PushInstructions(ctx, commands...)
			require.NoError(t, err)
			require.Len(t, results, 5)

			seen := make(map[string]bool)
			for i, res := range results {
				require.NoError(t, res.Err)
				instance := res.Value.(*models.InstanceData)
				assert.Equal(t, fmt.Sprintf("worker-%d", i), instance.NodeName())
				assert.False(t, seen[instance.NodeID], "node ids must be unique")
				seen[instance.NodeID] = true
			}

			members, merr := env.composer.Membership(ctx, infraID)
			require.NoError(t, merr)
			assert.Len(t, members, 5)
			assert.Equal(t, 5, env.userData.count())
		})
	}
}

func TestParallelBatchAggregatesFailures(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		strat, err := strategy.New("parallel", strategy.Options{Workers: 2, Logger: logger.NewNop()})
		require.NoError(t, err)
		cfg.Strategy = strat
	})
	ctx := context.Background()
	infraID := models.InfraID("infra-1")

	_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)

	env.cloud.createErr = fmt.Errorf("region unavailable")

	results, err := env.processor.PushInstructions(ctx,
		env.processor.CreateNode(nodeDesc(infraID, "worker-0")),
		env.processor.CreateNode(nodeDesc(infraID, "worker-1")))
	require.Error(t, err)
	require.Len(t, results, 2)

	var batch *strategy.BatchError
	require.ErrorAs(t, err, &batch)
	assert.Len(t, batch.Failures, 2)
	for _, res := range results {
		var nce *apperrors.NodeCreationError
		assert.ErrorAs(t, res.Err, &nce)
	}
}

func TestInfrastructureLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	infraID := models.InfraID("infra-e2e")

	_, err := env.processor.PushInstructions(ctx, env.processor.CreateInfrastructure(infraID))
	require.NoError(t, err)

	results, err := env.processor.PushInstructions(ctx,
		env.processor.CreateNode(nodeDesc(infraID, "frontend")),
		env.processor.CreateNode(nodeDesc(infraID, "backend")))
	require.NoError(t, err)

	drops := make([]Command, 0, len(results))
	for _, res := range results {
		drops = append(drops, env.processor.DropNode(res.Value.(*models.InstanceData)))
	}
	_, err = env.processor.PushInstructions(ctx, drops...)
	require.NoError(t, err)

	_, err = env.processor.PushInstructions(ctx, env.processor.DropInfrastructure(infraID))
	require.NoError(t, err)

	_, err = env.composer.Membership(ctx, infraID)
	assert.ErrorIs(t, err, apperrors.ErrInfraNotFound)
	assert.Len(t, env.cloud.droppedIDs(), 2)
}
