package strategy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chiquitav2/infraweave/internal/shared/errors"
)

func task(name string, value any, err error) Task {
	return Task{
		Name: name,
		Run: func(context.Context) (any, error) {
			return value, err
		},
	}
}

func newStrategy(t *testing.T, name string, opts Options) Strategy {
	t.Helper()
	s, err := New(name, opts)
	require.NoError(t, err)
	return s
}

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := New("quantum", Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsProcessorError(err))
}

func TestSequential_AllSucceed(t *testing.T) {
	s := newStrategy(t, "sequential", Options{})

	results, err := s.Run(context.Background(), []Task{
		task("a", 1, nil),
		task("b", 2, nil),
		task("c", 3, nil),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []any{1, 2, 3} {
		assert.Equal(t, i, results[i].Index)
		assert.Equal(t, want, results[i].Value)
		assert.NoError(t, results[i].Err)
	}
}

func TestSequential_FailFast(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32

	s := newStrategy(t, "sequential", Options{})
	results, err := s.Run(context.Background(), []Task{
		task("a", 1, nil),
		task("b", nil, boom),
		{Name: "c", Run: func(context.Context) (any, error) {
			ran.Add(1)
			return 3, nil
		}},
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), ran.Load(), "command after the failure must not start")
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.ErrorIs(t, results[2].Err, ErrSkipped)
}

func TestSequential_PreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newStrategy(t, "sequential", Options{})
	results, err := s.Run(ctx, []Task{task("a", 1, nil)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestParallel_CollectsAllResults(t *testing.T) {
	boom := errors.New("boom")

	s := newStrategy(t, "parallel", Options{Workers: 2})
	results, err := s.Run(context.Background(), []Task{
		task("a", "ok-a", nil),
		task("b", nil, boom),
		task("c", "ok-c", nil),
	})

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "b", batch.Failures[0].Name)
	assert.ErrorIs(t, err, boom)

	// Position correspondence holds and siblings kept their results.
	require.Len(t, results, 3)
	assert.Equal(t, "ok-a", results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, "ok-c", results[2].Value)
}

func TestParallel_BoundsWorkers(t *testing.T) {
	const workers = 2

	var mu sync.Mutex
	var active, peak int

	slow := func(name string) Task {
		return Task{Name: name, Run: func(context.Context) (any, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return name, nil
		}}
	}

	s := newStrategy(t, "parallel", Options{Workers: workers})
	_, err := s.Run(context.Background(), []Task{
		slow("a"), slow("b"), slow("c"), slow("d"), slow("e"),
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, workers)
}

func TestParallel_MultipleFailuresAggregated(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")

	s := newStrategy(t, "parallel", Options{})
	_, err := s.Run(context.Background(), []Task{
		task("a", nil, errA),
		task("b", "ok", nil),
		task("c", nil, errC),
	})

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Failures, 2)
	// Failures are reported in batch position order.
	assert.Equal(t, "a", batch.Failures[0].Name)
	assert.Equal(t, "c", batch.Failures[1].Name)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
}
