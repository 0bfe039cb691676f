package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/music-miko/t/internal/domain"
)

func TestCoordinator_CoalescesConcurrentCallers(t *testing.T) {
	coordinator := NewCoordinator()
	key := domain.NewContentKey(domain.VariantAudio, "dQw4w9WgXcQ")

	var runs int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (*domain.AcquisitionResult, error) {
		atomic.AddInt32(&runs, 1)
		<-release
		return &domain.AcquisitionResult{Key: key, FilePath: "/tmp/x.m4a", Tier: domain.TierJobAPI}, nil
	}

	const callers = 5
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]*domain.AcquisitionResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			ctx := context.Background()
			result, joined, err := coordinator.Do(ctx, ctx, key, fn)
			assert.NoError(t, err)
			assert.Equal(t, joined, result != nil && result.Shared)
			results[i] = result
		}(i)
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	joiners := 0
	for _, result := range results {
		require.NotNil(t, result)
		assert.Equal(t, "/tmp/x.m4a", result.FilePath)
		if result.Shared {
			joiners++
		}
	}
	assert.Equal(t, callers-1, joiners)
}

func TestCoordinator_ErrorReachesEveryWaiterAndKeyIsReleased(t *testing.T) {
	coordinator := NewCoordinator()
	key := domain.NewContentKey(domain.VariantVideo, "dQw4w9WgXcQ")
	boom := errors.New("boom")

	ctx := context.Background()
	_, _, err := coordinator.Do(ctx, ctx, key, func(context.Context) (*domain.AcquisitionResult, error) {
		return &domain.AcquisitionResult{Key: key}, boom
	})
	assert.ErrorIs(t, err, boom)

	result, _, err := coordinator.Do(ctx, ctx, key, func(context.Context) (*domain.AcquisitionResult, error) {
		return &domain.AcquisitionResult{Key: key, FilePath: "/tmp/y.mp4"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/y.mp4", result.FilePath)
}

func TestCoordinator_PanicBecomesError(t *testing.T) {
	coordinator := NewCoordinator()
	key := domain.NewContentKey(domain.VariantAudio, "panic")

	ctx := context.Background()
	_, _, err := coordinator.Do(ctx, ctx, key, func(context.Context) (*domain.AcquisitionResult, error) {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	result, _, err := coordinator.Do(ctx, ctx, key, func(context.Context) (*domain.AcquisitionResult, error) {
		return &domain.AcquisitionResult{Key: key, FilePath: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.FilePath)
}

func TestCoordinator_WaiterStopsOnOwnDeadline(t *testing.T) {
	coordinator := NewCoordinator()
	key := domain.NewContentKey(domain.VariantAudio, "slow")

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := coordinator.Do(ctx, context.Background(), key, func(context.Context) (*domain.AcquisitionResult, error) {
		<-release
		return &domain.AcquisitionResult{Key: key}, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
