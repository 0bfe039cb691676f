package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_IncAndSnapshot(t *testing.T) {
	stats := NewStats()
	for i := 0; i < 4; i++ {
		stats.Inc(CounterTotal)
	}
	stats.Inc(CounterSuccess)
	stats.Inc(CounterCacheHit)

	snapshot := stats.Snapshot()
	assert.Equal(t, int64(4), snapshot[CounterTotal])
	assert.Equal(t, int64(1), snapshot[CounterSuccess])
	assert.Equal(t, int64(1), snapshot[CounterCacheHit])
	assert.Equal(t, 25.0, snapshot["success_rate"])
}

func TestStats_SnapshotIsACopy(t *testing.T) {
	stats := NewStats()
	stats.Inc(CounterTotal)

	snapshot := stats.Snapshot()
	stats.Inc(CounterTotal)

	assert.Equal(t, int64(1), snapshot[CounterTotal])
	assert.Equal(t, int64(2), stats.Get(CounterTotal))
}

func TestStats_EmptyRate(t *testing.T) {
	assert.Equal(t, 0.0, NewStats().Snapshot()["success_rate"])
}

func TestStats_Reset(t *testing.T) {
	stats := NewStats()
	stats.Inc(CounterFailed)
	stats.Reset()

	assert.Equal(t, int64(0), stats.Get(CounterFailed))
	assert.Len(t, stats.Snapshot(), 1)
}

func TestStats_ConcurrentInc(t *testing.T) {
	stats := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.Inc(CounterTotal)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), stats.Get(CounterTotal))
}
