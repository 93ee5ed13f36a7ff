package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateGateEnforcesWindow(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	lim := New(Config{Concurrency: 1, RateLimit: 3, RateWindow: time.Minute}, clk)

	for i := 0; i < 3; i++ {
		require.NoError(t, lim.Check("10.0.0.1"))
	}

	err := lim.Check("10.0.0.1")
	require.Error(t, err)
	require.ErrorIs(t, err, media.ErrRateLimited)

	// A different identity has its own window.
	require.NoError(t, lim.Check("10.0.0.2"))
}

func TestRateGateSlidesForward(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	lim := New(Config{Concurrency: 1, RateLimit: 2, RateWindow: time.Minute}, clk)

	require.NoError(t, lim.Check("caller"))
	clk.Advance(30 * time.Second)
	require.NoError(t, lim.Check("caller"))
	require.ErrorIs(t, lim.Check("caller"), media.ErrRateLimited)

	// The first timestamp ages out; one slot opens.
	clk.Advance(31 * time.Second)
	require.NoError(t, lim.Check("caller"))
	require.ErrorIs(t, lim.Check("caller"), media.ErrRateLimited)
}

func TestRejectedChecksAreNotCharged(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	lim := New(Config{Concurrency: 1, RateLimit: 1, RateWindow: time.Minute}, clk)

	require.NoError(t, lim.Check("caller"))
	require.ErrorIs(t, lim.Check("caller"), media.ErrRateLimited)
	require.ErrorIs(t, lim.Check("caller"), media.ErrRateLimited)

	// Only the single admitted request occupies the window, so aging it
	// out restores exactly one slot.
	clk.Advance(61 * time.Second)
	require.NoError(t, lim.Check("caller"))
}

func TestConcurrencyPermitsBoundParallelism(t *testing.T) {
	t.Parallel()

	lim := New(Config{Concurrency: 2, RateLimit: 100, RateWindow: time.Minute}, newFakeClock())

	ctx := context.Background()
	require.NoError(t, lim.Acquire(ctx))
	require.NoError(t, lim.Acquire(ctx))

	// Third acquire must block until a permit is released.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.Error(t, lim.Acquire(blocked))

	lim.Release()
	require.NoError(t, lim.Acquire(ctx))

	lim.Release()
	lim.Release()
}

func TestConcurrencyMaxObserved(t *testing.T) {
	t.Parallel()

	const permits = 3
	lim := New(Config{Concurrency: permits, RateLimit: 1000, RateWindow: time.Minute}, newFakeClock())

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, lim.Acquire(context.Background()))
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			lim.Release()
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxActive, permits)
	require.Positive(t, maxActive)
}

func TestZeroConfigDefaults(t *testing.T) {
	t.Parallel()

	lim := New(Config{}, newFakeClock())
	require.NoError(t, lim.Check("caller"))
	require.ErrorIs(t, lim.Check("caller"), media.ErrRateLimited)
}
