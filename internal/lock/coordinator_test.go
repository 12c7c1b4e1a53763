package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/lampctl/internal/metrics"
	"github.com/edvin/lampctl/internal/model"
)

// fakeClock advances only when the coordinator sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

// clockDetector reports the lock held until releaseAt (zero: never).
type clockDetector struct {
	clock     *fakeClock
	start     time.Time
	releaseAt time.Duration
	pids      []int
	calls     int
}

func (d *clockDetector) Detect(context.Context) Info {
	d.calls++
	elapsed := d.clock.Now().Sub(d.start)
	if d.releaseAt > 0 && elapsed >= d.releaseAt {
		return Info{}
	}
	pid := 4242
	if len(d.pids) > 0 {
		pid = d.pids[(d.calls-1)%len(d.pids)]
	}
	return Info{Locked: true, HolderPID: pid, HolderCmd: "apt-get", Path: "/var/lib/dpkg/lock-frontend"}
}

func newTestCoordinator(t *testing.T, releaseAt time.Duration) (*Coordinator, *clockDetector, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	det := &clockDetector{clock: clock, start: clock.now, releaseAt: releaseAt}
	c := NewCoordinator(zerolog.Nop(), det, time.Second, time.Hour, metrics.NewRecorder())
	c.now = clock.Now
	c.sleep = clock.Sleep
	return c, det, clock
}

func TestAcquire_NotLocked(t *testing.T) {
	c := NewCoordinator(zerolog.Nop(), staticDetector{Info{}}, time.Second, time.Hour, nil)

	require.NoError(t, c.Acquire(context.Background(), 0))
}

func TestAcquire_ZeroBudgetFailsImmediately(t *testing.T) {
	c, det, clock := newTestCoordinator(t, 0)
	start := clock.Now()

	err := c.Acquire(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrLockTimeout))
	assert.Equal(t, 1, det.calls)
	assert.Equal(t, start, clock.Now(), "must not sleep with a zero budget")
}

func TestAcquire_TimesOutWithinBudget(t *testing.T) {
	c, det, clock := newTestCoordinator(t, 0)
	start := clock.Now()

	err := c.Acquire(context.Background(), 5*time.Second)
	require.Error(t, err)

	var lockErr *model.Error
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, model.KindLockTimeout, lockErr.Kind)
	assert.Equal(t, 4242, lockErr.HolderPID)
	assert.Equal(t, "/var/lib/dpkg/lock-frontend", lockErr.Path)

	waited := clock.Now().Sub(start)
	assert.GreaterOrEqual(t, waited, 5*time.Second)
	assert.LessOrEqual(t, waited, 6*time.Second)
	assert.Equal(t, 6, det.calls)
}

func TestAcquire_SucceedsWhenReleased(t *testing.T) {
	c, _, clock := newTestCoordinator(t, 2*time.Second)
	start := clock.Now()

	require.NoError(t, c.Acquire(context.Background(), 5*time.Second))
	assert.Equal(t, 2*time.Second, clock.Now().Sub(start))
}

func TestAcquire_ReportsProgress(t *testing.T) {
	c, _, _ := newTestCoordinator(t, 3*time.Second)

	var states []model.LockWaitState
	c.OnProgress = func(s model.LockWaitState) { states = append(states, s) }

	require.NoError(t, c.Acquire(context.Background(), 10*time.Second))
	require.Len(t, states, 3)
	assert.Equal(t, 10*time.Second, states[0].Remaining)
	assert.Equal(t, 9*time.Second, states[1].Remaining)
	assert.Equal(t, 8*time.Second, states[2].Remaining)
	assert.Equal(t, time.Second, states[0].PollInterval)
}

func TestAcquire_HolderChangesBetweenPolls(t *testing.T) {
	c, det, _ := newTestCoordinator(t, 0)
	det.pids = []int{100, 200, 300}

	err := c.Acquire(context.Background(), 2*time.Second)

	var lockErr *model.Error
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, 300, lockErr.HolderPID, "reports the most recent holder")
}

func TestAcquire_BudgetCappedByCeiling(t *testing.T) {
	c, _, clock := newTestCoordinator(t, 0)
	c.ceiling = 3 * time.Second
	start := clock.Now()

	require.Error(t, c.Acquire(context.Background(), time.Hour))
	assert.Equal(t, 3*time.Second, clock.Now().Sub(start))
}

type staticDetector struct{ info Info }

func (d staticDetector) Detect(context.Context) Info { return d.info }

func TestAcquire_RealClock(t *testing.T) {
	c := NewCoordinator(zerolog.Nop(), staticDetector{Info{Locked: true, HolderPID: 7}}, 20*time.Millisecond, time.Minute, nil)

	start := time.Now()
	err := c.Acquire(context.Background(), 150*time.Millisecond)
	elapsed := time.Since(start)

	require.True(t, errors.Is(err, model.ErrLockTimeout))
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	c := NewCoordinator(zerolog.Nop(), staticDetector{Info{Locked: true}}, time.Second, time.Hour, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Acquire(ctx, time.Minute)
	require.True(t, errors.Is(err, model.ErrLockTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)
}
