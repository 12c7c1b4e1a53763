// Package lock serializes package-manager operations against the apt/dpkg
// lock held by other processes.
package lock

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/metrics"
	"github.com/edvin/lampctl/internal/model"
)

// DefaultPollInterval is the pause between two lock probes.
const DefaultPollInterval = time.Second

// Coordinator waits for the package manager lock to clear.
type Coordinator struct {
	logger   zerolog.Logger
	detector Detector
	interval time.Duration
	ceiling  time.Duration
	metrics  *metrics.Recorder

	// OnProgress, when set, is called after every probe that found the lock
	// held, with the remaining budget.
	OnProgress func(model.LockWaitState)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator creates a Coordinator. interval <= 0 uses DefaultPollInterval;
// ceiling caps every budget passed to Acquire.
func NewCoordinator(logger zerolog.Logger, detector Detector, interval, ceiling time.Duration, rec *metrics.Recorder) *Coordinator {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Coordinator{
		logger:   logger.With().Str("component", "lock-coordinator").Logger(),
		detector: detector,
		interval: interval,
		ceiling:  ceiling,
		metrics:  rec,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Acquire returns nil once no lock is held. With budget == 0 it fails
// immediately when the lock is held; otherwise it polls until the lock
// clears or budget (capped by the ceiling) runs out, returning a
// model.KindLockTimeout error that carries the last seen holder.
// Cancelling ctx also ends the wait with a lock timeout.
func (c *Coordinator) Acquire(ctx context.Context, budget time.Duration) error {
	if budget < 0 {
		budget = 0
	}
	if c.ceiling > 0 && budget > c.ceiling {
		c.logger.Warn().Dur("budget", budget).Dur("ceiling", c.ceiling).Msg("lock wait budget capped")
		budget = c.ceiling
	}

	start := c.now()
	deadline := start.Add(budget)
	lastPID := -1

	for {
		info := c.detector.Detect(ctx)
		if !info.Locked {
			if lastPID != -1 {
				c.logger.Info().Dur("waited", c.now().Sub(start)).Msg("package manager lock released")
			}
			c.metrics.ObserveLockWait(c.now().Sub(start), false)
			return nil
		}

		remaining := deadline.Sub(c.now())
		if info.HolderPID != lastPID {
			c.logger.Info().
				Int("holder_pid", info.HolderPID).
				Str("holder_cmd", info.HolderCmd).
				Str("path", info.Path).
				Msg("package manager lock held")
			lastPID = info.HolderPID
		}

		if remaining <= 0 || ctx.Err() != nil {
			waited := c.now().Sub(start).Round(time.Millisecond)
			c.metrics.ObserveLockWait(waited, true)
			return model.NewLockTimeout(info.HolderPID, info.Path, waited)
		}

		state := model.LockWaitState{
			HolderPID:    info.HolderPID,
			HolderCmd:    info.HolderCmd,
			Path:         info.Path,
			Remaining:    remaining,
			PollInterval: c.interval,
		}
		c.logger.Debug().Dur("remaining", remaining).Int("holder_pid", info.HolderPID).Msg("waiting for package manager lock")
		if c.OnProgress != nil {
			c.OnProgress(state)
		}

		pause := c.interval
		if remaining < pause {
			pause = remaining
		}
		// A cancelled sleep falls through to one final probe above.
		_ = c.sleep(ctx, pause)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
