// Package scheduler runs the periodic background jobs: the missed-dose sweep
// and the device health poll. Jobs are registered on a gocron scheduler and
// run until Shutdown.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// Sweeper is the ledger operation the missed-dose job drives.
type Sweeper interface {
	MarkMissedBefore(ctx context.Context, cutoff, now time.Time) ([]domain.IntakeRecord, error)
}

// HealthMonitor consumes device snapshots on each poll.
type HealthMonitor interface {
	DeviceHealth(ctx context.Context, state domain.DeviceState, now time.Time) error
}

// StateSource supplies the current device snapshot.
type StateSource interface {
	State() domain.DeviceState
}

// Options configures the background jobs.
type Options struct {
	// SweepInterval is how often overdue pending doses are checked.
	SweepInterval time.Duration
	// AcceptWindow is subtracted from now to form the sweep cutoff, so a
	// dose outlives its device confirmation window before being missed.
	AcceptWindow time.Duration
	// HealthInterval is how often the device snapshot is inspected.
	HealthInterval time.Duration
}

// Start registers the jobs and starts the scheduler. The caller owns the
// returned scheduler and should Shutdown it during graceful stop.
func Start(ledger Sweeper, monitor HealthMonitor, source StateSource, opts Options, log zerolog.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 30 * time.Second
	}

	_, err = s.NewJob(
		gocron.DurationJob(opts.SweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			now := time.Now()
			swept, err := ledger.MarkMissedBefore(ctx, now.Add(-opts.AcceptWindow), now)
			if err != nil {
				log.Error().Err(err).Msg("missed-dose sweep failed")
				return
			}
			if len(swept) > 0 {
				log.Info().Int("count", len(swept)).Msg("doses marked missed")
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	if monitor != nil && source != nil {
		_, err = s.NewJob(
			gocron.DurationJob(opts.HealthInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := monitor.DeviceHealth(ctx, source.State(), time.Now()); err != nil {
					log.Error().Err(err).Msg("device health check failed")
				}
			}),
		)
		if err != nil {
			return nil, err
		}
	}

	s.Start()
	return s, nil
}
