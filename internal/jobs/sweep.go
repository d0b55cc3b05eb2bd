package jobs

import (
	"context"
	"log/slog"
)

// Sweeper drops expired state. ratelimit.MemoryStore satisfies it.
type Sweeper interface {
	Sweep() int
}

// SweepJob wraps a Sweeper as a Job that logs what it removed.
func SweepJob(log *slog.Logger, name, schedule string, target Sweeper) Job {
	return Job{
		Name:     name,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if removed := target.Sweep(); removed > 0 && log != nil {
				log.Debug("swept expired entries", slog.String("job", name), slog.Int("removed", removed))
			}
			return nil
		},
	}
}
