package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franchiseos/leadhub/internal/logger"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 3
}

func TestSchedulerRunsJobs(t *testing.T) {
	t.Parallel()

	s := NewScheduler(logger.Discard())
	sweeper := &countingSweeper{}
	require.NoError(t, s.Add(SweepJob(logger.Discard(), "sweep", "@every 1s", sweeper)))
	s.Start()

	require.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestSchedulerAddValidation(t *testing.T) {
	t.Parallel()

	s := NewScheduler(logger.Discard())
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Job{Name: "", Schedule: "@hourly", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "bad", Schedule: "every now and then", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "hourly", Schedule: "@hourly", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "hourly", Schedule: "@daily", Run: noop}))
	assert.Equal(t, []string{"hourly"}, s.Jobs())
}

func TestSweepJobStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	job := SweepJob(nil, "sweep", "@hourly", sweeper)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(job.Run(ctx), context.Canceled))
	assert.Zero(t, sweeper.calls.Load())
	require.NoError(t, job.Run(context.Background()))
	assert.EqualValues(t, 1, sweeper.calls.Load())
}
