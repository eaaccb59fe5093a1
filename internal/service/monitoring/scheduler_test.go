package monitoring

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestScheduler_RunsJobsOnInterval(t *testing.T) {
	var runs atomic.Int64
	jobs := []Job{{
		Name:     "counting",
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}}

	s := NewScheduler(jobs, nil, zaptest.NewLogger(t))
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int64(3))

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestScheduler_JobsRunIndependently(t *testing.T) {
	var fast, slow atomic.Int64
	jobs := []Job{
		{
			Name:     "fast",
			Interval: 10 * time.Millisecond,
			Run: func(ctx context.Context) error {
				fast.Add(1)
				return nil
			},
		},
		{
			Name:     "slow",
			Interval: 10 * time.Millisecond,
			Run: func(ctx context.Context) error {
				slow.Add(1)
				// A stalled sweep must not starve its siblings.
				select {
				case <-ctx.Done():
				case <-time.After(5 * time.Second):
				}
				return ctx.Err()
			},
		},
	}

	s := NewScheduler(jobs, nil, zaptest.NewLogger(t))
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, fast.Load(), int64(3))
	assert.Equal(t, int64(1), slow.Load())
}

func TestScheduler_NoRunStartsAfterStop(t *testing.T) {
	// The job blocks until cancellation, so ticks queue up behind it.
	// When Stop cancels, the loop sees both the done signal and a pending
	// tick; it must not start another run.
	var runs atomic.Int64
	jobs := []Job{{
		Name:     "blocking",
		Interval: time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			<-ctx.Done()
			return ctx.Err()
		},
	}}

	s := NewScheduler(jobs, nil, zaptest.NewLogger(t))
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	s.Stop()
	assert.Equal(t, int64(1), runs.Load())
}

func TestScheduler_PanicDoesNotKillLoop(t *testing.T) {
	var runs atomic.Int64
	jobs := []Job{{
		Name:     "panicky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			panic("sweep exploded")
		},
	}}

	s := NewScheduler(jobs, nil, zaptest.NewLogger(t))
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestScheduler_SkipsNonPositiveIntervals(t *testing.T) {
	var runs atomic.Int64
	jobs := []Job{{
		Name: "disabled",
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}}

	s := NewScheduler(jobs, nil, zaptest.NewLogger(t))
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(0), runs.Load())
}

func TestScheduler_StopBeforeStartIsSafe(t *testing.T) {
	s := NewScheduler(nil, nil, zaptest.NewLogger(t))
	s.Stop()
	s.Start()
	s.Start()
	s.Stop()
}
