package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborgate/intake-monitoring-backend/internal/metrics"
)

// Job is a periodic sweep run by the Scheduler.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker goroutine. Runs of the same
// job never overlap; different jobs run independently. Stop waits for
// in-flight runs to finish.
type Scheduler struct {
	log     *zap.Logger
	metrics *metrics.Registry
	jobs    []Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler creates a scheduler for the given jobs. Jobs with a
// non-positive interval are skipped at Start.
func NewScheduler(jobs []Job, registry *metrics.Registry, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		log:     logger,
		metrics: registry,
		jobs:    jobs,
	}
}

// Start launches the job loops. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.log.Warn("skipping job with non-positive interval", zap.String("job", job.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

// Stop cancels all job loops and blocks until in-flight runs return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	log := s.log.With(zap.String("job", job.Name))
	log.Info("sweep scheduled", zap.Duration("interval", job.Interval))

	for {
		select {
		case <-ctx.Done():
			log.Info("sweep stopped")
			return
		case <-ticker.C:
			// A tick can race the cancellation; never start a new run
			// once Stop has been requested.
			if ctx.Err() != nil {
				log.Info("sweep stopped")
				return
			}
			s.runOnce(ctx, job, log)
		}
	}
}

// runOnce executes a single sweep with a soft deadline and panic
// isolation, so one bad run never kills the job loop.
func (s *Scheduler) runOnce(ctx context.Context, job Job, log *zap.Logger) {
	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("sweep panicked", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	err := job.Run(runCtx)
	elapsed := time.Since(start)

	s.metrics.RecordSweepDuration(ctx, job.Name, elapsed)

	if err != nil {
		log.Error("sweep failed",
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	log.Debug("sweep completed", zap.Duration("elapsed", elapsed))
}
