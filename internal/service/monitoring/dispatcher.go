package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/alert"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/errors"
	"github.com/harborgate/intake-monitoring-backend/internal/metrics"
)

// Dispatcher turns persisted detections into monitoring alerts and drives
// the automated response actions. Side effects run on a bounded worker
// pool: each is independent, best-effort and at-most-once — a failure is
// logged and counted, never retried, and never fails the triggering
// detection.
type Dispatcher struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Registry

	blocker        BlockService
	investigations InvestigationService
	notifier       NotificationService
	notifyLimiter  *rate.Limiter

	mu        sync.Mutex
	cooldowns map[string]time.Time

	tasks chan actionTask
	wg    sync.WaitGroup
}

type actionTask struct {
	name string
	run  func(ctx context.Context) error
}

// NewDispatcher creates a dispatcher; Start must be called before any
// actions are dispatched.
func NewDispatcher(
	cfg Config,
	blocker BlockService,
	investigations InvestigationService,
	notifier NotificationService,
	registry *metrics.Registry,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.ActionWorkers
	if workers <= 0 {
		workers = 1
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	limit := rate.Limit(cfg.NotifyRate)
	if cfg.NotifyRate <= 0 {
		limit = rate.Inf
	}

	return &Dispatcher{
		cfg:            cfg,
		log:            logger,
		metrics:        registry,
		blocker:        blocker,
		investigations: investigations,
		notifier:       notifier,
		notifyLimiter:  rate.NewLimiter(limit, int(cfg.NotifyRate)+1),
		cooldowns:      make(map[string]time.Time),
		tasks:          make(chan actionTask, workers*2),
	}
}

// Start launches the action workers.
func (d *Dispatcher) Start() {
	workers := d.cfg.ActionWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop shuts the pool down, letting queued actions drain.
func (d *Dispatcher) Stop() {
	close(d.tasks)
	d.wg.Wait()
}

func cooldownKey(act *activity.SuspiciousActivity) string {
	return act.SubjectID.String() + "|" + string(act.Type)
}

// PrepareAlert builds the pending alert for a detection, or returns nil
// when the subject+type pair is still inside the cooldown window. The
// activity itself is persisted either way; only the alert and its side
// effects are suppressed.
func (d *Dispatcher) PrepareAlert(act *activity.SuspiciousActivity) *alert.MonitoringAlert {
	key := cooldownKey(act)

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.cooldowns[key]; ok && time.Since(last) < d.cfg.AlertCooldown {
		d.metrics.AddAlertSuppressed(context.Background(), string(act.Type))
		d.log.Debug("alert suppressed by cooldown",
			zap.String("subject_id", act.SubjectID.String()),
			zap.String("type", string(act.Type)),
			zap.Duration("since_last", time.Since(last)))
		return nil
	}

	d.cooldowns[key] = time.Now()
	return alert.FromActivity(act)
}

// ReleaseCooldown clears the stamp set by PrepareAlert. Called when the
// prepared alert was never persisted, so the next detection of the same
// subject+type pair can re-raise it instead of being suppressed by an
// alert that does not exist.
func (d *Dispatcher) ReleaseCooldown(act *activity.SuspiciousActivity) {
	d.mu.Lock()
	delete(d.cooldowns, cooldownKey(act))
	d.mu.Unlock()
}

// DispatchActions enqueues the configured automated responses for an alert.
// Never blocks: when the pool queue is full the action is dropped and
// counted as a failure.
func (d *Dispatcher) DispatchActions(act *activity.SuspiciousActivity, al *alert.MonitoringAlert) {
	if d.cfg.AutoBlock && act.Severity == activity.SeverityCritical {
		subjectID, reason := act.SubjectID, act.Description
		d.submit(actionTask{name: "block", run: func(ctx context.Context) error {
			return d.blocker.Block(ctx, subjectID, reason)
		}})
	}

	if d.cfg.AutoEscalate && (act.Severity == activity.SeverityHigh || act.Severity == activity.SeverityCritical) {
		priority := PriorityHigh
		if act.Severity == activity.SeverityCritical {
			priority = PriorityUrgent
		}
		subjectID, description, evidence := act.SubjectID, act.Description, act.Evidence
		d.submit(actionTask{name: "escalate", run: func(ctx context.Context) error {
			caseID, err := d.investigations.OpenCase(ctx, subjectID, priority, description, evidence)
			if err != nil {
				return err
			}
			d.log.Info("investigation case opened",
				zap.String("case_id", caseID.String()),
				zap.String("subject_id", subjectID.String()),
				zap.String("priority", string(priority)))
			return nil
		}})
	}

	if d.cfg.RealTimeAlerts {
		d.submit(actionTask{name: "notify", run: func(ctx context.Context) error {
			if !d.notifyLimiter.Allow() {
				return fmt.Errorf("notification rate limit exceeded")
			}
			return d.notifier.Notify(ctx, al)
		}})
	}
}

func (d *Dispatcher) submit(task actionTask) {
	select {
	case d.tasks <- task:
	default:
		d.metrics.AddActionFailure(context.Background(), task.name)
		d.log.Warn("action queue full, dropping action",
			zap.String("action", task.name))
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	log := d.log.With(zap.Int("worker_id", id))

	for task := range d.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ActionTimeout)
		err := task.run(ctx)
		cancel()

		if err != nil {
			actionErr := errors.NewActionError(task.name, err)
			d.metrics.AddActionFailure(context.Background(), task.name)
			log.Error("response action failed",
				zap.String("action", task.name),
				zap.Error(actionErr))
		}
	}
}
