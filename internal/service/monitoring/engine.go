package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/alert"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/baseline"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/errors"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/event"
	"github.com/harborgate/intake-monitoring-backend/internal/metrics"
)

// Engine is the suspicious-activity monitoring core. It records incoming
// events, maintains behavioral baselines, runs the on-demand detectors and
// hands detections to the processor/dispatcher pipeline. All collaborators
// are constructor-injected.
type Engine struct {
	cfg        Config
	log        *zap.Logger
	repo       Repository
	baselines  *baseline.Store
	detectors  *detectorSet
	dispatcher *Dispatcher
	metrics    *metrics.Registry
}

// NewEngine wires the engine from its collaborators.
func NewEngine(
	cfg Config,
	repo Repository,
	velocity VelocityStore,
	baselines *baseline.Store,
	dispatcher *Dispatcher,
	registry *metrics.Registry,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		log:       logger,
		repo:      repo,
		baselines: baselines,
		detectors: &detectorSet{
			cfg:       cfg,
			repo:      repo,
			velocity:  velocity,
			baselines: baselines,
		},
		dispatcher: dispatcher,
		metrics:    registry,
	}
}

// RecordActivity is the synchronous ingestion entry point. It validates the
// event, updates the baseline store and runs the on-demand detectors for
// the triggering subject. The returned error reflects validation or
// persistence failures only; detector errors are logged per-detector and
// response-action failures never surface here.
func (e *Engine) RecordActivity(ctx context.Context, ev *event.ActivityEvent) error {
	if ev == nil {
		return errors.ErrInvalidEvent
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	e.metrics.AddEventIngested(ctx, string(ev.Kind))

	var detections []*activity.SuspiciousActivity

	switch ev.Kind {
	case event.KindBehavioral:
		detections = e.recordBehavioral(ctx, ev)
	case event.KindVerification:
		var err error
		detections, err = e.recordVerification(ctx, ev)
		if err != nil {
			return err
		}
	case event.KindNetwork:
		detections = e.recordNetwork(ctx, ev)
	}

	for _, act := range detections {
		if err := e.process(ctx, act); err != nil {
			return err
		}
	}
	return nil
}

// recordBehavioral snapshots the baseline before updating it so the anomaly
// check compares against history that excludes the incoming sample.
func (e *Engine) recordBehavioral(ctx context.Context, ev *event.ActivityEvent) []*activity.SuspiciousActivity {
	sample := ev.Behavioral
	snap, _ := e.baselines.Snapshot(ev.SubjectID)

	e.baselines.RecordSample(ev.SubjectID, baseline.SampleSessionDuration, sample.SessionDurationSeconds, ev.OccurredAt)
	e.baselines.RecordSample(ev.SubjectID, baseline.SampleTypingInterval, sample.TypingIntervalMs, ev.OccurredAt)
	e.baselines.RecordSample(ev.SubjectID, baseline.SampleClickDuration, sample.ClickDurationMs, ev.OccurredAt)

	act := e.runDetector(ctx, "behavioral_anomaly", func() (*activity.SuspiciousActivity, error) {
		return e.detectors.behavioralAnomaly(ev.SubjectID, observeSample(snap, sample))
	})
	if act == nil {
		return nil
	}
	return []*activity.SuspiciousActivity{act}
}

// recordVerification persists the attempt, counts it for windowed velocity
// and runs the rapid-submission check, plus the failed-verification check
// when the attempt was not authentic. Persistence failure propagates: the
// event is considered not fully processed.
func (e *Engine) recordVerification(ctx context.Context, ev *event.ActivityEvent) ([]*activity.SuspiciousActivity, error) {
	rec := VerificationRecord{
		SubjectID:   ev.SubjectID,
		ContentKey:  ev.Verification.ContentKey,
		IsAuthentic: ev.Verification.IsAuthentic,
		VerifiedAt:  ev.Verification.VerifiedAt,
	}
	if rec.VerifiedAt.IsZero() {
		rec.VerifiedAt = ev.OccurredAt
	}
	if err := e.repo.SaveVerification(ctx, rec); err != nil {
		return nil, errors.NewPersistenceError("save_verification", err)
	}

	if err := e.detectors.recordSubmission(ctx, ev.SubjectID, ev.OccurredAt); err != nil {
		// Counter cache unavailability degrades the rapid check but must
		// not fail ingestion of a persisted event.
		e.log.Warn("velocity store unavailable",
			zap.String("subject_id", ev.SubjectID.String()),
			zap.Error(err))
	}

	var detections []*activity.SuspiciousActivity
	if act := e.runDetector(ctx, "rapid_submissions", func() (*activity.SuspiciousActivity, error) {
		return e.detectors.checkRapidSubmissions(ctx, ev.SubjectID)
	}); act != nil {
		detections = append(detections, act)
	}

	if !rec.IsAuthentic {
		if act := e.runDetector(ctx, "failed_verifications", func() (*activity.SuspiciousActivity, error) {
			return e.detectors.checkFailedVerifications(ctx, ev.SubjectID)
		}); act != nil {
			// The triggering attempt itself is evidence alongside the
			// aggregate count.
			ua := activity.NewEvidence(activity.EvidenceUserAction,
				"latest verification attempt failed", 0.9)
			ua.UserAction = &activity.UserActionData{
				Action:     "document_verification_failed",
				OccurredAt: rec.VerifiedAt.UTC().Format(time.RFC3339),
			}
			act.AttachEvidence(ua)
			detections = append(detections, act)
		}
	}
	return detections, nil
}

// recordNetwork runs the network-anomaly check against history that
// excludes the current sample, then folds the sample into the baseline and
// location history.
func (e *Engine) recordNetwork(ctx context.Context, ev *event.ActivityEvent) []*activity.SuspiciousActivity {
	net := ev.Network

	act := e.runDetector(ctx, "network_anomaly", func() (*activity.SuspiciousActivity, error) {
		return e.detectors.checkNetworkAnomaly(ctx, ev.SubjectID, net)
	})

	e.baselines.RecordIdentity(ev.SubjectID, net.DeviceFingerprint, net.IP, ev.OccurredAt)
	if net.Location != "" {
		if err := e.detectors.velocity.RecordLocation(ctx, ev.SubjectID, net.Location, ev.OccurredAt); err != nil {
			e.log.Warn("recording session location failed",
				zap.String("subject_id", ev.SubjectID.String()),
				zap.Error(err))
		}
	}

	if act == nil {
		return nil
	}
	return []*activity.SuspiciousActivity{act}
}

// runDetector isolates a single detector: panics and errors are logged and
// swallowed so sibling detectors and the ingestion call keep going.
func (e *Engine) runDetector(ctx context.Context, name string, fn func() (*activity.SuspiciousActivity, error)) (act *activity.SuspiciousActivity) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.AddDetectorFailure(ctx, name)
			e.log.Error("detector panicked",
				zap.String("detector", name),
				zap.Any("panic", r))
			act = nil
		}
	}()

	act, err := fn()
	if err != nil {
		e.metrics.AddDetectorFailure(ctx, name)
		e.log.Warn("detector failed",
			zap.String("detector", name),
			zap.Error(err))
		return nil
	}
	return act
}

// process persists a detection and, unless suppressed by the alert
// cooldown, its alert in one transaction, then dispatches response actions
// asynchronously.
func (e *Engine) process(ctx context.Context, act *activity.SuspiciousActivity) error {
	al := e.dispatcher.PrepareAlert(act)

	if err := e.repo.SaveActivityWithAlert(ctx, act, al); err != nil {
		if al != nil {
			// Nothing was recorded, so the cooldown must not hold the
			// next detection's alert hostage.
			e.dispatcher.ReleaseCooldown(act)
		}
		return errors.NewPersistenceError("save_activity", err)
	}

	e.metrics.AddDetection(ctx, string(act.Type), string(act.Severity))
	e.log.Info("suspicious activity recorded",
		zap.String("activity_id", act.ID.String()),
		zap.String("subject_id", act.SubjectID.String()),
		zap.String("type", string(act.Type)),
		zap.String("severity", string(act.Severity)),
		zap.Float64("risk_score", act.RiskScore))

	if al != nil {
		e.metrics.AddAlertCreated(ctx, string(al.Severity))
		e.dispatcher.DispatchActions(act, al)
	}
	return nil
}

// ListActivities returns a subject's activities, newest first.
func (e *Engine) ListActivities(ctx context.Context, subjectID uuid.UUID) ([]*activity.SuspiciousActivity, error) {
	if subjectID == uuid.Nil {
		return nil, errors.ErrMissingSubject
	}
	return e.repo.ListActivities(ctx, subjectID)
}

// ListAlerts returns alerts newest first, optionally filtered by status.
func (e *Engine) ListAlerts(ctx context.Context, status *alert.Status) ([]*alert.MonitoringAlert, error) {
	return e.repo.ListAlerts(ctx, status)
}

// GetAlert fetches a single alert by id.
func (e *Engine) GetAlert(ctx context.Context, alertID uuid.UUID) (*alert.MonitoringAlert, error) {
	return e.repo.GetAlert(ctx, alertID)
}

// AcknowledgeAlert transitions a pending alert to acknowledged on behalf of
// the actor. Acknowledging an alert that is not pending is a conflict, not
// a no-op; the repository enforces the expected-status check so concurrent
// acknowledgers cannot both win.
func (e *Engine) AcknowledgeAlert(ctx context.Context, alertID, actorID uuid.UUID) (*alert.MonitoringAlert, error) {
	if actorID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ACTOR", "actor id is required")
	}
	al, err := e.repo.TransitionAlert(ctx, alertID, alert.StatusPending, alert.StatusAcknowledged, actorID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	e.log.Info("alert acknowledged",
		zap.String("alert_id", alertID.String()),
		zap.String("actor_id", actorID.String()))
	return al, nil
}

// Close stops the dispatcher's worker pool, draining queued actions.
func (e *Engine) Close() {
	if e.dispatcher != nil {
		e.dispatcher.Stop()
	}
}
