package monitoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/alert"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/baseline"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/errors"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/event"
)

type engineFixture struct {
	engine         *Engine
	repo           *mockRepository
	velocity       *mockVelocityStore
	blocker        *mockBlockService
	investigations *mockInvestigationService
	notifier       *mockNotificationService
}

func newEngineFixture(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	f := &engineFixture{
		repo:           new(mockRepository),
		velocity:       new(mockVelocityStore),
		blocker:        new(mockBlockService),
		investigations: new(mockInvestigationService),
		notifier:       new(mockNotificationService),
	}

	logger := zaptest.NewLogger(t)
	dispatcher := NewDispatcher(cfg, f.blocker, f.investigations, f.notifier, nil, logger)
	dispatcher.Start()

	f.engine = NewEngine(cfg, f.repo, f.velocity, baseline.NewStore(cfg.BaselineCapacity), dispatcher, nil, logger)
	t.Cleanup(f.engine.Close)
	return f
}

func behavioralEvent(subjectID uuid.UUID, session, typing, click float64) *event.ActivityEvent {
	return &event.ActivityEvent{
		SubjectID:  subjectID,
		Kind:       event.KindBehavioral,
		OccurredAt: time.Now(),
		Behavioral: &event.BehavioralSample{
			SessionDurationSeconds: session,
			TypingIntervalMs:       typing,
			ClickDurationMs:        click,
		},
	}
}

func verificationEvent(subjectID uuid.UUID, contentKey string, authentic bool) *event.ActivityEvent {
	return &event.ActivityEvent{
		SubjectID:  subjectID,
		Kind:       event.KindVerification,
		OccurredAt: time.Now(),
		Verification: &event.VerificationResult{
			IsAuthentic: authentic,
			ContentKey:  contentKey,
			VerifiedAt:  time.Now(),
		},
	}
}

func TestRecordActivity_RejectsInvalidEvents(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	err := f.engine.RecordActivity(ctx, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidEvent)

	err = f.engine.RecordActivity(ctx, &event.ActivityEvent{
		Kind:       event.KindBehavioral,
		OccurredAt: time.Now(),
		Behavioral: &event.BehavioralSample{},
	})
	assert.ErrorIs(t, err, errors.ErrMissingSubject)

	err = f.engine.RecordActivity(ctx, &event.ActivityEvent{
		SubjectID:  uuid.New(),
		Kind:       event.KindVerification,
		OccurredAt: time.Now(),
	})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestRecordActivity_FirstBehavioralSampleNeverFlags(t *testing.T) {
	f := newEngineFixture(t, nil)
	subjectID := uuid.New()

	err := f.engine.RecordActivity(context.Background(), behavioralEvent(subjectID, 100, 200, 50))
	require.NoError(t, err)

	f.repo.AssertNotCalled(t, "SaveActivityWithAlert", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordActivity_BehavioralAnomalyBlocksWhenCritical(t *testing.T) {
	blocked := make(chan uuid.UUID, 1)

	f := newEngineFixture(t, func(cfg *Config) {
		cfg.AutoBlock = true
		cfg.RealTimeAlerts = false
		cfg.AutoEscalate = false
	})
	subjectID := uuid.New()
	ctx := context.Background()

	// Stable history first.
	for i := 0; i < 3; i++ {
		require.NoError(t, f.engine.RecordActivity(ctx, behavioralEvent(subjectID, 100, 200, 50)))
	}

	var saved *activity.SuspiciousActivity
	f.repo.On("SaveActivityWithAlert", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*activity.SuspiciousActivity)
			require.NotNil(t, args.Get(2))
		}).Return(nil).Once()
	f.blocker.On("Block", mock.Anything, subjectID, mock.Anything).
		Run(func(args mock.Arguments) { blocked <- args.Get(1).(uuid.UUID) }).
		Return(nil).Once()

	// Every feature at triple its mean clamps each deviation to 1.0.
	require.NoError(t, f.engine.RecordActivity(ctx, behavioralEvent(subjectID, 300, 600, 150)))

	select {
	case got := <-blocked:
		assert.Equal(t, subjectID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("block action never ran")
	}

	require.NotNil(t, saved)
	assert.Equal(t, activity.TypeBehavioralAnomaly, saved.Type)
	assert.Equal(t, activity.SeverityCritical, saved.Severity)
	assert.InDelta(t, 1.0, saved.RiskScore, 1e-9)

	f.repo.AssertExpectations(t)
	f.blocker.AssertExpectations(t)
}

func TestRecordActivity_VerificationTriggersRapidCheck(t *testing.T) {
	f := newEngineFixture(t, func(cfg *Config) {
		cfg.RealTimeAlerts = false
		cfg.AutoEscalate = false
	})
	subjectID := uuid.New()
	ctx := context.Background()

	f.repo.On("SaveVerification", mock.Anything, mock.Anything).Return(nil).Once()
	f.velocity.On("RecordEvent", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).Return(nil).Once()
	f.velocity.On("CountEvents", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).Return(6, nil).Once()

	var saved *activity.SuspiciousActivity
	f.repo.On("SaveActivityWithAlert", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*activity.SuspiciousActivity)
		}).Return(nil).Once()

	require.NoError(t, f.engine.RecordActivity(ctx, verificationEvent(subjectID, "sha256:abc", true)))

	require.NotNil(t, saved)
	assert.Equal(t, activity.TypeRapidSubmissions, saved.Type)
	assert.InDelta(t, 0.6, saved.RiskScore, 1e-9)

	f.repo.AssertExpectations(t)
	f.velocity.AssertExpectations(t)
}

func TestRecordActivity_FailedVerificationChecksHistory(t *testing.T) {
	f := newEngineFixture(t, func(cfg *Config) {
		cfg.RealTimeAlerts = false
		cfg.AutoEscalate = false
	})
	subjectID := uuid.New()
	ctx := context.Background()

	f.repo.On("SaveVerification", mock.Anything, mock.Anything).Return(nil).Once()
	f.velocity.On("RecordEvent", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).Return(nil).Once()
	f.velocity.On("CountEvents", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).Return(1, nil).Once()
	f.repo.On("CountFailedVerifications", mock.Anything, subjectID, mock.Anything).Return(3, nil).Once()

	var saved *activity.SuspiciousActivity
	f.repo.On("SaveActivityWithAlert", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*activity.SuspiciousActivity)
		}).Return(nil).Once()

	require.NoError(t, f.engine.RecordActivity(ctx, verificationEvent(subjectID, "sha256:abc", false)))

	require.NotNil(t, saved)
	assert.Equal(t, activity.TypeFailedVerifications, saved.Type)
	assert.InDelta(t, 0.6, saved.RiskScore, 1e-9)

	// The aggregate count plus the triggering attempt itself.
	require.Len(t, saved.Evidence, 2)
	assert.Equal(t, activity.EvidenceSystemLog, saved.Evidence[0].Kind)
	assert.Equal(t, activity.EvidenceUserAction, saved.Evidence[1].Kind)
	require.NotNil(t, saved.Evidence[1].UserAction)
	assert.Equal(t, "document_verification_failed", saved.Evidence[1].UserAction.Action)

	f.repo.AssertExpectations(t)
}

func TestRecordActivity_SaveFailureDoesNotSuppressNextAlert(t *testing.T) {
	f := newEngineFixture(t, func(cfg *Config) {
		cfg.RealTimeAlerts = false
		cfg.AutoEscalate = false
	})
	subjectID := uuid.New()
	ctx := context.Background()

	f.repo.On("SaveVerification", mock.Anything, mock.Anything).Return(nil).Twice()
	f.velocity.On("RecordEvent", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).Return(nil).Twice()
	f.velocity.On("CountEvents", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).Return(6, nil).Twice()

	// First detection: storage rejects the write, so neither the activity
	// nor its alert exist.
	f.repo.On("SaveActivityWithAlert", mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Errorf("connection refused")).Once()

	err := f.engine.RecordActivity(ctx, verificationEvent(subjectID, "sha256:abc", true))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))

	// Second detection inside the cooldown window: the failed write must
	// not have stamped the cooldown, so a fresh alert is prepared.
	var gotAlert *alert.MonitoringAlert
	f.repo.On("SaveActivityWithAlert", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if al, ok := args.Get(2).(*alert.MonitoringAlert); ok {
				gotAlert = al
			}
		}).Return(nil).Once()

	require.NoError(t, f.engine.RecordActivity(ctx, verificationEvent(subjectID, "sha256:abc", true)))
	require.NotNil(t, gotAlert)
	assert.Equal(t, subjectID, gotAlert.SubjectID)

	f.repo.AssertExpectations(t)
}

func TestRecordActivity_AuthenticVerificationSkipsFailureCheck(t *testing.T) {
	f := newEngineFixture(t, nil)
	subjectID := uuid.New()

	f.repo.On("SaveVerification", mock.Anything, mock.Anything).Return(nil).Once()
	f.velocity.On("RecordEvent", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).Return(nil).Once()
	f.velocity.On("CountEvents", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).Return(1, nil).Once()

	require.NoError(t, f.engine.RecordActivity(context.Background(), verificationEvent(subjectID, "sha256:abc", true)))

	f.repo.AssertNotCalled(t, "CountFailedVerifications", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordActivity_VerificationPersistenceFailurePropagates(t *testing.T) {
	f := newEngineFixture(t, nil)
	subjectID := uuid.New()

	f.repo.On("SaveVerification", mock.Anything, mock.Anything).
		Return(fmt.Errorf("connection refused")).Once()

	err := f.engine.RecordActivity(context.Background(), verificationEvent(subjectID, "sha256:abc", true))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))

	f.velocity.AssertNotCalled(t, "RecordEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordActivity_VelocityOutageDegradesNotFails(t *testing.T) {
	f := newEngineFixture(t, nil)
	subjectID := uuid.New()

	f.repo.On("SaveVerification", mock.Anything, mock.Anything).Return(nil).Once()
	f.velocity.On("RecordEvent", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).
		Return(fmt.Errorf("redis down")).Once()
	f.velocity.On("CountEvents", mock.Anything, subjectID, velocityKindSubmission, mock.Anything).
		Return(0, fmt.Errorf("redis down")).Once()

	// Detector failure is isolated; ingestion of the persisted event succeeds.
	err := f.engine.RecordActivity(context.Background(), verificationEvent(subjectID, "sha256:abc", true))
	assert.NoError(t, err)
}

func TestRecordActivity_NetworkAnomalyDetected(t *testing.T) {
	f := newEngineFixture(t, func(cfg *Config) {
		cfg.RealTimeAlerts = false
		cfg.AutoEscalate = false
	})
	subjectID := uuid.New()
	ctx := context.Background()

	f.velocity.On("RecentLocations", mock.Anything, subjectID, mock.Anything).
		Return([]string{"Berlin", "Paris", "Madrid"}, nil).Once()
	f.velocity.On("RecordLocation", mock.Anything, subjectID, "Lagos", mock.Anything).Return(nil).Once()

	var saved *activity.SuspiciousActivity
	f.repo.On("SaveActivityWithAlert", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*activity.SuspiciousActivity)
		}).Return(nil).Once()

	ev := &event.ActivityEvent{
		SubjectID:  subjectID,
		Kind:       event.KindNetwork,
		OccurredAt: time.Now(),
		Network: &event.NetworkAnalysis{
			IP:                 "203.0.113.9",
			Location:           "Lagos",
			IsVPN:              true,
			IPRiskScore:        0.75,
			ConcurrentSessions: 4,
			DeviceFingerprint:  "fp-1",
		},
	}
	require.NoError(t, f.engine.RecordActivity(ctx, ev))

	require.NotNil(t, saved)
	assert.Equal(t, activity.TypeSuspiciousIP, saved.Type)
	assert.Equal(t, activity.SeverityHigh, saved.Severity)

	f.velocity.AssertExpectations(t)
	f.repo.AssertExpectations(t)
}

func TestAcknowledgeAlert(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	alertID, actorID := uuid.New(), uuid.New()

	want := &alert.MonitoringAlert{ID: alertID, Status: alert.StatusAcknowledged}
	f.repo.On("TransitionAlert", mock.Anything, alertID, alert.StatusPending, alert.StatusAcknowledged, actorID, mock.Anything).
		Return(want, nil).Once()

	got, err := f.engine.AcknowledgeAlert(ctx, alertID, actorID)
	require.NoError(t, err)
	assert.Equal(t, alert.StatusAcknowledged, got.Status)

	// A second acknowledge finds the alert no longer pending.
	f.repo.On("TransitionAlert", mock.Anything, alertID, alert.StatusPending, alert.StatusAcknowledged, actorID, mock.Anything).
		Return(nil, errors.NewConflictError("alert is not pending")).Once()

	_, err = f.engine.AcknowledgeAlert(ctx, alertID, actorID)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	f.repo.AssertExpectations(t)
}

func TestAcknowledgeAlert_RequiresActor(t *testing.T) {
	f := newEngineFixture(t, nil)

	_, err := f.engine.AcknowledgeAlert(context.Background(), uuid.New(), uuid.Nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestGetAlert(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	alertID := uuid.New()

	want := &alert.MonitoringAlert{ID: alertID, Status: alert.StatusPending}
	f.repo.On("GetAlert", mock.Anything, alertID).Return(want, nil).Once()

	got, err := f.engine.GetAlert(ctx, alertID)
	require.NoError(t, err)
	assert.Equal(t, alertID, got.ID)

	missing := uuid.New()
	f.repo.On("GetAlert", mock.Anything, missing).Return(nil, errors.ErrAlertNotFound).Once()

	_, err = f.engine.GetAlert(ctx, missing)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	f.repo.AssertExpectations(t)
}

func TestListActivities_RequiresSubject(t *testing.T) {
	f := newEngineFixture(t, nil)

	_, err := f.engine.ListActivities(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, errors.ErrMissingSubject)
}
