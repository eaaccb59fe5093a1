package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/alert"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) SaveActivityWithAlert(ctx context.Context, act *activity.SuspiciousActivity, al *alert.MonitoringAlert) error {
	args := m.Called(ctx, act, al)
	return args.Error(0)
}

func (m *mockRepository) SaveVerification(ctx context.Context, rec VerificationRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockRepository) CountFailedVerifications(ctx context.Context, subjectID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, subjectID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) SubjectsOverSubmissionRate(ctx context.Context, since time.Time, threshold int) ([]SubjectCount, error) {
	args := m.Called(ctx, since, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SubjectCount), args.Error(1)
}

func (m *mockRepository) SubjectsOverFailureRate(ctx context.Context, since time.Time, threshold int) ([]SubjectCount, error) {
	args := m.Called(ctx, since, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SubjectCount), args.Error(1)
}

func (m *mockRepository) DuplicateContentKeys(ctx context.Context, since time.Time, minSubjects int) ([]DuplicateGroup, error) {
	args := m.Called(ctx, since, minSubjects)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]DuplicateGroup), args.Error(1)
}

func (m *mockRepository) ListActivities(ctx context.Context, subjectID uuid.UUID) ([]*activity.SuspiciousActivity, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*activity.SuspiciousActivity), args.Error(1)
}

func (m *mockRepository) ListAlerts(ctx context.Context, status *alert.Status) ([]*alert.MonitoringAlert, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*alert.MonitoringAlert), args.Error(1)
}

func (m *mockRepository) GetAlert(ctx context.Context, id uuid.UUID) (*alert.MonitoringAlert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*alert.MonitoringAlert), args.Error(1)
}

func (m *mockRepository) TransitionAlert(ctx context.Context, id uuid.UUID, from, to alert.Status, actorID uuid.UUID, at time.Time) (*alert.MonitoringAlert, error) {
	args := m.Called(ctx, id, from, to, actorID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*alert.MonitoringAlert), args.Error(1)
}

type mockVelocityStore struct {
	mock.Mock
}

func (m *mockVelocityStore) RecordEvent(ctx context.Context, subjectID uuid.UUID, kind string, at time.Time) error {
	args := m.Called(ctx, subjectID, kind, at)
	return args.Error(0)
}

func (m *mockVelocityStore) CountEvents(ctx context.Context, subjectID uuid.UUID, kind string, window time.Duration) (int, error) {
	args := m.Called(ctx, subjectID, kind, window)
	return args.Int(0), args.Error(1)
}

func (m *mockVelocityStore) RecordLocation(ctx context.Context, subjectID uuid.UUID, location string, at time.Time) error {
	args := m.Called(ctx, subjectID, location, at)
	return args.Error(0)
}

func (m *mockVelocityStore) RecentLocations(ctx context.Context, subjectID uuid.UUID, window time.Duration) ([]string, error) {
	args := m.Called(ctx, subjectID, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockBlockService struct {
	mock.Mock
}

func (m *mockBlockService) Block(ctx context.Context, subjectID uuid.UUID, reason string) error {
	args := m.Called(ctx, subjectID, reason)
	return args.Error(0)
}

type mockInvestigationService struct {
	mock.Mock
}

func (m *mockInvestigationService) OpenCase(ctx context.Context, subjectID uuid.UUID, priority CasePriority, description string, evidence []activity.Evidence) (uuid.UUID, error) {
	args := m.Called(ctx, subjectID, priority, description, evidence)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type mockNotificationService struct {
	mock.Mock
}

func (m *mockNotificationService) Notify(ctx context.Context, al *alert.MonitoringAlert) error {
	args := m.Called(ctx, al)
	return args.Error(0)
}
