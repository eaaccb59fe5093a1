package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/alert"
)

// VerificationRecord is the persisted trace of one document verification
// attempt, used by the rapid-submission, failed-verification and
// duplicate-document detectors.
type VerificationRecord struct {
	SubjectID   uuid.UUID
	ContentKey  string
	IsAuthentic bool
	VerifiedAt  time.Time
}

// SubjectCount pairs a subject with an aggregate event count.
type SubjectCount struct {
	SubjectID uuid.UUID
	Count     int
}

// DuplicateGroup is a document content key seen for multiple subjects.
type DuplicateGroup struct {
	ContentKey string
	SubjectIDs []uuid.UUID
}

// Repository defines the engine's persistence contract. Activities are
// append-only; alerts transition forward only.
type Repository interface {
	// SaveActivityWithAlert persists the activity and, when al is non-nil,
	// its alert inside one transaction.
	SaveActivityWithAlert(ctx context.Context, act *activity.SuspiciousActivity, al *alert.MonitoringAlert) error
	// SaveVerification records a document verification attempt
	SaveVerification(ctx context.Context, rec VerificationRecord) error
	// CountFailedVerifications counts failed attempts for a subject since the cutoff
	CountFailedVerifications(ctx context.Context, subjectID uuid.UUID, since time.Time) (int, error)
	// SubjectsOverSubmissionRate lists subjects with at least threshold submissions since the cutoff
	SubjectsOverSubmissionRate(ctx context.Context, since time.Time, threshold int) ([]SubjectCount, error)
	// SubjectsOverFailureRate lists subjects with at least threshold failed verifications since the cutoff
	SubjectsOverFailureRate(ctx context.Context, since time.Time, threshold int) ([]SubjectCount, error)
	// DuplicateContentKeys lists content keys shared by at least minSubjects distinct subjects since the cutoff
	DuplicateContentKeys(ctx context.Context, since time.Time, minSubjects int) ([]DuplicateGroup, error)
	// ListActivities returns a subject's activities ordered newest-first
	ListActivities(ctx context.Context, subjectID uuid.UUID) ([]*activity.SuspiciousActivity, error)
	// ListAlerts returns alerts ordered newest-first, optionally filtered by status
	ListAlerts(ctx context.Context, status *alert.Status) ([]*alert.MonitoringAlert, error)
	// GetAlert fetches one alert
	GetAlert(ctx context.Context, id uuid.UUID) (*alert.MonitoringAlert, error)
	// TransitionAlert advances an alert from one status to the next with
	// concurrency control: the update applies only if the stored status
	// still equals from.
	TransitionAlert(ctx context.Context, id uuid.UUID, from, to alert.Status, actorID uuid.UUID, at time.Time) (*alert.MonitoringAlert, error)
}

// VelocityStore counts recent events per subject inside trailing windows.
type VelocityStore interface {
	// RecordEvent adds one event occurrence for the subject/kind pair
	RecordEvent(ctx context.Context, subjectID uuid.UUID, kind string, at time.Time) error
	// CountEvents counts occurrences inside the trailing window
	CountEvents(ctx context.Context, subjectID uuid.UUID, kind string, window time.Duration) (int, error)
	// RecordLocation tracks a session location for the subject
	RecordLocation(ctx context.Context, subjectID uuid.UUID, location string, at time.Time) error
	// RecentLocations returns distinct locations seen inside the window
	RecentLocations(ctx context.Context, subjectID uuid.UUID, window time.Duration) ([]string, error)
}

// CasePriority is the urgency of an escalated investigation case
type CasePriority string

const (
	PriorityHigh   CasePriority = "high"
	PriorityUrgent CasePriority = "urgent"
)

// BlockService suspends a subject's further processing.
type BlockService interface {
	Block(ctx context.Context, subjectID uuid.UUID, reason string) error
}

// InvestigationService opens formal investigation cases for human follow-up.
type InvestigationService interface {
	OpenCase(ctx context.Context, subjectID uuid.UUID, priority CasePriority, description string, evidence []activity.Evidence) (uuid.UUID, error)
}

// NotificationService delivers real-time alerts to operators.
type NotificationService interface {
	Notify(ctx context.Context, al *alert.MonitoringAlert) error
}
