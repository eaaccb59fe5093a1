package monitoring

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/alert"
)

// Log-backed collaborator adapters. These stand in until the account
// service, case-management system and notification channels are attached;
// each records the action it would have taken at Info level.

type LogBlockService struct {
	log *zap.Logger
}

func NewLogBlockService(logger *zap.Logger) *LogBlockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogBlockService{log: logger}
}

func (s *LogBlockService) Block(ctx context.Context, subjectID uuid.UUID, reason string) error {
	s.log.Info("subject blocked",
		zap.String("subject_id", subjectID.String()),
		zap.String("reason", reason))
	return nil
}

type LogInvestigationService struct {
	log *zap.Logger
}

func NewLogInvestigationService(logger *zap.Logger) *LogInvestigationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogInvestigationService{log: logger}
}

func (s *LogInvestigationService) OpenCase(ctx context.Context, subjectID uuid.UUID, priority CasePriority, description string, evidence []activity.Evidence) (uuid.UUID, error) {
	caseID := uuid.New()
	s.log.Info("investigation case opened",
		zap.String("case_id", caseID.String()),
		zap.String("subject_id", subjectID.String()),
		zap.String("priority", string(priority)),
		zap.String("description", description),
		zap.Int("evidence_items", len(evidence)))
	return caseID, nil
}

type LogNotificationService struct {
	log *zap.Logger
}

func NewLogNotificationService(logger *zap.Logger) *LogNotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotificationService{log: logger}
}

func (s *LogNotificationService) Notify(ctx context.Context, al *alert.MonitoringAlert) error {
	s.log.Info("alert notification",
		zap.String("alert_id", al.ID.String()),
		zap.String("subject_id", al.SubjectID.String()),
		zap.String("severity", string(al.Severity)),
		zap.String("title", al.Title))
	return nil
}
