package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
)

// Status is the monitoring alert lifecycle state. Transitions are strictly
// forward: Pending -> Acknowledged -> Investigating -> Resolved.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAcknowledged  Status = "acknowledged"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// Next returns the only status reachable from s, or "" for terminal.
func (s Status) Next() Status {
	switch s {
	case StatusPending:
		return StatusAcknowledged
	case StatusAcknowledged:
		return StatusInvestigating
	case StatusInvestigating:
		return StatusResolved
	default:
		return ""
	}
}

// CanTransitionTo reports whether the forward-only step to target is legal.
func (s Status) CanTransitionTo(target Status) bool {
	return s.Next() == target && target != ""
}

// MonitoringAlert is created from exactly one SuspiciousActivity and tracks
// the human response to it. Every transition is stamped with an actor.
type MonitoringAlert struct {
	ID                 uuid.UUID           `json:"id"`
	ActivityID         uuid.UUID           `json:"activity_id"`
	SubjectID          uuid.UUID           `json:"subject_id"`
	Type               activity.Type       `json:"type"`
	Severity           activity.Severity   `json:"severity"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Evidence           []activity.Evidence `json:"evidence"`
	RecommendedActions []string            `json:"recommended_actions"`
	Status             Status              `json:"status"`
	AcknowledgedBy     *uuid.UUID          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt     *time.Time          `json:"acknowledged_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// FromActivity builds a pending alert mirroring the backing activity,
// copying its evidence and deriving recommended actions.
func FromActivity(act *activity.SuspiciousActivity) *MonitoringAlert {
	evidence := make([]activity.Evidence, len(act.Evidence))
	copy(evidence, act.Evidence)

	now := time.Now().UTC()
	return &MonitoringAlert{
		ID:                 uuid.New(),
		ActivityID:         act.ID,
		SubjectID:          act.SubjectID,
		Type:               act.Type,
		Severity:           act.Severity,
		Title:              titleFor(act.Type),
		Description:        act.Description,
		Evidence:           evidence,
		RecommendedActions: RecommendedActions(act.Type, act.Severity),
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Acknowledge transitions a pending alert to acknowledged. Re-acknowledging
// an already acknowledged alert is rejected so the audit trail stays strict.
func (a *MonitoringAlert) Acknowledge(actorID uuid.UUID, at time.Time) error {
	if actorID == uuid.Nil {
		return fmt.Errorf("actor id cannot be nil")
	}
	if a.Status != StatusPending {
		return fmt.Errorf("alert %s cannot be acknowledged from status %s", a.ID, a.Status)
	}

	a.Status = StatusAcknowledged
	actor := actorID
	a.AcknowledgedBy = &actor
	ts := at.UTC()
	a.AcknowledgedAt = &ts
	a.UpdatedAt = ts
	return nil
}

// Advance moves the alert one step forward in its lifecycle.
func (a *MonitoringAlert) Advance(target Status, actorID uuid.UUID, at time.Time) error {
	if actorID == uuid.Nil {
		return fmt.Errorf("actor id cannot be nil")
	}
	if !a.Status.CanTransitionTo(target) {
		return fmt.Errorf("invalid alert transition %s -> %s", a.Status, target)
	}
	if target == StatusAcknowledged {
		return a.Acknowledge(actorID, at)
	}

	a.Status = target
	a.UpdatedAt = at.UTC()
	return nil
}

func titleFor(typ activity.Type) string {
	switch typ {
	case activity.TypeRapidSubmissions:
		return "Rapid submission burst detected"
	case activity.TypeDuplicateDocuments:
		return "Duplicate document shared across applicants"
	case activity.TypeFailedVerifications:
		return "Repeated verification failures"
	case activity.TypeSuspiciousIP:
		return "Suspicious network activity"
	case activity.TypeBehavioralAnomaly:
		return "Behavioral anomaly detected"
	default:
		return "Suspicious activity detected"
	}
}

// RecommendedActions derives the operator guidance for an alert from a fixed
// per-type table plus severity-based additions.
func RecommendedActions(typ activity.Type, severity activity.Severity) []string {
	var actions []string

	switch typ {
	case activity.TypeRapidSubmissions:
		actions = append(actions, "Review recent submissions for automation", "Verify applicant identity")
	case activity.TypeDuplicateDocuments:
		actions = append(actions, "Compare flagged documents manually", "Contact affected applicants")
	case activity.TypeFailedVerifications:
		actions = append(actions, "Request alternative documentation", "Review verification provider results")
	case activity.TypeSuspiciousIP:
		actions = append(actions, "Review session origin and device history", "Require re-authentication")
	case activity.TypeBehavioralAnomaly:
		actions = append(actions, "Compare session against applicant baseline", "Schedule manual review")
	}

	switch severity {
	case activity.SeverityCritical:
		actions = append(actions, "Escalate immediately", "Consider account suspension")
	case activity.SeverityHigh:
		actions = append(actions, "Prioritize investigation", "Enable enhanced monitoring")
	}

	return actions
}
