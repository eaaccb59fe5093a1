package activity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the detector condition behind a suspicious activity
type Type string

const (
	TypeRapidSubmissions    Type = "rapid_submissions"
	TypeDuplicateDocuments  Type = "duplicate_documents"
	TypeFailedVerifications Type = "failed_verifications"
	TypeSuspiciousIP        Type = "suspicious_ip"
	TypeBehavioralAnomaly   Type = "behavioral_anomaly"
)

// Severity represents how dangerous a detection is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityBands holds the configurable risk score cutoffs for each band.
type SeverityBands struct {
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

// DefaultSeverityBands returns the standard alert-level cutoffs.
func DefaultSeverityBands() SeverityBands {
	return SeverityBands{Low: 0.3, Medium: 0.5, High: 0.7, Critical: 0.9}
}

// ForScore maps a risk score onto a severity band.
func (b SeverityBands) ForScore(score float64) Severity {
	switch {
	case score >= b.Critical:
		return SeverityCritical
	case score >= b.High:
		return SeverityHigh
	case score >= b.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Status is the investigation lifecycle state of an activity
type Status string

const (
	StatusActive        Status = "active"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// CanTransitionTo reports whether moving to the target status is allowed.
// Active and Investigating may flip back and forth; Resolved and
// FalsePositive are terminal.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusActive:
		return target == StatusInvestigating
	case StatusInvestigating:
		return target == StatusActive || target == StatusResolved || target == StatusFalsePositive
	default:
		return false
	}
}

// SuspiciousActivity is a persisted, append-only detection record. It is
// never deleted; investigator actions only transition its status.
type SuspiciousActivity struct {
	ID             uuid.UUID         `json:"id"`
	SubjectID      uuid.UUID         `json:"subject_id"`
	Type           Type              `json:"type"`
	Severity       Severity          `json:"severity"`
	Description    string            `json:"description"`
	Evidence       []Evidence        `json:"evidence"`
	RiskScore      float64           `json:"risk_score"`
	Status         Status            `json:"status"`
	InvestigatorID *uuid.UUID        `json:"investigator_id,omitempty"`
	Resolution     *string           `json:"resolution,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// New creates an active suspicious activity with its risk score clamped to
// [0, 1].
func New(subjectID uuid.UUID, typ Type, severity Severity, description string, riskScore float64) (*SuspiciousActivity, error) {
	if subjectID == uuid.Nil {
		return nil, fmt.Errorf("subject id cannot be nil")
	}

	now := time.Now().UTC()
	return &SuspiciousActivity{
		ID:          uuid.New(),
		SubjectID:   subjectID,
		Type:        typ,
		Severity:    severity,
		Description: description,
		RiskScore:   ClampScore(riskScore),
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ClampScore bounds a risk score to [0, 1].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// AttachEvidence appends an evidence item. Evidence is immutable once
// attached.
func (a *SuspiciousActivity) AttachEvidence(ev Evidence) {
	a.Evidence = append(a.Evidence, ev)
	a.UpdatedAt = time.Now().UTC()
}

// Transition moves the activity to a new status on behalf of an
// investigator. Terminal states reject all transitions.
func (a *SuspiciousActivity) Transition(target Status, investigatorID uuid.UUID, resolution string) error {
	if !a.Status.CanTransitionTo(target) {
		return fmt.Errorf("invalid activity transition %s -> %s", a.Status, target)
	}

	a.Status = target
	a.UpdatedAt = time.Now().UTC()

	if investigatorID != uuid.Nil {
		id := investigatorID
		a.InvestigatorID = &id
	}
	if target == StatusResolved || target == StatusFalsePositive {
		if resolution != "" {
			a.Resolution = &resolution
		}
	}
	return nil
}
