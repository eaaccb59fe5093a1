package event

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/errors"
)

// Kind identifies the payload an activity event carries
type Kind string

const (
	KindBehavioral   Kind = "behavioral"
	KindVerification Kind = "verification"
	KindNetwork      Kind = "network"
)

// ActivityEvent is the ingestion unit produced by collaborators. It is
// consumed once and never persisted as its own entity; exactly one payload
// matching Kind must be set.
type ActivityEvent struct {
	SubjectID  uuid.UUID `validate:"required"`
	Kind       Kind      `validate:"required,oneof=behavioral verification network"`
	OccurredAt time.Time `validate:"required"`

	Behavioral   *BehavioralSample
	Verification *VerificationResult
	Network      *NetworkAnalysis
}

// BehavioralSample is client telemetry for one applicant session.
type BehavioralSample struct {
	SessionDurationSeconds float64 `validate:"gte=0"`
	TypingIntervalMs       float64 `validate:"gte=0"`
	ClickDurationMs        float64 `validate:"gte=0"`
}

// VerificationResult is the outcome of one document verification attempt.
type VerificationResult struct {
	IsAuthentic bool
	ContentKey  string `validate:"required"`
	VerifiedAt  time.Time
}

// NetworkAnalysis describes the session's network posture. Not persisted.
type NetworkAnalysis struct {
	IP                 string  `validate:"required,ip"`
	Location           string
	ISP                string
	IsProxy            bool
	IsVPN              bool
	IPRiskScore        float64 `validate:"gte=0,lte=1"`
	PriorSessions      int     `validate:"gte=0"`
	ConcurrentSessions int     `validate:"gte=0"`
	DeviceFingerprint  string
}

var validate = validator.New()

// Validate rejects malformed events at the recorder boundary.
func (e *ActivityEvent) Validate() error {
	if e.SubjectID == uuid.Nil {
		return errors.ErrMissingSubject
	}
	if err := validate.Struct(e); err != nil {
		return errors.NewValidationError("INVALID_EVENT", "malformed activity event").WithCause(err)
	}

	switch e.Kind {
	case KindBehavioral:
		if e.Behavioral == nil {
			return errors.NewValidationError("MISSING_PAYLOAD", "behavioral event without sample")
		}
	case KindVerification:
		if e.Verification == nil {
			return errors.NewValidationError("MISSING_PAYLOAD", "verification event without result")
		}
	case KindNetwork:
		if e.Network == nil {
			return errors.NewValidationError("MISSING_PAYLOAD", "network event without analysis")
		}
	}
	return nil
}
