package activity

import "time"

// EvidenceKind tags the payload carried by an evidence item
type EvidenceKind string

const (
	EvidenceSystemLog        EvidenceKind = "system_log"
	EvidenceUserAction       EvidenceKind = "user_action"
	EvidenceDocumentAnalysis EvidenceKind = "document_analysis"
	EvidenceNetworkData      EvidenceKind = "network_data"
	EvidenceBehavioralData   EvidenceKind = "behavioral_data"
)

// Evidence is a typed observation supporting a detection. Exactly one
// payload field matching Kind is set.
type Evidence struct {
	Kind        EvidenceKind `json:"kind"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
	Confidence  float64      `json:"confidence"` // 0.0-1.0

	SystemLog        *SystemLogData        `json:"system_log,omitempty"`
	UserAction       *UserActionData       `json:"user_action,omitempty"`
	DocumentAnalysis *DocumentAnalysisData `json:"document_analysis,omitempty"`
	Network          *NetworkEvidenceData  `json:"network,omitempty"`
	Behavioral       *BehavioralData       `json:"behavioral,omitempty"`
}

// SystemLogData captures an aggregate observation from stored records
type SystemLogData struct {
	Query  string  `json:"query"`
	Count  int     `json:"count"`
	Window string  `json:"window"`
	Value  float64 `json:"value,omitempty"`
}

// UserActionData captures a single user-visible action
type UserActionData struct {
	Action     string `json:"action"`
	OccurredAt string `json:"occurred_at"`
}

// DocumentAnalysisData captures shared document fingerprints
type DocumentAnalysisData struct {
	ContentKey   string `json:"content_key"`
	SubjectCount int    `json:"subject_count"`
}

// NetworkEvidenceData captures the indicators a network sample tripped
type NetworkEvidenceData struct {
	IP                 string  `json:"ip"`
	Location           string  `json:"location"`
	ProxyOrVPN         bool    `json:"proxy_or_vpn"`
	IPRiskScore        float64 `json:"ip_risk_score"`
	ConcurrentSessions int     `json:"concurrent_sessions"`
	LocationMismatch   bool    `json:"location_mismatch"`
}

// BehavioralData captures per-feature deviation from the baseline
type BehavioralData struct {
	Feature      string  `json:"feature"`
	Current      float64 `json:"current"`
	BaselineMean float64 `json:"baseline_mean"`
	Deviation    float64 `json:"deviation"`
}

// NewEvidence builds an evidence item stamped with the current time and a
// clamped confidence.
func NewEvidence(kind EvidenceKind, description string, confidence float64) Evidence {
	return Evidence{
		Kind:        kind,
		Description: description,
		Timestamp:   time.Now().UTC(),
		Confidence:  ClampScore(confidence),
	}
}
