package monitoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/baseline"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/errors"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/event"
)

// velocityKindSubmission is the event kind counted by the rapid-submission
// detector.
const velocityKindSubmission = "submission"

// detectorSet holds the six detection rules. Each detector is a pure
// function of its inputs and returns nil when nothing is suspicious.
type detectorSet struct {
	cfg       Config
	repo      Repository
	velocity  VelocityStore
	baselines *baseline.Store
}

// rapidSubmissions scores a submission count against the configured window.
// Shared by the on-demand path (velocity store counts) and the sweep
// (aggregate storage counts).
func (d *detectorSet) rapidSubmissions(subjectID uuid.UUID, count int) (*activity.SuspiciousActivity, error) {
	if count < d.cfg.RapidThreshold {
		return nil, nil
	}

	score := math.Min(1, float64(count)/float64(d.cfg.RapidThreshold)*0.5)
	severity := activity.SeverityMedium
	if count > 2*d.cfg.RapidThreshold {
		severity = activity.SeverityHigh
	}

	act, err := activity.New(subjectID, activity.TypeRapidSubmissions, severity,
		fmt.Sprintf("%d submissions within %s", count, d.cfg.RapidWindow), score)
	if err != nil {
		return nil, err
	}

	ev := activity.NewEvidence(activity.EvidenceSystemLog,
		fmt.Sprintf("submission count %d over threshold %d", count, d.cfg.RapidThreshold), 0.9)
	ev.SystemLog = &activity.SystemLogData{
		Query:  "submission_count",
		Count:  count,
		Window: d.cfg.RapidWindow.String(),
	}
	act.AttachEvidence(ev)
	return act, nil
}

// checkRapidSubmissions is the on-demand variant backed by the velocity
// store.
func (d *detectorSet) checkRapidSubmissions(ctx context.Context, subjectID uuid.UUID) (*activity.SuspiciousActivity, error) {
	count, err := d.velocity.CountEvents(ctx, subjectID, velocityKindSubmission, d.cfg.RapidWindow)
	if err != nil {
		return nil, errors.NewDetectorError("rapid_submissions", err)
	}
	return d.rapidSubmissions(subjectID, count)
}

// duplicateDocuments emits one High-severity activity per subject sharing
// the content key.
func (d *detectorSet) duplicateDocuments(group DuplicateGroup) ([]*activity.SuspiciousActivity, error) {
	if len(group.SubjectIDs) < d.cfg.DuplicateThreshold {
		return nil, nil
	}

	activities := make([]*activity.SuspiciousActivity, 0, len(group.SubjectIDs))
	for _, subjectID := range group.SubjectIDs {
		act, err := activity.New(subjectID, activity.TypeDuplicateDocuments, activity.SeverityHigh,
			fmt.Sprintf("document shared by %d applicants", len(group.SubjectIDs)), 0.8)
		if err != nil {
			return nil, err
		}

		ev := activity.NewEvidence(activity.EvidenceDocumentAnalysis,
			"identical document content key across applicants", 0.95)
		ev.DocumentAnalysis = &activity.DocumentAnalysisData{
			ContentKey:   group.ContentKey,
			SubjectCount: len(group.SubjectIDs),
		}
		act.AttachEvidence(ev)
		activities = append(activities, act)
	}
	return activities, nil
}

// failedVerifications scores a failed verification count.
func (d *detectorSet) failedVerifications(subjectID uuid.UUID, count int) (*activity.SuspiciousActivity, error) {
	if count < d.cfg.FailedThreshold {
		return nil, nil
	}

	score := math.Min(1, float64(count)/float64(d.cfg.FailedThreshold)*0.6)
	act, err := activity.New(subjectID, activity.TypeFailedVerifications, activity.SeverityMedium,
		fmt.Sprintf("%d failed verifications within %s", count, d.cfg.FailedWindow), score)
	if err != nil {
		return nil, err
	}

	ev := activity.NewEvidence(activity.EvidenceSystemLog,
		fmt.Sprintf("failed verification count %d over threshold %d", count, d.cfg.FailedThreshold), 0.85)
	ev.SystemLog = &activity.SystemLogData{
		Query:  "failed_verification_count",
		Count:  count,
		Window: d.cfg.FailedWindow.String(),
	}
	act.AttachEvidence(ev)
	return act, nil
}

// checkFailedVerifications is the on-demand variant backed by the persisted
// verification history.
func (d *detectorSet) checkFailedVerifications(ctx context.Context, subjectID uuid.UUID) (*activity.SuspiciousActivity, error) {
	since := time.Now().Add(-d.cfg.FailedWindow)
	count, err := d.repo.CountFailedVerifications(ctx, subjectID, since)
	if err != nil {
		return nil, errors.NewDetectorError("failed_verifications", err)
	}
	return d.failedVerifications(subjectID, count)
}

// checkNetworkAnomaly sums the network risk indicators and emits when the
// total clears the configured threshold.
func (d *detectorSet) checkNetworkAnomaly(ctx context.Context, subjectID uuid.UUID, net *event.NetworkAnalysis) (*activity.SuspiciousActivity, error) {
	var risk float64
	fired := false

	if net.IsProxy || net.IsVPN {
		risk += 0.3
		fired = true
	}
	if net.IPRiskScore > 0.7 {
		risk += 0.4
		fired = true
	}
	if net.ConcurrentSessions > 3 {
		risk += 0.2
		fired = true
	}

	consistent, err := d.locationConsistent(ctx, subjectID, net.Location)
	if err != nil {
		return nil, errors.NewDetectorError("network_anomaly", err)
	}
	if !consistent {
		risk += 0.3
		fired = true
	}

	if !fired || risk < d.cfg.NetworkThreshold {
		return nil, nil
	}

	score := activity.ClampScore(risk)
	// Summed indicators top out at High; blocking needs behavioral
	// corroboration.
	severity := activity.SeverityMedium
	if score > d.cfg.SeverityBands.High {
		severity = activity.SeverityHigh
	}

	act, err := activity.New(subjectID, activity.TypeSuspiciousIP, severity,
		fmt.Sprintf("suspicious network activity from %s", net.IP), score)
	if err != nil {
		return nil, err
	}

	ev := activity.NewEvidence(activity.EvidenceNetworkData, "network risk indicators", 0.85)
	ev.Network = &activity.NetworkEvidenceData{
		IP:                 net.IP,
		Location:           net.Location,
		ProxyOrVPN:         net.IsProxy || net.IsVPN,
		IPRiskScore:        net.IPRiskScore,
		ConcurrentSessions: net.ConcurrentSessions,
		LocationMismatch:   !consistent,
	}
	act.AttachEvidence(ev)
	return act, nil
}

// locationConsistent holds when the subject has at most two distinct recent
// locations, or the current location is already among them.
func (d *detectorSet) locationConsistent(ctx context.Context, subjectID uuid.UUID, current string) (bool, error) {
	if current == "" {
		return true, nil
	}
	locations, err := d.velocity.RecentLocations(ctx, subjectID, d.cfg.LocationWindow)
	if err != nil {
		return false, err
	}
	if len(locations) <= 2 {
		return true, nil
	}
	for _, loc := range locations {
		if loc == current {
			return true, nil
		}
	}
	return false, nil
}

// featureObservation is one behavioral feature compared to its baseline.
type featureObservation struct {
	feature baseline.SampleKind
	current float64
	mean    float64
}

// behavioralAnomaly averages per-feature relative deviations and emits when
// the score clears the threshold, with severity taken from the configured
// bands. An empty observation set is a no-op: a first-ever session cannot
// be flagged.
func (d *detectorSet) behavioralAnomaly(subjectID uuid.UUID, obs []featureObservation) (*activity.SuspiciousActivity, error) {
	if len(obs) == 0 {
		return nil, nil
	}

	var total float64
	deviations := make([]activity.BehavioralData, 0, len(obs))
	for _, o := range obs {
		var dev float64
		switch {
		case o.mean == 0 && o.current == 0:
			dev = 0
		case o.mean == 0:
			dev = 1
		default:
			dev = activity.ClampScore(math.Abs(o.current-o.mean) / o.mean)
		}
		total += dev
		deviations = append(deviations, activity.BehavioralData{
			Feature:      string(o.feature),
			Current:      o.current,
			BaselineMean: o.mean,
			Deviation:    dev,
		})
	}

	score := total / float64(len(obs))
	if score < d.cfg.BehavioralThreshold {
		return nil, nil
	}

	// An emitted anomaly is never below Medium even when the configured
	// bands would place the score lower.
	severity := d.cfg.SeverityBands.ForScore(score)
	if severity == activity.SeverityLow {
		severity = activity.SeverityMedium
	}

	act, err := activity.New(subjectID, activity.TypeBehavioralAnomaly, severity,
		fmt.Sprintf("behavior deviates %.0f%% from baseline", score*100), score)
	if err != nil {
		return nil, err
	}

	for i := range deviations {
		ev := activity.NewEvidence(activity.EvidenceBehavioralData,
			fmt.Sprintf("%s deviation %.2f", deviations[i].Feature, deviations[i].Deviation), 0.8)
		ev.Behavioral = &deviations[i]
		act.AttachEvidence(ev)
	}
	return act, nil
}

// observeSample compares an incoming sample against a pre-update baseline
// snapshot, skipping features with no history.
func observeSample(snap *baseline.Baseline, sample *event.BehavioralSample) []featureObservation {
	if snap == nil {
		return nil
	}

	var obs []featureObservation
	currents := map[baseline.SampleKind]float64{
		baseline.SampleSessionDuration: sample.SessionDurationSeconds,
		baseline.SampleTypingInterval:  sample.TypingIntervalMs,
		baseline.SampleClickDuration:   sample.ClickDurationMs,
	}
	for _, kind := range baseline.Kinds() {
		if mean, ok := snap.Mean(kind); ok {
			obs = append(obs, featureObservation{feature: kind, current: currents[kind], mean: mean})
		}
	}
	return obs
}

// observeTrailing builds observations for the sweep path: the newest stored
// sample per feature against the mean of its predecessors.
func observeTrailing(snap *baseline.Baseline) []featureObservation {
	if snap == nil {
		return nil
	}

	var obs []featureObservation
	for _, kind := range baseline.Kinds() {
		if current, mean, ok := snap.TrailingMean(kind); ok {
			obs = append(obs, featureObservation{feature: kind, current: current, mean: mean})
		}
	}
	return obs
}

// recordSubmission tracks a submission in the velocity store for windowed
// counting. Failures here degrade detection but never fail ingestion.
func (d *detectorSet) recordSubmission(ctx context.Context, subjectID uuid.UUID, at time.Time) error {
	return d.velocity.RecordEvent(ctx, subjectID, velocityKindSubmission, at)
}
