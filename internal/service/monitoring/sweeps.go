package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/errors"
)

// Sweeps are the batch variants of the detectors: each enumerates
// qualifying subjects through an aggregate storage query and feeds the same
// detector/processor path as the on-demand route. Per-subject failures are
// logged and skipped so one bad subject never aborts a sweep.

// SweepRapidSubmissions flags subjects whose submission count inside the
// rapid window reached the threshold.
func (e *Engine) SweepRapidSubmissions(ctx context.Context) error {
	since := time.Now().Add(-e.cfg.RapidWindow)
	counts, err := e.repo.SubjectsOverSubmissionRate(ctx, since, e.cfg.RapidThreshold)
	if err != nil {
		return err
	}

	for _, sc := range counts {
		act := e.runDetector(ctx, "rapid_submissions", func() (*activity.SuspiciousActivity, error) {
			return e.detectors.rapidSubmissions(sc.SubjectID, sc.Count)
		})
		e.processSweepDetection(ctx, "rapid_submissions", act)
	}
	return nil
}

// SweepDuplicateDocuments flags every subject sharing a document content
// key with enough other applicants.
func (e *Engine) SweepDuplicateDocuments(ctx context.Context) error {
	since := time.Now().Add(-e.cfg.DuplicateWindow)
	groups, err := e.repo.DuplicateContentKeys(ctx, since, e.cfg.DuplicateThreshold)
	if err != nil {
		return err
	}

	for _, group := range groups {
		acts, err := e.detectors.duplicateDocuments(group)
		if err != nil {
			e.metrics.AddDetectorFailure(ctx, "duplicate_documents")
			e.log.Warn("duplicate-document detector failed",
				zap.String("content_key", group.ContentKey),
				zap.Error(err))
			continue
		}
		for _, act := range acts {
			e.processSweepDetection(ctx, "duplicate_documents", act)
		}
	}
	return nil
}

// SweepFailedVerifications flags subjects over the failed-verification
// threshold inside the trailing window.
func (e *Engine) SweepFailedVerifications(ctx context.Context) error {
	since := time.Now().Add(-e.cfg.FailedWindow)
	counts, err := e.repo.SubjectsOverFailureRate(ctx, since, e.cfg.FailedThreshold)
	if err != nil {
		return err
	}

	for _, sc := range counts {
		act := e.runDetector(ctx, "failed_verifications", func() (*activity.SuspiciousActivity, error) {
			return e.detectors.failedVerifications(sc.SubjectID, sc.Count)
		})
		e.processSweepDetection(ctx, "failed_verifications", act)
	}
	return nil
}

// SweepBehavioral re-scores subjects active since the last behavioral
// sweep, comparing each one's newest sample against its trailing baseline.
func (e *Engine) SweepBehavioral(ctx context.Context) error {
	cutoff := time.Now().Add(-e.cfg.Sweeps.BehavioralInterval)
	for _, subjectID := range e.baselines.ActiveSince(cutoff) {
		snap, ok := e.baselines.Snapshot(subjectID)
		if !ok {
			continue
		}
		act := e.runDetector(ctx, "behavioral_anomaly", func() (*activity.SuspiciousActivity, error) {
			return e.detectors.behavioralAnomaly(subjectID, observeTrailing(snap))
		})
		e.processSweepDetection(ctx, "behavioral_anomaly", act)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// PruneBaselines applies the retention policy for inactive subjects.
func (e *Engine) PruneBaselines(ctx context.Context) error {
	pruned := e.baselines.PruneIdle(e.cfg.Sweeps.BaselineMaxIdle)
	if pruned > 0 {
		e.log.Info("pruned idle baselines", zap.Int("count", pruned))
	}
	return nil
}

// processSweepDetection persists a sweep detection, logging persistence
// failures instead of aborting the sweep.
func (e *Engine) processSweepDetection(ctx context.Context, job string, act *activity.SuspiciousActivity) {
	if act == nil {
		return
	}
	if err := e.process(ctx, act); err != nil {
		e.log.Error("sweep detection not persisted",
			zap.String("job", job),
			zap.String("subject_id", act.SubjectID.String()),
			zap.Bool("retryable", errors.IsRetryable(err)),
			zap.Error(err))
	}
}

// Jobs returns the engine's scheduled jobs wired to the configured
// intervals, ready to hand to a Scheduler.
func (e *Engine) Jobs() []Job {
	sw := e.cfg.Sweeps
	return []Job{
		{Name: "rapid_submission_sweep", Interval: sw.RapidInterval, Timeout: sw.Timeout, Run: e.SweepRapidSubmissions},
		{Name: "duplicate_document_sweep", Interval: sw.DuplicateInterval, Timeout: sw.Timeout, Run: e.SweepDuplicateDocuments},
		{Name: "failed_verification_sweep", Interval: sw.FailedInterval, Timeout: sw.Timeout, Run: e.SweepFailedVerifications},
		{Name: "behavioral_analysis_sweep", Interval: sw.BehavioralInterval, Timeout: sw.Timeout, Run: e.SweepBehavioral},
		{Name: "baseline_prune", Interval: sw.PruneInterval, Timeout: sw.Timeout, Run: e.PruneBaselines},
	}
}
