package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/activity"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/alert"
	"github.com/harborgate/intake-monitoring-backend/internal/domain/errors"
	"github.com/harborgate/intake-monitoring-backend/internal/service/monitoring"
)

// MonitoringRepository implements monitoring.Repository on PostgreSQL.
// Evidence and recommended actions are stored as JSONB alongside their
// parent rows.
type MonitoringRepository struct {
	pool *pgxpool.Pool
}

// NewMonitoringRepository creates the repository.
func NewMonitoringRepository(pool *pgxpool.Pool) *MonitoringRepository {
	return &MonitoringRepository{pool: pool}
}

// NewPool creates a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, url string, maxConns int, maxLifetime time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	if maxLifetime > 0 {
		cfg.MaxConnLifetime = maxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// SaveActivityWithAlert persists the activity and, when al is non-nil, its
// alert in one transaction so a detection can never surface an alert whose
// backing activity was lost.
func (r *MonitoringRepository) SaveActivityWithAlert(ctx context.Context, act *activity.SuspiciousActivity, al *alert.MonitoringAlert) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertActivity(ctx, tx, act); err != nil {
		return err
	}
	if al != nil {
		if err := insertAlert(ctx, tx, al); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertActivity(ctx context.Context, tx pgx.Tx, act *activity.SuspiciousActivity) error {
	evidenceJSON, err := json.Marshal(act.Evidence)
	if err != nil {
		return fmt.Errorf("marshaling evidence: %w", err)
	}
	metadataJSON, err := json.Marshal(act.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	query := `
		INSERT INTO suspicious_activities (
			id, subject_id, type, severity, description,
			evidence, risk_score, status, investigator_id, resolution,
			metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)
	`
	_, err = tx.Exec(ctx, query,
		act.ID, act.SubjectID, act.Type, act.Severity, act.Description,
		evidenceJSON, act.RiskScore, act.Status, act.InvestigatorID, act.Resolution,
		metadataJSON, act.CreatedAt, act.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting suspicious activity: %w", err)
	}
	return nil
}

func insertAlert(ctx context.Context, tx pgx.Tx, al *alert.MonitoringAlert) error {
	evidenceJSON, err := json.Marshal(al.Evidence)
	if err != nil {
		return fmt.Errorf("marshaling evidence: %w", err)
	}
	actionsJSON, err := json.Marshal(al.RecommendedActions)
	if err != nil {
		return fmt.Errorf("marshaling recommended actions: %w", err)
	}

	query := `
		INSERT INTO monitoring_alerts (
			id, activity_id, subject_id, type, severity,
			title, description, evidence, recommended_actions, status,
			acknowledged_by, acknowledged_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14
		)
	`
	_, err = tx.Exec(ctx, query,
		al.ID, al.ActivityID, al.SubjectID, al.Type, al.Severity,
		al.Title, al.Description, evidenceJSON, actionsJSON, al.Status,
		al.AcknowledgedBy, al.AcknowledgedAt, al.CreatedAt, al.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting monitoring alert: %w", err)
	}
	return nil
}

// SaveVerification records one document verification attempt.
func (r *MonitoringRepository) SaveVerification(ctx context.Context, rec monitoring.VerificationRecord) error {
	query := `
		INSERT INTO verification_records (subject_id, content_key, is_authentic, verified_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, rec.SubjectID, rec.ContentKey, rec.IsAuthentic, rec.VerifiedAt)
	if err != nil {
		return fmt.Errorf("inserting verification record: %w", err)
	}
	return nil
}

// CountFailedVerifications counts failed attempts for a subject since the
// cutoff.
func (r *MonitoringRepository) CountFailedVerifications(ctx context.Context, subjectID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM verification_records
		WHERE subject_id = $1 AND NOT is_authentic AND verified_at >= $2
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, subjectID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting failed verifications: %w", err)
	}
	return count, nil
}

// SubjectsOverSubmissionRate lists subjects with at least threshold
// submissions since the cutoff.
func (r *MonitoringRepository) SubjectsOverSubmissionRate(ctx context.Context, since time.Time, threshold int) ([]monitoring.SubjectCount, error) {
	query := `
		SELECT subject_id, COUNT(*)
		FROM verification_records
		WHERE verified_at >= $1
		GROUP BY subject_id
		HAVING COUNT(*) >= $2
		ORDER BY COUNT(*) DESC
	`
	return r.querySubjectCounts(ctx, query, since, threshold)
}

// SubjectsOverFailureRate lists subjects with at least threshold failed
// verifications since the cutoff.
func (r *MonitoringRepository) SubjectsOverFailureRate(ctx context.Context, since time.Time, threshold int) ([]monitoring.SubjectCount, error) {
	query := `
		SELECT subject_id, COUNT(*)
		FROM verification_records
		WHERE verified_at >= $1 AND NOT is_authentic
		GROUP BY subject_id
		HAVING COUNT(*) >= $2
		ORDER BY COUNT(*) DESC
	`
	return r.querySubjectCounts(ctx, query, since, threshold)
}

func (r *MonitoringRepository) querySubjectCounts(ctx context.Context, query string, since time.Time, threshold int) ([]monitoring.SubjectCount, error) {
	rows, err := r.pool.Query(ctx, query, since, threshold)
	if err != nil {
		return nil, fmt.Errorf("querying subject counts: %w", err)
	}
	defer rows.Close()

	var counts []monitoring.SubjectCount
	for rows.Next() {
		var sc monitoring.SubjectCount
		if err := rows.Scan(&sc.SubjectID, &sc.Count); err != nil {
			return nil, fmt.Errorf("scanning subject count: %w", err)
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}

// DuplicateContentKeys lists content keys shared by at least minSubjects
// distinct subjects since the cutoff.
func (r *MonitoringRepository) DuplicateContentKeys(ctx context.Context, since time.Time, minSubjects int) ([]monitoring.DuplicateGroup, error) {
	query := `
		SELECT content_key, ARRAY_AGG(DISTINCT subject_id)
		FROM verification_records
		WHERE verified_at >= $1
		GROUP BY content_key
		HAVING COUNT(DISTINCT subject_id) >= $2
	`
	rows, err := r.pool.Query(ctx, query, since, minSubjects)
	if err != nil {
		return nil, fmt.Errorf("querying duplicate content keys: %w", err)
	}
	defer rows.Close()

	var groups []monitoring.DuplicateGroup
	for rows.Next() {
		var g monitoring.DuplicateGroup
		if err := rows.Scan(&g.ContentKey, &g.SubjectIDs); err != nil {
			return nil, fmt.Errorf("scanning duplicate group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListActivities returns a subject's activities, newest first.
func (r *MonitoringRepository) ListActivities(ctx context.Context, subjectID uuid.UUID) ([]*activity.SuspiciousActivity, error) {
	query := `
		SELECT id, subject_id, type, severity, description,
		       evidence, risk_score, status, investigator_id, resolution,
		       metadata, created_at, updated_at
		FROM suspicious_activities
		WHERE subject_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	var activities []*activity.SuspiciousActivity
	for rows.Next() {
		act, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, act)
	}
	return activities, rows.Err()
}

func scanActivity(rows pgx.Rows) (*activity.SuspiciousActivity, error) {
	var act activity.SuspiciousActivity
	var evidenceJSON, metadataJSON []byte

	err := rows.Scan(
		&act.ID, &act.SubjectID, &act.Type, &act.Severity, &act.Description,
		&evidenceJSON, &act.RiskScore, &act.Status, &act.InvestigatorID, &act.Resolution,
		&metadataJSON, &act.CreatedAt, &act.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning activity: %w", err)
	}

	if err := json.Unmarshal(evidenceJSON, &act.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &act.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return &act, nil
}

const alertColumns = `
	id, activity_id, subject_id, type, severity,
	title, description, evidence, recommended_actions, status,
	acknowledged_by, acknowledged_at, created_at, updated_at
`

// ListAlerts returns alerts newest first, optionally filtered by status.
func (r *MonitoringRepository) ListAlerts(ctx context.Context, status *alert.Status) ([]*alert.MonitoringAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM monitoring_alerts`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*alert.MonitoringAlert
	for rows.Next() {
		al, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, al)
	}
	return alerts, rows.Err()
}

// GetAlert fetches one alert.
func (r *MonitoringRepository) GetAlert(ctx context.Context, id uuid.UUID) (*alert.MonitoringAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM monitoring_alerts WHERE id = $1`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying alert: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying alert: %w", err)
		}
		return nil, errors.ErrAlertNotFound
	}
	return scanAlert(rows)
}

func scanAlert(rows pgx.Rows) (*alert.MonitoringAlert, error) {
	var al alert.MonitoringAlert
	var evidenceJSON, actionsJSON []byte

	err := rows.Scan(
		&al.ID, &al.ActivityID, &al.SubjectID, &al.Type, &al.Severity,
		&al.Title, &al.Description, &evidenceJSON, &actionsJSON, &al.Status,
		&al.AcknowledgedBy, &al.AcknowledgedAt, &al.CreatedAt, &al.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning alert: %w", err)
	}

	if err := json.Unmarshal(evidenceJSON, &al.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &al.RecommendedActions); err != nil {
		return nil, fmt.Errorf("unmarshaling recommended actions: %w", err)
	}
	return &al, nil
}

// TransitionAlert advances an alert with an expected-status guard: the update
// applies only when the stored status still equals from, so two concurrent
// acknowledgers cannot both win.
func (r *MonitoringRepository) TransitionAlert(ctx context.Context, id uuid.UUID, from, to alert.Status, actorID uuid.UUID, at time.Time) (*alert.MonitoringAlert, error) {
	query := `
		UPDATE monitoring_alerts
		SET status = $1,
		    acknowledged_by = CASE WHEN $1 = 'acknowledged' THEN $2 ELSE acknowledged_by END,
		    acknowledged_at = CASE WHEN $1 = 'acknowledged' THEN $3 ELSE acknowledged_at END,
		    updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING ` + alertColumns

	rows, err := r.pool.Query(ctx, query, to, actorID, at, id, from)
	if err != nil {
		return nil, fmt.Errorf("transitioning alert: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		return scanAlert(rows)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transitioning alert: %w", err)
	}
	rows.Close()

	// No row matched: distinguish a missing alert from a status conflict.
	var current alert.Status
	err = r.pool.QueryRow(ctx, `SELECT status FROM monitoring_alerts WHERE id = $1`, id).Scan(&current)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking alert status: %w", err)
	}
	return nil, errors.NewConflictError(
		fmt.Sprintf("alert %s is %s, expected %s", id, current, from))
}
