package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Store wraps the Postgres pool shared by the API, the worker and the
// retention sweeper. Schema changes live under migrations/ and are applied
// by internal/server.Migrate.
type Store struct {
	DB *sql.DB
}

// Job statuses persisted for queued audits.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

var (
	metricsOnce    sync.Once
	reportCounter  otelmetric.Int64Counter
	purgeCounter   otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	var err error
	reportCounter, err = meter.Int64Counter("audit_reports_saved_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	purgeCounter, err = meter.Int64Counter("audit_reports_purged_total")
	if err != nil {
		metricsInitErr = err
	}
}

// NewWithDSN opens a Postgres pool with the given DSN and verifies
// connectivity before returning.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Job operations

// JobRecord is one queued audit. RawText and FormattedText are only
// populated by GetJob; list queries skip them because documents can run to
// hundreds of kilobytes.
type JobRecord struct {
	ID            string
	UserID        string
	DocumentName  string
	Mode          string
	RawText       string
	FormattedText string
	Status        string
	Error         *string
	ReportID      *string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

func (s *Store) CreateJob(ctx context.Context, userID, documentName, mode, rawText, formattedText string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO audit_jobs (user_id, document_name, mode, raw_text, formatted_text, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		userID, documentName, mode, rawText, formattedText, JobStatusQueued).Scan(&id)
	return id, err
}

func (s *Store) GetJob(ctx context.Context, id string) (JobRecord, bool, error) {
	var j JobRecord
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, document_name, mode, raw_text, formatted_text, status, error, report_id, created_at, started_at, finished_at
FROM audit_jobs WHERE id=$1`, id).
		Scan(&j.ID, &j.UserID, &j.DocumentName, &j.Mode, &j.RawText, &j.FormattedText,
			&j.Status, &j.Error, &j.ReportID, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err == sql.ErrNoRows {
		return JobRecord{}, false, nil
	}
	if err != nil {
		return JobRecord{}, false, err
	}
	return j, true, nil
}

// ClaimJob flips a queued job to running and stamps started_at. It returns
// false when the job is missing or was already claimed, so a redelivered
// stream entry cannot run the same audit twice.
func (s *Store) ClaimJob(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("job id must be provided")
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE audit_jobs SET status=$2, started_at=NOW() WHERE id=$1 AND status=$3`,
		id, JobStatusRunning, JobStatusQueued)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) FinishJob(ctx context.Context, id string, status string, errMsg *string, reportID *string) error {
	if id == "" {
		return fmt.Errorf("job id must be provided")
	}
	_, err := s.DB.ExecContext(ctx, `UPDATE audit_jobs SET status=$2, error=$3, report_id=$4, finished_at=NOW() WHERE id=$1`,
		id, status, errMsg, reportID)
	return err
}

// ListJobsByStatus returns jobs in any of the given statuses, oldest first,
// without the document texts. The worker uses it at startup to report
// backlog left over from a previous run.
func (s *Store) ListJobsByStatus(ctx context.Context, statuses ...string) ([]JobRecord, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("at least one status must be provided")
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, document_name, mode, status, created_at
FROM audit_jobs WHERE status = ANY($1) ORDER BY created_at`, pq.Array(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRecord
	for rows.Next() {
		var j JobRecord
		if err := rows.Scan(&j.ID, &j.UserID, &j.DocumentName, &j.Mode, &j.Status, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Report operations

// ReportRecord is one issued fidelity report. Report holds the full JSON
// document; list queries leave it nil.
type ReportRecord struct {
	ID             string
	UserID         string
	DocumentName   string
	Mode           string
	Approved       bool
	Score          float64
	Severity       string
	RetentionRatio float64
	ChunkCount     int
	Report         []byte
	CreatedAt      time.Time
}

func (s *Store) SaveReport(ctx context.Context, rec ReportRecord) (string, error) {
	if len(rec.Report) == 0 {
		return "", fmt.Errorf("report payload must be provided")
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO audit_reports (user_id, document_name, mode, approved, score, severity, retention_ratio, chunk_count, report)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		rec.UserID, rec.DocumentName, rec.Mode, rec.Approved, rec.Score, rec.Severity,
		rec.RetentionRatio, rec.ChunkCount, rec.Report).Scan(&id)
	if err != nil {
		return "", err
	}
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil && reportCounter != nil {
		reportCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("mode", rec.Mode),
			attribute.Bool("approved", rec.Approved),
		))
	}
	return id, nil
}

func (s *Store) GetReport(ctx context.Context, id, userID string) (ReportRecord, bool, error) {
	var r ReportRecord
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, document_name, mode, approved, score, severity, retention_ratio, chunk_count, report, created_at
FROM audit_reports WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&r.ID, &r.UserID, &r.DocumentName, &r.Mode, &r.Approved, &r.Score, &r.Severity,
			&r.RetentionRatio, &r.ChunkCount, &r.Report, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return ReportRecord{}, false, nil
	}
	if err != nil {
		return ReportRecord{}, false, err
	}
	return r, true, nil
}

// ListReports returns a user's reports newest first, without the JSON
// payload. Limit is clamped to [1,200] with a default of 50.
func (s *Store) ListReports(ctx context.Context, userID string, limit, offset int) ([]ReportRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, document_name, mode, approved, score, severity, retention_ratio, chunk_count, created_at
FROM audit_reports WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReportRecord
	for rows.Next() {
		var r ReportRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.DocumentName, &r.Mode, &r.Approved, &r.Score,
			&r.Severity, &r.RetentionRatio, &r.ChunkCount, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRecentReports returns the newest reports across all users including
// the JSON payload. The search index rebuilds from it at startup.
func (s *Store) ListRecentReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, document_name, mode, approved, score, severity, retention_ratio, chunk_count, report, created_at
FROM audit_reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReportRecord
	for rows.Next() {
		var r ReportRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.DocumentName, &r.Mode, &r.Approved, &r.Score,
			&r.Severity, &r.RetentionRatio, &r.ChunkCount, &r.Report, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeReportsBefore deletes reports older than the cutoff and returns the
// deleted ids so callers can drop them from the search index.
func (s *Store) PurgeReportsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	if cutoff.IsZero() {
		return nil, fmt.Errorf("cutoff must be provided")
	}
	rows, err := s.DB.QueryContext(ctx, `DELETE FROM audit_reports WHERE created_at < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		metricsOnce.Do(initStoreMetrics)
		if metricsInitErr == nil && purgeCounter != nil {
			purgeCounter.Add(ctx, int64(len(ids)))
		}
	}
	return ids, nil
}

// Event idempotency

// ClaimEvent records a stream event id and reports whether this call was
// the first to see it. Redeliveries return false and must be acked without
// reprocessing.
func (s *Store) ClaimEvent(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("event id must be provided")
	}
	var inserted bool
	err := s.DB.QueryRowContext(ctx, `INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT DO NOTHING RETURNING true`, eventID).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inserted, nil
}
