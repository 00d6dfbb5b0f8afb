package server

import (
	"encoding/json"
	"time"

	"github.com/NicholasJacob1990/iudex0-sub003/internal/search"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// CreateAuditRequest represents a new audit submission. When Wait is set, or
// the queue is disabled, the audit runs synchronously and the report is
// returned in the response body.
type CreateAuditRequest struct {
	DocumentName  string `json:"document_name"`
	RawText       string `json:"raw_text"`
	FormattedText string `json:"formatted_text"`
	Mode          string `json:"mode,omitempty"`
	Wait          bool   `json:"wait,omitempty"`
}

// AuditAcceptedResponse acknowledges an enqueued audit job.
type AuditAcceptedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// AuditReportResponse wraps a stored report with its identity.
type AuditReportResponse struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Report    json.RawMessage `json:"report"`
}

// ReportSummary is one row of the report listing, without the full payload.
type ReportSummary struct {
	ID             string    `json:"id"`
	DocumentName   string    `json:"document_name"`
	Mode           string    `json:"mode"`
	Approved       bool      `json:"approved"`
	Score          float64   `json:"score"`
	Severity       string    `json:"severity"`
	RetentionRatio float64   `json:"retention_ratio"`
	ChunkCount     int       `json:"chunk_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReportListResponse is a page of report summaries.
type ReportListResponse struct {
	Reports []ReportSummary `json:"reports"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// FindingSearchResponse carries full-text hits over indexed findings.
type FindingSearchResponse struct {
	Query string       `json:"query"`
	Hits  []search.Hit `json:"hits"`
}

// QueueStatusResponse reports consumer-group backlog for the audit stream.
type QueueStatusResponse struct {
	Stream       string `json:"stream"`
	Group        string `json:"group"`
	Pending      int64  `json:"pending"`
	Lag          int64  `json:"lag"`
	Consumers    int64  `json:"consumers"`
	OldestIdleMS int64  `json:"oldest_idle_ms"`
}

// JobResponse reports the state of an audit job.
type JobResponse struct {
	JobID        string     `json:"job_id"`
	DocumentName string     `json:"document_name"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	ReportID     *string    `json:"report_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
