package streams

import (
	"encoding/json"
	"fmt"
)

// Event types carried by the audit stream.
const (
	EventTypeAuditRequested = "audit.requested"
	EventTypeAuditCompleted = "audit.completed"
)

// PayloadVersionV1 is the only payload version in circulation.
const PayloadVersionV1 = "v1"

// RequestStream derives the audit.requested stream name from the configured
// stream prefix.
func RequestStream(prefix string) string { return prefix + ".requested" }

// CompletedStream derives the audit.completed stream name from the configured
// stream prefix.
func CompletedStream(prefix string) string { return prefix + ".completed" }

// AuditRequested asks the worker to run a queued audit job.
type AuditRequested struct {
	JobID string `json:"job_id"`
}

func (p AuditRequested) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	return nil
}

// AuditCompleted announces the report issued for a finished job.
type AuditCompleted struct {
	JobID    string `json:"job_id"`
	ReportID string `json:"report_id"`
	Approved bool   `json:"approved"`
}

func (p AuditCompleted) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if p.ReportID == "" {
		return fmt.Errorf("report_id is required")
	}
	return nil
}

// DecodeAuditRequested unpacks and validates an audit.requested payload.
func DecodeAuditRequested(env Envelope) (AuditRequested, error) {
	var p AuditRequested
	if env.EventType != EventTypeAuditRequested {
		return p, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// DecodeAuditCompleted unpacks and validates an audit.completed payload.
func DecodeAuditCompleted(env Envelope) (AuditCompleted, error) {
	var p AuditCompleted
	if env.EventType != EventTypeAuditCompleted {
		return p, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
