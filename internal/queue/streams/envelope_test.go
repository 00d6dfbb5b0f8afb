package streams

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := json.Marshal(AuditRequested{JobID: "job-1"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := Envelope{
		EventID:        "evt-1",
		EventType:      EventTypeAuditRequested,
		PayloadVersion: PayloadVersionV1,
		Data:           payload,
	}

	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	decoded, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if decoded.EventID != "evt-1" || decoded.EventType != EventTypeAuditRequested {
		t.Fatalf("unexpected envelope after round trip: %+v", decoded)
	}
	if decoded.OccurredAt.IsZero() {
		t.Fatal("expected OccurredAt to be stamped during marshal")
	}

	req, err := DecodeAuditRequested(decoded)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if req.JobID != "job-1" {
		t.Fatalf("expected job-1, got %q", req.JobID)
	}
}

func TestEnvelopeValidateBasicRejectsGaps(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"missing event id", Envelope{EventType: EventTypeAuditRequested, PayloadVersion: PayloadVersionV1, Data: []byte(`{}`)}},
		{"missing event type", Envelope{EventID: "e", PayloadVersion: PayloadVersionV1, Data: []byte(`{}`)}},
		{"missing version", Envelope{EventID: "e", EventType: EventTypeAuditRequested, Data: []byte(`{}`)}},
		{"negative attempt", Envelope{EventID: "e", EventType: EventTypeAuditRequested, PayloadVersion: PayloadVersionV1, Attempt: -1, Data: []byte(`{}`)}},
		{"missing data", Envelope{EventID: "e", EventType: EventTypeAuditRequested, PayloadVersion: PayloadVersionV1}},
	}
	for _, tc := range cases {
		if err := tc.env.ValidateBasic(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestDecodeAuditRequestedRejectsWrongType(t *testing.T) {
	env := Envelope{
		EventID:        "evt-2",
		EventType:      EventTypeAuditCompleted,
		OccurredAt:     time.Now().UTC(),
		PayloadVersion: PayloadVersionV1,
		Data:           []byte(`{"job_id":"job-1","report_id":"rep-1","approved":true}`),
	}
	if _, err := DecodeAuditRequested(env); err == nil {
		t.Fatal("expected event type mismatch error")
	}
	completed, err := DecodeAuditCompleted(env)
	if err != nil {
		t.Fatalf("decode completed: %v", err)
	}
	if completed.ReportID != "rep-1" || !completed.Approved {
		t.Fatalf("unexpected completed payload: %+v", completed)
	}
}

func TestDecodeAuditRequestedRejectsEmptyJob(t *testing.T) {
	env := Envelope{
		EventID:        "evt-3",
		EventType:      EventTypeAuditRequested,
		PayloadVersion: PayloadVersionV1,
		Data:           []byte(`{"job_id":""}`),
	}
	if _, err := DecodeAuditRequested(env); err == nil {
		t.Fatal("expected payload validation error")
	}
}
