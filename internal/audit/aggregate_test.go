package audit

import (
	"math"
	"testing"
)

func TestAggregateWeightedScore(t *testing.T) {
	t.Parallel()

	partials := []PartialResult{
		{ChunkIndex: 0, Approved: true, Score: 10, Severity: SeverityLow, RawWordCount: 100},
		{ChunkIndex: 1, Approved: true, Score: 6, Severity: SeverityLow, RawWordCount: 300},
	}
	draft := aggregateResults(partials)
	if math.Abs(draft.Score-7.0) > 1e-9 {
		t.Fatalf("expected weighted score 7.0, got %.4f", draft.Score)
	}
	if !draft.Approved {
		t.Fatalf("all chunks approved, draft should be approved")
	}
}

func TestAggregateApprovalIsAND(t *testing.T) {
	t.Parallel()

	partials := []PartialResult{
		{Approved: true, Score: 9, Severity: SeverityLow, RawWordCount: 10},
		{Approved: false, Score: 4, Severity: SeverityHigh, RawWordCount: 10},
		{Approved: true, Score: 9, Severity: SeverityMedium, RawWordCount: 10},
	}
	draft := aggregateResults(partials)
	if draft.Approved {
		t.Fatalf("one failing chunk must fail the draft")
	}
	if draft.Severity != SeverityHigh {
		t.Fatalf("severity should be the max across chunks, got %s", draft.Severity)
	}
}

func TestAggregateMergesFindingsAndPause(t *testing.T) {
	t.Parallel()

	partials := []PartialResult{
		{
			Approved: true, Score: 9, RawWordCount: 10,
			Findings:     FindingSet{Omissions: []Finding{{Kind: KindOmission, SourceChunk: 0}}},
			Observations: "primeiro trecho ok",
		},
		{
			Approved: false, Score: 3, Severity: SeverityCritical, RawWordCount: 10,
			Findings:       FindingSet{Omissions: []Finding{{Kind: KindOmission, SourceChunk: 1}}, Hallucinations: []Finding{{Kind: KindHallucination, SourceChunk: 1}}},
			PauseRequested: true,
			PauseReason:    "omissão crítica",
			CriticalAreas:  []string{"fundamentação", "dispositivo"},
		},
		{
			Approved: true, Score: 8, RawWordCount: 10,
			PauseRequested: true,
			PauseReason:    "verificar citações",
			CriticalAreas:  []string{"dispositivo"},
		},
	}
	draft := aggregateResults(partials)

	if got := draft.Findings.Total(); got != 3 {
		t.Fatalf("expected 3 merged findings, got %d", got)
	}
	if len(draft.Findings.Omissions) != 2 {
		t.Fatalf("expected omissions concatenated in chunk order")
	}
	if draft.Findings.Omissions[0].SourceChunk != 0 || draft.Findings.Omissions[1].SourceChunk != 1 {
		t.Fatalf("chunk order not preserved: %+v", draft.Findings.Omissions)
	}
	if !draft.Pause.Requested {
		t.Fatalf("any pausing chunk must pause the draft")
	}
	if draft.Pause.Reason != "omissão crítica; verificar citações" {
		t.Fatalf("unexpected joined reason %q", draft.Pause.Reason)
	}
	if len(draft.Pause.CriticalAreas) != 2 {
		t.Fatalf("critical areas should be deduplicated, got %v", draft.Pause.CriticalAreas)
	}
	if len(draft.Observations) != 1 {
		t.Fatalf("expected one observation, got %v", draft.Observations)
	}
}

func TestAggregateZeroWeightFallsBackToPlainMean(t *testing.T) {
	t.Parallel()

	partials := []PartialResult{
		{Approved: true, Score: 8},
		{Approved: true, Score: 4},
	}
	draft := aggregateResults(partials)
	if math.Abs(draft.Score-6.0) > 1e-9 {
		t.Fatalf("expected plain mean 6.0, got %.4f", draft.Score)
	}
}
