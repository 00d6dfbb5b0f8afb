package audit

import (
	"strings"
	"testing"
)

const filterRawDoc = `1. Introdução
O Art. 5, XXXVI da CF garante o direito adquirido conforme a Súmula 473 do STF. O perito João da Silva apresentou laudo técnico.
2. Mérito
A Lei 8.112/90 aplica-se ao caso.
3. Conclusão
Pedido procedente.`

const filterFmtDoc = `1. Introdução
O Art. 5, XXXVI da CF garante o direito adquirido. O perito João da Silva apresentou laudo.
2. Mérito
Discussão do mérito.
3. Conclusão
Pedido procedente.`

func TestFilterOmissionTriad(t *testing.T) {
	t.Parallel()

	draft := DraftReport{Findings: FindingSet{Omissions: []Finding{
		// Reference in raw and missing from formatted: survives, confirmed.
		{Kind: KindOmission, RawExcerpt: "conforme a Súmula 473 do STF", Verdict: VerdictSuspect},
		// Reference present in both texts: nothing was omitted.
		{Kind: KindOmission, RawExcerpt: "o Art. 5, XXXVI da CF"},
		// Reference that does not exist in the raw document at all.
		{Kind: KindOmission, RawExcerpt: "a Súmula 331 do TST"},
		// No reference token: left for the judge's judgement.
		{Kind: KindOmission, RawExcerpt: "o laudo técnico apresentado", Verdict: VerdictSuspect},
	}}}

	filtered, stats := NewPostProcessor(20).Filter(draft, filterRawDoc, filterFmtDoc)

	if len(filtered.Findings.Omissions) != 2 {
		t.Fatalf("expected 2 surviving omissions, got %d: %+v", len(filtered.Findings.Omissions), filtered.Findings.Omissions)
	}
	if filtered.Findings.Omissions[0].Verdict != VerdictConfirmed {
		t.Fatalf("grounded missing reference should be confirmed, got %s", filtered.Findings.Omissions[0].Verdict)
	}
	if filtered.Findings.Omissions[1].Verdict != VerdictSuspect {
		t.Fatalf("ungrounded omission should keep its verdict")
	}
	if stats.OmissionDropped != 2 {
		t.Fatalf("expected 2 omissions dropped, got %d", stats.OmissionDropped)
	}
	if stats.OmissionConfirmed != 1 {
		t.Fatalf("expected 1 omission confirmed, got %d", stats.OmissionConfirmed)
	}
}

func TestFilterHallucinations(t *testing.T) {
	t.Parallel()

	draft := DraftReport{Findings: FindingSet{Hallucinations: []Finding{
		// The full name exists in the raw text, so the claim is disproved.
		{Kind: KindHallucination, FormattedExcerpt: "João da Silva apresentou parecer", Confidence: 0.9},
		// Most keywords exist in the raw text: downgraded, not dropped.
		{Kind: KindHallucination, FormattedExcerpt: "o direito adquirido garante proteção", Confidence: 0.8, Verdict: VerdictConfirmed},
		// Nothing of this appears in the raw text: kept untouched.
		{Kind: KindHallucination, FormattedExcerpt: "multa de R$ 50.000 aplicada", Confidence: 0.7, Verdict: VerdictConfirmed},
	}}}

	filtered, stats := NewPostProcessor(20).Filter(draft, filterRawDoc, filterFmtDoc)

	if len(filtered.Findings.Hallucinations) != 2 {
		t.Fatalf("expected 2 surviving hallucinations, got %d", len(filtered.Findings.Hallucinations))
	}
	if stats.HallucinationDropped != 1 {
		t.Fatalf("expected 1 hallucination dropped, got %d", stats.HallucinationDropped)
	}

	downgraded := filtered.Findings.Hallucinations[0]
	if downgraded.Verdict != VerdictSuspect {
		t.Fatalf("keyword-matched hallucination should be suspect, got %s", downgraded.Verdict)
	}
	if downgraded.Confidence != 0.4 {
		t.Fatalf("downgrade should halve confidence, got %.2f", downgraded.Confidence)
	}

	untouched := filtered.Findings.Hallucinations[1]
	if untouched.Verdict != VerdictConfirmed || untouched.Confidence != 0.7 {
		t.Fatalf("ungrounded hallucination should be untouched, got %+v", untouched)
	}
}

func TestFilterBoundaryClaims(t *testing.T) {
	t.Parallel()

	draft := DraftReport{Findings: FindingSet{StructuralIssues: []Finding{
		// Claims the document stops at section 2, but section 3 exists.
		{Kind: KindStructural, Description: "O documento termina abruptamente na seção 2"},
		// Claims it stops at the real last section: no evidence against it.
		{Kind: KindStructural, Description: "O documento termina na seção 3 sem dispositivo"},
		// No boundary language at all.
		{Kind: KindStructural, Description: "Títulos sem numeração consistente"},
	}}}

	filtered, stats := NewPostProcessor(20).Filter(draft, filterRawDoc, filterFmtDoc)

	if len(filtered.Findings.StructuralIssues) != 2 {
		t.Fatalf("expected 2 surviving structural findings, got %d", len(filtered.Findings.StructuralIssues))
	}
	if stats.BoundaryDropped != 1 {
		t.Fatalf("expected 1 boundary artifact dropped, got %d", stats.BoundaryDropped)
	}
}

func TestFilterTruncationClaims(t *testing.T) {
	t.Parallel()

	draft := DraftReport{Findings: FindingSet{ContextIssues: []Finding{
		// The quoted prefix continues mid-word in the full text.
		{Kind: KindContext, Description: "Texto cortado no meio da frase", FormattedExcerpt: "O perito João da Silva apresentou lau..."},
		// The prefix really is the document tail.
		{Kind: KindContext, Description: "Trecho parece truncado", FormattedExcerpt: "Pedido procedente..."},
	}}}

	filtered, stats := NewPostProcessor(20).Filter(draft, filterRawDoc, filterFmtDoc)

	if len(filtered.Findings.ContextIssues) != 1 {
		t.Fatalf("expected 1 surviving context finding, got %d", len(filtered.Findings.ContextIssues))
	}
	if stats.TruncationDropped != 1 {
		t.Fatalf("expected 1 truncation artifact dropped, got %d", stats.TruncationDropped)
	}
	if !strings.Contains(filtered.Findings.ContextIssues[0].FormattedExcerpt, "Pedido procedente") {
		t.Fatalf("the genuine tail claim should survive")
	}
}

func TestFilterDedupAndCap(t *testing.T) {
	t.Parallel()

	dup := Finding{Kind: KindStructural, Description: "Numeração inconsistente"}
	draft := DraftReport{Findings: FindingSet{
		StructuralIssues: []Finding{dup, dup, dup},
		Omissions: []Finding{
			{Kind: KindOmission, RawExcerpt: "trecho um"},
			{Kind: KindOmission, RawExcerpt: "trecho dois"},
			{Kind: KindOmission, RawExcerpt: "trecho três"},
		},
	}}

	filtered, stats := NewPostProcessor(2).Filter(draft, filterRawDoc, filterFmtDoc)

	if len(filtered.Findings.StructuralIssues) != 1 {
		t.Fatalf("expected duplicates collapsed to 1, got %d", len(filtered.Findings.StructuralIssues))
	}
	if stats.Deduplicated != 2 {
		t.Fatalf("expected 2 deduplicated, got %d", stats.Deduplicated)
	}
	if len(filtered.Findings.Omissions) != 2 {
		t.Fatalf("expected omissions capped at 2, got %d", len(filtered.Findings.Omissions))
	}
	if stats.Capped != 1 {
		t.Fatalf("expected 1 capped, got %d", stats.Capped)
	}
}
