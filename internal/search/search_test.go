package search

import (
	"testing"
	"time"

	"github.com/NicholasJacob1990/iudex0-sub003/internal/audit"
)

func sampleReport() *audit.FinalReport {
	return &audit.FinalReport{
		DocumentName: "sentenca-0001.md",
		Mode:         audit.ModeStrictFidelity,
		Approved:     false,
		Findings: audit.FindingSet{
			Omissions: []audit.Finding{{
				Kind:        audit.KindOmission,
				Severity:    audit.SeverityCritical,
				Verdict:     audit.VerdictConfirmed,
				RawExcerpt:  "conforme a Sumula 473 do STF",
				Description: "Citacao da sumula ausente no documento formatado",
			}},
			Distortions: []audit.Finding{{
				Kind:             audit.KindDistortion,
				Severity:         audit.SeverityHigh,
				RawExcerpt:       "multa de R$ 5.000",
				FormattedExcerpt: "multa de R$ 50.000",
				Description:      "Valor da multa alterado",
			}},
		},
	}
}

func TestIndexAddAndSearch(t *testing.T) {
	idx, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer idx.Close()

	if err := idx.Add("rep-1", time.Now(), sampleReport()); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := idx.Search("sumula", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for sumula, got %d", len(hits))
	}
	if hits[0].ReportID != "rep-1" {
		t.Fatalf("expected report rep-1, got %q", hits[0].ReportID)
	}
	if hits[0].Kind != string(audit.KindOmission) {
		t.Fatalf("expected omission hit, got %q", hits[0].Kind)
	}
	if len(hits[0].Fragments) == 0 {
		t.Fatal("expected highlight fragments")
	}

	// Keyword fields support exact field queries.
	hits, err = idx.Search("severity:high", 10)
	if err != nil {
		t.Fatalf("Search severity: %v", err)
	}
	if len(hits) != 1 || hits[0].Kind != string(audit.KindDistortion) {
		t.Fatalf("expected the distortion for severity:high, got %+v", hits)
	}
}

func TestIndexRemoveDropsReportFindings(t *testing.T) {
	idx, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer idx.Close()

	if err := idx.Add("rep-1", time.Now(), sampleReport()); err != nil {
		t.Fatalf("Add rep-1: %v", err)
	}
	other := sampleReport()
	other.DocumentName = "sentenca-0002.md"
	if err := idx.Add("rep-2", time.Now(), other); err != nil {
		t.Fatalf("Add rep-2: %v", err)
	}

	if err := idx.Remove([]string{"rep-1"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	hits, err := idx.Search("multa", 10)
	if err != nil {
		t.Fatalf("Search after remove: %v", err)
	}
	if len(hits) != 1 || hits[0].ReportID != "rep-2" {
		t.Fatalf("expected only rep-2 to remain, got %+v", hits)
	}
}

func TestIndexAddSkipsCleanReports(t *testing.T) {
	idx, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer idx.Close()

	clean := &audit.FinalReport{DocumentName: "limpo.md", Approved: true}
	if err := idx.Add("rep-clean", time.Now(), clean); err != nil {
		t.Fatalf("Add clean report: %v", err)
	}
	hits, err := idx.Search("limpo", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no entries for a clean report, got %d", len(hits))
	}
}
