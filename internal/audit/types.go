package audit

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which retention contract the audited document must honour.
type Mode string

const (
	// ModeStrictFidelity expects the formatted document to track the raw text
	// closely (retention ratio inside a narrow band).
	ModeStrictFidelity Mode = "strict-fidelity"
	// ModeCondensed allows deliberate summarisation down to a floor.
	ModeCondensed Mode = "condensed"
)

// ParseMode validates a mode string, defaulting empty input to strict fidelity.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(s))) {
	case "":
		return ModeStrictFidelity, nil
	case ModeStrictFidelity:
		return ModeStrictFidelity, nil
	case ModeCondensed:
		return ModeCondensed, nil
	}
	return "", fmt.Errorf("unknown audit mode: %q", s)
}

// Severity is the ordinal defect scale promoted across chunks (low < medium < high < critical).
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity (unknown values rank as low).
func (s Severity) Rank() int {
	return severityRank[s]
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseSeverity maps free-form judge severities (Portuguese or English) onto the ordinal scale.
func ParseSeverity(s string) Severity {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "critica", "crítica", "critical":
		return SeverityCritical
	case "alta", "high":
		return SeverityHigh
	case "media", "média", "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Verdict qualifies how much deterministic evidence backs a finding.
type Verdict string

const (
	VerdictConfirmed Verdict = "confirmed"
	VerdictSuspect   Verdict = "suspect"
)

// FindingKind discriminates the defect classes reported by the judge.
type FindingKind string

const (
	KindOmission      FindingKind = "omission"
	KindDistortion    FindingKind = "distortion"
	KindHallucination FindingKind = "hallucination"
	KindStructural    FindingKind = "structural_issue"
	KindContext       FindingKind = "context_issue"
)

// Finding is a single defect reported for a chunk. Only the evidence fields
// relevant to the kind are populated.
type Finding struct {
	Kind             FindingKind `json:"kind"`
	Severity         Severity    `json:"severity"`
	Verdict          Verdict     `json:"verdict,omitempty"`
	RawExcerpt       string      `json:"raw_excerpt,omitempty"`       // omission/distortion: quoted source text
	FormattedExcerpt string      `json:"formatted_excerpt,omitempty"` // distortion/hallucination: quoted output text
	ExpectedLocation string      `json:"expected_location,omitempty"`
	Impact           string      `json:"impact,omitempty"`
	Correction       string      `json:"correction,omitempty"`
	Confidence       float64     `json:"confidence,omitempty"`
	Description      string      `json:"description,omitempty"`
	SourceChunk      int         `json:"source_chunk_index"`
}

// FindingSet groups findings by kind, mirroring the judge's five report lists.
type FindingSet struct {
	Omissions        []Finding `json:"omissions,omitempty"`
	Distortions      []Finding `json:"distortions,omitempty"`
	Hallucinations   []Finding `json:"hallucinations,omitempty"`
	StructuralIssues []Finding `json:"structural_issues,omitempty"`
	ContextIssues    []Finding `json:"context_issues,omitempty"`
}

// Total counts findings across all kinds.
func (fs *FindingSet) Total() int {
	return len(fs.Omissions) + len(fs.Distortions) + len(fs.Hallucinations) +
		len(fs.StructuralIssues) + len(fs.ContextIssues)
}

// Append merges another set into this one, preserving order.
func (fs *FindingSet) Append(other FindingSet) {
	fs.Omissions = append(fs.Omissions, other.Omissions...)
	fs.Distortions = append(fs.Distortions, other.Distortions...)
	fs.Hallucinations = append(fs.Hallucinations, other.Hallucinations...)
	fs.StructuralIssues = append(fs.StructuralIssues, other.StructuralIssues...)
	fs.ContextIssues = append(fs.ContextIssues, other.ContextIssues...)
}

// lists exposes the per-kind slices for in-place filtering passes.
func (fs *FindingSet) lists() []*[]Finding {
	return []*[]Finding{
		&fs.Omissions,
		&fs.Distortions,
		&fs.Hallucinations,
		&fs.StructuralIssues,
		&fs.ContextIssues,
	}
}

// ChunkPair is an aligned excerpt of the raw and formatted documents, small
// enough to fit the judge's context budget. Offsets are byte indices snapped
// to rune boundaries.
type ChunkPair struct {
	Index         int    `json:"index"`
	RawStart      int    `json:"raw_start"`
	RawEnd        int    `json:"raw_end"`
	FmtStart      int    `json:"fmt_start"`
	FmtEnd        int    `json:"fmt_end"`
	RawText       string `json:"-"`
	FormattedText string `json:"-"`
}

// Metrics holds deterministic whole-document measurements, computed once and
// shared read-only by every chunk audit.
type Metrics struct {
	RawWordCount               int     `json:"raw_word_count"`
	FormattedWordCount         int     `json:"formatted_word_count"`
	RetentionRatio             float64 `json:"retention_ratio"`
	RawReferenceCount          int     `json:"raw_reference_count"`
	FormattedReferenceCount    int     `json:"formatted_reference_count"`
	ReferencePreservationRatio float64 `json:"reference_preservation_ratio"`
}

// PartialResult is one chunk's verdict, immutable once produced.
type PartialResult struct {
	ChunkIndex     int        `json:"chunk_index"`
	Approved       bool       `json:"approved"`
	Score          float64    `json:"score"` // 0..10
	Severity       Severity   `json:"severity"`
	Findings       FindingSet `json:"findings"`
	PauseRequested bool       `json:"pause_requested"`
	PauseReason    string     `json:"pause_reason,omitempty"`
	CriticalAreas  []string   `json:"critical_areas,omitempty"`
	Observations   string     `json:"observations,omitempty"`
	RawWordCount   int        `json:"raw_word_count"` // aggregation weight
}

// PauseRecommendation signals that automatic processing should halt for review.
type PauseRecommendation struct {
	Requested     bool     `json:"requested"`
	Reason        string   `json:"reason,omitempty"`
	CriticalAreas []string `json:"critical_areas,omitempty"`
}

// ChunkingMeta records how the document was split for the audit.
type ChunkingMeta struct {
	Count              int `json:"count"`
	MaxChars           int `json:"max_chars"`
	OverlapChars       int `json:"overlap_chars"`
	ModelContextTokens int `json:"model_context_tokens"`
}

// DraftReport is the merged view of all chunk verdicts before false-positive
// filtering and invariant normalization.
type DraftReport struct {
	Approved     bool                `json:"approved"`
	Score        float64             `json:"score"`
	Severity     Severity            `json:"severity"`
	Findings     FindingSet          `json:"findings"`
	Pause        PauseRecommendation `json:"pause_recommendation"`
	Observations []string            `json:"observations,omitempty"`
}

// SubAuditResult is the source-attribution collaborator's verdict.
type SubAuditResult struct {
	Approved       bool     `json:"approved"`
	CriticalErrors []string `json:"critical_errors,omitempty"`
}

// FinalReport is the sole contract exposed to the review layer. It is always
// producible, even when the whole pipeline fails.
type FinalReport struct {
	DocumentName     string              `json:"document_name,omitempty"`
	Mode             Mode                `json:"mode"`
	Approved         bool                `json:"approved"`
	Score            float64             `json:"score"`
	Severity         Severity            `json:"severity"`
	Findings         FindingSet          `json:"findings"`
	Metrics          Metrics             `json:"metrics"`
	NarrativeSummary string              `json:"narrative_summary,omitempty"`
	Pause            PauseRecommendation `json:"pause_recommendation"`
	Chunking         ChunkingMeta        `json:"chunking"`
	SubAudit         *SubAuditResult     `json:"sub_audit,omitempty"`
	Fallback         bool                `json:"fallback,omitempty"` // set when the degraded path produced this report
	GeneratedAt      time.Time           `json:"generated_at"`
}

// Request carries one document pair through a single audit call.
type Request struct {
	DocumentName  string `json:"document_name"`
	RawText       string `json:"raw_text"`
	FormattedText string `json:"formatted_text"`
	Mode          Mode   `json:"mode,omitempty"` // empty means the engine default
}
