package audit

import (
	"strings"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
)

// Normalizer re-derives the final verdict from deterministic evidence instead
// of trusting the judge's self-report. Judges over-report chunk-boundary
// artifacts far more often than they under-report real defects, so the
// override works in both directions: clean evidence forces a pass, surviving
// critical findings force a fail.
type Normalizer struct {
	thresholds config.ThresholdsConfig
}

// NewNormalizer creates a normalizer with the given retention and score bounds.
func NewNormalizer(thresholds config.ThresholdsConfig) *Normalizer {
	return &Normalizer{thresholds: thresholds}
}

// Normalize turns a filtered draft into the final verdict. The pass condition
// requires empty omission, distortion and hallucination lists, an in-band
// retention ratio, no pause request and an approving sub-audit; when all hold
// the report is approved regardless of what the judge said. A failing
// sub-audit is merged into the pause recommendation.
func (n *Normalizer) Normalize(draft DraftReport, metrics Metrics, mode Mode, sub *SubAuditResult) FinalReport {
	noCritical := len(draft.Findings.Omissions) == 0 &&
		len(draft.Findings.Distortions) == 0 &&
		len(draft.Findings.Hallucinations) == 0
	retentionOK := n.retentionOK(metrics.RetentionRatio, mode)
	subOK := sub == nil || sub.Approved

	pause := draft.Pause
	if !subOK {
		pause.Requested = true
		pause.Reason = joinReason(pause.Reason, "Sub-auditoria de atribuição de fontes reprovou o documento")
		pause.CriticalAreas = mergeUnique(pause.CriticalAreas, sub.CriticalErrors)
	}

	approved := draft.Approved
	severity := draft.Severity
	score := draft.Score

	switch {
	case noCritical && !pause.Requested && subOK && retentionOK:
		approved = true
		severity = SeverityLow
		if floor := n.scoreFloor(mode); score < floor {
			score = floor
		}
		// Whatever pause text chunks left behind is a stale artifact here.
		pause = PauseRecommendation{}
	case !noCritical && approved:
		approved = false
		severity = MaxSeverity(severity, SeverityHigh)
	}

	return FinalReport{
		Mode:             mode,
		Approved:         approved,
		Score:            score,
		Severity:         severity,
		Findings:         draft.Findings,
		Metrics:          metrics,
		NarrativeSummary: strings.Join(draft.Observations, "\n"),
		Pause:            pause,
		SubAudit:         sub,
	}
}

func (n *Normalizer) retentionOK(ratio float64, mode Mode) bool {
	if mode == ModeCondensed {
		return ratio >= n.thresholds.CondensedMin
	}
	return ratio >= n.thresholds.StrictMin && ratio <= n.thresholds.StrictMax
}

func (n *Normalizer) scoreFloor(mode Mode) float64 {
	if mode == ModeCondensed {
		return n.thresholds.ScoreFloorCondensed
	}
	return n.thresholds.ScoreFloorStrict
}

func joinReason(existing, extra string) string {
	if existing == "" {
		return extra
	}
	return existing + "; " + extra
}

func mergeUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
