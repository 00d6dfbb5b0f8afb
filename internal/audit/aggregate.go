package audit

import "strings"

// aggregateResults merges per-chunk verdicts into one draft report. Approval
// is the AND of all chunks, severity the MAX, and the score a mean weighted
// by each chunk's raw word count so padding chunks cannot drown a long one.
func aggregateResults(partials []PartialResult) DraftReport {
	draft := DraftReport{Approved: true, Severity: SeverityLow}
	if len(partials) == 0 {
		draft.Approved = false
		return draft
	}

	var weightedSum, weightTotal, plainSum float64
	var reasons []string
	seenAreas := make(map[string]struct{})

	for _, p := range partials {
		if !p.Approved {
			draft.Approved = false
		}
		draft.Severity = MaxSeverity(draft.Severity, p.Severity)
		draft.Findings.Append(p.Findings)

		weight := float64(p.RawWordCount)
		weightedSum += p.Score * weight
		weightTotal += weight
		plainSum += p.Score

		if obs := strings.TrimSpace(p.Observations); obs != "" {
			draft.Observations = append(draft.Observations, obs)
		}
		if p.PauseRequested {
			draft.Pause.Requested = true
			if r := strings.TrimSpace(p.PauseReason); r != "" {
				reasons = append(reasons, r)
			}
			for _, area := range p.CriticalAreas {
				area = strings.TrimSpace(area)
				if area == "" {
					continue
				}
				if _, ok := seenAreas[area]; ok {
					continue
				}
				seenAreas[area] = struct{}{}
				draft.Pause.CriticalAreas = append(draft.Pause.CriticalAreas, area)
			}
		}
	}

	if weightTotal > 0 {
		draft.Score = weightedSum / weightTotal
	} else {
		// Degenerate documents (no words anywhere) fall back to a plain mean.
		draft.Score = plainSum / float64(len(partials))
	}
	draft.Pause.Reason = strings.Join(reasons, "; ")
	return draft
}
