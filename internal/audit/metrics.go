package audit

import "github.com/NicholasJacob1990/iudex0-sub003/internal/helpers"

// ComputeMetrics derives the deterministic whole-document measurements every
// chunk audit shares. The judge receives these numbers verbatim so it never
// invents its own compression figures.
func ComputeMetrics(raw, formatted string) Metrics {
	rawRefs := ExtractReferences(raw)
	fmtRefs := ExtractReferences(formatted)

	m := Metrics{
		RawWordCount:            helpers.CountWords(raw),
		FormattedWordCount:      helpers.CountWords(formatted),
		RawReferenceCount:       len(rawRefs),
		FormattedReferenceCount: len(fmtRefs),
	}

	switch {
	case m.RawWordCount > 0:
		m.RetentionRatio = float64(m.FormattedWordCount) / float64(m.RawWordCount)
	case m.FormattedWordCount == 0:
		m.RetentionRatio = 1.0
	}

	if len(rawRefs) > 0 {
		m.ReferencePreservationRatio = float64(intersectCount(rawRefs, fmtRefs)) / float64(len(rawRefs))
	} else {
		m.ReferencePreservationRatio = 1.0
	}
	return m
}
