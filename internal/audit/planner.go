package audit

import (
	"math"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/helpers"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/judge"
)

// Planner splits an audit request into aligned raw/formatted chunk pairs
// sized for the judge's context window.
type Planner struct {
	cfg config.ChunkingConfig
}

// NewPlanner creates a planner with the given chunking settings.
func NewPlanner(cfg config.ChunkingConfig) *Planner {
	return &Planner{cfg: cfg}
}

// contextBudget derives the whole-prompt character budget and the raw window
// size from the model's context window. Both document versions plus the
// prompt scaffolding must fit in one call, so the window is half the budget,
// clamped to the configured bounds.
func (p *Planner) contextBudget(model string) (available, maxChars int) {
	contextTokens := judge.ContextTokens(model)
	available = int(float64(contextTokens)*4*p.cfg.Utilization) - p.cfg.PromptReserve
	maxChars = available / 2
	if maxChars < p.cfg.MinChars {
		maxChars = p.cfg.MinChars
	}
	if p.cfg.MaxChars > 0 && maxChars > p.cfg.MaxChars {
		maxChars = p.cfg.MaxChars
	}
	return available, maxChars
}

// Plan cuts the raw text into overlapping windows and maps each one onto a
// proportional slice of the formatted text. Chunk boundaries always land on
// rune starts. A pair that fits the context budget whole is returned as a
// single chunk with no overlap.
func (p *Planner) Plan(raw, formatted, model string) ([]ChunkPair, ChunkingMeta) {
	available, maxChars := p.contextBudget(model)
	overlap := p.cfg.DefaultOverlap
	if limit := maxChars / 12; overlap > limit {
		overlap = limit
	}
	if overlap < 0 {
		overlap = 0
	}

	meta := ChunkingMeta{
		MaxChars:           maxChars,
		OverlapChars:       overlap,
		ModelContextTokens: judge.ContextTokens(model),
	}

	// Either side empty leaves nothing to window or interpolate.
	if len(raw) == 0 || len(formatted) == 0 {
		meta.Count = 1
		meta.OverlapChars = 0
		return []ChunkPair{{}}, meta
	}

	if len(raw)+len(formatted) <= available {
		meta.Count = 1
		meta.OverlapChars = 0
		return []ChunkPair{{
			Index:         0,
			RawStart:      0,
			RawEnd:        len(raw),
			FmtStart:      0,
			FmtEnd:        len(formatted),
			RawText:       raw,
			FormattedText: formatted,
		}}, meta
	}

	var pairs []ChunkPair
	start := 0
	for {
		end := start + maxChars
		if end >= len(raw) {
			end = len(raw)
		} else {
			end = helpers.SnapRuneStart(raw, end)
		}
		pairs = append(pairs, ChunkPair{RawStart: start, RawEnd: end})
		if end >= len(raw) {
			break
		}
		next := helpers.SnapRuneStart(raw, end-overlap)
		if next <= start {
			// Forward progress even under degenerate overlap settings.
			next = end
		}
		start = next
	}

	// Map each raw span onto the formatted text by linear interpolation,
	// widening with floor/ceil so the spans keep covering everything.
	scale := float64(len(formatted)) / float64(len(raw))
	prevEnd := 0
	for i := range pairs {
		pairs[i].Index = i

		fs := int(math.Floor(float64(pairs[i].RawStart) * scale))
		fe := int(math.Ceil(float64(pairs[i].RawEnd) * scale))
		if i == 0 {
			fs = 0
		}
		if pairs[i].RawEnd >= len(raw) {
			fe = len(formatted)
		}
		if fe > len(formatted) {
			fe = len(formatted)
		}
		if fs > fe {
			fs = fe
		}
		fs = helpers.SnapRuneStart(formatted, fs)
		fe = helpers.SnapRuneStart(formatted, fe)
		if fe < fs {
			fe = fs
		}
		if fs > prevEnd {
			// Rune snapping must not open a gap between consecutive spans.
			fs = prevEnd
		}
		if fe > prevEnd {
			prevEnd = fe
		}

		pairs[i].FmtStart = fs
		pairs[i].FmtEnd = fe
		pairs[i].RawText = raw[pairs[i].RawStart:pairs[i].RawEnd]
		pairs[i].FormattedText = formatted[fs:fe]
	}

	meta.Count = len(pairs)
	return pairs, meta
}
