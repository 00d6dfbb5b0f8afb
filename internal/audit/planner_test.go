package audit

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
)

func testChunkingConfig() config.ChunkingConfig {
	return config.ChunkingConfig{
		MinChars:       100,
		MaxChars:       1000,
		DefaultOverlap: 120,
		Utilization:    0.6,
		PromptReserve:  100,
	}
}

func TestPlanSingleChunk(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(testChunkingConfig())
	raw := strings.Repeat("palavra ", 50)
	formatted := strings.Repeat("palavra ", 48)

	pairs, meta := planner.Plan(raw, formatted, "gpt-5-mini")
	if len(pairs) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(pairs))
	}
	if meta.Count != 1 {
		t.Fatalf("expected meta count 1, got %d", meta.Count)
	}
	if meta.OverlapChars != 0 {
		t.Fatalf("single chunk must report zero overlap, got %d", meta.OverlapChars)
	}
	pair := pairs[0]
	if pair.RawStart != 0 || pair.RawEnd != len(raw) {
		t.Fatalf("raw span should cover the whole text, got [%d,%d)", pair.RawStart, pair.RawEnd)
	}
	if pair.FmtStart != 0 || pair.FmtEnd != len(formatted) {
		t.Fatalf("formatted span should cover the whole text, got [%d,%d)", pair.FmtStart, pair.FmtEnd)
	}
	if pair.RawText != raw || pair.FormattedText != formatted {
		t.Fatalf("single chunk should carry both texts verbatim")
	}
}

func TestPlanEmptyInput(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(testChunkingConfig())
	cases := []struct{ raw, formatted string }{
		{"", ""},
		{"", "Texto formatado presente."},
		{"Texto original presente.", ""},
	}
	for _, tc := range cases {
		pairs, meta := planner.Plan(tc.raw, tc.formatted, "gpt-5-mini")
		if len(pairs) != 1 || meta.Count != 1 {
			t.Fatalf("empty side should still yield one degenerate chunk, got %d", len(pairs))
		}
		if pairs[0].RawEnd != 0 || pairs[0].FmtEnd != 0 {
			t.Fatalf("degenerate chunk should have empty spans, got %+v", pairs[0])
		}
		if meta.OverlapChars != 0 {
			t.Fatalf("degenerate chunk must report zero overlap, got %d", meta.OverlapChars)
		}
	}
}

func TestPlanCoverageAndOverlap(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(testChunkingConfig())
	// An unknown model gets the conservative default window, so this pair
	// overflows the budget and has to split.
	raw := strings.Repeat("a", 30000)
	formatted := strings.Repeat("b", 28800)

	pairs, meta := planner.Plan(raw, formatted, "local-judge")
	if len(pairs) < 2 {
		t.Fatalf("expected multiple chunks for %d chars with max %d, got %d", len(raw), meta.MaxChars, len(pairs))
	}
	if meta.MaxChars != 1000 {
		t.Fatalf("expected configured max chars cap to hold, got %d", meta.MaxChars)
	}
	wantOverlap := 1000 / 12
	if meta.OverlapChars != wantOverlap {
		t.Fatalf("expected overlap %d, got %d", wantOverlap, meta.OverlapChars)
	}

	if pairs[0].RawStart != 0 {
		t.Fatalf("first chunk must start at 0, got %d", pairs[0].RawStart)
	}
	if pairs[len(pairs)-1].RawEnd != len(raw) {
		t.Fatalf("last chunk must end at %d, got %d", len(raw), pairs[len(pairs)-1].RawEnd)
	}
	if pairs[0].FmtStart != 0 {
		t.Fatalf("first formatted span must start at 0, got %d", pairs[0].FmtStart)
	}
	if pairs[len(pairs)-1].FmtEnd != len(formatted) {
		t.Fatalf("last formatted span must end at %d, got %d", len(formatted), pairs[len(pairs)-1].FmtEnd)
	}

	for i := 1; i < len(pairs); i++ {
		if pairs[i].RawStart >= pairs[i-1].RawEnd {
			t.Fatalf("chunk %d leaves a raw gap: prev end %d, start %d", i, pairs[i-1].RawEnd, pairs[i].RawStart)
		}
		if got := pairs[i-1].RawEnd - pairs[i].RawStart; got != meta.OverlapChars {
			t.Fatalf("chunk %d overlap = %d, want %d", i, got, meta.OverlapChars)
		}
		if pairs[i].FmtStart > pairs[i-1].FmtEnd {
			t.Fatalf("chunk %d leaves a formatted gap: prev end %d, start %d", i, pairs[i-1].FmtEnd, pairs[i].FmtStart)
		}
		if pairs[i].Index != i {
			t.Fatalf("chunk %d carries index %d", i, pairs[i].Index)
		}
	}
}

func TestPlanRespectsRuneBoundaries(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(testChunkingConfig())
	// Accented runes are multi-byte, so naive byte cuts can split characters.
	raw := strings.Repeat("ação jurídica é ", 1500)
	formatted := strings.Repeat("ação jurídica é ", 1400)

	pairs, _ := planner.Plan(raw, formatted, "local-judge")
	if len(pairs) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(pairs))
	}
	for _, pair := range pairs {
		if !utf8.ValidString(pair.RawText) {
			t.Fatalf("chunk %d raw text is not valid UTF-8", pair.Index)
		}
		if !utf8.ValidString(pair.FormattedText) {
			t.Fatalf("chunk %d formatted text is not valid UTF-8", pair.Index)
		}
	}
}
