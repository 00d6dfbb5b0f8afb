package audit

import (
	"reflect"
	"strings"
	"testing"
)

const sampleJudgePayload = `{
  "aprovado": false,
  "nota_fidelidade": 6.5,
  "gravidade_geral": "alta",
  "omissoes": [
    {"trecho_original": "Art. 5, XXXVI da CF", "gravidade": "critica", "veredito": "suspeito", "confianca": 0.9, "impacto": "perda de fundamento"}
  ],
  "recomendacao_hil": {"pausar": true, "motivo": "omissões críticas", "areas_criticas": ["fundamentação"]}
}`

func TestParseJudgeResponseStrategies(t *testing.T) {
	t.Parallel()

	direct, strategy, err := parseJudgeResponse(sampleJudgePayload)
	if err != nil {
		t.Fatalf("direct parse failed: %v", err)
	}
	if strategy != "direct" {
		t.Fatalf("expected direct strategy, got %q", strategy)
	}

	fenced, strategy, err := parseJudgeResponse("```json\n" + sampleJudgePayload + "\n```")
	if err != nil {
		t.Fatalf("fenced parse failed: %v", err)
	}
	if strategy != "fenced" {
		t.Fatalf("expected fenced strategy, got %q", strategy)
	}

	prose, strategy, err := parseJudgeResponse("Segue a análise solicitada:\n" + sampleJudgePayload + "\nEspero ter ajudado.")
	if err != nil {
		t.Fatalf("prose parse failed: %v", err)
	}
	if strategy != "brace" {
		t.Fatalf("expected brace strategy, got %q", strategy)
	}

	// All three routes must agree on the decoded report.
	if !reflect.DeepEqual(direct, fenced) {
		t.Fatalf("fenced report differs from direct: %+v vs %+v", fenced, direct)
	}
	if !reflect.DeepEqual(direct, prose) {
		t.Fatalf("prose report differs from direct: %+v vs %+v", prose, direct)
	}

	if direct.Aprovado {
		t.Fatalf("expected aprovado=false")
	}
	if direct.NotaFidelidade != 6.5 {
		t.Fatalf("unexpected score %.2f", direct.NotaFidelidade)
	}
	if len(direct.Omissoes) != 1 {
		t.Fatalf("expected one omission, got %d", len(direct.Omissoes))
	}
	if !direct.RecomendacaoHIL.Pausar {
		t.Fatalf("expected pause recommendation")
	}
}

func TestParseJudgeResponseFailure(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		"",
		"não consegui analisar o documento",
		"```\nsem json aqui\n```",
		`"aprovado"`,
	} {
		if _, _, err := parseJudgeResponse(input); err == nil {
			t.Fatalf("expected parse failure for %q", input)
		}
	}
}

func TestToPartialCapsAndClamps(t *testing.T) {
	t.Parallel()

	report := &judgeReport{
		Aprovado:       true,
		NotaFidelidade: 12.5,
		GravidadeGeral: "média",
		Omissoes: []judgeFinding{
			{TrechoOriginal: "primeiro", Gravidade: "alta", Confianca: 1.5},
			{TrechoOriginal: "segundo", Gravidade: "baixa", Veredito: "suspeito"},
			{TrechoOriginal: "terceiro"},
		},
		ObservacoesGerais: "  texto fiel no geral  ",
	}

	partial := report.toPartial(3, 420, 2)
	if partial.ChunkIndex != 3 {
		t.Fatalf("unexpected chunk index %d", partial.ChunkIndex)
	}
	if partial.RawWordCount != 420 {
		t.Fatalf("unexpected raw word count %d", partial.RawWordCount)
	}
	if partial.Score != 10 {
		t.Fatalf("score should clamp to 10, got %.2f", partial.Score)
	}
	if partial.Severity != SeverityMedium {
		t.Fatalf("unexpected severity %s", partial.Severity)
	}
	if len(partial.Findings.Omissions) != 2 {
		t.Fatalf("expected omissions capped at 2, got %d", len(partial.Findings.Omissions))
	}
	first := partial.Findings.Omissions[0]
	if first.Confidence != 1 {
		t.Fatalf("confidence should clamp to 1, got %.2f", first.Confidence)
	}
	if first.Verdict != VerdictConfirmed {
		t.Fatalf("missing verdict should default to confirmed, got %s", first.Verdict)
	}
	if partial.Findings.Omissions[1].Verdict != VerdictSuspect {
		t.Fatalf("explicit suspeito should map to suspect")
	}
	if partial.Findings.Omissions[0].SourceChunk != 3 {
		t.Fatalf("findings should carry their chunk index")
	}
	if partial.Observations != "texto fiel no geral" {
		t.Fatalf("observations should be trimmed, got %q", partial.Observations)
	}
}

func TestToPartialTrimsLongExcerpts(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 2000)
	report := &judgeReport{
		Distorcoes: []judgeFinding{{TrechoOriginal: long, TrechoFormatado: long}},
	}
	partial := report.toPartial(0, 10, 20)
	got := partial.Findings.Distortions[0].RawExcerpt
	if len([]rune(got)) != maxExcerptRunes+3 {
		t.Fatalf("expected excerpt trimmed to %d runes plus ellipsis, got %d", maxExcerptRunes, len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("trimmed excerpt should end with ellipsis")
	}
}
