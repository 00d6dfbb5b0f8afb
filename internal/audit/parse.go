package audit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NicholasJacob1990/iudex0-sub003/internal/helpers"
)

// judgeFinding mirrors one entry of the judge's defect lists. Field names
// follow the Portuguese wire schema the prompt asks for.
type judgeFinding struct {
	TrechoOriginal      string  `json:"trecho_original"`
	TrechoFormatado     string  `json:"trecho_formatado"`
	LocalizacaoEsperada string  `json:"localizacao_esperada"`
	Impacto             string  `json:"impacto"`
	Correcao            string  `json:"correcao"`
	Confianca           float64 `json:"confianca"`
	Descricao           string  `json:"descricao"`
	Gravidade           string  `json:"gravidade"`
	Veredito            string  `json:"veredito"`
}

type judgeHIL struct {
	Pausar        bool     `json:"pausar"`
	Motivo        string   `json:"motivo"`
	AreasCriticas []string `json:"areas_criticas"`
}

type judgeReport struct {
	Aprovado             bool            `json:"aprovado"`
	NotaFidelidade       float64         `json:"nota_fidelidade"`
	GravidadeGeral       string          `json:"gravidade_geral"`
	Omissoes             []judgeFinding  `json:"omissoes"`
	Distorcoes           []judgeFinding  `json:"distorcoes"`
	Alucinacoes          []judgeFinding  `json:"alucinacoes"`
	ProblemasEstruturais []judgeFinding  `json:"problemas_estruturais"`
	ProblemasContexto    []judgeFinding  `json:"problemas_contexto"`
	Metricas             json.RawMessage `json:"metricas"`
	ObservacoesGerais    string          `json:"observacoes_gerais"`
	RecomendacaoHIL      judgeHIL        `json:"recomendacao_hil"`
}

const maxExcerptRunes = 500

// parseJudgeResponse decodes the judge output, tolerating markdown fences and
// surrounding prose. The second return names the strategy that succeeded.
func parseJudgeResponse(s string) (*judgeReport, string, error) {
	trimmed := strings.TrimSpace(s)

	if report, err := decodeJudgeReport(trimmed); err == nil {
		return report, "direct", nil
	}
	if body, ok := helpers.StripCodeFence(trimmed); ok {
		if report, err := decodeJudgeReport(body); err == nil {
			return report, "fenced", nil
		}
	}
	if span, ok := helpers.ExtractBalancedJSON(trimmed); ok {
		if report, err := decodeJudgeReport(span); err == nil {
			return report, "brace", nil
		}
	}
	return nil, "", fmt.Errorf("judge response is not parseable JSON")
}

func decodeJudgeReport(s string) (*judgeReport, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, fmt.Errorf("not a JSON object")
	}
	var report judgeReport
	if err := json.Unmarshal([]byte(s), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func parseVerdict(s string) Verdict {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "suspeito", "suspect":
		return VerdictSuspect
	default:
		return VerdictConfirmed
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// toPartial converts the wire report into a chunk result, capping list sizes
// and excerpt lengths so one chatty response cannot flood the aggregate.
func (r *judgeReport) toPartial(chunkIndex, rawWords, maxPerKind int) PartialResult {
	partial := PartialResult{
		ChunkIndex:     chunkIndex,
		Approved:       r.Aprovado,
		Score:          clampScore(r.NotaFidelidade),
		Severity:       ParseSeverity(r.GravidadeGeral),
		PauseRequested: r.RecomendacaoHIL.Pausar,
		PauseReason:    strings.TrimSpace(r.RecomendacaoHIL.Motivo),
		CriticalAreas:  r.RecomendacaoHIL.AreasCriticas,
		Observations:   strings.TrimSpace(r.ObservacoesGerais),
		RawWordCount:   rawWords,
	}
	partial.Findings.Omissions = convertFindings(r.Omissoes, KindOmission, chunkIndex, maxPerKind)
	partial.Findings.Distortions = convertFindings(r.Distorcoes, KindDistortion, chunkIndex, maxPerKind)
	partial.Findings.Hallucinations = convertFindings(r.Alucinacoes, KindHallucination, chunkIndex, maxPerKind)
	partial.Findings.StructuralIssues = convertFindings(r.ProblemasEstruturais, KindStructural, chunkIndex, maxPerKind)
	partial.Findings.ContextIssues = convertFindings(r.ProblemasContexto, KindContext, chunkIndex, maxPerKind)
	return partial
}

func convertFindings(in []judgeFinding, kind FindingKind, chunkIndex, maxPerKind int) []Finding {
	if len(in) == 0 {
		return nil
	}
	if maxPerKind > 0 && len(in) > maxPerKind {
		in = in[:maxPerKind]
	}
	out := make([]Finding, 0, len(in))
	for _, jf := range in {
		out = append(out, Finding{
			Kind:             kind,
			Severity:         ParseSeverity(jf.Gravidade),
			Verdict:          parseVerdict(jf.Veredito),
			RawExcerpt:       helpers.TrimExcerpt(strings.TrimSpace(jf.TrechoOriginal), maxExcerptRunes),
			FormattedExcerpt: helpers.TrimExcerpt(strings.TrimSpace(jf.TrechoFormatado), maxExcerptRunes),
			ExpectedLocation: strings.TrimSpace(jf.LocalizacaoEsperada),
			Impact:           strings.TrimSpace(jf.Impacto),
			Correction:       strings.TrimSpace(jf.Correcao),
			Confidence:       clampConfidence(jf.Confianca),
			Description:      strings.TrimSpace(jf.Descricao),
			SourceChunk:      chunkIndex,
		})
	}
	return out
}
