package audit

import "fmt"

// chunkPromptTemplate is the judge instruction set. The wire schema in the
// FORMATO DE SAÍDA block must stay in sync with the judgeReport types.
const chunkPromptTemplate = `Você é um auditor jurídico especializado em verificar a fidelidade de documentos formatados em relação ao texto original bruto.

MODO DE AUDITORIA: %s
%s

MÉTRICAS DETERMINÍSTICAS (calculadas sobre o documento completo, use-as como base factual):
- Palavras no texto bruto: %d
- Palavras no texto formatado: %d
- Taxa de retenção: %.1f%%
- Referências legais detectadas no texto bruto: %d
- Referências legais detectadas no texto formatado: %d
- Preservação de referências: %.1f%%

CONTEXTO DO TRECHO:
- Este é o trecho %d de %d.%s%s

Sua tarefa é comparar o TRECHO ORIGINAL com o TRECHO FORMATADO correspondente e listar:
1. OMISSÕES: conteúdo relevante do original ausente no formatado.
2. DISTORÇÕES: conteúdo alterado de forma que muda o sentido jurídico.
3. ALUCINAÇÕES: conteúdo presente no formatado sem base no original.
4. PROBLEMAS ESTRUTURAIS: falhas de organização do documento.
5. PROBLEMAS DE CONTEXTO: perdas de encadeamento entre seções.

REGRAS:
- Cite sempre o trecho exato em "trecho_original" e/ou "trecho_formatado".
- Use "veredito": "confirmado" apenas quando a evidência citada for literal; caso contrário, "suspeito".
- "gravidade" deve ser "baixa", "media", "alta" ou "critica".
- "confianca" é um número entre 0 e 1.
- Não reporte reformulações que preservam o sentido.

TRECHO ORIGINAL (BRUTO):
---
%s
---

TRECHO FORMATADO:
---
%s
---

FORMATO DE SAÍDA:
Responda APENAS com JSON válido, sem nenhum texto adicional, no formato:
{
  "aprovado": true,
  "nota_fidelidade": 9.5,
  "gravidade_geral": "baixa",
  "omissoes": [{"trecho_original": "...", "localizacao_esperada": "...", "impacto": "...", "correcao": "...", "confianca": 0.9, "gravidade": "media", "veredito": "confirmado", "descricao": "..."}],
  "distorcoes": [{"trecho_original": "...", "trecho_formatado": "...", "impacto": "...", "confianca": 0.8, "gravidade": "alta", "veredito": "confirmado", "descricao": "..."}],
  "alucinacoes": [{"trecho_formatado": "...", "impacto": "...", "confianca": 0.7, "gravidade": "alta", "veredito": "suspeito", "descricao": "..."}],
  "problemas_estruturais": [{"descricao": "...", "gravidade": "baixa"}],
  "problemas_contexto": [{"descricao": "...", "gravidade": "baixa"}],
  "observacoes_gerais": "...",
  "recomendacao_hil": {"pausar": false, "motivo": "", "areas_criticas": []}
}`

// buildChunkPrompt renders the judge prompt for one chunk pair.
func buildChunkPrompt(pair ChunkPair, meta ChunkingMeta, metrics Metrics, mode Mode) string {
	modeLabel := "FIDELIDADE ESTRITA"
	modeRules := "O documento formatado deve preservar todo o conteúdo relevante do original. Condensação não autorizada é defeito."
	if mode == ModeCondensed {
		modeLabel = "CONDENSAÇÃO AUTORIZADA"
		modeRules = "O documento formatado é uma versão condensada autorizada. Reduções de texto não são defeito por si só; avalie se o essencial e todas as citações legais foram preservados."
	}

	overlapNote := ""
	if meta.Count > 1 && meta.OverlapChars > 0 {
		overlapNote = fmt.Sprintf(" Trechos vizinhos se sobrepõem em cerca de %d caracteres; ignore cortes nas bordas.", meta.OverlapChars)
	}
	structureNote := "\n- A estrutura global do documento será avaliada apenas no último trecho; não reporte problemas estruturais aqui."
	if pair.Index == meta.Count-1 {
		structureNote = "\n- Este é o último trecho: avalie também a estrutura global e o fechamento do documento."
	}

	return fmt.Sprintf(chunkPromptTemplate,
		modeLabel,
		modeRules,
		metrics.RawWordCount,
		metrics.FormattedWordCount,
		metrics.RetentionRatio*100,
		metrics.RawReferenceCount,
		metrics.FormattedReferenceCount,
		metrics.ReferencePreservationRatio*100,
		pair.Index+1,
		meta.Count,
		overlapNote,
		structureNote,
		pair.RawText,
		pair.FormattedText,
	)
}
