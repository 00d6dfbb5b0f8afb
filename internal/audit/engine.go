package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/helpers"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/judge"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/telemetry"
)

var engineTracer trace.Tracer = otel.Tracer("iudex/internal/audit")

// SubAuditor checks source and authorship attribution independently of the
// fidelity judge. Its verdict feeds only the pause recommendation and the
// pass condition.
type SubAuditor interface {
	Check(ctx context.Context, raw, formatted, documentName string) (*SubAuditResult, error)
}

// Engine runs the audit pipeline for one document: plan aligned chunks, judge
// them concurrently, aggregate the partial verdicts, filter false positives
// and normalize the final verdict against deterministic evidence.
type Engine struct {
	provider   judge.Provider
	planner    *Planner
	auditor    *Auditor
	filters    *PostProcessor
	normalizer *Normalizer
	subAuditor SubAuditor
	telemetry  *telemetry.Telemetry
	logger     *log.Logger

	defaultMode     Mode
	maxWorkers      int
	subAuditEnabled bool
}

// NewEngine wires the pipeline stages from configuration. subAuditor may be
// nil; it is consulted only when the configuration enables the sub-audit.
func NewEngine(provider judge.Provider, subAuditor SubAuditor, cfg config.AuditConfig, tele *telemetry.Telemetry) (*Engine, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	workers := cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		provider:        provider,
		planner:         NewPlanner(cfg.Chunking),
		auditor:         NewAuditor(provider, cfg, tele),
		filters:         NewPostProcessor(cfg.MaxFindingsPerKind),
		normalizer:      NewNormalizer(cfg.Thresholds),
		subAuditor:      subAuditor,
		telemetry:       tele,
		logger:          log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
		defaultMode:     mode,
		maxWorkers:      workers,
		subAuditEnabled: cfg.SubAudit.Enabled,
	}, nil
}

// Audit runs the full pipeline and always returns a report, never an error.
// The review layer treats "no report" as worse than "a failed report", so
// every internal failure path converges on a rejected fallback report.
func (e *Engine) Audit(ctx context.Context, req Request) *FinalReport {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = e.defaultMode
	}

	ctx, span := engineTracer.Start(ctx, "audit.run",
		trace.WithAttributes(
			attribute.String("document.name", req.DocumentName),
			attribute.String("audit.mode", string(mode)),
		))
	defer span.End()

	report, usage := e.run(ctx, req, mode)
	report.DocumentName = req.DocumentName
	report.GeneratedAt = time.Now()

	span.SetAttributes(
		attribute.Bool("audit.approved", report.Approved),
		attribute.Bool("audit.fallback", report.Fallback),
		attribute.Int("audit.chunks", report.Chunking.Count),
		attribute.Float64("audit.score", report.Score),
	)

	if e.telemetry != nil {
		e.telemetry.RecordAuditEvent(ctx, telemetry.AuditEvent{
			DocumentName: req.DocumentName,
			StartTime:    start,
			EndTime:      report.GeneratedAt,
			Duration:     time.Since(start),
			Approved:     report.Approved,
			Fallback:     report.Fallback,
			Chunks:       report.Chunking.Count,
			Model:        e.provider.Model(),
			TokensUsed:   usage.TotalTokens,
			Cost:         usage.Cost,
		})
	}
	return report
}

func (e *Engine) run(ctx context.Context, req Request, mode Mode) (report *FinalReport, usage judge.Usage) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("audit pipeline panicked: %v", r)
			report = e.fallbackReport(req, mode, fmt.Sprintf("Falha interna na auditoria: %v", r))
		}
	}()

	metrics := ComputeMetrics(req.RawText, req.FormattedText)
	chunks, meta := e.planner.Plan(req.RawText, req.FormattedText, e.provider.Model())
	e.logger.Printf("auditing %q: %d chunk(s), retention %.2f", req.DocumentName, meta.Count, metrics.RetentionRatio)

	partials, usage, failed := e.auditChunks(ctx, chunks, meta, metrics, mode)
	if failed == len(chunks) {
		e.logger.Printf("all %d chunk(s) failed, degrading to the fallback report", len(chunks))
		fb := e.fallbackReport(req, mode, "Nenhum trecho pôde ser auditado: avaliador indisponível")
		fb.Chunking = meta
		return fb, usage
	}

	draft := aggregateResults(partials)
	filtered, stats := e.filters.Filter(draft, req.RawText, req.FormattedText)
	if n := stats.Total(); n > 0 {
		e.logger.Printf("filtered %d finding(s): boundary=%d truncation=%d omission=%d hallucination=%d dedup=%d capped=%d",
			n, stats.BoundaryDropped, stats.TruncationDropped, stats.OmissionDropped,
			stats.HallucinationDropped, stats.Deduplicated, stats.Capped)
	}

	sub := e.runSubAudit(ctx, req)
	final := e.normalizer.Normalize(filtered, metrics, mode, sub)
	final.Chunking = meta
	return &final, usage
}

// auditChunks fans chunk audits out over a bounded worker pool and reassembles
// the results by chunk index, keeping aggregation deterministic regardless of
// completion order. A single chunk runs inline without pool overhead. A chunk
// whose retries are exhausted contributes a synthetic failed result instead of
// aborting the whole audit.
func (e *Engine) auditChunks(ctx context.Context, chunks []ChunkPair, meta ChunkingMeta, metrics Metrics, mode Mode) ([]PartialResult, judge.Usage, int) {
	partials := make([]PartialResult, len(chunks))

	if len(chunks) == 1 {
		partial, usage, err := e.auditChunk(ctx, chunks[0], meta, metrics, mode)
		if err != nil {
			e.logger.Printf("chunk %d failed: %v", chunks[0].Index, err)
			partials[0] = failedChunkResult(chunks[0])
			return partials, usage, 1
		}
		partials[0] = partial
		return partials, usage, 0
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		total  judge.Usage
		failed int
	)
	sem := make(chan struct{}, e.maxWorkers)

	for i := range chunks {
		wg.Add(1)
		go func(i int, chunk ChunkPair) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Printf("chunk %d panicked: %v", chunk.Index, r)
					partials[i] = failedChunkResult(chunk)
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}()
			sem <- struct{}{}
			defer func() { <-sem }()

			partial, usage, err := e.auditChunk(ctx, chunk, meta, metrics, mode)
			if err != nil {
				e.logger.Printf("chunk %d failed: %v", chunk.Index, err)
				partial = failedChunkResult(chunk)
			}
			partials[i] = partial

			mu.Lock()
			total = total.Add(usage)
			if err != nil {
				failed++
			}
			mu.Unlock()
		}(i, chunks[i])
	}
	wg.Wait()

	return partials, total, failed
}

// auditChunk wraps one chunk audit in a span.
func (e *Engine) auditChunk(ctx context.Context, chunk ChunkPair, meta ChunkingMeta, metrics Metrics, mode Mode) (PartialResult, judge.Usage, error) {
	ctx, span := engineTracer.Start(ctx, "audit.chunk",
		trace.WithAttributes(attribute.Int("chunk.index", chunk.Index)))
	defer span.End()

	partial, usage, err := e.auditor.AuditChunk(ctx, chunk, meta, metrics, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return partial, usage, err
}

// failedChunkResult stands in for a chunk the judge never answered for. It
// rejects the chunk and asks for review, so the remaining chunks' evidence
// still shapes the verdict without this gap being silently approved.
func failedChunkResult(chunk ChunkPair) PartialResult {
	return PartialResult{
		ChunkIndex: chunk.Index,
		Approved:   false,
		Severity:   SeverityCritical,
		Findings: FindingSet{ContextIssues: []Finding{{
			Kind:        KindContext,
			Severity:    SeverityCritical,
			Verdict:     VerdictConfirmed,
			Description: fmt.Sprintf("Trecho %d não pôde ser auditado: avaliador indisponível", chunk.Index+1),
			Impact:      "Parte do documento ficou sem verificação de fidelidade",
			SourceChunk: chunk.Index,
		}}},
		PauseRequested: true,
		PauseReason:    fmt.Sprintf("Falha na auditoria do trecho %d", chunk.Index+1),
		RawWordCount:   helpers.CountWords(chunk.RawText),
	}
}

func (e *Engine) runSubAudit(ctx context.Context, req Request) *SubAuditResult {
	if !e.subAuditEnabled || e.subAuditor == nil {
		return nil
	}
	sub, err := e.subAuditor.Check(ctx, req.RawText, req.FormattedText, req.DocumentName)
	if err != nil {
		e.logger.Printf("sub-audit failed, continuing without it: %v", err)
		return nil
	}
	return sub
}

// fallbackReport is the degraded output used when the pipeline cannot produce
// a real verdict. It is computed purely from the two input texts and always
// rejects with a pause request.
func (e *Engine) fallbackReport(req Request, mode Mode, reason string) *FinalReport {
	return &FinalReport{
		Mode:     mode,
		Approved: false,
		Score:    0,
		Severity: SeverityCritical,
		Metrics:  ComputeMetrics(req.RawText, req.FormattedText),
		Pause: PauseRecommendation{
			Requested:     true,
			Reason:        reason,
			CriticalAreas: []string{"documento inteiro"},
		},
		Fallback: true,
	}
}
