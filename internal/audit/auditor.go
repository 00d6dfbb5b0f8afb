package audit

import (
	"context"
	"fmt"
	"log"
	"math/rand"
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

var auditorTracer trace.Tracer = otel.Tracer("iudex/internal/audit/auditor")

// Auditor runs single chunks through the judge, retrying transport failures
// and tolerating sloppy response formatting.
type Auditor struct {
	provider           judge.Provider
	telemetry          *telemetry.Telemetry
	logger             *log.Logger
	maxRetries         int
	maxFindingsPerKind int

	// Injectable for tests; production uses real sleeps and random jitter.
	sleep  func(context.Context, time.Duration) error
	jitter func() time.Duration
}

// NewAuditor creates a chunk auditor backed by the given judge provider.
func NewAuditor(provider judge.Provider, cfg config.AuditConfig, tele *telemetry.Telemetry) *Auditor {
	return &Auditor{
		provider:           provider,
		telemetry:          tele,
		logger:             log.New(log.Writer(), "[AUDITOR] ", log.LstdFlags),
		maxRetries:         cfg.MaxRetries,
		maxFindingsPerKind: cfg.MaxFindingsPerKind,
		sleep:              sleepContext,
		jitter:             randomJitter,
	}
}

// AuditChunk evaluates one chunk pair and returns its verdict plus the tokens
// spent across all attempts. Transport errors are retried up to the configured
// attempt budget; an unparseable judge response is not retried and yields a
// synthetic critical result so the chunk can never be silently approved. An
// error is returned only when every attempt failed or the context was
// cancelled.
func (a *Auditor) AuditChunk(ctx context.Context, pair ChunkPair, meta ChunkingMeta, metrics Metrics, mode Mode) (PartialResult, judge.Usage, error) {
	prompt := buildChunkPrompt(pair, meta, metrics, mode)
	rawWords := helpers.CountWords(pair.RawText)

	var spent judge.Usage
	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		callCtx, span := auditorTracer.Start(ctx, "judge.call",
			trace.WithAttributes(
				attribute.String("judge.model", a.provider.Model()),
				attribute.Int("judge.attempt", attempt),
			))
		start := time.Now()
		raw, usage, err := a.provider.Evaluate(callCtx, prompt)
		duration := time.Since(start)
		spent = spent.Add(usage)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int64("judge.tokens", usage.TotalTokens))
		span.End()

		if err != nil {
			lastErr = err
			rateLimited := judge.IsRateLimit(err)
			a.recordCall(ctx, telemetry.JudgeCallEvent{
				Model:       a.provider.Model(),
				Attempt:     attempt,
				Duration:    duration,
				RateLimited: rateLimited,
				TokensUsed:  usage.TotalTokens,
				Cost:        usage.Cost,
			})
			a.logger.Printf("chunk %d: attempt %d/%d failed: %v", pair.Index, attempt+1, a.maxRetries, err)

			if attempt == a.maxRetries-1 {
				break
			}
			if ctx.Err() != nil {
				return PartialResult{}, spent, ctx.Err()
			}
			if err := a.sleep(ctx, backoffFor(attempt, rateLimited)+a.jitter()); err != nil {
				return PartialResult{}, spent, err
			}
			continue
		}

		report, strategy, perr := parseJudgeResponse(raw)
		if perr != nil {
			a.recordCall(ctx, telemetry.JudgeCallEvent{
				Model:       a.provider.Model(),
				Attempt:     attempt,
				Duration:    duration,
				Success:     true,
				ParseFailed: true,
				TokensUsed:  usage.TotalTokens,
				Cost:        usage.Cost,
			})
			a.logger.Printf("chunk %d: unparseable judge response (%d bytes), emitting synthetic failure", pair.Index, len(raw))
			return a.parseFailureResult(pair, rawWords), spent, nil
		}

		a.recordCall(ctx, telemetry.JudgeCallEvent{
			Model:         a.provider.Model(),
			Attempt:       attempt,
			Duration:      duration,
			Success:       true,
			ParseStrategy: strategy,
			TokensUsed:    usage.TotalTokens,
			Cost:          usage.Cost,
		})
		return report.toPartial(pair.Index, rawWords, a.maxFindingsPerKind), spent, nil
	}

	return PartialResult{}, spent, fmt.Errorf("chunk %d: judge failed after %d attempts: %w", pair.Index, a.maxRetries, lastErr)
}

func (a *Auditor) recordCall(ctx context.Context, event telemetry.JudgeCallEvent) {
	if a.telemetry != nil {
		a.telemetry.RecordJudgeCall(ctx, event)
	}
}

// parseFailureResult stands in for a chunk whose judge response could not be
// decoded. It fails the chunk and asks for review, so normalization can never
// flip the document to approved on top of it.
func (a *Auditor) parseFailureResult(pair ChunkPair, rawWords int) PartialResult {
	return PartialResult{
		ChunkIndex: pair.Index,
		Approved:   false,
		Score:      0,
		Severity:   SeverityCritical,
		Findings: FindingSet{
			ContextIssues: []Finding{{
				Kind:        KindContext,
				Severity:    SeverityCritical,
				Verdict:     VerdictConfirmed,
				Description: "Resposta do avaliador não pôde ser interpretada como JSON",
				Impact:      "Trecho não auditado de forma confiável",
				SourceChunk: pair.Index,
			}},
		},
		PauseRequested: true,
		PauseReason:    fmt.Sprintf("Falha ao interpretar a resposta do avaliador no trecho %d", pair.Index+1),
		RawWordCount:   rawWords,
	}
}

// backoffFor returns the base delay before retrying a failed attempt
// (0-based). Rate limits escalate 4s, 8s, 16s, ...; other errors wait a short
// fixed interval. Jitter is added by the caller.
func backoffFor(attempt int, rateLimited bool) time.Duration {
	if rateLimited {
		return time.Duration(1<<uint(attempt+2)) * time.Second
	}
	return 2 * time.Second
}

func randomJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(2 * time.Second)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
