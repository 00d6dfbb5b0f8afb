package telemetry

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	auditMetricsOnce   sync.Once
	auditsTotal        otelmetric.Int64Counter
	auditDuration      otelmetric.Float64Histogram
	auditChunksTotal   otelmetric.Int64Counter
	judgeCallsTotal    otelmetric.Int64Counter
	judgeTokensTotal   otelmetric.Int64Counter
	judgeParseFailures otelmetric.Int64Counter
)

func initAuditMetrics() {
	meter := otel.Meter("iudex/telemetry")
	var err error
	auditsTotal, err = meter.Int64Counter(
		"audits_total",
		otelmetric.WithDescription("Completed document audits"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: audits_total: %v", err)
	}
	auditDuration, err = meter.Float64Histogram(
		"audit_duration_seconds",
		otelmetric.WithDescription("Wall-clock time per document audit"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: audit_duration_seconds: %v", err)
	}
	auditChunksTotal, err = meter.Int64Counter(
		"audit_chunks_total",
		otelmetric.WithDescription("Chunks processed across all audits"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: audit_chunks_total: %v", err)
	}
	judgeCallsTotal, err = meter.Int64Counter(
		"judge_calls_total",
		otelmetric.WithDescription("Judge invocations, including retries"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: judge_calls_total: %v", err)
	}
	judgeTokensTotal, err = meter.Int64Counter(
		"judge_tokens_total",
		otelmetric.WithDescription("Tokens consumed by judge calls"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: judge_tokens_total: %v", err)
	}
	judgeParseFailures, err = meter.Int64Counter(
		"judge_parse_failures_total",
		otelmetric.WithDescription("Judge responses that could not be parsed as JSON"),
	)
	if err != nil {
		log.Printf("telemetry metrics init: judge_parse_failures_total: %v", err)
	}
}

func recordAuditMetrics(ctx context.Context, event AuditEvent) {
	auditMetricsOnce.Do(initAuditMetrics)
	ctx = contextOrBackground(ctx)

	attrs := otelmetric.WithAttributes(
		attribute.Bool("approved", event.Approved),
		attribute.Bool("fallback", event.Fallback),
	)
	if auditsTotal != nil {
		auditsTotal.Add(ctx, 1, attrs)
	}
	if auditDuration != nil {
		auditDuration.Record(ctx, event.Duration.Seconds(), attrs)
	}
	if auditChunksTotal != nil && event.Chunks > 0 {
		auditChunksTotal.Add(ctx, int64(event.Chunks))
	}
}

func recordJudgeMetrics(ctx context.Context, event JudgeCallEvent) {
	auditMetricsOnce.Do(initAuditMetrics)
	ctx = contextOrBackground(ctx)

	attrs := otelmetric.WithAttributes(
		attribute.String("model", event.Model),
		attribute.Bool("success", event.Success),
		attribute.Bool("rate_limited", event.RateLimited),
	)
	if judgeCallsTotal != nil {
		judgeCallsTotal.Add(ctx, 1, attrs)
	}
	if judgeTokensTotal != nil && event.TokensUsed > 0 {
		judgeTokensTotal.Add(ctx, event.TokensUsed, otelmetric.WithAttributes(attribute.String("model", event.Model)))
	}
	if judgeParseFailures != nil && event.ParseFailed {
		judgeParseFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("model", event.Model)))
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
