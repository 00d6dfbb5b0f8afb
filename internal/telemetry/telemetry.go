package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
)

// Telemetry tracks audit throughput and judge spend in memory.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds audit and judge performance counters.
type Metrics struct {
	TotalAudits      int64
	ApprovedAudits   int64
	RejectedAudits   int64
	FallbackAudits   int64
	AverageAuditTime time.Duration

	ChunksAudited      int64
	JudgeCalls         map[string]int64 // model -> calls
	JudgeTokensUsed    map[string]int64 // model -> tokens
	JudgeRetries       int64
	JudgeParseFailures int64
}

// CostTracker accumulates judge spend. Costs are attributed once, at the
// judge-call level; audit events carry aggregate cost only for their log line.
type CostTracker struct {
	DailyCosts     map[string]float64 // day (YYYY-MM-DD) -> cost
	ModelCosts     map[string]float64 // model -> cost
	OperationCosts map[string]float64 // operation -> cost
	TotalCost      float64
	TotalTokens    int64
}

// AuditEvent describes one finished document audit.
type AuditEvent struct {
	DocumentName string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Approved     bool
	Fallback     bool
	Chunks       int
	Model        string
	TokensUsed   int64
	Cost         float64
}

// JudgeCallEvent describes one judge invocation, including retries.
type JudgeCallEvent struct {
	Model         string
	Attempt       int
	Duration      time.Duration
	Success       bool
	RateLimited   bool
	ParseStrategy string
	ParseFailed   bool
	TokensUsed    int64
	Cost          float64
}

// NewTelemetry creates a telemetry instance.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			JudgeCalls:      make(map[string]int64),
			JudgeTokensUsed: make(map[string]int64),
		},
		costTracker: &CostTracker{
			DailyCosts:     make(map[string]float64),
			ModelCosts:     make(map[string]float64),
			OperationCosts: make(map[string]float64),
		},
	}

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startCostReporting()
	}

	return t
}

// RecordAuditEvent records a completed audit.
func (t *Telemetry) RecordAuditEvent(ctx context.Context, event AuditEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	t.metrics.TotalAudits++
	if event.Approved {
		t.metrics.ApprovedAudits++
	} else {
		t.metrics.RejectedAudits++
	}
	if event.Fallback {
		t.metrics.FallbackAudits++
	}
	t.metrics.ChunksAudited += int64(event.Chunks)

	if t.metrics.TotalAudits == 1 {
		t.metrics.AverageAuditTime = event.Duration
	} else {
		total := t.metrics.AverageAuditTime * time.Duration(t.metrics.TotalAudits-1)
		t.metrics.AverageAuditTime = (total + event.Duration) / time.Duration(t.metrics.TotalAudits)
	}

	t.mu.Unlock()

	recordAuditMetrics(ctx, event)

	t.logger.Printf("Audit Event: Doc=%s, Approved=%t, Fallback=%t, Chunks=%d, Duration=%v, Cost=$%.4f, Tokens=%d",
		event.DocumentName, event.Approved, event.Fallback, event.Chunks, event.Duration, event.Cost, event.TokensUsed)
}

// RecordJudgeCall records one judge invocation attempt.
func (t *Telemetry) RecordJudgeCall(ctx context.Context, event JudgeCallEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	t.metrics.JudgeCalls[event.Model]++
	t.metrics.JudgeTokensUsed[event.Model] += event.TokensUsed
	if event.Attempt > 0 {
		t.metrics.JudgeRetries++
	}
	if event.ParseFailed {
		t.metrics.JudgeParseFailures++
	}
	if t.config.CostTracking {
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.TokensUsed
		t.costTracker.ModelCosts[event.Model] += event.Cost
		t.costTracker.OperationCosts["judge_call"] += event.Cost
		t.costTracker.DailyCosts[time.Now().Format("2006-01-02")] += event.Cost
	}
	t.mu.Unlock()

	recordJudgeMetrics(ctx, event)
}

// GetMetrics returns a copy of the current metrics.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.JudgeCalls = make(map[string]int64, len(t.metrics.JudgeCalls))
	metrics.JudgeTokensUsed = make(map[string]int64, len(t.metrics.JudgeTokensUsed))
	for k, v := range t.metrics.JudgeCalls {
		metrics.JudgeCalls[k] = v
	}
	for k, v := range t.metrics.JudgeTokensUsed {
		metrics.JudgeTokensUsed[k] = v
	}
	return metrics
}

// GetCostSummary returns a copy of the accumulated costs.
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:      t.costTracker.TotalCost,
		TotalTokens:    t.costTracker.TotalTokens,
		DailyCosts:     make(map[string]float64, len(t.costTracker.DailyCosts)),
		ModelCosts:     make(map[string]float64, len(t.costTracker.ModelCosts)),
		OperationCosts: make(map[string]float64, len(t.costTracker.OperationCosts)),
	}
	for k, v := range t.costTracker.DailyCosts {
		summary.DailyCosts[k] = v
	}
	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.OperationCosts {
		summary.OperationCosts[k] = v
	}
	return summary
}

// CostSummary provides a snapshot of judge spend.
type CostSummary struct {
	TotalCost      float64
	TotalTokens    int64
	DailyCosts     map[string]float64
	ModelCosts     map[string]float64
	OperationCosts map[string]float64
}

func (t *Telemetry) startCostReporting() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		costs := t.GetCostSummary()
		t.logger.Printf("Cost Report: Total=$%.4f, Tokens=%d", costs.TotalCost, costs.TotalTokens)
		for model, cost := range costs.ModelCosts {
			t.logger.Printf("  Model %s: $%.4f", model, cost)
		}
	}
}

// Shutdown logs a final summary.
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	t.logger.Printf("Final Report: Audits=%d (approved=%d, rejected=%d, fallback=%d), Chunks=%d, Retries=%d, Cost=$%.4f, Tokens=%d",
		metrics.TotalAudits, metrics.ApprovedAudits, metrics.RejectedAudits, metrics.FallbackAudits,
		metrics.ChunksAudited, metrics.JudgeRetries, costs.TotalCost, costs.TotalTokens)
}
