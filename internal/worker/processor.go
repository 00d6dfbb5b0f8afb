package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/NicholasJacob1990/iudex0-sub003/internal/audit"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/queue/streams"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var workerTracer trace.Tracer = otel.Tracer("iudex/internal/worker")

const (
	readBlock           = 5 * time.Second
	readCount           = 16
	maintenanceInterval = time.Minute
	// Deliveries idle longer than this are considered abandoned by a dead
	// consumer and reclaimed.
	autoClaimMinIdle = time.Minute
)

// StoreAPI captures the store methods required by the worker.
type StoreAPI interface {
	ClaimEvent(ctx context.Context, eventID string) (bool, error)
	GetJob(ctx context.Context, id string) (store.JobRecord, bool, error)
	ClaimJob(ctx context.Context, id string) (bool, error)
	FinishJob(ctx context.Context, id string, status string, errMsg *string, reportID *string) error
	SaveReport(ctx context.Context, rec store.ReportRecord) (string, error)
	ListJobsByStatus(ctx context.Context, statuses ...string) ([]store.JobRecord, error)
}

// AuditRunner runs one document pair through the audit pipeline.
type AuditRunner interface {
	Audit(ctx context.Context, req audit.Request) *audit.FinalReport
}

// EventPublisher captures the publisher methods required by the worker.
type EventPublisher interface {
	PublishRaw(ctx context.Context, stream, eventType, version string, payload interface{}, opts ...streams.PublishOption) (string, error)
}

// FindingsIndex receives finished reports for full-text search. May be nil
// when search is disabled.
type FindingsIndex interface {
	Add(reportID string, createdAt time.Time, rep *audit.FinalReport) error
}

var (
	workerMetricsOnce sync.Once
	processedCounter  otelmetric.Int64Counter
	failedCounter     otelmetric.Int64Counter
)

func initWorkerMetrics() error {
	var err error
	workerMetricsOnce.Do(func() {
		meter := otel.Meter("worker")
		processedCounter, err = meter.Int64Counter("audit_jobs_processed")
		if err != nil {
			return
		}
		failedCounter, err = meter.Int64Counter("audit_jobs_failed")
	})
	return err
}

// Processor drives audit execution by consuming audit.requested events,
// running the engine and persisting the outcome.
type Processor struct {
	logger          *log.Logger
	store           StoreAPI
	engine          AuditRunner
	consumer        *streams.Consumer
	publisher       EventPublisher
	index           FindingsIndex
	requestStream   string
	completedStream string
	maxLen          int64
}

// NewProcessor constructs a Processor. index may be nil.
func NewProcessor(logger *log.Logger, st StoreAPI, eng AuditRunner, pub EventPublisher, cons *streams.Consumer, requestStream, completedStream string, maxLen int64, index FindingsIndex) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	if err := initWorkerMetrics(); err != nil {
		logger.Printf("warn: create worker counters failed: %v", err)
	}
	return &Processor{
		logger:          logger,
		store:           st,
		engine:          eng,
		consumer:        cons,
		publisher:       pub,
		index:           index,
		requestStream:   requestStream,
		completedStream: completedStream,
		maxLen:          maxLen,
	}
}

// Start blocks, continuously processing audit.requested events until the
// context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("audit worker starting; consuming stream %s", p.requestStream)
	p.reportBacklog(ctx)

	lastMaintenance := time.Now()
	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("audit worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		if time.Since(lastMaintenance) >= maintenanceInterval {
			p.runMaintenance(ctx)
			lastMaintenance = time.Now()
		}

		msgs, err := p.consumer.Read(ctx, p.requestStream, streams.WithBlock(readBlock), streams.WithCount(readCount))
		if err != nil {
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		p.processBatch(ctx, msgs)
	}
}

func (p *Processor) processBatch(ctx context.Context, msgs []streams.Message) {
	for _, msg := range msgs {
		if err := p.handleAuditRequested(ctx, msg); err != nil {
			p.logger.Printf("error handling audit message %s: %v", msg.ID, err)
		}
		if err := p.consumer.Ack(ctx, p.requestStream, msg.ID); err != nil {
			p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
		}
	}
}

// reportBacklog logs jobs left over from previous runs so operators can spot
// a stalled queue at startup.
func (p *Processor) reportBacklog(ctx context.Context) {
	jobs, err := p.store.ListJobsByStatus(ctx, store.JobStatusQueued, store.JobStatusRunning)
	if err != nil {
		p.logger.Printf("warn: list pending jobs: %v", err)
		return
	}
	if len(jobs) == 0 {
		return
	}
	var queued, running int
	for _, j := range jobs {
		switch j.Status {
		case store.JobStatusQueued:
			queued++
		case store.JobStatusRunning:
			running++
		}
	}
	p.logger.Printf("startup backlog: %d queued, %d running", queued, running)
}

// runMaintenance reclaims deliveries abandoned by dead consumers and logs
// consumer-group lag.
func (p *Processor) runMaintenance(ctx context.Context) {
	msgs, _, err := p.consumer.AutoClaim(ctx, p.requestStream, autoClaimMinIdle, "0-0", readCount)
	if err != nil {
		p.logger.Printf("warn: autoclaim stale deliveries: %v", err)
	} else if len(msgs) > 0 {
		p.logger.Printf("reclaimed %d stale deliveries", len(msgs))
		p.processBatch(ctx, msgs)
	}

	lag, err := p.consumer.LagMetrics(ctx, p.requestStream)
	if err != nil {
		p.logger.Printf("warn: read group lag: %v", err)
		return
	}
	if lag.Pending > 0 || lag.Lag > 0 {
		p.logger.Printf("stream %s: pending=%d lag=%d consumers=%d oldest_idle=%s",
			p.requestStream, lag.Pending, lag.Lag, lag.Consumers, lag.OldestIdle)
	}
}

func (p *Processor) handleAuditRequested(ctx context.Context, msg streams.Message) error {
	ctx, span := workerTracer.Start(ctx, "worker.handle_audit")
	defer span.End()

	claimed, err := p.store.ClaimEvent(ctx, msg.Envelope.EventID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		p.logger.Printf("skip event %s: already processed", msg.Envelope.EventID)
		return nil
	}

	payload, err := streams.DecodeAuditRequested(msg.Envelope)
	if err != nil {
		return fmt.Errorf("decode audit.requested: %w", err)
	}
	span.SetAttributes(attribute.String("job.id", payload.JobID))

	job, ok, err := p.store.GetJob(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", payload.JobID, err)
	}
	if !ok {
		p.logger.Printf("skip job %s: not found", payload.JobID)
		return nil
	}

	claimed, err = p.store.ClaimJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	if !claimed {
		p.logger.Printf("skip job %s: status %s", job.ID, job.Status)
		return nil
	}

	mode, err := audit.ParseMode(job.Mode)
	if err != nil {
		return p.failJob(ctx, job.ID, err)
	}

	report := p.engine.Audit(ctx, audit.Request{
		DocumentName:  job.DocumentName,
		RawText:       job.RawText,
		FormattedText: job.FormattedText,
		Mode:          mode,
	})

	reportID, err := p.persistReport(ctx, job, report)
	if err != nil {
		return p.failJob(ctx, job.ID, err)
	}

	if err := p.store.FinishJob(ctx, job.ID, store.JobStatusSucceeded, nil, &reportID); err != nil {
		return fmt.Errorf("finish job %s: %w", job.ID, err)
	}

	completed := streams.AuditCompleted{JobID: job.ID, ReportID: reportID, Approved: report.Approved}
	if _, err := p.publisher.PublishRaw(ctx, p.completedStream, streams.EventTypeAuditCompleted, streams.PayloadVersionV1, completed, streams.WithMaxLenApprox(p.maxLen)); err != nil {
		p.logger.Printf("warn: publish audit.completed for job %s: %v", job.ID, err)
	}

	if p.index != nil {
		if err := p.index.Add(reportID, time.Now().UTC(), report); err != nil {
			p.logger.Printf("warn: index findings for report %s: %v", reportID, err)
		}
	}

	span.SetAttributes(attribute.Bool("audit.approved", report.Approved))
	if processedCounter != nil {
		processedCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("mode", string(report.Mode)),
			attribute.Bool("approved", report.Approved),
		))
	}
	return nil
}

func (p *Processor) persistReport(ctx context.Context, job store.JobRecord, rep *audit.FinalReport) (string, error) {
	payload, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	id, err := p.store.SaveReport(ctx, store.ReportRecord{
		UserID:         job.UserID,
		DocumentName:   job.DocumentName,
		Mode:           string(rep.Mode),
		Approved:       rep.Approved,
		Score:          rep.Score,
		Severity:       string(rep.Severity),
		RetentionRatio: rep.Metrics.RetentionRatio,
		ChunkCount:     rep.Chunking.Count,
		Report:         payload,
	})
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return id, nil
}

// failJob marks the job failed and surfaces the cause to the caller. The
// message is still acked; the failure is recorded on the job row.
func (p *Processor) failJob(ctx context.Context, jobID string, cause error) error {
	msg := cause.Error()
	if err := p.store.FinishJob(ctx, jobID, store.JobStatusFailed, &msg, nil); err != nil {
		p.logger.Printf("warn: mark job %s failed: %v", jobID, err)
	}
	if failedCounter != nil {
		failedCounter.Add(ctx, 1)
	}
	return fmt.Errorf("job %s: %w", jobID, cause)
}
