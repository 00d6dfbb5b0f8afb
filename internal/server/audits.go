package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/NicholasJacob1990/iudex0-sub003/internal/audit"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/queue/streams"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/runtime"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/search"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/store"
)

// AuditStore captures the store methods used by the audit handlers.
type AuditStore interface {
	CreateJob(ctx context.Context, userID, documentName, mode, rawText, formattedText string) (string, error)
	GetJob(ctx context.Context, id string) (store.JobRecord, bool, error)
	SaveReport(ctx context.Context, rec store.ReportRecord) (string, error)
	GetReport(ctx context.Context, id, userID string) (store.ReportRecord, bool, error)
	ListReports(ctx context.Context, userID string, limit, offset int) ([]store.ReportRecord, error)
}

// AuditRunner runs a document pair through the audit pipeline.
type AuditRunner interface {
	Audit(ctx context.Context, req audit.Request) *audit.FinalReport
}

// EventPublisher enqueues audit.requested events.
type EventPublisher interface {
	PublishRaw(ctx context.Context, stream, eventType, version string, payload interface{}, opts ...streams.PublishOption) (string, error)
}

// FindingsSearcher indexes and queries finding entries.
type FindingsSearcher interface {
	Add(reportID string, createdAt time.Time, rep *audit.FinalReport) error
	Search(q string, limit int) ([]search.Hit, error)
}

// AuditsHandler serves audit submission, retrieval and findings search.
// Publisher and Index may be nil when the queue or search are disabled.
type AuditsHandler struct {
	Store         AuditStore
	Engine        AuditRunner
	Publisher     EventPublisher
	Index         FindingsSearcher
	RequestStream string
	MaxLen        int64
	QueueEnabled  bool
	Logger        *log.Logger
}

func (h *AuditsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("/audits", h.createAudit)
	g.GET("/audits", h.listAudits)
	g.GET("/audits/:id", h.getAudit)
	g.GET("/jobs/:id", h.getJob)
	g.GET("/findings/search", h.searchFindings)
}

func (h *AuditsHandler) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

// CreateAudit
//
//	@Summary	Submit a document pair for a fidelity audit
//	@Tags		audits
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		CreateAuditRequest	true	"Audit payload"
//	@Success	200		{object}	AuditReportResponse
//	@Success	202		{object}	AuditAcceptedResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/v1/audits [post]
func (h *AuditsHandler) createAudit(c echo.Context) error {
	var req CreateAuditRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.RawText) == "" || strings.TrimSpace(req.FormattedText) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "raw_text and formatted_text are required")
	}
	mode, err := audit.ParseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, _ := c.Get("user_id").(string)

	if req.Wait || !h.QueueEnabled || h.Publisher == nil {
		return h.runSync(c, userID, req, mode)
	}

	ctx := c.Request().Context()
	jobID, err := h.Store.CreateJob(ctx, userID, req.DocumentName, string(mode), req.RawText, req.FormattedText)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	payload := streams.AuditRequested{JobID: jobID}
	if _, err := h.Publisher.PublishRaw(ctx, h.RequestStream, streams.EventTypeAuditRequested, streams.PayloadVersionV1, payload, streams.WithMaxLenApprox(h.MaxLen)); err != nil {
		h.logger().Printf("publish audit.requested for job %s failed: %v", jobID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "enqueue audit job")
	}
	return c.JSON(http.StatusAccepted, AuditAcceptedResponse{JobID: jobID, Status: store.JobStatusQueued})
}

func (h *AuditsHandler) runSync(c echo.Context, userID string, req CreateAuditRequest, mode audit.Mode) error {
	ctx := c.Request().Context()
	report := h.Engine.Audit(ctx, audit.Request{
		DocumentName:  req.DocumentName,
		RawText:       req.RawText,
		FormattedText: req.FormattedText,
		Mode:          mode,
	})
	payload, err := json.Marshal(report)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	id, err := h.Store.SaveReport(ctx, store.ReportRecord{
		UserID:         userID,
		DocumentName:   req.DocumentName,
		Mode:           string(report.Mode),
		Approved:       report.Approved,
		Score:          report.Score,
		Severity:       string(report.Severity),
		RetentionRatio: report.Metrics.RetentionRatio,
		ChunkCount:     report.Chunking.Count,
		Report:         payload,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Index != nil {
		if err := h.Index.Add(id, time.Now().UTC(), report); err != nil {
			h.logger().Printf("warn: index findings for report %s: %v", id, err)
		}
	}
	return c.JSON(http.StatusOK, AuditReportResponse{ID: id, CreatedAt: time.Now().UTC(), Report: payload})
}

// GetAudit
//
//	@Summary	Fetch one stored audit report
//	@Tags		audits
//	@Produce	json
//	@Success	200	{object}	AuditReportResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/v1/audits/{id} [get]
func (h *AuditsHandler) getAudit(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	rec, ok, err := h.Store.GetReport(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, AuditReportResponse{ID: rec.ID, CreatedAt: rec.CreatedAt, Report: rec.Report})
}

// ListAudits
//
//	@Summary	List stored audit reports, newest first
//	@Tags		audits
//	@Produce	json
//	@Success	200	{object}	ReportListResponse
//	@Router		/api/v1/audits [get]
func (h *AuditsHandler) listAudits(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	recs, err := h.Store.ListReports(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	summaries := make([]ReportSummary, 0, len(recs))
	for _, r := range recs {
		summaries = append(summaries, ReportSummary{
			ID:             r.ID,
			DocumentName:   r.DocumentName,
			Mode:           r.Mode,
			Approved:       r.Approved,
			Score:          r.Score,
			Severity:       r.Severity,
			RetentionRatio: r.RetentionRatio,
			ChunkCount:     r.ChunkCount,
			CreatedAt:      r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, ReportListResponse{Reports: summaries, Limit: limit, Offset: offset})
}

// GetJob
//
//	@Summary	Report the state of an audit job
//	@Tags		audits
//	@Produce	json
//	@Success	200	{object}	JobResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/v1/jobs/{id} [get]
func (h *AuditsHandler) getJob(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	job, ok, err := h.Store.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok || job.UserID != userID {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, JobResponse{
		JobID:        job.ID,
		DocumentName: job.DocumentName,
		Mode:         job.Mode,
		Status:       job.Status,
		Error:        job.Error,
		ReportID:     job.ReportID,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
	})
}

// SearchFindings
//
//	@Summary	Full-text search over indexed findings
//	@Tags		audits
//	@Produce	json
//	@Success	200	{object}	FindingSearchResponse
//	@Failure	400	{object}	HTTPError
//	@Failure	503	{object}	HTTPError
//	@Router		/api/v1/findings/search [get]
func (h *AuditsHandler) searchFindings(c echo.Context) error {
	if h.Index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search disabled")
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	hits, err := h.Index.Search(q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, FindingSearchResponse{Query: q, Hits: hits})
}
